package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/longsangsabo/sabo-pool-engine/middleware"
	"github.com/longsangsabo/sabo-pool-engine/models"
	"github.com/longsangsabo/sabo-pool-engine/services"
)

type TournamentHandler struct {
	tournaments *services.TournamentService
}

func NewTournamentHandler(ts *services.TournamentService) *TournamentHandler {
	return &TournamentHandler{tournaments: ts}
}

// ListHandler handles GET /tournaments.
func (h *TournamentHandler) ListHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	var status *models.TournamentStatus
	if statusStr := query.Get("status"); statusStr != "" {
		s := models.TournamentStatus(statusStr)
		switch s {
		case models.StatusUpcoming, models.StatusRegistrationOpen, models.StatusRegistrationClosed,
			models.StatusOngoing, models.StatusCompleted, models.StatusCancelled:
			status = &s
		default:
			badRequestResponse(w, r, errors.New("invalid status query parameter"))
			return
		}
	}

	limit := 20
	if limitStr := query.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		} else {
			badRequestResponse(w, r, errors.New("invalid limit query parameter"))
			return
		}
	}

	offset := 0
	if offsetStr := query.Get("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		} else {
			badRequestResponse(w, r, errors.New("invalid offset query parameter"))
			return
		}
	}

	tournaments, err := h.tournaments.ListTournaments(r.Context(), status, limit, offset)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournaments": tournaments}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetByIDHandler handles GET /tournaments/{tournamentID}.
func (h *TournamentHandler) GetByIDHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	tournament, err := h.tournaments.GetTournament(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournament": tournament}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ListResultsHandler handles GET /tournaments/{tournamentID}/results.
func (h *TournamentHandler) ListResultsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	results, err := h.tournaments.ListResults(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"results": results}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ListMatchesHandler handles GET /tournaments/{tournamentID}/matches.
func (h *TournamentHandler) ListMatchesHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	query := r.URL.Query()

	var branch *models.BracketBranch
	if branchStr := query.Get("branch"); branchStr != "" {
		b := models.BracketBranch(branchStr)
		if b != models.BranchWinners && b != models.BranchLosers {
			badRequestResponse(w, r, errors.New("invalid branch query parameter"))
			return
		}
		branch = &b
	}

	var status *models.MatchStatus
	if statusStr := query.Get("status"); statusStr != "" {
		s := models.MatchStatus(statusStr)
		switch s {
		case models.MatchPending, models.MatchInProgress, models.MatchCompleted, models.MatchWalkover:
			status = &s
		default:
			badRequestResponse(w, r, errors.New("invalid status query parameter"))
			return
		}
	}

	matches, err := h.tournaments.ListMatches(r.Context(), id, branch, status)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"matches": matches}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

type updateMatchResultInput struct {
	WinnerUserID int     `json:"winner_user_id"`
	Score        *string `json:"score"`
	Walkover     bool    `json:"walkover"`
}

// UpdateMatchResultHandler handles PUT /matches/{matchID}/result.
// Organizer or admin only; the route group enforces the role.
func (h *TournamentHandler) UpdateMatchResultHandler(w http.ResponseWriter, r *http.Request) {
	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input updateMatchResultInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}
	if input.WinnerUserID <= 0 {
		failedValidationResponse(w, r, map[string]string{"winner_user_id": "must be a positive user ID"})
		return
	}

	match, err := h.tournaments.UpdateMatchResult(r.Context(), matchID, input.WinnerUserID, input.Score, input.Walkover)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"match": match}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// FinalizeHandler handles POST /tournaments/{tournamentID}/finalize.
// Only the tournament's organizer or an admin may force finalization.
func (h *TournamentHandler) FinalizeHandler(w http.ResponseWriter, r *http.Request) {
	id, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	currentUserID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	tournament, err := h.tournaments.GetTournament(r.Context(), id)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	role, _ := middleware.GetUserRoleFromContext(r.Context())
	if role != models.RoleAdmin && tournament.OrganizerID != currentUserID {
		forbiddenResponse(w, r, "only the tournament organizer may finalize it")
		return
	}

	if err := h.tournaments.FinalizeTournament(r.Context(), id); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"message": "tournament finalized"}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// RewardPreviewHandler handles GET /rewards/preview?position=N&rank=H.
// It returns the SPA points and ELO points a finishing position would pay
// at a given rank. Nothing is persisted.
func (h *TournamentHandler) RewardPreviewHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	position, err := strconv.Atoi(query.Get("position"))
	if err != nil || position <= 0 {
		badRequestResponse(w, r, errors.New("invalid position query parameter"))
		return
	}

	rank := models.RankCode(query.Get("rank"))
	if _, ok := models.RankIndex(rank); !ok {
		badRequestResponse(w, r, errors.New("invalid rank query parameter"))
		return
	}

	entry := h.tournaments.CalculateReward(position, rank)

	env := jsonResponse{
		"position": position,
		"rank":     rank,
		"reward":   entry,
	}
	if err := writeJSON(w, http.StatusOK, env, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
