package handlers

import (
	"context"
	"net/http"

	"github.com/longsangsabo/sabo-pool-engine/middleware"
	"github.com/longsangsabo/sabo-pool-engine/services"
)

type RegistrationHandler struct {
	registrations *services.RegistrationService
}

func NewRegistrationHandler(rs *services.RegistrationService) *RegistrationHandler {
	return &RegistrationHandler{registrations: rs}
}

// StatusHandler handles GET /tournaments/{tournamentID}/registration.
// It reports the cached registration state driving the register button.
func (h *RegistrationHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	env := jsonResponse{
		"registered":  h.registrations.IsRegistered(tournamentID, userID),
		"processing":  h.registrations.IsLoading(tournamentID, userID),
		"button_text": h.registrations.ButtonText(tournamentID, userID),
	}
	if err := writeJSON(w, http.StatusOK, env, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// RegisterHandler handles POST /tournaments/{tournamentID}/registration.
func (h *RegistrationHandler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.registrations.Register, http.StatusCreated)
}

// CancelHandler handles DELETE /tournaments/{tournamentID}/registration.
func (h *RegistrationHandler) CancelHandler(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.registrations.Cancel, http.StatusOK)
}

// ToggleHandler handles POST /tournaments/{tournamentID}/registration/toggle.
// It registers the user when they are not registered and cancels the
// registration when they are, the way the register button behaves.
func (h *RegistrationHandler) ToggleHandler(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, h.registrations.HandleRegistrationFlow, http.StatusOK)
}

func (h *RegistrationHandler) act(
	w http.ResponseWriter,
	r *http.Request,
	action func(ctx context.Context, tournamentID, userID int) error,
	successStatus int,
) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	if err := action(r.Context(), tournamentID, userID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	env := jsonResponse{
		"registered":  h.registrations.IsRegistered(tournamentID, userID),
		"button_text": h.registrations.ButtonText(tournamentID, userID),
	}
	if err := writeJSON(w, successStatus, env, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// RefreshHandler handles POST /tournaments/{tournamentID}/registration/refresh.
// It forces a foreground re-read of the persisted registration and returns
// the reconciled state.
func (h *RegistrationHandler) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	state, err := h.registrations.RefreshStatus(r.Context(), tournamentID, userID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"state": state}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// SignOutHandler handles POST /auth/signout. It drops the user's cached
// registration states so a future session starts from ground truth.
func (h *RegistrationHandler) SignOutHandler(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.GetUserIDFromContext(r.Context())
	if err != nil {
		unauthorizedResponse(w, r, "authentication required")
		return
	}

	h.registrations.SignOut(userID)

	if err := writeJSON(w, http.StatusOK, jsonResponse{"message": "signed out"}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
