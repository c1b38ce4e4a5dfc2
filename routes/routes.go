package routes

import (
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/longsangsabo/sabo-pool-engine/handlers"
	"github.com/longsangsabo/sabo-pool-engine/middleware"
	"github.com/longsangsabo/sabo-pool-engine/models"
)

// SetupRoutes wires every HTTP endpoint onto the router.
func SetupRoutes(
	router *chi.Mux,
	jwtSecret string,
	allowedOrigins []string,
	tournamentHandler *handlers.TournamentHandler,
	registrationHandler *handlers.RegistrationHandler,
	webSocketHandler *handlers.WebSocketHandler,
) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	authenticate := middleware.Authenticate(jwtSecret)

	router.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	router.Route("/tournaments", func(r chi.Router) {
		// Public browsing.
		r.Get("/", tournamentHandler.ListHandler)
		r.Get("/{tournamentID}", tournamentHandler.GetByIDHandler)
		r.Get("/{tournamentID}/results", tournamentHandler.ListResultsHandler)
		r.Get("/{tournamentID}/matches", tournamentHandler.ListMatchesHandler)

		// Player registration actions.
		r.Group(func(r chi.Router) {
			r.Use(authenticate)

			r.Get("/{tournamentID}/registration", registrationHandler.StatusHandler)
			r.Post("/{tournamentID}/registration", registrationHandler.RegisterHandler)
			r.Delete("/{tournamentID}/registration", registrationHandler.CancelHandler)
			r.Post("/{tournamentID}/registration/toggle", registrationHandler.ToggleHandler)
			r.Post("/{tournamentID}/registration/refresh", registrationHandler.RefreshHandler)
		})

		// Organizer lifecycle controls.
		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Use(middleware.Authorize(models.RoleOrganizer, models.RoleAdmin))

			r.Post("/{tournamentID}/finalize", tournamentHandler.FinalizeHandler)
		})
	})

	router.Group(func(r chi.Router) {
		r.Use(authenticate)
		r.Use(middleware.Authorize(models.RoleOrganizer, models.RoleAdmin))

		r.Put("/matches/{matchID}/result", tournamentHandler.UpdateMatchResultHandler)
	})

	router.Get("/rewards/preview", tournamentHandler.RewardPreviewHandler)

	router.Group(func(r chi.Router) {
		r.Use(authenticate)

		r.Post("/auth/signout", registrationHandler.SignOutHandler)
	})

	router.Get("/ws/tournaments/{tournamentID}", webSocketHandler.ServeTournament)

	router.Group(func(r chi.Router) {
		r.Use(authenticate)

		r.Get("/ws/me", webSocketHandler.ServeUser)
	})
}
