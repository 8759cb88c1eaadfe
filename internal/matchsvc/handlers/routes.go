package handlers

import (
	"os"

	"github.com/go-chi/chi"
	"github.com/go-chi/jwtauth"
)

func (h *Handler) SetRoutes(r *chi.Mux) {
	r.Route("/v1", func(r chi.Router) {

		// public routes
		r.Get("/health", h.HealthHandler)

		// the play socket authorizes by player nonce, per frame
		r.Get("/ws/{roomID}", h.WSHandler)

		// Secure routes
		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verifier(h.tokenAuth))
			r.Use(jwtauth.Authenticator)

			r.Post("/match", h.CreateMatchHandler)
			r.Post("/match/{roomID}/join", h.JoinMatchHandler)
			r.Get("/match/{roomID}", h.GetMatchHandler)
			r.Post("/match/{roomID}/move", h.MoveHandler)
			r.Post("/match/{roomID}/resign", h.ResignMatchHandler)
			r.Post("/match/{roomID}/complete", h.CompleteMatchHandler)

			r.Get("/users/{userID}/stats", h.UserStatsHandler)
			r.Get("/users/{userID}/achievements", h.UserAchievementsHandler)
		})
	})
}

func (h *Handler) InitAuth() {
	var jwtKey = os.Getenv("JWT_SECRET_KEY")
	h.tokenAuth = jwtauth.New("HS256", []byte(jwtKey), nil)
}
