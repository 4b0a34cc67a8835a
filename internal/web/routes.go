package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/facecloak/internal/web/handlers"
	"github.com/kozaktomas/facecloak/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	var status handlers.StatusReporter
	if s.deps.Recognizers != nil {
		status = s.deps.Recognizers
	}
	healthHandler := handlers.NewHealthHandler(status)
	messagesHandler := handlers.NewMessagesHandler(s.deps.Proxy)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.Get)
		r.Post("/messages", messagesHandler.Post)

		if s.deps.Recognizers != nil {
			matchHandler := handlers.NewMatchHandler(s.deps.Recognizers)
			r.Post("/match", matchHandler.Post)
		}
		if s.deps.Cloak != nil {
			cloakHandler := handlers.NewCloakHandler(s.deps.Cloak)
			r.With(middleware.SandboxedPage()).Get("/cloak", cloakHandler.Get)
		}
	})
}
