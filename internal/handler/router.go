package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	chathandler "github.com/qrchat-dev/qrchat/backend/internal/handler/chat"
	relayhandler "github.com/qrchat-dev/qrchat/backend/internal/handler/relay"
	translatehandler "github.com/qrchat-dev/qrchat/backend/internal/handler/translate"
	middlewarePkg "github.com/qrchat-dev/qrchat/backend/internal/middleware"
	translateservice "github.com/qrchat-dev/qrchat/backend/internal/service/translate"
	"github.com/qrchat-dev/qrchat/backend/internal/store"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(s *store.Store, translateSvc *translateservice.Service) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	chatHandler := chathandler.New(s)
	translateHandler := translatehandler.New(translateSvc)
	relayHandler := relayhandler.New(s, translateSvc)

	r.Route("/api", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)
		translateHandler.RegisterRoutes(api)
	})

	relayHandler.RegisterRoutes(r)

	return r
}
