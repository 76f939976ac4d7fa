package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/studyhall/pairhub/internal/handler/pair"
	middlewarePkg "github.com/studyhall/pairhub/internal/middleware"
	pairService "github.com/studyhall/pairhub/internal/service/pair"
	"github.com/studyhall/pairhub/pkg/utils"
)

// NewRouter wires HTTP and websocket routes to the session service. The
// relay is passed in so the caller can close its connections on shutdown.
func NewRouter(pairSvc *pairService.Service, relay *pair.Relay, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(allowedOrigins))

	pairHandler := pair.New(pairSvc)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		pairHandler.RegisterRoutes(api)
		relay.RegisterWebSocketRoutes(api)
	})

	return r
}
