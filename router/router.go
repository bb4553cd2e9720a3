package router

import (
	"database/sql"
	"encoding/json"
	"net/http"

	"collabnote/config"
	docHandler "collabnote/internal/document"
	"collabnote/internal/document/repository"
	"collabnote/internal/document/service"
	"collabnote/middleware"
	"collabnote/socket"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Setup wires the websocket gateway, the document API, health and metrics
// endpoints into one handler.
func Setup(db *sql.DB, hub *socket.Hub, cfg config.AppConfig, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	auth := middleware.Auth(cfg.JWTSecret)

	// WebSocket
	r.With(auth).Get(cfg.Socket.Path, func(w http.ResponseWriter, r *http.Request) {
		socket.ServeWs(hub, w, r)
	})

	// REST API
	docRepo := repository.NewDocumentRepository(db)
	docService := service.NewDocumentService(docRepo, hub)
	documents := docHandler.NewDocumentHandler(docService)
	r.With(auth).Mount("/api/documents", documents.Routes())

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(hub.Stats())
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	return r
}
