// Package httpapi provides the HTTP surface: the chat endpoint plus REST
// for sessions, datasets, and artifacts.
package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/orbital-ai/orbital/internal/data"
	"github.com/orbital-ai/orbital/internal/orchestrator"
	"github.com/orbital-ai/orbital/internal/store"
	"github.com/orbital-ai/orbital/internal/types"
	"github.com/orbital-ai/orbital/pkg/llm"
)

// Handler holds the dependencies shared by all endpoints.
type Handler struct {
	store    *store.Store
	engine   *data.Engine
	queue    *orchestrator.Queue
	provider llm.Provider
	model    string
}

// NewHandler creates a Handler with common dependencies. provider is used
// directly only by generate-title; chat goes through the queue.
func NewHandler(st *store.Store, engine *data.Engine, queue *orchestrator.Queue, provider llm.Provider, model string) *Handler {
	return &Handler{
		store:    st,
		engine:   engine,
		queue:    queue,
		provider: provider,
		model:    model,
	}
}

// Router assembles the full route tree.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(CORS([]string{"*"}))

	r.Route("/api", func(r chi.Router) {
		r.Post("/chat", h.Chat)

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", h.ListSessions)
			r.Post("/", h.CreateSession)
			r.Delete("/", h.PurgeEmptySessions)
			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", h.GetSession)
				r.Put("/", h.RenameSession)
				r.Delete("/", h.DeleteSession)
				r.Post("/generate-title", h.GenerateTitle)
				r.Get("/schema", h.SessionSchema)
				r.Post("/events", h.AppendEvent)
				r.Get("/datasets", h.ListSessionDatasets)
				r.Post("/datasets", h.AttachDataset)
				r.Delete("/datasets", h.DetachDataset)
				r.Get("/derived-tables", h.ListDerivedTables)
			})
		})

		r.Route("/datasets", func(r chi.Router) {
			r.Get("/", h.ListDatasets)
			r.Post("/upload", h.UploadDataset)
			r.Post("/promote", h.PromoteDerivedTable)
			r.Route("/{datasetID}", func(r chi.Router) {
				r.Get("/", h.GetDataset)
				r.Put("/", h.UpdateDataset)
				r.Delete("/", h.DeleteDataset)
				r.Get("/tables/{table}/preview", h.PreviewTable)
			})
		})

		r.Route("/artifacts", func(r chi.Router) {
			r.Get("/", h.ListArtifacts)
			r.Get("/{artifactID}", h.GetArtifact)
		})

		r.Get("/models", h.ListModels)
	})

	return r
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// storeError maps store errors to HTTP status codes.
func storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, types.ErrNotFound):
		Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, types.ErrVersionConflict):
		Error(w, http.StatusConflict, err.Error())
	default:
		Error(w, http.StatusInternalServerError, err.Error())
	}
}

// CORS returns middleware that handles CORS headers.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := false
			for _, o := range allowedOrigins {
				if o == "*" || o == origin {
					allowed = true
					break
				}
			}
			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ListModels returns the selectable models and their context windows.
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	models := make([]llm.ModelInfo, 0, len(llm.KnownModels))
	for _, info := range llm.KnownModels {
		models = append(models, info)
	}
	JSON(w, http.StatusOK, map[string]any{
		"models":  models,
		"default": h.model,
	})
}
