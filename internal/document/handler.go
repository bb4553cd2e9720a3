package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"collabnote/internal/document/model"
	"collabnote/internal/document/service"
	"collabnote/internal/identity"
	"collabnote/pkg/logger"

	"github.com/go-chi/chi/v5"
)

type DocumentHandler struct {
	Service *service.DocumentService
}

func NewDocumentHandler(service *service.DocumentService) *DocumentHandler {
	return &DocumentHandler{Service: service}
}

// Routes mounts the document API. Every route expects an authenticated user
// in the request context.
func (h *DocumentHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.ListDocuments)
	r.Post("/", h.CreateDocument)
	r.Route("/{docID}", func(r chi.Router) {
		r.Get("/", h.GetDocument)
		r.Put("/", h.UpdateDocument)
		r.Delete("/", h.DeleteDocument)
		r.Get("/cursors", h.GetCursors)
		r.Post("/cursors", h.SaveCursor)
	})
	return r
}

func (h *DocumentHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	docs, err := h.Service.ListDocuments(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (h *DocumentHandler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req model.CreateDocRequest
	_ = json.NewDecoder(r.Body).Decode(&req) // Ignore error, default to empty

	doc, err := h.Service.CreateDocument(r.Context(), user.ID, req)
	if err != nil {
		logger.Sugar.Errorf("Handler: Failed to create document: %v", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, model.CreateDocResponse{DocID: doc.ID})
}

func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}
	doc, err := h.Service.GetDocument(r.Context(), chi.URLParam(r, "docID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *DocumentHandler) UpdateDocument(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req model.UpdateDocRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	docID := chi.URLParam(r, "docID")
	doc, err := h.Service.UpdateDocument(r.Context(), docID, user.ID, req)
	if err != nil {
		logger.Sugar.Errorf("Handler: Failed to update doc %s: %v", docID, err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (h *DocumentHandler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	docID := chi.URLParam(r, "docID")
	if err := h.Service.DeleteDocument(r.Context(), docID, user.ID); err != nil {
		logger.Sugar.Errorf("Handler: Failed to delete document %s: %v", docID, err)
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *DocumentHandler) GetCursors(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireUser(w, r); !ok {
		return
	}
	cursors, err := h.Service.GetCursors(r.Context(), chi.URLParam(r, "docID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cursors)
}

func (h *DocumentHandler) SaveCursor(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req model.CursorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	cursor, err := h.Service.SaveCursor(r.Context(), chi.URLParam(r, "docID"), user.ID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cursor)
}

func requireUser(w http.ResponseWriter, r *http.Request) (identity.User, bool) {
	user, ok := identity.FromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	}
	return user, ok
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Sugar.Errorf("Handler: Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, model.ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, model.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "Database error", http.StatusInternalServerError)
	}
}
