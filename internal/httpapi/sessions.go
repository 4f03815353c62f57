package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/orbital-ai/orbital/internal/data"
	"github.com/orbital-ai/orbital/internal/types"
	"github.com/orbital-ai/orbital/pkg/llm"
)

func sessionIDParam(r *http.Request) (types.SessionID, bool) {
	id := chi.URLParam(r, "sessionID")
	return types.SessionID(id), types.IsUUID(id)
}

// ListSessions returns session summaries, most recent first.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.store.ListSessions(r.Context())
	if err != nil {
		storeError(w, err)
		return
	}
	if summaries == nil {
		summaries = []types.SessionSummary{}
	}
	JSON(w, http.StatusOK, map[string]any{"sessions": summaries})
}

// CreateSession creates a new session.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string `json:"name"`
		CreatedBy string `json:"createdBy"`
	}
	// Empty body is fine; everything has a default.
	_ = json.NewDecoder(r.Body).Decode(&req)

	session, err := h.store.CreateSession(r.Context(), req.Name, req.CreatedBy)
	if err != nil {
		storeError(w, err)
		return
	}
	JSON(w, http.StatusCreated, session)
}

// GetSession returns the full session with messages.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(r)
	if !ok {
		Error(w, http.StatusBadRequest, "invalid session id")
		return
	}
	session, err := h.store.GetSession(r.Context(), id)
	if err != nil {
		storeError(w, err)
		return
	}
	JSON(w, http.StatusOK, session)
}

// RenameSession updates the session name.
func (h *Handler) RenameSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(r)
	if !ok {
		Error(w, http.StatusBadRequest, "invalid session id")
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		Error(w, http.StatusBadRequest, "name is required")
		return
	}
	if err := h.store.RenameSession(r.Context(), id, req.Name); err != nil {
		storeError(w, err)
		return
	}
	session, err := h.store.GetSession(r.Context(), id)
	if err != nil {
		storeError(w, err)
		return
	}
	JSON(w, http.StatusOK, session)
}

// DeleteSession removes a session, its artifacts, and its derived tables.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(r)
	if !ok {
		Error(w, http.StatusBadRequest, "invalid session id")
		return
	}
	if err := h.dropSessionDerivedTables(r, id); err != nil {
		storeError(w, err)
		return
	}
	if err := h.store.DeleteSession(r.Context(), id); err != nil {
		storeError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// PurgeEmptySessions deletes all sessions without user messages.
func (h *Handler) PurgeEmptySessions(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.store.DeleteEmptySessions(r.Context())
	if err != nil {
		storeError(w, err)
		return
	}
	for _, id := range deleted {
		if err := h.dropSessionDerivedTables(r, id); err != nil {
			storeError(w, err)
			return
		}
	}
	JSON(w, http.StatusOK, map[string]any{"deleted": len(deleted)})
}

func (h *Handler) dropSessionDerivedTables(r *http.Request, id types.SessionID) error {
	loader := data.NewLoader(h.engine, id, nil)
	derived, err := loader.ListDerivedTables(r.Context())
	if err != nil {
		return err
	}
	for _, d := range derived {
		if err := h.engine.DropTable(r.Context(), d.PhysicalName); err != nil {
			return err
		}
	}
	return nil
}

// GenerateTitle asks the model for a short session title based on the first
// exchange.
func (h *Handler) GenerateTitle(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(r)
	if !ok {
		Error(w, http.StatusBadRequest, "invalid session id")
		return
	}
	session, err := h.store.GetSession(r.Context(), id)
	if err != nil {
		storeError(w, err)
		return
	}

	var excerpt strings.Builder
	for _, m := range session.Messages {
		if m.Content == "" {
			continue
		}
		fmt.Fprintf(&excerpt, "%s: %s\n", m.Role, truncateRunes(m.Content, 500))
		if excerpt.Len() > 2000 {
			break
		}
	}
	if excerpt.Len() == 0 {
		Error(w, http.StatusBadRequest, "session has no messages to title")
		return
	}

	resp, err := h.provider.Complete(r.Context(), []llm.Message{
		{Role: "system", Content: "Generate a concise title (at most 6 words) for this data analysis conversation. Respond with the title only, no quotes."},
		{Role: "user", Content: excerpt.String()},
	}, nil)
	if err != nil {
		Error(w, http.StatusBadGateway, fmt.Sprintf("generate title: %s", err))
		return
	}

	title := strings.Trim(strings.TrimSpace(resp.Content), `"`)
	if title == "" {
		Error(w, http.StatusBadGateway, "model returned an empty title")
		return
	}
	if err := h.store.RenameSession(r.Context(), id, title); err != nil {
		storeError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"title": title})
}

// SessionSchema returns everything the agent can see: dataset tables plus
// derived tables.
func (h *Handler) SessionSchema(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(r)
	if !ok {
		Error(w, http.StatusBadRequest, "invalid session id")
		return
	}
	datasets, err := h.store.ListAttachedDatasets(r.Context(), id)
	if err != nil {
		storeError(w, err)
		return
	}
	loader := data.NewLoader(h.engine, id, datasets)
	schema, err := loader.GetSchema(r.Context())
	if err != nil {
		storeError(w, err)
		return
	}
	JSON(w, http.StatusOK, schema)
}

// AppendEvent records a system event message on the session, e.g. a dataset
// attach notice shown in the transcript.
func (h *Handler) AppendEvent(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(r)
	if !ok {
		Error(w, http.StatusBadRequest, "invalid session id")
		return
	}
	var req struct {
		Content string          `json:"content"`
		Event   json.RawMessage `json:"event"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Content == "" && len(req.Event) == 0 {
		Error(w, http.StatusBadRequest, "content or event is required")
		return
	}

	session, err := h.store.GetSession(r.Context(), id)
	if err != nil {
		storeError(w, err)
		return
	}
	msg := types.Message{
		ID:          types.NewMessageID(),
		Role:        types.RoleSystem,
		Content:     req.Content,
		At:          time.Now().UTC(),
		SystemEvent: req.Event,
	}
	updated, err := h.store.AppendMessages(r.Context(), id, []types.Message{msg}, session.Version)
	if err != nil {
		storeError(w, err)
		return
	}
	JSON(w, http.StatusOK, updated)
}

// ListSessionDatasets returns the datasets attached to a session.
func (h *Handler) ListSessionDatasets(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(r)
	if !ok {
		Error(w, http.StatusBadRequest, "invalid session id")
		return
	}
	datasets, err := h.store.ListAttachedDatasets(r.Context(), id)
	if err != nil {
		storeError(w, err)
		return
	}
	if datasets == nil {
		datasets = []*types.Dataset{}
	}
	JSON(w, http.StatusOK, map[string]any{"datasets": datasets})
}

// AttachDataset links a dataset to the session.
func (h *Handler) AttachDataset(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(r)
	if !ok {
		Error(w, http.StatusBadRequest, "invalid session id")
		return
	}
	var req struct {
		DatasetID string `json:"datasetId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !types.IsUUID(req.DatasetID) {
		Error(w, http.StatusBadRequest, "datasetId is required")
		return
	}
	if _, err := h.store.GetDataset(r.Context(), types.DatasetID(req.DatasetID)); err != nil {
		storeError(w, err)
		return
	}
	if err := h.store.AttachDataset(r.Context(), id, types.DatasetID(req.DatasetID)); err != nil {
		storeError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "attached"})
}

// DetachDataset unlinks a dataset from the session. Derived tables built
// from it remain; they belong to the session.
func (h *Handler) DetachDataset(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(r)
	if !ok {
		Error(w, http.StatusBadRequest, "invalid session id")
		return
	}
	var req struct {
		DatasetID string `json:"datasetId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || !types.IsUUID(req.DatasetID) {
		Error(w, http.StatusBadRequest, "datasetId is required")
		return
	}
	if err := h.store.DetachDataset(r.Context(), id, types.DatasetID(req.DatasetID)); err != nil {
		storeError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "detached"})
}

// ListDerivedTables returns the session's derived tables with metadata.
func (h *Handler) ListDerivedTables(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionIDParam(r)
	if !ok {
		Error(w, http.StatusBadRequest, "invalid session id")
		return
	}
	loader := data.NewLoader(h.engine, id, nil)
	derived, err := loader.ListDerivedTables(r.Context())
	if err != nil {
		storeError(w, err)
		return
	}
	if derived == nil {
		derived = []types.DerivedTable{}
	}
	JSON(w, http.StatusOK, map[string]any{"derivedTables": derived})
}

func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
