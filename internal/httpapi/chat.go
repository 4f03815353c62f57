package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/orbital-ai/orbital/internal/orchestrator"
	"github.com/orbital-ai/orbital/internal/types"
	"github.com/orbital-ai/orbital/pkg/llm"
)

// maxMessageChars bounds a single chat message.
const maxMessageChars = 50000

type chatRequest struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`
	Model     string `json:"model,omitempty"`
}

type chatResponse struct {
	MessageID    string              `json:"messageId"`
	Response     string              `json:"response"`
	IsQuestion   bool                `json:"isQuestion,omitempty"`
	IsError      bool                `json:"isError,omitempty"`
	Charts       []types.ChartSpec   `json:"charts,omitempty"`
	Graphs       []types.GraphSpec   `json:"graphs,omitempty"`
	ToolCalls    []types.ToolCall    `json:"toolCalls,omitempty"`
	QueryResults []types.QueryResult `json:"queryResults,omitempty"`
	TokenUsage   *types.TokenUsage   `json:"tokenUsage,omitempty"`
	Model        string              `json:"model"`
}

// Chat runs one turn against a session. The request blocks until the turn
// finishes; turns on the same session queue behind each other.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Message == "" {
		Error(w, http.StatusBadRequest, "message cannot be empty")
		return
	}
	if len(req.Message) > maxMessageChars {
		Error(w, http.StatusBadRequest, "message too long")
		return
	}
	sessionID := types.SessionID(req.SessionID)
	if !types.IsUUID(req.SessionID) {
		Error(w, http.StatusBadRequest, "invalid session id")
		return
	}
	model := h.model
	if req.Model != "" {
		if _, ok := llm.KnownModels[req.Model]; !ok {
			Error(w, http.StatusBadRequest, fmt.Sprintf("unknown model %q; see GET /api/models", req.Model))
			return
		}
		model = req.Model
	}
	if _, err := h.store.GetSession(r.Context(), sessionID); err != nil {
		storeError(w, err)
		return
	}

	done := make(chan *orchestrator.Outcome, 1)
	turn := &orchestrator.Turn{
		ID:        types.NewTurnID(),
		SessionID: sessionID,
		UserText:  req.Message,
		Model:     req.Model,
		Ctx:       r.Context(),
		OnComplete: func(o *orchestrator.Outcome) {
			done <- o
		},
	}
	if err := h.queue.Enqueue(turn); err != nil {
		status := http.StatusServiceUnavailable
		if errors.Is(err, orchestrator.ErrSessionBusy) {
			status = http.StatusConflict
		}
		Error(w, status, err.Error())
		return
	}

	outcome := <-done
	if outcome.Message == nil {
		// Nothing was persisted; the session itself was unreachable.
		err := outcome.Err
		if err == nil {
			err = errors.New("turn produced no message")
		}
		storeError(w, err)
		return
	}

	msg := outcome.Message
	JSON(w, http.StatusOK, chatResponse{
		MessageID:    string(msg.ID),
		Response:     msg.Content,
		IsQuestion:   msg.IsQuestion,
		IsError:      msg.IsError,
		Charts:       msg.Charts,
		Graphs:       msg.Graphs,
		ToolCalls:    msg.ToolCalls,
		QueryResults: msg.QueryResults,
		TokenUsage:   msg.TokenUsage,
		Model:        model,
	})
}
