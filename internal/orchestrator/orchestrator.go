// Package orchestrator runs the agentic turn loop: build context, call the
// model, execute requested tools, feed observations back, and persist the
// finished turn as an atomic (user, assistant) message pair.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/orbital-ai/orbital/internal/contextbuild"
	"github.com/orbital-ai/orbital/internal/data"
	"github.com/orbital-ai/orbital/internal/registry"
	"github.com/orbital-ai/orbital/internal/tools"
	"github.com/orbital-ai/orbital/internal/types"
	"github.com/orbital-ai/orbital/pkg/llm"
)

// maxRecordedOutput caps the tool output kept in the audit record. The full
// output still reaches the model as an observation.
const maxRecordedOutput = 2000

// persistTimeout bounds the final write. It uses a fresh context so a
// cancelled caller cannot leave a finished turn unpersisted.
const persistTimeout = 15 * time.Second

// Config holds the orchestrator's tunables.
type Config struct {
	MaxToolRounds int
	TurnTimeout   time.Duration
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
}

// Orchestrator executes turns. It is safe for concurrent use; per-session
// ordering is the Queue's job.
type Orchestrator struct {
	provider  llm.Provider
	builder   *contextbuild.Engine
	sessions  types.SessionStore
	artifacts types.ArtifactStore
	engine    *data.Engine
	registry  *registry.Registry
	executors tools.Set
	cfg       Config
	log       *slog.Logger
}

// New creates an Orchestrator with the given dependencies.
func New(
	provider llm.Provider,
	builder *contextbuild.Engine,
	sessions types.SessionStore,
	artifacts types.ArtifactStore,
	engine *data.Engine,
	reg *registry.Registry,
	executors tools.Set,
	cfg Config,
	log *slog.Logger,
) *Orchestrator {
	if log == nil {
		log = slog.Default()
	}
	return &Orchestrator{
		provider:  provider,
		builder:   builder,
		sessions:  sessions,
		artifacts: artifacts,
		engine:    engine,
		registry:  reg,
		executors: executors,
		cfg:       cfg,
		log:       log,
	}
}

// ProcessTurn executes one turn end to end. This is the function passed to
// Queue.SetProcessor.
func (o *Orchestrator) ProcessTurn(turn *Turn) error {
	ctx := turn.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, o.cfg.TurnTimeout)
	defer cancel()

	log := o.log.With("turn_id", string(turn.ID), "session_id", string(turn.SessionID))

	userMsg := types.Message{
		ID:      types.NewMessageID(),
		Role:    types.RoleUser,
		Content: turn.UserText,
		At:      time.Now().UTC(),
	}

	// ASSEMBLING_CONTEXT
	session, err := o.sessions.GetSession(ctx, turn.SessionID)
	if err != nil {
		turn.complete(&Outcome{State: StateFailed, Err: err})
		return fmt.Errorf("load session: %w", err)
	}

	datasets, err := o.sessions.ListAttachedDatasets(ctx, turn.SessionID)
	if err != nil {
		return o.failTurn(turn, session, userMsg, nil, fmt.Errorf("load datasets: %w", err))
	}
	loader := data.NewLoader(o.engine, turn.SessionID, datasets)
	derived, err := loader.ListDerivedTables(ctx)
	if err != nil {
		return o.failTurn(turn, session, userMsg, nil, fmt.Errorf("list derived tables: %w", err))
	}
	env := &tools.Env{
		SessionID: turn.SessionID,
		Loader:    loader,
		Sessions:  o.sessions,
		Artifacts: o.artifacts,
	}

	messages, usage, err := o.builder.Build(session, turn.UserText, datasets, derived)
	if err != nil {
		return o.failTurn(turn, session, userMsg, nil, fmt.Errorf("build context: %w", err))
	}

	var (
		records      []types.ToolCall
		charts       []types.ChartSpec
		graphs       []types.GraphSpec
		queryResults []types.QueryResult
		finalContent string
		isQuestion   bool
		answered     bool
	)

	llmTools := o.registry.AsLLMTools()
	provider := o.providerFor(turn)

rounds:
	for round := 0; round < o.cfg.MaxToolRounds; round++ {
		// AWAITING_MODEL
		resp, err := provider.Complete(ctx, messages, llmTools)
		if err != nil {
			if ctx.Err() != nil {
				return o.failTurn(turn, session, userMsg, records, errTurnCancelled)
			}
			return o.failTurn(turn, session, userMsg, records, fmt.Errorf("model request failed: %w", err))
		}
		if len(resp.ToolCalls) == 0 {
			finalContent = resp.Content
			answered = true
			break
		}

		messages = append(messages, llm.Message{
			Role:    "assistant",
			Content: resp.Content,
			Tools:   resp.ToolCalls,
		})

		// EXECUTING_TOOL
		for _, tc := range resp.ToolCalls {
			if tc.Function.Name == registry.ToolAskUser {
				finalContent = extractQuestion(tc.Function.Arguments)
				isQuestion = true
				answered = true
				records = append(records, types.ToolCall{
					Tool:  registry.ToolAskUser,
					Input: tc.Function.Arguments,
				})
				break rounds
			}

			observation, record, res := o.executeTool(ctx, env, tc)
			records = append(records, record)
			if record.Error != "" {
				log.Warn("tool failed", "tool", record.Tool, "error", record.Error)
			}
			if res != nil {
				charts = append(charts, res.Charts...)
				graphs = append(graphs, res.Graphs...)
				queryResults = append(queryResults, res.QueryResults...)
			}
			messages = append(messages, llm.Message{
				Role:       "tool",
				Content:    observation,
				ToolCallID: tc.ID,
			})

			if ctx.Err() != nil {
				return o.failTurn(turn, session, userMsg, records, errTurnCancelled)
			}
		}
	}

	if !answered {
		finalContent = fmt.Sprintf(
			"I reached the limit of %d tool rounds for a single turn before finishing. The tables and results produced so far are saved in this session; ask me to continue from where I stopped.",
			o.cfg.MaxToolRounds,
		)
	}

	// FINALIZING
	assistantMsg := types.Message{
		ID:           types.NewMessageID(),
		Role:         types.RoleAssistant,
		Content:      finalContent,
		At:           time.Now().UTC(),
		Charts:       charts,
		Graphs:       graphs,
		ToolCalls:    records,
		QueryResults: queryResults,
		TokenUsage:   usage,
		IsQuestion:   isQuestion,
	}

	updated, err := o.persistPair(session, userMsg, assistantMsg)
	if err != nil {
		turn.complete(&Outcome{State: StateFailed, Err: err})
		return fmt.Errorf("persist turn: %w", err)
	}

	log.Info("turn complete", "rounds", len(records), "question", isQuestion)
	turn.complete(&Outcome{State: StateDone, Session: updated, Message: &assistantMsg})
	return nil
}

var errTurnCancelled = errors.New("turn cancelled")

// providerFor honors a per-turn model override when the provider supports
// switching models. Providers that don't just serve their configured model.
func (o *Orchestrator) providerFor(turn *Turn) llm.Provider {
	if turn.Model == "" {
		return o.provider
	}
	if ms, ok := o.provider.(llm.ModelSelector); ok {
		return ms.WithModel(turn.Model)
	}
	return o.provider
}

// executeTool validates and dispatches one tool call, recording timing and
// outcome. Tool failures become observations for the model, never turn
// failures.
func (o *Orchestrator) executeTool(ctx context.Context, env *tools.Env, tc llm.ToolCall) (string, types.ToolCall, *tools.Result) {
	record := types.ToolCall{
		Tool:  tc.Function.Name,
		Input: tc.Function.Arguments,
	}
	start := time.Now()
	defer func() {
		record.DurationMs = time.Since(start).Milliseconds()
	}()

	args, verr := o.registry.Validate(tc.Function.Name, tc.Function.Arguments)
	if verr != nil {
		record.Error = verr.Error()
		return "error: " + verr.Error(), record, nil
	}

	exec := o.executors.Get(tc.Function.Name)
	if exec == nil {
		record.Error = fmt.Sprintf("unknown tool %q", tc.Function.Name)
		return "error: " + record.Error, record, nil
	}

	timeout := o.cfg.ReadTimeout
	if exec.Mutating() {
		timeout = o.cfg.WriteTimeout
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	res, err := exec.Execute(tctx, env, args)
	if err != nil {
		record.Error = err.Error()
		return "error: " + err.Error(), record, nil
	}
	record.Output = truncate(res.Output, maxRecordedOutput)
	return res.Output, record, res
}

// failTurn persists the user message together with an error-flagged
// assistant message, so the user's text survives a failed turn, then
// reports the failure through the turn's callback.
func (o *Orchestrator) failTurn(turn *Turn, session *types.Session, userMsg types.Message, records []types.ToolCall, cause error) error {
	content := "Something went wrong processing this message. Please try again."
	if errors.Is(cause, errTurnCancelled) {
		content = "This turn was cancelled before it finished."
	}
	errMsg := types.Message{
		ID:        types.NewMessageID(),
		Role:      types.RoleAssistant,
		Content:   content,
		At:        time.Now().UTC(),
		ToolCalls: records,
		IsError:   true,
	}

	updated, perr := o.persistPair(session, userMsg, errMsg)
	if perr != nil {
		o.log.Error("persist failed turn", "session_id", string(turn.SessionID), "error", perr)
	}
	turn.complete(&Outcome{State: StateFailed, Session: updated, Message: &errMsg, Err: cause})
	return cause
}

// persistPair appends the (user, assistant) pair atomically under optimistic
// concurrency. A version conflict means another writer touched the session
// mid-turn (memory updates excluded); reload once and retry against the new
// version.
func (o *Orchestrator) persistPair(session *types.Session, userMsg, assistantMsg types.Message) (*types.Session, error) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	pair := []types.Message{userMsg, assistantMsg}
	updated, err := o.sessions.AppendMessages(ctx, session.ID, pair, session.Version)
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, types.ErrVersionConflict) {
		return nil, err
	}

	fresh, gerr := o.sessions.GetSession(ctx, session.ID)
	if gerr != nil {
		return nil, gerr
	}
	return o.sessions.AppendMessages(ctx, session.ID, pair, fresh.Version)
}

func extractQuestion(raw json.RawMessage) string {
	var args struct {
		Question string `json:"question"`
	}
	if err := json.Unmarshal(raw, &args); err == nil && args.Question != "" {
		return args.Question
	}
	return "Could you clarify what you'd like me to do?"
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n[truncated]"
}
