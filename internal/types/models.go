// internal/types/models.go
package types

import (
	"encoding/json"
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message is one turn contribution in a session. Messages are append-only:
// once persisted they are never edited, only superseded client-side by ID.
type Message struct {
	ID           MessageID       `json:"id"`
	Role         Role            `json:"role"`
	Content      string          `json:"content"`
	At           time.Time       `json:"at"`
	Charts       []ChartSpec     `json:"charts,omitempty"`
	Graphs       []GraphSpec     `json:"graphs,omitempty"`
	ToolCalls    []ToolCall      `json:"toolCalls,omitempty"`
	QueryResults []QueryResult   `json:"queryResults,omitempty"`
	TokenUsage   *TokenUsage     `json:"tokenUsage,omitempty"`
	IsError      bool            `json:"isError,omitempty"`
	IsQuestion   bool            `json:"isQuestion,omitempty"`
	SystemEvent  json.RawMessage `json:"systemEvent,omitempty"`
}

// ToolCall is the audit record for one tool invocation within a turn.
// Error set means the tool's side effect did not commit (or is labeled
// partial in Output). DurationMs is recorded even on error.
type ToolCall struct {
	Tool       string          `json:"tool"`
	Input      json.RawMessage `json:"input"`
	DurationMs int64           `json:"durationMs"`
	Error      string          `json:"error,omitempty"`
	Output     string          `json:"output,omitempty"`
}

// MemoryEntry is one timestamped note in session memory.
type MemoryEntry struct {
	Content string    `json:"content"`
	AddedAt time.Time `json:"addedAt"`
}

// Memory accumulates per-session facts, preferences, corrections, and
// conclusions. Entries are appended or removed, never edited in place.
type Memory struct {
	Facts       []MemoryEntry `json:"facts"`
	Preferences []MemoryEntry `json:"preferences"`
	Corrections []MemoryEntry `json:"corrections"`
	Conclusions []MemoryEntry `json:"conclusions"`
}

// NewMemory returns an empty memory record with all categories present.
func NewMemory() Memory {
	return Memory{
		Facts:       []MemoryEntry{},
		Preferences: []MemoryEntry{},
		Corrections: []MemoryEntry{},
		Conclusions: []MemoryEntry{},
	}
}

// Entries returns the entry list for a category ("fact", "preference",
// "correction", "conclusion"), or nil for an unknown category.
func (m *Memory) Entries(category string) *[]MemoryEntry {
	switch category {
	case "fact":
		return &m.Facts
	case "preference":
		return &m.Preferences
	case "correction":
		return &m.Corrections
	case "conclusion":
		return &m.Conclusions
	}
	return nil
}

// Insight is a saved analysis highlight within a session.
type Insight struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	SavedAsArtifact bool      `json:"savedAsArtifact"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Session is a named, owned conversation. Version increments on every
// persisted mutation and backs optimistic concurrency on message appends.
type Session struct {
	ID        SessionID   `json:"id"`
	Name      string      `json:"name"`
	Owner     string      `json:"createdBy"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
	Version   int64       `json:"version"`
	Messages  []Message   `json:"messages"`
	Datasets  []DatasetID `json:"datasets"`
	Memory    Memory      `json:"memory"`
	Insights  []Insight   `json:"insights"`
}

// SessionSummary is the list-view projection of a session.
type SessionSummary struct {
	ID               SessionID `json:"id"`
	Name             string    `json:"name"`
	Owner            string    `json:"createdBy"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
	MessageCount     int       `json:"messageCount"`
	UserMessageCount int       `json:"userMessageCount"`
	DatasetCount     int       `json:"datasetCount"`
	ArtifactCount    int       `json:"artifactCount"`
}

type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// ColumnInfo describes one column of a stored table.
type ColumnInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// TableInfo describes one table of a dataset. PhysicalName is the backing
// table in the relational store; Name is the short name the agent uses.
type TableInfo struct {
	Name         string       `json:"name"`
	PhysicalName string       `json:"physicalName"`
	RowCount     int64        `json:"rowCount"`
	Columns      []ColumnInfo `json:"columns"`
}

// Dataset is a durable, ownable collection of tables. Tables are immutable
// once ingested; the agent creates derived tables instead of mutating them.
type Dataset struct {
	ID          DatasetID  `json:"id"`
	Name        string     `json:"name"`
	Owner       string     `json:"createdBy"`
	Visibility  Visibility `json:"visibility"`
	DerivedFrom string     `json:"derivedFrom,omitempty"`
	Tables      []TableInfo `json:"tables"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// DerivedTable is a session-scoped table materialized by a tool. It is
// visible to later tool calls in the same session and becomes durable only
// through explicit promotion into a Dataset.
type DerivedTable struct {
	Name         string       `json:"name"`
	PhysicalName string       `json:"physicalName"`
	RowCount     int64        `json:"rowCount"`
	Columns      []ColumnInfo `json:"columns"`
}

// TokenUsage is the per-turn context snapshot. Observability only; never
// used for correctness.
type TokenUsage struct {
	InputTokens  int `json:"inputTokens"`
	ContextLimit int `json:"contextLimit"`
}

// ReferenceLine marks a constant x or y value on a chart (e.g. a train/test
// split cutoff).
type ReferenceLine struct {
	Axis  string `json:"axis"`
	Value any    `json:"value"`
	Label string `json:"label,omitempty"`
}

// ChartMeta reports how the capping policy was applied to a chart.
type ChartMeta struct {
	TopN         int  `json:"top_n"`
	RowsReturned int  `json:"rows_returned"`
	Truncated    bool `json:"truncated"`
	GroupedOther bool `json:"grouped_other"`
	TailRows     int  `json:"tail_rows"`
	FetchLimit   int  `json:"fetch_limit"`
}

// ChartSpec is a declarative chart descriptor. The core validates structure
// only; rendering is a client concern.
type ChartSpec struct {
	Type           string           `json:"type"`
	Title          string           `json:"title"`
	Data           []map[string]any `json:"data"`
	X              string           `json:"x"`
	Y              string           `json:"y"`
	XLabel         string           `json:"x_label,omitempty"`
	YLabel         string           `json:"y_label,omitempty"`
	Color          string           `json:"color,omitempty"`
	Series         []string         `json:"series,omitempty"`
	Dashed         []string         `json:"dashed,omitempty"`
	ReferenceLines []ReferenceLine  `json:"reference_lines,omitempty"`
	Meta           ChartMeta        `json:"meta"`
}

// GraphSpec is a declarative node/edge network descriptor.
type GraphSpec struct {
	Type   string           `json:"type"`
	Title  string           `json:"title"`
	Nodes  []map[string]any `json:"nodes"`
	Edges  []map[string]any `json:"edges"`
	Layout string           `json:"layout"`
}

// QueryResult is a snapshot of rows returned by run_sql during a turn.
type QueryResult struct {
	Data     []map[string]any `json:"data"`
	Columns  []string         `json:"columns"`
	RowCount int              `json:"row_count"`
}

// Artifact is a durable, shareable visualization or report snapshot.
type Artifact struct {
	ID            ArtifactID      `json:"id"`
	SessionID     SessionID       `json:"sessionId"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Visualization json.RawMessage `json:"visualization"`
	DataSnapshot  json.RawMessage `json:"dataSnapshot"`
	CreatedAt     time.Time       `json:"createdAt"`
}
