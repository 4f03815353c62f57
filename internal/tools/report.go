package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/orbital-ai/orbital/internal/registry"
	"github.com/orbital-ai/orbital/internal/types"
)

const maxReportSections = 8

// ReportSection is one block of a rendered report: narrative markdown or an
// embedded chart.
type ReportSection struct {
	Type    string           `json:"type"`
	Content string           `json:"content,omitempty"`
	Chart   *types.ChartSpec `json:"chart,omitempty"`
}

// ReportDocument is the artifact payload create_report persists.
type ReportDocument struct {
	Title    string          `json:"title"`
	Sections []ReportSection `json:"sections"`
}

// ReportExecutor implements create_report. Chart sections run through the
// same builder as create_chart so capping behaves identically, and the whole
// document is persisted as a durable artifact.
type ReportExecutor struct{}

func (e *ReportExecutor) Name() string   { return registry.ToolCreateReport }
func (e *ReportExecutor) Mutating() bool { return true }

func (e *ReportExecutor) Execute(ctx context.Context, env *Env, args map[string]any) (*Result, error) {
	title := strings.TrimSpace(argString(args, "title", ""))
	if title == "" {
		return nil, fmt.Errorf("report title cannot be empty")
	}

	rawSections, _ := args["sections"].([]any)
	if len(rawSections) == 0 {
		return nil, fmt.Errorf("report needs at least one section")
	}
	if len(rawSections) > maxReportSections {
		return nil, fmt.Errorf("report has %d sections (max %d)", len(rawSections), maxReportSections)
	}

	doc := ReportDocument{Title: title}
	result := &Result{}
	for i, raw := range rawSections {
		section, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("section %d is not an object", i+1)
		}
		switch argString(section, "type", "") {
		case "text":
			content := strings.TrimSpace(argString(section, "content", ""))
			if content == "" {
				return nil, fmt.Errorf("text section %d has no content", i+1)
			}
			doc.Sections = append(doc.Sections, ReportSection{Type: "text", Content: content})
		case "chart":
			spec, err := buildChart(ctx, env, section)
			if err != nil {
				return nil, fmt.Errorf("chart section %d: %w", i+1, err)
			}
			doc.Sections = append(doc.Sections, ReportSection{Type: "chart", Chart: spec})
			result.Charts = append(result.Charts, *spec)
		default:
			return nil, fmt.Errorf("section %d has unknown type %q", i+1, argString(section, "type", ""))
		}
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}

	artifact := &types.Artifact{
		SessionID:     env.SessionID,
		Name:          title,
		Description:   fmt.Sprintf("Report with %d sections", len(doc.Sections)),
		Visualization: payload,
	}
	if err := env.Artifacts.CreateArtifact(ctx, artifact); err != nil {
		return nil, fmt.Errorf("save report: %w", err)
	}

	result.Output = jsonOutput(map[string]any{
		"message":     fmt.Sprintf("Report '%s' created with %d sections", title, len(doc.Sections)),
		"artifact_id": artifact.ID,
	})
	return result, nil
}
