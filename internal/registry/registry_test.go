package registry

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestDefaultRegistryTools(t *testing.T) {
	r := Default()

	expected := []string{
		ToolGetSchema, ToolGetStats, ToolRunSQL, ToolCreateChart,
		ToolCreateGraph, ToolTrainModel, ToolForecast, ToolAskUser,
		ToolUpdateMemory, ToolCreateReport,
	}
	specs := r.List()
	if len(specs) != len(expected) {
		t.Fatalf("expected %d tools, got %d", len(expected), len(specs))
	}
	for i, name := range expected {
		if specs[i].Name != name {
			t.Errorf("expected tool %d to be %q, got %q", i, name, specs[i].Name)
		}
		if !r.Has(name) {
			t.Errorf("Has(%q) = false", name)
		}
	}
	if r.Has("drop_database") {
		t.Error("Has should be false for undeclared tools")
	}
}

func TestAsLLMToolsPreservesOrder(t *testing.T) {
	r := Default()
	llmTools := r.AsLLMTools()
	specs := r.List()
	if len(llmTools) != len(specs) {
		t.Fatalf("expected %d llm tools, got %d", len(specs), len(llmTools))
	}
	for i := range specs {
		if llmTools[i].Function.Name != specs[i].Name {
			t.Errorf("tool %d: expected %q, got %q", i, specs[i].Name, llmTools[i].Function.Name)
		}
		if llmTools[i].Type != "function" {
			t.Errorf("tool %d: expected type function, got %q", i, llmTools[i].Type)
		}
	}
}

func TestNewRejectsDuplicates(t *testing.T) {
	schema := json.RawMessage(`{"type": "object", "properties": {}, "required": []}`)
	_, err := New([]ToolSpec{
		{Name: "twice", Parameters: schema},
		{Name: "twice", Parameters: schema},
	})
	if err == nil {
		t.Fatal("expected error for duplicate tool name")
	}
}

func TestValidateRequiredField(t *testing.T) {
	r := Default()

	_, verr := r.Validate(ToolGetStats, json.RawMessage(`{}`))
	if verr == nil {
		t.Fatal("expected validation error for missing required field")
	}
	if verr.Field != "table" {
		t.Errorf("expected field table, got %q", verr.Field)
	}

	args, verr := r.Validate(ToolGetStats, json.RawMessage(`{"table": "orders"}`))
	if verr != nil {
		t.Fatalf("unexpected validation error: %v", verr)
	}
	if args["table"] != "orders" {
		t.Errorf("expected parsed args to carry table, got %v", args["table"])
	}
}

func TestValidateTypeMismatch(t *testing.T) {
	r := Default()

	_, verr := r.Validate(ToolRunSQL, json.RawMessage(`{"sql": 42}`))
	if verr == nil {
		t.Fatal("expected validation error for numeric sql field")
	}
	if verr.Field != "sql" {
		t.Errorf("expected field sql, got %q", verr.Field)
	}
	if !strings.Contains(verr.Error(), "string") {
		t.Errorf("expected type name in error, got %q", verr.Error())
	}
}

func TestValidateEnum(t *testing.T) {
	r := Default()

	_, verr := r.Validate(ToolCreateChart, json.RawMessage(
		`{"table": "t", "chart_type": "sankey", "x": "a", "y": "b"}`,
	))
	if verr == nil {
		t.Fatal("expected validation error for unknown chart type")
	}
	if verr.Field != "chart_type" {
		t.Errorf("expected field chart_type, got %q", verr.Field)
	}

	_, verr = r.Validate(ToolCreateChart, json.RawMessage(
		`{"table": "t", "chart_type": "bar", "x": "a", "y": "b"}`,
	))
	if verr != nil {
		t.Fatalf("unexpected validation error: %v", verr)
	}
}

func TestValidateArrayItems(t *testing.T) {
	r := Default()

	_, verr := r.Validate(ToolTrainModel, json.RawMessage(
		`{"table": "t", "target": "y", "features": ["a", 7]}`,
	))
	if verr == nil {
		t.Fatal("expected validation error for non-string feature entry")
	}

	_, verr = r.Validate(ToolTrainModel, json.RawMessage(
		`{"table": "t", "target": "y", "features": ["a", "b"]}`,
	))
	if verr != nil {
		t.Fatalf("unexpected validation error: %v", verr)
	}
}

func TestValidateUnknownTool(t *testing.T) {
	r := Default()
	_, verr := r.Validate("nope", json.RawMessage(`{}`))
	if verr == nil {
		t.Fatal("expected validation error for unknown tool")
	}
}

func TestValidateMalformedArguments(t *testing.T) {
	r := Default()
	_, verr := r.Validate(ToolRunSQL, json.RawMessage(`[1, 2]`))
	if verr == nil {
		t.Fatal("expected validation error for non-object arguments")
	}
}

func TestValidateIgnoresUnknownFields(t *testing.T) {
	r := Default()
	args, verr := r.Validate(ToolRunSQL, json.RawMessage(
		`{"sql": "SELECT 1", "provider_hint": true}`,
	))
	if verr != nil {
		t.Fatalf("unexpected validation error: %v", verr)
	}
	if args["provider_hint"] != true {
		t.Error("unknown fields should pass through to the parsed args")
	}
}

func TestValidateNilValueSkipsChecks(t *testing.T) {
	r := Default()
	_, verr := r.Validate(ToolCreateChart, json.RawMessage(
		`{"table": "t", "chart_type": "bar", "x": "a", "y": "b", "title": null}`,
	))
	if verr != nil {
		t.Fatalf("null optional field should validate, got %v", verr)
	}
}
