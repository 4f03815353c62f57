package tools

import (
	"context"
	"fmt"
	"strings"
	"testing"
)

// chainEdges builds inserts for a path graph over n distinct nodes.
func chainEdges(n int) []string {
	out := make([]string, 0, n-1)
	for i := 0; i < n-1; i++ {
		out = append(out, fmt.Sprintf(
			`INSERT INTO %%q VALUES ('n%03d', 'n%03d', %d)`, i, i+1, i,
		))
	}
	return out
}

func TestGraphAtNodeLimit(t *testing.T) {
	env := testEnv(t, "edges",
		`CREATE TABLE %q (src TEXT, dst TEXT, w REAL)`,
		chainEdges(200)...,
	)
	exec := &GraphExecutor{}

	res, err := exec.Execute(context.Background(), env, map[string]any{
		"table": "edges", "source": "src", "target": "dst",
	})
	if err != nil {
		t.Fatalf("200 nodes should be accepted, got %v", err)
	}
	spec := res.Graphs[0]
	if len(spec.Nodes) != 200 {
		t.Errorf("expected 200 nodes, got %d", len(spec.Nodes))
	}
	if len(spec.Edges) != 199 {
		t.Errorf("expected 199 edges, got %d", len(spec.Edges))
	}
	if spec.Type != "network" {
		t.Errorf("expected network type, got %q", spec.Type)
	}
	if spec.Layout != "force" {
		t.Errorf("expected default force layout, got %q", spec.Layout)
	}
}

func TestGraphOverNodeLimitRejected(t *testing.T) {
	env := testEnv(t, "edges",
		`CREATE TABLE %q (src TEXT, dst TEXT, w REAL)`,
		chainEdges(201)...,
	)
	exec := &GraphExecutor{}

	res, err := exec.Execute(context.Background(), env, map[string]any{
		"table": "edges", "source": "src", "target": "dst",
	})
	if err == nil {
		t.Fatal("201 distinct nodes should be rejected")
	}
	if res != nil {
		t.Error("rejected graph should produce no result")
	}
	if !strings.Contains(err.Error(), "201") {
		t.Errorf("expected node count in error, got %v", err)
	}
	if !strings.Contains(err.Error(), "GROUP BY") {
		t.Errorf("expected aggregation hint in error, got %v", err)
	}
}

func TestGraphSkipsNullEndpoints(t *testing.T) {
	env := testEnv(t, "edges",
		`CREATE TABLE %q (src TEXT, dst TEXT, w REAL)`,
		`INSERT INTO %q VALUES ('a', 'b', 1.5)`,
		`INSERT INTO %q VALUES ('a', NULL, 2)`,
		`INSERT INTO %q VALUES (NULL, 'b', 3)`,
	)
	exec := &GraphExecutor{}

	res, err := exec.Execute(context.Background(), env, map[string]any{
		"table": "edges", "source": "src", "target": "dst", "weight": "w",
	})
	if err != nil {
		t.Fatal(err)
	}
	spec := res.Graphs[0]
	if len(spec.Edges) != 1 {
		t.Fatalf("expected 1 edge after dropping null endpoints, got %d", len(spec.Edges))
	}
	if spec.Edges[0]["weight"] != 1.5 {
		t.Errorf("expected weight 1.5, got %v", spec.Edges[0]["weight"])
	}
	if len(spec.Nodes) != 2 {
		t.Errorf("expected 2 nodes, got %d", len(spec.Nodes))
	}
}

func TestGraphDefaultTitle(t *testing.T) {
	env := testEnv(t, "edges",
		`CREATE TABLE %q (from_airport TEXT, to_airport TEXT)`,
		`INSERT INTO %q VALUES ('BOS', 'JFK')`,
	)
	exec := &GraphExecutor{}

	res, err := exec.Execute(context.Background(), env, map[string]any{
		"table": "edges", "source": "from_airport", "target": "to_airport",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Graphs[0].Title != "From Airport to To Airport network" {
		t.Errorf("unexpected default title %q", res.Graphs[0].Title)
	}
}
