package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AaronLay10/SentientPlay/internal/events"
)

const runtimeYAML = `version: 1
project:
  id: demo
engine:
  seed: 42
paths:
  scene: scene.yaml
  graphs: graphs
`

const demoScene = `version: 1
entities:
  - id: world
    width: 200
    height: 200
  - id: hero
    parent: world
    x: 10
    y: 10
    behavior: mover
`

const moverGraph = `{"id":"mover","nodes":[
	{"id":"u","kind":"signal","signal":"Update"},
	{"id":"m","kind":"action","component":"transform","method":"translate","inputs":{"dx":1,"dy":1}}
],"edges":[{"from":"u","to":"m"}]}`

const warpGraph = `{"id":"warp","nodes":[
	{"id":"u","kind":"signal","signal":"Update"},
	{"id":"x","kind":"action","component":"teleporter","method":"warp"}
],"edges":[{"from":"u","to":"x"}]}`

// writeProject lays out runtime.yaml, scene.yaml and graphs/ in a temp dir
// and returns the runtime.yaml path.
func writeProject(t *testing.T, scene string, graphs map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "runtime.yaml"), []byte(runtimeYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "scene.yaml"), []byte(scene), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "graphs"), 0o755))
	for name, body := range graphs {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "graphs", name), []byte(body), 0o644))
	}
	return filepath.Join(dir, "runtime.yaml")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidateValidProject(t *testing.T) {
	path := writeProject(t, demoScene, map[string]string{"mover.json": moverGraph})

	out, err := execute(t, "--config", path, "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "ok   mover (2 nodes)")
	assert.Contains(t, out, "valid: 2 entities, 1 graphs")
}

func TestValidateReportsProblems(t *testing.T) {
	scene := demoScene + `  - id: ghost
    parent: world
    behavior: haunt
`
	path := writeProject(t, scene, map[string]string{
		"mover.json": moverGraph,
		"warp.json":  warpGraph,
		"bad.json":   `{"nodes":[`,
	})

	out, err := execute(t, "--config", path, "--format", "json", "validate")
	require.ErrorIs(t, err, ErrInvalidProject)

	var res ValidationResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.False(t, res.Valid)
	assert.Equal(t, 3, res.Entities)
	require.Len(t, res.Graphs, 2)
	assert.Equal(t, "mover", res.Graphs[0].ID)
	assert.Empty(t, res.Graphs[0].Errors)
	assert.Equal(t, "warp", res.Graphs[1].ID)
	require.Len(t, res.Graphs[1].Errors, 1)
	assert.Contains(t, res.Graphs[1].Errors[0], `node "x"`)

	require.Len(t, res.Errors, 3)
	assert.Contains(t, res.Errors[0], "bad.json")
	assert.Contains(t, res.Errors[1], `graph "warp"`)
	assert.Contains(t, res.Errors[2], `entity "ghost": unknown behavior graph "haunt"`)
}

func TestValidateMissingConfig(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "nope.yaml"), "validate")
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadProjectAppliesSeedAndEngine(t *testing.T) {
	path := writeProject(t, demoScene, map[string]string{"mover.json": moverGraph, "bad.json": "{"})
	p, err := loadProject(path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	assert.Equal(t, "demo", p.cfg.ProjectID())
	assert.Equal(t, 2, p.env.Scene.Len())
	require.Len(t, p.graphs, 1)
	assert.Equal(t, "mover", p.graphs[0].ID)
	assert.Len(t, p.loadErrs, 1)

	again, err := loadProject(path, nil)
	require.NoError(t, err)
	assert.Equal(t, p.env.Float(), again.env.Float(), "a fixed seed makes random draws repeat")
}

func TestStartOrchestratorJournalsStartup(t *testing.T) {
	path := writeProject(t, demoScene, map[string]string{
		"mover.json":  moverGraph,
		"bad.json":    "{",
		"dangle.json": `{"id":"dangle","nodes":[{"id":"u","kind":"signal","signal":"Update"}],"edges":[{"from":"u","to":"ghost"}]}`,
	})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	p, err := loadProject(path, logger)
	require.NoError(t, err)

	journal := events.NewJournal(32)
	o, err := startOrchestrator(p, journal, logger)
	require.NoError(t, err)
	defer o.Close()

	var names []string
	for _, e := range journal.Snapshot() {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"system.startup", "graph.load_failed", "graph.load_failed", "graph.loaded"}, names)
	assert.Equal(t, []string{"mover"}, o.Graphs())
}
