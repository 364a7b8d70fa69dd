package cli

import (
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/AaronLay10/SentientPlay/internal/actions"
	"github.com/AaronLay10/SentientPlay/internal/config"
	"github.com/AaronLay10/SentientPlay/internal/engine"
	"github.com/AaronLay10/SentientPlay/internal/graph"
)

// project is a loaded runtime.yaml with its scene seed applied and its
// graph directory read. Graph files that failed to load are kept in
// loadErrs; the rest are usable.
type project struct {
	cfg      *config.RuntimeConfig
	env      *engine.Env
	graphs   []*graph.Graph
	loadErrs []error
}

func loadProject(path string, logger *slog.Logger) (*project, error) {
	cfg, err := config.LoadRuntimeConfig(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	env := engine.NewEnv(logger)
	actions.Register(env.Registry)
	env.MaxSteps = cfg.Engine.MaxSteps
	if cfg.Engine.Seed != 0 {
		env.Rand = rand.New(rand.NewPCG(cfg.Engine.Seed, cfg.Engine.Seed^0x5e17))
	}

	if p := cfg.ScenePath(); p != "" {
		seed, err := config.LoadScene(p)
		if err != nil {
			return nil, fmt.Errorf("load scene: %w", err)
		}
		if err := seed.Apply(env.Scene, env.Vars); err != nil {
			return nil, fmt.Errorf("apply scene %s: %w", p, err)
		}
	}

	graphs, errs := graph.LoadDir(cfg.GraphDir())
	return &project{cfg: cfg, env: env, graphs: graphs, loadErrs: errs}, nil
}
