package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AaronLay10/SentientPlay/internal/api"
	"github.com/AaronLay10/SentientPlay/internal/events"
	"github.com/AaronLay10/SentientPlay/internal/graph"
	"github.com/AaronLay10/SentientPlay/internal/mqtt"
	"github.com/AaronLay10/SentientPlay/internal/orchestrator"
	"github.com/AaronLay10/SentientPlay/internal/storage/postgres"
	"github.com/AaronLay10/SentientPlay/internal/version"
)

// Source tags commands the CLI issues itself.
const Source = "cli"

type runOptions struct {
	port      int
	autostart bool
	heartbeat time.Duration
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	ro := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Serve the play runtime over HTTP and MQTT",
		Long: `Loads the project, then serves play-mode control until interrupted.

The HTTP API is always served. MQTT and Postgres are used when enabled in
runtime.yaml. SIGINT or SIGTERM stops any running session, restoring the
scene, and shuts down.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, rootOpts, ro, cmd)
		},
	}
	cmd.Flags().IntVar(&ro.port, "port", 0, "API port (overrides network.api_port)")
	cmd.Flags().BoolVar(&ro.autostart, "autostart", false, "enter play mode once loaded")
	cmd.Flags().DurationVar(&ro.heartbeat, "heartbeat", 5*time.Second, "MQTT heartbeat interval")
	return cmd
}

func runServe(ctx context.Context, opts *RootOptions, ro *runOptions, cmd *cobra.Command) error {
	logger := newLogger(opts, cmd.ErrOrStderr())

	p, err := loadProject(opts.Config, logger)
	if err != nil {
		return err
	}
	cfg := p.cfg

	journal := events.NewJournal(cfg.JournalSize())
	readiness := api.NewReadiness()

	var store *postgres.Client
	if cfg.Postgres.Enabled {
		store, err = postgres.New(cfg.ProjectID())
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer store.Close()
		journal.SetSink(store)
		readiness.SetPostgres(true, false)
		reportInterrupted(journal, store, logger)
	}

	o, err := startOrchestrator(p, journal, logger)
	if err != nil {
		return err
	}
	defer o.Close()
	if store != nil {
		tracker := &sessionTracker{
			store:          store,
			logger:         logger,
			behaviorErrors: func() uint64 { return o.Stats().BehaviorErrors },
		}
		o.OnStateChange(tracker.transition)
	}

	if cfg.MQTT.Enabled {
		closeMQTT := startMQTT(ctx, p, o, readiness, ro.heartbeat, logger)
		defer closeMQTT()
	}

	return serve(ctx, ro, p, o, journal, readiness, logger)
}

func startOrchestrator(p *project, journal *events.Journal, logger *slog.Logger) (*orchestrator.Orchestrator, error) {
	hostname, _ := os.Hostname()
	journal.Emit(events.LevelInfo, "system.startup", "sentient play starting", map[string]interface{}{
		"service":  "sentient-play",
		"version":  version.Version,
		"project":  p.cfg.ProjectID(),
		"hostname": hostname,
		"pid":      os.Getpid(),
	})
	for _, err := range p.loadErrs {
		journal.Emit(events.LevelError, "graph.load_failed", err.Error(), nil)
	}

	// A graph with hard violations is dropped; entities naming it stay unbound.
	graphs := make([]*graph.Graph, 0, len(p.graphs))
	for _, g := range p.graphs {
		warnings, err := graph.Validate(g)
		if err != nil {
			journal.Emit(events.LevelError, "graph.load_failed", err.Error(), map[string]interface{}{"graph": g.ID})
			continue
		}
		for _, w := range warnings {
			journal.Emit(events.LevelWarn, "graph.warning", w.Msg, map[string]interface{}{
				"graph": g.ID,
				"kind":  w.Kind,
				"node":  w.NodeID,
			})
		}
		graphs = append(graphs, g)
	}

	o, err := orchestrator.New(p.env, graphs, orchestrator.Options{
		Scheduler: p.cfg.Scheduler,
		Journal:   journal,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("orchestrator: %w", err)
	}
	return o, nil
}

func serve(ctx context.Context, ro *runOptions, p *project, o *orchestrator.Orchestrator,
	journal *events.Journal, readiness *api.Readiness, logger *slog.Logger) error {
	cfg := p.cfg

	alertCfg, err := api.AlertConfigFromEnv()
	if err != nil {
		return err
	}
	go api.NewAlerter(alertCfg, cfg.ProjectID(), journal, logger).Run(ctx)

	auth, err := api.LoadAuth()
	if err != nil {
		return err
	}
	srv := api.NewServer(o, api.Options{
		Journal:   journal,
		Auth:      auth,
		TLS:       api.TLSFromEnv(),
		Readiness: readiness,
		ProjectID: cfg.ProjectID(),
		Logger:    logger,
	})
	readiness.SetOrchestratorReady(true)

	if ro.autostart {
		if err := o.Execute(orchestrator.Command{Name: orchestrator.CommandStart}, Source); err != nil {
			logger.Warn("autostart failed", "error", err)
		}
	}

	port := cfg.APIPort()
	if ro.port != 0 {
		port = ro.port
	}
	err = srv.ListenAndServe(ctx, port)

	readiness.SetOrchestratorReady(false)
	if o.Status().State != orchestrator.StateStopped {
		if stopErr := o.Execute(orchestrator.Command{Name: orchestrator.CommandStop}, Source); stopErr != nil {
			logger.Warn("stop on shutdown failed", "error", stopErr)
		}
	}
	journal.Emit(events.LevelInfo, "system.shutdown", "sentient play stopping", nil)
	return err
}

// startMQTT connects the bridge. A broker that is down at startup is retried
// in the background; readiness follows the connection. The returned func
// stops the heartbeat and disconnects.
func startMQTT(ctx context.Context, p *project, o *orchestrator.Orchestrator, readiness *api.Readiness,
	heartbeat time.Duration, logger *slog.Logger) func() {
	cfg := p.cfg
	if heartbeat <= 0 {
		heartbeat = 5 * time.Second
	}
	clientID := cfg.MQTT.ClientID
	if clientID == "" {
		clientID = "sentient-play-" + cfg.ProjectID()
	}

	var bridge *mqtt.Bridge
	client := mqtt.NewClient(cfg.MQTTBroker(), clientID, logger, func() {
		bridge.Resubscribe()
		readiness.SetMQTT(true, true)
	})
	bridge = mqtt.NewBridge(client, o, cfg.TopicPrefix(), logger)

	if err := client.Connect(); err != nil {
		logger.Warn("mqtt connect failed, retrying in background", "broker", cfg.MQTTBroker(), "error", err)
	}
	readiness.SetMQTT(client.IsConnected(), true)

	unsubscribe := o.OnStateChange(bridge.PublishTransition)
	bridge.StartHeartbeat(heartbeat)

	watchCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		t := time.NewTicker(heartbeat)
		defer t.Stop()
		for {
			select {
			case <-watchCtx.Done():
				return
			case <-t.C:
				readiness.SetMQTT(client.IsConnected(), true)
			}
		}
	}()

	return func() {
		cancel()
		<-done
		unsubscribe()
		bridge.Stop()
		client.Disconnect()
		readiness.SetMQTT(false, true)
	}
}

// reportInterrupted journals sessions a previous process left running.
func reportInterrupted(journal *events.Journal, q orchestrator.JournalQuerier, logger *slog.Logger) {
	sessions, scanned, err := orchestrator.FindInterrupted(q, 0)
	if err != nil {
		logger.Warn("failed to scan journal for interrupted sessions", "error", err)
		return
	}
	for _, s := range sessions {
		journal.Emit(events.LevelWarn, "play.interrupted", "session never stopped", map[string]interface{}{
			"session":    s.Session,
			"started_at": s.StartedAt.Format(time.RFC3339),
			"last_seen":  s.LastSeen.Format(time.RFC3339),
			"paused":     s.Paused,
			"errors":     s.Errors,
			"scanned":    scanned,
		})
	}
}
