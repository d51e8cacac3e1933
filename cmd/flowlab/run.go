package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/flowlab-core/internal/api"
	"github.com/nerrad567/flowlab-core/internal/component"
	"github.com/nerrad567/flowlab-core/internal/execution"
	"github.com/nerrad567/flowlab-core/internal/experiment"
	"github.com/nerrad567/flowlab-core/internal/infrastructure/config"
	"github.com/nerrad567/flowlab-core/internal/infrastructure/database"
	"github.com/nerrad567/flowlab-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/flowlab-core/internal/infrastructure/logging"
	"github.com/nerrad567/flowlab-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/flowlab-core/internal/protocol"
	"github.com/nerrad567/flowlab-core/internal/runlog"
	"github.com/nerrad567/flowlab-core/internal/telemetry"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	DryRun int
	Strict bool
	Serve  bool
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run <protocol.yaml>",
		Short: "Execute a protocol",
		Long: `Execute a protocol against the devices declared in the configuration.

With --dry-run N the run is simulated at N times real speed: no device is
connected or committed, and every action is logged as simulated.
The finished run is archived and can be inspected with "flowlab runs".`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, rootOpts)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("dry-run") {
				opts.DryRun = cfg.Execution.DryRun
			}
			if !cmd.Flags().Changed("strict") {
				opts.Strict = cfg.Execution.Strict
			}
			return runExperiment(cmd.Context(), cfg, args[0], opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVar(&opts.DryRun, "dry-run", 0, "simulate at N times real speed (0 = real run)")
	cmd.Flags().BoolVar(&opts.Strict, "strict", true, "abort on the first device or sensor failure")
	cmd.Flags().BoolVar(&opts.Serve, "serve", false, "serve the control API while the run executes")

	return cmd
}

// runExperiment wires the collaborators around one executor run.
//
// Deferred cleanups run in reverse order: API server, telemetry, MQTT,
// database.
func runExperiment(ctx context.Context, cfg *config.Config, protocolPath string, opts *RunOptions, out io.Writer) error {
	log := logging.New(cfg.Logging, version)

	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	runs := runlog.NewSQLiteRepository(db.DB)

	var (
		mqttClient *mqtt.Client
		bus        component.Bus
	)
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(ctx, cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log.With("component", "mqtt"))
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})
		bus = mqttClient
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	}

	registry, err := component.BuildRegistry(cfg.Devices, bus)
	if err != nil {
		return fmt.Errorf("building devices: %w", err)
	}

	def, err := protocol.Load(protocolPath)
	if err != nil {
		return err
	}
	compiled, err := protocol.Compile(def, registry)
	if err != nil {
		return err
	}

	exp := experiment.New(compiled)
	runLog := log.ForExperiment(exp.ID())

	if cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			runLog.Error("InfluxDB write error", "error", err)
		})
		exp.BindObserver(telemetry.NewInfluxObserver(influxClient, exp, cfg.Lab.ID))
	}

	if mqttClient != nil {
		bridge := newControlBridge(mqttClient, exp, runLog)
		if err := bridge.Start(); err != nil {
			return err
		}
		defer bridge.Stop()
	}

	if opts.Serve {
		deps := api.Deps{
			Config:  cfg.API,
			WS:      cfg.WebSocket,
			Logger:  log.With("component", "api"),
			Runs:    runs,
			DB:      db.DB,
			Version: version,
		}
		if mqttClient != nil {
			deps.MQTT = mqttClient
		}
		srv, err := api.New(deps)
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		srv.Attach(exp)
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
	}

	stop := context.AfterFunc(ctx, exp.Cancel)
	defer stop()

	outcome, err := execution.NewExecutor(runLog).Run(ctx, exp, execution.Options{
		DryRun:          experiment.DryRun(opts.DryRun),
		Strict:          opts.Strict,
		TeardownTimeout: cfg.GetTeardownTimeout(),
	})
	if err != nil {
		return err
	}

	run, err := runlog.FromExperiment(exp, string(outcome.Status), outcome.Err, opts.Strict)
	if err != nil {
		return fmt.Errorf("archiving run: %w", err)
	}
	if err := runs.Save(context.WithoutCancel(ctx), run); err != nil {
		return fmt.Errorf("archiving run: %w", err)
	}

	printOutcome(out, exp.ID(), outcome)

	if outcome.Status == execution.StatusStoppedByFailure {
		return fmt.Errorf("experiment %s failed: %w", exp.ID(), outcome.Err)
	}
	return nil
}

func printOutcome(w io.Writer, id string, o execution.Outcome) {
	fmt.Fprintf(w, "experiment %s: %s\n", id, o.Status)
	fmt.Fprintf(w, "  elapsed:  %s (paused %s)\n",
		(o.EndTime.Sub(o.StartTime) - o.TotalPaused).Round(time.Millisecond),
		o.TotalPaused.Round(time.Millisecond))
	fmt.Fprintf(w, "  records:  %d\n", o.Records)
	if o.Err != nil {
		fmt.Fprintf(w, "  error:    %v\n", o.Err)
	}
}
