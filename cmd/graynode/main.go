// Gray Logic Node - battery-powered sensor node agent
//
// A node spends most of its life asleep. Each wake cycle it connects to
// the broker, publishes its sensor readings, pulls any pending config
// update, and disconnects again. Connection failures feed a persisted
// backoff policy so a node stranded next to a dead broker does not burn
// its battery retrying every few minutes.
//
// The MQTT layer underneath is a deliberate 3.1.1 subset built for this
// duty cycle: clean sessions, QoS 0/1, no background goroutines.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/nerrad567/gray-logic-node/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/history"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-node/internal/infrastructure/store"
	"github.com/nerrad567/gray-logic-node/internal/mqtt"
	"github.com/nerrad567/gray-logic-node/internal/reconnect"
	"github.com/nerrad567/gray-logic-node/internal/sensor"
	"github.com/nerrad567/gray-logic-node/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// cycleJournalKeep bounds the on-flash cycle journal.
const cycleJournalKeep = 200

func main() {
	// Context cancels on interrupt signals (Ctrl+C, SIGTERM) so a node
	// pulled from its mount shuts down between cycles, not mid-write.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	once := flag.Bool("once", false, "run a single wake cycle and exit")
	simulate := flag.Bool("simulate", false, "use the loopback transport instead of a real broker")
	flag.Parse()

	if err := run(ctx, *once, *simulate); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - once: Exit after one wake cycle instead of sleeping and repeating
//   - simulate: Use the in-memory loopback transport (no broker needed)
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, once, simulate bool) error {
	// Secrets (broker password, history token) come from the environment;
	// a .env file is a convenience for bench setups, not required.
	_ = godotenv.Load() //nolint:errcheck // missing .env is the normal case

	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Gray Logic Node",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings and node identity
	log = logging.New(cfg.Logging, cfg.Node.ID, version)

	st, err := store.Open(store.Config{
		Path:        cfg.Store.Path,
		WALMode:     cfg.Store.WALMode,
		BusyTimeout: cfg.Store.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() {
		log.Info("closing store")
		if closeErr := st.Close(); closeErr != nil {
			log.Error("error closing store", "error", closeErr)
		}
	}()
	log.Info("store opened", "path", st.Path())

	source := sensor.NewSimulated(cfg.Sensors.Enabled)
	if !cfg.Sensors.Simulated {
		// Hardware sensor drivers live in the firmware build, not here.
		log.Warn("hardware sensors not available in this build, using simulated readings")
	}

	for {
		cycleErr := runCycle(ctx, cfg, configPath, st, source, log, newTransport(cfg, simulate))
		if cycleErr != nil {
			log.Error("wake cycle failed", "error", cycleErr)
		}

		if once {
			return cycleErr
		}

		log.Info("sleeping until next wake", "interval", cfg.Node.WakeInterval)
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
			return nil
		case <-time.After(cfg.WakeInterval()):
		}
	}
}

// runCycle performs one complete wake cycle: backoff gate, connect,
// publish, config pull, disconnect, journal. Every outcome is recorded
// so the next cycle (possibly after a power cut) starts from truth.
func runCycle(ctx context.Context, cfg *config.Config, configPath string, st *store.Store, source sensor.Source, log *logging.Logger, transport mqtt.Transport) error {
	started := time.Now()

	// Overlay the persisted attempt counters onto the configured policy.
	state := cfg.MQTT.Reconnect.State()
	count, last, err := st.LoadReconnect(ctx)
	if err != nil {
		return fmt.Errorf("loading reconnect state: %w", err)
	}
	state.AttemptCount = count
	state.LastAttemptTime = last

	if !reconnect.ShouldAttempt(state, started) {
		next := reconnect.NextAttemptAt(state)
		log.Info("connection attempt deferred by backoff",
			"attempt_count", state.AttemptCount,
			"next_attempt", next.Format(time.RFC3339),
		)
		return st.RecordCycle(ctx, store.CycleRecord{
			StartedAt: started,
			Connected: false,
			Detail:    "deferred by backoff",
		})
	}

	// Record the attempt before its outcome is known. If we brown out
	// mid-handshake the counter still reflects that power was spent.
	state = reconnect.RecordAttempt(state, started)
	if err := st.SaveReconnect(ctx, state.AttemptCount, state.LastAttemptTime); err != nil {
		return fmt.Errorf("saving reconnect state: %w", err)
	}

	client := mqtt.NewClient(transport, mqtt.Options{
		Host:           cfg.MQTT.Broker.Host,
		Port:           cfg.MQTT.Broker.Port,
		TLS:            cfg.MQTT.Broker.TLS,
		ClientID:       cfg.MQTT.Broker.ClientID,
		Username:       cfg.MQTT.Auth.Username,
		Password:       cfg.MQTT.Auth.Password,
		KeepAlive:      cfg.MQTT.KeepAliveDuration(),
		ConnectTimeout: 10 * time.Second,
	})
	client.SetLogger(log)

	if !client.Connect() {
		log.Warn("broker unreachable",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"attempt_count", state.AttemptCount,
			"error", client.LastError(),
		)
		return st.RecordCycle(ctx, store.CycleRecord{
			StartedAt: started,
			Connected: false,
			Detail:    fmt.Sprintf("connect failed: %v", client.LastError()),
		})
	}
	defer client.Disconnect()

	// Connected: the backoff slate is wiped.
	state = reconnect.RecordSuccess(state)
	if err := st.SaveReconnect(ctx, state.AttemptCount, state.LastAttemptTime); err != nil {
		return fmt.Errorf("saving reconnect state: %w", err)
	}
	log.Info("connected to broker", "client_id", cfg.MQTT.Broker.ClientID)

	readings, err := source.Readings(ctx)
	if err != nil {
		return fmt.Errorf("reading sensors: %w", err)
	}

	topics := telemetry.Topics{Prefix: cfg.MQTT.TopicPrefix, NodeID: cfg.Node.ID}
	publisher := telemetry.NewPublisher(client, topics, cfg.Node.Room, byte(cfg.MQTT.QoS))

	published := 0
	publisher.PublishStatus("awake")
	if publisher.PublishReadings(readings, started) {
		published = len(readings)
	}

	// Absorb PUBACKs and anything retained on our command topic.
	client.CheckMessages()
	if client.Conn().PingDue() {
		client.Ping()
	}

	changed, err := publisher.CheckConfigUpdate(cfg)
	if err != nil {
		log.Warn("config update check failed", "error", err)
	} else if changed {
		if saveErr := cfg.Save(configPath); saveErr != nil {
			log.Error("persisting config update", "error", saveErr)
		} else {
			log.Info("config updated from broker", "version", cfg.Version)
		}
	}

	recordHistory(ctx, cfg, readings, started, log)

	publisher.PublishStatus("sleeping")
	client.Disconnect()

	if err := st.RecordCycle(ctx, store.CycleRecord{
		StartedAt: started,
		Connected: true,
		Published: published,
		Detail:    "ok",
	}); err != nil {
		return fmt.Errorf("recording cycle: %w", err)
	}
	return st.PruneCycles(ctx, cycleJournalKeep)
}

// recordHistory mirrors the cycle's readings into the time-series store.
// History is best-effort: a down InfluxDB never fails a wake cycle.
func recordHistory(ctx context.Context, cfg *config.Config, readings map[string]float64, ts time.Time, log *logging.Logger) {
	if !cfg.History.Enabled {
		return
	}
	recorder, err := history.Connect(cfg.History)
	if err != nil {
		log.Warn("history store unavailable", "error", err)
		return
	}
	defer recorder.Close()

	if err := recorder.WriteReadings(ctx, cfg.Node.ID, cfg.Node.Room, readings, ts); err != nil {
		log.Warn("history write failed", "error", err)
	}
}

// newTransport picks the wire for this cycle: a real TCP/TLS connection,
// or the in-memory loopback when bench-testing without a broker.
func newTransport(cfg *config.Config, simulate bool) mqtt.Transport {
	if simulate {
		return mqtt.NewSimTransport()
	}
	return mqtt.NewNetTransport(cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port, cfg.MQTT.Broker.TLS, 10*time.Second)
}

// getConfigPath returns the configuration file path.
// Uses GRAYNODE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("GRAYNODE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
