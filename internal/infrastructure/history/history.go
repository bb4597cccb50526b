package history

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-node/internal/infrastructure/config"
)

// Default timeouts for InfluxDB operations.
const (
	defaultConnectTimeout = 10 * time.Second
)

// Recorder mirrors published readings into an InfluxDB bucket.
//
// Unlike the Core's batching telemetry pipeline, the node writes
// synchronously: a wake cycle produces a handful of points at most, and the
// node must know the write landed before it powers the radio down. No
// background flushing, no goroutines.
type Recorder struct {
	client    influxdb2.Client
	writeAPI  api.WriteAPIBlocking
	connected bool
}

// Connect establishes a connection to the InfluxDB server.
//
// Parameters:
//   - cfg: History configuration from config.yaml
//
// Returns:
//   - *Recorder: Connected recorder ready for use
//   - error: If history is disabled or connection fails
func Connect(cfg config.HistoryConfig) (*Recorder, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()

	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping failed: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	return &Recorder{
		client:    client,
		writeAPI:  client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		connected: true,
	}, nil
}

// IsConnected reports whether the recorder is usable.
func (r *Recorder) IsConnected() bool {
	return r != nil && r.connected
}

// WriteReadings records one cycle's sensor readings as a single point.
//
// Tags carry the node identity; each reading becomes a field. The
// timestamp is the cycle start, not the write time, so delayed mirrors
// stay aligned with what was published.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - nodeID: Node identifier tag
//   - room: Room label tag
//   - readings: Sensor name to value map
//   - ts: Cycle timestamp
func (r *Recorder) WriteReadings(ctx context.Context, nodeID, room string, readings map[string]float64, ts time.Time) error {
	if !r.IsConnected() {
		return ErrNotConnected
	}
	if len(readings) == 0 {
		return nil
	}

	fields := make(map[string]interface{}, len(readings))
	for name, value := range readings {
		fields[name] = value
	}

	point := write.NewPoint(
		"node_readings",
		map[string]string{
			"node_id": nodeID,
			"room":    room,
		},
		fields,
		ts,
	)

	if err := r.writeAPI.WritePoint(ctx, point); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	return nil
}

// Close shuts the recorder down. Safe on a nil receiver so callers can
// hold an optional recorder without guarding every site.
func (r *Recorder) Close() {
	if r == nil || r.client == nil {
		return
	}
	r.connected = false
	r.client.Close()
}
