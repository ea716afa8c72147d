package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-knxip/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-knxip/internal/knxip"
)

// HealthReporter manages periodic health status reporting.
// It publishes status messages to MQTT at regular intervals.
type HealthReporter struct {
	version   string
	gateway   string
	startTime time.Time
	interval  time.Duration
	publisher HealthPublisher
	tunnel    StatsSource
	telemetry *Telemetry
	topics    mqtt.Topics

	// Shutdown coordination (stopOnce prevents double-close panics)
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex
}

// HealthPublisher is the interface for publishing status messages.
// This is typically implemented by an MQTT client.
type HealthPublisher interface {
	// Publish sends a message to a topic with the specified QoS and retention.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// IsConnected returns true if the publisher is connected.
	IsConnected() bool
}

// StatsSource provides the tunnel state for status reports.
// Implemented by the Bridge so reports follow reconnections.
type StatsSource interface {
	// IsConnected returns true if the tunnel is established.
	IsConnected() bool

	// Stats returns current tunnel counters.
	Stats() knxip.ClientStats
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	// Version is the daemon version for status messages.
	Version string

	// Gateway is the gateway endpoint (host:port).
	Gateway string

	// Interval is how often to publish status.
	// Default: 30 seconds.
	Interval time.Duration

	// Publisher is the MQTT client for publishing messages.
	Publisher HealthPublisher

	// Tunnel provides connection state and counters.
	Tunnel StatsSource

	// Telemetry optionally receives a stats snapshot on every report.
	Telemetry *Telemetry
}

// NewHealthReporter creates a new health reporter.
//
// Parameters:
//   - cfg: Configuration for the health reporter
//
// Returns:
//   - *HealthReporter: Ready to start (call Start to begin reporting)
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval == 0 {
		interval = 30 * time.Second
	}

	return &HealthReporter{
		version:   cfg.Version,
		gateway:   cfg.Gateway,
		startTime: time.Now(),
		interval:  interval,
		publisher: cfg.Publisher,
		tunnel:    cfg.Tunnel,
		telemetry: cfg.Telemetry,
		done:      make(chan struct{}),
	}
}

// Start begins periodic status reporting.
// Must be called after creation. Call Stop to shut down.
//
// Parameters:
//   - ctx: Context for cancellation (will stop reporting when cancelled)
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop gracefully stops status reporting.
// Publishes a final "stopping" status before returning.
// Safe to call multiple times (uses sync.Once).
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		// Publish final stopping status (best-effort, ignore errors)
		//nolint:errcheck // Best-effort during shutdown, nothing we can do if it fails
		h.publishStatus(HealthStopping, "shutting down")
	})
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// PublishStarting publishes a "starting" status.
// Called during daemon initialization.
func (h *HealthReporter) PublishStarting() error {
	return h.publishStatus(HealthStarting, "daemon starting")
}

// PublishNow publishes the current status immediately.
// Useful for forcing an update after a significant event.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publishStatus(status, reason)
}

// LWTPayload returns the Last Will payload handed to the MQTT client
// at connect time. The broker publishes it when the session dies
// without a graceful disconnect.
func LWTPayload() ([]byte, error) {
	return json.Marshal(NewLWTMessage())
}

// LWTTopic returns the status topic the Last Will is registered on.
func LWTTopic() string {
	return mqtt.Topics{}.Status()
}

// reportLoop runs the periodic status reporting.
func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	// Publish initial status
	if err := h.PublishNow(); err != nil {
		h.logError("failed to publish initial status", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logError("failed to publish status", err)
			}
		}
	}
}

// determineStatus evaluates the current daemon status.
func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}

	if h.tunnel == nil || !h.tunnel.IsConnected() {
		return HealthDegraded, "tunnel disconnected"
	}

	return HealthHealthy, ""
}

// publishStatus publishes a status message.
func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.publisher == nil {
		return nil // No publisher configured
	}

	var stats knxip.ClientStats
	if h.tunnel != nil {
		stats = h.tunnel.Stats()
	}

	msg := NewStatusMessage(h.version, status, h.gateway, stats, h.startTime)
	if reason != "" {
		msg.Reason = reason
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	// Counters ride along to the time-series store on the same cadence
	h.telemetry.RecordStats(stats)

	// Publish (QoS 1, retained)
	return h.publisher.Publish(h.topics.Status(), payload, 1, true)
}

// logError logs an error if logger is set.
func (h *HealthReporter) logError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
