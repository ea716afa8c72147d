package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-knxip/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-knxip/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-knxip/internal/knx"
	"github.com/nerrad567/gray-logic-knxip/internal/knxip"
)

// Bridge operation constants.
const (
	// commandTimeout is the timeout for forwarding a command to the bus.
	commandTimeout = 5 * time.Second

	// defaultInitialBackoff is the first reconnect delay when config
	// does not say.
	defaultInitialBackoff = 1 * time.Second

	// defaultMaxBackoff caps the reconnect delay when config does not say.
	defaultMaxBackoff = 2 * time.Minute

	// backoffMultiplier grows the reconnect delay after each failure.
	backoffMultiplier = 1.5
)

// Bridge orchestrates bidirectional translation between the KNX bus
// and MQTT. It handles:
//   - Forwarding set/read commands from MQTT to the tunnel
//   - Publishing bus telegrams as retained state messages
//   - Recording traffic to the database and time-series store
//   - Redialing the tunnel when the connection is lost
//
// Thread Safety: All methods are safe for concurrent use.
type Bridge struct {
	cfg       *config.Config
	mqtt      MQTTClient
	recorder  RecorderInterface // Optional traffic recorder
	telemetry *Telemetry        // Optional metrics sink
	health    *HealthReporter
	topics    mqtt.Topics
	dial      DialFunc

	// tunnel is swapped on reconnection
	tunnel   knxip.Tunneler
	tunnelMu sync.RWMutex

	// Reconnection state
	reconnecting atomic.Bool

	// Shutdown coordination
	done      chan struct{}
	wg        sync.WaitGroup
	stopOnce  sync.Once
	ctx       context.Context    // Bridge-level context, cancelled on Stop()
	ctxCancel context.CancelFunc // Cancel function for ctx

	// Logger
	logger   Logger
	loggerMu sync.RWMutex
}

// Logger is the minimal structured logging interface the bridge needs.
// Satisfied by *logging.Logger.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// MQTTClient is the interface for MQTT operations.
// This allows mocking in tests and flexibility in implementation.
type MQTTClient interface {
	// Publish sends a message to a topic.
	Publish(topic string, payload []byte, qos byte, retained bool) error

	// Subscribe registers a handler for a topic pattern.
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error

	// IsConnected returns true if connected to the broker.
	IsConnected() bool
}

// RecorderInterface records bus traffic for passive discovery.
// This is optional - if nil, the bridge operates without recording.
type RecorderInterface interface {
	// RecordTelegram records a telegram's source, destination and payload.
	RecordTelegram(source, address, apci string, value []byte)

	// RecordGateway records a gateway found during discovery.
	RecordGateway(address string, port uint16)
}

// DialFunc establishes a new tunnel connection. Used to redial after
// connection loss. If nil, the bridge will not reconnect.
type DialFunc func(ctx context.Context) (knxip.Tunneler, error)

// Options holds configuration for creating a bridge.
type Options struct {
	// Config is the loaded daemon configuration.
	Config *config.Config

	// MQTT is the MQTT client implementation.
	MQTT MQTTClient

	// Tunnel is the established tunnel connection.
	Tunnel knxip.Tunneler

	// Dial re-establishes the tunnel after connection loss.
	// If nil, the bridge stays down once the tunnel drops.
	Dial DialFunc

	// Recorder is optional traffic recorder for passive discovery.
	Recorder RecorderInterface

	// Telemetry is optional time-series metrics sink.
	Telemetry *Telemetry

	// Logger is optional structured logger.
	Logger Logger

	// Version is the daemon version for status reports.
	Version string
}

// New creates a new bridge instance.
// Call Start() to begin operation.
func New(opts Options) (*Bridge, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.MQTT == nil {
		return nil, fmt.Errorf("MQTT client is required")
	}
	if opts.Tunnel == nil {
		return nil, fmt.Errorf("tunnel client is required")
	}

	// Bridge-level context aborts in-flight commands on shutdown
	ctx, ctxCancel := context.WithCancel(context.Background())

	b := &Bridge{
		cfg:       opts.Config,
		mqtt:      opts.MQTT,
		tunnel:    opts.Tunnel,
		dial:      opts.Dial,
		recorder:  opts.Recorder,  // May be nil (optional)
		telemetry: opts.Telemetry, // May be nil (optional)
		done:      make(chan struct{}),
		ctx:       ctx,
		ctxCancel: ctxCancel,
		logger:    opts.Logger,
	}

	b.health = NewHealthReporter(HealthReporterConfig{
		Version:   opts.Version,
		Gateway:   opts.Config.GatewayAddress(),
		Interval:  opts.Config.GetHealthInterval(),
		Publisher: opts.MQTT,
		Tunnel:    b,
		Telemetry: opts.Telemetry,
	})
	if opts.Logger != nil {
		b.health.SetLogger(opts.Logger)
	}

	return b, nil
}

// Start begins bridge operation.
// This subscribes to command topics, sets up the telegram handler,
// and starts status reporting.
func (b *Bridge) Start(ctx context.Context) error {
	if err := b.health.PublishStarting(); err != nil {
		b.logError("failed to publish starting status", err)
	}

	b.attachTunnel(b.currentTunnel())

	if err := b.mqtt.Subscribe(b.topics.AllSets(), 1, b.handleSet); err != nil {
		return fmt.Errorf("subscribe to set commands: %w", err)
	}
	b.logInfo("subscribed to set commands", "topic", b.topics.AllSets())

	if err := b.mqtt.Subscribe(b.topics.AllReads(), 1, b.handleRead); err != nil {
		return fmt.Errorf("subscribe to read commands: %w", err)
	}
	b.logInfo("subscribed to read commands", "topic", b.topics.AllReads())

	b.health.Start(ctx)

	if err := b.health.PublishNow(); err != nil {
		b.logError("failed to publish status", err)
	}

	b.logInfo("bridge started", "gateway", b.cfg.GatewayAddress())
	return nil
}

// Stop gracefully shuts down the bridge and closes the tunnel.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)

		// Cancel bridge context to abort in-flight commands
		b.ctxCancel()

		// Stop status reporting (publishes "stopping" status)
		b.health.Stop()

		// Wait for pending operations
		b.wg.Wait()

		if t := b.currentTunnel(); t != nil {
			if err := t.Close(); err != nil {
				b.logError("error closing tunnel", err)
			}
		}

		b.logInfo("bridge stopped")
	})
}

// PublishGateways announces discovery results on the gateways topic
// and records them for later inspection.
func (b *Bridge) PublishGateways(gateways []knxip.Gateway) error {
	msg := NewGatewaysMessage(gateways)

	if b.recorder != nil {
		for _, g := range msg.Gateways {
			b.recorder.RecordGateway(g.Address, g.Port)
		}
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal gateways: %w", err)
	}
	return b.mqtt.Publish(b.topics.Gateways(), payload, 1, true)
}

// IsConnected reports whether the tunnel is established.
// Implements StatsSource for the health reporter.
func (b *Bridge) IsConnected() bool {
	t := b.currentTunnel()
	return t != nil && t.IsConnected()
}

// Stats returns current tunnel counters.
// Implements StatsSource for the health reporter.
func (b *Bridge) Stats() knxip.ClientStats {
	t := b.currentTunnel()
	if t == nil {
		return knxip.ClientStats{}
	}
	return t.Stats()
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()

	if b.health != nil {
		b.health.SetLogger(logger)
	}
}

// currentTunnel returns the active tunnel connection.
func (b *Bridge) currentTunnel() knxip.Tunneler {
	b.tunnelMu.RLock()
	defer b.tunnelMu.RUnlock()
	return b.tunnel
}

// attachTunnel wires the bridge's callbacks into a tunnel connection.
func (b *Bridge) attachTunnel(t knxip.Tunneler) {
	t.SetOnMessage(b.handleTelegram)
	t.SetOnDisconnect(b.handleTunnelLost)
}

// handleSet processes a group write command from MQTT.
func (b *Bridge) handleSet(topic string, payload []byte) error {
	ga, err := addressFromTopic(topic)
	if err != nil {
		return err
	}

	cmd, err := ParseSetCommand(payload)
	if err != nil {
		return fmt.Errorf("set %s: %w", ga, err)
	}

	data, err := cmd.Encode()
	if err != nil {
		return fmt.Errorf("set %s: %w", ga, err)
	}

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	if err := b.currentTunnel().Send(ctx, ga, data); err != nil {
		return fmt.Errorf("set %s: %w", ga, err)
	}

	b.logDebug("forwarded set command", "ga", ga.String(), "bytes", len(data))
	return nil
}

// handleRead processes a group read command from MQTT.
// The answering telegram surfaces on the state topic like any other.
func (b *Bridge) handleRead(topic string, _ []byte) error {
	ga, err := addressFromTopic(topic)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(b.ctx, commandTimeout)
	defer cancel()

	if err := b.currentTunnel().SendRead(ctx, ga); err != nil {
		return fmt.Errorf("read %s: %w", ga, err)
	}

	b.logDebug("forwarded read request", "ga", ga.String())
	return nil
}

// addressFromTopic extracts the group address from the last topic level.
func addressFromTopic(topic string) (knx.GroupAddress, error) {
	idx := strings.LastIndex(topic, "/")
	if idx < 0 || idx == len(topic)-1 {
		return knx.GroupAddress{}, fmt.Errorf("no address in topic: %s", topic)
	}

	ga, err := knx.ParseGroupAddressFromURL(topic[idx+1:])
	if err != nil {
		return knx.GroupAddress{}, fmt.Errorf("invalid address in topic %s: %w", topic, err)
	}
	return ga, nil
}

// handleTelegram processes an incoming telegram from the bus.
// Called from the tunnel client's callback workers.
func (b *Bridge) handleTelegram(msg knxip.Message) {
	state := NewStateMessage(msg)

	if b.recorder != nil {
		b.recorder.RecordTelegram(state.Source, state.Address, state.APCI, msg.Data)
	}
	b.telemetry.RecordTelegram(msg)

	// Read requests carry no value, nothing to publish
	if msg.IsRead() {
		return
	}

	payload, err := json.Marshal(state)
	if err != nil {
		b.logError("failed to marshal state", err)
		return
	}

	topic := b.topics.State(msg.Destination.URLEncode())
	if err := b.mqtt.Publish(topic, payload, 1, true); err != nil {
		b.logError("failed to publish state", err)
	}
}

// handleTunnelLost reacts to tunnel connection loss.
// Called from the tunnel client when the gateway disconnects or a
// heartbeat is refused.
func (b *Bridge) handleTunnelLost(cause error) {
	if b.isClosed() {
		return
	}

	b.logWarn("tunnel connection lost", "error", cause)

	if err := b.health.PublishNow(); err != nil {
		b.logError("failed to publish status", err)
	}

	if b.dial == nil {
		b.logError("no dialer configured, staying down", cause)
		return
	}

	// Prevent multiple concurrent reconnection attempts
	if !b.reconnecting.CompareAndSwap(false, true) {
		return
	}

	b.wg.Add(1)
	go b.reconnectLoop()
}

// reconnectLoop redials the tunnel with exponential backoff until it
// succeeds, the attempt limit is reached, or the bridge shuts down.
//
// A tunnel channel is stateful on the gateway, so reconnection always
// means a fresh CONNECT_REQUEST rather than resuming the old channel.
func (b *Bridge) reconnectLoop() {
	defer b.wg.Done()
	defer b.reconnecting.Store(false)

	backoff := defaultInitialBackoff
	if b.cfg.Gateway.Reconnect.InitialDelay > 0 {
		backoff = time.Duration(b.cfg.Gateway.Reconnect.InitialDelay) * time.Second
	}
	maxBackoff := defaultMaxBackoff
	if b.cfg.Gateway.Reconnect.MaxDelay > 0 {
		maxBackoff = time.Duration(b.cfg.Gateway.Reconnect.MaxDelay) * time.Second
	}
	maxAttempts := b.cfg.Gateway.Reconnect.MaxAttempts

	for attempt := 1; ; attempt++ {
		if maxAttempts > 0 && attempt > maxAttempts {
			b.logError("reconnect attempts exhausted",
				fmt.Errorf("gave up after %d attempts", maxAttempts))
			return
		}

		select {
		case <-b.done:
			return
		case <-time.After(backoff):
		}

		b.logInfo("attempting reconnection", "attempt", attempt, "backoff", backoff.String())

		tunnel, err := b.dial(b.ctx)
		if err != nil {
			b.logError("reconnect failed", err)
			backoff = time.Duration(float64(backoff) * backoffMultiplier)
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		b.swapTunnel(tunnel)
		b.logInfo("reconnection successful", "attempt", attempt)

		if err := b.health.PublishNow(); err != nil {
			b.logError("failed to publish status", err)
		}
		return
	}
}

// swapTunnel replaces the dead tunnel with a fresh connection.
func (b *Bridge) swapTunnel(tunnel knxip.Tunneler) {
	b.tunnelMu.Lock()
	old := b.tunnel
	b.tunnel = tunnel
	b.tunnelMu.Unlock()

	if old != nil {
		old.Close()
	}
	b.attachTunnel(tunnel)
}

// isClosed returns true if Stop has been called.
func (b *Bridge) isClosed() bool {
	select {
	case <-b.done:
		return true
	default:
		return false
	}
}

// logInfo logs an info message if logger is set.
func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logWarn logs a warning if logger is set.
func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (b *Bridge) logError(msg string, err error) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}

// logDebug logs a debug message if logger is set.
func (b *Bridge) logDebug(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}
