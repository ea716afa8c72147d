package knxip

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-knxip/internal/knx"
)

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Default timeouts and intervals for gateway communication.
const (
	// defaultConnectTimeout is the maximum time to wait for a connect response.
	defaultConnectTimeout = 5 * time.Second

	// defaultResponseTimeout is the maximum time to wait for an ack or
	// heartbeat response.
	defaultResponseTimeout = 3 * time.Second

	// defaultHeartbeatInterval is how often connection state requests
	// keep the tunnel alive. Gateways drop channels idle for 120s.
	defaultHeartbeatInterval = 60 * time.Second

	// defaultReceivePoll is the read deadline for each pass of the
	// engine loop.
	defaultReceivePoll = 100 * time.Millisecond

	// defaultDrainJitterDelay is the settle time between the two drain
	// passes before a send.
	defaultDrainJitterDelay = 20 * time.Millisecond

	// defaultDrainLimit bounds how many queued datagrams a single drain
	// pass will dispatch.
	defaultDrainLimit = 8

	// drainReadWait is the read deadline for each drain pass read. It
	// must sit slightly in the future: a deadline at or before now makes
	// the poller fail the read without looking at the socket buffer, so
	// queued datagrams would never surface.
	drainReadWait = time.Millisecond

	// callbackQueueSize is the buffer size for the message callback queue.
	callbackQueueSize = 100

	// callbackWorkerCount is the number of concurrent callback workers.
	callbackWorkerCount = 4
)

// ClientConfig holds tunnel client configuration.
type ClientConfig struct {
	// Gateway is the gateway endpoint as "host:port".
	// Port defaults to 3671 when omitted.
	Gateway string

	// DeviceAddress is the individual address used as the source of
	// outgoing telegrams. Default: "0.0.0" (gateway substitutes its own).
	DeviceAddress string

	// ConnectTimeout is the maximum wait for the connect response.
	// Default: 5 seconds.
	ConnectTimeout time.Duration

	// ResponseTimeout is the maximum wait for acks and heartbeat
	// responses. Default: 3 seconds.
	ResponseTimeout time.Duration

	// HeartbeatInterval is the connection state request period.
	// Default: 60 seconds.
	HeartbeatInterval time.Duration

	// ReceivePoll is the engine loop read deadline. Default: 100ms.
	ReceivePoll time.Duration

	// DrainJitterDelay is the settle time between drain passes before a
	// send. Default: 20ms.
	DrainJitterDelay time.Duration

	// DrainLimit bounds how many queued datagrams a drain pass will
	// dispatch. Default: 8.
	DrainLimit int
}

func (cfg *ClientConfig) applyDefaults() {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.ResponseTimeout == 0 {
		cfg.ResponseTimeout = defaultResponseTimeout
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	if cfg.ReceivePoll == 0 {
		cfg.ReceivePoll = defaultReceivePoll
	}
	if cfg.DrainJitterDelay == 0 {
		cfg.DrainJitterDelay = defaultDrainJitterDelay
	}
	if cfg.DrainLimit == 0 {
		cfg.DrainLimit = defaultDrainLimit
	}
	if cfg.DeviceAddress == "" {
		cfg.DeviceAddress = "0.0.0"
	}
}

// ClientStats holds operational statistics.
type ClientStats struct {
	MessagesTx         uint64
	MessagesRx         uint64
	MessagesDropped    uint64 // Messages dropped due to full callback queue
	ErrorsTotal        uint64
	SequenceMismatches uint64
	Heartbeats         uint64
	LastActivity       time.Time
	Connected          bool
	Channel            uint8
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// packetConn is the subset of *net.UDPConn the client uses, extracted
// so tests can substitute a fake gateway.
type packetConn interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	SetReadDeadline(t time.Time) error
	Close() error
}

// Tunneler is the client interface consumed by the bridge layer.
// It allows mocking the tunnel client in tests.
type Tunneler interface {
	Send(ctx context.Context, ga knx.GroupAddress, data []byte) error
	SendRead(ctx context.Context, ga knx.GroupAddress) error
	SendResponse(ctx context.Context, ga knx.GroupAddress, data []byte) error
	SetOnMessage(callback func(Message))
	SetOnDisconnect(callback func(error))
	IsConnected() bool
	Stats() ClientStats
	Close() error
}

// Ensure Client implements Tunneler.
var _ Tunneler = (*Client)(nil)

// sendRequest carries a cEMI payload into the engine goroutine.
type sendRequest struct {
	cemi   []byte
	result chan error
}

// Client is a KNXnet/IP tunneling client.
//
// A single engine goroutine owns the UDP socket: it polls for incoming
// frames, answers gateway heartbeats and disconnects, and services
// send requests. Incoming group telegrams are dispatched through a
// bounded worker pool.
//
// Thread Safety:
//   - All exported methods are safe for concurrent use.
//   - Message callbacks are invoked from worker goroutines.
//
// Connection loss is surfaced through the OnDisconnect callback; the
// client does not reconnect on its own. Callers decide whether and
// when to dial again.
type Client struct {
	cfg    ClientConfig
	conn   packetConn
	tunnel *Tunnel
	source knx.IndividualAddress

	// channel is the gateway-assigned channel ID, fixed at connect
	// time. The tunnel itself is only touched by the engine goroutine.
	channel uint8

	// Connection state
	connMu    sync.RWMutex
	connected bool

	// Engine coordination
	sendCh chan *sendRequest

	// Message handler callback
	onMessage  func(Message)
	callbackMu sync.RWMutex

	// Disconnect handler callback
	onDisconnect func(error)
	disconnectMu sync.RWMutex

	// Callback worker pool (bounded goroutine spawning)
	callbackQueue chan Message

	// Shutdown coordination (closeOnce prevents double-close panics).
	// engineExited closes when the engine goroutine returns for any
	// reason, so submitters never block on a loop that is gone.
	done         *closeOnce
	engineExited *closeOnce
	wg           sync.WaitGroup

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex

	// Statistics (atomic for performance)
	messagesTx         atomic.Uint64
	messagesRx         atomic.Uint64
	messagesDropped    atomic.Uint64
	errorsTotal        atomic.Uint64
	sequenceMismatches atomic.Uint64
	heartbeatsTotal    atomic.Uint64
	lastActivity       atomic.Int64 // Unix timestamp
}

// Connect dials the gateway and establishes a tunnel.
//
// The connect exchange runs synchronously: the engine loop and worker
// pool only start once the gateway has assigned a channel.
//
// Parameters:
//   - ctx: Context for cancellation of the initial exchange
//   - cfg: Client configuration
//
// Returns:
//   - *Client: Connected client ready for use
//   - error: If dialing or the connect exchange fails
func Connect(ctx context.Context, cfg ClientConfig) (*Client, error) {
	cfg.applyDefaults()

	source, err := knx.ParseIndividualAddress(cfg.DeviceAddress)
	if err != nil {
		return nil, err
	}

	addr := cfg.Gateway
	if _, _, splitErr := net.SplitHostPort(addr); splitErr != nil {
		addr = net.JoinHostPort(addr, fmt.Sprintf("%d", DefaultPort))
	}

	var dialer net.Dialer
	if ctx == nil {
		ctx = context.Background()
	}
	dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	rawConn, err := dialer.DialContext(dialCtx, "udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrTransport, addr, err)
	}

	client, err := connect(cfg, rawConn.(*net.UDPConn), source)
	if err != nil {
		rawConn.Close()
		return nil, err
	}
	return client, nil
}

// connect runs the connect exchange on an established transport and
// starts the engine. Split from Connect so tests can inject a fake
// gateway.
func connect(cfg ClientConfig, conn packetConn, source knx.IndividualAddress) (*Client, error) {
	client := &Client{
		cfg:           cfg,
		conn:          conn,
		tunnel:        NewTunnel(HPAI{}), // NAT mode: connected socket, gateway replies to source
		source:        source,
		sendCh:        make(chan *sendRequest),
		callbackQueue: make(chan Message, callbackQueueSize),
		done:          newCloseOnce(),
		engineExited:  newCloseOnce(),
	}
	client.lastActivity.Store(time.Now().Unix())

	if err := client.connectExchange(); err != nil {
		return nil, err
	}
	client.channel = client.tunnel.Channel()

	client.connMu.Lock()
	client.connected = true
	client.connMu.Unlock()

	// Start callback worker pool (bounded goroutine count)
	for i := 0; i < callbackWorkerCount; i++ {
		client.wg.Add(1)
		go client.callbackWorker()
	}

	// Start engine loop
	client.wg.Add(1)
	go client.run()

	return client, nil
}

// connectExchange sends the connect request and waits for the response.
func (c *Client) connectExchange() error {
	request, err := c.tunnel.ConnectRequest()
	if err != nil {
		return err
	}

	if _, err := c.conn.Write(request); err != nil {
		c.tunnel.Reset()
		return fmt.Errorf("%w: connect request: %w", ErrTransport, err)
	}

	deadline := time.Now().Add(c.cfg.ConnectTimeout)
	buf := make([]byte, MaxFrameSize)

	for {
		if err := c.conn.SetReadDeadline(deadline); err != nil {
			c.tunnel.Reset()
			return fmt.Errorf("%w: %w", ErrTransport, err)
		}

		n, err := c.conn.Read(buf)
		if err != nil {
			c.tunnel.Reset()
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return fmt.Errorf("%w: no connect response within %s", ErrTimeout, c.cfg.ConnectTimeout)
			}
			return fmt.Errorf("%w: %w", ErrTransport, err)
		}

		frame, err := ParseFrame(buf[:n])
		if err != nil {
			// Stray datagrams during setup are skipped.
			continue
		}
		if frame.Service != ServiceConnectResponse {
			continue
		}

		return c.tunnel.HandleConnectResponse(frame.Body)
	}
}

// run is the engine loop. It owns the socket and the tunnel state
// machine after Connect returns.
func (c *Client) run() {
	defer c.wg.Done()
	defer c.engineExited.Close()

	buf := make([]byte, MaxFrameSize)
	heartbeat := time.NewTicker(c.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-c.done.Done():
			return
		case req := <-c.sendCh:
			req.result <- c.doSend(buf, req.cemi)
		case <-heartbeat.C:
			if err := c.doHeartbeat(buf); err != nil {
				c.handleConnectionLost(err)
				return
			}
		default:
			if err := c.pollOnce(buf, c.cfg.ReceivePoll); err != nil {
				c.handleConnectionLost(err)
				return
			}
		}
	}
}

// pollOnce reads one datagram with the given deadline and dispatches
// it. Timeouts are not errors; transport failures are.
func (c *Client) pollOnce(buf []byte, wait time.Duration) error {
	if err := c.conn.SetReadDeadline(time.Now().Add(wait)); err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}

	n, err := c.conn.Read(buf)
	if err != nil {
		if c.isClosed() {
			return nil
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}

	c.dispatch(buf[:n])
	return nil
}

// drain dispatches datagrams already queued in the socket buffer,
// waiting at most drainReadWait per read. Returns how many datagrams
// were handled.
func (c *Client) drain(buf []byte, limit int) int {
	drained := 0
	for drained < limit {
		if err := c.conn.SetReadDeadline(time.Now().Add(drainReadWait)); err != nil {
			return drained
		}
		n, err := c.conn.Read(buf)
		if err != nil {
			return drained
		}
		c.dispatch(buf[:n])
		drained++
	}
	return drained
}

// dispatch routes one incoming frame. Only services that can arrive
// unsolicited are handled here; acks and heartbeat responses are
// consumed inline by the operation awaiting them.
func (c *Client) dispatch(data []byte) {
	frame, err := ParseFrame(data)
	if err != nil {
		c.errorsTotal.Add(1)
		c.logDebug("dropping unparseable datagram", "error", err)
		return
	}

	switch frame.Service {
	case ServiceTunnelingRequest:
		c.handleTunnelingRequest(frame.Body)
	case ServiceDisconnectRequest:
		c.handleGatewayDisconnect(frame.Body)
	case ServiceTunnelingAck, ServiceConnStateResponse:
		// Late arrival after its wait window expired.
		c.logDebug("unsolicited frame", "service", frame.Service.String())
	default:
		c.logDebug("ignoring frame", "service", frame.Service.String())
	}
}

// handleTunnelingRequest acknowledges an incoming telegram and queues
// it for the callback pool. A sequence mismatch is reported and held:
// no ack is sent, counters stay frozen, and the connection survives so
// the gateway retransmission can still land.
func (c *Client) handleTunnelingRequest(body []byte) {
	cemi, ack, err := c.tunnel.HandleTunnelingRequest(body)
	if err != nil {
		if errors.Is(err, ErrSequenceMismatch) {
			c.sequenceMismatches.Add(1)
			c.logWarn("tunneling sequence mismatch, withholding ack", "error", err)
			return
		}
		c.errorsTotal.Add(1)
		c.logError("tunneling request rejected", err)
		return
	}

	if _, err := c.conn.Write(ack); err != nil {
		c.errorsTotal.Add(1)
		c.logError("ack send failed", err)
	}

	msg, err := ParseMessage(cemi)
	if err != nil {
		c.errorsTotal.Add(1)
		c.logDebug("dropping unparseable cEMI", "error", err)
		return
	}

	// The gateway confirms our own sends with L_Data.con; only bus
	// indications reach the callback.
	if msg.Code != LDataInd {
		return
	}

	c.messagesRx.Add(1)
	c.lastActivity.Store(time.Now().Unix())

	c.callbackMu.RLock()
	hasCallback := c.onMessage != nil
	c.callbackMu.RUnlock()

	if hasCallback {
		select {
		case c.callbackQueue <- msg:
		default:
			// Queue full, drop message to prevent memory exhaustion
			c.logError("callback queue full, dropping message", nil)
			c.messagesDropped.Add(1)
			c.errorsTotal.Add(1)
		}
	}
}

// handleGatewayDisconnect answers a gateway-initiated disconnect and
// tears the client down.
func (c *Client) handleGatewayDisconnect(body []byte) {
	resp, err := c.tunnel.HandleDisconnectRequest(body)
	if err != nil {
		c.errorsTotal.Add(1)
		c.logError("gateway disconnect request malformed", err)
		return
	}
	if _, err := c.conn.Write(resp); err != nil {
		c.logError("disconnect response send failed", err)
	}
	c.handleConnectionLost(fmt.Errorf("%w: gateway closed the tunnel", ErrConnectionFailed))
}

// doSend runs the jitter-tolerant send protocol:
//
//  1. Drain datagrams already queued in the socket buffer, dispatching
//     each one, bounded by DrainLimit.
//  2. Wait DrainJitterDelay for stragglers, then drain again.
//  3. Build and send the tunneling request.
//  4. Wait for the matching ack, dispatching interleaved traffic.
//
// The pre-send drains keep a burst of queued indications from being
// misread as the ack and from colliding with the sequence counters.
// There is no automatic retry: a missing or failed ack is the
// caller's signal.
func (c *Client) doSend(buf []byte, cemi []byte) error {
	if c.tunnel.State() != StateConnected {
		return ErrNotConnected
	}

	if c.drain(buf, c.cfg.DrainLimit) > 0 {
		time.Sleep(c.cfg.DrainJitterDelay)
		c.drain(buf, c.cfg.DrainLimit)
	}

	request, err := c.tunnel.TunnelingRequest(cemi)
	if err != nil {
		return err
	}
	expected := c.tunnel.SendSequence() - 1

	if _, err := c.conn.Write(request); err != nil {
		c.errorsTotal.Add(1)
		return fmt.Errorf("%w: tunneling request: %w", ErrTransport, err)
	}

	if err := c.awaitAck(buf, expected); err != nil {
		c.errorsTotal.Add(1)
		return err
	}

	c.messagesTx.Add(1)
	c.lastActivity.Store(time.Now().Unix())
	return nil
}

// awaitAck reads until the ack for sequence arrives or the response
// timeout expires. Other traffic keeps flowing through dispatch.
func (c *Client) awaitAck(buf []byte, sequence uint8) error {
	deadline := time.Now().Add(c.cfg.ResponseTimeout)

	for {
		if err := c.conn.SetReadDeadline(deadline); err != nil {
			return fmt.Errorf("%w: %w", ErrTransport, err)
		}

		n, err := c.conn.Read(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return fmt.Errorf("%w: no ack for sequence %d within %s", ErrTimeout, sequence, c.cfg.ResponseTimeout)
			}
			return fmt.Errorf("%w: %w", ErrTransport, err)
		}

		frame, err := ParseFrame(buf[:n])
		if err != nil {
			c.errorsTotal.Add(1)
			continue
		}

		if frame.Service != ServiceTunnelingAck {
			c.dispatch(buf[:n])
			continue
		}

		tack, err := c.tunnel.HandleTunnelingAck(frame.Body)
		if err != nil {
			return err
		}
		if tack.Sequence != sequence {
			c.logDebug("stale ack", "got", tack.Sequence, "want", sequence)
			continue
		}
		return nil
	}
}

// doHeartbeat sends a connection state request and waits for the
// response. Failure means the gateway no longer knows the channel.
func (c *Client) doHeartbeat(buf []byte) error {
	request, err := c.tunnel.ConnStateRequest()
	if err != nil {
		return err
	}

	if _, err := c.conn.Write(request); err != nil {
		return fmt.Errorf("%w: heartbeat: %w", ErrTransport, err)
	}

	deadline := time.Now().Add(c.cfg.ResponseTimeout)

	for {
		if err := c.conn.SetReadDeadline(deadline); err != nil {
			return fmt.Errorf("%w: %w", ErrTransport, err)
		}

		n, err := c.conn.Read(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return fmt.Errorf("%w: no heartbeat response within %s", ErrTimeout, c.cfg.ResponseTimeout)
			}
			return fmt.Errorf("%w: %w", ErrTransport, err)
		}

		frame, err := ParseFrame(buf[:n])
		if err != nil {
			c.errorsTotal.Add(1)
			continue
		}

		if frame.Service != ServiceConnStateResponse {
			c.dispatch(buf[:n])
			continue
		}

		if err := c.tunnel.HandleConnStateResponse(frame.Body); err != nil {
			return err
		}
		c.heartbeatsTotal.Add(1)
		c.lastActivity.Store(time.Now().Unix())
		return nil
	}
}

// handleConnectionLost marks the client disconnected and notifies the
// owner. The engine exits after calling this.
func (c *Client) handleConnectionLost(cause error) {
	c.connMu.Lock()
	wasConnected := c.connected
	c.connected = false
	c.connMu.Unlock()

	c.tunnel.Reset()

	if !wasConnected || c.isClosed() {
		return
	}

	c.logInfo("tunnel lost", "cause", cause)

	c.disconnectMu.RLock()
	callback := c.onDisconnect
	c.disconnectMu.RUnlock()

	if callback != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.logError("disconnect callback panic", fmt.Errorf("%v", r))
				}
			}()
			callback(cause)
		}()
	}
}

// callbackWorker processes messages from the callback queue.
// Runs in a bounded worker pool to prevent goroutine explosion.
func (c *Client) callbackWorker() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done.Done():
			c.drainCallbackQueue()
			return
		case msg := <-c.callbackQueue:
			c.callbackMu.RLock()
			callback := c.onMessage
			c.callbackMu.RUnlock()

			if callback != nil {
				func() {
					defer func() {
						if r := recover(); r != nil {
							c.logError("message callback panic", fmt.Errorf("%v", r))
						}
					}()
					callback(msg)
				}()
			}
		}
	}
}

// drainCallbackQueue removes and discards any remaining items from the
// callback queue so shutdown never blocks on a full channel.
func (c *Client) drainCallbackQueue() {
	for {
		select {
		case <-c.callbackQueue:
		default:
			return
		}
	}
}

// isClosed returns true if the client has been closed.
func (c *Client) isClosed() bool {
	select {
	case <-c.done.Done():
		return true
	default:
		return false
	}
}

// Close disconnects from the gateway and releases all resources.
//
// The engine is stopped first, then a best-effort disconnect exchange
// runs on the now-quiet socket. Safe to call multiple times.
func (c *Client) Close() error {
	c.done.Close()

	// Nudge the engine out of a blocking read.
	c.conn.SetReadDeadline(time.Now()) //nolint:errcheck // best effort wakeup

	c.wg.Wait()

	c.gracefulDisconnect()

	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	c.conn.Close()
	c.logInfo("connection closed")
	return nil
}

// gracefulDisconnect runs the disconnect exchange. The engine has
// already stopped, so the tunnel is safe to touch directly.
func (c *Client) gracefulDisconnect() {
	if c.tunnel.State() != StateConnected {
		return
	}

	request, err := c.tunnel.DisconnectRequest()
	if err != nil {
		c.tunnel.Reset()
		return
	}
	if _, err := c.conn.Write(request); err != nil {
		c.tunnel.Reset()
		return
	}

	deadline := time.Now().Add(c.cfg.ResponseTimeout)
	buf := make([]byte, MaxFrameSize)

	for {
		if err := c.conn.SetReadDeadline(deadline); err != nil {
			break
		}
		n, err := c.conn.Read(buf)
		if err != nil {
			break
		}
		frame, err := ParseFrame(buf[:n])
		if err != nil || frame.Service != ServiceDisconnectResponse {
			continue
		}
		c.tunnel.HandleDisconnectResponse(frame.Body) //nolint:errcheck // tunnel resets either way
		return
	}

	// No response; the channel will age out on the gateway.
	c.tunnel.Reset()
}

// Send sends a group write telegram to the KNX bus and waits for the
// gateway ack.
//
// Parameters:
//   - ctx: Context for cancellation
//   - ga: Target group address
//   - data: DPT-encoded payload
//
// Returns:
//   - error: If the client is not connected, the ack is missing
//     (ErrTimeout) or reports failure (ErrTunnelingAckFailed)
func (c *Client) Send(ctx context.Context, ga knx.GroupAddress, data []byte) error {
	return c.submit(ctx, NewGroupWrite(c.source, ga, data).Encode())
}

// SendRead sends a group read request to the KNX bus. The answering
// telegram arrives later through the message callback.
func (c *Client) SendRead(ctx context.Context, ga knx.GroupAddress) error {
	return c.submit(ctx, NewGroupRead(c.source, ga).Encode())
}

// SendResponse answers a group read observed on the bus.
func (c *Client) SendResponse(ctx context.Context, ga knx.GroupAddress, data []byte) error {
	return c.submit(ctx, NewGroupResponse(c.source, ga, data).Encode())
}

// submit hands a cEMI payload to the engine and waits for the outcome.
func (c *Client) submit(ctx context.Context, cemi []byte) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if ctx == nil {
		ctx = context.Background()
	}

	req := &sendRequest{cemi: cemi, result: make(chan error, 1)}

	select {
	case c.sendCh <- req:
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
	case <-c.done.Done():
		return ErrNotConnected
	case <-c.engineExited.Done():
		return ErrNotConnected
	}

	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		// The engine will still complete the exchange; the buffered
		// result channel keeps it from blocking.
		return fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
	case <-c.done.Done():
		return ErrNotConnected
	case <-c.engineExited.Done():
		// The engine may have delivered the outcome just before
		// exiting; prefer it over a generic error.
		select {
		case err := <-req.result:
			return err
		default:
			return ErrNotConnected
		}
	}
}

// SetOnMessage sets the callback for received group telegrams.
//
// The callback runs on worker goroutines. Panics are recovered
// and logged.
func (c *Client) SetOnMessage(callback func(Message)) {
	c.callbackMu.Lock()
	c.onMessage = callback
	c.callbackMu.Unlock()
}

// SetOnDisconnect sets the callback invoked when the tunnel is lost
// for any reason other than Close.
func (c *Client) SetOnDisconnect(callback func(error)) {
	c.disconnectMu.Lock()
	c.onDisconnect = callback
	c.disconnectMu.Unlock()
}

// SetLogger sets the logger for this client.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// IsConnected returns true while the tunnel is established.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected
}

// Stats returns current operational statistics.
func (c *Client) Stats() ClientStats {
	return ClientStats{
		MessagesTx:         c.messagesTx.Load(),
		MessagesRx:         c.messagesRx.Load(),
		MessagesDropped:    c.messagesDropped.Load(),
		ErrorsTotal:        c.errorsTotal.Load(),
		SequenceMismatches: c.sequenceMismatches.Load(),
		Heartbeats:         c.heartbeatsTotal.Load(),
		LastActivity:       time.Unix(c.lastActivity.Load(), 0),
		Connected:          c.IsConnected(),
		Channel:            c.channel,
	}
}

// HealthCheck verifies the tunnel is established.
//
// Note: This only checks connection state. The heartbeat loop performs
// the active verification.
func (c *Client) HealthCheck(_ context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// logDebug logs a debug message if logger is set.
func (c *Client) logDebug(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

// logInfo logs an info message if logger is set.
func (c *Client) logInfo(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

// logWarn logs a warning message if logger is set.
func (c *Client) logWarn(msg string, keysAndValues ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

// logError logs an error message if logger is set.
func (c *Client) logError(msg string, err error) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
