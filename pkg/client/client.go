package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mindgraph/voicestream/pkg/capture"
	"github.com/mindgraph/voicestream/pkg/errorsx"
	"github.com/mindgraph/voicestream/pkg/logging"
	"github.com/mindgraph/voicestream/pkg/metrics"
	"github.com/mindgraph/voicestream/pkg/playback"
	"github.com/mindgraph/voicestream/pkg/protocol"
	"github.com/mindgraph/voicestream/pkg/resilience"
	"github.com/mindgraph/voicestream/pkg/ticket"
)

const defaultHandshakeTimeout = 8 * time.Second

// Conn is the subset of a websocket connection the client needs.
// *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens websocket connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

type wsDialer struct{}

func (wsDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket dial failed (status %d): %w", resp.StatusCode, err)
		}
		return nil, err
	}
	return conn, nil
}

// TicketSource issues single-use websocket credentials.
type TicketSource interface {
	Fetch(ctx context.Context) (string, error)
}

// Options configure a streaming client.
type Options struct {
	BaseURL string
	Tickets TicketSource
	Source  capture.Source
	Player  playback.Player

	// Optional.
	Dialer           Dialer
	Logger           *slog.Logger
	Recorder         metrics.Recorder
	HandshakeTimeout time.Duration
	Backoff          resilience.Backoff
	Vad              protocol.VadConfig
}

// Client owns the socket, the start/started handshake and the reconnect
// state machine, and composes the capture engine and playback queue.
type Client struct {
	tickets  TicketSource
	baseURL  string
	dialer   Dialer
	logger   *slog.Logger
	recorder metrics.Recorder
	backoff  resilience.Backoff
	ackWait  time.Duration

	fsm      *stateMachine
	handlers *Handlers
	engine   *capture.Engine
	queue    *playback.Queue

	writeMu sync.Mutex

	mu             sync.Mutex
	conn           Conn
	gen            uint64
	params         protocol.StartParams
	vad            protocol.VadConfig
	attempts       int
	intentional    bool
	reconnectTimer *time.Timer
	pendingTTS     *protocol.TTSMeta
	ackCh          chan error
}

// New builds a client. Tickets, Source and Player are required.
func New(opts Options) (*Client, error) {
	if opts.Tickets == nil {
		return nil, errors.New("ticket source is required")
	}
	if opts.Source == nil {
		return nil, errors.New("audio source is required")
	}
	if opts.Player == nil {
		return nil, errors.New("audio player is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	dialer := opts.Dialer
	if dialer == nil {
		dialer = wsDialer{}
	}
	ackWait := opts.HandshakeTimeout
	if ackWait <= 0 {
		ackWait = defaultHandshakeTimeout
	}

	c := &Client{
		tickets:  opts.Tickets,
		baseURL:  opts.BaseURL,
		dialer:   dialer,
		logger:   logging.NewComponentLogger(logger, "voice_client"),
		recorder: opts.Recorder,
		backoff:  resilience.NewBackoff(opts.Backoff.Base, opts.Backoff.MaxAttempts),
		ackWait:  ackWait,
		fsm:      newStateMachine(),
		handlers: &Handlers{},
		vad:      opts.Vad,
	}
	c.engine = capture.NewEngine(opts.Source, c, logger, opts.Recorder)
	c.queue = playback.NewQueue(opts.Player, logger, opts.Recorder)
	c.fsm.AddListener(c.handlers.emitStateChange)
	return c, nil
}

// Handlers returns the mutable callback table. Updating it does not touch
// the open socket.
func (c *Client) Handlers() *Handlers { return c.handlers }

// State returns the current connection state.
func (c *Client) State() State { return c.fsm.State() }

// Recording reports whether audio capture is active.
func (c *Client) Recording() bool { return c.engine.Recording() }

// Connect establishes a session. Any previous socket is superseded first.
// It blocks until the started ack arrives, the handshake times out, or ctx
// is cancelled. Ticket fetch failures reject immediately without retry.
func (c *Client) Connect(ctx context.Context, params protocol.StartParams) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if !params.Pipeline.Valid() {
		return fmt.Errorf("unknown pipeline %q", params.Pipeline)
	}
	if params.SessionID == "" {
		params.SessionID = uuid.NewString()
	}

	c.mu.Lock()
	c.intentional = false
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	old := c.conn
	c.conn = nil
	c.gen++
	genStart := c.gen
	c.attempts = 0
	c.params = params
	c.pendingTTS = nil
	ack := make(chan error, 1)
	c.ackCh = ack
	vad := c.vad
	c.mu.Unlock()

	if old != nil {
		_ = old.Close()
	}
	if err := c.fsm.Transition(StateConnecting); err != nil {
		return err
	}

	dialStart := time.Now()
	gen, err := c.openSocket(ctx, genStart, params, vad)
	if err != nil {
		want := genStart
		if gen != 0 {
			want = gen
		}
		stale := c.currentGen() != want
		c.clearAck(ack)
		if gen != 0 {
			c.teardownSocket(gen)
		}
		if !stale {
			_ = c.fsm.Transition(StateDisconnected)
		}
		c.handlers.emitError(err)
		return err
	}

	// Every teardown below is scoped to this attempt's generation: a later
	// Connect supersedes this one, and a stale timeout must not touch the
	// newer socket or state.
	timer := time.NewTimer(c.ackWait)
	defer timer.Stop()
	select {
	case err := <-ack:
		if err != nil {
			stale := c.currentGen() != gen
			c.teardownSocket(gen)
			if !stale {
				_ = c.fsm.Transition(StateDisconnected)
			}
			return err
		}
		metrics.Timing(c.recorder, metrics.EventConnectLatency, time.Since(dialStart), nil)
		return nil
	case <-timer.C:
		stale := c.currentGen() != gen
		c.clearAck(ack)
		c.teardownSocket(gen)
		if !stale {
			_ = c.fsm.Transition(StateDisconnected)
		}
		return errorsx.New(errorsx.ReasonHandshakeTimeout, "timed out waiting for started ack")
	case <-ctx.Done():
		stale := c.currentGen() != gen
		c.clearAck(ack)
		c.teardownSocket(gen)
		if !stale {
			_ = c.fsm.Transition(StateDisconnected)
		}
		return ctx.Err()
	}
}

// openSocket fetches a ticket, dials, installs the connection and sends the
// start frame. Shared between Connect and the reconnect path. The socket is
// installed only while the client is still at generation want; it returns
// the generation of the installed socket.
func (c *Client) openSocket(ctx context.Context, want uint64, params protocol.StartParams, vad protocol.VadConfig) (uint64, error) {
	tkt, err := c.tickets.Fetch(ctx)
	if err != nil {
		return 0, err
	}
	endpoint, err := ticket.WSEndpoint(c.baseURL, tkt)
	if err != nil {
		return 0, errorsx.Wrap(err, errorsx.ReasonDial)
	}

	conn, err := c.dialer.Dial(ctx, endpoint)
	if err != nil {
		return 0, errorsx.Wrap(err, errorsx.ReasonDial)
	}

	c.mu.Lock()
	if c.intentional || c.gen != want {
		c.mu.Unlock()
		_ = conn.Close()
		return 0, errorsx.New(errorsx.ReasonSocket, "connection superseded")
	}
	c.gen++
	gen := c.gen
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(gen, conn)

	if err := c.writeJSON(protocol.NewStartFrame(params, vad)); err != nil {
		return gen, errorsx.Wrap(err, errorsx.ReasonSend)
	}
	c.logger.Info("start_frame_sent",
		slog.String("graph_id", params.GraphID),
		slog.String("branch_id", params.BranchID),
		slog.String("pipeline", string(params.Pipeline)))
	return gen, nil
}

// Disconnect tears the session down: cancels any pending reconnect, closes
// the socket, stops the recorder and releases the microphone, and drains
// playback. This is the only path that releases the capture device.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.intentional = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	old := c.conn
	c.conn = nil
	c.gen++
	ack := c.ackCh
	c.ackCh = nil
	c.pendingTTS = nil
	c.attempts = 0
	c.mu.Unlock()

	if ack != nil {
		ack <- errorsx.New(errorsx.ReasonSocket, "disconnected")
	}
	if old != nil {
		c.writeMu.Lock()
		_ = old.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMu.Unlock()
		_ = old.Close()
	}
	_ = c.engine.Release()
	c.queue.Interrupt()
	_ = c.fsm.Transition(StateDisconnected)
	c.logger.Info("disconnected")
}

// Interrupt asks the server to stop synthesizing and silences local
// playback immediately (barge-in). Best-effort; state is unchanged.
func (c *Client) Interrupt() {
	_ = c.SendControl(protocol.NewInterruptFrame())
	c.queue.Interrupt()
}

// StartRecording begins streaming microphone audio. No-op while recording;
// errors when not connected.
func (c *Client) StartRecording() error {
	if err := c.engine.Start(); err != nil {
		c.handlers.emitError(err)
		return err
	}
	return nil
}

// StopRecording finalizes the current utterance. The microphone stays warm
// for the next StartRecording.
func (c *Client) StopRecording() error {
	return c.engine.Stop()
}

// Connected reports whether the session is live.
func (c *Client) Connected() bool {
	c.mu.Lock()
	open := c.conn != nil
	c.mu.Unlock()
	return open && c.fsm.State() == StateConnected
}

// SendAudio writes one binary chunk. Chunks sent while the socket is not
// open are dropped by the caller; this returns an error instead of queueing.
func (c *Client) SendAudio(chunk []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errorsx.New(errorsx.ReasonNotConnected, "socket not open")
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return errorsx.Wrap(conn.WriteMessage(websocket.BinaryMessage, chunk), errorsx.ReasonSend)
}

// SendControl writes one JSON control frame.
func (c *Client) SendControl(frame any) error {
	return c.writeJSON(frame)
}

func (c *Client) writeJSON(frame any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return errorsx.New(errorsx.ReasonNotConnected, "socket not open")
	}
	data, err := protocol.Encode(frame)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return errorsx.Wrap(conn.WriteMessage(websocket.TextMessage, data), errorsx.ReasonSend)
}

func (c *Client) readLoop(gen uint64, conn Conn) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			c.handleSocketClosed(gen, err)
			return
		}
		switch messageType {
		case websocket.TextMessage:
			c.handleText(gen, data)
		case websocket.BinaryMessage:
			c.handleBinary(gen, data)
		}
	}
}

func (c *Client) handleSocketClosed(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.gen || c.intentional {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.pendingTTS = nil
	ack := c.ackCh
	c.ackCh = nil
	c.mu.Unlock()

	code := websocket.CloseAbnormalClosure
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		code = ce.Code
	}

	if !protocol.CloseRecoverable(code) {
		terminal := errorsx.New(errorsx.ReasonCloseTerminal,
			fmt.Sprintf("voice session rejected by server (close code %d)", code))
		if ack != nil {
			ack <- terminal
		}
		_ = c.fsm.Transition(StateFailed)
		c.handlers.emitError(terminal)
		c.logger.Error("socket_closed_terminal", slog.Int("code", code))
		return
	}

	transport := errorsx.Wrap(err, errorsx.ReasonSocket)
	if ack != nil {
		ack <- transport
	}
	c.handlers.emitError(transport)
	c.logger.Warn("socket_closed", slog.Int("code", code), slog.String("error", err.Error()))
	c.scheduleReconnect()
}

func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	if c.intentional {
		c.mu.Unlock()
		return
	}
	c.attempts++
	attempt := c.attempts
	c.mu.Unlock()

	if c.backoff.Exhausted(attempt) {
		metrics.Count(c.recorder, metrics.EventReconnectExhaust, nil)
		_ = c.fsm.Transition(StateFailed)
		c.handlers.emitError(errorsx.New(errorsx.ReasonReconnectExhausted,
			"connection lost; reload the page and try again"))
		c.logger.Error("reconnect_exhausted", slog.Int("attempts", attempt-1))
		return
	}

	metrics.Count(c.recorder, metrics.EventReconnectAttempt, nil)
	_ = c.fsm.Transition(StateReconnecting)

	// Armed only after the Reconnecting transition: reopen's Connecting
	// transition always observes it, even with a very short delay.
	delay := c.backoff.Delay(attempt)
	c.mu.Lock()
	if c.intentional {
		c.mu.Unlock()
		return
	}
	gen := c.gen
	c.reconnectTimer = time.AfterFunc(delay, func() { c.reopen(gen) })
	c.mu.Unlock()

	c.logger.Info("reconnect_scheduled",
		slog.Int("attempt", attempt),
		slog.Duration("delay", delay))
}

// reopen runs one reconnect cycle with the retained start params. A fresh
// ticket is fetched every time; tickets are single use.
func (c *Client) reopen(gen uint64) {
	c.mu.Lock()
	if c.intentional || gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.reconnectTimer = nil
	params := c.params
	vad := c.vad
	c.mu.Unlock()

	_ = c.fsm.Transition(StateConnecting)
	if _, err := c.openSocket(context.Background(), gen, params, vad); err != nil {
		c.handlers.emitError(err)
		c.logger.Warn("reconnect_open_failed", slog.String("error", err.Error()))
		c.scheduleReconnect()
	}
}

func (c *Client) handleText(gen uint64, data []byte) {
	ev, err := protocol.DecodeServerEvent(data)
	if err != nil {
		c.logger.Warn("bad_event_frame", slog.String("error", err.Error()))
		return
	}

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	c.dispatch(gen, ev)
}

func (c *Client) handleBinary(gen uint64, data []byte) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	// tts_start for a clip always precedes its binary frame; a missing one
	// means the header frame was lost and the clip plays with defaults.
	meta := c.pendingTTS
	c.pendingTTS = nil
	c.mu.Unlock()

	c.queue.Enqueue(data, meta)
}

// teardownSocket discards the socket belonging to gen. A no-op when the
// client has already moved to a newer generation.
func (c *Client) teardownSocket(gen uint64) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	old := c.conn
	c.conn = nil
	c.gen++
	c.pendingTTS = nil
	c.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
}

// clearAck drops the pending ack channel, but only if it still belongs to
// the caller's attempt.
func (c *Client) clearAck(ack chan error) {
	c.mu.Lock()
	if c.ackCh == ack {
		c.ackCh = nil
	}
	c.mu.Unlock()
}

func (c *Client) currentGen() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}
