package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mindgraph/voicestream/pkg/capture"
	"github.com/mindgraph/voicestream/pkg/errorsx"
	"github.com/mindgraph/voicestream/pkg/metrics"
	"github.com/mindgraph/voicestream/pkg/playback"
	"github.com/mindgraph/voicestream/pkg/protocol"
	"github.com/mindgraph/voicestream/pkg/resilience"
)

// --- fakes ---

type readResult struct {
	mt   int
	data []byte
	err  error
}

type fakeConn struct {
	in        chan readResult
	closeCh   chan struct{}
	closeOnce sync.Once

	mu     sync.Mutex
	writes []readResult
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan readResult, 32), closeCh: make(chan struct{})}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case r := <-f.in:
		return r.mt, r.data, r.err
	case <-f.closeCh:
		return 0, nil, &websocket.CloseError{Code: websocket.CloseAbnormalClosure}
	}
}

func (f *fakeConn) WriteMessage(mt int, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, readResult{mt: mt, data: append([]byte(nil), data...)})
	return nil
}

func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() { close(f.closeCh) })
	return nil
}

func (f *fakeConn) closed() bool {
	select {
	case <-f.closeCh:
		return true
	default:
		return false
	}
}

func (f *fakeConn) deliverText(s string) {
	f.in <- readResult{mt: websocket.TextMessage, data: []byte(s)}
}

func (f *fakeConn) deliverBinary(b []byte) {
	f.in <- readResult{mt: websocket.BinaryMessage, data: b}
}

func (f *fakeConn) failRead(err error) {
	f.in <- readResult{err: err}
}

func (f *fakeConn) textWrites() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, w := range f.writes {
		if w.mt == websocket.TextMessage {
			out = append(out, string(w.data))
		}
	}
	return out
}

func (f *fakeConn) binaryWriteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, w := range f.writes {
		if w.mt == websocket.BinaryMessage {
			n++
		}
	}
	return n
}

type fakeDialer struct {
	mu        sync.Mutex
	conns     []*fakeConn
	failAfter int // fail dials once count exceeds this (0 = never fail)
	dials     int
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.failAfter > 0 && d.dials > d.failAfter {
		return nil, errors.New("dial refused")
	}
	conn := newFakeConn()
	d.conns = append(d.conns, conn)
	return conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

type fakeTickets struct {
	mu    sync.Mutex
	err   error
	count int
}

func (f *fakeTickets) Fetch(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count++
	if f.err != nil {
		return "", f.err
	}
	return "ticket-0123456789", nil
}

func (f *fakeTickets) fetches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

type nullSource struct {
	mu   sync.Mutex
	live bool
	ch   chan []byte
}

func newNullSource() *nullSource { return &nullSource{live: true} }

func (s *nullSource) Start(ctx context.Context) (<-chan []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ch = make(chan []byte)
	return s.ch, nil
}
func (s *nullSource) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch != nil {
		close(s.ch)
		s.ch = nil
	}
	return nil
}
func (s *nullSource) Close() error {
	_ = s.Stop()
	s.mu.Lock()
	s.live = false
	s.mu.Unlock()
	return nil
}
func (s *nullSource) Live() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

type recordingPlayer struct {
	mu    sync.Mutex
	clips []playback.Clip
}

func (p *recordingPlayer) Play(ctx context.Context, clip playback.Clip) error {
	p.mu.Lock()
	p.clips = append(p.clips, playback.Clip{Data: append([]byte(nil), clip.Data...), Meta: clip.Meta})
	p.mu.Unlock()
	return nil
}
func (p *recordingPlayer) Cleanup() error { return nil }
func (p *recordingPlayer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clips)
}
func (p *recordingPlayer) clip(i int) playback.Clip {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.clips[i]
}

type testRig struct {
	client  *Client
	dialer  *fakeDialer
	tickets *fakeTickets
	player  *recordingPlayer
	rec     *metrics.MemoryRecorder
}

func newRig(t *testing.T, mutate func(*Options)) *testRig {
	t.Helper()
	dialer := &fakeDialer{}
	tickets := &fakeTickets{}
	player := &recordingPlayer{}
	rec := metrics.NewMemoryRecorder()
	opts := Options{
		BaseURL:          "https://api.local",
		Tickets:          tickets,
		Source:           newNullSource(),
		Player:           player,
		Dialer:           dialer,
		Recorder:         rec,
		HandshakeTimeout: 500 * time.Millisecond,
		Backoff:          resilience.NewBackoff(5*time.Millisecond, 5),
	}
	if mutate != nil {
		mutate(&opts)
	}
	c, err := New(opts)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return &testRig{client: c, dialer: dialer, tickets: tickets, player: player, rec: rec}
}

func agentParams() protocol.StartParams {
	return protocol.StartParams{GraphID: "g1", BranchID: "main", Pipeline: protocol.PipelineAgent}
}

// connect drives a successful handshake: the fake server acks with started.
func (r *testRig) connect(t *testing.T) {
	t.Helper()
	done := make(chan error, 1)
	go func() { done <- r.client.Connect(context.Background(), agentParams()) }()

	idx := r.dialer.dialCount()
	waitFor(t, func() bool { return r.dialer.conn(idx) != nil })
	r.dialer.conn(idx).deliverText(`{"type":"started"}`)
	if err := <-done; err != nil {
		t.Fatalf("connect: %v", err)
	}
}

// --- tests ---

func TestConnectHandshake(t *testing.T) {
	r := newRig(t, nil)
	r.connect(t)

	if r.client.State() != StateConnected {
		t.Fatalf("expected CONNECTED, got %s", r.client.State())
	}
	if !r.client.Connected() {
		t.Fatalf("Connected() should be true")
	}

	writes := r.dialer.conn(0).textWrites()
	if len(writes) != 1 {
		t.Fatalf("expected one start frame, got %d", len(writes))
	}
	var frame map[string]any
	if err := json.Unmarshal([]byte(writes[0]), &frame); err != nil {
		t.Fatalf("unmarshal start frame: %v", err)
	}
	if frame["type"] != "start" || frame["graph_id"] != "g1" || frame["branch_id"] != "main" {
		t.Fatalf("unexpected start frame %s", writes[0])
	}
	if frame["vad_mode"] != "server" {
		t.Fatalf("expected server vad mode")
	}
	vad := frame["vad_config"].(map[string]any)
	if vad["endSilenceMs"].(float64) != 800 {
		t.Fatalf("agent pipeline should default to 800ms end silence, got %v", vad["endSilenceMs"])
	}
	if frame["session_id"] == "" {
		t.Fatalf("session id should be defaulted")
	}
}

func TestConnectHandshakeTimeout(t *testing.T) {
	r := newRig(t, func(o *Options) { o.HandshakeTimeout = 30 * time.Millisecond })

	err := r.client.Connect(context.Background(), agentParams())
	if err == nil {
		t.Fatalf("expected timeout error")
	}
	if !errorsx.HasReason(err, errorsx.ReasonHandshakeTimeout) {
		t.Fatalf("expected handshake_timeout, got %s", errorsx.Reason(err))
	}
	if r.client.State() == StateConnected {
		t.Fatalf("state must not be CONNECTED after timeout")
	}
}

func TestTicketFetchFailureRejectsWithoutRetry(t *testing.T) {
	r := newRig(t, nil)
	r.tickets.err = errorsx.New(errorsx.ReasonTicketFetch, "ticket endpoint http 500")

	err := r.client.Connect(context.Background(), agentParams())
	if err == nil {
		t.Fatalf("expected error")
	}
	if !errorsx.HasReason(err, errorsx.ReasonTicketFetch) {
		t.Fatalf("expected ticket_fetch, got %s", errorsx.Reason(err))
	}
	if r.dialer.dialCount() != 0 {
		t.Fatalf("no socket should be dialed on ticket failure")
	}

	time.Sleep(50 * time.Millisecond)
	if r.dialer.dialCount() != 0 {
		t.Fatalf("ticket failure must not schedule a reconnect")
	}
	if r.client.State() != StateDisconnected {
		t.Fatalf("expected DISCONNECTED, got %s", r.client.State())
	}
}

func TestInvalidPipelineRejected(t *testing.T) {
	r := newRig(t, nil)
	err := r.client.Connect(context.Background(), protocol.StartParams{GraphID: "g", BranchID: "b", Pipeline: "video"})
	if err == nil {
		t.Fatalf("expected error for unknown pipeline")
	}
	if r.tickets.fetches() != 0 {
		t.Fatalf("no ticket should be fetched")
	}
}

func TestTerminalCloseCodeNeverReconnects(t *testing.T) {
	r := newRig(t, nil)
	var errMu sync.Mutex
	var emitted []error
	r.client.Handlers().OnError(func(err error) {
		errMu.Lock()
		emitted = append(emitted, err)
		errMu.Unlock()
	})
	r.connect(t)

	r.dialer.conn(0).failRead(&websocket.CloseError{Code: websocket.ClosePolicyViolation})
	waitFor(t, func() bool { return r.client.State() == StateFailed })

	time.Sleep(50 * time.Millisecond)
	if r.dialer.dialCount() != 1 {
		t.Fatalf("terminal close must not redial, got %d dials", r.dialer.dialCount())
	}
	if r.rec.Total(metrics.EventReconnectAttempt) != 0 {
		t.Fatalf("no reconnect attempt should be recorded")
	}
	errMu.Lock()
	defer errMu.Unlock()
	found := false
	for _, err := range emitted {
		if errorsx.HasReason(err, errorsx.ReasonCloseTerminal) {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected close_terminal error surfaced, got %v", emitted)
	}
}

func TestRecoverableCloseReconnectsAndResumes(t *testing.T) {
	r := newRig(t, nil)
	r.connect(t)

	r.dialer.conn(0).failRead(&websocket.CloseError{Code: websocket.CloseAbnormalClosure})
	waitFor(t, func() bool { return r.dialer.dialCount() == 2 })
	waitFor(t, func() bool { return r.dialer.conn(1) != nil && len(r.dialer.conn(1).textWrites()) == 1 })

	// Same retained start params are resent on the new socket.
	var frame map[string]any
	if err := json.Unmarshal([]byte(r.dialer.conn(1).textWrites()[0]), &frame); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if frame["type"] != "start" || frame["graph_id"] != "g1" {
		t.Fatalf("reconnect must resend the start frame, got %v", frame)
	}

	r.dialer.conn(1).deliverText(`{"type":"started"}`)
	waitFor(t, func() bool { return r.client.State() == StateConnected })

	if r.tickets.fetches() != 2 {
		t.Fatalf("reconnect must fetch a fresh ticket, got %d fetches", r.tickets.fetches())
	}
	if r.rec.Total(metrics.EventReconnectAttempt) != 1 {
		t.Fatalf("expected one reconnect attempt recorded")
	}
}

func TestReconnectExhaustionFails(t *testing.T) {
	r := newRig(t, func(o *Options) { o.Backoff = resilience.NewBackoff(time.Millisecond, 3) })
	r.dialer.failAfter = 1
	var errMu sync.Mutex
	var last error
	r.client.Handlers().OnError(func(err error) {
		errMu.Lock()
		if errorsx.HasReason(err, errorsx.ReasonReconnectExhausted) {
			last = err
		}
		errMu.Unlock()
	})
	r.connect(t)

	r.dialer.conn(0).failRead(&websocket.CloseError{Code: websocket.CloseGoingAway})
	waitFor(t, func() bool { return r.client.State() == StateFailed })

	errMu.Lock()
	defer errMu.Unlock()
	if last == nil {
		t.Fatalf("expected reconnect_exhausted surfaced")
	}
	if r.rec.Total(metrics.EventReconnectExhaust) != 1 {
		t.Fatalf("expected exhaustion recorded once")
	}
}

func TestDisconnectCancelsPendingReconnect(t *testing.T) {
	r := newRig(t, func(o *Options) { o.Backoff = resilience.NewBackoff(40*time.Millisecond, 5) })
	r.connect(t)

	r.dialer.conn(0).failRead(&websocket.CloseError{Code: websocket.CloseAbnormalClosure})
	waitFor(t, func() bool { return r.client.State() == StateReconnecting })

	r.client.Disconnect()
	if r.client.State() != StateDisconnected {
		t.Fatalf("expected DISCONNECTED, got %s", r.client.State())
	}

	time.Sleep(120 * time.Millisecond)
	if r.dialer.dialCount() != 1 {
		t.Fatalf("cancelled reconnect timer must not redial, got %d dials", r.dialer.dialCount())
	}
}

func TestDisconnectReleasesMicrophone(t *testing.T) {
	src := newNullSource()
	r := newRig(t, func(o *Options) { o.Source = src })
	r.connect(t)

	if err := r.client.StartRecording(); err != nil {
		t.Fatalf("start recording: %v", err)
	}
	if !r.client.Recording() {
		t.Fatalf("expected recording")
	}

	r.client.Disconnect()
	if r.client.Recording() {
		t.Fatalf("recording must stop on disconnect")
	}
	if src.Live() {
		t.Fatalf("microphone must be released on disconnect")
	}
}

func TestStopRecordingKeepsMicrophoneWarm(t *testing.T) {
	src := newNullSource()
	r := newRig(t, func(o *Options) { o.Source = src })
	r.connect(t)

	if err := r.client.StartRecording(); err != nil {
		t.Fatalf("start recording: %v", err)
	}
	if err := r.client.StopRecording(); err != nil {
		t.Fatalf("stop recording: %v", err)
	}
	if !src.Live() {
		t.Fatalf("stop must not release the microphone")
	}

	// end_utterance goes out with both client timestamps.
	waitFor(t, func() bool {
		for _, w := range r.dialer.conn(0).textWrites() {
			if jsonField(w, "type") == "end_utterance" {
				return true
			}
		}
		return false
	})
}

func TestStartRecordingRequiresConnected(t *testing.T) {
	r := newRig(t, nil)
	err := r.client.StartRecording()
	if err == nil {
		t.Fatalf("expected error when not connected")
	}
	if !errorsx.HasReason(err, errorsx.ReasonNotConnected) {
		t.Fatalf("expected not_connected, got %s", errorsx.Reason(err))
	}
}

func TestBinaryFrameRoutedWithTTSMeta(t *testing.T) {
	r := newRig(t, nil)
	r.connect(t)
	conn := r.dialer.conn(0)

	conn.deliverText(`{"type":"tts_start","format":"mp3","clip_id":"c1"}`)
	conn.deliverBinary([]byte("audio-1"))
	waitFor(t, func() bool { return r.player.count() == 1 })

	first := r.player.clip(0)
	if first.Meta == nil || first.Meta.Format != "mp3" || first.Meta.ClipID != "c1" {
		t.Fatalf("metadata not correlated: %+v", first.Meta)
	}

	// The slot is consumed; a second binary frame has no metadata.
	conn.deliverBinary([]byte("audio-2"))
	waitFor(t, func() bool { return r.player.count() == 2 })
	if r.player.clip(1).Meta != nil {
		t.Fatalf("expected nil metadata for uncorrelated frame")
	}
}

func TestBinaryFrameWithoutTTSStartTolerated(t *testing.T) {
	r := newRig(t, nil)
	r.connect(t)

	r.dialer.conn(0).deliverBinary([]byte("orphan"))
	waitFor(t, func() bool { return r.player.count() == 1 })
	if r.player.clip(0).Meta != nil {
		t.Fatalf("expected nil metadata")
	}
}

func TestTTSDoneClearsPendingMeta(t *testing.T) {
	r := newRig(t, nil)
	r.connect(t)
	conn := r.dialer.conn(0)

	conn.deliverText(`{"type":"tts_start","format":"mp3"}`)
	conn.deliverText(`{"type":"tts_done"}`)
	conn.deliverBinary([]byte("late"))
	waitFor(t, func() bool { return r.player.count() == 1 })
	if r.player.clip(0).Meta != nil {
		t.Fatalf("tts_done should clear pending metadata")
	}
}

func TestServerErrorRejectsPendingConnect(t *testing.T) {
	r := newRig(t, nil)
	done := make(chan error, 1)
	go func() { done <- r.client.Connect(context.Background(), agentParams()) }()

	waitFor(t, func() bool { return r.dialer.conn(0) != nil })
	r.dialer.conn(0).deliverText(`{"type":"stt_error","message":"model unavailable"}`)

	err := <-done
	if err == nil {
		t.Fatalf("expected connect rejection")
	}
	if !errorsx.HasReason(err, errorsx.ReasonServerError) {
		t.Fatalf("expected server_error, got %s", errorsx.Reason(err))
	}
}

func TestInterruptSendsFrameAndFlushesPlayback(t *testing.T) {
	r := newRig(t, nil)
	r.connect(t)

	r.client.Interrupt()
	found := false
	for _, w := range r.dialer.conn(0).textWrites() {
		if jsonField(w, "type") == "interrupt" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected interrupt frame written")
	}
	if r.rec.Total(metrics.EventPlaybackFlush) != 1 {
		t.Fatalf("expected playback flushed")
	}
}

func TestEventsForwardedToHandlers(t *testing.T) {
	r := newRig(t, nil)
	var mu sync.Mutex
	var transcripts []string
	var replies []string
	speechStarts := 0
	r.client.Handlers().OnTranscript(func(ev protocol.TranscriptEvent) {
		mu.Lock()
		transcripts = append(transcripts, ev.Text)
		mu.Unlock()
	})
	r.client.Handlers().OnAgentReply(func(ev protocol.AgentReplyEvent) {
		mu.Lock()
		replies = append(replies, ev.Text)
		mu.Unlock()
	})
	r.client.Handlers().OnSpeechStart(func(protocol.SpeechStartEvent) {
		mu.Lock()
		speechStarts++
		mu.Unlock()
	})
	r.connect(t)
	conn := r.dialer.conn(0)

	conn.deliverText(`{"type":"vad_speech_start"}`)
	conn.deliverText(`{"type":"transcript","text":"hello there"}`)
	conn.deliverText(`{"type":"agent_reply","text":"hi!"}`)
	conn.deliverText(`{"type":"totally_new_event"}`)

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(transcripts) == 1 && len(replies) == 1 && speechStarts == 1
	})
	mu.Lock()
	defer mu.Unlock()
	if transcripts[0] != "hello there" || replies[0] != "hi!" {
		t.Fatalf("events not forwarded verbatim")
	}
}

func TestHandlerSwapWhileConnected(t *testing.T) {
	r := newRig(t, nil)
	r.connect(t)
	conn := r.dialer.conn(0)

	var mu sync.Mutex
	var got []string
	r.client.Handlers().OnTranscript(func(ev protocol.TranscriptEvent) {
		mu.Lock()
		got = append(got, "first:"+ev.Text)
		mu.Unlock()
	})
	conn.deliverText(`{"type":"transcript","text":"a"}`)
	waitFor(t, func() bool { mu.Lock(); defer mu.Unlock(); return len(got) == 1 })

	r.client.Handlers().OnTranscript(func(ev protocol.TranscriptEvent) {
		mu.Lock()
		got = append(got, "second:"+ev.Text)
		mu.Unlock()
	})
	conn.deliverText(`{"type":"transcript","text":"b"}`)
	waitFor(t, func() bool { mu.Lock(); defer mu.Unlock(); return len(got) == 2 })

	mu.Lock()
	defer mu.Unlock()
	if got[1] != "second:b" {
		t.Fatalf("swapped handler not used: %v", got)
	}
}

func TestConnectSupersedesExistingSocket(t *testing.T) {
	r := newRig(t, nil)
	r.connect(t)
	if r.dialer.dialCount() != 1 {
		t.Fatalf("expected one dial")
	}

	done := make(chan error, 1)
	go func() { done <- r.client.Connect(context.Background(), agentParams()) }()
	waitFor(t, func() bool { return r.dialer.conn(1) != nil })
	r.dialer.conn(1).deliverText(`{"type":"started"}`)
	if err := <-done; err != nil {
		t.Fatalf("second connect: %v", err)
	}
	if r.client.State() != StateConnected {
		t.Fatalf("expected CONNECTED")
	}
	if r.dialer.dialCount() != 2 {
		t.Fatalf("expected two dials")
	}
}

func TestStaleConnectTimeoutLeavesNewSocketAlone(t *testing.T) {
	r := newRig(t, func(o *Options) { o.HandshakeTimeout = 60 * time.Millisecond })

	// First attempt never gets its started ack.
	first := make(chan error, 1)
	go func() { first <- r.client.Connect(context.Background(), agentParams()) }()
	waitFor(t, func() bool { return r.dialer.conn(0) != nil && len(r.dialer.conn(0).textWrites()) == 1 })

	// Supersede it before the ack timeout fires.
	second := make(chan error, 1)
	go func() { second <- r.client.Connect(context.Background(), agentParams()) }()
	waitFor(t, func() bool { return r.dialer.conn(1) != nil })
	r.dialer.conn(1).deliverText(`{"type":"started"}`)
	if err := <-second; err != nil {
		t.Fatalf("second connect: %v", err)
	}

	err := <-first
	if err == nil {
		t.Fatalf("superseded connect must not resolve")
	}

	// The stale attempt's timeout must not tear down the live session.
	time.Sleep(80 * time.Millisecond)
	if r.client.State() != StateConnected {
		t.Fatalf("expected CONNECTED after stale timeout, got %s", r.client.State())
	}
	if r.dialer.conn(1).closed() {
		t.Fatalf("stale teardown closed the superseding socket")
	}
	r.client.Interrupt()
	found := false
	for _, w := range r.dialer.conn(1).textWrites() {
		if jsonField(w, "type") == "interrupt" {
			found = true
		}
	}
	if !found {
		t.Fatalf("live socket must still accept writes")
	}
}

func TestReconnectStateSequenceOrdered(t *testing.T) {
	r := newRig(t, func(o *Options) { o.Backoff = resilience.NewBackoff(time.Millisecond, 5) })
	var mu sync.Mutex
	var states []State
	r.client.Handlers().OnStateChange(func(from, to State) {
		mu.Lock()
		states = append(states, to)
		mu.Unlock()
	})
	r.connect(t)

	r.dialer.conn(0).failRead(&websocket.CloseError{Code: websocket.CloseAbnormalClosure})
	waitFor(t, func() bool { return r.dialer.conn(1) != nil })
	r.dialer.conn(1).deliverText(`{"type":"started"}`)
	waitFor(t, func() bool { return r.client.State() == StateConnected })

	mu.Lock()
	defer mu.Unlock()
	want := []State{StateConnecting, StateConnected, StateReconnecting, StateConnecting, StateConnected}
	if len(states) != len(want) {
		t.Fatalf("unexpected state sequence: %v", states)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Fatalf("state[%d] = %s, want %s (full: %v)", i, states[i], want[i], states)
		}
	}
}

func jsonField(raw, key string) string {
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition never met")
}

var _ capture.Source = (*nullSource)(nil)
