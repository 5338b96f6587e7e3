package voicestream

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/mindgraph/voicestream/pkg/capture"
	"github.com/mindgraph/voicestream/pkg/client"
	"github.com/mindgraph/voicestream/pkg/configutil"
	"github.com/mindgraph/voicestream/pkg/logging"
	"github.com/mindgraph/voicestream/pkg/metrics"
	"github.com/mindgraph/voicestream/pkg/playback"
	"github.com/mindgraph/voicestream/pkg/redact"
	"github.com/mindgraph/voicestream/pkg/resilience"
	"github.com/mindgraph/voicestream/pkg/ticket"
)

// App is a fully wired streaming client: ticket issuer, websocket client,
// capture engine, playback queue and metrics, all built from one Config.
type App struct {
	Client   *client.Client
	Logger   *slog.Logger
	Recorder metrics.Recorder

	async       *metrics.AsyncRecorder
	inner       metrics.Recorder
	metricsFile *os.File
}

// New wires an App from config. The caller supplies the audio endpoints;
// everything between them comes from cfg.
func New(cfg Config, source capture.Source, player playback.Player) (*App, error) {
	logger := logging.InitLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogFormat)
	redact.SetEnabled(configutil.BoolValue(cfg.Privacy.RedactPII, true))

	app := &App{Logger: logger}
	recorder, err := app.buildRecorder(cfg.Metrics)
	if err != nil {
		return nil, err
	}
	app.Recorder = recorder

	vad, err := cfg.VadConfig()
	if err != nil {
		return nil, err
	}

	issuer := ticket.NewIssuer(cfg.Server.BaseURL, cfg.Server.AuthToken,
		time.Duration(cfg.Server.TicketTimeoutMS)*time.Millisecond)

	cl, err := client.New(client.Options{
		BaseURL:          cfg.Server.BaseURL,
		Tickets:          issuer,
		Source:           source,
		Player:           player,
		Logger:           logger,
		Recorder:         recorder,
		HandshakeTimeout: time.Duration(cfg.Connection.HandshakeTimeoutMS) * time.Millisecond,
		Backoff: resilience.Backoff{
			Base:        time.Duration(cfg.Connection.ReconnectBaseMS) * time.Millisecond,
			MaxAttempts: cfg.Connection.ReconnectMaxAttempts,
		},
		Vad: vad,
	})
	if err != nil {
		app.closeRecorder()
		return nil, err
	}
	app.Client = cl
	return app, nil
}

// Close disconnects and flushes the metrics sink.
func (a *App) Close() {
	if a.Client != nil {
		a.Client.Disconnect()
	}
	a.closeRecorder()
}

func (a *App) buildRecorder(cfg MetricsConfig) (metrics.Recorder, error) {
	var inner metrics.Recorder
	switch cfg.Sink {
	case "", "none":
		return metrics.NoopRecorder{}, nil
	case "memory":
		inner = metrics.NewMemoryRecorder()
	case "jsonl":
		if cfg.Path == "" {
			return nil, fmt.Errorf("metrics.path is required for the jsonl sink")
		}
		f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open metrics sink: %w", err)
		}
		a.metricsFile = f
		inner = metrics.NewJSONLRecorder(f)
	default:
		return nil, fmt.Errorf("unknown metrics sink %q", cfg.Sink)
	}
	a.inner = inner
	a.async = metrics.NewAsyncRecorder(inner, configutil.IntValue(cfg.Buffer, 256))
	return a.async, nil
}

func (a *App) closeRecorder() {
	if a.async != nil {
		a.async.Close()
		a.async = nil
	}
	if f, ok := a.inner.(metrics.Flusher); ok {
		_ = f.Flush()
	}
	a.inner = nil
	if a.metricsFile != nil {
		_ = a.metricsFile.Close()
		a.metricsFile = nil
	}
}
