package metrics

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"sync"
)

// JSONLRecorder writes one JSON line per event, suitable for session
// artifacts and offline latency analysis. Output is buffered; call Flush
// before closing the underlying writer.
type JSONLRecorder struct {
	mu     sync.Mutex
	buf    *bufio.Writer
	logger *slog.Logger
}

func NewJSONLRecorder(w io.Writer) *JSONLRecorder {
	if w == nil {
		w = io.Discard
	}
	buf := bufio.NewWriter(w)
	return &JSONLRecorder{
		buf:    buf,
		logger: slog.New(slog.NewJSONHandler(buf, nil)),
	}
}

func (o *JSONLRecorder) RecordEvent(ev Event) {
	attrs := []slog.Attr{
		slog.String("name", ev.Name),
		slog.Time("time", ev.Time),
		slog.Float64("value", ev.Value),
	}
	for k, v := range ev.Tags {
		attrs = append(attrs, slog.String(k, v))
	}
	for k, v := range ev.Fields {
		attrs = append(attrs, slog.Any(k, v))
	}
	o.mu.Lock()
	o.logger.LogAttrs(context.TODO(), slog.LevelInfo, "metrics", attrs...)
	o.mu.Unlock()
}

func (o *JSONLRecorder) Flush() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.Flush()
}
