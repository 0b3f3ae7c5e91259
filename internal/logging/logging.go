// Package logging builds the process logger.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/lmittmann/tint"

	"graphi/backend/internal/config"
)

// NewSlogLogger builds a logger from cfg and installs it as the default.
func NewSlogLogger(cfg config.Log) *slog.Logger {
	logger := New(os.Stdout, cfg)
	slog.SetDefault(logger)
	return logger
}

func New(w io.Writer, cfg config.Log) *slog.Logger {
	var handler slog.Handler

	if cfg.Format == config.LogFormatJSON {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:     cfg.Level,
			AddSource: cfg.AddSource,
		})
	} else {
		handler = tint.NewHandler(w, &tint.Options{
			Level:      cfg.Level,
			AddSource:  cfg.AddSource,
			TimeFormat: time.RFC3339,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				if a.Value.Kind() == slog.KindAny {
					if _, ok := a.Value.Any().(error); ok {
						return tint.Attr(9, a)
					}
				}
				return a
			},
		})
	}

	return slog.New(requestIDHandler{h: handler})
}

var _ slog.Handler = requestIDHandler{}

// requestIDHandler adds the chi request id carried by ctx to every record.
type requestIDHandler struct {
	h slog.Handler
}

func (rh requestIDHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return rh.h.Enabled(ctx, level)
}

func (rh requestIDHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := middleware.GetReqID(ctx); id != "" {
		r.AddAttrs(slog.String("request_id", id))
	}
	return rh.h.Handle(ctx, r)
}

func (rh requestIDHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return requestIDHandler{h: rh.h.WithAttrs(attrs)}
}

func (rh requestIDHandler) WithGroup(name string) slog.Handler {
	return requestIDHandler{h: rh.h.WithGroup(name)}
}
