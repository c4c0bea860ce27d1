package logger

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// actionsHandler writes plain text records and turns warn and error
// records into GitHub Actions workflow commands (::warning:: / ::error::),
// so they show up as annotations on the run.
type actionsHandler struct {
	w     io.Writer
	text  slog.Handler
	annot slog.Handler
	buf   *bytes.Buffer
	mu    *sync.Mutex
}

func newActionsHandler(w io.Writer, opts *slog.HandlerOptions) *actionsHandler {
	buf := &bytes.Buffer{}
	annotOpts := &slog.HandlerOptions{
		Level: opts.Level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && (a.Key == slog.TimeKey || a.Key == slog.LevelKey) {
				return slog.Attr{}
			}
			if opts.ReplaceAttr != nil {
				return opts.ReplaceAttr(groups, a)
			}
			return a
		},
	}
	return &actionsHandler{
		w:     w,
		text:  slog.NewTextHandler(w, opts),
		annot: slog.NewTextHandler(buf, annotOpts),
		buf:   buf,
		mu:    &sync.Mutex{},
	}
}

func (h *actionsHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.text.Enabled(ctx, level)
}

func (h *actionsHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level < slog.LevelWarn {
		return h.text.Handle(ctx, r)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.buf.Reset()
	if err := h.annot.Handle(ctx, r); err != nil {
		return err
	}
	command := "warning"
	if r.Level >= slog.LevelError {
		command = "error"
	}
	line := strings.TrimRight(h.buf.String(), "\n")
	_, err := fmt.Fprintf(h.w, "::%s::%s\n", command, escapeCommandData(line))
	return err
}

func (h *actionsHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &actionsHandler{
		w:     h.w,
		text:  h.text.WithAttrs(attrs),
		annot: h.annot.WithAttrs(attrs),
		buf:   h.buf,
		mu:    h.mu,
	}
}

func (h *actionsHandler) WithGroup(name string) slog.Handler {
	return &actionsHandler{
		w:     h.w,
		text:  h.text.WithGroup(name),
		annot: h.annot.WithGroup(name),
		buf:   h.buf,
		mu:    h.mu,
	}
}

// escapeCommandData escapes workflow command data the way the Actions
// runner expects.
func escapeCommandData(s string) string {
	s = strings.ReplaceAll(s, "%", "%25")
	s = strings.ReplaceAll(s, "\r", "%0D")
	s = strings.ReplaceAll(s, "\n", "%0A")
	return s
}
