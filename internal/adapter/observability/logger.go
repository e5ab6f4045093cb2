package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/fairyhunter13/ai-signal-executor/internal/config"
)

// SetupLogger configures a JSON slog logger with environment fields.
// When a log webhook URL is configured, warn-and-above records are
// mirrored to it without blocking the caller.
func SetupLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}
	if cfg.IsDev() || cfg.Debug {
		opts.Level = slog.LevelDebug
	}
	var h slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if cfg.LogWebhookURL != "" {
		h = newWebhookHandler(h, cfg.LogWebhookURL)
	}
	logger := slog.New(h).With(
		slog.String("service", cfg.OTELServiceName),
		slog.String("env", cfg.AppEnv),
	)
	return logger
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// webhookHandler fans warn/error records out to an operator webhook.
// Delivery is fire-and-forget; a failed post never fails the log call.
type webhookHandler struct {
	slog.Handler
	url    string
	client *http.Client
}

func newWebhookHandler(next slog.Handler, url string) *webhookHandler {
	return &webhookHandler{Handler: next, url: url, client: &http.Client{Timeout: 5 * time.Second}}
}

func (h *webhookHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelWarn {
		payload := map[string]any{
			"level":   r.Level.String(),
			"message": r.Message,
			"time":    r.Time.UTC().Format(time.RFC3339),
		}
		r.Attrs(func(a slog.Attr) bool {
			payload[a.Key] = a.Value.String()
			return true
		})
		go h.post(payload)
	}
	return h.Handler.Handle(ctx, r)
}

func (h *webhookHandler) post(payload map[string]any) {
	b, err := json.Marshal(payload)
	if err != nil {
		return
	}
	resp, err := h.client.Post(h.url, "application/json", bytes.NewReader(b))
	if err != nil {
		return
	}
	_ = resp.Body.Close()
}

func (h *webhookHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &webhookHandler{Handler: h.Handler.WithAttrs(attrs), url: h.url, client: h.client}
}

func (h *webhookHandler) WithGroup(name string) slog.Handler {
	return &webhookHandler{Handler: h.Handler.WithGroup(name), url: h.url, client: h.client}
}
