package observability

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/ai-signal-executor/internal/config"
)

func TestSetupLoggerLevels(t *testing.T) {
	l := SetupLogger(config.Config{AppEnv: "dev", OTELServiceName: "svc"})
	require.NotNil(t, l)
	assert.True(t, l.Enabled(nil, slog.LevelDebug))

	l = SetupLogger(config.Config{AppEnv: "prod", LogLevel: "warn", OTELServiceName: "svc"})
	assert.False(t, l.Enabled(nil, slog.LevelInfo))
	assert.True(t, l.Enabled(nil, slog.LevelWarn))
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	assert.Equal(t, slog.LevelDebug, parseLevel("debug"))
	assert.Equal(t, slog.LevelError, parseLevel("ERROR"))
	assert.Equal(t, slog.LevelInfo, parseLevel("bogus"))
}

func TestWebhookHandlerForwardsWarnings(t *testing.T) {
	var mu sync.Mutex
	var got []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		var payload map[string]any
		_ = json.Unmarshal(b, &payload)
		mu.Lock()
		got = append(got, payload)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	l := SetupLogger(config.Config{AppEnv: "prod", OTELServiceName: "svc", LogWebhookURL: srv.URL})
	l.Info("routine")
	l.Warn("order rejected", slog.String("thread_id", "t1"))

	// delivery is async
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "order rejected", got[0]["message"])
	assert.Equal(t, "WARN", got[0]["level"])
	assert.Equal(t, "t1", got[0]["thread_id"])
}
