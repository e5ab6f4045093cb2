package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fairyhunter13/ai-signal-executor/internal/config"
	"github.com/fairyhunter13/ai-signal-executor/internal/domain"
)

const maxTradeListLimit = 500

// QueueStats is the slice of the queue the ops surface needs: depth per
// state, nothing that can mutate it.
type QueueStats interface {
	Stats(ctx context.Context) (map[string]int64, error)
}

// Server bundles the dependencies for the operator endpoints.
type Server struct {
	Cfg       config.Config
	Queue     QueueStats
	Settings  domain.Settings
	Trades    domain.TradeRepository
	Scheduler domain.Scheduler

	DBCheck      func(context.Context) error
	RedisCheck   func(context.Context) error
	LLMCheck     func(context.Context) error
	GatewayCheck func(context.Context) error
}

// NewServer wires the handler dependencies.
func NewServer(cfg config.Config, queue QueueStats, settings domain.Settings, trades domain.TradeRepository, scheduler domain.Scheduler, dbCheck, redisCheck, llmCheck, gatewayCheck func(context.Context) error) *Server {
	return &Server{
		Cfg: cfg, Queue: queue, Settings: settings, Trades: trades, Scheduler: scheduler,
		DBCheck: dbCheck, RedisCheck: redisCheck, LLMCheck: llmCheck, GatewayCheck: gatewayCheck,
	}
}

// QueueStatsHandler reports queue depth per state.
func (s *Server) QueueStatsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := s.Queue.Stats(r.Context())
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

// ConfigGetHandler returns the current runtime config snapshot.
func (s *Server) ConfigGetHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg, err := s.Settings.Snapshot(r.Context())
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, cfg)
	}
}

// ConfigPutHandler applies a partial runtime-config update. The body is
// a JSON object keyed by setting name; values keep their natural JSON
// types (bools, numbers, strings, string arrays). Unknown keys reject
// the whole request before anything is written.
func (s *Server) ConfigPutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var updates map[string]any
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&updates); err != nil {
			writeError(w, r, fmt.Errorf("decode body: %w", domain.ErrInvalidArgument), err.Error())
			return
		}
		if len(updates) == 0 {
			writeError(w, r, fmt.Errorf("empty update: %w", domain.ErrInvalidArgument), nil)
			return
		}
		encoded := make(map[string]string, len(updates))
		for key, value := range updates {
			if !domain.IsRuntimeConfigKey(key) {
				writeError(w, r, fmt.Errorf("unknown key %q: %w", key, domain.ErrInvalidArgument), nil)
				return
			}
			ev, err := encodeSettingValue(value)
			if err != nil {
				writeError(w, r, fmt.Errorf("key %q: %w", key, domain.ErrInvalidArgument), err.Error())
				return
			}
			encoded[key] = ev
		}
		// Deterministic write order so partial failures are reproducible.
		keys := make([]string, 0, len(encoded))
		for k := range encoded {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if err := s.Settings.Set(r.Context(), key, encoded[key]); err != nil {
				writeError(w, r, err, map[string]string{"key": key})
				return
			}
		}
		cfg, err := s.Settings.Snapshot(r.Context())
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		LoggerFrom(r).Info("runtime config updated via api", "keys", keys)
		writeJSON(w, http.StatusOK, cfg)
	}
}

func encodeSettingValue(v any) (string, error) {
	switch tv := v.(type) {
	case bool:
		return strconv.FormatBool(tv), nil
	case float64:
		return strconv.FormatFloat(tv, 'g', -1, 64), nil
	case string:
		return tv, nil
	case []any:
		list := make([]string, 0, len(tv))
		for _, item := range tv {
			s, ok := item.(string)
			if !ok {
				return "", fmt.Errorf("list values must be strings")
			}
			list = append(list, s)
		}
		b, err := json.Marshal(list)
		if err != nil {
			return "", err
		}
		return string(b), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}

// TradesHandler lists recent trades, newest first. ?limit caps the page.
func (s *Server) TradesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				writeError(w, r, fmt.Errorf("limit must be a positive integer: %w", domain.ErrInvalidArgument), nil)
				return
			}
			limit = n
		}
		if limit > maxTradeListLimit {
			limit = maxTradeListLimit
		}
		trades, err := s.Trades.ListRecent(r.Context(), limit)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		if trades == nil {
			trades = []domain.Trade{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"trades": trades})
	}
}

// ScheduledHandler lists pending reanalysis entries in due order.
func (s *Server) ScheduledHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := s.Scheduler.Scheduled(r.Context())
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		if entries == nil {
			entries = []domain.ScheduledEntry{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"scheduled": entries})
	}
}

// ScheduledCancelHandler removes one pending reanalysis entry.
func (s *Server) ScheduledCancelHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		threadID := chi.URLParam(r, "thread_id")
		removed, err := s.Scheduler.Cancel(r.Context(), threadID)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		if !removed {
			writeError(w, r, fmt.Errorf("thread %q has no scheduled entry: %w", threadID, domain.ErrNotFound), nil)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// ReadyzHandler probes Postgres, Redis, the LLM proxy and the broker
// gateway. A failing gateway check degrades, not fails, readiness:
// dry-run processing works without it.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		probes := []struct {
			name     string
			fn       func(context.Context) error
			required bool
		}{
			{"db", s.DBCheck, true},
			{"redis", s.RedisCheck, true},
			{"llm", s.LLMCheck, true},
			{"gateway", s.GatewayCheck, false},
		}
		checks := make([]check, 0, len(probes))
		ready := true
		for _, p := range probes {
			if p.fn == nil {
				continue
			}
			if err := p.fn(ctx); err != nil {
				checks = append(checks, check{Name: p.name, OK: false, Details: err.Error()})
				if p.required {
					ready = false
				}
				continue
			}
			checks = append(checks, check{Name: p.name, OK: true})
		}
		st := http.StatusOK
		if !ready {
			st = http.StatusServiceUnavailable
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}
