// Package api serves the HTTP control surface of the live detector and the
// batch analysis upload.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"serveturn/detector/internal/analysis"
	"serveturn/detector/internal/audio"
	"serveturn/detector/internal/auth"
	"serveturn/detector/internal/config"
	"serveturn/detector/internal/feed"
	"serveturn/detector/internal/health"
	"serveturn/detector/internal/store"
	"serveturn/detector/internal/stream"
	"serveturn/detector/internal/types"
)

// maxUpload bounds a WAV body posted to /api/analyze.
const maxUpload = 100 << 20

// Detector is the live session surface the handlers drive.
type Detector interface {
	Start(ctx context.Context) (string, error)
	Stop() (types.Stats, error)
	Reset()
	Snapshot() stream.Status
	Session() stream.SessionView
}

type Handlers struct {
	cfg      config.Config
	store    *store.Store
	det      Detector
	analysis analysis.Config
	reg      *feed.Registry
	checks   []health.Check
	now      func() time.Time
	log      *logrus.Entry
}

func NewHandlers(cfg config.Config, st *store.Store, det Detector, an analysis.Config, reg *feed.Registry, checks ...health.Check) *Handlers {
	return &Handlers{
		cfg:      cfg,
		store:    st,
		det:      det,
		analysis: an,
		reg:      reg,
		checks:   checks,
		now:      time.Now,
		log:      logrus.WithField("component", "api"),
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (h *Handlers) HandleReady(w http.ResponseWriter, r *http.Request) {
	st := health.CheckAll(r.Context(), h.checks...)
	code := http.StatusOK
	if !st.OK {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, st)
}

func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.det.Snapshot())
}

func (h *Handlers) HandleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.det.Session())
}

func (h *Handlers) HandleStart(w http.ResponseWriter, r *http.Request) {
	if h.det.Snapshot().Listening {
		writeJSON(w, http.StatusOK, map[string]any{
			"message":    "already listening",
			"session_id": h.det.Session().SessionID,
		})
		return
	}
	id, err := h.det.Start(r.Context())
	if err != nil {
		h.log.WithError(err).Error("start session")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"session_id": id, "status": "started"})
}

func (h *Handlers) HandleStop(w http.ResponseWriter, r *http.Request) {
	id := h.det.Session().SessionID
	stats, err := h.det.Stop()
	if errors.Is(err, stream.ErrNotListening) {
		writeJSON(w, http.StatusOK, map[string]any{"message": "not listening"})
		return
	}
	if err != nil {
		h.log.WithError(err).Error("stop session")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if h.reg != nil {
		h.reg.CloseAll("session stopped")
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"status":     "stopped",
		"summary": map[string]any{
			"duration_minutes": roundTenth(stats.DurationS / 60),
			"moments":          stats.Moments,
			"moments_per_hour": stats.MomentsPerHour,
		},
		"stats": stats,
	})
}

func (h *Handlers) HandleReset(w http.ResponseWriter, r *http.Request) {
	h.det.Reset()
	writeJSON(w, http.StatusOK, map[string]any{"status": "reset"})
}

func (h *Handlers) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.store.ListSessions()
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions, "total": len(sessions)})
}

func (h *Handlers) HandleGetSession(w http.ResponseWriter, r *http.Request, id string) {
	sess := h.store.GetSession(id)
	if sess == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session":   sess,
		"ingesting": h.store.IsIngesting(id),
	})
}

func (h *Handlers) HandleListEvents(w http.ResponseWriter, r *http.Request, id string) {
	if h.store.GetSession(id) == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"events":     h.store.ListEvents(id),
	})
}

// HandleMintToken issues an ingest token for /ws/audio.
func (h *Handlers) HandleMintToken(w http.ResponseWriter, r *http.Request, id string) {
	sess := h.store.GetSession(id)
	if sess == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if sess.StoppedAt != nil {
		writeError(w, http.StatusConflict, "session stopped")
		return
	}
	if h.cfg.Ingest.TokenSecret == "" {
		writeError(w, http.StatusBadRequest, "ingest tokens not configured")
		return
	}
	exp := h.now().Add(time.Duration(h.cfg.Ingest.TokenTTLMin) * time.Minute).UTC()
	tok, err := auth.Sign(h.cfg.Ingest.TokenSecret, id, exp)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"token":      tok,
		"expires_at": exp.Truncate(time.Second),
	})
}

// HandleAnalyze runs the batch analyzer over a posted WAV body. Query
// parameters override the thresholds of the server's analysis settings.
func (h *Handlers) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.analysisConfig(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	an, err := analysis.New(cfg)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := an.AnalyzeWAV(http.MaxBytesReader(w, r.Body, maxUpload))
	if errors.Is(err, audio.ErrEmpty) {
		res, err = analysis.Result{Events: []analysis.Event{}}, nil
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *Handlers) analysisConfig(r *http.Request) (analysis.Config, error) {
	cfg := h.analysis
	q := r.URL.Query()
	floats := []struct {
		key string
		dst *float64
	}{
		{"child_threshold", &cfg.ChildThreshold},
		{"response_threshold", &cfg.ResponseThreshold},
		{"missed_threshold", &cfg.MissedThreshold},
	}
	for _, f := range floats {
		if s := q.Get(f.key); s != "" {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return cfg, types.NewConfigError(f.key, s, "not a number")
			}
			*f.dst = v
		}
	}
	if s := q.Get("age_months"); s != "" {
		m, err := strconv.Atoi(s)
		if err != nil {
			return cfg, types.NewConfigError("age_months", s, "not an integer")
		}
		cfg.AgeMonths = &m
		if q.Get("child_threshold") == "" {
			cfg.ChildThreshold = 0
		}
	}
	if s := q.Get("vad_aggressiveness"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			return cfg, types.NewConfigError("vad_aggressiveness", s, "not an integer")
		}
		cfg.VADAggressiveness = v
	}
	return cfg, nil
}

func roundTenth(v float64) float64 {
	return float64(int64(v*10+0.5)) / 10
}
