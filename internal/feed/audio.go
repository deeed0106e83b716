package feed

import (
	"errors"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
	ws "nhooyr.io/websocket"

	"serveturn/detector/internal/audio"
	"serveturn/detector/internal/auth"
	"serveturn/detector/internal/store"
	"serveturn/detector/internal/stream"
	"serveturn/detector/internal/types"
)

// Sink takes decoded capture audio.
type Sink interface {
	Push(samples []float32) error
}

// maxAudioMessage bounds one binary PCM frame.
const maxAudioMessage = 1 << 20

// AudioServer accepts little-endian PCM16 mono audio for the open session.
type AudioServer struct {
	Store *store.Store
	Reg   *Registry
	Sink  Sink
	// Secret enables Bearer ingest tokens; empty accepts any client.
	Secret string
	Skew   time.Duration
	Now    func() time.Time
}

func (s *AudioServer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *AudioServer) HandleAudio(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "missing session_id", http.StatusBadRequest)
		return
	}
	sess := s.Store.GetSession(sessionID)
	if sess == nil {
		http.Error(w, "unknown session", http.StatusNotFound)
		return
	}
	if sess.StoppedAt != nil {
		http.Error(w, "session stopped", http.StatusConflict)
		return
	}
	if s.Secret != "" {
		token, ok := auth.BearerToken(r)
		if !ok {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		if _, err := auth.Verify(s.Secret, token, sessionID, s.now(), s.Skew); err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
	}

	log := logrus.WithFields(logrus.Fields{"component": "feed", "session_id": sessionID})
	c, err := ws.Accept(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("ws accept")
		return
	}
	c.SetReadLimit(maxAudioMessage)
	if s.Reg.Replace(sessionID, c) {
		s.Store.AppendEvent(sessionID, types.Event{Type: "capture_replaced"})
	}
	s.Store.SetIngesting(sessionID, true)
	metricCaptureConns.Inc()
	log.Info("capture connected")

	status, reason := ws.StatusNormalClosure, "done"
	ctx := r.Context()
	for {
		typ, data, err := c.Read(ctx)
		if err != nil {
			break
		}
		if typ != ws.MessageBinary {
			continue
		}
		metricAudioBytes.Add(float64(len(data)))
		if err := s.Sink.Push(audio.DecodePCM16(data)); err != nil {
			if errors.Is(err, stream.ErrNotListening) {
				status, reason = ws.StatusPolicyViolation, "session not listening"
			} else {
				status, reason = ws.StatusInternalError, "push failed"
				log.WithError(err).Error("push audio")
			}
			break
		}
	}
	_ = c.Close(status, reason)
	// a replaced connection leaves the flag to its successor
	if s.Reg.Remove(sessionID, c) {
		s.Store.SetIngesting(sessionID, false)
	}
	metricCaptureConns.Dec()
	log.Info("capture disconnected")
}
