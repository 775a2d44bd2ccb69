// Package session coordinates one live audio stream from the telephony
// platform: binding the stream to its conversation, running voice-activity
// segmentation over incoming frames, and dispatching flushed utterance clips
// to the classifier on a bounded worker pool.
//
// A [Manager] owns the shared pieces (engines, registry, audit store, worker
// semaphore) and hands out one [Session] per websocket connection. At most
// one session can be bound to a given conversation at a time.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/MrWong99/beepwatch/internal/audit"
	"github.com/MrWong99/beepwatch/internal/observe"
	"github.com/MrWong99/beepwatch/internal/registry"
	"github.com/MrWong99/beepwatch/pkg/provider/callctl"
	"github.com/MrWong99/beepwatch/pkg/provider/classifier"
	"github.com/MrWong99/beepwatch/pkg/provider/vad"
)

const (
	// defaultWorkers is the classification pool size used when
	// Config.Workers is zero or negative.
	defaultWorkers = 4

	// defaultClassifyTimeout bounds one clip classification when
	// Config.ClassifyTimeout is zero, including any remote classifier
	// round trip and the follow-up call-control action.
	defaultClassifyTimeout = 15 * time.Second
)

// Config holds the per-stream audio and detection parameters shared by all
// sessions.
type Config struct {
	// SampleRate is the PCM sample rate in Hz negotiated for the stream.
	SampleRate int

	// FrameMs is the frame duration in milliseconds.
	FrameMs int

	// SilenceFrames is how many consecutive silence frames end an utterance.
	SilenceFrames int

	// MinClipFrames is the minimum utterance length; shorter clips are
	// discarded on flush.
	MinClipFrames int

	// MaxClipFrames is the maximum utterance length before a forced cut.
	MaxClipFrames int

	// VADSensitivity selects the voice-activity detection threshold tier.
	VADSensitivity vad.Sensitivity

	// LocalNumber is the service's own number, used to pick the leg that
	// receives synthesized speech.
	LocalNumber string

	// AnswerText is the message spoken into the call when a beep is detected.
	AnswerText string

	// Workers bounds concurrent clip classifications across all sessions.
	// Defaults to 4 when zero or negative.
	Workers int

	// ClassifyTimeout bounds one clip classification and its follow-up
	// call action. Defaults to 15s when zero.
	ClassifyTimeout time.Duration
}

// Deps are the collaborators a [Manager] wires into every session.
type Deps struct {
	// VAD creates per-stream voice-activity detection sessions. Required.
	VAD vad.Engine

	// Classifier labels flushed utterance clips. Required.
	Classifier classifier.Engine

	// Calls injects speech into call legs. Required.
	Calls callctl.Controller

	// Registry tracks answered call legs per conversation. Required.
	Registry *registry.Registry

	// Audit persists positive detections. Defaults to [audit.NopStore].
	Audit audit.Store

	// Metrics receives pipeline instrumentation. May be nil.
	Metrics *observe.Metrics

	// Logger defaults to [slog.Default].
	Logger *slog.Logger
}

// Manager creates and tracks stream sessions. All methods are safe for
// concurrent use.
type Manager struct {
	cfg  Config
	deps Deps
	sem  *semaphore.Weighted
	wg   sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager validates the configuration and dependencies and creates a
// [Manager].
func NewManager(cfg Config, deps Deps) (*Manager, error) {
	switch {
	case deps.VAD == nil:
		return nil, fmt.Errorf("session: vad engine must not be nil")
	case deps.Classifier == nil:
		return nil, fmt.Errorf("session: classifier engine must not be nil")
	case deps.Calls == nil:
		return nil, fmt.Errorf("session: call controller must not be nil")
	case deps.Registry == nil:
		return nil, fmt.Errorf("session: registry must not be nil")
	}
	if cfg.SampleRate <= 0 || cfg.FrameMs <= 0 {
		return nil, fmt.Errorf("session: invalid audio format %dHz/%dms", cfg.SampleRate, cfg.FrameMs)
	}
	if cfg.SilenceFrames <= 0 {
		return nil, fmt.Errorf("session: silence frames must be positive, got %d", cfg.SilenceFrames)
	}
	if cfg.MinClipFrames <= 0 || cfg.MaxClipFrames < cfg.MinClipFrames {
		return nil, fmt.Errorf("session: invalid clip bounds min=%d max=%d", cfg.MinClipFrames, cfg.MaxClipFrames)
	}
	if !cfg.VADSensitivity.IsValid() {
		return nil, fmt.Errorf("session: invalid vad sensitivity %d", cfg.VADSensitivity)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if cfg.ClassifyTimeout <= 0 {
		cfg.ClassifyTimeout = defaultClassifyTimeout
	}
	if deps.Audit == nil {
		deps.Audit = audit.NopStore{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	return &Manager{
		cfg:      cfg,
		deps:     deps,
		sem:      semaphore.NewWeighted(int64(cfg.Workers)),
		sessions: make(map[string]*Session),
	}, nil
}

// NewSession creates an unbound [Session] for a freshly accepted stream
// connection. The session starts processing audio only after its first
// control message binds it to a conversation.
func (m *Manager) NewSession() *Session {
	return &Session{
		mgr: m,
		log: m.deps.Logger,
	}
}

// BoundSessions returns the number of sessions currently bound to a
// conversation.
func (m *Manager) BoundSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// IsBound reports whether a session currently owns the conversation.
func (m *Manager) IsBound(conversationID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[conversationID]
	return ok
}

// Shutdown waits for all in-flight clip classifications to finish or the
// context to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("session: shutdown: %w", ctx.Err())
	}
}

// bind claims the conversation for s. It fails when another session already
// owns it.
func (m *Manager) bind(conversationID string, s *Session) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.sessions[conversationID]; taken {
		return false
	}
	m.sessions[conversationID] = s
	return true
}

// unbind releases the conversation if s still owns it.
func (m *Manager) unbind(conversationID string, s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.sessions[conversationID]; ok && cur == s {
		delete(m.sessions, conversationID)
	}
}
