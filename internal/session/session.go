package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/beepwatch/internal/audit"
	"github.com/MrWong99/beepwatch/internal/segment"
	"github.com/MrWong99/beepwatch/pkg/audio"
	"github.com/MrWong99/beepwatch/pkg/provider/classifier"
	"github.com/MrWong99/beepwatch/pkg/provider/vad"
)

// bindAck is the reply sent after a successful control-message binding.
var bindAck = []byte("ok")

// controlMessage is the JSON frame the telephony platform sends when the
// audio websocket connects, echoing the headers set on the NCCO websocket
// endpoint.
type controlMessage struct {
	Event          string `json:"event"`
	ContentType    string `json:"content-type"`
	ConversationID string `json:"conversation_uuid"`
}

// Session is the coordinator for one audio stream connection.
//
// A session starts unbound: binary frames are dropped until the first
// control message names the conversation. Binding creates the VAD session
// and segmenter; from then on every frame runs through segmentation and
// flushed clips are classified asynchronously.
//
// HandleControl, HandleAudio, and Close are safe to call from different
// goroutines, though the stream read loop normally drives them serially.
type Session struct {
	mgr *Manager
	log *slog.Logger

	mu             sync.Mutex
	conversationID string
	detector       vad.SessionHandle
	segmenter      *segment.Segmenter
	closed         bool
	detected       bool
	droppedFrames  int
}

// ConversationID returns the bound conversation, or "" while unbound.
func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversationID
}

// DroppedFrames returns how many audio frames arrived before binding.
func (s *Session) DroppedFrames() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.droppedFrames
}

// HandleControl processes a JSON control message from the stream. The first
// message binds the session to its conversation and sets up the detection
// pipeline; repeated messages for the same conversation are acknowledged
// without effect. The returned bytes are the reply to write back on the
// stream.
func (s *Session) HandleControl(ctx context.Context, data []byte) ([]byte, error) {
	var msg controlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("session: parse control message: %w", err)
	}
	if msg.ConversationID == "" {
		return nil, fmt.Errorf("session: control message missing conversation_uuid")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("session: closed")
	}
	if s.conversationID != "" {
		if msg.ConversationID != s.conversationID {
			s.log.Warn("ignoring rebind attempt on bound stream",
				"conversation_id", s.conversationID,
				"requested", msg.ConversationID)
		}
		return bindAck, nil
	}

	if !s.mgr.bind(msg.ConversationID, s) {
		return nil, fmt.Errorf("session: conversation %s already has an active stream", msg.ConversationID)
	}

	cfg := s.mgr.cfg
	detector, err := s.mgr.deps.VAD.NewSession(vad.Config{
		SampleRate:  cfg.SampleRate,
		FrameSizeMs: cfg.FrameMs,
		Sensitivity: cfg.VADSensitivity,
	})
	if err != nil {
		s.mgr.unbind(msg.ConversationID, s)
		return nil, fmt.Errorf("session: create vad session: %w", err)
	}

	buffer, err := segment.NewBuffer(cfg.MaxClipFrames, cfg.MinClipFrames, s.dispatchClip)
	if err != nil {
		detector.Close()
		s.mgr.unbind(msg.ConversationID, s)
		return nil, fmt.Errorf("session: create clip buffer: %w", err)
	}
	seg, err := segment.NewSegmenter(detector, buffer, cfg.SilenceFrames)
	if err != nil {
		detector.Close()
		s.mgr.unbind(msg.ConversationID, s)
		return nil, fmt.Errorf("session: create segmenter: %w", err)
	}

	s.conversationID = msg.ConversationID
	s.detector = detector
	s.segmenter = seg
	s.mgr.deps.Metrics.AddActiveConversations(ctx, 1)

	s.log.Info("stream bound to conversation",
		"conversation_id", msg.ConversationID,
		"event", msg.Event,
		"content_type", msg.ContentType,
		"dropped_frames", s.droppedFrames)
	return bindAck, nil
}

// HandleAudio feeds one binary PCM frame into the segmentation pipeline.
// Frames received before binding are dropped.
func (s *Session) HandleAudio(ctx context.Context, frame []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("session: closed")
	}
	if s.segmenter == nil {
		s.droppedFrames++
		if s.droppedFrames == 1 {
			s.log.Debug("dropping audio frames received before binding")
		}
		return nil
	}

	speech := s.segmenter.ProcessFrame(frame)
	s.mgr.deps.Metrics.RecordFrame(ctx, speech)
	return nil
}

// Close flushes any utterance in progress, releases the VAD session, and
// unbinds the conversation. Close is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true

	var err error
	if s.segmenter != nil {
		s.segmenter.Flush()
	}
	if s.detector != nil {
		err = s.detector.Close()
	}
	conv := s.conversationID
	dropped := s.droppedFrames
	vadErrors := 0
	if s.segmenter != nil {
		vadErrors = s.segmenter.VADErrors()
	}
	s.mu.Unlock()

	if conv != "" {
		s.mgr.unbind(conv, s)
		s.mgr.deps.Metrics.AddActiveConversations(context.Background(), -1)
	}
	s.log.Info("stream session closed",
		"conversation_id", conv,
		"dropped_frames", dropped,
		"vad_errors", vadErrors)
	if err != nil {
		return fmt.Errorf("session: close vad session: %w", err)
	}
	return nil
}

// dispatchClip is the buffer sink. It runs with s.mu held, so it must only
// hand the clip off, never classify inline.
func (s *Session) dispatchClip(frames int, payload []byte) {
	ctx := context.Background()
	cfg := s.mgr.cfg
	seconds := float64(frames*cfg.FrameMs) / 1000
	s.mgr.deps.Metrics.RecordUtterance(ctx, seconds)

	if !s.mgr.sem.TryAcquire(1) {
		s.log.Warn("classification workers saturated, dropping clip",
			"conversation_id", s.conversationID,
			"frames", frames)
		s.mgr.deps.Metrics.RecordDiscard(ctx, "saturated")
		return
	}

	clip := classifier.Clip{
		Payload:        payload,
		Frames:         frames,
		SampleRate:     cfg.SampleRate,
		ConversationID: s.conversationID,
	}
	s.mgr.wg.Add(1)
	go s.classify(clip)
}

// classify runs on a pooled worker: label the clip and, on a positive
// verdict, speak into the conversation's originating leg and persist the
// detection.
func (s *Session) classify(clip classifier.Clip) {
	defer s.mgr.wg.Done()
	defer s.mgr.sem.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), s.mgr.cfg.ClassifyTimeout)
	defer cancel()

	start := time.Now()
	label, err := s.mgr.deps.Classifier.Classify(ctx, clip)
	s.mgr.deps.Metrics.RecordClassifyLatency(ctx, time.Since(start).Seconds())
	if err != nil {
		s.log.Warn("clip classification failed",
			"conversation_id", clip.ConversationID,
			"frames", clip.Frames,
			"err", err)
		return
	}
	s.mgr.deps.Metrics.RecordDetection(ctx, label.String())
	if !label.Positive() {
		return
	}

	// The stream may have ended while the classifier was running; speak
	// only into a conversation this session still owns, and only once.
	// A missing target is transient (the dialed leg may not have answered
	// yet), so it leaves the once-per-session flag unset and a later
	// positive clip gets another chance.
	s.mu.Lock()
	if s.closed || s.detected {
		s.mu.Unlock()
		return
	}
	legID, ok := s.mgr.deps.Registry.SelectSpeakTarget(clip.ConversationID, s.mgr.cfg.LocalNumber)
	if !ok {
		s.mu.Unlock()
		s.log.Warn("positive detection but no speak target leg yet",
			"conversation_id", clip.ConversationID)
		return
	}
	s.detected = true
	s.mu.Unlock()

	err = s.mgr.deps.Calls.Speak(ctx, legID, s.mgr.cfg.AnswerText)
	s.mgr.deps.Metrics.RecordCallAction(ctx, "talk", err)
	if err != nil {
		s.log.Error("speak into call leg failed",
			"conversation_id", clip.ConversationID,
			"leg_id", legID,
			"err", err)
	} else {
		s.log.Info("detection confirmed, message spoken",
			"conversation_id", clip.ConversationID,
			"leg_id", legID,
			"label", label.String(),
			"clip_frames", clip.Frames)
	}

	s.saveDetection(ctx, clip, label)
}

// saveDetection persists the positive clip to the audit store. Persistence
// failures are logged, never propagated into the stream.
func (s *Session) saveDetection(ctx context.Context, clip classifier.Clip, label classifier.Label) {
	wav, err := audio.EncodeWAV(clip.Payload, clip.SampleRate, 1)
	if err != nil {
		s.log.Warn("encode detection clip failed",
			"conversation_id", clip.ConversationID,
			"err", err)
		wav = nil
	}
	det := &audit.Detection{
		ConversationID: clip.ConversationID,
		Label:          label.String(),
		Frames:         clip.Frames,
		SampleRate:     clip.SampleRate,
		Audio:          wav,
	}
	if err := s.mgr.deps.Audit.SaveDetection(ctx, det); err != nil {
		s.log.Warn("persist detection failed",
			"conversation_id", clip.ConversationID,
			"err", err)
	}
}
