package session

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/beepwatch/internal/audit"
	"github.com/MrWong99/beepwatch/internal/registry"
	ctlmock "github.com/MrWong99/beepwatch/pkg/provider/callctl/mock"
	"github.com/MrWong99/beepwatch/pkg/provider/classifier"
	clsmock "github.com/MrWong99/beepwatch/pkg/provider/classifier/mock"
	"github.com/MrWong99/beepwatch/pkg/provider/vad"
	vadmock "github.com/MrWong99/beepwatch/pkg/provider/vad/mock"
)

const (
	testLocal  = "15551234567"
	testRemote = "15557654321"
)

var testControl = []byte(`{"event":"websocket:connected","content-type":"audio/l16;rate=16000","conversation_uuid":"conv-1"}`)

// recordingStore is an audit.Store that keeps saved detections in memory.
type recordingStore struct {
	mu    sync.Mutex
	saved []audit.Detection
}

func (r *recordingStore) SaveDetection(_ context.Context, d *audit.Detection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, *d)
	return nil
}

func (r *recordingStore) Recent(context.Context, int) ([]audit.Detection, error) { return nil, nil }
func (r *recordingStore) Ping(context.Context) error                             { return nil }

func (r *recordingStore) all() []audit.Detection {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]audit.Detection, len(r.saved))
	copy(out, r.saved)
	return out
}

// testFixture bundles a manager with all its mock collaborators.
type testFixture struct {
	mgr   *Manager
	vad   *vadmock.Engine
	cls   *clsmock.Engine
	ctl   *ctlmock.Controller
	reg   *registry.Registry
	store *recordingStore
}

func newFixture(t *testing.T, mutate ...func(*Config, *clsmock.Engine, *vadmock.Session)) *testFixture {
	t.Helper()

	vadSess := &vadmock.Session{}
	cls := &clsmock.Engine{LabelResult: classifier.LabelBeep}
	cfg := Config{
		SampleRate:     16000,
		FrameMs:        20,
		SilenceFrames:  2,
		MinClipFrames:  1,
		MaxClipFrames:  10,
		VADSensitivity: vad.SensitivityVeryHigh,
		LocalNumber:    testLocal,
		AnswerText:     "please call back later",
		Workers:        2,
	}
	for _, m := range mutate {
		m(&cfg, cls, vadSess)
	}

	ctl := &ctlmock.Controller{}
	reg := registry.New(ctl)
	store := &recordingStore{}
	mgr, err := NewManager(cfg, Deps{
		VAD:        &vadmock.Engine{Session: vadSess},
		Classifier: cls,
		Calls:      ctl,
		Registry:   reg,
		Audit:      store,
	})
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	return &testFixture{
		mgr:   mgr,
		vad:   mgr.deps.VAD.(*vadmock.Engine),
		cls:   cls,
		ctl:   ctl,
		reg:   reg,
		store: store,
	}
}

// answerLeg records an answered originating leg so SelectSpeakTarget finds it.
func (f *testFixture) answerLeg(legID string) {
	f.reg.RecordAnswered(registry.LegEvent{
		LegID:          legID,
		ConversationID: "conv-1",
		From:           testLocal,
		To:             testRemote,
		Status:         "answered",
	})
}

func (f *testFixture) bind(t *testing.T, s *Session) {
	t.Helper()
	reply, err := s.HandleControl(context.Background(), testControl)
	if err != nil {
		t.Fatalf("HandleControl() error = %v", err)
	}
	if string(reply) != "ok" {
		t.Fatalf("HandleControl() reply = %q, want %q", reply, "ok")
	}
}

func (f *testFixture) wait(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := f.mgr.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
}

func frame() []byte { return bytes.Repeat([]byte{0x01, 0x02}, 320) }

func TestHandleControl_BindsConversation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	s := f.mgr.NewSession()
	f.bind(t, s)

	if got := s.ConversationID(); got != "conv-1" {
		t.Errorf("ConversationID() = %q, want %q", got, "conv-1")
	}
	if !f.mgr.IsBound("conv-1") {
		t.Error("IsBound(conv-1) = false after binding")
	}
	if len(f.vad.NewSessionCalls) != 1 {
		t.Fatalf("vad NewSession called %d times, want 1", len(f.vad.NewSessionCalls))
	}
	gotCfg := f.vad.NewSessionCalls[0].Cfg
	if gotCfg.SampleRate != 16000 || gotCfg.FrameSizeMs != 20 || gotCfg.Sensitivity != vad.SensitivityVeryHigh {
		t.Errorf("vad session config = %+v, want 16000Hz/20ms/very-high", gotCfg)
	}
}

func TestHandleControl_Malformed(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	s := f.mgr.NewSession()

	if _, err := s.HandleControl(context.Background(), []byte("{not json")); err == nil {
		t.Error("HandleControl() with invalid JSON expected error, got nil")
	}
	if _, err := s.HandleControl(context.Background(), []byte(`{"event":"websocket:connected"}`)); err == nil {
		t.Error("HandleControl() without conversation_uuid expected error, got nil")
	}
	if s.ConversationID() != "" {
		t.Error("session bound despite malformed control messages")
	}
}

func TestHandleControl_RepeatIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	s := f.mgr.NewSession()
	f.bind(t, s)
	f.bind(t, s)

	if len(f.vad.NewSessionCalls) != 1 {
		t.Errorf("vad NewSession called %d times after repeat control, want 1", len(f.vad.NewSessionCalls))
	}
}

func TestHandleControl_RebindToOtherConversationIgnored(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	s := f.mgr.NewSession()
	f.bind(t, s)

	reply, err := s.HandleControl(context.Background(),
		[]byte(`{"conversation_uuid":"conv-other"}`))
	if err != nil {
		t.Fatalf("HandleControl() error = %v", err)
	}
	if string(reply) != "ok" {
		t.Errorf("reply = %q, want %q", reply, "ok")
	}
	if got := s.ConversationID(); got != "conv-1" {
		t.Errorf("ConversationID() = %q after rebind attempt, want %q", got, "conv-1")
	}
}

func TestHandleControl_ConversationAlreadyOwned(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	first := f.mgr.NewSession()
	f.bind(t, first)

	second := f.mgr.NewSession()
	_, err := second.HandleControl(context.Background(), testControl)
	if err == nil || !strings.Contains(err.Error(), "already has an active stream") {
		t.Errorf("HandleControl() error = %v, want active-stream conflict", err)
	}
	if second.ConversationID() != "" {
		t.Error("second session bound despite conflict")
	}
}

func TestHandleAudio_DropsFramesBeforeBinding(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	s := f.mgr.NewSession()

	for range 3 {
		if err := s.HandleAudio(context.Background(), frame()); err != nil {
			t.Fatalf("HandleAudio() error = %v", err)
		}
	}
	if got := s.DroppedFrames(); got != 3 {
		t.Errorf("DroppedFrames() = %d, want 3", got)
	}

	f.bind(t, s)
	vadSess := f.vad.Session.(*vadmock.Session)
	if len(vadSess.ProcessFrameCalls) != 0 {
		t.Errorf("pre-binding frames reached the detector: %d calls", len(vadSess.ProcessFrameCalls))
	}
}

func TestPositiveDetection_SpeaksAndPersists(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(_ *Config, _ *clsmock.Engine, v *vadmock.Session) {
		v.Script = []bool{true, true, false, false}
	})
	f.answerLeg("leg-a")

	s := f.mgr.NewSession()
	f.bind(t, s)
	for range 4 {
		if err := s.HandleAudio(context.Background(), frame()); err != nil {
			t.Fatalf("HandleAudio() error = %v", err)
		}
	}
	f.wait(t)

	calls := f.cls.Calls()
	if len(calls) != 1 {
		t.Fatalf("classifier called %d times, want 1", len(calls))
	}
	if calls[0].Clip.Frames != 2 || calls[0].Clip.ConversationID != "conv-1" {
		t.Errorf("classified clip = %+v, want 2 frames of conv-1", calls[0].Clip)
	}

	speaks := f.ctl.Speaks()
	if len(speaks) != 1 {
		t.Fatalf("Speak called %d times, want 1", len(speaks))
	}
	if speaks[0].LegID != "leg-a" || speaks[0].Text != "please call back later" {
		t.Errorf("Speak call = %+v, want leg-a with answer text", speaks[0])
	}

	saved := f.store.all()
	if len(saved) != 1 {
		t.Fatalf("audit store has %d detections, want 1", len(saved))
	}
	det := saved[0]
	if det.ConversationID != "conv-1" || det.Label != "beep" || det.Frames != 2 || det.SampleRate != 16000 {
		t.Errorf("saved detection = %+v, want beep clip metadata", det)
	}
	if !bytes.HasPrefix(det.Audio, []byte("RIFF")) {
		t.Error("saved detection audio is not a WAV blob")
	}
}

func TestNegativeDetection_NoAction(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(_ *Config, c *clsmock.Engine, v *vadmock.Session) {
		c.LabelResult = classifier.LabelSpeech
		v.Script = []bool{true, false, false}
	})
	f.answerLeg("leg-a")

	s := f.mgr.NewSession()
	f.bind(t, s)
	for range 3 {
		s.HandleAudio(context.Background(), frame())
	}
	f.wait(t)

	if len(f.cls.Calls()) != 1 {
		t.Fatalf("classifier called %d times, want 1", len(f.cls.Calls()))
	}
	if len(f.ctl.Speaks()) != 0 {
		t.Error("Speak called for a negative label")
	}
	if len(f.store.all()) != 0 {
		t.Error("negative label persisted to audit store")
	}
}

func TestClassifierError_NoAction(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(_ *Config, c *clsmock.Engine, v *vadmock.Session) {
		c.ClassifyErr = errors.New("inference backend down")
		v.Script = []bool{true, false, false}
	})
	f.answerLeg("leg-a")

	s := f.mgr.NewSession()
	f.bind(t, s)
	for range 3 {
		s.HandleAudio(context.Background(), frame())
	}
	f.wait(t)

	if len(f.ctl.Speaks()) != 0 {
		t.Error("Speak called despite classification failure")
	}
}

func TestPositiveDetection_SpeaksOnlyOncePerSession(t *testing.T) {
	t.Parallel()

	// Two utterances, both classified positive.
	f := newFixture(t, func(_ *Config, _ *clsmock.Engine, v *vadmock.Session) {
		v.Script = []bool{true, false, false, true, false, false}
	})
	f.answerLeg("leg-a")

	s := f.mgr.NewSession()
	f.bind(t, s)
	for range 6 {
		s.HandleAudio(context.Background(), frame())
	}
	f.wait(t)

	if got := len(f.cls.Calls()); got != 2 {
		t.Fatalf("classifier called %d times, want 2", got)
	}
	if got := len(f.ctl.Speaks()); got != 1 {
		t.Errorf("Speak called %d times, want 1", got)
	}
}

func TestPositiveDetection_RetriesUntilLegAnswers(t *testing.T) {
	t.Parallel()

	// Two utterances, both positive; the dialed leg answers only between
	// them. The early detection must not spend the session's single speak.
	f := newFixture(t, func(_ *Config, _ *clsmock.Engine, v *vadmock.Session) {
		v.Script = []bool{true, false, false, true, false, false}
	})

	s := f.mgr.NewSession()
	f.bind(t, s)
	for range 3 {
		s.HandleAudio(context.Background(), frame())
	}
	f.wait(t)

	if got := len(f.ctl.Speaks()); got != 0 {
		t.Fatalf("Speak called %d times before any leg answered, want 0", got)
	}

	f.answerLeg("leg-a")
	for range 3 {
		s.HandleAudio(context.Background(), frame())
	}
	f.wait(t)

	speaks := f.ctl.Speaks()
	if len(speaks) != 1 {
		t.Fatalf("Speak called %d times, want 1", len(speaks))
	}
	if speaks[0].LegID != "leg-a" {
		t.Errorf("Speak leg = %q, want %q", speaks[0].LegID, "leg-a")
	}
	if got := len(f.store.all()); got != 1 {
		t.Errorf("audit store has %d detections, want 1", got)
	}
}

func TestPositiveAfterClose_NoSpeak(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	f := newFixture(t, func(_ *Config, c *clsmock.Engine, v *vadmock.Session) {
		c.Block = block
		v.Script = []bool{true, false, false}
	})
	f.answerLeg("leg-a")

	s := f.mgr.NewSession()
	f.bind(t, s)
	for range 3 {
		s.HandleAudio(context.Background(), frame())
	}

	// The stream ends while classification is still in flight.
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	close(block)
	f.wait(t)

	if len(f.ctl.Speaks()) != 0 {
		t.Error("Speak called after the session was closed")
	}
}

func TestWorkerSaturation_DropsClip(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	f := newFixture(t, func(cfg *Config, c *clsmock.Engine, v *vadmock.Session) {
		cfg.Workers = 1
		c.Block = block
		v.Script = []bool{true, false, false, true, false, false}
	})

	s := f.mgr.NewSession()
	f.bind(t, s)
	for range 6 {
		s.HandleAudio(context.Background(), frame())
	}
	close(block)
	f.wait(t)

	if got := len(f.cls.Calls()); got != 1 {
		t.Errorf("classifier called %d times with a saturated pool, want 1", got)
	}
}

func TestClose_FlushesAndUnbinds(t *testing.T) {
	t.Parallel()

	f := newFixture(t, func(_ *Config, _ *clsmock.Engine, v *vadmock.Session) {
		v.SpeechResult = true
	})
	f.answerLeg("leg-a")

	s := f.mgr.NewSession()
	f.bind(t, s)
	// Utterance in progress, never ended by silence.
	for range 3 {
		s.HandleAudio(context.Background(), frame())
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	f.wait(t)

	if len(f.cls.Calls()) != 1 {
		t.Errorf("classifier called %d times, want 1 from close-time flush", len(f.cls.Calls()))
	}
	if f.mgr.IsBound("conv-1") {
		t.Error("conversation still bound after Close")
	}
	vadSess := f.vad.Session.(*vadmock.Session)
	if vadSess.CloseCallCount != 1 {
		t.Errorf("detector Close called %d times, want 1", vadSess.CloseCallCount)
	}

	// Idempotent.
	if err := s.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
	if vadSess.CloseCallCount != 1 {
		t.Error("second Close released the detector again")
	}

	if err := s.HandleAudio(context.Background(), frame()); err == nil {
		t.Error("HandleAudio() after Close expected error, got nil")
	}
}

func TestNewManager_Validation(t *testing.T) {
	t.Parallel()

	valid := Config{
		SampleRate:     16000,
		FrameMs:        20,
		SilenceFrames:  10,
		MinClipFrames:  10,
		MaxClipFrames:  150,
		VADSensitivity: vad.SensitivityVeryHigh,
	}
	deps := func() Deps {
		return Deps{
			VAD:        &vadmock.Engine{},
			Classifier: &clsmock.Engine{},
			Calls:      &ctlmock.Controller{},
			Registry:   registry.New(&ctlmock.Controller{}),
		}
	}

	if _, err := NewManager(valid, deps()); err != nil {
		t.Fatalf("NewManager() with valid input error = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config, *Deps)
	}{
		{"nil vad", func(_ *Config, d *Deps) { d.VAD = nil }},
		{"nil classifier", func(_ *Config, d *Deps) { d.Classifier = nil }},
		{"nil calls", func(_ *Config, d *Deps) { d.Calls = nil }},
		{"nil registry", func(_ *Config, d *Deps) { d.Registry = nil }},
		{"zero sample rate", func(c *Config, _ *Deps) { c.SampleRate = 0 }},
		{"zero silence frames", func(c *Config, _ *Deps) { c.SilenceFrames = 0 }},
		{"min above max", func(c *Config, _ *Deps) { c.MinClipFrames = 200 }},
		{"bad sensitivity", func(c *Config, _ *Deps) { c.VADSensitivity = 99 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg, d := valid, deps()
			tt.mutate(&cfg, &d)
			if _, err := NewManager(cfg, d); err == nil {
				t.Error("NewManager() expected error, got nil")
			}
		})
	}
}
