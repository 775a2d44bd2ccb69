package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	ctlmock "github.com/MrWong99/beepwatch/pkg/provider/callctl/mock"
)

const localNumber = "14155550100"

func answered(conv, leg, from, to string) LegEvent {
	return LegEvent{
		LegID:          leg,
		ConversationID: conv,
		From:           from,
		To:             to,
		Status:         "answered",
		ReceivedAt:     time.Now(),
	}
}

func TestRecordAnsweredAppendsInOrder(t *testing.T) {
	t.Parallel()

	r := New(&ctlmock.Controller{})
	r.RecordAnswered(answered("c1", "l1", localNumber, "14155550123"))
	r.RecordAnswered(answered("c1", "l2", localNumber, "ws://media.example/socket"))
	// Duplicates append repeatedly.
	r.RecordAnswered(answered("c1", "l1", localNumber, "14155550123"))

	legs := r.Legs("c1")
	if len(legs) != 3 {
		t.Fatalf("want 3 legs, got %d", len(legs))
	}
	if legs[0].LegID != "l1" || legs[1].LegID != "l2" || legs[2].LegID != "l1" {
		t.Fatalf("arrival order not preserved: %v", legs)
	}
}

func TestRecordAnsweredConcurrent(t *testing.T) {
	t.Parallel()

	r := New(&ctlmock.Controller{})
	const n = 100

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.RecordAnswered(answered("c1", "leg", localNumber, "14155550123"))
		}()
	}
	wg.Wait()

	if got := len(r.Legs("c1")); got != n {
		t.Fatalf("lost appends: want %d legs, got %d", n, got)
	}
}

func TestSelectSpeakTarget(t *testing.T) {
	t.Parallel()

	t.Run("empty conversation", func(t *testing.T) {
		t.Parallel()
		r := New(&ctlmock.Controller{})
		if _, ok := r.SelectSpeakTarget("missing", localNumber); ok {
			t.Fatal("want no target for unknown conversation")
		}
	})

	t.Run("skips websocket leg", func(t *testing.T) {
		t.Parallel()
		r := New(&ctlmock.Controller{})
		r.RecordAnswered(answered("c1", "l1", localNumber, "14155550123"))
		r.RecordAnswered(answered("c1", "l2", localNumber, "ws://media.example/socket"))

		leg, ok := r.SelectSpeakTarget("c1", localNumber)
		if !ok || leg != "l1" {
			t.Fatalf("want l1, got %q (ok=%v)", leg, ok)
		}
	})

	t.Run("skips foreign-originated leg", func(t *testing.T) {
		t.Parallel()
		r := New(&ctlmock.Controller{})
		r.RecordAnswered(answered("c1", "l1", "14155550999", "14155550123"))
		r.RecordAnswered(answered("c1", "l2", localNumber, "14155550123"))

		leg, ok := r.SelectSpeakTarget("c1", localNumber)
		if !ok || leg != "l2" {
			t.Fatalf("want l2, got %q (ok=%v)", leg, ok)
		}
	})

	t.Run("first inserted wins among multiple matches", func(t *testing.T) {
		t.Parallel()
		r := New(&ctlmock.Controller{})
		r.RecordAnswered(answered("c1", "l1", localNumber, "14155550123"))
		r.RecordAnswered(answered("c1", "l2", localNumber, "14155550456"))

		leg, ok := r.SelectSpeakTarget("c1", localNumber)
		if !ok || leg != "l1" {
			t.Fatalf("want earliest match l1, got %q (ok=%v)", leg, ok)
		}
	})

	t.Run("only websocket legs yields none", func(t *testing.T) {
		t.Parallel()
		r := New(&ctlmock.Controller{})
		r.RecordAnswered(answered("c1", "l1", localNumber, "wss://media.example/socket"))
		if _, ok := r.SelectSpeakTarget("c1", localNumber); ok {
			t.Fatal("websocket leg selected as speak target")
		}
	})
}

func TestHangupAllAttemptsEveryLegDespiteFailures(t *testing.T) {
	t.Parallel()

	ctl := &ctlmock.Controller{
		HangupErrs: map[string]error{"l2": errors.New("leg already gone")},
	}
	r := New(ctl)
	r.RecordAnswered(answered("c1", "l1", localNumber, "14155550123"))
	r.RecordAnswered(answered("c1", "l2", localNumber, "ws://media.example/socket"))
	r.RecordAnswered(answered("c1", "l3", localNumber, "14155550456"))

	r.HangupAll(context.Background(), "c1")

	hangups := ctl.Hangups()
	if len(hangups) != 3 {
		t.Fatalf("want 3 hangup attempts, got %d", len(hangups))
	}
	if len(r.Legs("c1")) != 0 {
		t.Fatal("leg list not cleared after HangupAll")
	}
	if r.Conversations() != 0 {
		t.Fatal("conversation entry not removed after HangupAll")
	}
}

func TestHangupAllUnknownConversationIsNoop(t *testing.T) {
	t.Parallel()

	ctl := &ctlmock.Controller{}
	r := New(ctl)
	r.HangupAll(context.Background(), "missing")
	if len(ctl.Hangups()) != 0 {
		t.Fatalf("want no hangup attempts, got %v", ctl.Hangups())
	}
}

func TestHangupAllDoesNotAffectOtherConversations(t *testing.T) {
	t.Parallel()

	r := New(&ctlmock.Controller{})
	r.RecordAnswered(answered("c1", "l1", localNumber, "14155550123"))
	r.RecordAnswered(answered("c2", "l2", localNumber, "14155550456"))

	r.HangupAll(context.Background(), "c1")

	if len(r.Legs("c2")) != 1 {
		t.Fatal("unrelated conversation mutated by HangupAll")
	}
}
