package events

import (
	"context"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func receive(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case e, ok := <-ch:
		if !ok {
			t.Fatal("channel closed unexpectedly")
		}
		return e
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func expectClosed(t *testing.T, ch <-chan Event) {
	t.Helper()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected channel to be closed")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for close")
	}
}

func TestPublishDeliversToRunSubscribers(t *testing.T) {
	b := NewBroker()

	ch1, unsub1 := b.Subscribe(context.Background(), "run-1")
	defer unsub1()
	ch2, unsub2 := b.Subscribe(context.Background(), "run-2")
	defer unsub2()

	b.Publish(Event{RunID: "run-1", Type: TypeProgress, Completed: 20, Total: 100, Chunk: 1})

	e := receive(t, ch1)
	if e.Type != TypeProgress || e.Completed != 20 || e.Seq == 0 || e.Time.IsZero() {
		t.Errorf("event = %+v", e)
	}

	select {
	case e := <-ch2:
		t.Errorf("run-2 subscriber received %+v", e)
	default:
	}
}

func TestSequenceIncreases(t *testing.T) {
	b := NewBroker()
	ch, unsub := b.Subscribe(context.Background(), "run")
	defer unsub()

	b.Publish(Event{RunID: "run", Type: TypeStatus, Status: "running"})
	b.Publish(Event{RunID: "run", Type: TypeProgress})

	first := receive(t, ch)
	second := receive(t, ch)
	if second.Seq <= first.Seq {
		t.Errorf("sequence not increasing: %d then %d", first.Seq, second.Seq)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBroker()
	ch, unsub := b.Subscribe(context.Background(), "run")

	unsub()
	unsub()
	expectClosed(t, ch)

	if n := b.Subscribers("run"); n != 0 {
		t.Errorf("Subscribers() = %d, want 0", n)
	}

	// Publishing after unsubscribe must not panic
	b.Publish(Event{RunID: "run", Type: TypeProgress})
}

func TestContextCancelUnsubscribes(t *testing.T) {
	b := NewBroker()
	ctx, cancel := context.WithCancel(context.Background())

	ch, unsub := b.Subscribe(ctx, "run")
	defer unsub()

	cancel()
	expectClosed(t, ch)
}

func TestCloseEndsAllSubscriptions(t *testing.T) {
	b := NewBroker()
	ch1, unsub1 := b.Subscribe(context.Background(), "run")
	ch2, unsub2 := b.Subscribe(context.Background(), "run")
	defer unsub1()
	defer unsub2()

	if n := b.Subscribers("run"); n != 2 {
		t.Fatalf("Subscribers() = %d, want 2", n)
	}

	b.Publish(Event{RunID: "run", Type: TypeDone, Status: "completed"})
	b.Close("run")

	for _, ch := range []<-chan Event{ch1, ch2} {
		if e := receive(t, ch); e.Type != TypeDone {
			t.Errorf("event = %+v, want done", e)
		}
		expectClosed(t, ch)
	}
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	b := NewBroker()
	_, unsub := b.Subscribe(context.Background(), "run")
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*3; i++ {
			b.Publish(Event{RunID: "run", Type: TypeProgress, Completed: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
}
