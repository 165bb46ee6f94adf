package hub

import (
	"testing"
	"time"

	"github.com/coffersTech/logvault/internal/model"
)

func TestHubBroadcast(t *testing.T) {
	h := New()
	sub1, cancel1 := h.Subscribe()
	defer cancel1()
	sub2, cancel2 := h.Subscribe()
	defer cancel2()

	h.Publish(model.LogRecord{ID: "1", Level: model.LevelError, Message: "disk full"})

	for i, sub := range []<-chan model.LogRecord{sub1, sub2} {
		select {
		case r := <-sub:
			if r.ID != "1" || r.Level != model.LevelError {
				t.Errorf("sub%d: got %+v", i+1, r)
			}
		case <-time.After(time.Second):
			t.Fatalf("sub%d: timed out", i+1)
		}
	}
}

func TestHubSlowConsumer(t *testing.T) {
	h := New()
	// never read
	_, cancel := h.Subscribe()
	defer cancel()

	for i := 0; i < subscriberBuffer+10; i++ {
		h.Publish(model.LogRecord{ID: "x"})
	}
	if got := h.Dropped(); got != 10 {
		t.Errorf("dropped = %d, want 10", got)
	}
}

func TestHubCancel(t *testing.T) {
	h := New()
	sub, cancel := h.Subscribe()
	if h.Subscribers() != 1 {
		t.Fatalf("subscribers = %d", h.Subscribers())
	}
	cancel()
	cancel()

	if _, ok := <-sub; ok {
		t.Error("channel should be closed after cancel")
	}
	if h.Subscribers() != 0 {
		t.Errorf("subscribers = %d after cancel", h.Subscribers())
	}
	h.Publish(model.LogRecord{ID: "after"})
}

func TestHubClose(t *testing.T) {
	h := New()
	sub, cancel := h.Subscribe()
	h.Close()
	cancel()

	if _, ok := <-sub; ok {
		t.Error("channel should be closed by Close")
	}
	late, _ := h.Subscribe()
	if _, ok := <-late; ok {
		t.Error("subscription after Close should be closed")
	}
}
