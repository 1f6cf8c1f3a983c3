package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type recordingNotifier struct {
	mu     sync.Mutex
	calls  []string
	failOn string
}

func (r *recordingNotifier) record(s string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, s)
	if s == r.failOn {
		return errors.New("delivery failed")
	}
	return nil
}

func (r *recordingNotifier) NotifySeller(_ context.Context, _ uint64, event string, _ map[string]string) error {
	return r.record("seller:" + event)
}

func (r *recordingNotifier) NotifyBuyer(_ context.Context, _ uint64, event string, _ map[string]string) error {
	return r.record("buyer:" + event)
}

func (r *recordingNotifier) AwardMilestones(_ context.Context, _ uint64) error {
	return r.record("milestones")
}

func TestDispatcherDeliversEachTaskOnce(t *testing.T) {
	n := &recordingNotifier{failOn: "buyer:payment_failed"}
	d := New(NotifierSink{Notifier: n}, nil, Options{Buffer: 8, Workers: 1})

	d.Submit(NewTask(KindNotifySeller, 1, 10, EventPaymentReceived, nil))
	d.Submit(NewTask(KindNotifyBuyer, 2, 10, EventPaymentFailed, nil))
	d.Submit(NewTask(KindAwardMilestones, 2, 10, "", nil))
	d.Close()

	n.mu.Lock()
	defer n.mu.Unlock()
	want := []string{"seller:payment_received", "buyer:payment_failed", "milestones"}
	if len(n.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", n.calls, want)
	}
	for i := range want {
		if n.calls[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, n.calls[i], want[i])
		}
	}
}

type blockingSink struct {
	release chan struct{}
	mu      sync.Mutex
	n       int
}

func (b *blockingSink) Deliver(context.Context, Task) error {
	<-b.release
	b.mu.Lock()
	b.n++
	b.mu.Unlock()
	return nil
}

func TestSubmitNeverBlocksWhenFull(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}
	d := New(sink, nil, Options{Buffer: 1, Workers: 1})

	for i := 0; i < 10; i++ {
		d.Submit(NewTask(KindAwardMilestones, 1, 1, "", nil))
	}
	close(sink.release)
	d.Close()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.n < 1 || sink.n > 2 {
		t.Errorf("delivered %d tasks, want 1 or 2 with the rest dropped", sink.n)
	}
}

func TestSubmitAfterCloseIsDropped(t *testing.T) {
	n := &recordingNotifier{}
	d := New(NotifierSink{Notifier: n}, nil, Options{})
	d.Close()
	d.Submit(NewTask(KindNotifySeller, 1, 1, EventAuctionExpired, nil))
	d.Close()

	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.calls) != 0 {
		t.Errorf("expected no calls after close, got %v", n.calls)
	}
}

func TestApplyRejectsUnknownKind(t *testing.T) {
	if err := Apply(context.Background(), &recordingNotifier{}, Task{Kind: "sms"}); err == nil {
		t.Error("expected error for unknown kind")
	}
}
