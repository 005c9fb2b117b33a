package inproc

import (
	"errors"
	"testing"

	"railhaul/internal/domain"
)

func TestPublishFansOut(t *testing.T) {
	b := New(4)
	a := b.Subscribe("recorder")
	c := b.Subscribe("monitor")
	if again := b.Subscribe("recorder"); again != a {
		t.Fatalf("subscribe twice returned a new channel")
	}

	if err := b.Publish(domain.TickEvent{ID: "t1", GameTick: 7}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	for name, ch := range map[string]<-chan domain.TickEvent{"recorder": a, "monitor": c} {
		ev := <-ch
		if ev.ID != "t1" || ev.GameTick != 7 {
			t.Fatalf("%s got %+v", name, ev)
		}
	}
}

func TestPublishReportsFullQueue(t *testing.T) {
	b := New(1)
	slow := b.Subscribe("slow")
	fast := b.Subscribe("fast")

	if err := b.Publish(domain.TickEvent{ID: "t1"}); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	<-fast

	err := b.Publish(domain.TickEvent{ID: "t2"})
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("err=%v want ErrQueueFull", err)
	}
	if ev := <-fast; ev.ID != "t2" {
		t.Fatalf("fast subscriber got %q want t2", ev.ID)
	}
	if ev := <-slow; ev.ID != "t1" {
		t.Fatalf("slow subscriber got %q want t1", ev.ID)
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New(1)
	ch := b.Subscribe("recorder")
	b.Unsubscribe("recorder")
	b.Unsubscribe("recorder")

	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}
	if err := b.Publish(domain.TickEvent{}); !errors.Is(err, ErrNoSubscribers) {
		t.Fatalf("err=%v want ErrNoSubscribers", err)
	}
}
