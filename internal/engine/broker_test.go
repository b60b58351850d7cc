package engine_test

import (
	"testing"

	"github.com/seantiz/testengine-ci/internal/engine"
	"github.com/seantiz/testengine-ci/internal/model"
)

func ev(status model.Status) engine.Event {
	return engine.Event{ExecutionID: "e1", Status: status}
}

func drain(ch <-chan engine.Event) []model.Status {
	var got []model.Status
	for e := range ch {
		got = append(got, e.Status)
	}
	return got
}

func TestBrokerDeliversInOrder(t *testing.T) {
	b := engine.NewBroker()
	ch, unsub := b.Subscribe("e1")
	defer unsub()

	want := []model.Status{model.StatusCreated, model.StatusRunning, model.StatusFinished}
	for _, s := range want {
		b.Publish("e1", ev(s))
	}
	b.Close("e1")

	got := drain(ch)
	if len(got) != len(want) {
		t.Fatalf("got %d events, want %d", len(got), len(want))
	}
	for i := range got {
		if got[i] != want[i] {
			t.Errorf("event[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestBrokerMultipleSubscribers(t *testing.T) {
	b := engine.NewBroker()
	ch1, unsub1 := b.Subscribe("e1")
	defer unsub1()
	ch2, unsub2 := b.Subscribe("e1")
	defer unsub2()

	b.Publish("e1", ev(model.StatusRunning))
	b.Close("e1")

	if got := drain(ch1); len(got) != 1 || got[0] != model.StatusRunning {
		t.Errorf("subscriber 1 got %v, want [RUNNING]", got)
	}
	if got := drain(ch2); len(got) != 1 || got[0] != model.StatusRunning {
		t.Errorf("subscriber 2 got %v, want [RUNNING]", got)
	}
}

func TestBrokerLateSubscriberGetsClosed(t *testing.T) {
	b := engine.NewBroker()
	b.Publish("e1", ev(model.StatusRunning))
	b.Close("e1")

	ch, unsub := b.Subscribe("e1")
	defer unsub()

	if _, ok := <-ch; ok {
		t.Error("late subscriber should get a closed channel")
	}
}

func TestBrokerUnsubscribeStopsDelivery(t *testing.T) {
	b := engine.NewBroker()
	ch, unsub := b.Subscribe("e1")
	unsub()

	b.Publish("e1", ev(model.StatusRunning))
	b.Close("e1")

	select {
	case e, ok := <-ch:
		if ok {
			t.Errorf("got unexpected event %+v after unsubscribe", e)
		}
	default:
	}
}

func TestBrokerSlowSubscriberDoesNotBlock(t *testing.T) {
	b := engine.NewBroker()
	ch, unsub := b.Subscribe("e1")
	defer unsub()

	for i := 0; i < 100; i++ {
		b.Publish("e1", ev(model.StatusRunning))
	}
	b.Close("e1")

	if got := len(drain(ch)); got == 0 || got >= 100 {
		t.Errorf("delivered %d events, want some dropped", got)
	}
}

func TestBrokerUnknownExecutionIsNoop(t *testing.T) {
	b := engine.NewBroker()
	b.Publish("nonexistent", ev(model.StatusRunning))
	b.Close("nonexistent")
}
