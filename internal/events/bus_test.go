package events

import (
	"sync"
	"testing"
	"time"
)

func TestBusDeliversToAllSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	first := make(chan Event, 4)
	second := make(chan Event, 4)
	bus.Subscribe(func(e Event) { first <- e })
	bus.Subscribe(func(e Event) { second <- e })

	bus.Publish(NewThink(KindThinkStart, "盘点当前余额", nil))

	for name, ch := range map[string]chan Event{"first": first, "second": second} {
		select {
		case e := <-ch:
			if e.Kind != KindThinkStart {
				t.Fatalf("%s subscriber got kind %s", name, e.Kind)
			}
			if e.Think == nil || e.Think.Query != "盘点当前余额" {
				t.Fatalf("%s subscriber got payload %+v", name, e.Think)
			}
		case <-time.After(time.Second):
			t.Fatalf("%s subscriber never received the event", name)
		}
	}
}

func TestBusFiltersByKind(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	var mu sync.Mutex
	var kinds []Kind
	done := make(chan struct{}, 8)
	bus.Subscribe(func(e Event) {
		mu.Lock()
		kinds = append(kinds, e.Kind)
		mu.Unlock()
		done <- struct{}{}
	}, KindGoalCompleted, KindGoalFailed)

	bus.Publish(NewGoal(KindGoalCreated, GoalInfo{ID: "g1"}))
	bus.Publish(NewGoal(KindGoalCompleted, GoalInfo{ID: "g1"}))
	bus.Publish(NewGoal(KindGoalUpdated, GoalInfo{ID: "g2"}))
	bus.Publish(NewGoal(KindGoalFailed, GoalInfo{ID: "g2", Error: "boom"}))

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("filtered subscriber did not receive expected events")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(kinds) != 2 || kinds[0] != KindGoalCompleted || kinds[1] != KindGoalFailed {
		t.Fatalf("expected [goal:completed goal:failed], got %v", kinds)
	}
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	received := make(chan Event, 4)
	cancel := bus.Subscribe(func(e Event) { received <- e })

	bus.Publish(NewAction(KindActionStart, "chain.snapshot", nil, nil))
	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive event before cancel")
	}

	cancel()
	// 重复取消是安全的。
	cancel()

	bus.Publish(NewAction(KindActionComplete, "chain.snapshot", nil, nil))
	select {
	case e := <-received:
		t.Fatalf("unexpected delivery after cancel: %s", e.Kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusDropsWhenSubscriberIsSlow(t *testing.T) {
	bus := NewBus(WithBuffer(1))
	defer bus.Close()

	block := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	bus.Subscribe(func(Event) {
		once.Do(func() { close(started) })
		<-block
	})

	bus.Publish(NewMemory(KindMemoryExperienceStored, 1, 0))
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("subscriber never started processing")
	}

	// 处理器阻塞、缓冲已占满，后续事件应被丢弃而不是阻塞发布方。
	bus.Publish(NewMemory(KindMemoryExperienceStored, 2, 0))
	bus.Publish(NewMemory(KindMemoryExperienceStored, 3, 0))

	if dropped := bus.Dropped(); dropped == 0 {
		t.Fatal("expected at least one dropped event")
	}
	close(block)
}

func TestBusCloseWaitsForInFlightEvents(t *testing.T) {
	bus := NewBus()

	var mu sync.Mutex
	handled := 0
	bus.Subscribe(func(Event) {
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		handled++
		mu.Unlock()
	})

	bus.Publish(NewThink(KindThinkComplete, "q", nil))
	bus.Publish(NewThink(KindThinkComplete, "q", nil))
	bus.Close()

	mu.Lock()
	defer mu.Unlock()
	if handled != 2 {
		t.Fatalf("expected 2 handled events after close, got %d", handled)
	}

	// 关闭后发布与订阅都是空操作。
	bus.Publish(NewThink(KindThinkStart, "late", nil))
	cancel := bus.Subscribe(func(Event) { t.Error("subscriber added after close must not run") })
	cancel()
	bus.Close()
}

func TestBusRecoversFromPanickingSubscriber(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	received := make(chan Event, 2)
	bus.Subscribe(func(Event) { panic("subscriber bug") })
	bus.Subscribe(func(e Event) { received <- e })

	bus.Publish(NewGoal(KindGoalCreated, GoalInfo{ID: "g1"}))
	bus.Publish(NewGoal(KindGoalCreated, GoalInfo{ID: "g2"}))

	for i := 0; i < 2; i++ {
		select {
		case <-received:
		case <-time.After(time.Second):
			t.Fatal("healthy subscriber starved by panicking one")
		}
	}
}
