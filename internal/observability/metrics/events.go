package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"OpenAgent-Chain/internal/events"
)

type eventCounter struct {
	mu     sync.Mutex
	counts map[events.Kind]uint64
}

var eventCollector = &eventCounter{counts: make(map[events.Kind]uint64)}

// ObserveEvent 累计一条可观测事件。
func ObserveEvent(kind events.Kind) {
	eventCollector.mu.Lock()
	eventCollector.counts[kind]++
	eventCollector.mu.Unlock()
}

// SubscribeBus 将事件总线上的全部事件接入计数器。
// 返回的函数用于取消订阅。
func SubscribeBus(bus *events.Bus) func() {
	if bus == nil {
		return func() {}
	}
	return bus.Subscribe(func(event events.Event) {
		ObserveEvent(event.Kind)
	})
}

func (c *eventCounter) render() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	kinds := make([]string, 0, len(c.counts))
	for kind := range c.counts {
		kinds = append(kinds, string(kind))
	}
	sort.Strings(kinds)

	var builder strings.Builder
	builder.WriteString("# HELP agentd_events_total Total number of orchestration events published.\n")
	builder.WriteString("# TYPE agentd_events_total counter\n")
	for _, kind := range kinds {
		builder.WriteString(fmt.Sprintf("agentd_events_total{kind=\"%s\"} %d\n",
			escape(kind), c.counts[events.Kind(kind)]))
	}
	return builder.String()
}
