package events

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"OpenAgent-Chain/pkg/logger"
)

// Handler 处理一个事件。Handler 在订阅者自己的协程中运行，
// 不会阻塞发布方。
type Handler func(Event)

type subscriber struct {
	kinds   map[Kind]struct{}
	ch      chan Event
	done    chan struct{}
	handler Handler
}

func (s *subscriber) wants(kind Kind) bool {
	if len(s.kinds) == 0 {
		return true
	}
	_, ok := s.kinds[kind]
	return ok
}

func (s *subscriber) run() {
	defer close(s.done)
	for event := range s.ch {
		s.dispatch(event)
	}
}

// dispatch 隔离订阅者的 panic，避免拖垮主循环。
func (s *subscriber) dispatch(event Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.L().Error("事件订阅者 panic",
				slog.Any("panic", r),
				slog.String("kind", string(event.Kind)),
			)
		}
	}()
	s.handler(event)
}

// Bus 按事件类型向订阅者广播。投递是 fire-and-forget：
// 缓冲满时直接丢弃并计数，缓慢的订阅者不会阻塞发布方。
type Bus struct {
	mu      sync.RWMutex
	subs    map[int]*subscriber
	nextID  int
	closed  bool
	buffer  int
	dropped atomic.Uint64
}

// BusOption 定义可选配置。
type BusOption func(*Bus)

// WithBuffer 设置每个订阅者的事件缓冲大小。
func WithBuffer(size int) BusOption {
	return func(b *Bus) {
		if size > 0 {
			b.buffer = size
		}
	}
}

// NewBus 创建事件总线。
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{subs: make(map[int]*subscriber), buffer: 128}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Subscribe 注册一个事件处理器。不指定 kinds 时接收全部事件。
// 返回的函数用于取消订阅。
func (b *Bus) Subscribe(handler Handler, kinds ...Kind) func() {
	if handler == nil {
		return func() {}
	}
	sub := &subscriber{
		ch:      make(chan Event, b.buffer),
		done:    make(chan struct{}),
		handler: handler,
	}
	if len(kinds) > 0 {
		sub.kinds = make(map[Kind]struct{}, len(kinds))
		for _, kind := range kinds {
			sub.kinds[kind] = struct{}{}
		}
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	go sub.run()

	return func() {
		b.mu.Lock()
		current, ok := b.subs[id]
		if ok {
			delete(b.subs, id)
		}
		b.mu.Unlock()
		if ok {
			close(current.ch)
			<-current.done
		}
	}
}

// Publish 将事件广播给所有匹配的订阅者。永不阻塞。
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		if !sub.wants(event.Kind) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped 返回因订阅者缓冲满而丢弃的事件数。
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Close 停止所有订阅者并等待在途事件处理完成。
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*subscriber, 0, len(b.subs))
	for id, sub := range b.subs {
		subs = append(subs, sub)
		delete(b.subs, id)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		close(sub.ch)
		<-sub.done
	}
}
