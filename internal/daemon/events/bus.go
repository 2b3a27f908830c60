package events

import (
	"context"
	"reflect"
	"sync"

	ferrors "github.com/gyromean/hywoma/internal/foundation/errors"
)

// Bus carries orchestration events between the pump, the loop controller,
// the pass runner, and the watchers inside one process. Subscriptions are
// typed; Publish blocks until every matching subscriber has accepted the
// event or the context is canceled.
//
// The bus is not durable. Pass history that must survive a restart belongs
// to the statestore journal, not here.
type Bus struct {
	mu     sync.RWMutex
	closed bool
	lastID uint64
	subs   map[reflect.Type][]*subscription
}

// subscription pairs the delivery closure, which captures the typed channel,
// with the bookkeeping needed to remove and close it exactly once.
type subscription struct {
	id      uint64
	deliver func(ctx context.Context, evt any) error
	finish  func()
}

func NewBus() *Bus {
	return &Bus{subs: make(map[reflect.Type][]*subscription)}
}

// Subscribe registers a channel for events of type T with the given buffer.
// Interface types receive every event whose concrete type implements them;
// concrete types match exactly. The returned cancel func is idempotent, and
// subscribing to a closed bus yields an already-closed channel.
func Subscribe[T any](b *Bus, buffer int) (<-chan T, func()) {
	want := reflect.TypeOf((*T)(nil)).Elem()
	ch := make(chan T, buffer)

	var once sync.Once
	finish := func() {
		once.Do(func() { close(ch) })
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		finish()
		return ch, func() {}
	}

	b.lastID++
	sub := &subscription{
		id: b.lastID,
		deliver: func(ctx context.Context, evt any) error {
			v, ok := evt.(T)
			if !ok {
				return ferrors.InternalError("event type mismatch").
					WithContext("expected", want.String()).
					WithContext("actual", reflect.TypeOf(evt).String()).
					Build()
			}
			select {
			case ch <- v:
				return nil
			case <-ctx.Done():
				return ferrors.WrapError(ctx.Err(), ferrors.CategoryDaemon, "event publish canceled").
					WithContext("event_type", want.String()).
					Build()
			}
		},
		finish: finish,
	}
	b.subs[want] = append(b.subs[want], sub)
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		list := b.subs[want]
		for i, s := range list {
			if s.id == sub.id {
				b.subs[want] = append(list[:i], list[i+1:]...)
				break
			}
		}
		if len(b.subs[want]) == 0 {
			delete(b.subs, want)
		}
		b.mu.Unlock()
		finish()
	}
	return ch, cancel
}

// SubscriberCount reports active subscriptions for type T, for tests and
// diagnostics.
func SubscriberCount[T any](b *Bus) int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[reflect.TypeOf((*T)(nil)).Elem()])
}

// Publish delivers evt to every matching subscription, blocking per
// subscriber until the event is accepted or ctx is canceled.
func (b *Bus) Publish(ctx context.Context, evt any) error {
	if evt == nil {
		return ferrors.ValidationError("event cannot be nil").Build()
	}
	if ctx == nil {
		return ferrors.ValidationError("context cannot be nil").Build()
	}

	evtType := reflect.TypeOf(evt)

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ferrors.DaemonError("event bus is closed").Build()
	}
	var targets []*subscription
	for subType, list := range b.subs {
		if subType != evtType && !(subType.Kind() == reflect.Interface && evtType.Implements(subType)) {
			continue
		}
		targets = append(targets, list...)
	}
	b.mu.RUnlock()

	// Delivery happens outside the lock so a slow subscriber cannot block
	// Subscribe or Close.
	for _, s := range targets {
		if err := s.deliver(ctx, evt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every subscription channel. Producers must already be
// stopped; publishing concurrently with Close is a caller bug.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true

	var all []*subscription
	for _, list := range b.subs {
		all = append(all, list...)
	}
	b.subs = make(map[reflect.Type][]*subscription)
	b.mu.Unlock()

	for _, s := range all {
		s.finish()
	}
}
