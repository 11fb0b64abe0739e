package journal

import "sync"

type subscriber[T any] struct {
	id int
	fn func(T)
}

// observers is an ordered list of callbacks with unsubscribe handles.
type observers[T any] struct {
	mu     sync.Mutex
	nextID int
	subs   []subscriber[T]
}

func (o *observers[T]) add(fn func(T)) (id int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.nextID++
	o.subs = append(o.subs, subscriber[T]{id: o.nextID, fn: fn})
	return o.nextID
}

func (o *observers[T]) remove(id int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, s := range o.subs {
		if s.id == id {
			o.subs = append(o.subs[:i:i], o.subs[i+1:]...)
			return
		}
	}
}

func (o *observers[T]) publish(v T) {
	o.mu.Lock()
	subs := make([]subscriber[T], len(o.subs))
	copy(subs, o.subs)
	o.mu.Unlock()

	for _, s := range subs {
		s.fn(v)
	}
}

func (o *observers[T]) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.subs)
}

// subscribe registers fn, delivers v to it immediately and returns an
// idempotent unsubscribe func.
func (o *observers[T]) subscribe(fn func(T), current T) func() {
	id := o.add(fn)
	fn(current)
	var once sync.Once
	return func() { once.Do(func() { o.remove(id) }) }
}
