package workspace

import "sync"

// Subscription delivers snapshots on C. Deliveries queue without bound so the
// store never blocks on a slow reader and no change is dropped.
type Subscription struct {
	C <-chan Snapshot

	id     uint64
	store  *Store
	out    chan Snapshot
	wake   chan struct{}
	done   chan struct{}
	once   sync.Once
	mu     sync.Mutex
	queue  []Snapshot
	closed bool
}

func newSubscription(store *Store, id uint64) *Subscription {
	out := make(chan Snapshot)
	sub := &Subscription{
		C:     out,
		id:    id,
		store: store,
		out:   out,
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	go sub.pump()
	return sub
}

// push is called with the store lock held.
func (sub *Subscription) push(snap Snapshot) {
	sub.mu.Lock()
	if sub.closed {
		sub.mu.Unlock()
		return
	}
	sub.queue = append(sub.queue, snap)
	sub.mu.Unlock()

	select {
	case sub.wake <- struct{}{}:
	default:
	}
}

func (sub *Subscription) pump() {
	defer close(sub.out)
	for {
		sub.mu.Lock()
		var next Snapshot
		ok := len(sub.queue) > 0
		if ok {
			next = sub.queue[0]
			sub.queue[0] = Snapshot{}
			sub.queue = sub.queue[1:]
		}
		sub.mu.Unlock()

		if !ok {
			select {
			case <-sub.wake:
				continue
			case <-sub.done:
				return
			}
		}

		select {
		case sub.out <- next:
		case <-sub.done:
			return
		}
	}
}

// Close stops deliveries and closes C. Pending snapshots are discarded.
func (sub *Subscription) Close() {
	sub.once.Do(func() {
		sub.store.unsubscribe(sub.id)
		sub.mu.Lock()
		sub.closed = true
		sub.queue = nil
		sub.mu.Unlock()
		close(sub.done)
	})
}
