package alerts

import (
	"sync"

	"fuel-monitor/internal/models"
)

// Subscription is one consumer of the alert feed. Snapshots are queued in an
// unbounded mailbox so the publisher never blocks and nothing is skipped.
type Subscription struct {
	ID string

	store *Store
	out   chan models.Snapshot
	wake  chan struct{}
	done  chan struct{}

	mu      sync.Mutex
	pending []models.Snapshot

	closeOnce sync.Once
}

func newSubscription(id string, store *Store) *Subscription {
	sub := &Subscription{
		ID:    id,
		store: store,
		out:   make(chan models.Snapshot),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	go sub.pump()
	return sub
}

// C delivers snapshots in publication order. It is closed after Close.
// Snapshots are shared between subscribers and must not be modified.
func (sub *Subscription) C() <-chan models.Snapshot {
	return sub.out
}

// Close detaches the subscription from its store.
func (sub *Subscription) Close() {
	if sub.store != nil {
		sub.store.unsubscribe(sub)
	}
	sub.shutdown()
}

func (sub *Subscription) shutdown() {
	sub.closeOnce.Do(func() {
		close(sub.done)
	})
}

func (sub *Subscription) enqueue(snap models.Snapshot) {
	sub.mu.Lock()
	sub.pending = append(sub.pending, snap)
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
		if len(sub.pending) == 0 {
			sub.mu.Unlock()
			select {
			case <-sub.wake:
				continue
			case <-sub.done:
				return
			}
		}
		next := sub.pending[0]
		sub.pending[0] = models.Snapshot{}
		sub.pending = sub.pending[1:]
		sub.mu.Unlock()

		select {
		case sub.out <- next:
		case <-sub.done:
			return
		}
	}
}
