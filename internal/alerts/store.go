package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"fuel-monitor/internal/models"
	"fuel-monitor/pkg/storage"

	"github.com/google/uuid"
)

// DefaultStorageKey is the namespace the alert ledger is persisted under.
const DefaultStorageKey = "agilfleet-alerts"

var (
	ErrAlertNotFound = errors.New("alert not found")
	ErrStoreClosed   = errors.New("alert store is closed")
)

// Store is the local alert ledger: newest first, persisted as one blob and
// republished in full to every subscriber after each mutation.
type Store struct {
	mu      sync.Mutex
	blob    storage.BlobStore
	key     string
	alerts  []models.Alert
	seq     uint64
	version uint64
	subs    map[*Subscription]struct{}
	closed  bool

	maxAlerts int
	maxAge    time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

type Option func(*Store)

func WithKey(key string) Option {
	return func(s *Store) {
		if key != "" {
			s.key = key
		}
	}
}

// WithMaxAlerts bounds the ledger length; zero means unbounded.
func WithMaxAlerts(n int) Option {
	return func(s *Store) { s.maxAlerts = n }
}

// WithMaxAge drops alerts dated before now-d; zero disables the age bound.
func WithMaxAge(d time.Duration) Option {
	return func(s *Store) { s.maxAge = d }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewStore(blob storage.BlobStore, opts ...Option) *Store {
	s := &Store{
		blob:   blob,
		key:    DefaultStorageKey,
		subs:   make(map[*Subscription]struct{}),
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load seeds the ledger from storage. A missing or corrupt blob yields an
// empty ledger; only a storage read failure is returned, and even then the
// store stays usable with an empty ledger.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	s.alerts = nil
	s.seq = 0

	data, err := s.blob.Get(ctx, s.key)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.logger.Debug("no persisted alerts", "key", s.key)
		s.publishLocked()
		return nil
	case err != nil:
		s.publishLocked()
		return fmt.Errorf("failed to read alerts: %w", err)
	}

	var loaded []models.Alert
	if err := json.Unmarshal(data, &loaded); err != nil {
		s.logger.Warn("discarding corrupt alert blob", "key", s.key, "error", err)
		s.publishLocked()
		return nil
	}

	if upgraded := s.adoptLocked(loaded); upgraded {
		s.persistLocked(ctx)
	}
	s.publishLocked()

	s.logger.Info("alerts loaded", "count", len(s.alerts), "key", s.key)
	return nil
}

// adoptLocked installs a loaded list, assigning ids and sequence numbers to
// entries written before alerts had a stable identity.
func (s *Store) adoptLocked(loaded []models.Alert) bool {
	upgraded := false
	needSeq := false
	for _, a := range loaded {
		if a.Seq == 0 {
			needSeq = true
			break
		}
	}

	n := len(loaded)
	for i := range loaded {
		if loaded[i].ID == "" {
			loaded[i].ID = uuid.NewString()
			upgraded = true
		}
		if needSeq {
			loaded[i].Seq = uint64(n - i)
			upgraded = true
		}
		if loaded[i].Seq > s.seq {
			s.seq = loaded[i].Seq
		}
	}

	s.alerts = loaded
	return upgraded
}

// Add records an alert dated today.
func (s *Store) Add(ctx context.Context, message string) (models.Alert, error) {
	return s.AddAt(ctx, message, s.now())
}

// AddAt records an alert dated on the day of at. Identical messages are not merged.
func (s *Store) AddAt(ctx context.Context, message string, at time.Time) (models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return models.Alert{}, ErrStoreClosed
	}

	s.seq++
	alert := models.Alert{
		ID:      uuid.NewString(),
		Seq:     s.seq,
		Message: message,
		Date:    at.Format(models.DateLayout),
		Read:    false,
	}

	next := make([]models.Alert, 0, len(s.alerts)+1)
	next = append(next, alert)
	next = append(next, s.alerts...)
	s.alerts = s.retainLocked(next, s.now())

	s.publishLocked()
	s.persistLocked(ctx)
	return alert, nil
}

// MarkAsRead flips the read flag of the alert with the given id. Marking an
// already read alert changes nothing and publishes nothing.
func (s *Store) MarkAsRead(ctx context.Context, id string) (models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return models.Alert{}, ErrStoreClosed
	}

	for i := range s.alerts {
		if s.alerts[i].ID != id {
			continue
		}
		if s.alerts[i].Read {
			return s.alerts[i], nil
		}
		next := make([]models.Alert, len(s.alerts))
		copy(next, s.alerts)
		next[i].Read = true
		s.alerts = next

		s.publishLocked()
		s.persistLocked(ctx)
		return next[i], nil
	}
	return models.Alert{}, ErrAlertNotFound
}

// Clear wipes the ledger and its persisted blob.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	s.alerts = nil
	s.publishLocked()
	if err := s.blob.Delete(ctx, s.key); err != nil {
		return fmt.Errorf("failed to clear alerts: %w", err)
	}
	return nil
}

// Sweep applies the retention policy at now and returns how many alerts were dropped.
func (s *Store) Sweep(ctx context.Context, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0
	}

	before := len(s.alerts)
	kept := s.retainLocked(s.alerts, now)
	dropped := before - len(kept)
	if dropped == 0 {
		return 0
	}

	s.alerts = kept
	s.publishLocked()
	s.persistLocked(ctx)
	return dropped
}

// List returns a copy of the ledger, newest first.
func (s *Store) List() []models.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAlerts(s.alerts)
}

func (s *Store) Snapshot() models.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.Snapshot{Version: s.version, Alerts: cloneAlerts(s.alerts)}
}

func (s *Store) Unread() int {
	return s.Snapshot().UnreadCount()
}

// Subscribe registers a consumer. The current snapshot is delivered first.
func (s *Store) Subscribe() *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := newSubscription(uuid.NewString(), s)
	if s.closed {
		sub.shutdown()
		return sub
	}
	sub.enqueue(models.Snapshot{Version: s.version, Alerts: cloneAlerts(s.alerts)})
	s.subs[sub] = struct{}{}
	return sub
}

func (s *Store) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Close ends every subscription. The blob store is left to its owner.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	for sub := range s.subs {
		sub.shutdown()
		delete(s.subs, sub)
	}
	return nil
}

func (s *Store) unsubscribe(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, sub)
}

func (s *Store) retainLocked(list []models.Alert, now time.Time) []models.Alert {
	if s.maxAge > 0 {
		cutoff := now.Add(-s.maxAge).Format(models.DateLayout)
		kept := list[:0:0]
		for _, a := range list {
			// YYYY-MM-DD compares chronologically as a string
			if a.Date != "" && a.Date < cutoff {
				continue
			}
			kept = append(kept, a)
		}
		list = kept
	}
	if s.maxAlerts > 0 && len(list) > s.maxAlerts {
		list = list[:s.maxAlerts]
	}
	return list
}

func (s *Store) publishLocked() {
	s.version++
	snap := models.Snapshot{Version: s.version, Alerts: cloneAlerts(s.alerts)}
	for sub := range s.subs {
		sub.enqueue(snap)
	}
}

func (s *Store) persistLocked(ctx context.Context) {
	list := s.alerts
	if list == nil {
		list = []models.Alert{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		s.logger.Error("failed to encode alerts", "error", err)
		return
	}
	if err := s.blob.Put(ctx, s.key, data); err != nil {
		s.logger.Error("failed to persist alerts", "key", s.key, "error", err)
	}
}

func cloneAlerts(in []models.Alert) []models.Alert {
	out := make([]models.Alert, len(in))
	copy(out, in)
	return out
}
