package gateway

import (
	"sync"
	"time"
)

// PaymentStatus is the persisted per-payment idempotency record.
type PaymentStatus struct {
	PaymentID string    `json:"payment_id"`
	Settled   bool      `json:"settled"`
	SettledAt time.Time `json:"settled_at"`
}

// Store persists payment status keyed by payment id. The gateway consults it
// inside its critical section, so implementations do not need their own
// cross-payment locking beyond basic thread safety.
type Store interface {
	Get(paymentID string) (PaymentStatus, bool, error)
	Put(status PaymentStatus) error
	Close() error
}

// MemoryStore keeps payment status in process memory. Suitable for tests and
// single-run demos; production configs use the SQLite store.
type MemoryStore struct {
	mu       sync.RWMutex
	statuses map[string]PaymentStatus
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{statuses: make(map[string]PaymentStatus)}
}

func (s *MemoryStore) Get(paymentID string) (PaymentStatus, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status, ok := s.statuses[paymentID]
	return status, ok, nil
}

func (s *MemoryStore) Put(status PaymentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[status.PaymentID] = status
	return nil
}

func (s *MemoryStore) Close() error { return nil }
