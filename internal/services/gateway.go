package services

import (
	"context"
	"sync"

	"github.com/tbourn/go-donations-backend/internal/momo"
)

// Gateway is the subset of *momo.Client the services depend on.
type Gateway interface {
	InitiateCollection(ctx context.Context, r momo.CollectionRequest) momo.InitResult
	InitiateDisbursement(ctx context.Context, r momo.DisbursementRequest) momo.InitResult
	QueryCollectionStatus(ctx context.Context, referenceID string) momo.StatusResult
	QueryDisbursementStatus(ctx context.Context, referenceID string) momo.StatusResult
}

var _ Gateway = (*momo.Client)(nil)

// keyedMutex hands out one mutex per key. Entries are reference counted and
// removed once no goroutine holds or waits for them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*keyedEntry)}
}

// Lock blocks until key is free and returns the matching unlock func.
func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
