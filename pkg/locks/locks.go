// Package locks provides the exclusive scope that serializes every
// balance-check-then-write sequence for one (account, symbol).
//
// Transfers and first-time address allocation for the same account and
// currency must hold this lock; plain reads never take it. Acquisition is
// bounded so a stuck holder degrades into ErrLockTimeout instead of piling
// up blocked requests.
package locks

import (
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"
)

var ErrLockTimeout = errors.New("lock acquisition timed out")

// DefaultWait bounds how long a transfer waits for a contended account.
const DefaultWait = 10 * time.Second

// Keyed hands out exclusive scopes by key. Release via the returned func,
// always, including on error paths.
type Keyed interface {
	Acquire(key string, wait time.Duration) (release func(), err error)
}

// AccountKey is the canonical lock key for one account's holdings in one currency.
func AccountKey(account int64, symbol string) string {
	return strconv.FormatInt(account, 10) + "/" + strings.ToUpper(symbol)
}

// Local is an in-process Keyed, one semaphore per key.
//
// Entries are kept for the life of the process; the key space is bounded by
// accounts x currencies actually transacting.
type Local struct {
	mu   sync.Mutex
	sems map[string]chan struct{}
}

func NewLocal() *Local {
	return &Local{
		sems: map[string]chan struct{}{},
	}
}

func (l *Local) sem(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	sem, ok := l.sems[key]
	if !ok {
		sem = make(chan struct{}, 1)
		l.sems[key] = sem
	}
	return sem
}

func (l *Local) Acquire(key string, wait time.Duration) (release func(), err error) {
	if wait <= 0 {
		wait = DefaultWait
	}

	sem := l.sem(key)

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case sem <- struct{}{}:
		var once sync.Once
		release = func() {
			once.Do(func() { <-sem })
		}
		return release, nil
	case <-timer.C:
		return nil, ErrLockTimeout
	}
}
