package dashboard

import (
	"errors"
	"sync"
)

// ErrStale is returned when a newer request for the same view was issued
// before this one completed
var ErrStale = errors.New("request superseded by a newer one")

// Token identifies one issued request for a view
type Token struct {
	Key        string
	Generation uint64
}

// Tracker hands out request generations per view key. The last request to
// finish is not necessarily the last one issued, so results are checked
// against the latest issued generation before being returned.
type Tracker struct {
	mu     sync.Mutex
	latest map[string]uint64
}

func NewTracker() *Tracker {
	return &Tracker{latest: make(map[string]uint64)}
}

// Begin issues a new generation for key
func (t *Tracker) Begin(key string) Token {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.latest[key]++
	return Token{Key: key, Generation: t.latest[key]}
}

// IsLatest reports whether tok is still the newest request for its key
func (t *Tracker) IsLatest(tok Token) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latest[tok.Key] == tok.Generation
}

// Track runs fn under a fresh generation for key and discards its result
// with ErrStale when a newer generation was issued meanwhile
func Track[T any](t *Tracker, key string, fn func() (T, error)) (T, error) {
	tok := t.Begin(key)
	v, err := fn()
	if err != nil {
		return v, err
	}
	if !t.IsLatest(tok) {
		var zero T
		return zero, ErrStale
	}
	return v, nil
}
