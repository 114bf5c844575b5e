// Package cache implements the persistent correction cache: a mapping from a
// misspelling, normalised by [Key], to the correction accepted for it.
//
// The cache is loaded once from a [Store] when it is opened. Every successful
// mutation rewrites the whole mapping through the store before returning, so
// a crash never loses a confirmed correction. There is no eviction; the
// correction vocabulary of a single writer stays small.
//
// A word is never mapped to itself: [Cache.Set] ignores pairs that are equal
// when compared case-insensitively.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// ErrPersist is wrapped by every error caused by the durable store failing to
// accept a write. Callers test for it with errors.Is.
var ErrPersist = errors.New("cache: persist failed")

// Store is the durable backing for a [Cache]. Save always receives the full
// mapping; implementations replace whatever they held before.
type Store interface {
	// Load returns the persisted mapping. A store that holds nothing yet
	// returns an empty map and a nil error.
	Load(ctx context.Context) (map[string]string, error)

	// Save replaces the persisted mapping with entries.
	Save(ctx context.Context, entries map[string]string) error

	// Remove deletes the persisted artifact. Removing an absent artifact is
	// not an error.
	Remove(ctx context.Context) error
}

// Entry is one cached correction.
type Entry struct {
	Word       string `json:"word"`
	Correction string `json:"correction"`
}

// Cache is a write-through correction cache. It is safe for concurrent use:
// every read-modify-persist sequence holds a single mutex, so two callers
// learning corrections at the same time cannot lose each other's update.
type Cache struct {
	mu      sync.Mutex
	store   Store
	entries map[string]string
}

// Open loads the mapping from store. When the store is unreadable or holds
// malformed data the cache starts empty and the problem is logged; the next
// successful write replaces the bad artifact.
func Open(ctx context.Context, store Store) *Cache {
	c := &Cache{store: store, entries: make(map[string]string)}
	if store == nil {
		return c
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		slog.Warn("cache: load failed, starting empty", "err", err)
		return c
	}

	// Entries written under an older key form are re-keyed. Iterating in
	// sorted order keeps the winner stable when two old keys collide.
	rekeyed := 0
	for _, k := range slices.Sorted(maps.Keys(loaded)) {
		v := loaded[k]
		key, val := Key(k), strings.TrimSpace(v)
		if key == "" || val == "" || sameWord(k, val) {
			slog.Debug("cache: skipping invalid stored entry", "word", k, "correction", v)
			rekeyed++
			continue
		}
		if key != k {
			rekeyed++
			if prev, ok := c.entries[key]; ok {
				slog.Warn("cache: stored entries collide after re-keying", "key", key, "kept", prev, "dropped", val)
				continue
			}
		}
		c.entries[key] = val
	}
	if rekeyed > 0 {
		if err := c.persistLocked(ctx); err != nil {
			slog.Warn("cache: rewriting re-keyed entries failed", "count", rekeyed, "err", err)
		}
	}
	return c
}

// Key returns the lookup key for word: lower-cased with every rune that is
// not a letter, digit or underscore removed. "Would'nt" and "wouldnt" share
// a key, as do "wel-cum" and "welcum".
func Key(word string) string {
	return strings.Map(func(r rune) rune {
		if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, word)
}

// sameWord reports whether correction only repeats word with different case
// or surrounding space. Punctuation counts: "wouldnt" -> "wouldn't" is a
// real correction even though both share a key.
func sameWord(word, correction string) bool {
	return strings.EqualFold(strings.TrimSpace(word), strings.TrimSpace(correction))
}

// Get returns the correction stored for word, ignoring case.
func (c *Cache) Get(word string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[Key(word)]
	return v, ok
}

// Set records that word should be corrected to correction and persists the
// full mapping. It is a no-op returning nil when either side is blank or the
// two are equal ignoring case, and when the same mapping is already stored.
//
// If persisting fails the in-memory change is rolled back and an error
// wrapping [ErrPersist] is returned.
func (c *Cache) Set(ctx context.Context, word, correction string) error {
	key, val := Key(word), strings.TrimSpace(correction)
	if key == "" || val == "" || sameWord(word, val) {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	prev, existed := c.entries[key]
	if existed && prev == val {
		return nil
	}
	c.entries[key] = val

	if err := c.persistLocked(ctx); err != nil {
		if existed {
			c.entries[key] = prev
		} else {
			delete(c.entries, key)
		}
		return err
	}
	return nil
}

// Delete removes the entry for word, if any, and persists the result.
func (c *Cache) Delete(ctx context.Context, word string) error {
	key := Key(word)

	c.mu.Lock()
	defer c.mu.Unlock()

	prev, ok := c.entries[key]
	if !ok {
		return nil
	}
	delete(c.entries, key)

	if err := c.persistLocked(ctx); err != nil {
		c.entries[key] = prev
		return err
	}
	return nil
}

// Prune deletes every entry for which drop returns true and persists the
// result once. It returns the number of entries removed. On persist failure
// nothing is removed.
func (c *Cache) Prune(ctx context.Context, drop func(word, correction string) bool) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := make(map[string]string)
	for k, v := range c.entries {
		if drop(k, v) {
			removed[k] = v
		}
	}
	if len(removed) == 0 {
		return 0, nil
	}
	for k := range removed {
		delete(c.entries, k)
	}

	if err := c.persistLocked(ctx); err != nil {
		maps.Copy(c.entries, removed)
		return 0, err
	}
	return len(removed), nil
}

// Clear empties the cache and removes the durable artifact.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]string)
	if c.store == nil {
		return nil
	}
	if err := c.store.Remove(ctx); err != nil {
		return fmt.Errorf("%w: remove: %w", ErrPersist, err)
	}
	return nil
}

// Entries returns a snapshot of the cache sorted by word.
func (c *Cache) Entries() []Entry {
	c.mu.Lock()
	out := make([]Entry, 0, len(c.entries))
	for k, v := range c.entries {
		out = append(out, Entry{Word: k, Correction: v})
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Word < out[j].Word })
	return out
}

// Len returns the number of cached corrections.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Ping checks that the backing store can still be read. It is used by
// readiness checks.
func (c *Cache) Ping(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	if _, err := c.store.Load(ctx); err != nil {
		return fmt.Errorf("cache: ping: %w", err)
	}
	return nil
}

// persistLocked writes a copy of the mapping to the store. c.mu must be held.
func (c *Cache) persistLocked(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	if err := c.store.Save(ctx, maps.Clone(c.entries)); err != nil {
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}
