// Package cache provides the read-through caches in front of the dashboard and
// trip history. Every namespace is versioned: InvalidateAll bumps the version,
// so a value computed before a mutation can never be stored where readers
// after the mutation will find it.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Cache is a read-through cache of encoded snapshots.
//
// Get returns the current version alongside a miss; pass it back to Set so
// the value lands only if no invalidation happened in between.
type Cache interface {
	Get(ctx context.Context, key string) (value []byte, version int64, ok bool)
	Set(ctx context.Context, key string, version int64, value []byte, ttl time.Duration)
	InvalidateAll(ctx context.Context) error
}

// Invalidator clears caches after a write.
type Invalidator interface {
	InvalidateAll(ctx context.Context) error
}

// Backend is the key-value storage under a namespace.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Counter(ctx context.Context, key string) (int64, error)
	Incr(ctx context.Context, key string) (int64, error)
	DeletePrefix(ctx context.Context, prefix string) error
}

// Namespace is a named Cache over a shared Backend.
type Namespace struct {
	name    string
	backend Backend
	ttl     time.Duration
	log     logrus.FieldLogger
}

// NewNamespace creates a cache named name with a default TTL.
func NewNamespace(name string, backend Backend, ttl time.Duration, log logrus.FieldLogger) *Namespace {
	return &Namespace{
		name:    name,
		backend: backend,
		ttl:     ttl,
		log:     log.WithField("cache", name),
	}
}

// Name returns the namespace name.
func (n *Namespace) Name() string { return n.name }

func (n *Namespace) versionKey() string { return n.name + ":version" }

func (n *Namespace) entryPrefix() string { return n.name + ":e" }

func (n *Namespace) entryKey(version int64, key string) string {
	return n.entryPrefix() + strconv.FormatInt(version, 10) + ":" + key
}

// Get looks key up under the current version. Backend failures count as misses.
func (n *Namespace) Get(ctx context.Context, key string) ([]byte, int64, bool) {
	version, err := n.backend.Counter(ctx, n.versionKey())
	if err != nil {
		n.log.WithError(err).Warn("cache version lookup failed")
		return nil, -1, false
	}
	value, ok, err := n.backend.Get(ctx, n.entryKey(version, key))
	if err != nil {
		n.log.WithError(err).WithField("key", key).Warn("cache get failed")
		return nil, version, false
	}
	return value, version, ok
}

// Set stores value under version. A negative version or ttl <= 0 with no
// default TTL skips the write.
func (n *Namespace) Set(ctx context.Context, key string, version int64, value []byte, ttl time.Duration) {
	if version < 0 {
		return
	}
	if ttl <= 0 {
		ttl = n.ttl
	}
	if ttl <= 0 {
		return
	}
	if err := n.backend.Set(ctx, n.entryKey(version, key), value, ttl); err != nil {
		n.log.WithError(err).WithField("key", key).Warn("cache set failed")
	}
}

// InvalidateAll bumps the version and drops every stored entry.
func (n *Namespace) InvalidateAll(ctx context.Context) error {
	if _, err := n.backend.Incr(ctx, n.versionKey()); err != nil {
		return fmt.Errorf("cache %s: bump version: %w", n.name, err)
	}
	if err := n.backend.DeletePrefix(ctx, n.entryPrefix()); err != nil {
		// Entries of old versions are unreachable anyway; they expire on TTL.
		n.log.WithError(err).Warn("cache purge failed")
	}
	return nil
}

// Group invalidates several caches together.
type Group []Invalidator

// InvalidateAll clears every member, continuing past failures.
func (g Group) InvalidateAll(ctx context.Context) error {
	var errs []error
	for _, c := range g {
		if err := c.InvalidateAll(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Fetch returns the cached value for key or computes it with load and stores
// it. Undecodable entries are recomputed.
func Fetch[T any](ctx context.Context, c Cache, key string, ttl time.Duration, load func(context.Context) (T, error)) (T, error) {
	raw, version, ok := c.Get(ctx, key)
	if ok {
		var cached T
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
	}
	value, err := load(ctx)
	if err != nil {
		return value, err
	}
	if encoded, err := json.Marshal(value); err == nil {
		c.Set(ctx, key, version, encoded, ttl)
	}
	return value, nil
}

// Key renders query parameters as a stable key. Empty values are dropped.
func Key(params map[string]string) string {
	names := make([]string, 0, len(params))
	for k, v := range params {
		if v != "" {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	parts := make([]string, len(names))
	for i, k := range names {
		parts[i] = k + "=" + params[k]
	}
	if len(parts) == 0 {
		return "all"
	}
	return strings.Join(parts, "&")
}
