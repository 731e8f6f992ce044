// Package tld answers whether a top-level label is currently valid.
//
// The answer comes from the union of a reference set, refreshed from a remote
// line-delimited feed, and an operator-maintained custom set. Lookups read an
// immutable snapshot through an atomic pointer; writers are serialized by a
// mutex and publish a new snapshot when they are done.
package tld

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorhill/cronexpr"
	"golang.org/x/net/idna"
	"golang.org/x/sync/singleflight"

	"github.com/pbaille/osintdeck/internal/metrics"
	"github.com/pbaille/osintdeck/internal/store"
)

// errUnchanged aborts a stored-set update that has nothing to write
var errUnchanged = errors.New("unchanged")

const (
	keyReference   = "tld.reference"
	keyCustom      = "tld.custom"
	keyRefreshedAt = "tld.refreshed_at"
)

// fallback seeds the reference set until a first successful refresh
var fallback = []string{
	"com", "net", "org", "edu", "gov", "mil", "int", "info", "biz", "io",
	"co", "me", "app", "dev", "xyz", "online", "site", "tech", "ai", "cloud",
	"uk", "us", "ca", "de", "fr", "es", "it", "nl", "be", "ch", "at", "se",
	"no", "dk", "fi", "pl", "pt", "ie", "ru", "ua", "cn", "jp", "kr", "in",
	"au", "nz", "br", "ar", "mx", "cl", "pe", "ve", "uy", "za", "eu",
}

// LineFetcher retrieves a line-delimited list
type LineFetcher interface {
	FetchLines(ctx context.Context, rawURL string) ([]string, error)
}

type snapshot struct {
	reference   map[string]struct{}
	custom      map[string]struct{}
	refreshedAt time.Time
}

// Oracle is the TLD validity lookup service
type Oracle struct {
	kv      store.KV
	fetcher LineFetcher
	feedURL string
	timeout time.Duration
	logger  *slog.Logger

	mu    sync.Mutex
	state atomic.Pointer[snapshot]
	group singleflight.Group
}

// Options configures an Oracle
type Options struct {
	FeedURL string
	// Timeout bounds a single refresh, on top of the caller's context
	Timeout time.Duration
	Logger  *slog.Logger
}

// New builds an Oracle, loading persisted sets from kv. When no reference set
// has been persisted yet the oracle starts from a built-in fallback list.
func New(ctx context.Context, kv store.KV, fetcher LineFetcher, opts Options) (*Oracle, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	o := &Oracle{
		kv:      kv,
		fetcher: fetcher,
		feedURL: opts.FeedURL,
		timeout: opts.Timeout,
		logger:  opts.Logger,
	}

	snap, err := o.load(ctx)
	if err != nil {
		return nil, err
	}
	o.state.Store(snap)
	metrics.TLDReferenceSize.Set(float64(len(snap.reference)))

	return o, nil
}

// IsValid reports whether label is in the reference or custom set.
// Matching is case-insensitive; Unicode labels are compared in punycode form.
func (o *Oracle) IsValid(label string) bool {
	l, ok := Normalize(label)
	if !ok {
		return false
	}
	snap := o.state.Load()
	if _, ok := snap.reference[l]; ok {
		return true
	}
	_, ok = snap.custom[l]
	return ok
}

// Refresh replaces the reference set from the feed. On any failure the
// current reference set stays authoritative. Concurrent callers share one fetch.
func (o *Oracle) Refresh(ctx context.Context) (int, error) {
	v, err, _ := o.group.Do("refresh", func() (any, error) {
		return o.refresh(ctx)
	})
	if err != nil {
		metrics.TLDRefreshTotal.WithLabelValues("error").Inc()
		o.logger.Warn("tld refresh failed", "feed", o.feedURL, "error", err)
		return 0, err
	}
	metrics.TLDRefreshTotal.WithLabelValues("ok").Inc()
	return v.(int), nil
}

func (o *Oracle) refresh(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	lines, err := o.fetcher.FetchLines(ctx, o.feedURL)
	if err != nil {
		return 0, fmt.Errorf("fetch tld feed: %w", err)
	}

	labels := make([]string, 0, len(lines))
	for _, line := range lines {
		if l, ok := Normalize(line); ok {
			labels = append(labels, l)
		}
	}
	if len(labels) == 0 {
		return 0, fmt.Errorf("parse tld feed: no valid labels in %d lines", len(lines))
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	now := time.Now().UTC()
	if err := store.PutJSON(ctx, o.kv, keyReference, labels); err != nil {
		return 0, fmt.Errorf("persist reference set: %w", err)
	}
	if err := store.PutJSON(ctx, o.kv, keyRefreshedAt, now); err != nil {
		o.logger.Warn("persist tld refresh time", "error", err)
	}

	cur := o.state.Load()
	next := &snapshot{reference: toSet(labels), custom: cur.custom, refreshedAt: now}
	o.state.Store(next)
	metrics.TLDReferenceSize.Set(float64(len(next.reference)))

	o.logger.Info("tld reference refreshed", "labels", len(next.reference))
	return len(next.reference), nil
}

// AddCustom adds label to the custom allow-list. It returns false when the
// label was already present.
func (o *Oracle) AddCustom(ctx context.Context, label string) (bool, error) {
	l, ok := Normalize(label)
	if !ok {
		return false, fmt.Errorf("invalid label: %q", label)
	}
	return o.updateCustom(ctx, func(custom map[string]struct{}) bool {
		if _, exists := custom[l]; exists {
			return false
		}
		custom[l] = struct{}{}
		return true
	})
}

// RemoveCustom removes label from the custom allow-list. It returns false
// when the label was not present.
func (o *Oracle) RemoveCustom(ctx context.Context, label string) (bool, error) {
	l, ok := Normalize(label)
	if !ok {
		return false, nil
	}
	return o.updateCustom(ctx, func(custom map[string]struct{}) bool {
		if _, exists := custom[l]; !exists {
			return false
		}
		delete(custom, l)
		return true
	})
}

// updateCustom applies mutate to the stored custom set, which may have been
// changed by another process, and publishes the result
func (o *Oracle) updateCustom(ctx context.Context, mutate func(map[string]struct{}) bool) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var custom map[string]struct{}
	changed := false
	err := store.UpdateJSON(ctx, o.kv, keyCustom, func(labels *[]string) error {
		custom = toSet(*labels)
		changed = mutate(custom)
		if !changed {
			return errUnchanged
		}
		*labels = sortedKeys(custom)
		return nil
	})
	if err != nil && !errors.Is(err, errUnchanged) {
		return false, fmt.Errorf("persist custom set: %w", err)
	}

	cur := o.state.Load()
	o.state.Store(&snapshot{reference: cur.reference, custom: custom, refreshedAt: cur.refreshedAt})
	return changed, nil
}

// Sync reloads the reference and custom sets from the store, picking up
// refreshes and custom-label edits made by other processes. It reports
// whether anything changed.
func (o *Oracle) Sync(ctx context.Context) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	next, err := o.load(ctx)
	if err != nil {
		return false, err
	}
	cur := o.state.Load()
	if cur.refreshedAt.Equal(next.refreshedAt) && sameSet(cur.custom, next.custom) {
		return false, nil
	}
	o.state.Store(next)
	metrics.TLDReferenceSize.Set(float64(len(next.reference)))
	o.logger.Info("tld sets reloaded from store",
		"reference", len(next.reference),
		"custom", len(next.custom),
	)
	return true, nil
}

// load reads the persisted sets, seeding the fallback list when no
// reference set has been stored yet
func (o *Oracle) load(ctx context.Context) (*snapshot, error) {
	var reference, custom []string
	var refreshedAt time.Time
	if _, err := store.GetJSON(ctx, o.kv, keyReference, &reference); err != nil {
		return nil, fmt.Errorf("load reference set: %w", err)
	}
	if _, err := store.GetJSON(ctx, o.kv, keyCustom, &custom); err != nil {
		return nil, fmt.Errorf("load custom set: %w", err)
	}
	if _, err := store.GetJSON(ctx, o.kv, keyRefreshedAt, &refreshedAt); err != nil {
		return nil, fmt.Errorf("load refresh time: %w", err)
	}

	snap := &snapshot{
		reference:   toSet(reference),
		custom:      toSet(custom),
		refreshedAt: refreshedAt,
	}
	if len(snap.reference) == 0 {
		snap.reference = toSet(fallback)
	}
	return snap, nil
}

// Custom returns the custom allow-list, sorted
func (o *Oracle) Custom() []string {
	return sortedKeys(o.state.Load().custom)
}

// Stats describes the current oracle state
type Stats struct {
	ReferenceCount int       `json:"reference_count"`
	CustomCount    int       `json:"custom_count"`
	RefreshedAt    time.Time `json:"refreshed_at,omitempty"`
}

func (o *Oracle) Stats() Stats {
	snap := o.state.Load()
	return Stats{
		ReferenceCount: len(snap.reference),
		CustomCount:    len(snap.custom),
		RefreshedAt:    snap.refreshedAt,
	}
}

// RefreshDue reports whether a refresh is due under the cron schedule:
// always when never refreshed, otherwise once the next occurrence after the
// last refresh has passed.
func (o *Oracle) RefreshDue(schedule string, now time.Time) (bool, error) {
	expr, err := cronexpr.Parse(schedule)
	if err != nil {
		return false, fmt.Errorf("parse schedule: %w", err)
	}
	last := o.state.Load().refreshedAt
	if last.IsZero() {
		return true, nil
	}
	next := expr.Next(last)
	if next.IsZero() {
		return false, nil
	}
	return !next.After(now), nil
}

// Normalize lowercases a label, strips a leading dot and converts Unicode to
// its ASCII form. It returns false for labels that are not valid DNS labels.
func Normalize(label string) (string, bool) {
	l := strings.TrimPrefix(strings.TrimSpace(label), ".")
	if l == "" || strings.Contains(l, ".") {
		return "", false
	}
	ascii, err := idna.Lookup.ToASCII(l)
	if err != nil || ascii == "" {
		return "", false
	}
	return strings.ToLower(ascii), true
}

func toSet(labels []string) map[string]struct{} {
	set := make(map[string]struct{}, len(labels))
	for _, label := range labels {
		if l, ok := Normalize(label); ok {
			set[l] = struct{}{}
		}
	}
	return set
}

func sameSet(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
