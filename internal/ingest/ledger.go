package ingest

import (
	"github.com/bits-and-blooms/bloom/v3"
)

// Ledger tracks the identities of every score already persisted: the raw
// primary ids and the fingerprints. A bloom filter fronts both exact sets
// as a cheap negative check; the sets stay authoritative since bloom
// lookups can false-positive. The ledger only ever grows during a run.
type Ledger struct {
	filter       *bloom.BloomFilter
	ids          map[string]struct{}
	fingerprints map[string]struct{}
}

// NewLedger creates an empty ledger.
// Sized for 1M entries with 0.1% false positive rate.
func NewLedger() *Ledger {
	return &Ledger{
		filter:       bloom.NewWithEstimates(1000000, 0.001),
		ids:          make(map[string]struct{}),
		fingerprints: make(map[string]struct{}),
	}
}

// Seen reports whether a record with this id or fingerprint has already
// been accepted. The id check is the fast path; the fingerprint is the
// authoritative dedup key.
func (l *Ledger) Seen(id, fingerprint string) bool {
	if id != "" && l.filter.TestString(id) {
		if _, ok := l.ids[id]; ok {
			return true
		}
	}
	if !l.filter.TestString(fingerprint) {
		return false
	}
	_, ok := l.fingerprints[fingerprint]
	return ok
}

// Add records an accepted identity. Empty ids are skipped (the row had no
// id column); the fingerprint is always recorded.
func (l *Ledger) Add(id, fingerprint string) {
	if id != "" {
		l.filter.AddString(id)
		l.ids[id] = struct{}{}
	}
	l.filter.AddString(fingerprint)
	l.fingerprints[fingerprint] = struct{}{}
}

// Size returns the number of known ids and fingerprints.
func (l *Ledger) Size() (ids, fingerprints int) {
	return len(l.ids), len(l.fingerprints)
}
