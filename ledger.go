package upload

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/awslabs/visual-asset-management-system-sub005/kvstore"
)

// DefaultStorageKey is the well-known key the whole ledger serializes
// under in the backing key-value store.
const DefaultStorageKey = "__uploadInProgress"

// Record is the persisted metadata for one in-progress upload session,
// keyed by source fingerprint. It is created when a new remote session
// opens, touched when a cached session is reused, and deleted when the
// upload completes.
type Record struct {
	// Container is the destination container (bucket)
	Container string `json:"container"`

	// Key is the destination object key
	Key string `json:"key"`

	// DisplayName is a human-readable name for the transfer
	DisplayName string `json:"displayName"`

	// SessionID is the remote multipart upload session id
	SessionID string `json:"sessionId"`

	// LastTouched records when the session was created or last reused
	LastTouched time.Time `json:"lastTouched"`
}

// Ledger is the durable mapping from source fingerprints to in-progress
// upload records, enabling resumability across process restarts. The whole
// mapping is serialized as a single JSON object under one well-known
// storage key. At most one record exists per fingerprint; the ledger is a
// flat mapping, not a versioned history.
//
// Read/modify/write against the store is not atomic across processes: two
// processes racing on the same fingerprint may both believe they own the
// remote session. The design accepts this rather than arbitrating it.
type Ledger struct {
	kv  kvstore.KV
	key string
	now func() time.Time
}

// NewLedger creates a ledger over the given store. An empty storageKey
// selects DefaultStorageKey.
func NewLedger(kv kvstore.KV, storageKey string) *Ledger {
	if storageKey == "" {
		storageKey = DefaultStorageKey
	}
	return &Ledger{
		kv:  kv,
		key: storageKey,
		now: time.Now,
	}
}

// Get returns the record for fingerprint, if one exists.
func (l *Ledger) Get(fingerprint string) (Record, bool, error) {
	records, err := l.load()
	if err != nil {
		return Record{}, false, err
	}
	record, ok := records[fingerprint]
	return record, ok, nil
}

// Put stores the record under fingerprint, stamping LastTouched, and
// replaces any previous record for that fingerprint.
func (l *Ledger) Put(fingerprint string, record Record) error {
	records, err := l.load()
	if err != nil {
		return err
	}
	record.LastTouched = l.now()
	records[fingerprint] = record
	return l.store(records)
}

// Remove deletes the record for fingerprint. Removing a fingerprint with
// no record is a no-op.
func (l *Ledger) Remove(fingerprint string) error {
	records, err := l.load()
	if err != nil {
		return err
	}
	if _, ok := records[fingerprint]; !ok {
		return nil
	}
	delete(records, fingerprint)
	return l.store(records)
}

// Prune removes records whose LastTouched is older than maxAge and
// returns how many were removed. Backend lifecycle policies reap the
// abandoned remote sessions themselves; pruning only keeps the ledger
// from accumulating dead entries.
func (l *Ledger) Prune(maxAge time.Duration) (int, error) {
	records, err := l.load()
	if err != nil {
		return 0, err
	}

	cutoff := l.now().Add(-maxAge)
	removed := 0
	for fingerprint, record := range records {
		if record.LastTouched.Before(cutoff) {
			delete(records, fingerprint)
			removed++
		}
	}
	if removed == 0 {
		return 0, nil
	}
	return removed, l.store(records)
}

// load reads the whole mapping. A missing, empty, or unparseable payload
// reads as an empty ledger so a damaged store never blocks new uploads.
func (l *Ledger) load() (map[string]Record, error) {
	raw, ok, err := l.kv.Get(l.key)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}

	records := make(map[string]Record)
	if !ok || raw == "" {
		return records, nil
	}
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return make(map[string]Record), nil
	}
	return records, nil
}

func (l *Ledger) store(records map[string]Record) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	if err := l.kv.Set(l.key, string(data)); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	return nil
}
