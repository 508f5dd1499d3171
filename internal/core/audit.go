package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"sheltercore/internal/blob"
)

// AuditStatus classifies the outcome of an audited operation.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
	AuditStatusBlocked AuditStatus = "blocked"
)

// AuditEntry records one service operation for the audit trail.
type AuditEntry struct {
	Operation string      `json:"operation"`
	Actor     string      `json:"actor,omitempty"`
	BedID     string      `json:"bed_id,omitempty"`
	ClientID  string      `json:"client_id,omitempty"`
	Status    AuditStatus `json:"status"`
	Detail    string      `json:"detail,omitempty"`
	At        time.Time   `json:"at"`
}

// AuditLog receives entries for every audited service operation. Recording is
// best-effort: implementations must not fail the primary operation.
type AuditLog interface {
	Record(ctx context.Context, entry AuditEntry)
}

type noopAuditLog struct{}

func (noopAuditLog) Record(context.Context, AuditEntry) {}

// MemoryAuditLog captures entries in memory for assertions.
type MemoryAuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
}

// NewMemoryAuditLog returns an empty in-memory audit log.
func NewMemoryAuditLog() *MemoryAuditLog { return &MemoryAuditLog{} }

// Record implements AuditLog.
func (l *MemoryAuditLog) Record(_ context.Context, entry AuditEntry) {
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
}

// Entries returns a copy of the recorded entries.
func (l *MemoryAuditLog) Entries() []AuditEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]AuditEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// BlobAuditArchiver serializes each entry to a blob store as a JSON object
// under audit/<date>/<seq>.json. Failures are logged, never surfaced.
type BlobAuditArchiver struct {
	store  blob.Store
	logger *zap.Logger
	seq    atomic.Uint64
}

// NewBlobAuditArchiver wires the archiver to a blob store.
func NewBlobAuditArchiver(store blob.Store, logger *zap.Logger) *BlobAuditArchiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BlobAuditArchiver{store: store, logger: logger}
}

// Record implements AuditLog.
func (a *BlobAuditArchiver) Record(ctx context.Context, entry AuditEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		a.logger.Warn("encode audit entry", zap.Error(err))
		return
	}
	key := fmt.Sprintf("audit/%s/%06d-%s.json",
		entry.At.UTC().Format("2006-01-02"), a.seq.Add(1), entry.Operation)
	if _, err := a.store.Put(ctx, key, bytes.NewReader(data), blob.PutOptions{
		ContentType: "application/json",
	}); err != nil {
		a.logger.Warn("archive audit entry",
			zap.String("key", key),
			zap.Error(err))
	}
}
