package gaschecker

import (
	"context"
	"fmt"
	"sort"
	"sync"

	svcerrors "github.com/R3E-Network/compliance_layer/internal/errors"
)

// Audit history listing bounds.
const (
	DefaultAuditListLimit = 20
	MaxAuditListLimit     = 200
)

// CertificateRepository is the certificate store.
type CertificateRepository interface {
	List(ctx context.Context) ([]Certificate, error)
	Create(ctx context.Context, cert *Certificate) error
}

// AuditLog is the append-only run history.
type AuditLog interface {
	Save(ctx context.Context, result *Result) error
	// List returns at most limit entries, newest first.
	List(ctx context.Context, limit int) ([]AuditEntry, error)
}

// ClampAuditLimit applies the default and maximum to a requested limit.
func ClampAuditLimit(limit int) int {
	if limit <= 0 {
		return DefaultAuditListLimit
	}
	if limit > MaxAuditListLimit {
		return MaxAuditListLimit
	}
	return limit
}

// SeedCertificates returns the demonstration portfolio loaded into an empty
// in-memory store.
func SeedCertificates() []Certificate {
	return []Certificate{
		{
			ID:               "1",
			PropertyName:     "Smith Property",
			CertificateType:  DefaultCertificateType,
			IssueDate:        "2024-02-11",
			ExpiryDate:       "2025-02-11",
			AssignedEngineer: "Ellie",
			UploadStatus:     UploadUploaded,
		},
		{
			ID:               "2",
			PropertyName:     "Jones Flat",
			CertificateType:  DefaultCertificateType,
			IssueDate:        "2024-09-10",
			ExpiryDate:       "2025-09-10",
			AssignedEngineer: "Liam",
			UploadStatus:     UploadUploaded,
		},
		{
			ID:               "3",
			PropertyName:     "Bristol HQ",
			CertificateType:  DefaultCertificateType,
			IssueDate:        "2024-01-15",
			ExpiryDate:       "2025-01-15",
			AssignedEngineer: "Riley",
			UploadStatus:     UploadMissing,
		},
	}
}

// MemoryStore keeps certificates and audit entries in process memory.
type MemoryStore struct {
	mu           sync.RWMutex
	certificates []Certificate
	entries      []AuditEntry
	maxEntries   int
}

// NewMemoryStore creates a store holding certs. Audit history keeps the
// newest maxEntries runs; zero means 1000.
func NewMemoryStore(certs []Certificate, maxEntries int) *MemoryStore {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &MemoryStore{
		certificates: append([]Certificate(nil), certs...),
		maxEntries:   maxEntries,
	}
}

// List implements CertificateRepository.
func (s *MemoryStore) List(ctx context.Context) ([]Certificate, error) {
	if err := ctx.Err(); err != nil {
		return nil, svcerrors.DataAccess("list certificates", err, true)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Certificate(nil), s.certificates...), nil
}

// Create implements CertificateRepository.
func (s *MemoryStore) Create(ctx context.Context, cert *Certificate) error {
	if err := ctx.Err(); err != nil {
		return svcerrors.DataAccess("create certificate", err, true)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.certificates {
		if existing.ID == cert.ID {
			return svcerrors.Validation(fmt.Sprintf("certificate %s already exists", cert.ID))
		}
	}
	s.certificates = append(s.certificates, *cert)
	return nil
}

// Save implements AuditLog.
func (s *MemoryStore) Save(ctx context.Context, result *Result) error {
	if err := ctx.Err(); err != nil {
		return svcerrors.AuditWrite("save audit entry", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *NewAuditEntry(result))
	if over := len(s.entries) - s.maxEntries; over > 0 {
		s.entries = append([]AuditEntry(nil), s.entries[over:]...)
	}
	return nil
}

// ListEntries returns at most limit audit entries, newest first.
func (s *MemoryStore) ListEntries(ctx context.Context, limit int) ([]AuditEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, svcerrors.DataAccess("list audit entries", err, true)
	}
	s.mu.RLock()
	out := append([]AuditEntry(nil), s.entries...)
	s.mu.RUnlock()

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if limit = ClampAuditLimit(limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// AuditLog returns the audit-log view of the store.
func (s *MemoryStore) AuditLog() AuditLog {
	return memoryAudit{s}
}

type memoryAudit struct{ s *MemoryStore }

func (a memoryAudit) Save(ctx context.Context, result *Result) error { return a.s.Save(ctx, result) }

func (a memoryAudit) List(ctx context.Context, limit int) ([]AuditEntry, error) {
	return a.s.ListEntries(ctx, limit)
}
