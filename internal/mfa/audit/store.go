package audit

import (
	"context"
	"fmt"

	"github.com/aussiebroadwan/twofactor/internal/mfa/domain"
	"github.com/aussiebroadwan/twofactor/internal/mfa/store"
)

// StoreSink persists audit events next to the enrollments.
type StoreSink struct {
	Store store.Store
}

func NewStoreSink(s store.Store) *StoreSink {
	return &StoreSink{Store: s}
}

func (s *StoreSink) Name() string { return "db" }

func (s *StoreSink) Emit(ctx context.Context, e domain.AuditEvent) error {
	if err := s.Store.AuditEvents().CreateAuditEvent(ctx, e); err != nil {
		return fmt.Errorf("persist audit event: %w", err)
	}
	return nil
}
