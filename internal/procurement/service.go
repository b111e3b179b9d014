package procurement

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/fulfillment/internal/ledger"
	"github.com/odyssey-erp/fulfillment/internal/masterdata"
	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetPO(ctx context.Context, id int64) (PurchaseOrder, error)
	ListPOs(ctx context.Context, filters ListFilters) ([]PurchaseOrder, int, error)
	GetGRN(ctx context.Context, id uuid.UUID) (GRN, error)
	ListGRNs(ctx context.Context, filters ListFilters) ([]GRN, int, error)
}

// TxRepository exposes transactional operations used by Service.
type TxRepository interface {
	Ledger() ledger.Mutator

	InsertPO(ctx context.Context, po PurchaseOrder) (int64, error)
	InsertPOItem(ctx context.Context, item PurchaseOrderItem) (int64, error)
	GetPOForUpdate(ctx context.Context, id int64) (PurchaseOrder, error)
	UpdatePO(ctx context.Context, po PurchaseOrder) error
	UpdatePOItem(ctx context.Context, item PurchaseOrderItem) error
	DeletePOItem(ctx context.Context, poID, itemID int64) error
	DeletePO(ctx context.Context, id int64) error

	InsertGRN(ctx context.Context, grn GRN) error
	InsertGRNLine(ctx context.Context, line GRNLineItem) error
	GetGRNForUpdate(ctx context.Context, id uuid.UUID) (GRN, error)
	UpdateGRN(ctx context.Context, grn GRN) error
	UpdateGRNLine(ctx context.Context, line GRNLineItem) error
	DeleteGRNLine(ctx context.Context, grnID, lineID uuid.UUID) error
	DeleteGRN(ctx context.Context, id uuid.UUID) error
}

// DirectoryPort is the master-data lookup used to validate references.
type DirectoryPort interface {
	Organization(ctx context.Context, id int64) (masterdata.Organization, error)
	Supplier(ctx context.Context, id int64) (masterdata.Supplier, error)
	Item(ctx context.Context, id int64) (masterdata.Item, error)
	Warehouse(ctx context.Context, id int64) (masterdata.Warehouse, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Options groups optional collaborators.
type Options struct {
	Audit    AuditPort
	Notifier shared.Notifier
	Recorder ledger.Recorder
	Logger   *slog.Logger
}

// Service orchestrates purchase order and goods receipt flows.
type Service struct {
	repo      RepositoryPort
	directory DirectoryPort
	numbers   *shared.Numberer
	audit     AuditPort
	notifier  shared.Notifier
	recorder  ledger.Recorder
	logger    *slog.Logger
	now       func() time.Time
}

// NewService constructs procurement service.
func NewService(repo RepositoryPort, directory DirectoryPort, numbers *shared.Numberer, opts Options) *Service {
	if numbers == nil {
		numbers = shared.NewNumberer(nil, 0)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:      repo,
		directory: directory,
		numbers:   numbers,
		audit:     opts.Audit,
		notifier:  opts.Notifier,
		recorder:  opts.Recorder,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *Service) stock(tx TxRepository) ledger.Mutator {
	return ledger.Guard(tx.Ledger(), s.recorder)
}

// lookupItems confirms every item exists and is active.
func (s *Service) lookupItems(ctx context.Context, ids []int64) error {
	g, gctx := errgroup.WithContext(ctx)
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		id := id // per-iteration copy; module targets go1.21 loop semantics
		g.Go(func() error {
			item, err := s.directory.Item(gctx, id)
			if err != nil {
				return err
			}
			if !item.IsActive {
				return fmt.Errorf("%w: item %d is inactive", shared.ErrValidation, id)
			}
			return nil
		})
	}
	return g.Wait()
}

func (s *Service) lookupSupplier(ctx context.Context, id int64) (masterdata.Supplier, error) {
	supplier, err := s.directory.Supplier(ctx, id)
	if err != nil {
		return masterdata.Supplier{}, err
	}
	if !supplier.IsActive {
		return masterdata.Supplier{}, fmt.Errorf("%w: supplier %d is inactive", shared.ErrValidation, id)
	}
	return supplier, nil
}

func (s *Service) recordAudit(ctx context.Context, action, entity, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{ActorID: shared.ActorID(ctx), Action: action, Entity: entity, EntityID: entityID, Meta: meta})
	if err != nil {
		s.logger.Warn("procurement audit", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) notify(ctx context.Context, event shared.DocumentEvent) {
	if s.notifier == nil {
		return
	}
	event.ActorID = shared.ActorID(ctx)
	if err := s.notifier.DocumentCreated(ctx, event); err != nil {
		s.logger.Warn("procurement notify", slog.String("type", event.Type), slog.String("id", event.ID), slog.Any("error", err))
	}
}

func defaultTime(value time.Time, now time.Time) time.Time {
	if value.IsZero() {
		return now
	}
	return value
}
