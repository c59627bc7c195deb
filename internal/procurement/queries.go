package procurement

import (
	"context"
	"fmt"
	"time"

	"github.com/sppi/sppi-po/internal/shared"
)

// Get returns a PO with items, transfers and shopping proofs. Admins may only read their own.
func (s *Service) Get(ctx context.Context, actor shared.Principal, id int64) (PurchaseOrder, error) {
	po, err := s.repo.GetPO(ctx, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if actor.Role == shared.RoleAdmin && po.CreatedBy != actor.UserID {
		return PurchaseOrder{}, notFound(id)
	}
	if po.Items, err = s.repo.ListItems(ctx, id); err != nil {
		return PurchaseOrder{}, err
	}
	if po.Transfers, err = s.repo.ListTransfers(ctx, id); err != nil {
		return PurchaseOrder{}, err
	}
	if po.ShoppingProofs, err = s.repo.ListShoppingProofs(ctx, id); err != nil {
		return PurchaseOrder{}, err
	}
	if po.LegacyTransfer, err = s.repo.GetLegacyTransfer(ctx, id); err != nil {
		return PurchaseOrder{}, err
	}
	return po, nil
}

// ApprovalTrail returns the submit/approve/reject history of a PO.
func (s *Service) ApprovalTrail(ctx context.Context, actor shared.Principal, id int64) ([]shared.ApprovalLog, error) {
	po, err := s.repo.GetPO(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role == shared.RoleAdmin && po.CreatedBy != actor.UserID {
		return nil, notFound(id)
	}
	if s.approvals == nil {
		return []shared.ApprovalLog{}, nil
	}
	return s.approvals.List(ctx, approvalModule, shared.ApprovalRef(approvalModule, id))
}

// List returns a page of POs. Admins only see POs they created.
func (s *Service) List(ctx context.Context, actor shared.Principal, filter ListFilter) ([]PurchaseOrder, shared.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, shared.Pagination{}, fmt.Errorf("%w: status %q tidak dikenal", shared.ErrValidation, filter.Status)
	}
	page := shared.NewPagination(filter.Page, filter.Limit, 0)
	filter.Page, filter.Limit = page.Page, page.Limit
	if actor.Role == shared.RoleAdmin {
		filter.CreatedBy = actor.UserID
	}
	pos, total, err := s.repo.ListPOs(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return pos, shared.NewPagination(filter.Page, filter.Limit, total), nil
}

// Worklist orderings.
const (
	OrderCreatedAsc            = "created_at_asc"
	OrderApprovedAsc           = "approved_at_asc"
	OrderApprovedDesc          = "approved_at_desc"
	OrderStatusApprovedAsc     = "status_approved_at_asc"
	OrderUpdatedDesc           = "updated_at_desc"
	OrderTransferAsc           = "tanggal_transfer_asc"
	OrderShoppingCompletedDesc = "shopping_completed_at_desc"
)

const historyLimit = 50

// PendingApprovals lists POs awaiting a manager decision.
func (s *Service) PendingApprovals(ctx context.Context) ([]PurchaseOrder, error) {
	return s.worklist(ctx, StatusQuery{Statuses: []POStatus{StatusWaitingApproval}, OrderBy: OrderCreatedAsc}, true, false)
}

// ApprovalHistory lists the latest decided POs.
func (s *Service) ApprovalHistory(ctx context.Context) ([]PurchaseOrder, error) {
	return s.worklist(ctx, StatusQuery{
		Statuses: []POStatus{StatusApproved, StatusRejected, StatusPartialTransfer, StatusApprovedKeuangan, StatusDanaDitransfer, StatusBelanjaSelesai},
		OrderBy:  OrderApprovedDesc,
		Limit:    historyLimit,
	}, true, false)
}

// FinancePending lists POs awaiting (further) funding.
func (s *Service) FinancePending(ctx context.Context) ([]PurchaseOrder, error) {
	pos, err := s.worklist(ctx, StatusQuery{Statuses: []POStatus{StatusApproved, StatusPartialTransfer}, OrderBy: OrderStatusApprovedAsc}, true, true)
	if err != nil {
		return nil, err
	}
	for i := range pos {
		pending := 0
		for _, item := range pos[i].Items {
			if !item.Funded() {
				pending++
			}
		}
		pos[i].PendingItemsCount = &pending
	}
	return pos, nil
}

// FinanceHistory lists the latest fully funded POs.
func (s *Service) FinanceHistory(ctx context.Context) ([]PurchaseOrder, error) {
	return s.worklist(ctx, StatusQuery{Statuses: []POStatus{StatusApprovedKeuangan, StatusBelanjaSelesai}, OrderBy: OrderUpdatedDesc, Limit: historyLimit}, true, true)
}

// LegacyPending lists APPROVED POs for the whole-PO transfer flow.
func (s *Service) LegacyPending(ctx context.Context) ([]PurchaseOrder, error) {
	return s.worklist(ctx, StatusQuery{Statuses: []POStatus{StatusApproved}, OrderBy: OrderApprovedAsc}, false, false)
}

// ShoppingActive lists funded POs the field team still has to buy.
func (s *Service) ShoppingActive(ctx context.Context) ([]PurchaseOrder, error) {
	return s.worklist(ctx, StatusQuery{Statuses: []POStatus{StatusApprovedKeuangan, StatusDanaDitransfer}, OrderBy: OrderTransferAsc}, true, false)
}

// ShoppingHistory lists the latest completed shopping runs.
func (s *Service) ShoppingHistory(ctx context.Context) ([]PurchaseOrder, error) {
	return s.worklist(ctx, StatusQuery{Statuses: []POStatus{StatusBelanjaSelesai}, OrderBy: OrderShoppingCompletedDesc, Limit: historyLimit}, true, false)
}

func (s *Service) worklist(ctx context.Context, q StatusQuery, withItems, withTransfers bool) ([]PurchaseOrder, error) {
	pos, err := s.repo.ListByStatus(ctx, q)
	if err != nil {
		return nil, err
	}
	for i := range pos {
		if withItems {
			if pos[i].Items, err = s.repo.ListItems(ctx, pos[i].ID); err != nil {
				return nil, err
			}
		}
		if withTransfers {
			if pos[i].Transfers, err = s.repo.ListTransfers(ctx, pos[i].ID); err != nil {
				return nil, err
			}
		}
	}
	if pos == nil {
		pos = []PurchaseOrder{}
	}
	return pos, nil
}

// Stats returns dashboard counters for today.
func (s *Service) Stats(ctx context.Context) (Summary, error) {
	day := s.now().Format(time.DateOnly)
	var out Summary
	err := s.cached(ctx, &out, func(ctx context.Context) (any, error) {
		return s.repo.Summary(ctx, s.now())
	}, "summary", day)
	return out, err
}

// DailyStats returns PO counts per day over the last 7 days.
func (s *Service) DailyStats(ctx context.Context) ([]DailyCount, error) {
	day := s.now().Format(time.DateOnly)
	out := []DailyCount{}
	err := s.cached(ctx, &out, func(ctx context.Context) (any, error) {
		return s.repo.DailyCounts(ctx, s.now().AddDate(0, 0, -7))
	}, "daily", day)
	return out, err
}

// TopItems returns the 10 most ordered items over the last 30 days.
func (s *Service) TopItems(ctx context.Context) ([]TopItem, error) {
	day := s.now().Format(time.DateOnly)
	out := []TopItem{}
	err := s.cached(ctx, &out, func(ctx context.Context) (any, error) {
		return s.repo.TopItems(ctx, s.now().AddDate(0, 0, -30), 10)
	}, "top-items", day)
	return out, err
}

// WarmStats recomputes every dashboard stat into the cache.
func (s *Service) WarmStats(ctx context.Context) error {
	if _, err := s.Stats(ctx); err != nil {
		return err
	}
	if _, err := s.DailyStats(ctx); err != nil {
		return err
	}
	_, err := s.TopItems(ctx)
	return err
}

func (s *Service) cached(ctx context.Context, dest any, loader func(context.Context) (any, error), parts ...string) error {
	key, err := s.stats.BuildKey(ctx, parts...)
	if err != nil {
		return fmt.Errorf("po stats cache: %w", err)
	}
	return s.stats.FetchJSON(ctx, key, dest, loader)
}
