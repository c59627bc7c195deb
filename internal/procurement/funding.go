package procurement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sppi/sppi-po/internal/attachment"
	"github.com/sppi/sppi-po/internal/shared"
)

// FundInput describes one funding batch.
type FundInput struct {
	NominalTransfer decimal.Decimal
	TanggalTransfer time.Time
	CatatanKeuangan string
	ItemIDs         []int64
	IdempotencyKey  string
	Proof           *attachment.Upload
}

// LegacyTransferInput describes a whole-PO transfer.
type LegacyTransferInput struct {
	NominalTransfer     decimal.Decimal
	TanggalTransfer     time.Time
	MetodeTransfer      string
	NomorRekeningTujuan string
	Proof               *attachment.Upload
}

// Fund records a transfer batch covering a subset of items. The PO becomes
// APPROVED_KEUANGAN once every item is linked to a transfer.
func (s *Service) Fund(ctx context.Context, actor shared.Principal, id int64, in FundInput) (PurchaseOrder, error) {
	if len(in.ItemIDs) == 0 {
		return PurchaseOrder{}, fmt.Errorf("%w: item yang didanai harus dipilih", shared.ErrValidation)
	}
	if !in.NominalTransfer.IsPositive() {
		return PurchaseOrder{}, fmt.Errorf("%w: nominal_transfer harus lebih dari 0", shared.ErrValidation)
	}
	if err := checkAmount("nominal_transfer", in.NominalTransfer, amountScale, maxNominal); err != nil {
		return PurchaseOrder{}, err
	}
	if in.TanggalTransfer.IsZero() {
		return PurchaseOrder{}, fmt.Errorf("%w: tanggal_transfer wajib diisi", shared.ErrValidation)
	}
	current, err := s.repo.GetPO(ctx, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if err := requireStatus(current, StatusApproved, StatusPartialTransfer); err != nil {
		return PurchaseOrder{}, err
	}
	key := ""
	if in.IdempotencyKey != "" && s.idempotency != nil {
		key = fmt.Sprintf("PO:%d:FUND:%s", id, in.IdempotencyKey)
		if err := s.idempotency.CheckAndInsert(ctx, key, "procurement.fund"); err != nil {
			return PurchaseOrder{}, err
		}
	}
	po, from, err := s.fund(ctx, actor, id, in)
	if err != nil {
		if key != "" {
			_ = s.idempotency.Delete(ctx, key)
		}
		return PurchaseOrder{}, err
	}
	s.afterWrite(ctx, actor, "PO_FUND", po, from, map[string]any{"item_ids": in.ItemIDs, "amount": in.NominalTransfer.String()})
	return po, nil
}

func (s *Service) fund(ctx context.Context, actor shared.Principal, id int64, in FundInput) (PurchaseOrder, POStatus, error) {
	proofRef := ""
	if in.Proof != nil {
		ref, err := s.save(ctx, attachment.FolderTransfers, *in.Proof)
		if err != nil {
			return PurchaseOrder{}, "", err
		}
		proofRef = ref
	}
	var (
		po   PurchaseOrder
		from POStatus
	)
	err := s.withTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		po, err = tx.GetPOForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := requireStatus(po, StatusApproved, StatusPartialTransfer); err != nil {
			return err
		}
		items, err := tx.ListItems(ctx, id)
		if err != nil {
			return err
		}
		byID := make(map[int64]int, len(items))
		for i, item := range items {
			byID[item.ID] = i
		}
		var toLink []int
		for _, itemID := range in.ItemIDs {
			idx, ok := byID[itemID]
			if !ok {
				return fmt.Errorf("%w: item %d bukan bagian dari PO %s", shared.ErrValidation, itemID, po.PONumber)
			}
			if !items[idx].Funded() {
				toLink = append(toLink, idx)
			}
		}
		if len(toLink) == 0 {
			return fmt.Errorf("%w: semua item yang dipilih sudah didanai", shared.ErrValidation)
		}
		transfer := Transfer{
			POID:         id,
			Amount:       in.NominalTransfer,
			TransferDate: in.TanggalTransfer,
			Notes:        strings.TrimSpace(in.CatatanKeuangan),
			ProofImage:   proofRef,
			CreatedBy:    actor.UserID,
		}
		if err := tx.InsertTransfer(ctx, &transfer); err != nil {
			return err
		}
		linked := make(map[int]bool, len(toLink))
		for _, idx := range toLink {
			if linked[idx] {
				continue
			}
			linked[idx] = true
			items[idx].TransferID = &transfer.ID
			if err := tx.UpdateItem(ctx, items[idx]); err != nil {
				return err
			}
		}
		target := StatusApprovedKeuangan
		for _, item := range items {
			if !item.Funded() {
				target = StatusPartialTransfer
				break
			}
		}
		if from, err = transition(&po, target); err != nil {
			return err
		}
		total, err := tx.SumTransfers(ctx, id)
		if err != nil {
			return err
		}
		po.NominalTransfer = decimal.NewNullDecimal(total)
		tanggal := in.TanggalTransfer
		po.TanggalTransfer = &tanggal
		po.ProcessedByKeuangan = &actor.UserID
		if note := strings.TrimSpace(in.CatatanKeuangan); note != "" {
			po.CatatanKeuangan = note
		}
		po.Items = items
		return tx.UpdatePO(ctx, po)
	})
	return po, from, err
}

// LegacyTransfer funds a whole APPROVED PO in one step and marks it DANA_DITRANSFER.
func (s *Service) LegacyTransfer(ctx context.Context, actor shared.Principal, id int64, in LegacyTransferInput) (PurchaseOrder, error) {
	if !in.NominalTransfer.IsPositive() {
		return PurchaseOrder{}, fmt.Errorf("%w: nominal_transfer harus lebih dari 0", shared.ErrValidation)
	}
	if err := checkAmount("nominal_transfer", in.NominalTransfer, amountScale, maxNominal); err != nil {
		return PurchaseOrder{}, err
	}
	if in.TanggalTransfer.IsZero() {
		return PurchaseOrder{}, fmt.Errorf("%w: tanggal_transfer wajib diisi", shared.ErrValidation)
	}
	if in.Proof == nil {
		return PurchaseOrder{}, fmt.Errorf("%w: bukti transfer wajib di-upload", shared.ErrValidation)
	}
	current, err := s.repo.GetPO(ctx, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if err := requireStatus(current, StatusApproved); err != nil {
		return PurchaseOrder{}, err
	}
	proofRef, err := s.save(ctx, attachment.FolderTransfers, *in.Proof)
	if err != nil {
		return PurchaseOrder{}, err
	}
	var (
		po   PurchaseOrder
		from POStatus
	)
	now := s.now()
	err = s.withTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		po, err = tx.GetPOForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := requireStatus(po, StatusApproved); err != nil {
			return err
		}
		legacy := LegacyTransfer{
			POID:                id,
			NominalTransfer:     in.NominalTransfer,
			TanggalTransfer:     in.TanggalTransfer,
			MetodeTransfer:      strings.TrimSpace(in.MetodeTransfer),
			NomorRekeningTujuan: strings.TrimSpace(in.NomorRekeningTujuan),
			BuktiTransfer:       proofRef,
			TransferredBy:       actor.UserID,
		}
		if err := tx.InsertLegacyTransfer(ctx, &legacy); err != nil {
			return err
		}
		if from, err = transition(&po, StatusDanaDitransfer); err != nil {
			return err
		}
		tanggal := in.TanggalTransfer
		po.NominalTransfer = decimal.NewNullDecimal(in.NominalTransfer)
		po.TanggalTransfer = &tanggal
		po.TransferredBy = &actor.UserID
		po.TransferredAt = &now
		po.LegacyTransfer = &legacy
		return tx.UpdatePO(ctx, po)
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.afterWrite(ctx, actor, "PO_LEGACY_TRANSFER", po, from, map[string]any{"amount": in.NominalTransfer.String()})
	return po, nil
}
