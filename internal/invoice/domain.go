package invoice

import (
	"time"

	"github.com/shopspring/decimal"
)

// Status is the billing state of an invoice.
type Status string

const (
	StatusDraft  Status = "DRAFT"
	StatusIssued Status = "ISSUED"
	StatusPaid   Status = "PAID"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusIssued, StatusPaid:
		return true
	}
	return false
}

// Invoice bills one kitchen for the completed POs of a period.
type Invoice struct {
	ID               int64               `json:"id"`
	InvoiceNumber    string              `json:"invoice_number"`
	Year             int                 `json:"year"`
	Seq              int                 `json:"seq"`
	DapurID          int64               `json:"dapur_id"`
	KodeDapur        string              `json:"kode_dapur,omitempty"`
	NamaDapur        string              `json:"nama_dapur,omitempty"`
	DapurLokasi      string              `json:"dapur_lokasi,omitempty"`
	TanggalInvoice   time.Time           `json:"tanggal_invoice"`
	PeriodeStart     time.Time           `json:"periode_start"`
	PeriodeEnd       time.Time           `json:"periode_end"`
	UpNama           string              `json:"up_nama,omitempty"`
	TotalAmount      decimal.Decimal     `json:"total_amount"`
	Status           Status              `json:"status"`
	MetodePembayaran string              `json:"metode_pembayaran,omitempty"`
	SisaTagihan      decimal.NullDecimal `json:"sisa_tagihan"`
	PDFURL           string              `json:"pdf_url,omitempty"`
	CreatedBy        int64               `json:"created_by"`
	CreatedByName    string              `json:"created_by_name,omitempty"`
	IssuedAt         *time.Time          `json:"issued_at"`
	PaidAt           *time.Time          `json:"paid_at"`
	CreatedAt        time.Time           `json:"created_at"`

	Items []Item `json:"items,omitempty"`
}

// Item references exactly one invoiced PO.
type Item struct {
	ID        int64           `json:"id"`
	InvoiceID int64           `json:"invoice_id"`
	POID      int64           `json:"po_id"`
	PONumber  string          `json:"po_number"`
	TanggalPO time.Time       `json:"tanggal_po"`
	Nominal   decimal.Decimal `json:"nominal"`
}

// Candidate is a completed, not yet invoiced PO with its sell total.
type Candidate struct {
	POID      int64           `json:"id"`
	PONumber  string          `json:"po_number"`
	TanggalPO time.Time       `json:"tanggal_po"`
	TotalJual decimal.Decimal `json:"total_jual"`
}

// Period selects the candidate POs of one kitchen.
type Period struct {
	DapurID int64
	Start   time.Time
	End     time.Time
}

// GenerateInput describes a new invoice.
type GenerateInput struct {
	Period
	UpNama string
}

// PaymentInput settles an invoice.
type PaymentInput struct {
	MetodePembayaran string
	SisaTagihan      decimal.Decimal
}

// ListFilter narrows the invoice list.
type ListFilter struct {
	DapurID int64
	Status  Status
	Limit   int
}
