package procurement

import (
	"time"

	"github.com/shopspring/decimal"
)

// POStatus is the sole control field of a purchase order.
type POStatus string

const (
	StatusDraft            POStatus = "DRAFT"
	StatusWaitingApproval  POStatus = "MENUNGGU_APPROVAL"
	StatusApproved         POStatus = "APPROVED"
	StatusRejected         POStatus = "REJECTED"
	StatusPartialTransfer  POStatus = "PARTIAL_TRANSFER"
	StatusApprovedKeuangan POStatus = "APPROVED_KEUANGAN"
	StatusDanaDitransfer   POStatus = "DANA_DITRANSFER"
	StatusBelanjaSelesai   POStatus = "BELANJA_SELESAI"
	StatusClosed           POStatus = "CLOSED"
)

// Statuses lists every known status in lifecycle order.
var Statuses = []POStatus{
	StatusDraft, StatusWaitingApproval, StatusApproved, StatusRejected, StatusPartialTransfer,
	StatusApprovedKeuangan, StatusDanaDitransfer, StatusBelanjaSelesai, StatusClosed,
}

// Valid reports whether s is a known status.
func (s POStatus) Valid() bool {
	for _, known := range Statuses {
		if s == known {
			return true
		}
	}
	return false
}

// PurchaseOrder is one procurement request and its lifecycle audit trail.
type PurchaseOrder struct {
	ID                  int64               `json:"id"`
	PONumber            string              `json:"po_number"`
	TanggalPO           time.Time           `json:"tanggal_po"`
	DapurID             *int64              `json:"dapur_id"`
	NamaDapur           string              `json:"nama_dapur,omitempty"`
	CreatedBy           int64               `json:"created_by"`
	CreatedByName       string              `json:"created_by_name,omitempty"`
	Status              POStatus            `json:"status"`
	TotalEstimasi       decimal.Decimal     `json:"total_estimasi"`
	TotalApproved       decimal.NullDecimal `json:"total_approved"`
	TotalReal           decimal.NullDecimal `json:"total_real"`
	NominalTransfer     decimal.NullDecimal `json:"nominal_transfer"`
	CatatanAdmin        string              `json:"catatan_admin,omitempty"`
	CatatanManajer      string              `json:"catatan_manajer,omitempty"`
	CatatanKeuangan     string              `json:"catatan_keuangan,omitempty"`
	CatatanLapangan     string              `json:"catatan_lapangan,omitempty"`
	TanggalBelanja      *time.Time          `json:"tanggal_belanja"`
	ApprovedBy          *int64              `json:"approved_by"`
	ApprovedByName      string              `json:"approved_by_name,omitempty"`
	ApprovedAt          *time.Time          `json:"approved_at"`
	ProcessedByKeuangan *int64              `json:"processed_by_keuangan"`
	TanggalTransfer     *time.Time          `json:"tanggal_transfer"`
	TransferredBy       *int64              `json:"transferred_by"`
	TransferredAt       *time.Time          `json:"transferred_at"`
	ShoppingCompletedBy *int64              `json:"shopping_completed_by"`
	ShoppingCompletedAt *time.Time          `json:"shopping_completed_at"`
	CreatedAt           time.Time           `json:"created_at"`
	UpdatedAt           time.Time           `json:"updated_at"`

	PendingItemsCount *int            `json:"pending_items_count,omitempty"`
	Items             []POItem        `json:"items,omitempty"`
	Transfers         []Transfer      `json:"transfers,omitempty"`
	ShoppingProofs    []ShoppingProof `json:"shopping_proofs,omitempty"`
	LegacyTransfer    *LegacyTransfer `json:"transfer,omitempty"`
}

// POItem is one line of a purchase order.
type POItem struct {
	ID               int64               `json:"id"`
	POID             int64               `json:"po_id"`
	NamaBarang       string              `json:"nama_barang"`
	KategoriSayuran  string              `json:"kategori_sayuran,omitempty"`
	QtyEstimasi      decimal.Decimal     `json:"qty_estimasi"`
	Satuan           string              `json:"satuan"`
	HargaEstimasi    decimal.Decimal     `json:"harga_estimasi"`
	SubtotalEstimasi decimal.Decimal     `json:"subtotal_estimasi"`
	EstimasiSusut    decimal.NullDecimal `json:"estimasi_susut"`
	HargaModal       decimal.Decimal     `json:"harga_modal"`
	TotalModal       decimal.Decimal     `json:"total_modal"`
	HargaJual        decimal.NullDecimal `json:"harga_jual"`
	TotalHargaJual   decimal.NullDecimal `json:"total_harga_jual"`
	Profit           decimal.NullDecimal `json:"profit"`
	Margin           decimal.NullDecimal `json:"margin"`
	QtyReal          decimal.NullDecimal `json:"qty_real"`
	HargaReal        decimal.NullDecimal `json:"harga_real"`
	SubtotalReal     decimal.NullDecimal `json:"subtotal_real"`
	SelisihPersen    decimal.NullDecimal `json:"selisih_persen"`
	TransferID       *int64              `json:"transfer_id"`
	BuktiFoto        string              `json:"bukti_foto,omitempty"`
}

// Funded reports whether a transfer batch covers the item.
func (i POItem) Funded() bool { return i.TransferID != nil }

// Transfer is one funding disbursement batch.
type Transfer struct {
	ID           int64           `json:"id"`
	POID         int64           `json:"po_id"`
	Amount       decimal.Decimal `json:"amount"`
	TransferDate time.Time       `json:"transfer_date"`
	Notes        string          `json:"notes,omitempty"`
	ProofImage   string          `json:"proof_image,omitempty"`
	CreatedBy    int64           `json:"created_by"`
	CreatedAt    time.Time       `json:"created_at"`
}

// LegacyTransfer is a single whole-PO transfer from the older funding flow.
type LegacyTransfer struct {
	ID                  int64           `json:"id"`
	POID                int64           `json:"po_id"`
	NominalTransfer     decimal.Decimal `json:"nominal_transfer"`
	TanggalTransfer     time.Time       `json:"tanggal_transfer"`
	MetodeTransfer      string          `json:"metode_transfer,omitempty"`
	NomorRekeningTujuan string          `json:"nomor_rekening_tujuan,omitempty"`
	BuktiTransfer       string          `json:"bukti_transfer"`
	TransferredBy       int64           `json:"transferred_by"`
	TransferredByName   string          `json:"transferred_by_name,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
}

// ShoppingProof is a receipt uploaded by the field team.
type ShoppingProof struct {
	ID             int64      `json:"id"`
	POID           int64      `json:"po_id"`
	BuktiPath      string     `json:"bukti_path"`
	TanggalBelanja *time.Time `json:"tanggal_belanja"`
	Keterangan     string     `json:"keterangan,omitempty"`
	UploadedBy     int64      `json:"uploaded_by"`
	CreatedAt      time.Time  `json:"created_at"`
}

// ListFilter narrows the paginated PO list.
type ListFilter struct {
	Status    POStatus
	CreatedBy int64
	Page      int
	Limit     int
}

// StatusQuery selects the worklists shown to each role.
type StatusQuery struct {
	Statuses []POStatus
	OrderBy  string
	Limit    int
}

// Summary holds dashboard counters.
type Summary struct {
	Today    int `json:"today"`
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
}

// DailyCount is the number of POs dated on one day.
type DailyCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// TopItem aggregates ordered quantity per item and unit.
type TopItem struct {
	NamaBarang string          `json:"nama_barang"`
	Satuan     string          `json:"satuan"`
	TotalQty   decimal.Decimal `json:"total_qty"`
}
