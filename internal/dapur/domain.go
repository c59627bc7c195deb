package dapur

import "time"

// Dapur is a kitchen that purchase orders are raised for and invoices are billed to.
type Dapur struct {
	ID         int64     `json:"id"`
	KodeDapur  string    `json:"kode_dapur"`
	NamaDapur  string    `json:"nama_dapur"`
	Lokasi     string    `json:"lokasi,omitempty"`
	PICName    string    `json:"pic_name,omitempty"`
	PICPhone   string    `json:"pic_phone,omitempty"`
	IsActive   bool      `json:"is_active"`
	Keterangan string    `json:"keterangan,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ListFilter narrows List results.
type ListFilter struct {
	Active *bool
	Search string
}

// Input carries create and update payloads.
type Input struct {
	KodeDapur  string `json:"kode_dapur" validate:"required,max=32"`
	NamaDapur  string `json:"nama_dapur" validate:"required,max=128"`
	Lokasi     string `json:"lokasi"`
	PICName    string `json:"pic_name"`
	PICPhone   string `json:"pic_phone"`
	Keterangan string `json:"keterangan"`
	IsActive   *bool  `json:"is_active"`
}
