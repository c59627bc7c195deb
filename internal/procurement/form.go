package procurement

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sppi/sppi-po/internal/attachment"
	"github.com/sppi/sppi-po/internal/shared"
)

const proofItemPrefix = "proof_item_"

func validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", shared.ErrValidation, fmt.Sprintf(format, args...))
}

func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "multipart/form-data"
}

// parseMultipart reads the form, allowing up to files attachments of maxUpload bytes in memory.
func (h *Handler) parseMultipart(w http.ResponseWriter, r *http.Request, files int) error {
	limit := h.maxUpload
	if limit <= 0 {
		limit = attachment.DefaultMaxBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit*int64(files)+1<<20)
	if err := r.ParseMultipartForm(limit * int64(files)); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return validationf("ukuran upload melebihi batas")
		}
		return validationf("form multipart tidak valid: %v", err)
	}
	return nil
}

func (h *Handler) formFile(r *http.Request, field string) (*attachment.Upload, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	headers := r.MultipartForm.File[field]
	if len(headers) == 0 {
		return nil, nil
	}
	up, err := attachment.FromFileHeader(headers[0], h.maxUpload)
	if err != nil {
		return nil, err
	}
	return &up, nil
}

func (h *Handler) formFiles(r *http.Request, field string) ([]attachment.Upload, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	out := make([]attachment.Upload, 0, len(r.MultipartForm.File[field]))
	for _, fh := range r.MultipartForm.File[field] {
		up, err := attachment.FromFileHeader(fh, h.maxUpload)
		if err != nil {
			return nil, err
		}
		out = append(out, up)
	}
	return out, nil
}

// itemProofs collects proof_item_{id} files keyed by item id.
func (h *Handler) itemProofs(r *http.Request) (map[int64]attachment.Upload, error) {
	out := make(map[int64]attachment.Upload)
	if r.MultipartForm == nil {
		return out, nil
	}
	for field, headers := range r.MultipartForm.File {
		if !strings.HasPrefix(field, proofItemPrefix) || len(headers) == 0 {
			continue
		}
		itemID, err := strconv.ParseInt(strings.TrimPrefix(field, proofItemPrefix), 10, 64)
		if err != nil || itemID <= 0 {
			return nil, validationf("field %s tidak valid", field)
		}
		up, err := attachment.FromFileHeader(headers[0], h.maxUpload)
		if err != nil {
			return nil, err
		}
		out[itemID] = up
	}
	return out, nil
}

func parseDecimal(raw, field string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, validationf("%s harus berupa angka", field)
	}
	return d, nil
}

func parseDate(raw, field string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, validationf("%s harus berformat YYYY-MM-DD", field)
	}
	return t, nil
}

// parseItemIDs accepts a JSON array string or repeated form values.
func parseItemIDs(values []string) ([]int64, error) {
	if len(values) == 1 && strings.HasPrefix(strings.TrimSpace(values[0]), "[") {
		var ids []int64
		if err := json.Unmarshal([]byte(values[0]), &ids); err != nil {
			return nil, validationf("item_ids harus berupa array id")
		}
		return ids, nil
	}
	ids := make([]int64, 0, len(values))
	for _, v := range values {
		id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, validationf("item_ids harus berupa array id")
		}
		ids = append(ids, id)
	}
	return ids, nil
}
