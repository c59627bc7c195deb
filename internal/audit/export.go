package audit

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"strconv"
	"time"
)

// WriteCSV encodes entries with a header row.
func WriteCSV(rows []Entry) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	if err := w.Write([]string{"at", "actor_id", "actor", "action", "entity", "entity_id", "meta"}); err != nil {
		return nil, err
	}
	for _, e := range rows {
		meta := ""
		if len(e.Meta) > 0 {
			raw, err := json.Marshal(e.Meta)
			if err != nil {
				return nil, err
			}
			meta = string(raw)
		}
		record := []string{
			e.At.UTC().Format(time.RFC3339),
			strconv.FormatInt(e.ActorID, 10),
			e.ActorName,
			e.Action,
			e.Entity,
			e.EntityID,
			meta,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
