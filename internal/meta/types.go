package meta

import (
	"encoding/json"
	"time"
)

type Category string

const (
	CategoryBeginner Category = "beginner"
	CategoryAdvanced Category = "advanced"
)

func (c Category) Valid() bool {
	return c == CategoryBeginner || c == CategoryAdvanced
}

// Fields are serialized in declaration order; keep it stable so the catalog
// document diffs cleanly.
type VideoRecord struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    Category  `json:"category"`
	VideoURL    string    `json:"videoUrl"`
	UploadDate  Timestamp `json:"uploadDate"`
}

const isoLayout = "2006-01-02T15:04:05.000Z07:00"

// Timestamp is an ISO-8601 UTC instant with millisecond precision,
// e.g. "2024-05-01T08:30:00.000Z".
type Timestamp struct {
	time.Time
}

func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{t.UTC().Truncate(time.Millisecond)}
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.UTC().Format(isoLayout))
}

// looseLayouts are accepted on read for documents written by hand or by
// older versions. Unix milliseconds are accepted as a JSON number.
var looseLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// UnmarshalJSON never fails: a value it cannot read leaves the zero time, so
// one odd date does not make the whole catalog unreadable.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	t.Time = time.Time{}
	if string(b) == "null" {
		return nil
	}

	var ms int64
	if err := json.Unmarshal(b, &ms); err == nil {
		*t = NewTimestamp(time.UnixMilli(ms))
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil || s == "" {
		return nil
	}
	for _, layout := range looseLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			*t = NewTimestamp(parsed)
			return nil
		}
	}
	return nil
}
