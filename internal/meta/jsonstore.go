package meta

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/331872554/vip/internal/fsutil"
)

// JSONStore keeps the catalog as a single pretty-printed JSON array.
type JSONStore struct {
	path string
	log  *logrus.Entry
}

var _ Store = (*JSONStore)(nil)

func NewJSONStore(path string, log *logrus.Entry) *JSONStore {
	return &JSONStore{path: path, log: log.WithField("component", "catalog_store")}
}

func (s *JSONStore) Path() string { return s.path }

func (s *JSONStore) Load() []VideoRecord {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.log.WithField("path", s.path).Info("catalog document missing, creating empty catalog")
		s.recreate()
		return []VideoRecord{}
	}
	if err != nil {
		s.log.WithError(err).WithField("path", s.path).Error("read catalog document")
		return []VideoRecord{}
	}

	// Only a document that is not a JSON array counts as corrupt. A record
	// that does not decode is dropped on its own.
	var raw []json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		s.log.WithError(err).WithField("path", s.path).Warn("catalog document corrupt, recreating empty catalog")
		s.recreate()
		return []VideoRecord{}
	}

	out := make([]VideoRecord, 0, len(raw))
	for i, msg := range raw {
		var r VideoRecord
		if err := json.Unmarshal(msg, &r); err != nil {
			s.log.WithError(err).WithField("index", i).Warn("dropping unreadable catalog record")
			continue
		}
		if r.ID == "" || r.Title == "" || r.VideoURL == "" {
			s.log.WithField("id", r.ID).Warn("dropping incomplete catalog record")
			continue
		}
		if r.UploadDate.IsZero() {
			s.log.WithField("id", r.ID).Warn("catalog record has no readable upload date")
		}
		r.VideoURL = fsutil.NormalizeURL(r.VideoURL)
		out = append(out, r)
	}
	return out
}

func (s *JSONStore) Save(records []VideoRecord) error {
	b, err := Marshal(records)
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	if err := fsutil.WriteFileAtomic(s.path, b); err != nil {
		return fmt.Errorf("write catalog: %w", err)
	}
	return nil
}

func (s *JSONStore) recreate() {
	if err := s.Save(nil); err != nil {
		s.log.WithError(err).WithField("path", s.path).Error("recreate catalog document")
	}
}

// Marshal renders records the way they are stored on disk: an indented
// array (never null) without HTML escaping.
func Marshal(records []VideoRecord) ([]byte, error) {
	if records == nil {
		records = []VideoRecord{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
