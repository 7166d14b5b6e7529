// Package sitecontent keeps the editable page copy (titles, button labels,
// gallery texts) in a small JSON document next to the catalog.
package sitecontent

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/331872554/vip/internal/apperr"
	"github.com/331872554/vip/internal/fsutil"
)

// Defaults is the copy a fresh install starts with.
var Defaults = map[string]string{
	"indexTitle":               "Video Base",
	"indexDateText":            "Tutorial collection",
	"indexPasswordPlaceholder": "Enter password to watch",
	"indexGetPasswordBtn":      "Get password",
	"passwordTitle":            "Unlock password",
	"passwordDescription":      "Click \"Start unlock\" and watch a short ad to reveal the password.",
	"passwordNote":             "(Thanks for your support!)",
	"passwordUnlockBtn":        "Start unlock",
	"adTitle":                  "Advertisement",
	"adCompleteText":           "Ad complete, your password is:",
	"videosTitle":              "Videos",
	"videosSearchPlaceholder":  "Search videos...",
	"videosCategoryBeginner":   "Latest",
	"videosCategoryAdvanced":   "Archive",
	"videosNoVideo":            "No videos yet",
}

type Store struct {
	path string
	log  *logrus.Entry

	mu  sync.RWMutex
	doc map[string]string
}

// Open loads the document at path. A missing or corrupt document is replaced
// with the defaults; keys added to Defaults later are filled in.
func Open(path string, log *logrus.Entry) *Store {
	s := &Store{path: path, log: log.WithField("component", "site_content")}
	doc := maps.Clone(Defaults)

	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		s.log.WithField("path", path).Info("site content missing, writing defaults")
	case err != nil:
		s.log.WithError(err).Error("read site content")
	default:
		var stored map[string]string
		if err := json.Unmarshal(b, &stored); err != nil {
			s.log.WithError(err).Warn("site content corrupt, restoring defaults")
		} else {
			maps.Copy(doc, stored)
		}
	}

	s.doc = doc
	if err := s.save(doc); err != nil {
		s.log.WithError(err).Error("write site content")
	}
	return s
}

func (s *Store) Get() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.doc)
}

// Merge applies updates on top of the current copy and persists the result.
// Values must be strings.
func (s *Store) Merge(updates map[string]any) (map[string]string, error) {
	clean := make(map[string]string, len(updates))
	for k, v := range updates {
		if k == "" {
			return nil, apperr.Validation("empty content key")
		}
		str, ok := v.(string)
		if !ok {
			return nil, apperr.Validation(fmt.Sprintf("content value for %q must be a string", k))
		}
		clean[k] = str
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	next := maps.Clone(s.doc)
	maps.Copy(next, clean)
	if err := s.save(next); err != nil {
		return nil, apperr.Storage("cannot save site content", err)
	}
	s.doc = next
	return maps.Clone(next), nil
}

func (s *Store) save(doc map[string]string) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return fsutil.WriteFileAtomic(s.path, buf.Bytes())
}
