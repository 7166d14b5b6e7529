// Package blob stores uploaded video files in a flat directory under
// generated, immutable names.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/331872554/vip/internal/apperr"
	"github.com/331872554/vip/internal/fsutil"
	"github.com/331872554/vip/internal/id"
)

// ErrDirMissing is returned by List when the blob directory does not exist.
var ErrDirMissing = errors.New("blob directory does not exist")

var videoExts = map[string]bool{
	".mp4": true, ".mov": true, ".mkv": true, ".avi": true, ".webm": true,
	".m4v": true, ".mpg": true, ".mpeg": true, ".wmv": true, ".flv": true,
}

// extByType picks an extension when the client sent a name without one.
var extByType = map[string]string{
	"video/mp4":        ".mp4",
	"video/quicktime":  ".mov",
	"video/x-msvideo":  ".avi",
	"video/x-matroska": ".mkv",
	"video/webm":       ".webm",
	"video/x-ms-wmv":   ".wmv",
	"video/x-flv":      ".flv",
	"video/mpeg":       ".mpeg",
}

var safeExt = regexp.MustCompile(`^\.[a-z0-9]{1,8}$`)

type Object struct {
	Name string
	Path string
	URL  string
	Size int64
}

type FileInfo struct {
	Name    string    `json:"name"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"modTime"`
	URL     string    `json:"url"`
}

type Store struct {
	dir       string
	urlPrefix string
	allowed   []string
	log       *logrus.Entry
	now       func() time.Time
}

// New returns a Store rooted at dir whose files are served under urlPrefix.
// allowed lists accepted media types; "video/*" accepts any video type.
func New(dir, urlPrefix string, allowed []string, log *logrus.Entry) *Store {
	if len(allowed) == 0 {
		allowed = []string{"video/*"}
	}
	return &Store{
		dir:       dir,
		urlPrefix: urlPrefix,
		allowed:   allowed,
		log:       log.WithField("component", "blob_store"),
		now:       time.Now,
	}
}

func (s *Store) Dir() string { return s.dir }

func (s *Store) URLPrefix() string { return s.urlPrefix }

// EnsureDir creates the blob directory if needed and checks it is writable.
func (s *Store) EnsureDir() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return apperr.Storage("cannot create upload directory", err)
	}
	probe, err := os.CreateTemp(s.dir, ".probe-*")
	if err != nil {
		return apperr.Storage("upload directory is not writable", err)
	}
	probe.Close()
	os.Remove(probe.Name())
	return nil
}

// Store streams r into a new file. The declared contentType is checked before
// anything touches the disk; a failed copy removes the partial file.
func (s *Store) Store(ctx context.Context, r io.Reader, originalName, contentType string) (Object, error) {
	if !s.IsVideoType(contentType) {
		return Object{}, apperr.Validation(fmt.Sprintf("%s: only video files are allowed (got %q)", originalName, contentType))
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return Object{}, apperr.Storage("cannot create upload directory", err)
	}

	name := id.FileName(s.now(), Ext(originalName, contentType))
	p := filepath.Join(s.dir, name)
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return Object{}, apperr.Storage("cannot save file", err)
	}

	n, cErr := io.Copy(f, &ctxReader{ctx: ctx, r: r})
	dErr := f.Close()
	if cErr != nil || dErr != nil {
		if rmErr := os.Remove(p); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			s.log.WithError(rmErr).WithField("file", name).Warn("remove partial upload")
		}
		return Object{}, apperr.Storage("cannot write file", errors.Join(cErr, dErr))
	}

	s.log.WithFields(logrus.Fields{"file": name, "size": n, "original": originalName}).Debug("stored upload")
	return Object{Name: name, Path: p, URL: s.URLFor(name), Size: n}, nil
}

// Verify checks that obj is on disk with the size that was written.
func (s *Store) Verify(obj Object) error {
	info, err := os.Stat(obj.Path)
	if err != nil {
		return apperr.Storage("file missing after write", err)
	}
	if info.Size() != obj.Size {
		return apperr.Storage("file truncated after write",
			fmt.Errorf("%s: %d bytes on disk, %d written", obj.Name, info.Size(), obj.Size))
	}
	return nil
}

// Remove deletes a stored file. A file that is already gone is not an error.
func (s *Store) Remove(name string) error {
	if !validName(name) {
		return apperr.Validation(fmt.Sprintf("invalid file name %q", name))
	}
	err := os.Remove(filepath.Join(s.dir, name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return apperr.Storage("cannot delete file", err)
	}
	return nil
}

func (s *Store) Exists(name string) bool {
	return validName(name) && fsutil.Exists(filepath.Join(s.dir, name))
}

// List returns the regular files in the blob directory in name order.
func (s *Store) List() ([]FileInfo, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrDirMissing
	}
	if err != nil {
		return nil, apperr.Storage("cannot read upload directory", err)
	}
	out := make([]FileInfo, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, FileInfo{Name: e.Name(), Size: info.Size(), ModTime: info.ModTime(), URL: s.URLFor(e.Name())})
	}
	return out, nil
}

func (s *Store) URLFor(name string) string {
	return fsutil.URLFor(s.urlPrefix, name)
}

// NameFromURL maps a catalog videoUrl back to a file name in this store.
func (s *Store) NameFromURL(u string) string {
	return fsutil.NameFromURL(u)
}

// IsVideoType reports whether a declared Content-Type is an allowed video type.
func (s *Store) IsVideoType(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	if !strings.HasPrefix(mt, "video/") {
		return false
	}
	for _, allowed := range s.allowed {
		if allowed == "video/*" || strings.EqualFold(mt, allowed) {
			return true
		}
	}
	return false
}

// IsVideoFile reports whether name has a recognized video extension.
func IsVideoFile(name string) bool {
	return videoExts[strings.ToLower(filepath.Ext(name))]
}

// Ext returns the extension for a stored file: the original one when it is
// a plain short token, else one derived from the media type, else ".mp4".
func Ext(originalName, contentType string) string {
	base := filepath.Base(strings.ReplaceAll(originalName, `\`, "/"))
	if ext := strings.ToLower(filepath.Ext(base)); safeExt.MatchString(ext) {
		return ext
	}
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		if ext, ok := extByType[mt]; ok {
			return ext
		}
	}
	return ".mp4"
}

func validName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
