package blob

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/331872554/vip/internal/apperr"
	"github.com/331872554/vip/internal/logging"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "uploads"), "/uploads", nil, logging.Discard())
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0
	}
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	return len(entries)
}

func TestStore_CreatesDirAndWritesFile(t *testing.T) {
	s := newTestStore(t)
	obj, err := s.Store(context.Background(), strings.NewReader("frames"), "holiday.MP4", "video/mp4")
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if !strings.HasSuffix(obj.Name, ".mp4") {
		t.Errorf("Name = %q, want lower-cased .mp4 extension", obj.Name)
	}
	if obj.URL != "/uploads/"+obj.Name {
		t.Errorf("URL = %q", obj.URL)
	}
	if obj.Size != int64(len("frames")) {
		t.Errorf("Size = %d", obj.Size)
	}
	b, err := os.ReadFile(filepath.Join(s.Dir(), obj.Name))
	if err != nil || string(b) != "frames" {
		t.Fatalf("stored content = %q, %v", b, err)
	}
	if err := s.Verify(obj); err != nil {
		t.Errorf("Verify: %v", err)
	}
}

func TestStore_RejectsNonVideoBeforeWriting(t *testing.T) {
	s := newTestStore(t)
	for _, ct := range []string{"text/plain", "", "application/octet-stream", "video"} {
		_, err := s.Store(context.Background(), strings.NewReader("x"), "notes.mp4", ct)
		if apperr.KindOf(err) != apperr.KindValidation {
			t.Errorf("content type %q: err = %v, want validation error", ct, err)
		}
	}
	if n := countFiles(t, s.Dir()); n != 0 {
		t.Errorf("%d files written for rejected uploads", n)
	}
}

func TestStore_AllowListRestrictsTypes(t *testing.T) {
	s := New(t.TempDir(), "/uploads", []string{"video/mp4"}, logging.Discard())
	if !s.IsVideoType("video/mp4; codecs=avc1.42E01E") {
		t.Error("parameters should be ignored")
	}
	if s.IsVideoType("video/webm") {
		t.Error("video/webm is not in the allow-list")
	}
}

type failingReader struct{ n int }

func (f *failingReader) Read(p []byte) (int, error) {
	if f.n == 0 {
		return 0, errors.New("connection reset")
	}
	f.n--
	return copy(p, "chunk"), nil
}

func TestStore_CleansUpPartialWrite(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Store(context.Background(), &failingReader{n: 3}, "a.mp4", "video/mp4")
	if apperr.KindOf(err) != apperr.KindStorage {
		t.Fatalf("err = %v, want storage error", err)
	}
	if n := countFiles(t, s.Dir()); n != 0 {
		t.Errorf("partial file left behind (%d files)", n)
	}
}

func TestStore_HonorsCancellation(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Store(ctx, strings.NewReader("data"), "a.mp4", "video/mp4")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled in chain", err)
	}
	if n := countFiles(t, s.Dir()); n != 0 {
		t.Errorf("%d files left after cancelled upload", n)
	}
}

func TestStore_UniqueNamesForSameOriginal(t *testing.T) {
	s := newTestStore(t)
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		obj, err := s.Store(context.Background(), strings.NewReader("x"), "same.mp4", "video/mp4")
		if err != nil {
			t.Fatal(err)
		}
		if seen[obj.Name] {
			t.Fatalf("duplicate name %q", obj.Name)
		}
		seen[obj.Name] = true
	}
}

func TestStore_IgnoresPathInOriginalName(t *testing.T) {
	s := newTestStore(t)
	obj, err := s.Store(context.Background(), strings.NewReader("x"), `..\..\evil/../../etc/passwd.mov`, "video/quicktime")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(obj.Path) != s.Dir() {
		t.Errorf("file escaped the blob dir: %s", obj.Path)
	}
	if !strings.HasSuffix(obj.Name, ".mov") {
		t.Errorf("Name = %q", obj.Name)
	}
}

func TestVerify_DetectsMissingAndTruncated(t *testing.T) {
	s := newTestStore(t)
	obj, _ := s.Store(context.Background(), strings.NewReader("0123456789"), "a.mp4", "video/mp4")

	if err := os.Truncate(obj.Path, 3); err != nil {
		t.Fatal(err)
	}
	if apperr.KindOf(s.Verify(obj)) != apperr.KindStorage {
		t.Error("truncated file should fail verification")
	}
	os.Remove(obj.Path)
	if apperr.KindOf(s.Verify(obj)) != apperr.KindStorage {
		t.Error("missing file should fail verification")
	}
}

func TestRemove_Idempotent(t *testing.T) {
	s := newTestStore(t)
	obj, _ := s.Store(context.Background(), strings.NewReader("x"), "a.mp4", "video/mp4")

	if err := s.Remove(obj.Name); err != nil {
		t.Fatalf("first remove: %v", err)
	}
	if s.Exists(obj.Name) {
		t.Error("file still exists")
	}
	if err := s.Remove(obj.Name); err != nil {
		t.Errorf("second remove should succeed silently: %v", err)
	}
	if err := s.Remove("../videos.json"); apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("path-like name: err = %v, want validation error", err)
	}
}

func TestList(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.List(); !errors.Is(err, ErrDirMissing) {
		t.Fatalf("List on missing dir: err = %v, want ErrDirMissing", err)
	}
	if err := s.EnsureDir(); err != nil {
		t.Fatal(err)
	}
	os.WriteFile(filepath.Join(s.Dir(), "clip.mp4"), []byte("abc"), 0o644)
	os.Mkdir(filepath.Join(s.Dir(), "sub"), 0o755)

	files, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 || files[0].Name != "clip.mp4" || files[0].Size != 3 || files[0].URL != "/uploads/clip.mp4" {
		t.Errorf("List = %+v", files)
	}
	if countFiles(t, s.Dir()) != 2 {
		t.Error("EnsureDir should not leave its write probe behind")
	}
}

func TestExt(t *testing.T) {
	cases := []struct {
		name, ct, want string
	}{
		{"a.MKV", "video/x-matroska", ".mkv"},
		{"noext", "video/webm", ".webm"},
		{"noext", "video/x-unknown", ".mp4"},
		{"weird.m p4", "video/quicktime", ".mov"},
		{"dir.d/file", "video/mp4", ".mp4"},
	}
	for _, tc := range cases {
		if got := Ext(tc.name, tc.ct); got != tc.want {
			t.Errorf("Ext(%q, %q) = %q, want %q", tc.name, tc.ct, got, tc.want)
		}
	}
}

func TestIsVideoFile(t *testing.T) {
	for name, want := range map[string]bool{
		"clip.mp4": true, "CLIP.MOV": true, "a.webm": true,
		"notes.txt": false, "mp4": false, "videos.json": false,
	} {
		if got := IsVideoFile(name); got != want {
			t.Errorf("IsVideoFile(%q) = %v", name, got)
		}
	}
}

var _ io.Reader = (*ctxReader)(nil)
