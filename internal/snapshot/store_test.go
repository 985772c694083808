package snapshot

import (
	"encoding/base64"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func makeTestImage(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func TestNewStoreCreatesSubdirs(t *testing.T) {
	base := t.TempDir()
	_, err := NewStore(base)
	if err != nil {
		t.Fatalf("NewStore() = %v", err)
	}

	for _, k := range kinds {
		if _, err := os.Stat(filepath.Join(base, string(k))); err != nil {
			t.Errorf("subdir %s not created: %v", k, err)
		}
	}
}

func TestSaveAddsExtension(t *testing.T) {
	s, _ := NewStore(t.TempDir())
	img := makeTestImage(4, 4, color.NRGBA{R: 255, A: 255})

	path, err := s.Save(KindFailures, "login_failed", img)
	if err != nil {
		t.Fatalf("Save() = %v", err)
	}
	if !strings.HasSuffix(path, "login_failed.png") {
		t.Errorf("path = %q, want .png suffix", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("artifact not written: %v", err)
	}
}

func TestSaveDiffNaming(t *testing.T) {
	s, _ := NewStore(t.TempDir())
	img := makeTestImage(4, 4, color.NRGBA{A: 255})

	path, err := s.SaveDiff("baseline.png", "candidate.png", img)
	if err != nil {
		t.Fatalf("SaveDiff() = %v", err)
	}
	if filepath.Base(path) != "diff_baseline_candidate.png" {
		t.Errorf("diff name = %q, want diff_baseline_candidate.png", filepath.Base(path))
	}
	if filepath.Dir(path) != filepath.Join(s.BaseDir(), string(KindComparisons)) {
		t.Errorf("diff saved to %q, want comparisons dir", filepath.Dir(path))
	}
}

func TestSaveDiffMultipleFormats(t *testing.T) {
	s, _ := NewStore(t.TempDir())
	s.WithFormats([]string{"png", "jpeg"})
	img := makeTestImage(4, 4, color.NRGBA{A: 255})

	path, err := s.SaveDiff("baseline.png", "candidate.png", img)
	if err != nil {
		t.Fatalf("SaveDiff() = %v", err)
	}
	if filepath.Base(path) != "diff_baseline_candidate.png" {
		t.Errorf("primary = %q, want the first configured format", filepath.Base(path))
	}

	sibling := strings.TrimSuffix(path, ".png") + ".jpeg"
	if _, err := os.Stat(sibling); err != nil {
		t.Errorf("jpeg copy not written: %v", err)
	}
}

func TestArchive(t *testing.T) {
	s, _ := NewStore(t.TempDir())
	img := makeTestImage(4, 4, color.NRGBA{A: 255})
	path, _ := s.Save(KindSuccesses, "shot", img)

	dst, err := s.Archive(path, "test_completion")
	if err != nil {
		t.Fatalf("Archive() = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("original should be moved")
	}
	if !strings.Contains(filepath.Base(dst), "test_completion") {
		t.Errorf("archived name = %q, want reason tag", filepath.Base(dst))
	}
	if filepath.Dir(dst) != filepath.Join(s.BaseDir(), string(KindArchived)) {
		t.Errorf("archived to %q, want archived dir", filepath.Dir(dst))
	}
}

func TestArchiveMissingFile(t *testing.T) {
	s, _ := NewStore(t.TempDir())
	if _, err := s.Archive(filepath.Join(s.BaseDir(), "nope.png"), "gone"); err == nil {
		t.Error("archiving a missing file should fail")
	}
}

func TestCleanOlderThan(t *testing.T) {
	s, _ := NewStore(t.TempDir())
	img := makeTestImage(4, 4, color.NRGBA{A: 255})

	oldPath, _ := s.Save(KindComparisons, "old", img)
	newPath, _ := s.Save(KindComparisons, "new", img)

	stale := time.Now().AddDate(0, 0, -10)
	if err := os.Chtimes(oldPath, stale, stale); err != nil {
		t.Fatalf("chtimes: %v", err)
	}

	deleted, freed, err := s.CleanOlderThan(7)
	if err != nil {
		t.Fatalf("CleanOlderThan() = %v", err)
	}
	if deleted != 1 {
		t.Errorf("deleted = %d, want 1", deleted)
	}
	if freed <= 0 {
		t.Error("freed bytes should be positive")
	}
	if _, err := os.Stat(oldPath); !os.IsNotExist(err) {
		t.Error("stale artifact should be removed")
	}
	if _, err := os.Stat(newPath); err != nil {
		t.Error("fresh artifact should survive")
	}
}

func TestStats(t *testing.T) {
	s, _ := NewStore(t.TempDir())
	img := makeTestImage(4, 4, color.NRGBA{A: 255})

	_, _ = s.Save(KindFailures, "f1", img)
	_, _ = s.Save(KindFailures, "f2", img)
	_, _ = s.Save(KindComparisons, "c1", img)

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats() = %v", err)
	}
	if stats.TotalFiles != 3 {
		t.Errorf("TotalFiles = %d, want 3", stats.TotalFiles)
	}
	if stats.ByKind["failures"] != 2 {
		t.Errorf("failures = %d, want 2", stats.ByKind["failures"])
	}
	if stats.TotalBytes <= 0 {
		t.Error("TotalBytes should be positive")
	}
	if stats.Newest == "" || stats.Oldest == "" {
		t.Error("oldest/newest should be populated")
	}
}

func TestBase64RoundTrip(t *testing.T) {
	s, _ := NewStore(t.TempDir())
	img := makeTestImage(4, 4, color.NRGBA{G: 255, A: 255})
	path, _ := s.Save(KindElements, "el", img)

	encoded, err := s.Base64(path)
	if err != nil {
		t.Fatalf("Base64() = %v", err)
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		t.Fatalf("invalid base64: %v", err)
	}
	raw, _ := os.ReadFile(path)
	if len(decoded) != len(raw) {
		t.Errorf("decoded %d bytes, want %d", len(decoded), len(raw))
	}
}

func TestAnnotateDoesNotMutateSource(t *testing.T) {
	src := makeTestImage(200, 100, color.NRGBA{B: 200, A: 255})
	before := make([]uint8, len(src.Pix))
	copy(before, src.Pix)

	out := Annotate(src, "login page after submit")

	for i := range before {
		if src.Pix[i] != before[i] {
			t.Fatal("Annotate mutated its source image")
		}
	}
	if out.Bounds() != src.Bounds() {
		t.Error("annotated image should keep source dimensions")
	}

	// The backdrop must have altered some pixels in the label area.
	changed := false
	for i := range out.Pix {
		if out.Pix[i] != before[i] {
			changed = true
			break
		}
	}
	if !changed {
		t.Error("annotation should draw onto the copy")
	}
}

func TestCollage(t *testing.T) {
	s, _ := NewStore(t.TempDir())
	img := makeTestImage(800, 600, color.NRGBA{R: 100, G: 150, B: 200, A: 255})

	var paths []string
	for _, n := range []string{"a", "b", "c", "d"} {
		p, _ := s.Save(KindSuccesses, n, img)
		paths = append(paths, p)
	}

	out, err := s.Collage(paths, "run_summary")
	if err != nil {
		t.Fatalf("Collage() = %v", err)
	}

	collage, err := loadImage(out)
	if err != nil {
		t.Fatalf("collage unreadable: %v", err)
	}
	// Four tiles, three columns: 3x400 wide, two rows high.
	if collage.Bounds().Dx() != 3*collageTileWidth {
		t.Errorf("collage width = %d, want %d", collage.Bounds().Dx(), 3*collageTileWidth)
	}
	if collage.Bounds().Dy() != 2*300 {
		t.Errorf("collage height = %d, want %d", collage.Bounds().Dy(), 600)
	}
}

func TestCollageNoInputs(t *testing.T) {
	s, _ := NewStore(t.TempDir())
	if _, err := s.Collage([]string{"/does/not/exist.png"}, "empty"); err == nil {
		t.Error("collage with no readable inputs should fail")
	}
}
