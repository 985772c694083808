// Package snapshot manages screenshot artifacts on disk: persistence of
// comparison diffs, annotation, archival, retention cleanup and stats.
// The comparator itself never touches the filesystem; this package is
// the caller-side owner of artifact lifecycles.
package snapshot

import (
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	apperrors "github.com/snapdiff/snapdiff/internal/errors"
)

// Kind classifies artifacts into subdirectories.
type Kind string

const (
	KindFailures    Kind = "failures"
	KindSuccesses   Kind = "successes"
	KindComparisons Kind = "comparisons"
	KindElements    Kind = "elements"
	KindArchived    Kind = "archived"
)

var kinds = []Kind{KindFailures, KindSuccesses, KindComparisons, KindElements, KindArchived}

// Store is a directory-backed screenshot artifact store.
type Store struct {
	baseDir     string
	subdirs     map[Kind]string
	diffFormats []string
}

// NewStore creates the base directory and its subdirectories.
func NewStore(baseDir string) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeStoreFailed, "create base dir")
	}

	subdirs := make(map[Kind]string, len(kinds))
	for _, k := range kinds {
		dir := filepath.Join(baseDir, string(k))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperrors.Wrapf(err, apperrors.CodeStoreFailed, "create %s dir", k)
		}
		subdirs[k] = dir
	}

	return &Store{baseDir: baseDir, subdirs: subdirs, diffFormats: []string{"png"}}, nil
}

// WithFormats sets the encodings diffs are persisted in. The first
// format is the primary artifact.
func (s *Store) WithFormats(formats []string) *Store {
	if len(formats) > 0 {
		s.diffFormats = formats
	}
	return s
}

// BaseDir returns the store root.
func (s *Store) BaseDir() string { return s.baseDir }

// Save writes img as PNG under the given kind. Returns the full path.
func (s *Store) Save(kind Kind, name string, img image.Image) (string, error) {
	return s.saveAs(kind, name, "png", img)
}

func (s *Store) saveAs(kind Kind, name, format string, img image.Image) (string, error) {
	dir, ok := s.subdirs[kind]
	if !ok {
		dir = s.baseDir
	}
	ext := "." + format
	if !strings.HasSuffix(strings.ToLower(name), ext) {
		name += ext
	}
	path := filepath.Join(dir, name)

	f, err := os.Create(path)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeStoreFailed, "create artifact")
	}
	defer f.Close()

	switch format {
	case "jpg", "jpeg":
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: 90})
	default:
		err = png.Encode(f, img)
	}
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeStoreFailed, "encode artifact")
	}

	slog.Debug("artifact saved", "path", path, "kind", string(kind))
	return path, nil
}

// SaveDiff persists a comparison diff image named after the compared
// pair, once per configured format. Returns the primary artifact path.
func (s *Store) SaveDiff(baseline, candidate string, diff image.Image) (string, error) {
	name := fmt.Sprintf("diff_%s_%s", stem(baseline), stem(candidate))

	var primary string
	for _, format := range s.diffFormats {
		path, err := s.saveAs(KindComparisons, name, format, diff)
		if err != nil {
			return "", err
		}
		if primary == "" {
			primary = path
		}
	}
	return primary, nil
}

// Archive moves an artifact into the archived subdirectory, tagging the
// filename with a reason and timestamp.
func (s *Store) Archive(path, reason string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeNotFound, "artifact not found")
	}

	base := filepath.Base(path)
	ext := filepath.Ext(base)
	ts := time.Now().Format("20060102_150405")
	name := fmt.Sprintf("%s_%s_%s%s", strings.TrimSuffix(base, ext), reason, ts, ext)
	dst := filepath.Join(s.subdirs[KindArchived], name)

	if err := os.Rename(path, dst); err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeStoreFailed, "archive artifact")
	}

	slog.Info("artifact archived", "from", path, "to", dst, "reason", reason)
	return dst, nil
}

// CleanOlderThan removes image artifacts older than the retention window.
// Returns the number of files deleted and the bytes freed.
func (s *Store) CleanOlderThan(days int) (int, int64, error) {
	cutoff := time.Now().AddDate(0, 0, -days)

	deleted := 0
	var freed int64

	dirs := append([]string{s.baseDir}, s.dirList()...)
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return deleted, freed, apperrors.Wrap(err, apperrors.CodeStoreFailed, "read store dir")
		}
		for _, e := range entries {
			if e.IsDir() || !isImageFile(e.Name()) {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			if info.ModTime().Before(cutoff) {
				if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
					continue
				}
				deleted++
				freed += info.Size()
			}
		}
	}

	slog.Info("store cleaned", "deleted", deleted, "freed_bytes", freed, "retention_days", days)
	return deleted, freed, nil
}

// Stats summarizes stored artifacts.
type Stats struct {
	TotalFiles int            `json:"total_files"`
	TotalBytes int64          `json:"total_bytes"`
	ByKind     map[string]int `json:"by_kind"`
	Oldest     string         `json:"oldest,omitempty"`
	Newest     string         `json:"newest,omitempty"`
}

// Stats walks the store and aggregates artifact counts and sizes.
func (s *Store) Stats() (Stats, error) {
	stats := Stats{ByKind: make(map[string]int)}

	var oldest, newest time.Time
	for _, k := range kinds {
		entries, err := os.ReadDir(s.subdirs[k])
		if err != nil {
			return stats, apperrors.Wrap(err, apperrors.CodeStoreFailed, "read store dir")
		}
		for _, e := range entries {
			if e.IsDir() || !isImageFile(e.Name()) {
				continue
			}
			info, err := e.Info()
			if err != nil {
				continue
			}
			stats.TotalFiles++
			stats.TotalBytes += info.Size()
			stats.ByKind[string(k)]++

			path := filepath.Join(s.subdirs[k], e.Name())
			if oldest.IsZero() || info.ModTime().Before(oldest) {
				oldest = info.ModTime()
				stats.Oldest = path
			}
			if info.ModTime().After(newest) {
				newest = info.ModTime()
				stats.Newest = path
			}
		}
	}
	return stats, nil
}

// Base64 reads an artifact and encodes it for embedding in reports.
func (s *Store) Base64(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.CodeNotFound, "read artifact")
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

func (s *Store) dirList() []string {
	dirs := make([]string, 0, len(kinds))
	for _, k := range kinds {
		dirs = append(dirs, s.subdirs[k])
	}
	return dirs
}

func stem(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func isImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg":
		return true
	default:
		return false
	}
}
