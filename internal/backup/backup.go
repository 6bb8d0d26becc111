// Package backup keeps gzip-compressed snapshots of service configurations
// taken before they are edited or removed.
package backup

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/hongwen000/NSSM-GUI/internal/logging"
	"github.com/hongwen000/NSSM-GUI/pkg/models"
)

var log = logging.L("backup")

const (
	fileExt = ".json.gz"
	// UTC, sortable, and valid in Windows file names.
	timeLayout = "20060102T150405.000000000Z"

	maxDecompressSize = 16 * 1024 * 1024
)

// ErrNoBackups is returned by Latest when a service has no snapshots.
var ErrNoBackups = errors.New("no backups")

// Snapshot is the stored form of one backup.
type Snapshot struct {
	Service   string               `json:"service"`
	Reason    string               `json:"reason,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
	Config    models.ServiceConfig `json:"config"`
	Dump      string               `json:"dump,omitempty"`
}

// Entry describes a snapshot file on disk.
type Entry struct {
	Service   string    `json:"service"`
	Path      string    `json:"path"`
	Timestamp time.Time `json:"timestamp"`
	Size      int64     `json:"size"`
}

// Store writes snapshots under <dir>/<service>/<timestamp>.json.gz.
type Store struct {
	dir string
	now func() time.Time
}

// NewStore returns a store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: filepath.Clean(dir), now: time.Now}
}

// Dir returns the backup root.
func (s *Store) Dir() string { return s.dir }

// Save writes a snapshot of cfg and returns its path.
func (s *Store) Save(cfg models.ServiceConfig, dump, reason string) (string, error) {
	if err := models.ValidateServiceName(cfg.ServiceName); err != nil {
		return "", fmt.Errorf("backup: %w", err)
	}
	snap := Snapshot{
		Service:   cfg.ServiceName,
		Reason:    reason,
		Timestamp: s.now().UTC(),
		Config:    cfg,
		Dump:      dump,
	}
	snap.Config.Password = ""

	rel := filepath.Join(cfg.ServiceName, snap.Timestamp.Format(timeLayout)+fileExt)
	dest, err := containedPath(s.dir, rel)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o700); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}
	if err := writeCompressed(dest, snap); err != nil {
		return "", err
	}
	log.Info("service config backed up", logging.KeyService, cfg.ServiceName, "reason", reason, "path", dest)
	return dest, nil
}

func writeCompressed(dest string, snap Snapshot) error {
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	gz := gzip.NewWriter(f)
	gz.Name = snap.Service + ".json"
	gz.ModTime = snap.Timestamp

	err = json.NewEncoder(gz).Encode(snap)
	closeErr := gz.Close()
	if err == nil {
		err = closeErr
	}
	closeErr = f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(dest)
		return fmt.Errorf("failed to write backup: %w", err)
	}
	return nil
}

// List returns the service's snapshots, newest first.
func (s *Store) List(service string) ([]Entry, error) {
	if err := models.ValidateServiceName(service); err != nil {
		return nil, fmt.Errorf("backup: %w", err)
	}
	root, err := containedPath(s.dir, service)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}

	var out []Entry
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		ts, err := time.Parse(timeLayout, strings.TrimSuffix(e.Name(), fileExt))
		if err != nil {
			continue
		}
		var size int64
		if info, err := e.Info(); err == nil {
			size = info.Size()
		}
		out = append(out, Entry{
			Service:   service,
			Path:      filepath.Join(root, e.Name()),
			Timestamp: ts,
			Size:      size,
		})
	}
	slices.SortFunc(out, func(a, b Entry) int { return b.Timestamp.Compare(a.Timestamp) })
	return out, nil
}

// Services returns the names of services that have backups.
func (s *Store) Services() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list backups: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, e.Name())
		}
	}
	return out, nil
}

// Latest returns the newest snapshot entry for service.
func (s *Store) Latest(service string) (Entry, error) {
	list, err := s.List(service)
	if err != nil {
		return Entry{}, err
	}
	if len(list) == 0 {
		return Entry{}, fmt.Errorf("%s: %w", service, ErrNoBackups)
	}
	return list[0], nil
}

// Read loads a snapshot. path may be absolute or relative to the backup
// root but must resolve inside it.
func (s *Store) Read(path string) (Snapshot, error) {
	if filepath.IsAbs(path) {
		base, err := filepath.Abs(s.dir)
		if err != nil {
			return Snapshot{}, fmt.Errorf("failed to resolve base path: %w", err)
		}
		rel, err := filepath.Rel(base, path)
		if err != nil {
			return Snapshot{}, fmt.Errorf("backup path %q: %w", path, err)
		}
		path = rel
	}
	src, err := containedPath(s.dir, path)
	if err != nil {
		return Snapshot{}, err
	}

	f, err := os.Open(src)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to open backup: %w", err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gz.Close()

	var snap Snapshot
	if err := json.NewDecoder(io.LimitReader(gz, maxDecompressSize)).Decode(&snap); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode backup: %w", err)
	}
	return snap, nil
}

// Restore returns the ServiceConfig stored in a snapshot.
func (s *Store) Restore(path string) (models.ServiceConfig, error) {
	snap, err := s.Read(path)
	if err != nil {
		return models.ServiceConfig{}, err
	}
	return snap.Config, nil
}

// Prune deletes all but the newest keep snapshots of service and returns
// how many were removed.
func (s *Store) Prune(service string, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	list, err := s.List(service)
	if err != nil {
		return 0, err
	}
	if len(list) <= keep {
		return 0, nil
	}
	removed := 0
	var errs []error
	for _, e := range list[keep:] {
		if err := os.Remove(e.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	if keep == 0 {
		s.cleanupEmptyDirs(filepath.Join(s.dir, service))
	}
	if removed > 0 {
		log.Debug("pruned backups", logging.KeyService, service, "removed", removed)
	}
	return removed, errors.Join(errs...)
}
