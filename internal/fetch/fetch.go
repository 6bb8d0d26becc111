// Package fetch downloads the NSSM release archive and extracts nssm.exe.
package fetch

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/hongwen000/NSSM-GUI/internal/httputil"
	"github.com/hongwen000/NSSM-GUI/internal/logging"
)

var log = logging.L("fetch")

const (
	// ExeName is the file name NSSM ships as.
	ExeName = "nssm.exe"

	maxArchiveSize = 32 * 1024 * 1024
	maxExeSize     = 8 * 1024 * 1024
)

// ErrNotInArchive is returned when the archive has no nssm.exe for the
// requested architecture.
var ErrNotInArchive = errors.New("nssm.exe not found in archive")

// Options controls a download.
type Options struct {
	URL string
	// DestDir receives nssm.exe.
	DestDir string
	// Arch selects the archive folder, "win64" or "win32". Empty picks one
	// from the running architecture.
	Arch string
	// SHA256 of the archive, checked when non-empty.
	SHA256 string
	Client *http.Client
	Retry  httputil.RetryConfig
	// Force replaces an existing executable.
	Force bool
}

// DefaultArch returns the NSSM archive folder for the running process.
func DefaultArch() string {
	switch runtime.GOARCH {
	case "386", "arm":
		return "win32"
	default:
		return "win64"
	}
}

// EnsureNSSM returns the path of nssm.exe in opts.DestDir, downloading and
// extracting it first when it is missing.
func EnsureNSSM(ctx context.Context, opts Options) (string, error) {
	dest := filepath.Join(opts.DestDir, ExeName)
	if !opts.Force {
		if info, err := os.Stat(dest); err == nil && info.Size() > 0 {
			return dest, nil
		}
	}
	if opts.URL == "" {
		return "", errors.New("no NSSM download URL configured")
	}
	if opts.Arch == "" {
		opts.Arch = DefaultArch()
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 5 * time.Minute}
	}
	if opts.Retry.MaxRetries == 0 && opts.Retry.InitialDelay == 0 {
		opts.Retry = httputil.DefaultRetryConfig()
	}

	log.Info("downloading NSSM", "url", opts.URL, "arch", opts.Arch)
	archive, err := download(ctx, opts)
	if err != nil {
		return "", err
	}
	defer os.Remove(archive)

	if opts.SHA256 != "" {
		if err := verifyChecksum(archive, opts.SHA256); err != nil {
			return "", fmt.Errorf("checksum verification failed: %w", err)
		}
	}

	if err := os.MkdirAll(opts.DestDir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", opts.DestDir, err)
	}
	if err := extract(archive, opts.Arch, dest); err != nil {
		return "", err
	}
	log.Info("NSSM installed", "path", dest)
	return dest, nil
}

func download(ctx context.Context, opts Options) (string, error) {
	resp, err := httputil.Get(ctx, opts.Client, opts.URL, opts.Retry)
	if err != nil {
		return "", fmt.Errorf("failed to download NSSM: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("NSSM download failed with status %d", resp.StatusCode)
	}

	tempFile, err := os.CreateTemp("", "nssm-*.zip")
	if err != nil {
		return "", err
	}
	defer tempFile.Close()

	n, err := io.Copy(tempFile, io.LimitReader(resp.Body, maxArchiveSize+1))
	if err != nil {
		os.Remove(tempFile.Name())
		return "", fmt.Errorf("failed to download NSSM: %w", err)
	}
	if n > maxArchiveSize {
		os.Remove(tempFile.Name())
		return "", fmt.Errorf("NSSM archive exceeds %d bytes", maxArchiveSize)
	}
	return tempFile.Name(), nil
}

func verifyChecksum(path, expected string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	hasher := sha256.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return err
	}
	actual := hex.EncodeToString(hasher.Sum(nil))
	if !strings.EqualFold(actual, expected) {
		return fmt.Errorf("checksum mismatch: expected %s, got %s", expected, actual)
	}
	return nil
}

// findEntry picks <anything>/<arch>/nssm.exe from the archive.
func findEntry(r *zip.Reader, arch string) *zip.File {
	for _, f := range r.File {
		name := strings.ToLower(f.Name)
		if path.Base(name) != ExeName {
			continue
		}
		if path.Base(path.Dir(name)) == strings.ToLower(arch) {
			return f
		}
	}
	return nil
}

func extract(archive, arch, dest string) error {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return fmt.Errorf("open NSSM archive: %w", err)
	}
	defer r.Close()

	entry := findEntry(&r.Reader, arch)
	if entry == nil {
		return fmt.Errorf("%w (%s)", ErrNotInArchive, arch)
	}
	if entry.UncompressedSize64 > maxExeSize {
		return fmt.Errorf("%s is too large (%d bytes)", entry.Name, entry.UncompressedSize64)
	}

	src, err := entry.Open()
	if err != nil {
		return fmt.Errorf("open %s: %w", entry.Name, err)
	}
	defer src.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".nssm-*.exe")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	_, err = io.Copy(tmp, io.LimitReader(src, maxExeSize))
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Chmod(tmpName, 0o755)
	}
	if err == nil {
		os.Remove(dest)
		err = os.Rename(tmpName, dest)
	}
	if err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("extract %s: %w", entry.Name, err)
	}
	return nil
}
