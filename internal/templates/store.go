// Package templates persists named ServiceConfig presets, one JSON file
// per template.
package templates

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hongwen000/NSSM-GUI/internal/logging"
	"github.com/hongwen000/NSSM-GUI/pkg/models"
)

var log = logging.L("templates")

const fileExt = ".json"

var (
	ErrNotFound    = errors.New("template not found")
	ErrInvalidName = errors.New("invalid template name")
	ErrExists      = errors.New("template already exists")
)

var nameRegex = regexp.MustCompile(`^[A-Za-z0-9 _\-\.]+$`)

// ValidateName checks that name can be used as a template file name.
func ValidateName(name string) error {
	if name == "" || name == "." || name == ".." || !nameRegex.MatchString(name) || strings.TrimSpace(name) != name {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Store reads and writes templates under a directory.
type Store struct {
	dir string
	now func() time.Time
}

// NewStore returns a store rooted at dir. The directory is created on the
// first write.
func NewStore(dir string) *Store {
	return &Store{dir: dir, now: time.Now}
}

// Dir returns the templates directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, name+fileExt), nil
}

// Save writes t, keeping CreatedAt of an existing template with the same
// name. Config.Password is cleared before writing and in the returned
// template, so Load never yields a password and a Save/Load round trip
// drops it. Callers supply the password again when instantiating.
func (s *Store) Save(t models.Template) (models.Template, error) {
	p, err := s.path(t.Name)
	if err != nil {
		return t, err
	}
	now := s.now().UTC()
	if existing, err := s.Load(t.Name); err == nil {
		t.CreatedAt = existing.CreatedAt
	} else if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	t.Config.Password = ""

	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return t, fmt.Errorf("marshal template %s: %w", t.Name, err)
	}
	if err := writeFileAtomic(p, data); err != nil {
		return t, fmt.Errorf("save template %s: %w", t.Name, err)
	}
	log.Info("template saved", "template", t.Name)
	return t, nil
}

// Load reads the named template.
func (s *Store) Load(name string) (models.Template, error) {
	p, err := s.path(name)
	if err != nil {
		return models.Template{}, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return models.Template{}, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return models.Template{}, fmt.Errorf("read template %s: %w", name, err)
	}
	var t models.Template
	if err := json.Unmarshal(data, &t); err != nil {
		return models.Template{}, fmt.Errorf("parse template %s: %w", name, err)
	}
	t.Name = name
	return t, nil
}

// List returns every readable template sorted by name. Unreadable files are
// logged and skipped.
func (s *Store) List() ([]models.Template, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list templates: %w", err)
	}
	var out []models.Template
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), fileExt)
		t, err := s.Load(name)
		if err != nil {
			log.Warn("skipping unreadable template", "file", e.Name(), "error", err.Error())
			continue
		}
		out = append(out, t)
	}
	slices.SortFunc(out, func(a, b models.Template) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// Names returns the sorted template names.
func (s *Store) Names() ([]string, error) {
	list, err := s.List()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(list))
	for i, t := range list {
		names[i] = t.Name
	}
	return names, nil
}

// Delete removes the named template.
func (s *Store) Delete(name string) error {
	p, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return fmt.Errorf("delete template %s: %w", name, err)
	}
	log.Info("template deleted", "template", name)
	return nil
}

// Rename moves a template to a new name. The target must not exist.
func (s *Store) Rename(oldName, newName string) error {
	src, err := s.path(oldName)
	if err != nil {
		return err
	}
	dst, err := s.path(newName)
	if err != nil {
		return err
	}
	if _, err := os.Stat(dst); err == nil {
		return fmt.Errorf("%w: %s", ErrExists, newName)
	}
	t, err := s.Load(oldName)
	if err != nil {
		return err
	}
	t.Name = newName
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal template %s: %w", newName, err)
	}
	if err := writeFileAtomic(dst, data); err != nil {
		return fmt.Errorf("rename template %s: %w", oldName, err)
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("rename template %s: %w", oldName, err)
	}
	return nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

// Export writes the named template to path as JSON, or YAML for .yaml/.yml.
func (s *Store) Export(name, path string) error {
	t, err := s.Load(name)
	if err != nil {
		return err
	}
	var data []byte
	if isYAML(path) {
		data, err = yaml.Marshal(t)
	} else {
		data, err = json.MarshalIndent(t, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("encode template %s: %w", name, err)
	}
	if err := writeFileAtomic(path, data); err != nil {
		return fmt.Errorf("export template %s: %w", name, err)
	}
	return nil
}

// Import reads a template file (JSON or YAML by extension) and saves it.
// An empty name in the file falls back to the file's base name.
func (s *Store) Import(path string) (models.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Template{}, fmt.Errorf("import template: %w", err)
	}
	var t models.Template
	if isYAML(path) {
		err = yaml.Unmarshal(data, &t)
	} else {
		err = json.Unmarshal(data, &t)
	}
	if err != nil {
		return models.Template{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if t.Name == "" {
		t.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return s.Save(t)
}

// Instantiate returns the template's config bound to serviceName, with
// NSSM defaults filled in.
func (s *Store) Instantiate(name, serviceName string) (models.ServiceConfig, error) {
	t, err := s.Load(name)
	if err != nil {
		return models.ServiceConfig{}, err
	}
	if err := models.ValidateServiceName(serviceName); err != nil {
		return models.ServiceConfig{}, err
	}
	cfg := t.Config.Clone()
	cfg.ServiceName = serviceName
	return cfg.WithDefaults(), nil
}

// FromService builds a template from an existing service's config.
func FromService(name, description string, cfg models.ServiceConfig) models.Template {
	c := cfg.Clone()
	c.ServiceName = ""
	c.Password = ""
	return models.Template{Name: name, Description: description, Config: c}
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
