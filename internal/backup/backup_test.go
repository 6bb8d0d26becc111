package backup

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/hongwen000/NSSM-GUI/pkg/models"
)

func newTestStore(t *testing.T) (*Store, *time.Time) {
	t.Helper()
	s := NewStore(t.TempDir())
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	return s, &now
}

func testConfig() models.ServiceConfig {
	return models.ServiceConfig{
		ServiceName:     "web",
		ApplicationPath: `C:\web\web.exe`,
		Arguments:       "--port 80",
		ObjectName:      `CORP\web`,
		Password:        "hunter2",
		EnvVariables:    map[string]string{"A": "1"},
	}
}

func TestSaveRestoreRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	path, err := s.Save(testConfig(), "nssm.exe install web C:\\web\\web.exe", "edit")
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if filepath.Dir(path) != filepath.Join(s.Dir(), "web") {
		t.Fatalf("backup written to %s", path)
	}

	cfg, err := s.Restore(path)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	want := testConfig()
	want.Password = ""
	if !reflect.DeepEqual(cfg, want) {
		t.Fatalf("Restore\n got: %+v\nwant: %+v", cfg, want)
	}

	snap, err := s.Read(filepath.Join("web", filepath.Base(path)))
	if err != nil {
		t.Fatalf("Read relative: %v", err)
	}
	if snap.Reason != "edit" || snap.Dump == "" {
		t.Fatalf("snapshot metadata = %+v", snap)
	}
}

func TestListNewestFirstAndLatest(t *testing.T) {
	s, now := newTestStore(t)
	for i := 0; i < 3; i++ {
		if _, err := s.Save(testConfig(), "", "edit"); err != nil {
			t.Fatal(err)
		}
		*now = now.Add(time.Minute)
	}
	list, err := s.List("web")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Fatalf("List returned %d entries", len(list))
	}
	if !list[0].Timestamp.After(list[2].Timestamp) {
		t.Fatalf("List not newest first: %v", list)
	}
	latest, err := s.Latest("web")
	if err != nil {
		t.Fatal(err)
	}
	if latest.Path != list[0].Path {
		t.Fatalf("Latest = %s, want %s", latest.Path, list[0].Path)
	}

	if _, err := s.Latest("other"); !errors.Is(err, ErrNoBackups) {
		t.Fatalf("expected ErrNoBackups, got %v", err)
	}
}

func TestPrune(t *testing.T) {
	s, now := newTestStore(t)
	for i := 0; i < 5; i++ {
		if _, err := s.Save(testConfig(), "", "remove"); err != nil {
			t.Fatal(err)
		}
		*now = now.Add(time.Second)
	}
	removed, err := s.Prune("web", 2)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 3 {
		t.Fatalf("removed %d, want 3", removed)
	}
	list, _ := s.List("web")
	if len(list) != 2 {
		t.Fatalf("%d left after prune", len(list))
	}

	if _, err := s.Prune("web", 0); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(s.Dir(), "web")); !os.IsNotExist(err) {
		t.Fatalf("empty service dir not cleaned up: %v", err)
	}
}

func TestPathsContained(t *testing.T) {
	s, _ := newTestStore(t)
	if _, err := s.Read("../outside.json.gz"); err == nil {
		t.Fatal("expected traversal error")
	}
	if _, err := s.List(".."); err == nil {
		t.Fatal("expected invalid service name error")
	}
	if _, err := s.Save(models.ServiceConfig{ServiceName: "../x"}, "", ""); err == nil {
		t.Fatal("expected invalid service name error")
	}
}

func TestContainedPath(t *testing.T) {
	base := t.TempDir()
	tests := []struct {
		path    string
		wantErr bool
	}{
		{"svc/a.json.gz", false},
		{"svc/../svc/a.json.gz", false},
		{"../escape", true},
		{"svc/../../escape", true},
	}
	for _, tt := range tests {
		_, err := containedPath(base, tt.path)
		if (err != nil) != tt.wantErr {
			t.Errorf("containedPath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
		}
	}
}
