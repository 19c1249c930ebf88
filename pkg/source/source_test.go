package source

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/driverdock/driverdock/pkg/db"
	"github.com/driverdock/driverdock/pkg/driver"
)

type fakeSource struct {
	name       string
	candidates []driver.Candidate
	calls      int
	err        error
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) FetchCandidates(ctx context.Context, hardwareID string) ([]driver.Candidate, error) {
	f.calls++
	return f.candidates, f.err
}

func TestRegistry_Resolution(t *testing.T) {
	nvidia := &fakeSource{name: "nvidia"}
	fallback := &fakeSource{name: "fallback"}

	r := NewRegistry()
	r.Register("10de", nvidia)
	r.RegisterDefault(fallback)

	sources := r.For("10DE")
	if len(sources) != 2 {
		t.Fatalf("expected 2 sources for 10DE, got %d", len(sources))
	}
	if sources[0].Name() != "nvidia" || sources[1].Name() != "fallback" {
		t.Errorf("wrong resolution order: %s, %s", sources[0].Name(), sources[1].Name())
	}

	sources = r.For("8086")
	if len(sources) != 1 || sources[0].Name() != "fallback" {
		t.Fatalf("expected only the default source for 8086, got %d", len(sources))
	}
}

const testCatalog = `
drivers:
  - id: nv-531
    name: NVIDIA Graphics Driver
    version: "531.18"
    vendor: NVIDIA
    download_url: https://example.com/nvidia-531.18.exe
    file_size: 1024
    sha256: aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa
    hardware_ids:
      - PCI\VEN_10DE&DEV_1C82&SUBSYS_11BF10DE&REV_A1
      - PCI\VEN_10DE&DEV_1C82
  - id: rt-audio
    name: Realtek Audio Driver
    version: "6.0.9235.1"
    download_url: https://example.com/realtek.exe
    sha256: bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb
    hardware_ids:
      - HDAUDIO\FUNC_01&VEN_10EC&DEV_0255
  - id: broken
    name: Broken Entry
    version: "1.0"
    download_url: https://example.com/broken.exe
    sha256: short
    hardware_ids:
      - PCI\VEN_FFFF&DEV_0001
`

func writeCatalog(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(testCatalog), 0o644); err != nil {
		t.Fatalf("failed to write catalog: %v", err)
	}
	return path
}

func TestCatalog_FetchByShortID(t *testing.T) {
	cat, err := NewCatalog(writeCatalog(t))
	if err != nil {
		t.Fatalf("failed to load catalog: %v", err)
	}

	// a full device hardware ID resolves through its short form
	got, err := cat.FetchCandidates(context.Background(), `PCI\VEN_10DE&DEV_1C82&SUBSYS_11BF10DE&REV_A1`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Name != "NVIDIA Graphics Driver" {
		t.Fatalf("unexpected candidates: %+v", got)
	}

	got, _ = cat.FetchCandidates(context.Background(), `HDAUDIO\FUNC_01&VEN_10EC&DEV_0255&SUBSYS_103C80D6`)
	if len(got) != 1 || got[0].Name != "Realtek Audio Driver" {
		t.Fatalf("unexpected candidates: %+v", got)
	}

	got, _ = cat.FetchCandidates(context.Background(), `PCI\VEN_1002&DEV_73BF`)
	if len(got) != 0 {
		t.Fatalf("expected no candidates for unknown hardware, got %d", len(got))
	}

	// the malformed entry must not be served
	got, _ = cat.FetchCandidates(context.Background(), `PCI\VEN_FFFF&DEV_0001`)
	if len(got) != 0 {
		t.Fatalf("expected invalid entry to be skipped, got %d", len(got))
	}
}

func TestCatalog_VendorIDs(t *testing.T) {
	cat, err := NewCatalog(writeCatalog(t))
	if err != nil {
		t.Fatalf("failed to load catalog: %v", err)
	}

	vendors := cat.VendorIDs()
	want := map[string]bool{"10DE": false, "10EC": false}
	for _, v := range vendors {
		if _, ok := want[v]; ok {
			want[v] = true
		}
	}
	for v, seen := range want {
		if !seen {
			t.Errorf("vendor %s missing from %v", v, vendors)
		}
	}
}

func newTestRepo(t *testing.T, name string) *db.Repository {
	t.Helper()
	dbPath := "/tmp/" + name
	os.Remove(dbPath)
	t.Cleanup(func() { os.Remove(dbPath) })

	repo, err := db.NewRepository(dbPath)
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestCached_ServesFromCacheWithinTTL(t *testing.T) {
	repo := newTestRepo(t, "test_source_cache.db")

	inner := &fakeSource{
		name: "remote",
		candidates: []driver.Candidate{{
			Name:        "NVIDIA Graphics Driver",
			Version:     "531.18",
			Vendor:      "NVIDIA",
			DownloadURL: "https://example.com/nvidia.exe",
			SHA256:      strings.Repeat("a", 64),
			HardwareIDs: []string{`PCI\VEN_10DE&DEV_1C82&SUBSYS_11BF10DE&REV_A1`, `PCI\VEN_10DE&DEV_1C82`},
			SilentArgs:  []string{"/S", "/NORESTART"},
			ReleaseDate: time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC),
		}},
	}

	cached := NewCached(repo, inner, time.Hour)

	first, err := cached.FetchCandidates(context.Background(), `PCI\VEN_10DE&DEV_1C82`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first) != 1 || inner.calls != 1 {
		t.Fatalf("expected one remote fetch, got %d candidates, %d calls", len(first), inner.calls)
	}

	second, err := cached.FetchCandidates(context.Background(), `PCI\VEN_10DE&DEV_1C82`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("expected cache hit without remote call, got %d calls", inner.calls)
	}
	if len(second) != 1 {
		t.Fatalf("expected 1 cached candidate, got %d", len(second))
	}

	// the cached candidate must round-trip completely
	got := second[0]
	if got.Name != "NVIDIA Graphics Driver" || got.Version != "531.18" {
		t.Errorf("identity lost in cache: %+v", got)
	}
	if len(got.HardwareIDs) != 2 {
		t.Errorf("hardware ids lost in cache: %v", got.HardwareIDs)
	}
	if len(got.SilentArgs) != 2 {
		t.Errorf("silent args lost in cache: %v", got.SilentArgs)
	}
	if got.ReleaseDate.IsZero() {
		t.Error("release date lost in cache")
	}
}

func TestCached_CacheOnlyWhenNoInner(t *testing.T) {
	repo := newTestRepo(t, "test_source_cache_only.db")
	cached := NewCached(repo, nil, time.Hour)

	got, err := cached.FetchCandidates(context.Background(), `PCI\VEN_10DE&DEV_1C82`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no candidates from empty cache, got %d", len(got))
	}
	if cached.Name() != "driver-cache" {
		t.Errorf("unexpected name %q", cached.Name())
	}
}

func TestCached_PropagatesRemoteError(t *testing.T) {
	repo := newTestRepo(t, "test_source_cache_err.db")
	inner := &fakeSource{name: "remote", err: context.DeadlineExceeded}
	cached := NewCached(repo, inner, time.Hour)

	if _, err := cached.FetchCandidates(context.Background(), `PCI\VEN_10DE&DEV_1C82`); err == nil {
		t.Fatal("expected remote error to propagate")
	}
}
