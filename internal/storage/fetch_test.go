package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	berrors "github.com/arkilian/enginebench/internal/errors"
)

// countingStorage counts downloads made through it.
type countingStorage struct {
	ObjectStorage
	downloads atomic.Int32
}

func (c *countingStorage) Download(ctx context.Context, objectPath, localPath string) error {
	c.downloads.Add(1)
	return c.ObjectStorage.Download(ctx, objectPath, localPath)
}

func newRemote(t *testing.T) (string, *countingStorage) {
	t.Helper()
	base := t.TempDir()
	local, err := NewLocalStorage(base)
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	return base, &countingStorage{ObjectStorage: local}
}

func TestFetcher_DownloadAndCache(t *testing.T) {
	base, remote := newRemote(t)
	writeFile(t, filepath.Join(base, "tpch_1MB", "lineitem.tbl"), "1|2|\n")
	writeFile(t, filepath.Join(base, "tpch_10MB", "lineitem.tbl"), "3|4|\n")

	fetcher := NewFetcher(remote, t.TempDir(), 2)
	keys := []string{"tpch_1MB/lineitem.tbl", "tpch_10MB/lineitem.tbl", "tpch_1MB/lineitem.tbl"}

	res, err := fetcher.Fetch(context.Background(), keys)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(res.Errors) != 0 {
		t.Fatalf("expected no errors, got %v", res.Errors)
	}
	if res.Downloads != 2 || res.CacheHits != 0 {
		t.Errorf("expected 2 downloads and 0 cache hits, got %d and %d", res.Downloads, res.CacheHits)
	}
	small, _ := os.ReadFile(res.LocalPaths["tpch_1MB/lineitem.tbl"])
	large, _ := os.ReadFile(res.LocalPaths["tpch_10MB/lineitem.tbl"])
	if string(small) != "1|2|\n" || string(large) != "3|4|\n" {
		t.Errorf("sizes collided in the cache: %q %q", small, large)
	}

	res, err = fetcher.Fetch(context.Background(), keys)
	if err != nil {
		t.Fatalf("second Fetch failed: %v", err)
	}
	if res.CacheHits != 2 || res.Downloads != 0 {
		t.Errorf("expected 2 cache hits, got %d hits and %d downloads", res.CacheHits, res.Downloads)
	}
	if n := remote.downloads.Load(); n != 2 {
		t.Errorf("expected 2 storage downloads in total, got %d", n)
	}
}

func TestFetcher_DecompressesSnappyObjects(t *testing.T) {
	base, remote := newRemote(t)
	plain := filepath.Join(t.TempDir(), "orders.tbl")
	content := strings.Repeat("1|37|O|131251.81|1996-01-02|\n", 100)
	writeFile(t, plain, content)
	if err := CompressFile(plain, filepath.Join(base, "tpch_1MB", "orders.tbl.sz")); err != nil {
		t.Fatalf("CompressFile failed: %v", err)
	}

	fetcher := NewFetcher(remote, t.TempDir(), 1)
	res, err := fetcher.Fetch(context.Background(), []string{"tpch_1MB/orders.tbl"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if res.Decompressed != 1 {
		t.Fatalf("expected one decompressed object, got %d (errors %v)", res.Decompressed, res.Errors)
	}
	got, err := os.ReadFile(res.LocalPaths["tpch_1MB/orders.tbl"])
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(got) != content {
		t.Error("decompressed content mismatch")
	}
	if _, err := os.Stat(res.LocalPaths["tpch_1MB/orders.tbl"] + CompressedSuffix); !os.IsNotExist(err) {
		t.Error("compressed temporary file should be removed")
	}
}

func TestFetcher_MissingObject(t *testing.T) {
	_, remote := newRemote(t)
	fetcher := NewFetcher(remote, t.TempDir(), 1)

	res, err := fetcher.Fetch(context.Background(), []string{"tpch_1MB/part.tbl", "../escape"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if res.Errors["tpch_1MB/part.tbl"] != ErrObjectNotFound {
		t.Errorf("expected ErrObjectNotFound, got %v", res.Errors["tpch_1MB/part.tbl"])
	}
	if res.Errors["../escape"] == nil {
		t.Error("expected an error for an escaping key")
	}
}

func TestDataRoot_Local(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "tpch_1MB", "region.tbl"), "0|AFRICA|x|\n")
	plain := filepath.Join(t.TempDir(), "nation.tbl")
	writeFile(t, plain, "0|ALGERIA|0|x|\n")
	if err := CompressFile(plain, filepath.Join(root, "tpch_1MB", "nation.tbl.sz")); err != nil {
		t.Fatalf("CompressFile failed: %v", err)
	}

	cache := t.TempDir()
	dr, err := NewLocalDataRoot(root, cache)
	if err != nil {
		t.Fatalf("NewLocalDataRoot failed: %v", err)
	}
	ctx := context.Background()

	p, err := dr.Path(ctx, TPCHKey(1, "region"))
	if err != nil {
		t.Fatalf("Path failed: %v", err)
	}
	if p != filepath.Join(root, "tpch_1MB", "region.tbl") {
		t.Errorf("plain files should be served in place, got %s", p)
	}

	p, err = dr.Path(ctx, TPCHKey(1, "nation"))
	if err != nil {
		t.Fatalf("Path failed: %v", err)
	}
	if !strings.HasPrefix(p, cache) {
		t.Errorf("compressed files should be decompressed into the cache, got %s", p)
	}

	_, err = dr.Path(ctx, TPCHKey(1, "customer"))
	if berrors.GetCode(err) != berrors.CodeObjectNotFound {
		t.Errorf("expected %s, got %v", berrors.CodeObjectNotFound, err)
	}
}

func TestDataRoot_Remote(t *testing.T) {
	base, remote := newRemote(t)
	writeFile(t, filepath.Join(base, "tpch_10MB", "supplier.tbl"), "1|Supplier#1|\n")
	writeFile(t, filepath.Join(base, "tpch_10MB", "partsupp.tbl"), "1|2|\n")

	dr := NewRemoteDataRoot(remote, t.TempDir())
	r, err := dr.Prefetch(context.Background(), TPCHKey(10, "supplier"), TPCHKey(10, "partsupp"), TPCHKey(10, "part"))
	if err != nil {
		t.Fatalf("Prefetch failed: %v", err)
	}
	if len(r.Paths) != 2 {
		t.Fatalf("expected 2 paths, got %v", r.Paths)
	}
	for k, p := range r.Paths {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("%s: cached file missing: %v", k, err)
		}
	}
	if _, err := r.Path(TPCHKey(10, "part")); berrors.GetCode(err) != berrors.CodeObjectNotFound {
		t.Errorf("expected %s for the absent table, got %v", berrors.CodeObjectNotFound, err)
	}
	if n := remote.downloads.Load(); n != 2 {
		t.Errorf("listed-absent objects should not be downloaded, got %d downloads", n)
	}
}

// slowStorage delays downloads and records how many run at once.
type slowStorage struct {
	ObjectStorage
	mu       sync.Mutex
	inFlight int
	peak     int
}

func (s *slowStorage) Download(ctx context.Context, objectPath, localPath string) error {
	s.mu.Lock()
	s.inFlight++
	s.peak = max(s.peak, s.inFlight)
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()
	time.Sleep(20 * time.Millisecond)
	return s.ObjectStorage.Download(ctx, objectPath, localPath)
}

func TestDataRoot_PrefetchDownloadsConcurrently(t *testing.T) {
	base, remote := newRemote(t)
	tables := []string{"region", "nation", "part", "supplier", "partsupp", "customer", "orders", "lineitem"}
	keys := make([]string, len(tables))
	for i, table := range tables {
		keys[i] = TPCHKey(1, table)
		writeFile(t, filepath.Join(base, filepath.FromSlash(keys[i])), table+"|\n")
	}
	slow := &slowStorage{ObjectStorage: remote}

	dr := NewRemoteDataRoot(slow, t.TempDir())
	r, err := dr.Prefetch(context.Background(), keys...)
	if err != nil {
		t.Fatalf("Prefetch failed: %v", err)
	}
	if len(r.Paths) != len(keys) || len(r.Errors) != 0 {
		t.Fatalf("expected %d paths and no errors, got %v and %v", len(keys), r.Paths, r.Errors)
	}
	if slow.peak < 2 || slow.peak > 4 {
		t.Errorf("expected between 2 and 4 concurrent downloads, got %d", slow.peak)
	}
}

// unlistableStorage refuses listings, as a bucket without list permission does.
type unlistableStorage struct {
	ObjectStorage
}

func (unlistableStorage) ListObjects(context.Context, string) ([]string, error) {
	return nil, errors.New("access denied")
}

func TestFetcher_DownloadsWhenListingFails(t *testing.T) {
	base, remote := newRemote(t)
	writeFile(t, filepath.Join(base, "tpch_1MB", "region.tbl"), "0|AFRICA|\n")

	fetcher := NewFetcher(unlistableStorage{remote}, t.TempDir(), 2)
	res, err := fetcher.Fetch(context.Background(), []string{"tpch_1MB/region.tbl", "tpch_1MB/nation.tbl"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if res.Downloads != 1 {
		t.Errorf("expected 1 download, got %d", res.Downloads)
	}
	if !errors.Is(res.Errors["tpch_1MB/nation.tbl"], ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound, got %v", res.Errors["tpch_1MB/nation.tbl"])
	}
	if n := remote.downloads.Load(); n != 3 {
		t.Errorf("expected the plain and compressed lookups of nation plus region, got %d", n)
	}
}

func TestFetcher_SkipsListedAbsentObjects(t *testing.T) {
	_, remote := newRemote(t)
	fetcher := NewFetcher(remote, t.TempDir(), 1)

	res, err := fetcher.Fetch(context.Background(), []string{"tpch_1MB/part.tbl"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if res.Errors["tpch_1MB/part.tbl"] != ErrObjectNotFound {
		t.Errorf("expected ErrObjectNotFound, got %v", res.Errors["tpch_1MB/part.tbl"])
	}
	if n := remote.downloads.Load(); n != 0 {
		t.Errorf("expected no download attempts, got %d", n)
	}
}

func TestTPCHKey(t *testing.T) {
	if got := TPCHKey(100, "lineitem"); got != "tpch_100MB/lineitem.tbl" {
		t.Errorf("unexpected key %q", got)
	}
}
