package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func addFile(t *testing.T, c *FileCache, dir, key string, size int) string {
	t.Helper()
	path := filepath.Join(dir, filepath.FromSlash(key))
	writeFile(t, path, strings.Repeat("x", size))
	if err := c.Add(key, path); err != nil {
		t.Fatalf("Add(%s) failed: %v", key, err)
	}
	return path
}

func TestFileCache_EvictsUnpinned(t *testing.T) {
	dir := t.TempDir()
	c, err := NewFileCache(dir, 100)
	if err != nil {
		t.Fatalf("NewFileCache failed: %v", err)
	}

	a := addFile(t, c, dir, "tpch_1MB/a.tbl", 60)
	c.Unpin("tpch_1MB/a.tbl")
	addFile(t, c, dir, "tpch_1MB/b.tbl", 60)

	if _, err := os.Stat(a); !os.IsNotExist(err) {
		t.Errorf("expected a.tbl to be evicted, stat err = %v", err)
	}
	if _, ok := c.Get("tpch_1MB/b.tbl"); !ok {
		t.Error("pinned b.tbl was evicted")
	}
	stats := c.Stats()
	if stats.Evictions != 1 || stats.Entries != 1 || stats.SizeBytes != 60 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestFileCache_PinnedFilesExceedBudget(t *testing.T) {
	dir := t.TempDir()
	c, err := NewFileCache(dir, 100)
	if err != nil {
		t.Fatalf("NewFileCache failed: %v", err)
	}
	addFile(t, c, dir, "a.tbl", 60)
	addFile(t, c, dir, "b.tbl", 60)

	if stats := c.Stats(); stats.Evictions != 0 || stats.SizeBytes != 120 {
		t.Errorf("pinned files must stay, got %+v", stats)
	}
}

func TestFileCache_PrefersLeastUsed(t *testing.T) {
	dir := t.TempDir()
	c, err := NewFileCache(dir, 100)
	if err != nil {
		t.Fatalf("NewFileCache failed: %v", err)
	}
	addFile(t, c, dir, "a.tbl", 30)
	addFile(t, c, dir, "b.tbl", 30)
	c.Unpin("a.tbl", "b.tbl")
	c.Get("a.tbl")
	c.Get("a.tbl")

	addFile(t, c, dir, "c.tbl", 50)

	if _, ok := c.Get("b.tbl"); ok {
		t.Error("expected the least used b.tbl to be evicted")
	}
	if _, ok := c.Get("a.tbl"); !ok {
		t.Error("a.tbl was evicted although it was used more")
	}
}

func TestFileCache_ScansExistingFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "tpch_10MB", "orders.tbl"), "1|2|\n")

	c, err := NewFileCache(dir, 1<<20)
	if err != nil {
		t.Fatalf("NewFileCache failed: %v", err)
	}
	path, ok := c.Get("tpch_10MB/orders.tbl")
	if !ok || path != filepath.Join(dir, "tpch_10MB", "orders.tbl") {
		t.Errorf("existing file not indexed: %q %v", path, ok)
	}
	if _, err := NewFileCache(dir, 0); err == nil {
		t.Error("expected an error for a zero budget")
	}
}

func TestFetcher_LimitCache(t *testing.T) {
	base, remote := newRemote(t)
	writeFile(t, filepath.Join(base, "tpch_1MB", "lineitem.tbl"), strings.Repeat("1|", 30))
	writeFile(t, filepath.Join(base, "tpch_10MB", "lineitem.tbl"), strings.Repeat("2|", 30))

	fetcher := NewFetcher(remote, t.TempDir(), 2)
	if err := fetcher.LimitCache(100); err != nil {
		t.Fatalf("LimitCache failed: %v", err)
	}
	ctx := context.Background()

	first, err := fetcher.Fetch(ctx, []string{"tpch_1MB/lineitem.tbl"})
	if err != nil || len(first.Errors) != 0 {
		t.Fatalf("Fetch failed: %v %v", err, first.Errors)
	}
	if _, err := fetcher.Fetch(ctx, []string{"tpch_10MB/lineitem.tbl"}); err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if _, err := os.Stat(first.LocalPaths["tpch_1MB/lineitem.tbl"]); !os.IsNotExist(err) {
		t.Error("expected the 1MB file to be evicted by the 10MB download")
	}
	stats := fetcher.Cache().Stats()
	if stats.Evictions != 1 || stats.Entries != 1 {
		t.Errorf("unexpected cache stats %+v", stats)
	}

	res, err := fetcher.Fetch(ctx, []string{"tpch_1MB/lineitem.tbl"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if res.Downloads != 1 || remote.downloads.Load() != 3 {
		t.Errorf("expected the evicted file to be downloaded again, got %d downloads", remote.downloads.Load())
	}
}
