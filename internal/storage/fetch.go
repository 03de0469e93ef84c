package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"

	"github.com/golang/snappy"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	berrors "github.com/arkilian/enginebench/internal/errors"
)

// CompressedSuffix marks snappy-framed objects. A missing object is looked up
// again with this suffix and decompressed into the cache.
const CompressedSuffix = ".sz"

// Fetcher materializes objects in a local cache directory, downloading at
// most concurrency objects at a time. Cached files are reused across runs.
type Fetcher struct {
	storage     ObjectStorage
	cacheDir    string
	concurrency int
	cache       *FileCache
}

// FetchResult contains the outcome of a Fetch.
type FetchResult struct {
	LocalPaths   map[string]string
	Errors       map[string]error
	CacheHits    int
	Downloads    int
	Decompressed int
}

// NewFetcher creates a fetcher over storage caching into cacheDir.
func NewFetcher(storage ObjectStorage, cacheDir string, concurrency int) *Fetcher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Fetcher{
		storage:     storage,
		cacheDir:    cacheDir,
		concurrency: concurrency,
	}
}

// LimitCache bounds the cache directory to maxBytes, evicting the least used
// files once a download exceeds it.
func (f *Fetcher) LimitCache(maxBytes int64) error {
	c, err := NewFileCache(f.cacheDir, maxBytes)
	if err != nil {
		return err
	}
	f.cache = c
	return nil
}

// Cache returns the bounded cache, or nil when the cache is unbounded.
func (f *Fetcher) Cache() *FileCache {
	return f.cache
}

// CachePath returns where key is cached. The key's directories are kept so
// that tpch_10MB/lineitem.tbl and tpch_100MB/lineitem.tbl do not collide.
func (f *Fetcher) CachePath(key string) string {
	return filepath.Join(f.cacheDir, filepath.FromSlash(key))
}

// Fetch makes every key available locally. Per-key failures are reported in
// the result; the returned error is only set when ctx is done.
func (f *Fetcher) Fetch(ctx context.Context, keys []string) (*FetchResult, error) {
	result := &FetchResult{
		LocalPaths: make(map[string]string),
		Errors:     make(map[string]error),
	}

	unique := make(map[string]struct{}, len(keys))
	var queue []string
	for _, k := range keys {
		if _, dup := unique[k]; dup {
			continue
		}
		unique[k] = struct{}{}
		if err := validKey(k); err != nil {
			result.Errors[k] = err
			continue
		}
		if local, ok := f.cached(k); ok {
			result.LocalPaths[k] = local
			result.CacheHits++
			continue
		}
		queue = append(queue, k)
	}
	sort.Strings(queue)
	if absent := f.absent(ctx, queue); len(absent) > 0 {
		present := queue[:0]
		for _, k := range queue {
			if absent[k] {
				result.Errors[k] = ErrObjectNotFound
				continue
			}
			present = append(present, k)
		}
		queue = present
	}

	// files of this fetch must survive the evictions its downloads trigger
	if f.cache != nil {
		pinned := make([]string, 0, len(unique))
		for k := range unique {
			pinned = append(pinned, k)
		}
		f.cache.Pin(pinned...)
		defer f.cache.Unpin(pinned...)
	}

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		sem = semaphore.NewWeighted(int64(f.concurrency))
	)
	for _, k := range queue {
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Wait()
			return result, err
		}
		wg.Add(1)
		go func(key string) {
			defer sem.Release(1)
			defer wg.Done()

			local := f.CachePath(key)
			compressed, err := f.fetchOne(ctx, key, local)
			if err == nil && f.cache != nil {
				err = f.cache.Add(key, local)
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Errors[key] = err
				return
			}
			result.LocalPaths[key] = local
			result.Downloads++
			if compressed {
				result.Decompressed++
			}
		}(k)
	}
	wg.Wait()

	return result, ctx.Err()
}

// absent lists the directories of keys once each and returns the keys stored
// neither plain nor compressed. When a listing fails nothing is reported
// absent and every key is downloaded.
func (f *Fetcher) absent(ctx context.Context, keys []string) map[string]bool {
	listed := make(map[string]bool)
	seen := make(map[string]bool)
	for _, k := range keys {
		dir := path.Dir(k)
		if seen[dir] {
			continue
		}
		seen[dir] = true
		prefix := ""
		if dir != "." {
			prefix = dir + "/"
		}
		objects, err := f.storage.ListObjects(ctx, prefix)
		if err != nil {
			log.WithField("prefix", prefix).Debugf("listing failed, downloading blind: %v", err)
			return nil
		}
		for _, o := range objects {
			listed[o] = true
		}
	}

	out := make(map[string]bool)
	for _, k := range keys {
		if !listed[k] && !listed[k+CompressedSuffix] {
			out[k] = true
		}
	}
	return out
}

func (f *Fetcher) cached(key string) (string, bool) {
	if f.cache != nil {
		return f.cache.Get(key)
	}
	local := f.CachePath(key)
	if _, err := os.Stat(local); err != nil {
		return "", false
	}
	return local, true
}

func (f *Fetcher) fetchOne(ctx context.Context, key, local string) (bool, error) {
	err := f.storage.Download(ctx, key, local)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrObjectNotFound) {
		return false, err
	}

	tmp := local + CompressedSuffix
	if err := f.storage.Download(ctx, key+CompressedSuffix, tmp); err != nil {
		return false, err
	}
	defer os.Remove(tmp)
	if err := DecompressFile(tmp, local); err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrDownloadFailed, key, err)
	}
	return true, nil
}

// DecompressFile decodes the snappy-framed file src into dst.
func DecompressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	return writeAtomically(dst, func(w io.Writer) error {
		_, err := io.Copy(w, snappy.NewReader(in))
		return err
	})
}

// CompressFile encodes src into the snappy-framed file dst.
func CompressFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	return writeAtomically(dst, func(w io.Writer) error {
		sw := snappy.NewBufferedWriter(w)
		if _, err := io.Copy(sw, in); err != nil {
			return err
		}
		return sw.Close()
	})
}

func writeAtomically(dst string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	tmp := dst + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := write(out); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}

// DataRoot resolves dataset files under a data root. A local root serves
// plain files in place and falls back to decompressing .sz siblings into the
// cache; a remote root downloads into the cache.
type DataRoot struct {
	dir     string
	fetcher *Fetcher
}

// NewLocalDataRoot serves files from dir.
func NewLocalDataRoot(dir, cacheDir string) (*DataRoot, error) {
	local, err := NewLocalStorage(dir)
	if err != nil {
		return nil, berrors.NewStorageError(berrors.CodeDownloadFailed, "cannot open data root "+dir, err)
	}
	return &DataRoot{dir: dir, fetcher: NewFetcher(local, cacheDir, 4)}, nil
}

// NewRemoteDataRoot serves files fetched from storage.
func NewRemoteDataRoot(storage ObjectStorage, cacheDir string) *DataRoot {
	return &DataRoot{fetcher: NewFetcher(storage, cacheDir, 4)}
}

// TPCHKey names a TPC-H table file of the given size.
func TPCHKey(sizeMB int, table string) string {
	return fmt.Sprintf("tpch_%dMB/%s.tbl", sizeMB, table)
}

// LimitCache bounds the cache directory of the data root.
func (d *DataRoot) LimitCache(maxBytes int64) error {
	return d.fetcher.LimitCache(maxBytes)
}

// Cache returns the bounded cache of the data root, or nil.
func (d *DataRoot) Cache() *FileCache {
	return d.fetcher.Cache()
}

// Resolved holds the outcome of a Prefetch: the local path of every key
// made available and the reason for every key that was not.
type Resolved struct {
	Paths  map[string]string
	Errors map[string]error
}

// Path returns the local path of key or the reason it is unavailable.
func (r *Resolved) Path(key string) (string, error) {
	if err, failed := r.Errors[key]; failed {
		return "", err
	}
	if p, ok := r.Paths[key]; ok {
		return p, nil
	}
	return "", berrors.NewStorageError(berrors.CodeObjectNotFound, key+" was not prefetched", nil)
}

// Path returns a local path holding key.
func (d *DataRoot) Path(ctx context.Context, key string) (string, error) {
	r, err := d.Prefetch(ctx, key)
	if err != nil {
		return "", err
	}
	return r.Path(key)
}

// Prefetch makes keys available locally in one batch, downloading missing
// ones concurrently. Unavailable keys are reported in the result; the error
// is only set when ctx is done.
func (d *DataRoot) Prefetch(ctx context.Context, keys ...string) (*Resolved, error) {
	r := &Resolved{
		Paths:  make(map[string]string, len(keys)),
		Errors: make(map[string]error),
	}
	var missing []string
	for _, k := range keys {
		if d.dir != "" {
			if err := validKey(k); err != nil {
				r.Errors[k] = keyError(berrors.CodeObjectNotFound, k, err)
				continue
			}
			p := filepath.Join(d.dir, filepath.FromSlash(k))
			if _, err := os.Stat(p); err == nil {
				r.Paths[k] = p
				continue
			}
		}
		missing = append(missing, k)
	}
	if len(missing) == 0 {
		return r, nil
	}

	res, err := d.fetcher.Fetch(ctx, missing)
	if err != nil {
		return nil, berrors.NewStorageError(berrors.CodeDownloadFailed, "fetch interrupted", err)
	}
	for _, k := range missing {
		if ferr, failed := res.Errors[k]; failed {
			code := berrors.CodeDownloadFailed
			if errors.Is(ferr, ErrObjectNotFound) || errors.Is(ferr, ErrInvalidKey) {
				code = berrors.CodeObjectNotFound
			}
			r.Errors[k] = keyError(code, k, ferr)
			continue
		}
		r.Paths[k] = res.LocalPaths[k]
	}
	return r, nil
}

func keyError(code, key string, cause error) error {
	return berrors.NewStorageError(code, "cannot fetch "+key, cause).
		WithDetails(map[string]interface{}{"key": key})
}
