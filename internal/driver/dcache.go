package driver

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"retaincheck/internal/diag"
	"retaincheck/internal/engine"
	"retaincheck/internal/project"
	"retaincheck/internal/source"
)

// Current schema version - increment when DiskPayload format changes
const diskCacheSchemaVersion uint16 = 1

// DiskCache stores analysis results on disk keyed by graph and policy.
// Thread-safe for concurrent access.
type DiskCache struct {
	mu  sync.RWMutex
	dir string
}

// DiskPayload is a finished, complete analysis without fixes.
type DiskPayload struct {
	// Schema version for safe invalidation when format changes
	Schema uint16

	Key         project.Digest
	Diagnostics []CachedDiagnostic

	Units         int
	Members       int
	Subscriptions int
	Skipped       int
	Dropped       int
}

type CachedSpan struct {
	File  uint32
	Start uint32
	End   uint32
}

type CachedNote struct {
	Span CachedSpan
	Msg  string
}

type CachedDiagnostic struct {
	Severity uint8
	Code     uint16
	Message  string
	Subject  string
	Primary  CachedSpan
	Notes    []CachedNote
}

// OpenDiskCache initializes and returns a disk cache at the standard location.
func OpenDiskCache(app string) (*DiskCache, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		base = filepath.Join(home, ".cache")
	}
	return OpenDiskCacheAt(filepath.Join(base, app))
}

// OpenDiskCacheAt uses dir as the cache root.
func OpenDiskCacheAt(dir string) (*DiskCache, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, err
	}
	return &DiskCache{dir: dir}, nil
}

func (c *DiskCache) Dir() string {
	if c == nil {
		return ""
	}
	return c.dir
}

func (c *DiskCache) pathFor(key project.Digest) string {
	// results live in their own subdirectory so clean can drop them
	return filepath.Join(c.dir, "results", key.String()+".mp")
}

// Put serializes and writes a payload to the disk cache.
func (c *DiskCache) Put(key project.Digest, payload *DiskPayload) error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	p := c.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(p), "tmp-*")
	if err != nil {
		return err
	}
	tmp := f.Name()
	defer func() {
		// after a successful rename the temp name is gone
		if rmErr := os.Remove(tmp); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "failed to remove temp file: %v\n", rmErr)
		}
	}()

	payload.Schema = diskCacheSchemaVersion
	payload.Key = key
	if err := msgpack.NewEncoder(f).Encode(payload); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	// atomic replace
	return os.Rename(tmp, p)
}

// Get reads a payload. Entries written by another schema version or for
// another key count as misses.
func (c *DiskCache) Get(key project.Digest, out *DiskPayload) (bool, error) {
	if c == nil {
		return false, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	f, err := os.Open(c.pathFor(key))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	defer f.Close()

	if err := msgpack.NewDecoder(f).Decode(out); err != nil {
		return false, fmt.Errorf("decode cache entry: %w", err)
	}
	if out.Schema != diskCacheSchemaVersion || out.Key != key {
		return false, nil
	}
	return true, nil
}

// DropAll invalidates the cache, useful after format changes.
func (c *DiskCache) DropAll() error {
	if c == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	// rename the directory first, then remove it
	old := c.dir + ".old-" + time.Now().Format("20060102150405")
	if err := os.Rename(c.dir, old); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return os.RemoveAll(old)
}

// resultToDiskPayload drops fixes; a cached run is only reused when none are requested.
func resultToDiskPayload(res *engine.Result) *DiskPayload {
	p := &DiskPayload{
		Diagnostics:   make([]CachedDiagnostic, len(res.Diagnostics)),
		Units:         res.Stats.Units,
		Members:       res.Stats.Members,
		Subscriptions: res.Stats.Subscriptions,
		Skipped:       res.Stats.Skipped,
		Dropped:       res.Stats.Dropped,
	}
	for i, d := range res.Diagnostics {
		cd := CachedDiagnostic{
			Severity: uint8(d.Severity),
			Code:     uint16(d.Code),
			Message:  d.Message,
			Subject:  d.Subject,
			Primary:  toCachedSpan(d.Primary),
		}
		for _, n := range d.Notes {
			cd.Notes = append(cd.Notes, CachedNote{Span: toCachedSpan(n.Span), Msg: n.Msg})
		}
		p.Diagnostics[i] = cd
	}
	return p
}

// diskPayloadToResult restores a result; Findings stay empty.
func diskPayloadToResult(p *DiskPayload) *engine.Result {
	res := &engine.Result{
		Diagnostics: make([]diag.Diagnostic, len(p.Diagnostics)),
		Stats: engine.Stats{
			Units:         p.Units,
			Analyzed:      p.Units,
			Members:       p.Members,
			Subscriptions: p.Subscriptions,
			Skipped:       p.Skipped,
			Dropped:       p.Dropped,
			Findings:      make(map[diag.Code]int, len(diag.AllRules)),
		},
	}
	for i, cd := range p.Diagnostics {
		d := diag.Diagnostic{
			Severity: diag.Severity(cd.Severity),
			Code:     diag.Code(cd.Code),
			Message:  cd.Message,
			Subject:  cd.Subject,
			Primary:  fromCachedSpan(cd.Primary),
		}
		for _, n := range cd.Notes {
			d.Notes = append(d.Notes, diag.Note{Span: fromCachedSpan(n.Span), Msg: n.Msg})
		}
		res.Diagnostics[i] = d
		res.Stats.Findings[d.Code]++
	}
	return res
}

func toCachedSpan(s source.Span) CachedSpan {
	return CachedSpan{File: uint32(s.File), Start: s.Start, End: s.End}
}

func fromCachedSpan(s CachedSpan) source.Span {
	return source.Span{File: source.FileID(s.File), Start: s.Start, End: s.End}
}
