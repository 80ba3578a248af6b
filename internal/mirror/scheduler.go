package mirror

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"hash"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/Beefybananas/mega-scraper/internal/utils"
)

const (
	DefaultConcurrency = 4
	DefaultMaxRetries  = 3

	retryBaseDelay = 500 * time.Millisecond
	partSuffix     = ".part"
)

// Scheduler applies an action list against the local filesystem: mkdirs
// and prunes serially in list order, fetches through a bounded worker
// pool. Every fetch is bracketed by Pending/Complete manifest commits so
// an interrupt at any point is recoverable on the next run.
type Scheduler struct {
	root       string
	downloader Downloader
	store      *ManifestStore
	manifest   *Manifest
	workers    int
	maxRetries int

	report *Report    // set for the duration of Execute
	mu     sync.Mutex // guards manifest and report mutation from workers
}

func NewScheduler(root string, downloader Downloader, store *ManifestStore, manifest *Manifest, workers, maxRetries int) *Scheduler {
	if workers <= 0 {
		workers = DefaultConcurrency
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Scheduler{
		root:       root,
		downloader: downloader,
		store:      store,
		manifest:   manifest,
		workers:    workers,
		maxRetries: maxRetries,
	}
}

// Execute runs the action list and fills in the report. A cancelled
// context stops dispatching new work; whatever completed stays committed.
func (s *Scheduler) Execute(ctx context.Context, actions []*Action, report *Report) {
	s.report = report
	prePrunes, mkdirs, fetches, skips, postPrunes := partition(actions)

	report.Skip.Attempted = len(skips)
	report.Skip.Succeeded = len(skips)

	// prunes forced by kind changes come before anything is created in
	// their place
	s.runPrunes(ctx, prePrunes, report)
	s.runMkDirs(ctx, mkdirs, report)
	s.runFetches(ctx, fetches, report)

	if ctx.Err() != nil {
		// don't prune on a cancelled run; the action list may be
		// partially applied but nothing committed is lost
		return
	}
	s.runPrunes(ctx, postPrunes, report)
}

func partition(actions []*Action) (prePrunes, mkdirs, fetches, skips, postPrunes []*Action) {
	seenFile := false
	for _, a := range actions {
		switch a.Op {
		case OpPrune:
			if seenFile {
				postPrunes = append(postPrunes, a)
			} else {
				prePrunes = append(prePrunes, a)
			}
		case OpMkDir:
			seenFile = true
			mkdirs = append(mkdirs, a)
		case OpFetch:
			seenFile = true
			fetches = append(fetches, a)
		case OpSkip:
			skips = append(skips, a)
		}
	}
	return
}

// runMkDirs applies directory creations serially. The diff emits them
// parents-first, so list order is the dependency order.
func (s *Scheduler) runMkDirs(ctx context.Context, mkdirs []*Action, report *Report) {
	for _, a := range mkdirs {
		if ctx.Err() != nil {
			return
		}
		report.MkDir.Attempted++

		localPath := filepath.Join(s.root, filepath.FromSlash(a.Path))
		if err := os.MkdirAll(localPath, 0o755); err != nil {
			report.MkDir.Failed++
			report.recordFailure(&ActionError{Path: a.Path, Op: OpMkDir, Err: err})
			slog.Error("sync", "op", OpMkDir, "status", "failed", "path", a.Path, "error", err)
			continue
		}
		if err := s.commit(a.Entry, StatusComplete); err != nil {
			report.MkDir.Failed++
			report.recordFailure(&ActionError{Path: a.Path, Op: OpMkDir, Err: err})
			continue
		}
		report.MkDir.Succeeded++
		slog.Debug("sync", "op", OpMkDir, "status", "completed", "path", a.Path)
	}
}

type fetchResult struct {
	action *Action
	bytes  int64
	err    error
}

// runFetches downloads files through a fixed worker pool. Dispatch order
// prefers shallow, small files so the mirror fills in breadth-first.
func (s *Scheduler) runFetches(ctx context.Context, fetches []*Action, report *Report) {
	if len(fetches) == 0 {
		return
	}

	ordered := make([]*Action, len(fetches))
	copy(ordered, fetches)
	sort.Slice(ordered, func(i, j int) bool {
		pi, pj := fetchPriority(ordered[i]), fetchPriority(ordered[j])
		if pi != pj {
			return pi < pj
		}
		return ordered[i].Path < ordered[j].Path
	})

	jobs := make(chan *Action)
	results := make(chan *fetchResult, len(ordered))

	var wg sync.WaitGroup
	wg.Add(s.workers)
	for i := 0; i < s.workers; i++ {
		go func() {
			defer wg.Done()
			for a := range jobs {
				if ctx.Err() != nil {
					results <- &fetchResult{action: a, err: ctx.Err()}
					continue
				}
				n, err := s.fetchWithRetry(ctx, a)
				results <- &fetchResult{action: a, bytes: n, err: err}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, a := range ordered {
			select {
			case <-ctx.Done():
				return
			case jobs <- a:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	for res := range results {
		a := res.action
		if errors.Is(res.err, context.Canceled) && ctx.Err() != nil {
			// never dispatched or aborted mid-flight; not a failure,
			// the next run picks it up via the Pending status
			continue
		}
		report.Fetch.Attempted++
		if res.err != nil {
			report.Fetch.Failed++
			report.recordFailure(&ActionError{Path: a.Path, Op: OpFetch, Err: res.err})
			slog.Error("sync", "op", OpFetch, "status", "failed", "path", a.Path, "error", res.err)
			continue
		}
		report.Fetch.Succeeded++
		report.BytesFetched += res.bytes
		slog.Info("sync", "op", OpFetch, "status", "completed", "path", a.Path, "size", humanize.Bytes(uint64(res.bytes)))
	}
}

// fetchPriority orders dispatch: shallow paths first, then small files.
func fetchPriority(a *Action) int {
	return PathDepth(a.Path)*1_000_000_000 + int(min(a.Entry.Fingerprint.Size, 999_999_999))
}

// fetchWithRetry marks the entry Pending, then attempts the download with
// exponential backoff. Verification failures and remote outages retry;
// auth and local errors do not.
func (s *Scheduler) fetchWithRetry(ctx context.Context, a *Action) (int64, error) {
	// a local file that already matches the expected hash is adopted in
	// place instead of re-downloaded; this is what makes recovery from a
	// manifest reset cheap when the mirror itself survived
	if want := a.Entry.Fingerprint; want.Hash != "" {
		localPath := filepath.Join(s.root, filepath.FromSlash(a.Path))
		if sum, err := utils.FileHash(localPath); err == nil && sum == want.Hash {
			slog.Debug("sync", "op", OpFetch, "status", "adopted", "path", a.Path)
			return 0, s.commit(a.Entry, StatusComplete)
		}
	}

	// refetching over a previously completed path is a replacement
	if prev, ok := s.manifestGet(a.Path); ok && prev.Status == StatusComplete {
		s.recordReplaced(a.Path)
	}

	// the Pending commit is what makes an interrupted download
	// detectable on the next run
	if err := s.commit(a.Entry, StatusPending); err != nil {
		return 0, err
	}

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay << (attempt - 1)
			slog.Debug("sync retry", "path", a.Path, "attempt", attempt, "delay", delay)
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(delay):
			}
		}

		n, err := s.fetchOne(ctx, a)
		if err == nil {
			return n, s.commit(a.Entry, StatusComplete)
		}
		lastErr = err
		if !retryable(err) || ctx.Err() != nil {
			break
		}
	}
	return 0, lastErr
}

// fetchOne downloads to a temporary sibling, verifies size and hash
// against the expected fingerprint, then renames into place. The rename
// is what makes concurrent writers to sibling paths safe without a lock.
func (s *Scheduler) fetchOne(ctx context.Context, a *Action) (int64, error) {
	localPath := filepath.Join(s.root, filepath.FromSlash(a.Path))
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return 0, err
	}

	tmpPath := localPath + partSuffix
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, err
	}

	var hasher hash.Hash
	var dst io.Writer = tmp
	want := a.Entry.Fingerprint
	if want.Hash != "" {
		hasher = md5.New()
		dst = io.MultiWriter(tmp, hasher)
	}

	n, err := s.downloader.Fetch(ctx, a.Entry.Ref, dst)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = verify(n, hasher, want)
	}
	if err != nil {
		os.Remove(tmpPath)
		return 0, err
	}

	if err := os.Rename(tmpPath, localPath); err != nil {
		os.Remove(tmpPath)
		return 0, err
	}
	// stamp the remote mod time so the mirror can be compared without
	// the manifest
	if !want.ModTime.IsZero() {
		_ = os.Chtimes(localPath, want.ModTime, want.ModTime)
	}
	return n, nil
}

func verify(n int64, hasher hash.Hash, want Fingerprint) error {
	if want.Size >= 0 && n != want.Size {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrIntegrity, n, want.Size)
	}
	if hasher != nil {
		got := fmt.Sprintf("%x", hasher.Sum(nil))
		if got != want.Hash {
			return fmt.Errorf("%w: got hash %s, want %s", ErrIntegrity, got, want.Hash)
		}
	}
	return nil
}

// runPrunes removes local paths in list order (the diff emits them
// deepest-first). Failures are recorded but never abort the run.
func (s *Scheduler) runPrunes(ctx context.Context, prunes []*Action, report *Report) {
	for _, a := range prunes {
		if ctx.Err() != nil {
			return
		}
		report.Prune.Attempted++

		localPath := filepath.Join(s.root, filepath.FromSlash(a.Path))
		var err error
		if a.Entry != nil && a.Entry.IsDir() {
			// the mirror is authoritative: stray local files under a
			// pruned directory go with it
			err = os.RemoveAll(localPath)
		} else {
			err = os.Remove(localPath)
			if errors.Is(err, os.ErrNotExist) {
				err = nil
			}
		}
		if err != nil {
			report.Prune.Failed++
			report.recordFailure(&ActionError{Path: a.Path, Op: OpPrune, Err: err})
			slog.Error("sync", "op", OpPrune, "status", "failed", "path", a.Path, "error", err)
			continue
		}

		if err := s.delete(a.Path); err != nil {
			report.Prune.Failed++
			report.recordFailure(&ActionError{Path: a.Path, Op: OpPrune, Err: err})
			continue
		}
		report.Prune.Succeeded++
		slog.Info("sync", "op", OpPrune, "status", "completed", "path", a.Path)
	}
}

func (s *Scheduler) commit(e *Entry, status EntryStatus) error {
	if err := s.store.Commit(e, status); err != nil {
		return err
	}
	s.mu.Lock()
	s.manifest.Set(e, status)
	s.mu.Unlock()
	return nil
}

func (s *Scheduler) delete(path string) error {
	if err := s.store.Delete(path); err != nil {
		return err
	}
	s.mu.Lock()
	s.manifest.Delete(path)
	s.mu.Unlock()
	return nil
}

func (s *Scheduler) manifestGet(path string) (*ManifestEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.manifest.Get(path)
	return e, ok
}

func (s *Scheduler) recordReplaced(path string) {
	s.mu.Lock()
	s.report.Replaced = append(s.report.Replaced, path)
	s.mu.Unlock()
}
