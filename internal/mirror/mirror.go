package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/Beefybananas/mega-scraper/internal/utils"
)

const (
	stateDirName     = ".megascraper"
	manifestFileName = "manifest.db"
	lockFileName     = "run.lock"
)

// Options configures one sync pass.
type Options struct {
	// Concurrency is the fetch worker pool size. Zero means the default.
	Concurrency int
	// Prune deletes local files no longer present remotely.
	Prune bool
	// DryRun computes and reports the action list without executing it.
	DryRun bool
	// MaxRetries bounds per-fetch retry attempts. Zero means the
	// default; negative disables retries.
	MaxRetries int
	// ListParallel bounds concurrent remote directory listings.
	ListParallel int
}

// Mirror runs discrete, re-invocable sync passes of a remote store into a
// local directory. The local directory is a read-only mirror: local files
// are never a source of truth.
type Mirror struct {
	root       string
	lister     Lister
	downloader Downloader
	store      *ManifestStore
	opts       Options
	lock       *flock.Flock
}

func New(localRoot string, lister Lister, downloader Downloader, opts Options) (*Mirror, error) {
	root, err := utils.ResolvePath(localRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve local root: %w", err)
	}
	if err := utils.EnsureDir(root); err != nil {
		return nil, fmt.Errorf("create local root: %w", err)
	}

	stateDir := filepath.Join(root, stateDirName)
	if err := utils.EnsureDir(stateDir); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}

	switch {
	case opts.MaxRetries == 0:
		opts.MaxRetries = DefaultMaxRetries
	case opts.MaxRetries < 0:
		opts.MaxRetries = 0
	}

	return &Mirror{
		root:       root,
		lister:     lister,
		downloader: downloader,
		store:      NewManifestStore(filepath.Join(stateDir, manifestFileName)),
		opts:       opts,
		lock:       flock.New(filepath.Join(stateDir, lockFileName)),
	}, nil
}

// Root returns the resolved local mirror directory.
func (m *Mirror) Root() string {
	return m.root
}

// Sync runs one full pass: walk the remote, diff against the manifest,
// execute the actions, finalize the manifest. Partial failures land in
// the report; only run-level preconditions (lock, auth, manifest store
// init) return an error.
func (m *Mirror) Sync(ctx context.Context) (*Report, error) {
	locked, err := m.lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !locked {
		return nil, ErrLocked
	}
	defer m.lock.Unlock()

	if err := m.store.Open(); err != nil {
		if !errors.Is(err, ErrManifestCorrupt) {
			return nil, err
		}
		slog.Warn("manifest unreadable, starting empty", "error", err)
		if err := m.store.Reset(); err != nil {
			return nil, err
		}
	}
	defer m.store.Close()

	report := NewReport()
	report.DryRun = m.opts.DryRun

	manifest, err := m.store.Load()
	if err != nil {
		if !errors.Is(err, ErrManifestCorrupt) {
			return nil, err
		}
		slog.Warn("manifest corrupt, starting empty", "error", err)
		if err := m.store.Reset(); err != nil {
			return nil, err
		}
		manifest = NewManifest(0)
	}
	slog.Info("manifest loaded", "generation", manifest.Generation, "entries", manifest.Len())

	tWalk := time.Now()
	walk, err := NewWalker(m.lister, m.opts.ListParallel).Build(ctx)
	if err != nil {
		return nil, fmt.Errorf("walk remote tree: %w", err)
	}
	slog.Info("remote tree", "entries", walk.Tree.Len(), "took", time.Since(tWalk))
	for _, inc := range walk.Inconsistent {
		report.recordFailure(inc)
	}

	// the engine's own state lives inside the root; a remote path with
	// that name must never be mirrored over the manifest and lock files
	if _, ok := walk.Tree.Get(stateDirName); ok {
		slog.Warn("remote path shadows the state dir, ignoring it", "path", stateDirName)
		walk.Tree.RemoveSubtree(stateDirName)
	}

	actions := Diff(walk.Tree, manifest, DiffOptions{Prune: m.opts.Prune})
	slog.Info("diff", "actions", len(actions))

	if m.opts.DryRun {
		for _, a := range actions {
			if a.Op == OpSkip {
				continue
			}
			report.Planned = append(report.Planned, a)
		}
		report.Generation = manifest.Generation
		report.Duration = time.Since(report.StartedAt)
		return report, nil
	}

	sched := NewScheduler(m.root, m.downloader, m.store, manifest, m.opts.Concurrency, m.opts.MaxRetries)
	sched.Execute(ctx, actions, report)

	// commit whatever completed, even on a cancelled run; partial
	// progress is never lost
	manifest.Generation++
	if err := m.store.Finalize(manifest); err != nil {
		return nil, fmt.Errorf("finalize manifest: %w", err)
	}
	report.Generation = manifest.Generation
	report.Duration = time.Since(report.StartedAt)

	if err := ctx.Err(); err != nil {
		slog.Warn("sync interrupted", "completed_fetches", report.Fetch.Succeeded)
		return report, err
	}
	return report, nil
}
