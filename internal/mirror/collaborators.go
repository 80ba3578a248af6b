package mirror

import (
	"context"
	"io"
	"time"
)

// ListEntry is one row of a remote directory listing, as returned by a
// Lister for a single level.
type ListEntry struct {
	Name    string
	Kind    Kind
	Size    int64
	Hash    string
	ModTime time.Time
	Ref     string
}

// Lister exposes the remote store's per-directory listing primitive.
// dirPath is slash-separated relative to the sync root; "" is the root.
// Implementations fail with ErrRemoteUnavailable or ErrRemoteAuth.
type Lister interface {
	List(ctx context.Context, dirPath string) ([]*ListEntry, error)
}

// Downloader turns a remote file ref into bytes. It writes the content to
// dst and returns the byte count. Implementations fail with
// ErrRemoteUnavailable, ErrRemoteAuth or ErrIntegrity.
type Downloader interface {
	Fetch(ctx context.Context, ref string, dst io.Writer) (int64, error)
}
