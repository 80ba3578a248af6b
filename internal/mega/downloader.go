package mega

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	"github.com/Beefybananas/mega-scraper/internal/mirror"
)

// Fetch downloads one remote file via mega-get into a scratch directory
// and streams the bytes to dst. MEGAcmd only writes to the filesystem, so
// the stream contract is satisfied by copying out of the scratch file.
func (c *Client) Fetch(ctx context.Context, ref string, dst io.Writer) (int64, error) {
	scratch, err := os.MkdirTemp("", "megascraper-get-*")
	if err != nil {
		return 0, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	remotePath := "/" + ref
	stdout, stderr, code, err := c.run(ctx, "mega-get", remotePath, scratch, "--ignore-quota-warn")
	if err != nil {
		return 0, fmt.Errorf("%w: mega-get %q: %v", mirror.ErrRemoteUnavailable, remotePath, err)
	}
	if code != 0 {
		return 0, fmt.Errorf("%w: mega-get %q exit %d: %s", classify(stdout, stderr), remotePath, code, c.describeError(ctx, code, stdout, stderr))
	}

	local := filepath.Join(scratch, path.Base(ref))
	f, err := os.Open(local)
	if err != nil {
		return 0, fmt.Errorf("%w: mega-get produced no file for %q: %v", mirror.ErrIntegrity, remotePath, err)
	}
	defer f.Close()

	n, err := io.Copy(dst, f)
	if err != nil {
		return n, fmt.Errorf("copy %q: %w", remotePath, err)
	}
	return n, nil
}
