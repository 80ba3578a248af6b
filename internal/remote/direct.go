// Package remote holds downloader implementations for stores that expose
// direct (presigned or exported) URLs, bypassing any vendor CLI.
package remote

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/imroc/req/v3"

	"github.com/Beefybananas/mega-scraper/internal/mirror"
	"github.com/Beefybananas/mega-scraper/internal/version"
)

const defaultTimeout = 10 * time.Minute

// DirectDownloader fetches file refs that are plain HTTP(S) URLs.
type DirectDownloader struct {
	client *req.Client
}

func NewDirectDownloader() *DirectDownloader {
	client := req.C().
		SetUserAgent(version.UserAgent()).
		SetTimeout(defaultTimeout)
	return &DirectDownloader{client: client}
}

// Fetch streams the URL body to dst and returns the byte count. Status
// codes map onto the engine taxonomy: 401/403 are auth rejections, the
// rest are remote unavailability.
func (d *DirectDownloader) Fetch(ctx context.Context, ref string, dst io.Writer) (int64, error) {
	resp, err := d.client.R().
		SetContext(ctx).
		DisableAutoReadResponse().
		Get(ref)
	if err != nil {
		return 0, fmt.Errorf("%w: get %q: %v", mirror.ErrRemoteUnavailable, ref, err)
	}
	defer resp.Body.Close()

	if resp.IsErrorState() {
		switch resp.GetStatusCode() {
		case 401, 403:
			return 0, fmt.Errorf("%w: get %q: status %d", mirror.ErrRemoteAuth, ref, resp.GetStatusCode())
		default:
			return 0, fmt.Errorf("%w: get %q: status %d", mirror.ErrRemoteUnavailable, ref, resp.GetStatusCode())
		}
	}

	n, err := io.Copy(dst, resp.Body)
	if err != nil {
		// a stream cut mid-body is indistinguishable from truncation
		return n, fmt.Errorf("%w: get %q: %v", mirror.ErrIntegrity, ref, err)
	}
	return n, nil
}
