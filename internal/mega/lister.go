package mega

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Beefybananas/mega-scraper/internal/mirror"
)

// expected listing shape, one node per line:
//
//	d---    -          - 2023-01-05T10:11:12 Minis
//	----    1       4523 2023-01-05T10:11:12 dragon v2.stl
//
// columns: flags (type/export/duration/shared), version, size, ISO date,
// name. Names may contain spaces, so the name is everything after the date.
var nodeLine = regexp.MustCompile(
	`^([bdirx-])([e-])([pt-])([is-])\s+(\d+|-)\s+(\d+|-)\s+(\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2})\s(.*)$`,
)

const listTimeLayout = "2006-01-02T15:04:05"

// List runs `mega-ls -l` for one directory level and parses the long
// listing into entries. dirPath is relative to the exported folder root.
func (c *Client) List(ctx context.Context, dirPath string) ([]*mirror.ListEntry, error) {
	remotePath := "/" + dirPath

	stdout, stderr, code, err := c.run(ctx, "mega-ls", "-l", remotePath, "--time-format=ISO6081_WITH_TIME")
	if err != nil {
		return nil, fmt.Errorf("%w: mega-ls %q: %v", mirror.ErrRemoteUnavailable, remotePath, err)
	}
	if code != 0 {
		return nil, fmt.Errorf("%w: mega-ls %q exit %d: %s", classify(stdout, stderr), remotePath, code, c.describeError(ctx, code, stdout, stderr))
	}

	return parseListing(dirPath, string(stdout))
}

// parseListing converts mega-ls long output into list entries. Lines that
// don't match the node shape (headers, blank lines) are skipped, as are
// node types outside the mirror's scope (inbox, rubbish, unsupported).
func parseListing(dirPath, out string) ([]*mirror.ListEntry, error) {
	var entries []*mirror.ListEntry

	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		m := nodeLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}

		nodeType := m[1]
		var kind mirror.Kind
		switch nodeType {
		case "d":
			kind = mirror.KindDir
		case "-":
			kind = mirror.KindFile
		default:
			// r=root, i=inbox, b=rubbish, x=unsupported
			slog.Debug("mega-ls skip node", "type", nodeType, "line", line)
			continue
		}

		size := int64(0)
		if m[6] != "-" {
			parsed, err := strconv.ParseInt(m[6], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: bad size %q in %q", mirror.ErrRemoteInconsistent, m[6], line)
			}
			size = parsed
		}

		modTime, err := time.ParseInLocation(listTimeLayout, m[7], time.Local)
		if err != nil {
			return nil, fmt.Errorf("%w: bad timestamp %q in %q", mirror.ErrRemoteInconsistent, m[7], line)
		}

		name := strings.TrimRight(m[8], " ")
		if name == "" {
			continue
		}

		ref := name
		if dirPath != "" {
			ref = dirPath + "/" + name
		}

		entries = append(entries, &mirror.ListEntry{
			Name:    name,
			Kind:    kind,
			Size:    size,
			ModTime: modTime,
			Ref:     ref,
		})
	}

	return entries, nil
}
