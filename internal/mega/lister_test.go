package mega

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Beefybananas/mega-scraper/internal/mirror"
)

const sampleListing = `Minis:
FLAGS  VERS       SIZE                 DATE NAME
d---      -          - 2023-01-05T10:11:12 Dragons
d-t-      -          - 2023-02-10T08:00:00 Shared Terrain
----      1       4523 2023-01-05T10:11:12 dragon v2.stl
--t-      3    1048576 2023-03-01T23:59:59 base.stl
r---      -          - 2023-01-01T00:00:00 /
`

func TestParseListing(t *testing.T) {
	entries, err := parseListing("Minis", sampleListing)
	require.NoError(t, err)
	require.Len(t, entries, 4)

	assert.Equal(t, "Dragons", entries[0].Name)
	assert.Equal(t, mirror.KindDir, entries[0].Kind)
	assert.Equal(t, int64(0), entries[0].Size)
	assert.Equal(t, "Minis/Dragons", entries[0].Ref)

	// names keep their internal spaces
	assert.Equal(t, "Shared Terrain", entries[1].Name)
	assert.Equal(t, mirror.KindDir, entries[1].Kind)

	assert.Equal(t, "dragon v2.stl", entries[2].Name)
	assert.Equal(t, mirror.KindFile, entries[2].Kind)
	assert.Equal(t, int64(4523), entries[2].Size)
	assert.Equal(t, "Minis/dragon v2.stl", entries[2].Ref)
	want := time.Date(2023, 1, 5, 10, 11, 12, 0, time.Local)
	assert.True(t, entries[2].ModTime.Equal(want))

	assert.Equal(t, "base.stl", entries[3].Name)
	assert.Equal(t, int64(1048576), entries[3].Size)
}

func TestParseListingRootLevel(t *testing.T) {
	entries, err := parseListing("", "----      1         10 2023-01-05T10:11:12 top.bin\n")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "top.bin", entries[0].Ref)
}

func TestParseListingEmpty(t *testing.T) {
	entries, err := parseListing("", "Minis:\nFLAGS  VERS  SIZE  DATE NAME\n")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestParseListingBadTimestampRejected(t *testing.T) {
	_, err := parseListing("", "----      1         10 2023-13-99T10:11:12 x.bin\n")
	require.ErrorIs(t, err, mirror.ErrRemoteInconsistent)
}

// scriptRunner replays canned command results keyed by binary name.
type scriptRunner struct {
	handler  func(name string, args []string) (stdout, stderr []byte, code int, err error)
	startErr error
	calls    [][]string
	starts   [][]string
}

func (r *scriptRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, int, error) {
	r.calls = append(r.calls, append([]string{name}, args...))
	return r.handler(name, args)
}

func (r *scriptRunner) Start(name string, args ...string) error {
	r.starts = append(r.starts, append([]string{name}, args...))
	return r.startErr
}

func TestClientList(t *testing.T) {
	runner := &scriptRunner{
		handler: func(name string, args []string) ([]byte, []byte, int, error) {
			require.Equal(t, "mega-ls", name)
			require.Equal(t, []string{"-l", "/Minis", "--time-format=ISO6081_WITH_TIME"}, args)
			return []byte(sampleListing), nil, 0, nil
		},
	}
	c := NewClient("https://mega.nz/folder/abc#key", WithRunner(runner))

	entries, err := c.List(context.Background(), "Minis")
	require.NoError(t, err)
	assert.Len(t, entries, 4)
}

func TestClientListAuthError(t *testing.T) {
	runner := &scriptRunner{
		handler: func(name string, args []string) ([]byte, []byte, int, error) {
			if name == "mega-ls" {
				return nil, []byte("Not logged in"), 57, nil
			}
			// mega-errorcode lookup during error description
			return []byte("login required"), nil, 0, nil
		},
	}
	c := NewClient("url", WithRunner(runner))

	_, err := c.List(context.Background(), "")
	require.ErrorIs(t, err, mirror.ErrRemoteAuth)
}

func TestClientListUnavailable(t *testing.T) {
	runner := &scriptRunner{
		handler: func(name string, args []string) ([]byte, []byte, int, error) {
			if name == "mega-ls" {
				return nil, []byte("Unable to reach MEGA servers"), 3, nil
			}
			return nil, nil, 1, nil
		},
	}
	c := NewClient("url", WithRunner(runner))

	_, err := c.List(context.Background(), "")
	require.ErrorIs(t, err, mirror.ErrRemoteUnavailable)
}
