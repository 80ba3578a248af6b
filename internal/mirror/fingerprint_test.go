package mirror

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEqual(t *testing.T) {
	mod := time.Date(2025, 3, 14, 12, 30, 45, 0, time.UTC)

	tests := []struct {
		name     string
		remote   *Entry
		recorded *Entry
		want     bool
	}{
		{
			name: "nil entries never equal",
			want: false,
		},
		{
			name:     "kind mismatch",
			remote:   &Entry{Path: "a", Kind: KindFile},
			recorded: &Entry{Path: "a", Kind: KindDir},
			want:     false,
		},
		{
			name:     "dirs equal by presence",
			remote:   &Entry{Path: "a", Kind: KindDir},
			recorded: &Entry{Path: "a", Kind: KindDir},
			want:     true,
		},
		{
			name:     "matching hashes win",
			remote:   &Entry{Path: "a", Kind: KindFile, Fingerprint: Fingerprint{Size: 1, Hash: "abc", ModTime: mod}},
			recorded: &Entry{Path: "a", Kind: KindFile, Fingerprint: Fingerprint{Size: 2, Hash: "abc", ModTime: mod.Add(time.Hour)}},
			want:     true,
		},
		{
			name:     "differing hashes lose regardless of size and mtime",
			remote:   &Entry{Path: "a", Kind: KindFile, Fingerprint: Fingerprint{Size: 1, Hash: "abc", ModTime: mod}},
			recorded: &Entry{Path: "a", Kind: KindFile, Fingerprint: Fingerprint{Size: 1, Hash: "def", ModTime: mod}},
			want:     false,
		},
		{
			name:     "missing hash falls back to size and mtime",
			remote:   &Entry{Path: "a", Kind: KindFile, Fingerprint: Fingerprint{Size: 7, ModTime: mod}},
			recorded: &Entry{Path: "a", Kind: KindFile, Fingerprint: Fingerprint{Size: 7, Hash: "abc", ModTime: mod}},
			want:     true,
		},
		{
			name:     "size mismatch",
			remote:   &Entry{Path: "a", Kind: KindFile, Fingerprint: Fingerprint{Size: 7, ModTime: mod}},
			recorded: &Entry{Path: "a", Kind: KindFile, Fingerprint: Fingerprint{Size: 8, ModTime: mod}},
			want:     false,
		},
		{
			name:     "mtime mismatch",
			remote:   &Entry{Path: "a", Kind: KindFile, Fingerprint: Fingerprint{Size: 7, ModTime: mod}},
			recorded: &Entry{Path: "a", Kind: KindFile, Fingerprint: Fingerprint{Size: 7, ModTime: mod.Add(time.Minute)}},
			want:     false,
		},
		{
			name:     "sub-second mtime drift tolerated",
			remote:   &Entry{Path: "a", Kind: KindFile, Fingerprint: Fingerprint{Size: 7, ModTime: mod}},
			recorded: &Entry{Path: "a", Kind: KindFile, Fingerprint: Fingerprint{Size: 7, ModTime: mod.Add(300 * time.Millisecond)}},
			want:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Equal(tt.remote, tt.recorded))
		})
	}
}
