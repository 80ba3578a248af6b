package mirror

import "sort"

type EntryStatus string

const (
	// StatusComplete means the entry was fully materialized and renamed
	// into place.
	StatusComplete EntryStatus = "complete"
	// StatusPending means a download was started but never confirmed.
	// Pending content cannot be trusted and is always refetched.
	StatusPending EntryStatus = "pending"
)

// ManifestEntry is one locally recorded entry plus its durability status.
type ManifestEntry struct {
	Entry
	Status EntryStatus
}

// Manifest is the durable record of what was last materialized locally,
// versioned by a monotonically increasing generation counter. It is the
// only durable state; deleting it just forces a full re-download.
type Manifest struct {
	Generation uint64
	entries    map[string]*ManifestEntry
}

func NewManifest(generation uint64) *Manifest {
	return &Manifest{
		Generation: generation,
		entries:    make(map[string]*ManifestEntry),
	}
}

func (m *Manifest) Len() int {
	return len(m.entries)
}

func (m *Manifest) Get(path string) (*ManifestEntry, bool) {
	e, ok := m.entries[path]
	return e, ok
}

func (m *Manifest) Set(e *Entry, status EntryStatus) {
	m.entries[e.Path] = &ManifestEntry{Entry: *e, Status: status}
}

func (m *Manifest) Delete(path string) {
	delete(m.entries, path)
}

// Paths returns all recorded paths in lexical order.
func (m *Manifest) Paths() []string {
	paths := make([]string, 0, len(m.entries))
	for p := range m.entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

func (m *Manifest) Entries() map[string]*ManifestEntry {
	return m.entries
}
