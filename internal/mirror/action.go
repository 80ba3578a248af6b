package mirror

import "fmt"

type ActionOp string

const (
	OpMkDir ActionOp = "mkdir"
	OpFetch ActionOp = "fetch"
	OpSkip  ActionOp = "skip"
	OpPrune ActionOp = "prune"
)

// Action is one unit of sync work. Entry is the remote entry for
// MkDir/Fetch/Skip and the recorded manifest entry for Prune.
type Action struct {
	Op    ActionOp `json:"op"`
	Path  string   `json:"path"`
	Entry *Entry   `json:"-"`
}

func (a *Action) String() string {
	return fmt.Sprintf("%s(%s)", a.Op, a.Path)
}
