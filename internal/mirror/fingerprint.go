package mirror

import "time"

// Equal reports whether a remote entry and a manifest entry describe the
// same content. Pure; the diff engine relies on this being free of I/O.
//
// Precedence: kind must match; directories are equal by presence alone.
// For files, content hashes win when both sides carry one. Otherwise the
// size AND the modification time must match. Listing timestamps only have
// second resolution (MEGAcmd emits ISO times without fractions), so mod
// times are compared truncated to whole seconds.
func Equal(remote, recorded *Entry) bool {
	if remote == nil || recorded == nil {
		return false
	}
	if remote.Kind != recorded.Kind {
		return false
	}
	if remote.IsDir() {
		return true
	}

	rf, lf := remote.Fingerprint, recorded.Fingerprint
	if rf.Hash != "" && lf.Hash != "" {
		return rf.Hash == lf.Hash
	}
	if rf.Size != lf.Size {
		return false
	}
	return rf.ModTime.Truncate(time.Second).Equal(lf.ModTime.Truncate(time.Second))
}
