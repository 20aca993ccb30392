// Package diffpatch wraps diff-match-patch into the reversible text
// patch codec used by the content history engine. Patches are stored as
// the diff-match-patch text format (URL-encoded hunks), which is
// Unicode-safe and self-delimiting.
package diffpatch

import (
	"errors"
	"fmt"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// ErrPatchParse means the stored patch text could not be parsed at all.
var ErrPatchParse = errors.New("patch parse failed")

// ErrPatchApply means one or more hunks failed to apply cleanly.
var ErrPatchApply = errors.New("patch apply failed")

// Codec computes and applies reverse patches between content versions.
type Codec struct {
	dmp *diffmatchpatch.DiffMatchPatch
}

// New creates a Codec. The diff timeout is disabled so identical inputs
// always produce identical patches regardless of machine speed.
func New() *Codec {
	dmp := diffmatchpatch.New()
	dmp.DiffTimeout = 0
	return &Codec{dmp: dmp}
}

// Make returns a serialized patch P such that Apply(P, newer) == older.
// An empty result means the two strings are identical.
func (c *Codec) Make(newer, older string) string {
	diffs := c.dmp.DiffMain(newer, older, false)
	patches := c.dmp.PatchMake(newer, diffs)
	return c.dmp.PatchToText(patches)
}

// Apply applies a serialized patch to newer and returns the older
// content. The second return value reports per-hunk application
// success; on a parse failure it is nil and the error is ErrPatchParse.
// On any hunk failure the error wraps ErrPatchApply and the returned
// string is the input unchanged, so callers can continue with the
// unmodified working content.
func (c *Codec) Apply(patch, newer string) (string, []bool, error) {
	patches, err := c.dmp.PatchFromText(patch)
	if err != nil {
		return newer, nil, fmt.Errorf("%w: %v", ErrPatchParse, err)
	}
	if len(patches) == 0 {
		return newer, nil, nil
	}
	result, applied := c.dmp.PatchApply(patches, newer)
	for i, ok := range applied {
		if !ok {
			return newer, applied, fmt.Errorf("%w: hunk %d of %d", ErrPatchApply, i+1, len(applied))
		}
	}
	return result, applied, nil
}
