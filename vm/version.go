package vm

import (
	"github.com/deepnoodle-ai/zimvm/codebuf"
	"github.com/deepnoodle-ai/zimvm/object"
)

// blockVersion owns one basic block's compiled extent in the code
// buffer. Exactly one version exists per block object for the VM's
// lifetime; transition from uncompiled to compiled is one-way.
type blockVersion struct {
	id       int
	fun      *object.Object
	block    *object.Object
	startPtr codebuf.Addr
	endPtr   codebuf.Addr
	compiled bool
}

// retEntry is the per-return-continuation record recorded by the block
// compiler for a call site: which catch-block version (if any) THROW
// should unwind to if this call site's callee raises.
type retEntry struct {
	excVer *blockVersion
}

// pendingTag marks an 8-byte branch-target word as an unresolved
// reference into the version table rather than a direct code address.
// Resolved addresses are always non-negative byte offsets into a code
// heap far smaller than 2^63 bytes, so this high bit can never collide
// with one — the
// same property the original implementation gets for free by comparing
// raw pointers against the code heap's address range.
const pendingTag = uint64(1) << 63

func encodePending(id int) uint64 { return pendingTag | uint64(id) }

func isPending(word uint64) bool { return word&pendingTag != 0 }

func pendingID(word uint64) int { return int(word &^ pendingTag) }

// versions is the block-version registry: a direct map from block
// identity to its single version, plus the tables keyed by version for
// stub resolution, source-position recovery, and exception-catch lookup.
type versions struct {
	byBlock map[*object.Object]*blockVersion
	table   []*blockVersion
	retInfo map[*blockVersion]retEntry
	instrAt map[codebuf.Addr]*blockVersion
}

func newVersions() *versions {
	return &versions{
		byBlock: make(map[*object.Object]*blockVersion),
		retInfo: make(map[*blockVersion]retEntry),
		instrAt: make(map[codebuf.Addr]*blockVersion),
	}
}

// getOrCreate returns the block's version, creating an uncompiled stub
// the first time the block is referenced. Per spec, a block has at most
// one version; a second getOrCreate for the same block with a different
// enclosing function would violate that invariant, so it is asserted
// away via the fun field never being consulted for identity after
// creation — only the block pointer keys the registry.
func (v *versions) getOrCreate(fun, block *object.Object) *blockVersion {
	if ver, ok := v.byBlock[block]; ok {
		return ver
	}
	ver := &blockVersion{id: len(v.table), fun: fun, block: block}
	v.table = append(v.table, ver)
	v.byBlock[block] = ver
	return ver
}

func (v *versions) byID(id int) *blockVersion {
	return v.table[id]
}
