package plan

// LockType is the access level a snippet needs on a collection.
// Write strictly dominates read; once a collection is recorded for
// writing it never drops back to reading.
type LockType int

const (
	LockNone LockType = iota
	LockRead
	LockWrite
)

func (l LockType) String() string {
	switch l {
	case LockRead:
		return "read"
	case LockWrite:
		return "write"
	default:
		return "none"
	}
}

// Access classifies the collection access of a single node. Returns
// the touched collection and the lock it needs, or (nil, LockNone) for
// nodes that do not touch collection data.
func Access(n *Node) (*Collection, LockType) {
	switch n.Type {
	case TypeEnumerateCollection, TypeIndexScan:
		return n.Collection, LockRead
	case TypeInsert, TypeUpdate, TypeReplace, TypeRemove, TypeUpsert:
		return n.Collection, LockWrite
	default:
		return nil, LockNone
	}
}

// IsRemoteBoundary reports whether n marks the cut between a
// coordinator-resident and a shard-resident snippet.
func IsRemoteBoundary(n *Node) bool {
	return n.Type == TypeRemote
}

// IsGather reports whether n merges per-shard result streams.
func IsGather(n *Node) bool {
	return n.Type == TypeGather
}
