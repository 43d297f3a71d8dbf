package plan

import "github.com/perchdb/perch/internal/cluster"

// NodeType tags the kind of an execution plan node.
type NodeType int

const (
	TypeUnknown NodeType = iota
	TypeSingleton
	TypeEnumerateCollection
	TypeIndexScan
	TypeFilter
	TypeCalculation
	TypeSort
	TypeLimit
	TypeReturn
	TypeInsert
	TypeUpdate
	TypeReplace
	TypeRemove
	TypeUpsert
	TypeRemote
	TypeGather
	TypeScatter
	TypeDistribute
)

var typeNames = map[NodeType]string{
	TypeSingleton:           "singleton",
	TypeEnumerateCollection: "enumerate-collection",
	TypeIndexScan:           "index-scan",
	TypeFilter:              "filter",
	TypeCalculation:         "calculation",
	TypeSort:                "sort",
	TypeLimit:               "limit",
	TypeReturn:              "return",
	TypeInsert:              "insert",
	TypeUpdate:              "update",
	TypeReplace:             "replace",
	TypeRemove:              "remove",
	TypeUpsert:              "upsert",
	TypeRemote:              "remote",
	TypeGather:              "gather",
	TypeScatter:             "scatter",
	TypeDistribute:          "distribute",
}

var namedTypes = func() map[string]NodeType {
	m := make(map[string]NodeType, len(typeNames))
	for t, name := range typeNames {
		m[name] = t
	}
	return m
}()

// String returns the stable wire name of the node type.
func (t NodeType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "unknown"
}

// ParseNodeType maps a wire name back to its NodeType.
func ParseNodeType(name string) (NodeType, bool) {
	t, ok := namedTypes[name]
	return t, ok
}

// Collection describes one sharded collection referenced by a plan.
// Satellite collections are fully replicated: every server holds the
// whole collection, so snippets touching them never fan out.
type Collection struct {
	Name      string
	Shards    []cluster.ShardID
	Satellite bool
}

// RemoteParams carries the cross-boundary wiring of a remote node.
// They are blank until deployment: serializing a snippet for a shard
// fills them in, and the receiving side reads them to know where its
// result stream goes.
type RemoteParams struct {
	Server     string // pinned destination, "server:<id>"
	OwnName    string // shard-local name on the receiving side
	QueryID    string // engine id on the other end of the boundary
	InitCursor bool   // whether this side drives cursor initialization
}

// Node is one execution plan node. IDs are assigned by the planner and
// stay stable across query clones, which is why the deployment layer
// keys every per-node lookup by ID instead of by pointer.
type Node struct {
	ID         uint64
	Type       NodeType
	Deps       []*Node
	Collection *Collection
	Remote     RemoteParams
}

// NewNode builds an unlinked node.
func NewNode(id uint64, t NodeType) *Node {
	return &Node{ID: id, Type: t}
}

// AddDependency links dep as an input of n.
func (n *Node) AddDependency(dep *Node) {
	n.Deps = append(n.Deps, dep)
}
