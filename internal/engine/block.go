package engine

import "github.com/perchdb/perch/internal/plan"

// Block is one executable step of an engine. Blocks pull from their
// dependencies; the runtime that streams rows through them is a
// separate layer, so the interface here covers assembly only.
type Block interface {
	PlanNode() *plan.Node
	AddDependency(Block)
	Dependencies() []Block
}

type baseBlock struct {
	node *plan.Node
	deps []Block
}

func (b *baseBlock) PlanNode() *plan.Node {
	return b.node
}

func (b *baseBlock) AddDependency(dep Block) {
	b.deps = append(b.deps, dep)
}

func (b *baseBlock) Dependencies() []Block {
	return b.deps
}

// localBlock executes a node whose data lives on this server.
type localBlock struct {
	baseBlock
}

// GatherBlock merges the result streams of its dependencies, one per
// shard, into a single ordered stream.
type GatherBlock struct {
	baseBlock
}

// RemoteBlock bridges a cluster boundary. On the coordinator it pulls
// from a deployed shard engine; on a database server it pushes to the
// coordinator engine named by its query id. The destination is pinned
// at build time and never re-resolved.
type RemoteBlock struct {
	baseBlock
	server  string // "server:<id>" destination
	ownName string // shard-local name on the serving side
	queryID string // engine id on the other end
}

// NewRemoteBlock builds a boundary block with an explicit destination.
// The coordinator gather wiring uses this directly, once per shard.
func NewRemoteBlock(node *plan.Node, server, ownName, queryID string) *RemoteBlock {
	return &RemoteBlock{
		baseBlock: baseBlock{node: node},
		server:    server,
		ownName:   ownName,
		queryID:   queryID,
	}
}

// Server returns the pinned server-addressed destination.
func (b *RemoteBlock) Server() string {
	return b.server
}

// OwnName returns the shard-local name on the serving side.
func (b *RemoteBlock) OwnName() string {
	return b.ownName
}

// QueryID returns the engine id on the other end of the boundary.
func (b *RemoteBlock) QueryID() string {
	return b.queryID
}

// CreateBlock builds the block for one plan node. Remote nodes take
// their destination from the node's deployment-filled parameters.
func CreateBlock(n *plan.Node) (Block, error) {
	if n == nil {
		return nil, ErrNilNode
	}
	switch n.Type {
	case plan.TypeRemote:
		return NewRemoteBlock(n, n.Remote.Server, n.Remote.OwnName, n.Remote.QueryID), nil
	case plan.TypeGather:
		return &GatherBlock{baseBlock: baseBlock{node: n}}, nil
	case plan.TypeSingleton, plan.TypeEnumerateCollection, plan.TypeIndexScan,
		plan.TypeFilter, plan.TypeCalculation, plan.TypeSort, plan.TypeLimit,
		plan.TypeReturn, plan.TypeInsert, plan.TypeUpdate, plan.TypeReplace,
		plan.TypeRemove, plan.TypeUpsert, plan.TypeScatter, plan.TypeDistribute:
		return &localBlock{baseBlock: baseBlock{node: n}}, nil
	default:
		return nil, ErrUnknownNodeType.WithCausef("node:%d, type:%d", n.ID, int(n.Type))
	}
}
