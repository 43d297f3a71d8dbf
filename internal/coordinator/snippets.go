package coordinator

import (
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/perchdb/perch/internal/cluster"
	"github.com/perchdb/perch/internal/coderr"
	"github.com/perchdb/perch/internal/engine"
	"github.com/perchdb/perch/internal/log"
	"github.com/perchdb/perch/internal/metrics"
	"github.com/perchdb/perch/internal/plan"
	"github.com/perchdb/perch/internal/query"
)

// engineTTL is the idle budget a registered engine survives between
// opens before the sweeper reclaims it.
const engineTTL = 600 * time.Second

// EngineRegistry is the slice of the query registry the builder
// touches: id-scoped insert and destroy, never iteration.
type EngineRegistry interface {
	Insert(id uint64, q *query.Query, ttl time.Duration) error
	Destroy(database string, id uint64, reason coderr.Code) error
}

// snippetInfo is one coordinator-resident snippet with the engine id
// assigned at registration. Nodes are borrowed from the plan.
type snippetInfo struct {
	id             uint64
	nodes          []*plan.Node
	idOfRemoteNode uint64
}

// CoordinatorSnippetRegistry collects the coordinator-resident
// snippets of one query build and links them into runnable engines.
// One registry serves one build attempt and is not safe for
// concurrent use.
type CoordinatorSnippetRegistry struct {
	snippets []*snippetInfo
}

func NewCoordinatorSnippetRegistry() *CoordinatorSnippetRegistry {
	return &CoordinatorSnippetRegistry{}
}

// AddSnippet stores one snippet and assigns its engine id. Node lists
// arrive dependency-first; the last node is the snippet's root. An
// empty node list is a planner bug.
func (r *CoordinatorSnippetRegistry) AddSnippet(nodes []*plan.Node, idOfRemoteNode uint64) (uint64, error) {
	if len(nodes) == 0 {
		return 0, ErrEmptySnippet
	}
	sn := &snippetInfo{
		id:             query.NextTick(),
		nodes:          nodes,
		idOfRemoteNode: idOfRemoteNode,
	}
	r.snippets = append(r.snippets, sn)
	return sn.id, nil
}

// BuildAll turns the registered snippets into engines, in
// registration order. The first snippet builds against the caller's
// query and its engine is returned as the root of the whole attempt;
// every later snippet builds against a dependent clone. Every engine
// is inserted into reg under its id and correlated into ids under
// "idOfRemoteNode/database" so shard engines can find it.
//
// On failure everything this call registered or recorded is unwound
// and the caller's query is left without an engine; clones are
// dropped with their registry entries.
func (r *CoordinatorSnippetRegistry) BuildAll(q *query.Query, reg EngineRegistry, srvMap cluster.ShardServerMap, ids query.EngineIDMap) (*engine.Engine, error) {
	var (
		root       *engine.Engine
		registered []*snippetInfo
		addedKeys  []string
	)
	fail := func(err error) (*engine.Engine, error) {
		for _, sn := range registered {
			if derr := reg.Destroy(q.Database(), sn.id, coderr.Internal); derr != nil {
				log.Warn("engine cleanup failed",
					zap.Uint64("engine", sn.id), zap.Error(derr))
			}
		}
		for _, key := range addedKeys {
			delete(ids, key)
		}
		q.DetachEngine()
		metrics.EnginesBuilt.WithLabelValues("error").Inc()
		return nil, err
	}

	for i, sn := range r.snippets {
		target := q
		if i > 0 {
			clone, err := q.Clone(query.PartDependent)
			if err != nil {
				return fail(err)
			}
			target = clone
		}

		eng, err := buildEngine(sn, srvMap, ids)
		if err != nil {
			return fail(err)
		}
		target.SetEngine(eng)

		if err := reg.Insert(sn.id, target, engineTTL); err != nil {
			return fail(err)
		}
		registered = append(registered, sn)
		log.Debug("coordinator engine registered",
			zap.String("query", target.ID()), zap.Uint64("engine", sn.id))

		key := plan.EngineKey(sn.idOfRemoteNode, q.Database())
		if _, dup := ids[key]; dup {
			return fail(ErrDuplicateEngineKey.WithCausef("key:%s", key))
		}
		ids[key] = strconv.FormatUint(sn.id, 10)
		addedKeys = append(addedKeys, key)

		if i == 0 {
			root = eng
		}
	}

	metrics.EnginesBuilt.WithLabelValues("ok").Add(float64(len(registered)))
	return root, nil
}

// buildEngine assembles one snippet's engine. A remote boundary node
// produces no block of its own: it is held as the template the next
// gather uses for its per-shard fetch dependencies.
func buildEngine(sn *snippetInfo, srvMap cluster.ShardServerMap, ids query.EngineIDMap) (*engine.Engine, error) {
	eng := engine.New(sn.id)
	built := make(map[uint64]engine.Block, len(sn.nodes))

	var pendingRemote *plan.Node
	var root engine.Block
	for _, n := range sn.nodes {
		if plan.IsRemoteBoundary(n) {
			pendingRemote = n
			continue
		}

		blk, err := engine.CreateBlock(n)
		if err != nil {
			return nil, err
		}
		eng.AddBlock(blk)

		// Only dependencies built earlier in this snippet link up
		// here; the remote boundary has no block and is wired below.
		for _, dep := range n.Deps {
			if d, ok := built[dep.ID]; ok {
				blk.AddDependency(d)
			}
		}

		if plan.IsGather(n) {
			if err := wireGather(eng, blk, n, pendingRemote, srvMap, ids); err != nil {
				return nil, err
			}
		}

		built[n.ID] = blk
		root = blk
	}
	if root == nil {
		return nil, ErrNoRootBlock.WithCausef("engine:%d", sn.id)
	}
	eng.SetRoot(root)
	return eng, nil
}

// wireGather appends one remote-fetch dependency per shard of the
// gather's collection, addressed to the server pinned at deployment
// time and carrying the engine id that server returned for the shard.
func wireGather(eng *engine.Engine, gather engine.Block, n, remote *plan.Node, srvMap cluster.ShardServerMap, ids query.EngineIDMap) error {
	if remote == nil {
		return ErrGatherWithoutRemote.WithCausef("gatherNode:%d", n.ID)
	}
	if n.Collection == nil {
		return ErrGatherNoCollection.WithCausef("gatherNode:%d", n.ID)
	}

	for _, shard := range n.Collection.Shards {
		key := plan.SnippetKey(remote.ID, shard)
		idThere, ok := ids[key]
		if !ok {
			return ErrMissingEngineID.WithCausef("key:%s", key)
		}
		// Deployments may suffix an id with '*'; the bare id
		// addresses the engine.
		idThere = strings.TrimSuffix(idThere, "*")

		leader, ok := srvMap.Leader(shard)
		if !ok {
			return ErrShardNotPinned.WithCausef("shard:%s", shard)
		}

		blk := engine.NewRemoteBlock(remote, cluster.ServerAddress(leader), "", idThere)
		eng.AddBlock(blk)
		gather.AddDependency(blk)
	}
	return nil
}
