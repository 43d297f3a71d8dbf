package shard

import (
	"time"

	"github.com/perchdb/perch/internal/cluster"
	"github.com/perchdb/perch/internal/plan"
)

// snippetInfo is one filed shard-resident snippet: its nodes, the
// remote boundary node it hangs off, and the coordinator engine that
// consumes its stream once connected.
type snippetInfo struct {
	nodes          []*plan.Node
	idOfRemoteNode uint64
	otherID        uint64
}

// finalNode returns the snippet's chain root, which must be the
// remote boundary that streams upward.
func (s *snippetInfo) finalNode() *plan.Node {
	return s.nodes[len(s.nodes)-1]
}

// Router answers the one routing question deployment asks: which
// server currently leads a shard. The live implementation is
// cluster.Topology.
type Router interface {
	LeaderOf(shard cluster.ShardID) (cluster.ServerID, bool)
}

// ShardSnippetRegistry collects the shard-resident snippets of one
// query build, the lock level every touched collection needs, and the
// satellite collections seen next to sharded ones. One registry
// serves one build attempt and is not safe for concurrent use.
type ShardSnippetRegistry struct {
	local  cluster.ServerID
	router Router
	client DeploymentClient

	// cols canonicalizes collection references across snippets, so
	// chains decoded from separate wire messages still aggregate
	// under one collection instance per name.
	cols *plan.CollectionSet

	// locks holds the aggregated access level per collection, with
	// collection order preserved for deterministic bundles. Write
	// access never downgrades back to read.
	locks map[*plan.Collection]plan.LockType
	order []*plan.Collection

	satellites map[*plan.Collection]bool

	snippets  map[*plan.Collection][]*snippetInfo
	lastFiled *snippetInfo

	concurrency int
	timeout     time.Duration
}

// NewShardSnippetRegistry creates a registry for one build attempt.
// local is this coordinator's server identity, embedded into every
// shipped snippet so shard engines know where their stream goes.
func NewShardSnippetRegistry(local cluster.ServerID, router Router, client DeploymentClient) *ShardSnippetRegistry {
	return &ShardSnippetRegistry{
		local:      local,
		router:     router,
		client:     client,
		cols:       plan.NewCollectionSet(),
		locks:      make(map[*plan.Collection]plan.LockType),
		satellites: make(map[*plan.Collection]bool),
		snippets:   make(map[*plan.Collection][]*snippetInfo),
	}
}

// SetConcurrency allows up to n deployment calls in flight at once.
// Values below 2 keep the default sequential deployment.
func (r *ShardSnippetRegistry) SetConcurrency(n int) {
	r.concurrency = n
}

// SetTimeout overrides the per-server deployment budget. Zero keeps
// DeployTimeout.
func (r *ShardSnippetRegistry) SetTimeout(d time.Duration) {
	r.timeout = d
}

// AddSnippet files one shard-resident snippet. An empty node list is
// ignored. The snippet is filed under the last collection its nodes
// reference; collection locks are aggregated as a side effect.
func (r *ShardSnippetRegistry) AddSnippet(nodes []*plan.Node, idOfRemoteNode uint64) {
	if len(nodes) == 0 {
		return
	}

	// Chains decoded from the wire carry fresh collection instances.
	// Intern them so the same name maps to one instance across all
	// snippets of this build.
	r.cols.Intern(nodes)

	// Scan for collection accesses. A satellite collection is only
	// recorded once a later collection shows up in the same snippet:
	// that is the point where its replica has to join another
	// collection's shards.
	var previous *plan.Collection
	for _, n := range nodes {
		col, lock := plan.Access(n)
		if col == nil {
			continue
		}
		if previous != nil && previous.Satellite {
			r.satellites[previous] = true
		}
		r.noteAccess(col, lock)
		previous = col
	}
	// A snippet without collection access files under the nil key.
	// It never deploys (deployment walks collections), but it still
	// becomes the connect target for the next coordinator engine.
	sn := &snippetInfo{nodes: nodes, idOfRemoteNode: idOfRemoteNode}
	r.snippets[previous] = append(r.snippets[previous], sn)
	r.lastFiled = sn
}

func (r *ShardSnippetRegistry) noteAccess(col *plan.Collection, lock plan.LockType) {
	current, seen := r.locks[col]
	if !seen {
		r.locks[col] = lock
		r.order = append(r.order, col)
		return
	}
	if lock == plan.LockWrite && current != plan.LockWrite {
		r.locks[col] = plan.LockWrite
	}
}

// ConnectLastSnippet wires the most recently filed snippet to the
// coordinator engine that consumes its stream. A registry with no
// filed snippet ignores the call.
func (r *ShardSnippetRegistry) ConnectLastSnippet(coordinatorEngineID uint64) {
	if r.lastFiled == nil {
		return
	}
	r.lastFiled.otherID = coordinatorEngineID
}

// LockFor returns the aggregated lock level of a collection.
func (r *ShardSnippetRegistry) LockFor(col *plan.Collection) plan.LockType {
	return r.locks[col]
}

// SatelliteCollections returns the names of recorded satellite
// collections, in recording order.
func (r *ShardSnippetRegistry) SatelliteCollections() []string {
	var names []string
	for _, col := range r.order {
		if r.satellites[col] {
			names = append(names, col.Name)
		}
	}
	return names
}
