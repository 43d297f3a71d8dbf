package shard

import (
	"encoding/json"
	"strconv"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/perchdb/perch/internal/cluster"
	"github.com/perchdb/perch/internal/plan"
	"github.com/perchdb/perch/internal/query"
)

// DeploymentBundle is the setup message one server receives: which of
// its shards to lock at which level, the query's options and variable
// table, and one serialized chain per (snippet, shard) obligation,
// keyed by snippet key.
type DeploymentBundle struct {
	LockInfo  map[string][]cluster.ShardID `json:"lockInfo"`
	Options   json.RawMessage              `json:"options"`
	Variables json.RawMessage              `json:"variables"`
	Snippets  map[string]json.RawMessage   `json:"snippets"`
}

// serverPlan accumulates everything bound for one leader before it is
// serialized into a DeploymentBundle.
type serverPlan struct {
	lockInfo    map[plan.LockType][]cluster.ShardID
	obligations []obligation
}

// obligation is one snippet instantiation owed to a server: this
// snippet, specialized to this shard.
type obligation struct {
	snippet *snippetInfo
	shard   cluster.ShardID
}

func newServerPlan() *serverPlan {
	return &serverPlan{
		lockInfo: make(map[plan.LockType][]cluster.ShardID),
	}
}

func (p *serverPlan) addShardLock(shard cluster.ShardID, lock plan.LockType) {
	p.lockInfo[lock] = append(p.lockInfo[lock], shard)
}

func (p *serverPlan) addObligation(sn *snippetInfo, shard cluster.ShardID) {
	p.obligations = append(p.obligations, obligation{snippet: sn, shard: shard})
}

// groupByServer distributes shards and snippet obligations over the
// pinned leaders. Iteration follows collection recording order, so
// the produced plans are deterministic for a given registry state.
func (r *ShardSnippetRegistry) groupByServer(srvMap cluster.ShardServerMap) map[cluster.ServerID]*serverPlan {
	byServer := make(map[cluster.ServerID]*serverPlan)
	for _, col := range r.order {
		lock := r.locks[col]
		for _, shard := range col.Shards {
			leader := srvMap[shard]
			sp := byServer[leader]
			if sp == nil {
				sp = newServerPlan()
				byServer[leader] = sp
			}
			sp.addShardLock(shard, lock)
			for _, sn := range r.snippets[col] {
				sp.addObligation(sn, shard)
			}
		}
	}
	return byServer
}

// buildBundle serializes one server's plan. Every obligation rewrites
// the in-place remote parameters of its snippet's final node before
// the chain is serialized: the destination is this coordinator, the
// shard-local name is the obligation's shard, and the query id is the
// coordinator engine the snippet was connected to.
func (r *ShardSnippetRegistry) buildBundle(q *query.Query, sp *serverPlan) (*DeploymentBundle, error) {
	opts, err := q.Options().Serialize()
	if err != nil {
		return nil, err
	}
	vars, err := q.Variables().Serialize()
	if err != nil {
		return nil, err
	}

	bundle := &DeploymentBundle{
		LockInfo:  make(map[string][]cluster.ShardID, len(sp.lockInfo)),
		Options:   opts,
		Variables: vars,
		Snippets:  make(map[string]json.RawMessage, len(sp.obligations)),
	}
	for lock, shards := range sp.lockInfo {
		bundle.LockInfo[lock.String()] = shards
	}

	for _, ob := range sp.obligations {
		final := ob.snippet.finalNode()
		if !plan.IsRemoteBoundary(final) {
			return nil, ErrMalformedSnippet.WithCausef(
				"remoteNode:%d, finalType:%s", ob.snippet.idOfRemoteNode, final.Type)
		}
		final.Remote = plan.RemoteParams{
			Server:     cluster.ServerAddress(r.local),
			OwnName:    string(ob.shard),
			QueryID:    strconv.FormatUint(ob.snippet.otherID, 10),
			InitCursor: false,
		}
		raw, err := plan.SerializeChain(final)
		if err != nil {
			return nil, err
		}
		bundle.Snippets[plan.SnippetKey(ob.snippet.idOfRemoteNode, ob.shard)] = raw
	}
	return bundle, nil
}

// sortedServers returns the target servers in lexical order, fixing
// the deployment order of the sequential path.
func sortedServers(byServer map[cluster.ServerID]*serverPlan) []cluster.ServerID {
	out := make([]cluster.ServerID, 0, len(byServer))
	for id := range byServer {
		out = append(out, id)
	}
	slices.SortFunc(out, func(a, b cluster.ServerID) int {
		return strings.Compare(string(a), string(b))
	})
	return out
}
