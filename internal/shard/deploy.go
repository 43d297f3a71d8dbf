package shard

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/perchdb/perch/internal/cluster"
	"github.com/perchdb/perch/internal/log"
	"github.com/perchdb/perch/internal/metrics"
	"github.com/perchdb/perch/internal/query"
)

// DeployTimeout is the per-server budget for one setup call.
const DeployTimeout = 90 * time.Second

// DeploymentClient ships one bundle to one server and returns the raw
// response body. The registry validates the body's shape itself, so
// implementations stay dumb pipes.
type DeploymentClient interface {
	Send(ctx context.Context, server cluster.ServerID, database string, bundle *DeploymentBundle, timeout time.Duration) ([]byte, error)
}

// BuildAndDeploy resolves every touched shard to its leader, ships
// each leader its bundle, and merges the returned engine ids into the
// query's shared id map. The returned ShardServerMap is the pinned
// resolution the rest of the attempt must use for addressing.
//
// Resolution happens before anything is sent: an unresolvable leader
// aborts with nothing deployed and nothing merged. A failure during
// deployment aborts the attempt, but servers that already answered
// keep their engines; those age out of the remote registries.
//
// A nil DeploymentClient means the process is shutting down; the call
// returns the resolved map without deploying anything.
func (r *ShardSnippetRegistry) BuildAndDeploy(ctx context.Context, q *query.Query, ids query.EngineIDMap) (cluster.ShardServerMap, error) {
	srvMap, err := r.resolveShards()
	if err != nil {
		return nil, err
	}

	if r.client == nil {
		log.Warn("snippet deployment skipped, transport unavailable",
			zap.String("query", q.ID()))
		return srvMap, nil
	}

	if sats := r.SatelliteCollections(); len(sats) > 0 {
		log.Debug("satellite collections recorded",
			zap.String("query", q.ID()), zap.Strings("collections", sats))
	}

	byServer := r.groupByServer(srvMap)
	servers := sortedServers(byServer)

	// Bundles are built up front: serialization rewrites shared plan
	// nodes in place, so it cannot overlap with itself.
	bundles := make([]*DeploymentBundle, len(servers))
	for i, server := range servers {
		bundle, err := r.buildBundle(q, byServer[server])
		if err != nil {
			return nil, err
		}
		bundles[i] = bundle
	}

	timeout := r.timeout
	if timeout <= 0 {
		timeout = DeployTimeout
	}

	if r.concurrency > 1 {
		err = r.deployParallel(ctx, q, servers, bundles, timeout, ids)
	} else {
		err = r.deploySequential(ctx, q, servers, bundles, timeout, ids)
	}
	if err != nil {
		return nil, err
	}
	return srvMap, nil
}

// resolveShards asks the router for every shard's leader exactly once.
func (r *ShardSnippetRegistry) resolveShards() (cluster.ShardServerMap, error) {
	srvMap := make(cluster.ShardServerMap)
	for _, col := range r.order {
		for _, shard := range col.Shards {
			if _, done := srvMap[shard]; done {
				continue
			}
			leader, ok := r.router.LeaderOf(shard)
			if !ok {
				return nil, ErrNoShardLeader.WithCausef(
					"shard:%s, collection:%s", shard, col.Name)
			}
			srvMap[shard] = leader
		}
	}
	return srvMap, nil
}

func (r *ShardSnippetRegistry) deploySequential(ctx context.Context, q *query.Query, servers []cluster.ServerID, bundles []*DeploymentBundle, timeout time.Duration, ids query.EngineIDMap) error {
	for i, server := range servers {
		reply, err := r.send(ctx, q, server, bundles[i], timeout)
		if err != nil {
			return err
		}
		for key, id := range reply {
			ids[key] = id
		}
	}
	return nil
}

// deployParallel keeps the sequential path's semantics: the first
// failure cancels the rest, and merging is commutative because every
// server answers for disjoint snippet keys.
func (r *ShardSnippetRegistry) deployParallel(ctx context.Context, q *query.Query, servers []cluster.ServerID, bundles []*DeploymentBundle, timeout time.Duration, ids query.EngineIDMap) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	var mu sync.Mutex
	for i := range servers {
		i := i
		g.Go(func() error {
			reply, err := r.send(gctx, q, servers[i], bundles[i], timeout)
			if err != nil {
				return err
			}
			mu.Lock()
			for key, id := range reply {
				ids[key] = id
			}
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

func (r *ShardSnippetRegistry) send(ctx context.Context, q *query.Query, server cluster.ServerID, bundle *DeploymentBundle, timeout time.Duration) (map[string]string, error) {
	start := time.Now()
	body, err := r.client.Send(ctx, server, q.Database(), bundle, timeout)
	metrics.DeploymentDuration.WithLabelValues(string(server)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.DeploymentsTotal.WithLabelValues(string(server), "error").Inc()
		return nil, ErrDeployFailed.WithCausef(
			"server:%s, err:%v (this can happen during failover)", server, err)
	}

	reply, err := parseDeployReply(server, body)
	if err != nil {
		metrics.DeploymentsTotal.WithLabelValues(string(server), "error").Inc()
		return nil, err
	}
	metrics.DeploymentsTotal.WithLabelValues(string(server), "ok").Inc()
	log.Debug("snippets deployed",
		zap.String("query", q.ID()),
		zap.String("server", string(server)),
		zap.Int("snippets", len(bundle.Snippets)),
		zap.Int("engines", len(reply)))
	return reply, nil
}

// parseDeployReply validates the response shape: a flat JSON object
// mapping snippet keys to engine id strings. Anything else aborts the
// attempt.
func parseDeployReply(server cluster.ServerID, body []byte) (map[string]string, error) {
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, ErrBadDeployReply.WithCausef("server:%s, err:%v", server, err)
	}
	reply := make(map[string]string, len(raw))
	for key, value := range raw {
		id, ok := value.(string)
		if !ok {
			return nil, ErrBadDeployReply.WithCausef("server:%s, key:%s", server, key)
		}
		reply[key] = id
	}
	return reply, nil
}
