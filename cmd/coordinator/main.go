// Command coordinator runs the Perch query coordinator: it tracks the
// cluster topology, accepts deployable query plans, ships shard-bound
// snippets to the servers leading their shards, and assembles the
// coordinator-side engines that gather the results.
package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/perchdb/perch/internal/cluster"
	"github.com/perchdb/perch/internal/coderr"
	"github.com/perchdb/perch/internal/config"
	"github.com/perchdb/perch/internal/coordinator"
	"github.com/perchdb/perch/internal/log"
	"github.com/perchdb/perch/internal/plan"
	"github.com/perchdb/perch/internal/query"
	"github.com/perchdb/perch/internal/registry"
	"github.com/perchdb/perch/internal/shard"
	"github.com/perchdb/perch/internal/transport"
)

// logFatal is a variable to allow mocking log.Fatal in tests.
var logFatal = log.Fatal

var errBadRequest = coderr.NewCodeError(coderr.InvalidParams, "malformed query request")

func main() {
	cfg := config.Coordinator{
		Listen:         ":8080",
		ServerID:       "coordinator",
		SweepInterval:  30 * time.Second,
		HealthInterval: 10 * time.Second,
		Log:            log.Config{Level: "info", Format: "console"},
	}
	if err := config.Load(config.Prefix, &cfg); err != nil {
		logFatal("load config", zap.Error(err))
	}
	log.Init(cfg.Log)

	topo := cluster.NewTopology()
	if cfg.TopologyFile != "" {
		loaded, err := cluster.LoadTopologyFile(cfg.TopologyFile)
		if err != nil {
			logFatal("load topology", zap.String("file", cfg.TopologyFile), zap.Error(err))
		}
		topo = loaded
		log.Info("topology loaded",
			zap.String("file", cfg.TopologyFile), zap.Int("shards", topo.NumShards()))
	}

	srv := newServer(cfg, topo)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.engines.Run(ctx, cfg.SweepInterval)

	monitor := cluster.NewHealthMonitor(cfg.HealthInterval)
	monitor.SetOnUnhealthy(func(id cluster.ServerID) {
		log.Warn("server unhealthy", zap.String("server", string(id)))
	})
	go monitor.Start(ctx, topo.Servers)
	defer monitor.Stop()

	mux := http.NewServeMux()
	mux.HandleFunc("/servers/register", srv.handleRegister)
	mux.HandleFunc("/servers", srv.handleListServers)
	mux.HandleFunc("/topology", srv.handleTopology)
	mux.HandleFunc("/topology/assign", srv.handleAssign)
	mux.HandleFunc("/_api/query", srv.handleQuery)
	mux.HandleFunc("/_api/query/stats", srv.handleStats)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("coordinator listening", zap.String("addr", cfg.Listen))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logFatal("listen", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
	log.Info("coordinator stopped")
}

// server wires the coordinator's HTTP surface to the topology, the
// engine registry, and the deployment client.
type server struct {
	cfg     config.Coordinator
	local   cluster.ServerID
	topo    *cluster.Topology
	engines *registry.QueryRegistry
	deploy  *transport.HTTPDeploymentClient
}

func newServer(cfg config.Coordinator, topo *cluster.Topology) *server {
	return &server{
		cfg:     cfg,
		local:   cluster.ServerID(cfg.ServerID),
		topo:    topo,
		engines: registry.New(),
		deploy:  transport.NewDeploymentClient(topo),
	}
}

func (s *server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req cluster.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if err := s.topo.RegisterServer(req.Server); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	log.Info("server registered",
		zap.String("server", string(req.Server.ID)), zap.String("addr", req.Server.Addr))
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleListServers(w http.ResponseWriter, _ *http.Request) {
	transport.WriteJSON(w, http.StatusOK, struct {
		Servers []cluster.ServerInfo `json:"servers"`
	}{Servers: s.topo.Servers()})
}

// handleTopology returns the current shard-to-leader view. Attempts
// in flight keep their own pinned resolution; this endpoint reflects
// the live state.
func (s *server) handleTopology(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	transport.WriteJSON(w, http.StatusOK, struct {
		Servers   []cluster.ServerInfo                 `json:"servers"`
		Shards    map[cluster.ShardID]cluster.ServerID `json:"shards"`
		NumShards int                                  `json:"numShards"`
	}{
		Servers:   s.topo.Servers(),
		Shards:    s.topo.Leaders(),
		NumShards: s.topo.NumShards(),
	})
}

// handleAssign moves a shard's leadership (admin operation).
func (s *server) handleAssign(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Shard  cluster.ShardID  `json:"shard"`
		Server cluster.ServerID `json:"server"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if err := s.topo.SetLeader(req.Shard, req.Server); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	log.Info("shard assigned",
		zap.String("shard", string(req.Shard)), zap.String("server", string(req.Server)))
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleStats(w http.ResponseWriter, _ *http.Request) {
	transport.WriteJSON(w, http.StatusOK, s.engines.Stats())
}

// queryRequest is one deployable plan: the ordered snippet list the
// planner produced plus the query's options and variable table.
type queryRequest struct {
	Database  string          `json:"database"`
	Options   json.RawMessage `json:"options,omitempty"`
	Variables json.RawMessage `json:"variables,omitempty"`
	Snippets  []querySnippet  `json:"snippets"`
}

type querySnippet struct {
	// Target is "coordinator" or "dbserver".
	Target       string          `json:"target"`
	RemoteNodeID uint64          `json:"remoteNodeId"`
	Chain        json.RawMessage `json:"chain"`
}

type queryResponse struct {
	QueryID    string                 `json:"queryId"`
	RootEngine uint64                 `json:"rootEngine"`
	Shards     cluster.ShardServerMap `json:"shards"`
	Engines    query.EngineIDMap      `json:"engines"`
}

func (s *server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.Database == "" || len(req.Snippets) == 0 {
		http.Error(w, "database and snippets required", http.StatusBadRequest)
		return
	}

	resp, err := s.assemble(r.Context(), &req)
	if err != nil {
		log.Error("query assembly failed",
			zap.String("database", req.Database), zap.Error(err))
		transport.WriteError(w, err)
		return
	}
	transport.WriteJSON(w, http.StatusOK, resp)
}

// assemble runs one full build attempt: file every snippet with its
// registry, deploy the shard-resident ones, then build the
// coordinator engines against the ids the servers returned.
func (s *server) assemble(ctx context.Context, req *queryRequest) (*queryResponse, error) {
	var opts query.Options
	if len(req.Options) > 0 {
		if err := json.Unmarshal(req.Options, &opts); err != nil {
			return nil, errBadRequest.WithCausef("options: %v", err)
		}
	}
	var vars query.Variables
	if len(req.Variables) > 0 {
		if err := json.Unmarshal(req.Variables, &vars); err != nil {
			return nil, errBadRequest.WithCausef("variables: %v", err)
		}
	}

	q := query.New(req.Database, opts)
	q.SetVariables(vars)

	shardReg := shard.NewShardSnippetRegistry(s.local, s.topo, s.deploy)
	if s.cfg.DeployWorkers > 1 {
		shardReg.SetConcurrency(s.cfg.DeployWorkers)
	}
	if s.cfg.DeployTimeout > 0 {
		shardReg.SetTimeout(s.cfg.DeployTimeout)
	}
	coordReg := coordinator.NewCoordinatorSnippetRegistry()

	// Snippets arrive in plan-walk order, so each dbserver snippet
	// connects to the coordinator engine registered just before it.
	var lastCoordinatorEngine uint64
	for i, sn := range req.Snippets {
		nodes, err := plan.DecodeChain(sn.Chain)
		if err != nil {
			return nil, errBadRequest.WithCausef("snippet:%d, err:%v", i, err)
		}
		switch sn.Target {
		case "coordinator":
			id, err := coordReg.AddSnippet(nodes, sn.RemoteNodeID)
			if err != nil {
				return nil, err
			}
			lastCoordinatorEngine = id
		case "dbserver":
			shardReg.AddSnippet(nodes, sn.RemoteNodeID)
			shardReg.ConnectLastSnippet(lastCoordinatorEngine)
		default:
			return nil, errBadRequest.WithCausef("snippet:%d, target:%q", i, sn.Target)
		}
	}

	ids := make(query.EngineIDMap)
	srvMap, err := shardReg.BuildAndDeploy(ctx, q, ids)
	if err != nil {
		return nil, err
	}
	root, err := coordReg.BuildAll(q, s.engines, srvMap, ids)
	if err != nil {
		return nil, err
	}

	log.Info("query assembled",
		zap.String("query", q.ID()),
		zap.String("database", req.Database),
		zap.Uint64("rootEngine", root.ID()),
		zap.Int("shards", len(srvMap)),
		zap.Int("engines", len(ids)))

	return &queryResponse{
		QueryID:    q.ID(),
		RootEngine: root.ID(),
		Shards:     srvMap,
		Engines:    ids,
	}, nil
}
