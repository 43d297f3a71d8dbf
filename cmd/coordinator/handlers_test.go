package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perchdb/perch/internal/cluster"
	"github.com/perchdb/perch/internal/plan"
	"github.com/perchdb/perch/internal/registry"
	"github.com/perchdb/perch/internal/shard"
	"github.com/perchdb/perch/internal/transport"
)

// coordinatorChain serializes remote(7) <- gather(c1) <- return, the
// coordinator-resident half of a simple scan.
func coordinatorChain(t *testing.T, shards []cluster.ShardID) json.RawMessage {
	t.Helper()
	remote := plan.NewNode(7, plan.TypeRemote)
	gather := plan.NewNode(8, plan.TypeGather)
	gather.Collection = &plan.Collection{Name: "c1", Shards: shards}
	gather.AddDependency(remote)
	ret := plan.NewNode(9, plan.TypeReturn)
	ret.AddDependency(gather)

	raw, err := plan.SerializeChain(ret)
	require.NoError(t, err)
	return raw
}

// dbserverChain serializes singleton <- enumerate(c1) <- remote, the
// shard-resident half.
func dbserverChain(t *testing.T, shards []cluster.ShardID) json.RawMessage {
	t.Helper()
	singleton := plan.NewNode(1, plan.TypeSingleton)
	enumerate := plan.NewNode(2, plan.TypeEnumerateCollection)
	enumerate.Collection = &plan.Collection{Name: "c1", Shards: shards}
	enumerate.AddDependency(singleton)
	remote := plan.NewNode(3, plan.TypeRemote)
	remote.AddDependency(enumerate)

	raw, err := plan.SerializeChain(remote)
	require.NoError(t, err)
	return raw
}

// startDBServer runs an in-process database server and registers it
// with the coordinator's topology under the given id.
func startDBServer(t *testing.T, s *server, id cluster.ServerID) *registry.QueryRegistry {
	t.Helper()
	reg := registry.New()
	srv := httptest.NewServer(transport.NewHandler(reg))
	t.Cleanup(srv.Close)
	require.NoError(t, s.topo.RegisterServer(cluster.ServerInfo{ID: id, Addr: srv.URL}))
	return reg
}

func postQuery(t *testing.T, s *server, body any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/_api/query", strings.NewReader(string(raw)))
	rec := httptest.NewRecorder()
	s.handleQuery(rec, req)
	return rec
}

// TestHandleQuery drives a full scatter/gather assembly through the
// HTTP surface: two shards on two database servers, one coordinator
// snippet stitching the streams back together.
func TestHandleQuery(t *testing.T) {
	s := testServer()
	regA := startDBServer(t, s, "dbserver-A")
	regB := startDBServer(t, s, "dbserver-B")
	require.NoError(t, s.topo.SetLeader("s1", "dbserver-A"))
	require.NoError(t, s.topo.SetLeader("s2", "dbserver-B"))

	shards := []cluster.ShardID{"s1", "s2"}
	rec := postQuery(t, s, queryRequest{
		Database: "_system",
		Snippets: []querySnippet{
			{Target: "coordinator", RemoteNodeID: 7, Chain: coordinatorChain(t, shards)},
			{Target: "dbserver", RemoteNodeID: 7, Chain: dbserverChain(t, shards)},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp queryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	// Both shards pinned to their leaders.
	assert.Equal(t, cluster.ServerID("dbserver-A"), resp.Shards["s1"])
	assert.Equal(t, cluster.ServerID("dbserver-B"), resp.Shards["s2"])

	// One remote engine per shard plus the coordinator engine.
	assert.Contains(t, resp.Engines, "7:s1")
	assert.Contains(t, resp.Engines, "7:s2")
	assert.Contains(t, resp.Engines, "7/_system")

	// Each database server holds exactly the engine it reported.
	idA, err := strconv.ParseUint(resp.Engines["7:s1"], 10, 64)
	require.NoError(t, err)
	assert.True(t, regA.Contains(idA))
	idB, err := strconv.ParseUint(resp.Engines["7:s2"], 10, 64)
	require.NoError(t, err)
	assert.True(t, regB.Contains(idB))

	// The coordinator parked its root engine too.
	assert.True(t, s.engines.Contains(resp.RootEngine))
	assert.Equal(t, strconv.FormatUint(resp.RootEngine, 10), resp.Engines["7/_system"])
}

// TestHandleQueryCoordinatorOnly verifies a plan with no shard-bound
// part deploys nothing and still builds.
func TestHandleQueryCoordinatorOnly(t *testing.T) {
	s := testServer()

	singleton := plan.NewNode(1, plan.TypeSingleton)
	ret := plan.NewNode(2, plan.TypeReturn)
	ret.AddDependency(singleton)
	chain, err := plan.SerializeChain(ret)
	require.NoError(t, err)

	rec := postQuery(t, s, queryRequest{
		Database: "_system",
		Snippets: []querySnippet{{Target: "coordinator", RemoteNodeID: 1, Chain: chain}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp queryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Empty(t, resp.Shards)
	assert.True(t, s.engines.Contains(resp.RootEngine))
}

func TestHandleQueryFailures(t *testing.T) {
	t.Run("no leader for a shard", func(t *testing.T) {
		s := testServer()
		startDBServer(t, s, "dbserver-A")
		// s2 deliberately left without a leader.
		require.NoError(t, s.topo.SetLeader("s1", "dbserver-A"))

		shards := []cluster.ShardID{"s1", "s2"}
		rec := postQuery(t, s, queryRequest{
			Database: "_system",
			Snippets: []querySnippet{
				{Target: "coordinator", RemoteNodeID: 7, Chain: coordinatorChain(t, shards)},
				{Target: "dbserver", RemoteNodeID: 7, Chain: dbserverChain(t, shards)},
			},
		})
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "s2")
		assert.Equal(t, 0, s.engines.Stats().Engines, "failed assembly must not leak engines")
	})

	t.Run("unreachable server", func(t *testing.T) {
		s := testServer()
		require.NoError(t, s.topo.RegisterServer(cluster.ServerInfo{
			ID: "dbserver-A", Addr: "http://127.0.0.1:1",
		}))
		require.NoError(t, s.topo.SetLeader("s1", "dbserver-A"))

		shards := []cluster.ShardID{"s1"}
		rec := postQuery(t, s, queryRequest{
			Database: "_system",
			Snippets: []querySnippet{
				{Target: "coordinator", RemoteNodeID: 7, Chain: coordinatorChain(t, shards)},
				{Target: "dbserver", RemoteNodeID: 7, Chain: dbserverChain(t, shards)},
			},
		})
		assert.Equal(t, http.StatusBadGateway, rec.Code)
		assert.Contains(t, rec.Body.String(), "dbserver-A")
	})

	t.Run("bad request shapes", func(t *testing.T) {
		s := testServer()

		tests := []struct {
			name string
			body string
		}{
			{"not json", `{`},
			{"no database", `{"snippets":[{"target":"coordinator","remoteNodeId":1,"chain":{"nodes":[{"id":1,"type":"singleton"}]}}]}`},
			{"no snippets", `{"database":"_system","snippets":[]}`},
			{"unknown target", `{"database":"_system","snippets":[{"target":"mainframe","remoteNodeId":1,"chain":{"nodes":[{"id":1,"type":"singleton"}]}}]}`},
			{"bad chain", `{"database":"_system","snippets":[{"target":"coordinator","remoteNodeId":1,"chain":{"nodes":[]}}]}`},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				req := httptest.NewRequest(http.MethodPost, "/_api/query", strings.NewReader(tt.body))
				rec := httptest.NewRecorder()
				s.handleQuery(rec, req)
				assert.Equal(t, http.StatusBadRequest, rec.Code)
			})
		}
	})

	t.Run("wrong method", func(t *testing.T) {
		s := testServer()
		req := httptest.NewRequest(http.MethodGet, "/_api/query", nil)
		rec := httptest.NewRecorder()
		s.handleQuery(rec, req)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

// TestHandleQueryMixedAccessLocks covers a query that reads and writes
// the same collection in separate snippets: the shipped bundle must
// lock the collection's shards for write only, never read and write
// side by side.
func TestHandleQueryMixedAccessLocks(t *testing.T) {
	s := testServer()

	var (
		mu      sync.Mutex
		bundles []shard.DeploymentBundle
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var b shard.DeploymentBundle
		require.NoError(t, json.NewDecoder(r.Body).Decode(&b))
		mu.Lock()
		bundles = append(bundles, b)
		mu.Unlock()

		reply := make(map[string]string, len(b.Snippets))
		next := 100
		for key := range b.Snippets {
			reply[key] = strconv.Itoa(next)
			next++
		}
		transport.WriteJSON(w, http.StatusOK, reply)
	}))
	t.Cleanup(srv.Close)
	require.NoError(t, s.topo.RegisterServer(cluster.ServerInfo{ID: "dbserver-A", Addr: srv.URL}))
	require.NoError(t, s.topo.SetLeader("s1", "dbserver-A"))

	shards := []cluster.ShardID{"s1"}

	// Shard-resident write half: singleton <- update(c1) <- remote.
	singleton := plan.NewNode(11, plan.TypeSingleton)
	update := plan.NewNode(12, plan.TypeUpdate)
	update.Collection = &plan.Collection{Name: "c1", Shards: shards}
	update.AddDependency(singleton)
	remote := plan.NewNode(13, plan.TypeRemote)
	remote.AddDependency(update)
	writeChain, err := plan.SerializeChain(remote)
	require.NoError(t, err)

	// Coordinator half for the write: remote(17) <- gather <- return.
	wRemote := plan.NewNode(17, plan.TypeRemote)
	wGather := plan.NewNode(18, plan.TypeGather)
	wGather.Collection = &plan.Collection{Name: "c1", Shards: shards}
	wGather.AddDependency(wRemote)
	wReturn := plan.NewNode(19, plan.TypeReturn)
	wReturn.AddDependency(wGather)
	writeCoord, err := plan.SerializeChain(wReturn)
	require.NoError(t, err)

	rec := postQuery(t, s, queryRequest{
		Database: "_system",
		Snippets: []querySnippet{
			{Target: "coordinator", RemoteNodeID: 7, Chain: coordinatorChain(t, shards)},
			{Target: "dbserver", RemoteNodeID: 7, Chain: dbserverChain(t, shards)},
			{Target: "coordinator", RemoteNodeID: 17, Chain: writeCoord},
			{Target: "dbserver", RemoteNodeID: 17, Chain: writeChain},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	require.Len(t, bundles, 1)
	assert.Equal(t, []cluster.ShardID{"s1"}, bundles[0].LockInfo["write"])
	assert.NotContains(t, bundles[0].LockInfo, "read")
	assert.Contains(t, bundles[0].Snippets, "7:s1")
	assert.Contains(t, bundles[0].Snippets, "17:s1")
}

// TestHandleQueryOptionsTravel verifies options and variables reach
// the database servers inside the bundle.
func TestHandleQueryOptionsTravel(t *testing.T) {
	s := testServer()
	regA := startDBServer(t, s, "dbserver-A")
	require.NoError(t, s.topo.SetLeader("s1", "dbserver-A"))

	shards := []cluster.ShardID{"s1"}
	rec := postQuery(t, s, queryRequest{
		Database:  "_system",
		Options:   json.RawMessage(`{"stream":true}`),
		Variables: json.RawMessage(`[{"id":1,"name":"doc"}]`),
		Snippets: []querySnippet{
			{Target: "coordinator", RemoteNodeID: 7, Chain: coordinatorChain(t, shards)},
			{Target: "dbserver", RemoteNodeID: 7, Chain: dbserverChain(t, shards)},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp queryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	id, err := strconv.ParseUint(resp.Engines["7:s1"], 10, 64)
	require.NoError(t, err)

	q, err := regA.Open("_system", id)
	require.NoError(t, err)
	defer func() { require.NoError(t, regA.Close(id)) }()
	assert.True(t, q.Options().Stream)
	require.Len(t, q.Variables(), 1)
	assert.Equal(t, "doc", q.Variables()[0].Name)
}
