package cluster

import (
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

// Topology is the coordinator's authoritative view of the cluster: the
// directory of registered servers and the current leader of every
// shard. It is the mutable source the query deployment layer resolves
// against; resolution results are pinned into a ShardServerMap and
// never read from Topology again within one attempt.
//
// Concurrency model:
//   - Read operations use RLock for parallel access
//   - Write operations use Lock for exclusive access
//   - All returned data is copied to prevent races
type Topology struct {
	servers map[ServerID]ServerInfo
	leaders map[ShardID]ServerID
	mu      sync.RWMutex
}

// NewTopology creates an empty topology. Servers arrive through
// RegisterServer and leaders through SetLeader or a topology file.
func NewTopology() *Topology {
	return &Topology{
		servers: make(map[ServerID]ServerInfo),
		leaders: make(map[ShardID]ServerID),
	}
}

// topologyFile is the YAML bootstrap format:
//
//	servers:
//	  - id: dbs-1
//	    addr: http://127.0.0.1:8101
//	shards:
//	  orders-s1: dbs-1
type topologyFile struct {
	Servers []ServerInfo      `yaml:"servers"`
	Shards  map[string]string `yaml:"shards"`
}

// LoadTopologyFile builds a topology from a YAML bootstrap file.
// Used by the coordinator at startup; later registrations and leader
// changes mutate the same topology.
func LoadTopologyFile(path string) (*Topology, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read topology file")
	}
	var tf topologyFile
	if err := yaml.Unmarshal(raw, &tf); err != nil {
		return nil, errors.Wrap(err, "parse topology file")
	}

	t := NewTopology()
	for _, s := range tf.Servers {
		if err := t.RegisterServer(s); err != nil {
			return nil, err
		}
	}
	for shard, server := range tf.Shards {
		if err := t.SetLeader(ShardID(shard), ServerID(server)); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// RegisterServer adds or updates a server in the directory.
func (t *Topology) RegisterServer(info ServerInfo) error {
	if info.ID == "" {
		return errors.New("server ID cannot be empty")
	}
	if strings.TrimSpace(info.Addr) == "" {
		return errors.Errorf("server %s has no address", info.ID)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.servers[info.ID] = info
	return nil
}

// RemoveServer drops a server from the directory. Shard assignments
// pointing at it are kept; they resolve as leaderless until reassigned.
func (t *Topology) RemoveServer(id ServerID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.servers, id)
}

// Servers returns a copy of the directory, ordered by server ID.
func (t *Topology) Servers() []ServerInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]ServerInfo, 0, len(t.servers))
	for _, s := range t.servers {
		out = append(out, s)
	}
	slices.SortFunc(out, func(a, b ServerInfo) int {
		return strings.Compare(string(a.ID), string(b.ID))
	})
	return out
}

// ServerAddr returns the base address of a registered server.
func (t *Topology) ServerAddr(id ServerID) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.servers[id]
	if !ok {
		return "", false
	}
	return s.Addr, true
}

// SetLeader records server as the current leader of shard.
//
// The server does not have to be registered yet; registration and
// leader assignment can arrive in either order during bootstrap.
func (t *Topology) SetLeader(shard ShardID, server ServerID) error {
	if shard == "" {
		return errors.New("shard ID cannot be empty")
	}
	if server == "" {
		return errors.Errorf("shard %s assigned to empty server", shard)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.leaders[shard] = server
	return nil
}

// LeaderOf returns the current leader of shard. The second return is
// false when the shard has no resolvable leader.
func (t *Topology) LeaderOf(shard ShardID) (ServerID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	server, ok := t.leaders[shard]
	return server, ok
}

// Leaders returns a copy of the full shard-to-leader view.
func (t *Topology) Leaders() map[ShardID]ServerID {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[ShardID]ServerID, len(t.leaders))
	for shard, server := range t.leaders {
		out[shard] = server
	}
	return out
}

// NumShards returns the number of shards with a recorded leader.
func (t *Topology) NumShards() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.leaders)
}
