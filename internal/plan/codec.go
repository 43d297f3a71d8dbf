package plan

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/perchdb/perch/internal/cluster"
)

// Wire form of one serialized snippet chain:
//
//	{"nodes":[
//	  {"id":1,"type":"singleton"},
//	  {"id":2,"type":"enumerate-collection","dependencies":[1],
//	   "collection":{"name":"orders"}},
//	  {"id":3,"type":"remote","dependencies":[2],
//	   "remote":{"server":"server:cdn-1","ownName":"orders-s1",
//	             "queryId":"41","initializeCursor":false}}
//	]}
//
// Nodes appear in dependency order; the last entry is the chain root.
type wireChain struct {
	Nodes []wireNode `json:"nodes"`
}

type wireNode struct {
	ID           uint64          `json:"id"`
	Type         string          `json:"type"`
	Dependencies []uint64        `json:"dependencies,omitempty"`
	Collection   *wireCollection `json:"collection,omitempty"`
	Remote       *wireRemote     `json:"remote,omitempty"`
}

type wireCollection struct {
	Name      string            `json:"name"`
	Shards    []cluster.ShardID `json:"shards,omitempty"`
	Satellite bool              `json:"satellite,omitempty"`
}

type wireRemote struct {
	Server     string `json:"server"`
	OwnName    string `json:"ownName"`
	QueryID    string `json:"queryId"`
	InitCursor bool   `json:"initializeCursor"`
}

// SerializeChain renders final and its transitive dependencies in
// dependency order.
func SerializeChain(final *Node) (json.RawMessage, error) {
	if final == nil {
		return nil, errors.New("serialize nil chain")
	}

	var chain wireChain
	seen := make(map[uint64]bool)
	var walk func(n *Node)
	walk = func(n *Node) {
		if seen[n.ID] {
			return
		}
		seen[n.ID] = true
		for _, dep := range n.Deps {
			walk(dep)
		}
		chain.Nodes = append(chain.Nodes, encodeNode(n))
	}
	walk(final)

	raw, err := json.Marshal(chain)
	if err != nil {
		return nil, errors.Wrap(err, "marshal snippet chain")
	}
	return raw, nil
}

func encodeNode(n *Node) wireNode {
	wn := wireNode{
		ID:   n.ID,
		Type: n.Type.String(),
	}
	for _, dep := range n.Deps {
		wn.Dependencies = append(wn.Dependencies, dep.ID)
	}
	if n.Collection != nil {
		wn.Collection = &wireCollection{
			Name:      n.Collection.Name,
			Shards:    n.Collection.Shards,
			Satellite: n.Collection.Satellite,
		}
	}
	if n.Type == TypeRemote {
		wn.Remote = &wireRemote{
			Server:     n.Remote.Server,
			OwnName:    n.Remote.OwnName,
			QueryID:    n.Remote.QueryID,
			InitCursor: n.Remote.InitCursor,
		}
	}
	return wn
}

// DecodeChain rebuilds a serialized chain. The returned slice keeps
// the wire order, so the last node is the chain root.
func DecodeChain(raw json.RawMessage) ([]*Node, error) {
	var chain wireChain
	if err := json.Unmarshal(raw, &chain); err != nil {
		return nil, errors.Wrap(err, "unmarshal snippet chain")
	}
	if len(chain.Nodes) == 0 {
		return nil, errors.New("snippet chain has no nodes")
	}

	byID := make(map[uint64]*Node, len(chain.Nodes))
	nodes := make([]*Node, 0, len(chain.Nodes))
	for _, wn := range chain.Nodes {
		if _, dup := byID[wn.ID]; dup {
			return nil, errors.Errorf("duplicate node id %d in snippet chain", wn.ID)
		}
		t, ok := ParseNodeType(wn.Type)
		if !ok {
			return nil, errors.Errorf("unknown node type %q in snippet chain", wn.Type)
		}
		n := NewNode(wn.ID, t)
		if wn.Collection != nil {
			n.Collection = &Collection{
				Name:      wn.Collection.Name,
				Shards:    wn.Collection.Shards,
				Satellite: wn.Collection.Satellite,
			}
		}
		if wn.Remote != nil {
			n.Remote = RemoteParams{
				Server:     wn.Remote.Server,
				OwnName:    wn.Remote.OwnName,
				QueryID:    wn.Remote.QueryID,
				InitCursor: wn.Remote.InitCursor,
			}
		}
		for _, depID := range wn.Dependencies {
			dep, ok := byID[depID]
			if !ok {
				return nil, errors.Errorf("node %d depends on unknown node %d", wn.ID, depID)
			}
			n.AddDependency(dep)
		}
		byID[wn.ID] = n
		nodes = append(nodes, n)
	}
	return nodes, nil
}
