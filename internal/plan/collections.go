package plan

// CollectionSet canonicalizes collection references by name. Access
// aggregation keys on collection identity, so every node of one query
// that names the same collection must point at the same instance,
// including nodes decoded from separate snippet chains.
type CollectionSet struct {
	byName map[string]*Collection
}

func NewCollectionSet() *CollectionSet {
	return &CollectionSet{byName: make(map[string]*Collection)}
}

// Intern rewrites every node's collection reference to the shared
// instance for its name. The first sighting becomes canonical; later
// sightings fill in a missing shard list and can raise the satellite
// flag, never lower it.
func (s *CollectionSet) Intern(nodes []*Node) {
	for _, n := range nodes {
		if n.Collection == nil {
			continue
		}
		canon, ok := s.byName[n.Collection.Name]
		if !ok {
			s.byName[n.Collection.Name] = n.Collection
			continue
		}
		if len(canon.Shards) == 0 && len(n.Collection.Shards) > 0 {
			canon.Shards = n.Collection.Shards
		}
		if n.Collection.Satellite {
			canon.Satellite = true
		}
		n.Collection = canon
	}
}

// Get returns the canonical instance for a collection name.
func (s *CollectionSet) Get(name string) (*Collection, bool) {
	col, ok := s.byName[name]
	return col, ok
}
