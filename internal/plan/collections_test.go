package plan

import (
	"testing"

	"github.com/perchdb/perch/internal/cluster"
)

// TestCollectionSetIntern verifies canonicalization: nodes naming the
// same collection end up sharing one instance, shard lists fill in
// from later sightings, and the satellite flag only ever rises.
func TestCollectionSetIntern(t *testing.T) {
	t.Run("same name becomes same instance", func(t *testing.T) {
		a := NewNode(1, TypeEnumerateCollection)
		a.Collection = &Collection{Name: "orders", Shards: []cluster.ShardID{"s1"}}
		b := NewNode(2, TypeUpdate)
		b.Collection = &Collection{Name: "orders"}

		set := NewCollectionSet()
		set.Intern([]*Node{a, b})

		if a.Collection != b.Collection {
			t.Error("Expected both nodes to share one collection instance")
		}
		if len(b.Collection.Shards) != 1 {
			t.Errorf("Expected shard list from first sighting, got %v", b.Collection.Shards)
		}
	})

	t.Run("later sighting fills missing shards", func(t *testing.T) {
		a := NewNode(1, TypeEnumerateCollection)
		a.Collection = &Collection{Name: "users"}
		b := NewNode(2, TypeEnumerateCollection)
		b.Collection = &Collection{Name: "users", Shards: []cluster.ShardID{"u1", "u2"}}

		set := NewCollectionSet()
		set.Intern([]*Node{a})
		set.Intern([]*Node{b})

		canon, ok := set.Get("users")
		if !ok {
			t.Fatal("Expected canonical collection for 'users'")
		}
		if len(canon.Shards) != 2 {
			t.Errorf("Expected 2 shards filled in, got %v", canon.Shards)
		}
	})

	t.Run("satellite flag never lowers", func(t *testing.T) {
		a := NewNode(1, TypeEnumerateCollection)
		a.Collection = &Collection{Name: "dims", Satellite: true}
		b := NewNode(2, TypeEnumerateCollection)
		b.Collection = &Collection{Name: "dims", Satellite: false}

		set := NewCollectionSet()
		set.Intern([]*Node{a, b})

		canon, _ := set.Get("dims")
		if !canon.Satellite {
			t.Error("Expected satellite flag to stay raised")
		}
	})

	t.Run("nodes without collections are skipped", func(t *testing.T) {
		set := NewCollectionSet()
		set.Intern([]*Node{NewNode(1, TypeFilter), NewNode(2, TypeSort)})
		if _, ok := set.Get("anything"); ok {
			t.Error("Expected empty set")
		}
	})
}
