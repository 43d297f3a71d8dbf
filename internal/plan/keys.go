package plan

import (
	"strconv"

	"github.com/perchdb/perch/internal/cluster"
)

// SnippetKey names one deployed snippet instance: the remote boundary
// node it hangs off and the shard it was instantiated for. Deployment
// responses and the coordinator's gather wiring use the same rendering
// ("<decimal node id>:<shard>"), so the two sides always agree on the
// exact byte sequence.
func SnippetKey(remoteNodeID uint64, shard cluster.ShardID) string {
	return strconv.FormatUint(remoteNodeID, 10) + ":" + string(shard)
}

// EngineKey names a coordinator-resident engine in the shared id map,
// scoped by database ("<decimal node id>/<database>"). Shard-side
// consumers that stream upward look their coordinator engine up under
// this key.
func EngineKey(remoteNodeID uint64, database string) string {
	return strconv.FormatUint(remoteNodeID, 10) + "/" + database
}
