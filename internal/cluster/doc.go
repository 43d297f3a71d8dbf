// Package cluster provides the topology layer for Perch's distributed
// query deployment: server identity, shard-to-leader routing, health
// monitoring, and the HTTP/JSON helpers used for inter-server calls.
//
// # Overview
//
// A Perch cluster has one coordinator and any number of database
// servers. Every collection is split into shards and every shard has
// exactly one leader server at a time. The cluster package holds that
// view and answers the single question the query deployment layer asks
// of it: which server leads this shard right now.
//
// # Architecture
//
//	              +--------------+
//	              | Coordinator  |
//	              |              |
//	              | - Topology   |
//	              | - Health Mon |
//	              +------+-------+
//	                     |
//	      +--------------+--------------+
//	      |              |              |
//	+-----v-----+  +-----v-----+  +-----v-----+
//	| Server 1  |  | Server 2  |  | Server 3  |
//	|           |  |           |  |           |
//	| Leads:    |  | Leads:    |  | Leads:    |
//	| [s1,s2]   |  | [s3,s4]   |  | [s5,s6]   |
//	+-----------+  +-----------+  +-----------+
//
// # Core Components
//
// Topology: the mutable cluster view
//   - Server directory (id to address) fed by registration
//   - Shard-to-leader assignments, loadable from a YAML file
//   - Thread-safe; lookups return copies
//
// ShardServerMap: an immutable resolution snapshot
//   - Captures shard-to-leader pairs for one deployment attempt
//   - Never re-resolved once taken, so every later consumer of the
//     attempt addresses the same servers even if Topology moved on
//
// HealthMonitor: periodic liveness probing
//   - GET /health against every registered server
//   - Marks a server unhealthy after consecutive failures
//   - Observational: it never mutates routing mid-attempt
//
// # Addressing
//
// Remote destinations are always server-addressed, never
// shard-addressed. ServerAddress renders the canonical form
// "server:<id>" that execution engines embed in remote-fetch steps.
//
// # Concurrency Model
//
//   - Topology uses an RWMutex; reads run in parallel
//   - No locks are held during network I/O
//   - ShardServerMap is written once and read-only afterwards
//
// # See Also
//
// Related packages:
//   - internal/shard: resolves shards through this package and deploys
//   - internal/coordinator: consumes pinned ShardServerMap snapshots
package cluster
