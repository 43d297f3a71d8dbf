// Package coordinator implements the coordinator-facing half of
// distributed query assembly: it turns the coordinator-resident
// snippets of an optimized plan into linked execution engines, wiring
// every gather point to the shard engines deployed for it.
//
// # Build Sequence
//
// The planner registers snippets in order via AddSnippet, then calls
// BuildAll exactly once, after shard deployment has filled the id map:
//
//	AddSnippet(nodes, idOfRemoteNode)   id, assigned at registration
//	...
//	BuildAll(query, registry, serverMap, ids)
//	    snippet 0    -> engine on the caller's query (the root)
//	    snippet 1..n -> engine on a dependent clone, each registered
//	                    with a 600 second idle budget
//
// Within a snippet, nodes are walked dependency-first. A remote
// boundary node produces no block; the gather above it synthesizes
// one remote-fetch block per shard instead, addressed through the
// ShardServerMap pinned at deployment time. Re-resolving leaders here
// would race failover: a shard whose leadership moved mid-build would
// be fetched from a server that never instantiated the engine.
//
// # Failure Handling
//
// Assembly is a single fail-fast pass. Every step returns an error
// and BuildAll keeps an explicit unwind list: on any failure it
// destroys the registry entries it created, removes the id-map keys
// it added, and detaches the caller's engine. There are no retries;
// the caller discards the whole attempt.
package coordinator
