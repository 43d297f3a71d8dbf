// Package registry keeps execution engines alive between the network
// calls that use them.
//
// # Overview
//
// Distributed query execution is a sequence of short HTTP exchanges:
// deploy, fetch, fetch, shutdown. Between exchanges somebody has to
// own the engines, remember which query they belong to, and throw
// them away when the peer dies mid-conversation. That owner is the
// QueryRegistry, on the coordinator and on every database server.
//
// # Lifecycle
//
//	Insert(id, query, ttl)      engine parked, idle clock starts
//	Open(id)                    exclusive lease for one exchange
//	Close(id)                   lease returned, idle clock restarts
//	Destroy(database, id, ...)  engine dropped explicitly
//	ExpireQueries(now)          idle engines dropped by the sweeper
//
// An engine that is open cannot expire or be destroyed; an engine
// whose idle budget runs out is removed by the sweep loop, which the
// owning process runs for the registry's whole lifetime.
//
// # Concurrency Model
//
//   - All methods are safe for concurrent use
//   - Lookups return the registered query itself, not a copy; the
//     open/close lease is what serializes access to it
//   - No locks are held while engines are torn down
package registry
