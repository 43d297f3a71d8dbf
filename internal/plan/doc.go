// Package plan models the optimizer output consumed by the query
// deployment layer: execution plan nodes, the collections they touch,
// and the wire form snippets travel in.
//
// A plan arrives as node lists in dependency order (each node after
// the nodes it consumes from). Runs of nodes that execute on the same
// side of a cluster boundary form snippets; a remote node marks the
// boundary itself and a gather node merges the per-shard streams on
// the coordinator:
//
//	coordinator:  ... <- gather <- (remote boundary)
//	                                    ^
//	servers:      singleton <- enumerate <- ... <- remote
//
// Node is a plain tagged struct rather than an interface hierarchy;
// behavior that depends on the node kind (lock classification,
// boundary detection) lives in free functions over the tag. Nodes are
// borrowed from the planner: the deployment layer links and annotates
// them but never owns or frees them.
package plan
