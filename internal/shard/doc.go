// Package shard implements the server-facing half of distributed
// query assembly: collecting shard-resident snippets, aggregating the
// locks they need, and deploying everything to the shard leaders.
//
// # Overview
//
// While the planner walks an optimized plan, every run of nodes that
// has to execute next to the data is handed to the
// ShardSnippetRegistry. The registry does not deploy yet; it files
// snippets under the collections they touch and keeps one lock level
// per collection. Deployment happens once, at the end, when the full
// set of snippets is known.
//
// # Deployment
//
//	resolve    every shard of every touched collection to its leader,
//	           exactly once, into a pinned ShardServerMap
//	group      shards and snippet obligations by leader server
//	bundle     per server: lock lists, query options, variables, and
//	           one serialized chain per (snippet, shard)
//	send       one setup call per server, 90 second budget
//	merge      returned snippet-key to engine-id pairs into the
//	           query's shared id map
//
//	            +-------------+
//	            | Coordinator |
//	            +------+------+
//	       bundle |           | bundle
//	      +-------v----+ +----v-------+
//	      | Server A   | | Server B   |
//	      | s1,s2: ... | | s3: ...    |
//	      +------------+ +------------+
//
// A resolution failure aborts before anything is sent. A deployment
// failure aborts the attempt but does not undo servers that already
// answered; their engines age out of the remote registries.
//
// # Collaborators
//
// The registry stays testable by depending on two small interfaces:
// Router answers leader lookups and DeploymentClient ships bundles.
// The live implementations are cluster.Topology and the transport
// package's HTTP client.
package shard
