package query

// EngineIDMap correlates remote boundary nodes with the engines built
// for them, across every server one attempt touched. Keys come in two
// forms: "remoteNodeId:shardId" entries merged from server replies,
// and "remoteNodeId/database" entries for coordinator-side engines.
// One attempt owns one map; it is not safe for concurrent use.
type EngineIDMap map[string]string
