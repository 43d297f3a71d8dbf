package shard

import "github.com/perchdb/perch/internal/coderr"

var (
	ErrNoShardLeader    = coderr.NewCodeError(coderr.BackendUnavailable, "no leader resolvable for shard")
	ErrDeployFailed     = coderr.NewCodeError(coderr.ClusterUnavailable, "unable to deploy query snippets on all required servers")
	ErrBadDeployReply   = coderr.NewCodeError(coderr.ClusterUnavailable, "malformed snippet deployment response")
	ErrMalformedSnippet = coderr.NewCodeError(coderr.Internal, "shard snippet does not end at a remote boundary")
)
