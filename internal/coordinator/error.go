package coordinator

import "github.com/perchdb/perch/internal/coderr"

var (
	ErrEmptySnippet        = coderr.NewCodeError(coderr.InvalidParams, "coordinator snippet without nodes")
	ErrGatherWithoutRemote = coderr.NewCodeError(coderr.Internal, "gather node without preceding remote boundary")
	ErrGatherNoCollection  = coderr.NewCodeError(coderr.Internal, "gather node without collection")
	ErrMissingEngineID     = coderr.NewCodeError(coderr.Internal, "no deployed engine id for remote boundary")
	ErrShardNotPinned      = coderr.NewCodeError(coderr.Internal, "shard missing from pinned server map")
	ErrNoRootBlock         = coderr.NewCodeError(coderr.Internal, "snippet produced no root block")
	ErrDuplicateEngineKey  = coderr.NewCodeError(coderr.Internal, "duplicate engine correlation key")
)
