package engine

import "github.com/perchdb/perch/internal/coderr"

var (
	ErrUnknownNodeType = coderr.NewCodeError(coderr.Internal, "unknown execution node type")
	ErrNilNode         = coderr.NewCodeError(coderr.Internal, "execution node is nil")
	ErrMissingDep      = coderr.NewCodeError(coderr.Internal, "dependency block not built yet")
	ErrEmptyChain      = coderr.NewCodeError(coderr.Internal, "snippet chain has no nodes")
)
