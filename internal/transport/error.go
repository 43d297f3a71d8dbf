package transport

import "github.com/perchdb/perch/internal/coderr"

var (
	ErrUnknownServer = coderr.NewCodeError(coderr.NotFound, "server address not registered")
	ErrBadBundle     = coderr.NewCodeError(coderr.InvalidParams, "malformed deployment bundle")
	ErrBadEngineID   = coderr.NewCodeError(coderr.InvalidParams, "malformed engine id")
)
