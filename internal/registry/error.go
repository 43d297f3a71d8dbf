package registry

import "github.com/perchdb/perch/internal/coderr"

var (
	ErrNilQuery        = coderr.NewCodeError(coderr.InvalidParams, "query must not be nil")
	ErrDuplicateEngine = coderr.NewCodeError(coderr.Conflict, "engine id already registered")
	ErrEngineNotFound  = coderr.NewCodeError(coderr.NotFound, "engine not found in registry")
	ErrEngineInUse     = coderr.NewCodeError(coderr.Conflict, "engine is currently open")
)
