package query

import "github.com/perchdb/perch/internal/coderr"

var ErrQueryFinished = coderr.NewCodeError(coderr.Internal, "cannot clone a finished query")
