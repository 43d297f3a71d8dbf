package coderr

import (
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

var errTest = NewCodeError(BackendUnavailable, "no leader resolvable for shard")

func TestWithCausefDoesNotMutateTemplate(t *testing.T) {
	derived := errTest.WithCausef("shard:%s", "orders-s1")

	assert.Contains(t, derived.Error(), "shard:orders-s1")
	assert.NotContains(t, errTest.Error(), "orders-s1", "template must stay shareable")
	assert.Equal(t, BackendUnavailable, derived.Code())
}

func TestEqualsByCode(t *testing.T) {
	t.Run("direct", func(t *testing.T) {
		assert.True(t, EqualsByCode(errTest, BackendUnavailable))
		assert.False(t, EqualsByCode(errTest, Internal))
	})

	t.Run("through derived error", func(t *testing.T) {
		derived := errTest.WithCausef("shard:%s", "s1")
		assert.True(t, EqualsByCode(derived, BackendUnavailable))
	})

	t.Run("through pkg/errors wrapping", func(t *testing.T) {
		wrapped := errors.WithMessage(errTest.WithCausef("shard:s1"), "deploy")
		assert.True(t, EqualsByCode(wrapped, BackendUnavailable))
	})

	t.Run("plain error has no code", func(t *testing.T) {
		assert.False(t, EqualsByCode(errors.New("plain"), Internal))
	})
}

func TestGetCauseCode(t *testing.T) {
	code, ok := GetCauseCode(errors.Wrap(errTest, "outer"))
	assert.True(t, ok)
	assert.Equal(t, BackendUnavailable, code)

	_, ok = GetCauseCode(nil)
	assert.False(t, ok)

	_, ok = GetCauseCode(errors.New("plain"))
	assert.False(t, ok)
}

func TestToHTTPCode(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, BackendUnavailable.ToHTTPCode())
	assert.Equal(t, http.StatusBadGateway, ClusterUnavailable.ToHTTPCode())
	assert.Equal(t, http.StatusBadRequest, InvalidParams.ToHTTPCode())
	// Codes outside the HTTP range report as internal errors.
	assert.Equal(t, http.StatusInternalServerError, Code(2000).ToHTTPCode())
}
