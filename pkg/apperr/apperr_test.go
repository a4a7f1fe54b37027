package apperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindStatusCodes(t *testing.T) {
	assert.Equal(t, 403, KindForbidden.StatusCode())
	assert.Equal(t, 404, KindNotFound.StatusCode())
	assert.Equal(t, 400, KindValidation.StatusCode())
	assert.Equal(t, 502, KindUpstream.StatusCode())
	assert.Equal(t, 409, KindInconsistency.StatusCode())
	assert.Equal(t, 500, KindInternal.StatusCode())
}

func TestStatusCodeRoundTrip(t *testing.T) {
	for _, kind := range []Kind{KindForbidden, KindNotFound, KindValidation, KindUpstream, KindInconsistency} {
		rebuilt := FromStatusCode(kind.StatusCode(), "boom")
		assert.Equal(t, kind, rebuilt.Kind)
		assert.Equal(t, "boom", rebuilt.Message)
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindValidation, KindOf(Validation("bad input")))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))

	wrapped := Upstream(errors.New("dial tcp"), "stand directory unreachable")
	assert.Equal(t, KindUpstream, KindOf(wrapped))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := Upstream(cause, "could not reach catalog")
	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "could not reach catalog")
}

func TestMessageOf(t *testing.T) {
	assert.Equal(t, "stand x not found", MessageOf(NotFound("stand x not found")))
	assert.Equal(t, "plain", MessageOf(errors.New("plain")))
}
