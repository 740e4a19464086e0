package plugin

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorKindsAreDistinct(t *testing.T) {
	nf := NotFoundf("provider not found: %s", "x")
	pre := Preconditionf("no default provider")
	val := Validationf("bad model")

	assert.True(t, errors.Is(nf, ErrNotFound))
	assert.False(t, errors.Is(nf, ErrPrecondition))
	assert.False(t, errors.Is(nf, ErrValidation))

	assert.True(t, errors.Is(pre, ErrPrecondition))
	assert.False(t, errors.Is(pre, ErrNotFound))

	assert.True(t, errors.Is(val, ErrValidation))
	assert.False(t, errors.Is(val, ErrNotFound))
}

func TestErrorMatchesThroughWrapping(t *testing.T) {
	err := fmt.Errorf("dispatch: %w", NotFoundf("agent not found: bash"))
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, KindNotFound, KindOf(err))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("HTTP 500")
	err := ProviderError("generation failed", cause)
	assert.True(t, errors.Is(err, cause))
	assert.True(t, errors.Is(err, ErrProvider))
	assert.Equal(t, "generation failed: HTTP 500", err.Error())
}

func TestCredentialsExpiredCarriesGuidance(t *testing.T) {
	err := CredentialsExpired("refresh your API key", errors.New("401"))
	assert.Contains(t, err.Error(), "refresh your API key")
	assert.True(t, errors.Is(err, ErrCredentialsExpired))
	assert.False(t, errors.Is(err, ErrProvider))
}

func TestModelInfoValidate(t *testing.T) {
	ok := ModelInfo{Name: "p", Models: []string{"a", "b"}, DefaultModel: "b"}
	require.NoError(t, ok.Validate())

	empty := ModelInfo{Name: "p"}
	assert.True(t, errors.Is(empty.Validate(), ErrValidation))

	bad := ModelInfo{Name: "p", Models: []string{"a"}, DefaultModel: "z"}
	assert.True(t, errors.Is(bad.Validate(), ErrValidation))
}

func TestCollectConcatenatesAndCloses(t *testing.T) {
	s := SliceStream([]string{"Hello", ", ", "world"})
	out, err := Collect(s)
	require.NoError(t, err)
	assert.Equal(t, "Hello, world", out)

	_, err = s.Recv()
	assert.Equal(t, io.EOF, err)
}
