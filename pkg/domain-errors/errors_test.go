package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	err := New(CodeConflict, "instance already inactive")

	assert.EqualError(t, err, "instance already inactive")
	assert.True(t, HasCode(err, CodeConflict))
	assert.False(t, HasCode(err, CodeInternal))
}

func TestWrap(t *testing.T) {
	t.Run("wraps cause and exposes it through Unwrap", func(t *testing.T) {
		cause := stderrors.New("connection refused")
		err := Wrap(cause, CodeInternal, "failed to load record")

		assert.EqualError(t, err, "failed to load record: connection refused")
		assert.True(t, stderrors.Is(err, cause))
		assert.True(t, HasCode(err, CodeInternal))
	})

	t.Run("nil cause yields nil", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, CodeInternal, "ignored"))
	})
}

func TestHasCode(t *testing.T) {
	t.Run("finds code through fmt wrapping", func(t *testing.T) {
		inner := New(CodeNotFound, "no such owner")
		err := fmt.Errorf("listing instances: %w", inner)

		assert.True(t, HasCode(err, CodeNotFound))
		assert.True(t, Is(err, CodeNotFound))
	})

	t.Run("finds inner code through outer domain error", func(t *testing.T) {
		inner := New(CodeConflict, "registry is stopped")
		err := Wrap(inner, CodeInternal, "create failed")

		assert.True(t, HasCode(err, CodeInternal))
		assert.True(t, HasCode(err, CodeConflict))
	})

	t.Run("plain errors carry no code", func(t *testing.T) {
		assert.False(t, HasCode(stderrors.New("boom"), CodeInternal))
		assert.False(t, HasCode(nil, CodeInternal))
	})
}

func TestGetCode(t *testing.T) {
	t.Run("returns outermost code", func(t *testing.T) {
		inner := New(CodeConflict, "registry is stopped")
		err := Wrap(inner, CodeInternal, "create failed")

		assert.Equal(t, CodeInternal, GetCode(err))
	})

	t.Run("empty for plain errors", func(t *testing.T) {
		assert.Equal(t, Code(""), GetCode(stderrors.New("boom")))
	})
}

func TestNewf(t *testing.T) {
	err := Newf(CodeBadRequest, "page size %d exceeds limit", 5000)

	assert.EqualError(t, err, "page size 5000 exceeds limit")
	assert.True(t, HasCode(err, CodeBadRequest))
}
