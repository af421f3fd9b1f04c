package errors

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodes(t *testing.T) {
	t.Run("constructors carry their codes", func(t *testing.T) {
		assert.Equal(t, CodeNotFound, GetCode(NotFound("case", 42)))
		assert.Equal(t, CodeDuplicateActive, GetCode(DuplicateActive(1, 2)))
		assert.Equal(t, CodeNotActive, GetCode(NotActive(7)))
		assert.Equal(t, CodeChannelClosed, GetCode(ChannelClosed(7)))
		assert.Equal(t, CodeConflict, GetCode(Conflict("from %s to %s", "open", "closed")))
	})

	t.Run("IsCode walks the wrap chain", func(t *testing.T) {
		inner := NotEligible("out of range")
		outer := Wrap(inner, "create assignment")
		assert.True(t, IsCode(outer, CodeNotEligible))
		assert.False(t, IsCode(outer, CodeNotFound))
		assert.False(t, IsCode(nil, CodeNotFound))
		assert.False(t, IsCode(stderrors.New("plain"), CodeNotFound))
	})

	t.Run("Storage wraps and keeps the cause", func(t *testing.T) {
		cause := stderrors.New("disk full")
		err := Storage(cause)
		require.NotNil(t, err)
		assert.Equal(t, CodeStorage, err.Code)
		assert.Equal(t, cause, Cause(err))
		assert.Nil(t, Storage(nil))
	})
}

func TestWithContext(t *testing.T) {
	base := Conflict("version race")
	enriched := base.WithContext("case_id", "12")

	// 原错误不被改动
	assert.Empty(t, base.Context)
	require.Len(t, enriched.Context, 1)
	assert.Equal(t, "case_id", enriched.Context[0].Key)
	assert.Equal(t, base.Code, enriched.Code)
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "case 42 not found", NotFound("case", 42).Error())
	assert.Equal(t, "boom", GetMessage(New("boom")))
	wrapped := Wrap(stderrors.New("inner"), "outer")
	assert.Equal(t, "outer", wrapped.Error())
	assert.NotNil(t, wrapped.Unwrap())
}
