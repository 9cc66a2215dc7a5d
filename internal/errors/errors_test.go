package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"isoquant/domain/core"

	"github.com/stretchr/testify/assert"
)

func TestCodeForSentinels(t *testing.T) {
	cases := []struct {
		err  error
		code string
	}{
		{core.NewConvergenceError("run R1", 50), CodeConvergence},
		{fmt.Errorf("normalize: %w", core.ErrScaleMismatch), CodeScaleMismatch},
		{core.NewMissingDesignError("R1/126"), CodeInvalidInput},
		{core.ErrRunNotFound, CodeNotFound},
		{context.DeadlineExceeded, CodeDeadlineExceeded},
		{stderrors.New("boom"), CodeInternalError},
	}
	for _, c := range cases {
		assert.Equal(t, c.code, CodeFor(c.err), "%v", c.err)
	}
}

func TestWrapKeepsChain(t *testing.T) {
	base := core.NewConvergenceError("run R2", 50)
	err := Wrapf(base, "variant %s", "raking+median")

	assert.True(t, stderrors.Is(err, core.ErrConvergence))
	assert.Equal(t, CodeConvergence, GetCode(err))
	assert.Contains(t, err.Error(), "variant raking+median")
	assert.Nil(t, Wrap(nil, "nothing"))

	recoded := WithCode(CodeInternalError, err)
	assert.Equal(t, CodeInternalError, GetCode(recoded))
	assert.True(t, IsAppError(recoded))
	assert.Equal(t, "UNKNOWN", GetCode(stderrors.New("plain")))
}
