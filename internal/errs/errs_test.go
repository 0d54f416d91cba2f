/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("submitting: %w", Invalid("goal", "goal is required"))

	assert.True(t, HasCode(err, CodeInvalid))
	assert.False(t, HasCode(err, CodeNotFound))
	assert.Equal(t, CodeInvalid, CodeOf(err))
	assert.Equal(t, "goal", FieldOf(err))
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Equal(t, CodeUnknown, CodeOf(errors.New("boom")))
	assert.Equal(t, "", FieldOf(errors.New("boom")))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(CodeQuotaExceeded, "saving actions", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "saving actions: disk full", err.Error())
}
