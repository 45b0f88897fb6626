package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDescribeError(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{ErrUserNotFound, CodeUserNotFound},
		{ErrChallengeNotFound, CodeChallengeNotFound},
		{ErrGameNotFound, CodeGameNotFound},
		{ErrForbidden, CodeForbidden},
		{ErrInvalidTarget, CodeInvalidTarget},
		{fmt.Errorf("%w: gameId is required", ErrInvalidInput), CodeInvalidRequest},
		{ErrInvalidPosition, CodeInvalidPosition},
		{ErrDuplicateChallenge, CodeDuplicateChallenge},
		{fmt.Errorf("accept: %w", ErrChallengeAlreadyResolved), CodeAlreadyResolved},
		{ErrWrongTurn, CodeNotYourTurn},
		{ErrNotInProgress, CodeGameNotInProgress},
		{ErrRateLimited, CodeRateLimited},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			code, message, ok := DescribeError(tt.err)
			assert.True(t, ok)
			assert.Equal(t, tt.code, code)
			assert.NotEmpty(t, message)
		})
	}
}

func TestDescribeErrorKeepsInputDetail(t *testing.T) {
	_, message, ok := DescribeError(fmt.Errorf("%w: challengeId is required", ErrInvalidInput))
	assert.True(t, ok)
	assert.Equal(t, "invalid input: challengeId is required", message)
}

func TestDescribeErrorUnknown(t *testing.T) {
	for _, err := range []error{errors.New("boom"), ErrVersionConflict, ErrEmailTaken} {
		_, _, ok := DescribeError(err)
		assert.False(t, ok, err.Error())
	}
}
