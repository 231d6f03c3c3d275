package testutil

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunConcurrent(t *testing.T) {
	result := RunConcurrent(30, func(idx int) error {
		switch idx % 3 {
		case 0:
			return nil
		case 1:
			return ErrRejected
		default:
			return errors.New("boom")
		}
	})

	assert.Equal(t, int32(10), result.Successes)
	assert.Equal(t, int32(10), result.Rejected)
	assert.Equal(t, int32(10), result.Errors)
	assert.Equal(t, int32(30), result.Total())
}
