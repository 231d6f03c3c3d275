package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "github.com/khaleddesign/chantierpro-sub001/pkg/domain-errors"
)

type sample struct {
	Environment string `validate:"required,oneof=development production"`
	PoolSize    int    `validate:"gt=0"`
	KafkaTopic  string `validate:"notblank"`
	MaxRequests int    `validate:"min=1"`
}

func TestValidate(t *testing.T) {
	valid := sample{Environment: "production", PoolSize: 10, KafkaTopic: "logs", MaxRequests: 3}
	require.NoError(t, Validate(valid))

	tests := []struct {
		name    string
		mutate  func(s *sample)
		message string
	}{
		{"missing environment", func(s *sample) { s.Environment = "" }, "environment is required"},
		{"bad environment", func(s *sample) { s.Environment = "staging" }, "environment must be one of [development production]"},
		{"zero pool", func(s *sample) { s.PoolSize = 0 }, "pool_size must be greater than 0"},
		{"blank topic", func(s *sample) { s.KafkaTopic = "  " }, "kafka_topic must not be blank"},
		{"min requests", func(s *sample) { s.MaxRequests = 0 }, "max_requests must be at least 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid
			tt.mutate(&s)
			err := Validate(s)
			require.Error(t, err)
			assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
			assert.Equal(t, tt.message, err.Error())
		})
	}
}
