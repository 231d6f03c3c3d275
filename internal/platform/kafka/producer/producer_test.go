package producer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	t.Run("brokers are required", func(t *testing.T) {
		_, err := New(Config{}, nil)
		require.Error(t, err)
	})

	t.Run("client is created lazily", func(t *testing.T) {
		p, err := New(DefaultConfig("127.0.0.1:1"), nil)
		require.NoError(t, err)
		require.NoError(t, p.Close())
	})
}

func TestProduceAfterClose(t *testing.T) {
	p, err := New(DefaultConfig("127.0.0.1:1"), nil)
	require.NoError(t, err)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close(), "close is idempotent")

	err = p.ProduceBatch(context.Background(), []*Message{{Topic: "logs", Value: []byte("{}")}})
	assert.True(t, errors.Is(err, ErrClosed))
	assert.False(t, p.Healthy(context.Background()))
}

func TestToRecordCopiesHeaders(t *testing.T) {
	r := toRecord(&Message{Topic: "t", Key: []byte("k"), Value: []byte("v"), Headers: map[string]string{"level": "SECURITY"}})
	assert.Equal(t, "t", r.Topic)
	require.Len(t, r.Headers, 1)
	assert.Equal(t, "level", r.Headers[0].Key)
	assert.Equal(t, []byte("SECURITY"), r.Headers[0].Value)
}
