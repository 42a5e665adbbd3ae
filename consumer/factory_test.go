package consumer

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateConsumerStdout(t *testing.T) {
	c, err := CreateConsumer(ConsumerConfig{Type: "StdoutConsumer"})
	require.NoError(t, err)
	assert.IsType(t, &StdoutConsumer{}, c)
}

func TestCreateConsumerSQLite(t *testing.T) {
	c, err := CreateConsumer(ConsumerConfig{
		Type: "SaveSettlementsToSQLite",
		Config: map[string]interface{}{
			"db_path": filepath.Join(t.TempDir(), "settlements.db"),
		},
	})
	require.NoError(t, err)
	assert.IsType(t, &SaveSettlementsToSQLite{}, c)
}

func TestCreateConsumerUnknownType(t *testing.T) {
	_, err := CreateConsumer(ConsumerConfig{Type: "NoSuchConsumer"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported consumer type")
}

func TestCreateConsumerMissingRequiredConfig(t *testing.T) {
	_, err := CreateConsumer(ConsumerConfig{Type: "SaveSettlementsToSQLite"})
	assert.Error(t, err)
}
