package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/ibuy/internal/messaging/kafka"
)

func TestReadConfig_Defaults(t *testing.T) {
	t.Setenv("IBUY_KAFKA_BROKERS", "k1:9092, k2:9092")

	cfg, err := readConfig(nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.brokers)
	assert.Equal(t, kafka.TopicDeadLetterQueue, cfg.replay.SourceTopic)
	assert.Equal(t, kafka.TopicOrderEvents, cfg.replay.TargetTopic)
	assert.False(t, cfg.replay.Execute)
}

func TestReadConfig_Flags(t *testing.T) {
	cfg, err := readConfig([]string{"-brokers=b:9092", "-limit=5", "-execute", "-idle-timeout=1s"})
	require.NoError(t, err)

	assert.Equal(t, []string{"b:9092"}, cfg.brokers)
	assert.Equal(t, 5, cfg.replay.Limit)
	assert.True(t, cfg.replay.Execute)
	assert.Equal(t, time.Second, cfg.replay.IdleTimeout)
}

func TestReadConfig_Errors(t *testing.T) {
	t.Setenv("IBUY_KAFKA_BROKERS", "")

	tests := map[string][]string{
		"no brokers":    nil,
		"empty source":  {"-brokers=b", "-source-topic="},
		"zero limit":    {"-brokers=b", "-limit=0"},
		"negative idle": {"-brokers=b", "-idle-timeout=-1s"},
		"unknown flag":  {"-brokers=b", "-bogus"},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := readConfig(args)
			require.Error(t, err)
		})
	}
}
