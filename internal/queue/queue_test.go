package queue

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewTask_MarshalsJobID(t *testing.T) {
	id := uuid.New()
	task, err := NewTask(id)
	require.NoError(t, err)
	assert.Equal(t, TaskTypeDeidentify, task.Type())
	assert.Contains(t, string(task.Payload()), id.String())
}

func TestNewConsumer_RequiresQueueName(t *testing.T) {
	_, err := NewConsumer(ConsumerConfig{RedisURL: "redis://localhost:6379", Logger: zap.NewNop(), Runner: nil})
	assert.Error(t, err)
}

func TestNewConsumer_RequiresRunner(t *testing.T) {
	_, err := NewConsumer(ConsumerConfig{RedisURL: "redis://localhost:6379", QueueName: "deidentify", Logger: zap.NewNop()})
	assert.Error(t, err)
}

func TestExponentialBackoffWithJitter_RespectsCap(t *testing.T) {
	delayFunc := exponentialBackoffWithJitter(time.Second, 10*time.Second)
	for attempt := 0; attempt < 20; attempt++ {
		delay := delayFunc(attempt, nil, nil)
		assert.LessOrEqual(t, delay, 12*time.Second)
		assert.Greater(t, delay, time.Duration(0))
	}
}
