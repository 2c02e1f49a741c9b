//go:build integration

package scan_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"manifestgate/internal/scan"
	"manifestgate/pkg/sentinel"
	"manifestgate/pkg/testutil/containers"
)

type RedisQueueSuite struct {
	suite.Suite
	redis *containers.RedisContainer
}

func TestRedisQueueSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisQueueSuite))
}

func (s *RedisQueueSuite) SetupSuite() {
	s.redis = containers.NewRedisContainer(s.T())
}

func (s *RedisQueueSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(context.Background()))
}

func (s *RedisQueueSuite) TestFIFOAndBackpressure() {
	ctx := context.Background()
	q := scan.NewRedisQueue(s.redis.Client, "test:scan:queue", 2)

	s.Require().NoError(q.Enqueue(ctx, "tkt-1"))
	s.Require().NoError(q.Enqueue(ctx, "tkt-2"))
	s.ErrorIs(q.Enqueue(ctx, "tkt-3"), sentinel.ErrQueueFull)

	got, err := q.Dequeue(ctx)
	s.Require().NoError(err)
	s.Equal("tkt-1", got)

	got, err = q.Dequeue(ctx)
	s.Require().NoError(err)
	s.Equal("tkt-2", got)

	// Capacity freed; enqueue succeeds again.
	s.NoError(q.Enqueue(ctx, "tkt-3"))
}

func (s *RedisQueueSuite) TestDequeueBlocksUntilEnqueue() {
	ctx := context.Background()
	q := scan.NewRedisQueue(s.redis.Client, "test:scan:queue", 0)

	done := make(chan string, 1)
	go func() {
		id, err := q.Dequeue(ctx)
		if err == nil {
			done <- id
		}
	}()

	time.Sleep(100 * time.Millisecond)
	s.Require().NoError(q.Enqueue(ctx, "tkt-later"))

	select {
	case id := <-done:
		s.Equal("tkt-later", id)
	case <-time.After(5 * time.Second):
		s.Fail("dequeue did not observe the enqueued ticket")
	}
}

func (s *RedisQueueSuite) TestDequeueHonorsCancellation() {
	q := scan.NewRedisQueue(s.redis.Client, "test:scan:queue", 0)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := q.Dequeue(ctx)
	s.Error(err)
	s.Less(time.Since(start), 3*time.Second)
}
