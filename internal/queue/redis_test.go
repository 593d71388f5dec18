package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/transcoderd/internal/pipeline/model"
)

func setupRedis(t *testing.T, owner string) (*miniredis.Miniredis, *Redis) {
	t.Helper()
	mr := miniredis.RunT(t)
	return mr, redisFor(t, mr, owner)
}

func redisFor(t *testing.T, mr *miniredis.Miniredis, owner string) *Redis {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	r := newRedis(client, RedisConfig{Prefix: "t", Owner: owner, Block: time.Second, OwnerTTL: 300 * time.Millisecond})
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestRedis_Keys(t *testing.T) {
	_, r := setupRedis(t, "w1")
	assert.Equal(t, "t:jobs:2", r.JobsKey(model.CodecVP9))
	assert.Equal(t, "t:processing:2:w1", r.processingKey(model.CodecVP9, "w1"))
	assert.Equal(t, "t:results", r.ResultsKey())
	assert.Equal(t, "t:cancel", r.CancelChannel())
	assert.Equal(t, "w1", r.Owner())

	dflt := newRedis(redis.NewClient(&redis.Options{}), RedisConfig{})
	assert.Equal(t, "transcoder:results", dflt.ResultsKey())
	assert.NotEmpty(t, dflt.Owner())
}

func TestRedis_NextAndAck(t *testing.T) {
	mr, r := setupRedis(t, "w1")
	ctx := context.Background()
	_, err := mr.Lpush(r.JobsKey(model.CodecH264), encode(t, testJob("1", model.CodecH264)))
	require.NoError(t, err)

	d, err := r.Next(ctx, model.CodecH264)
	require.NoError(t, err)
	assert.Equal(t, "1", d.Job.ID)
	assert.Equal(t, 1, d.Job.AttemptsMade)

	inflight, err := mr.List(r.processingKey(model.CodecH264, "w1"))
	require.NoError(t, err)
	assert.Len(t, inflight, 1)

	require.NoError(t, r.Ack(ctx, d))
	assert.False(t, mr.Exists(r.processingKey(model.CodecH264, "w1")))
	assert.False(t, mr.Exists(r.JobsKey(model.CodecH264)))
}

func TestRedis_RetryCountsAttempt(t *testing.T) {
	mr, r := setupRedis(t, "w1")
	ctx := context.Background()
	_, err := mr.Lpush(r.JobsKey(model.CodecAV1), encode(t, testJob("1", model.CodecAV1)))
	require.NoError(t, err)

	d, err := r.Next(ctx, model.CodecAV1)
	require.NoError(t, err)
	require.NoError(t, r.Retry(ctx, d))
	assert.False(t, mr.Exists(r.processingKey(model.CodecAV1, "w1")))

	d, err = r.Next(ctx, model.CodecAV1)
	require.NoError(t, err)
	assert.Equal(t, 2, d.Job.AttemptsMade)

	require.NoError(t, r.Release(ctx, d))
	queued, err := mr.List(r.JobsKey(model.CodecAV1))
	require.NoError(t, err)
	require.Len(t, queued, 1)
	var back model.Job
	require.NoError(t, json.Unmarshal([]byte(queued[0]), &back))
	assert.Equal(t, 1, back.AttemptsMade, "release must put back the payload as delivered")
}

func TestRedis_InvalidPayloadIsBuried(t *testing.T) {
	mr, r := setupRedis(t, "w1")
	key := r.JobsKey(model.CodecH264)
	_, err := mr.Lpush(key, "{garbage")
	require.NoError(t, err)
	_, err = mr.Lpush(key, encode(t, testJob("ok", model.CodecH264)))
	require.NoError(t, err)

	d, err := r.Next(context.Background(), model.CodecH264)
	require.NoError(t, err)
	assert.Equal(t, "ok", d.Job.ID)

	dead, err := mr.List(r.DeadKey())
	require.NoError(t, err)
	assert.Equal(t, []string{"{garbage"}, dead)
}

func TestRedis_Publish(t *testing.T) {
	mr, r := setupRedis(t, "w1")
	res := model.Result{
		Event:    model.EventAddStreamVideo,
		JobID:    "1",
		Progress: &model.Progress{StreamID: "s1", Quality: 720, Codec: int(model.CodecH264)},
	}
	require.NoError(t, r.Publish(context.Background(), res))

	items, err := mr.List(r.ResultsKey())
	require.NoError(t, err)
	require.Len(t, items, 1)
	var got model.Result
	require.NoError(t, json.Unmarshal([]byte(items[0]), &got))
	assert.Equal(t, res.Event, got.Event)
	assert.Equal(t, 720, got.Progress.Quality)
}

func TestRedis_ConsumeCancels(t *testing.T) {
	mr, r := setupRedis(t, "w1")
	ctx, cancel := context.WithCancel(context.Background())
	c := &cancels{}
	done := make(chan error, 1)
	go func() { done <- r.ConsumeCancels(ctx, c) }()

	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(r.CancelChannel())[r.CancelChannel()] == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, r.Cancel(context.Background(), CancelRequest{ID: "7", IDs: []string{"8"}}))
	mr.Publish(r.CancelChannel(), "not json")
	require.Eventually(t, func() bool { return len(c.IDs()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"7", "8"}, c.IDs())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestRedis_HeartbeatAndRecoverOrphans(t *testing.T) {
	mr, r := setupRedis(t, "w1")
	dead := redisFor(t, mr, "w2")
	alive := redisFor(t, mr, "w3")
	ctx := context.Background()
	key := r.JobsKey(model.CodecH265)

	for _, id := range []string{"a", "b"} {
		_, err := mr.Lpush(key, encode(t, testJob(id, model.CodecH265)))
		require.NoError(t, err)
	}
	_, err := dead.Next(ctx, model.CodecH265)
	require.NoError(t, err)
	_, err = alive.Next(ctx, model.CodecH265)
	require.NoError(t, err)
	assert.False(t, mr.Exists(key))

	hbCtx, stop := context.WithCancel(ctx)
	hbDone := make(chan error, 1)
	go func() { hbDone <- alive.Heartbeat(hbCtx) }()
	require.Eventually(t, func() bool { return mr.Exists("t:owners:w3") }, time.Second, 5*time.Millisecond)

	moved, err := r.RecoverOrphans(ctx, model.CodecH265)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)

	d, err := r.Next(ctx, model.CodecH265)
	require.NoError(t, err)
	assert.Equal(t, "a", d.Job.ID)
	assert.Equal(t, 1, d.Job.AttemptsMade, "recovered payload is the original one")

	stop()
	require.NoError(t, <-hbDone)
	assert.False(t, mr.Exists("t:owners:w3"))
}

func TestRedis_PushIsFIFO(t *testing.T) {
	_, r := setupRedis(t, "w1")
	ctx := context.Background()
	require.NoError(t, r.Push(ctx, testJob("a", model.CodecVP9)))
	require.NoError(t, r.Push(ctx, testJob("b", model.CodecVP9)))

	bad := testJob("", model.CodecVP9)
	assert.Error(t, r.Push(ctx, bad))

	first, err := r.Next(ctx, model.CodecVP9)
	require.NoError(t, err)
	second, err := r.Next(ctx, model.CodecVP9)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, []string{first.Job.ID, second.Job.ID})
}
