// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ManuGH/transcoderd/internal/log"
	"github.com/ManuGH/transcoderd/internal/pipeline/model"
)

// RedisConfig holds Redis connection and naming configuration.
type RedisConfig struct {
	Addr     string // Redis server address (host:port)
	Password string // Redis password (optional)
	DB       int    // Redis database number
	Prefix   string // key prefix shared with the producer
	// Owner names this process's processing lists. Empty means OwnerID().
	Owner string
	// Block is the server-side wait of one job poll.
	Block time.Duration
	// OwnerTTL is the liveness window of the owner heartbeat.
	OwnerTTL time.Duration
}

// DefaultPrefix is used when RedisConfig.Prefix is empty.
const DefaultPrefix = "transcoder"

// Canceller receives cancellation requests.
type Canceller interface {
	Cancel(jobID string)
}

// Redis moves jobs with BLMOVE from "<prefix>:jobs:<codec>" into a
// processing list owned by this process, so jobs of a crashed worker can be
// handed back by RecoverOrphans. Results are RPUSHed to "<prefix>:results";
// cancellations are broadcast on the "<prefix>:cancel" channel.
type Redis struct {
	client *redis.Client
	prefix string
	owner  string
	block  time.Duration
	ttl    time.Duration
	valid  *Validator
}

// OwnerID returns a process identity of the form host-pid-uuid.
func OwnerID() string {
	host, _ := os.Hostname()
	host = strings.ReplaceAll(host, ":", "-")
	return fmt.Sprintf("%s-%d-%s", host, os.Getpid(), uuid.New().String())
}

// NewRedis connects and pings the server.
func NewRedis(ctx context.Context, cfg RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	r := newRedis(client, cfg)
	logger := log.WithComponent("queue")
	logger.Info().
		Str("addr", cfg.Addr).
		Int("db", cfg.DB).
		Str("prefix", r.prefix).
		Str(log.FieldOwner, r.owner).
		Msg("connected to Redis")
	return r, nil
}

func newRedis(client *redis.Client, cfg RedisConfig) *Redis {
	r := &Redis{
		client: client,
		prefix: cfg.Prefix,
		owner:  cfg.Owner,
		block:  cfg.Block,
		ttl:    cfg.OwnerTTL,
		valid:  NewValidator(),
	}
	if r.prefix == "" {
		r.prefix = DefaultPrefix
	}
	if r.owner == "" {
		r.owner = OwnerID()
	}
	if r.block <= 0 {
		r.block = 5 * time.Second
	}
	if r.ttl <= 0 {
		r.ttl = 30 * time.Second
	}
	return r
}

// Owner is the identity of this process.
func (r *Redis) Owner() string { return r.owner }

func (r *Redis) key(parts ...string) string {
	return r.prefix + ":" + strings.Join(parts, ":")
}

func codecKey(c model.Codec) string { return strconv.Itoa(int(c)) }

// JobsKey is the list producers push jobs of codec to.
func (r *Redis) JobsKey(c model.Codec) string { return r.key("jobs", codecKey(c)) }

func (r *Redis) processingKey(c model.Codec, owner string) string {
	return r.key("processing", codecKey(c), owner)
}

func (r *Redis) ownerKey(owner string) string { return r.key("owners", owner) }

// ResultsKey is the list results are appended to.
func (r *Redis) ResultsKey() string { return r.key("results") }

// DeadKey collects payloads that failed validation.
func (r *Redis) DeadKey() string { return r.key("dead") }

// CancelChannel is the pub/sub channel of cancellation requests.
func (r *Redis) CancelChannel() string { return r.key("cancel") }

// Next blocks until a valid job of codec is available. Invalid payloads
// are moved to the dead list.
func (r *Redis) Next(ctx context.Context, codec model.Codec) (*Delivery, error) {
	logger := log.WithComponent("queue")
	jobs, proc := r.JobsKey(codec), r.processingKey(codec, r.owner)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := r.client.BLMove(ctx, jobs, proc, "RIGHT", "LEFT", r.block).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("take job: %w", err)
		}
		job, err := r.valid.DecodeJob([]byte(raw))
		if err != nil {
			logger.Warn().Err(err).Str(log.FieldCodec, codec.String()).Msg("discarding invalid job payload")
			if berr := r.bury(ctx, proc, raw); berr != nil {
				return nil, berr
			}
			continue
		}
		job.AttemptsMade++
		return &Delivery{Job: job, Codec: codec, raw: raw}, nil
	}
}

func (r *Redis) bury(ctx context.Context, proc, raw string) error {
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LRem(ctx, proc, 1, raw)
		p.RPush(ctx, r.DeadKey(), raw)
		return nil
	})
	if err != nil {
		return fmt.Errorf("bury job: %w", err)
	}
	return nil
}

// Ack removes a settled delivery.
func (r *Redis) Ack(ctx context.Context, d *Delivery) error {
	if err := r.client.LRem(ctx, r.processingKey(d.Codec, r.owner), 1, d.raw).Err(); err != nil {
		return fmt.Errorf("ack job %s: %w", d.Job.ID, err)
	}
	return nil
}

// Retry puts the job back at the end of its queue with this attempt counted.
func (r *Redis) Retry(ctx context.Context, d *Delivery) error {
	payload, err := json.Marshal(d.Job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", d.Job.ID, err)
	}
	return r.requeue(ctx, d, string(payload))
}

// Release puts the job back unchanged, as if it had never been taken.
func (r *Redis) Release(ctx context.Context, d *Delivery) error {
	return r.requeue(ctx, d, d.raw)
}

func (r *Redis) requeue(ctx context.Context, d *Delivery, payload string) error {
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.LRem(ctx, r.processingKey(d.Codec, r.owner), 1, d.raw)
		p.LPush(ctx, r.JobsKey(d.Codec), payload)
		return nil
	})
	if err != nil {
		return fmt.Errorf("requeue job %s: %w", d.Job.ID, err)
	}
	return nil
}

// Push enqueues job at the end of the queue of its codec.
func (r *Redis) Push(ctx context.Context, job *model.Job) error {
	if err := r.valid.Validate(job); err != nil {
		return err
	}
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job: %w", err)
	}
	if err := r.client.LPush(ctx, r.JobsKey(job.Data.Codec), payload).Err(); err != nil {
		return fmt.Errorf("push job %s: %w", job.ID, err)
	}
	return nil
}

// Publish appends a result message.
func (r *Redis) Publish(ctx context.Context, res model.Result) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := r.client.RPush(ctx, r.ResultsKey(), payload).Err(); err != nil {
		return fmt.Errorf("push result: %w", err)
	}
	return nil
}

// Cancel broadcasts a cancellation request to every worker.
func (r *Redis) Cancel(ctx context.Context, req CancelRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode cancel request: %w", err)
	}
	return r.client.Publish(ctx, r.CancelChannel(), payload).Err()
}

// ConsumeCancels feeds cancellation requests into c until ctx is done.
func (r *Redis) ConsumeCancels(ctx context.Context, c Canceller) error {
	logger := log.WithComponent("queue")
	sub := r.client.Subscribe(ctx, r.CancelChannel())
	defer func() { _ = sub.Close() }()
	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe cancellations: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return ErrClosed
			}
			var req CancelRequest
			if err := json.Unmarshal([]byte(msg.Payload), &req); err != nil {
				logger.Warn().Err(err).Msg("ignoring malformed cancel request")
				continue
			}
			for _, id := range req.JobIDs() {
				logger.Info().Str(log.FieldJobID, id).Msg("cancel requested")
				c.Cancel(id)
			}
		}
	}
}

// Heartbeat keeps the owner key alive until ctx is done.
func (r *Redis) Heartbeat(ctx context.Context) error {
	key := r.ownerKey(r.owner)
	beat := func() error {
		return r.client.Set(ctx, key, time.Now().Unix(), r.ttl).Err()
	}
	if err := beat(); err != nil {
		return fmt.Errorf("owner heartbeat: %w", err)
	}
	ticker := time.NewTicker(r.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			_ = r.client.Del(context.WithoutCancel(ctx), key).Err()
			return nil
		case <-ticker.C:
			if err := beat(); err != nil && ctx.Err() == nil {
				logger := log.WithComponent("queue")
				logger.Warn().Err(err).Msg("owner heartbeat failed")
			}
		}
	}
}

// RecoverOrphans hands the in-flight jobs of dead owners back to the
// front of the codec queue and returns how many were moved.
func (r *Redis) RecoverOrphans(ctx context.Context, codec model.Codec) (int, error) {
	prefix := r.processingKey(codec, "")
	jobs := r.JobsKey(codec)
	moved := 0
	iter := r.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		owner := strings.TrimPrefix(key, prefix)
		if owner == r.owner {
			continue
		}
		alive, err := r.client.Exists(ctx, r.ownerKey(owner)).Result()
		if err != nil {
			return moved, fmt.Errorf("check owner %s: %w", owner, err)
		}
		if alive > 0 {
			continue
		}
		for {
			err := r.client.LMove(ctx, key, jobs, "RIGHT", "RIGHT").Err()
			if errors.Is(err, redis.Nil) {
				break
			}
			if err != nil {
				return moved, fmt.Errorf("recover %s: %w", key, err)
			}
			moved++
		}
		logger := log.WithComponent("queue")
		logger.Info().Str(log.FieldOwner, owner).Int("jobs", moved).Msg("recovered orphaned jobs")
	}
	if err := iter.Err(); err != nil {
		return moved, fmt.Errorf("scan processing lists: %w", err)
	}
	return moved, nil
}

// Close closes the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}

// HealthCheck checks if Redis is available.
func (r *Redis) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
