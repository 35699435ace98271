// Package rq reads queue statistics straight from the Redis keys maintained
// by RQ workers.
package rq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/izzyreal/qwatch/internal/protocol"
	"github.com/izzyreal/qwatch/internal/source"
)

const (
	keyQueues      = "rq:queues"
	queueKeyPrefix = "rq:queue:"
	jobKeyPrefix   = "rq:job:"

	// maxCompletionsPerRegistry caps the job hashes read per registry and call.
	maxCompletionsPerRegistry = 500
)

// registryKeys maps every non-list state to its sorted-set registry prefix.
var registryKeys = map[string]string{
	protocol.QueueStateStarted:   "rq:wip:",
	protocol.QueueStateFinished:  "rq:finished:",
	protocol.QueueStateFailed:    "rq:failed:",
	protocol.QueueStateDeferred:  "rq:deferred:",
	protocol.QueueStateScheduled: "rq:scheduled:",
}

type Source struct {
	client redis.UniversalClient
}

func New(client redis.UniversalClient) *Source {
	return &Source{client: client}
}

// Connect parses url, pings the server and retries a failed ping up to
// attempts times.
func Connect(ctx context.Context, url string, attempts int, delay time.Duration) (*Source, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if attempts <= 0 {
		attempts = 3
	}
	client := redis.NewClient(opts)

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if lastErr = client.Ping(ctx).Err(); lastErr == nil {
			slog.Info("connected to redis", "addr", opts.Addr, "db", opts.DB)
			return New(client), nil
		}
		slog.Warn("redis connection attempt failed", "attempt", attempt, "error", lastErr)
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			_ = client.Close()
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
	_ = client.Close()
	return nil, fmt.Errorf("connect redis after %d attempts: %w", attempts, lastErr)
}

func (s *Source) Name() string { return "rq" }

func (s *Source) Close() error { return s.client.Close() }

// Queues lists the queue names registered in rq:queues, filtered by glob.
func (s *Source) Queues(ctx context.Context, filter string) ([]string, error) {
	keys, err := s.client.SMembers(ctx, keyQueues).Result()
	if err != nil {
		return nil, fmt.Errorf("list rq queues: %w", err)
	}
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		name := strings.TrimPrefix(key, queueKeyPrefix)
		if name == "" || !source.MatchQueue(filter, name) {
			continue
		}
		out = append(out, name)
	}
	return out, nil
}

func (s *Source) QueueStats(ctx context.Context, q source.Query) (protocol.QueueStats, error) {
	names, err := s.Queues(ctx, q.Filter)
	if err != nil {
		return protocol.QueueStats{}, err
	}

	counts := protocol.EmptyQueueCounts()
	if len(names) > 0 {
		if err := s.countInto(ctx, names, counts); err != nil {
			return protocol.QueueStats{}, err
		}
	}

	completions, err := s.completions(ctx, names, q)
	if err != nil {
		return protocol.QueueStats{}, err
	}
	return protocol.QueueStats{
		Queue:      counts,
		Processing: source.BuildProcessing(counts, completions, q),
	}, nil
}

func (s *Source) countInto(ctx context.Context, names []string, counts map[string]int64) error {
	type pending struct {
		state string
		cmd   *redis.IntCmd
	}
	var cmds []pending
	pipe := s.client.Pipeline()
	for _, name := range names {
		cmds = append(cmds, pending{protocol.QueueStateQueued, pipe.LLen(ctx, queueKeyPrefix+name)})
		for state, prefix := range registryKeys {
			cmds = append(cmds, pending{state, pipe.ZCard(ctx, prefix+name)})
		}
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("count rq registries: %w", err)
	}
	for _, c := range cmds {
		n, err := c.cmd.Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("count rq %s: %w", c.state, err)
		}
		counts[c.state] += n
	}
	return nil
}

// completions loads start and end times of jobs in the finished and failed
// registries. Registry scores are expiry times, not end times, so the window
// is applied to ended_at after the hashes are read.
func (s *Source) completions(ctx context.Context, names []string, q source.Query) ([]source.Completion, error) {
	var out []source.Completion
	for _, name := range names {
		for _, state := range []string{protocol.QueueStateFinished, protocol.QueueStateFailed} {
			ids, err := s.client.ZRevRange(ctx, registryKeys[state]+name, 0, maxCompletionsPerRegistry-1).Result()
			if err != nil {
				return nil, fmt.Errorf("list rq %s registry for %s: %w", state, name, err)
			}
			if len(ids) == 0 {
				continue
			}
			pipe := s.client.Pipeline()
			cmds := make([]*redis.SliceCmd, len(ids))
			for i, id := range ids {
				cmds[i] = pipe.HMGet(ctx, jobKeyPrefix+id, "started_at", "ended_at")
			}
			if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
				return nil, fmt.Errorf("read rq jobs for %s: %w", name, err)
			}
			for _, cmd := range cmds {
				vals, err := cmd.Result()
				if err != nil || len(vals) != 2 {
					continue
				}
				c := source.Completion{
					Queue:   name,
					Status:  state,
					Started: parseRQTime(vals[0]),
					Ended:   parseRQTime(vals[1]),
				}
				if c.Ended.IsZero() {
					continue
				}
				out = append(out, c)
			}
		}
	}
	return out, nil
}

// parseRQTime reads RQ's "2006-01-02T15:04:05.000000Z" timestamps.
func parseRQTime(v any) time.Time {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
