package samplestore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kubenetlabs/watchrule/internal/watchrule"
)

// RedisStore keeps samples in a Redis sorted set per rule key, scored by
// Unix-nanosecond timestamp. It is the backend for multi-process
// deployments where the scheduler and ingestion handler run as separate
// replicas.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore wraps client. prefix namespaces the sorted-set keys this
// store writes, so a single Redis instance can be shared with unrelated
// data.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) key(ruleKey string) string {
	return fmt.Sprintf("%s:samples:%s", r.prefix, ruleKey)
}

type redisSample struct {
	MetricName string            `json:"metric_name"`
	Timestamp  int64             `json:"timestamp"`
	Value      float64           `json:"value"`
	Unit       string            `json:"unit"`
	Dimensions map[string]string `json:"dimensions,omitempty"`
}

func encodeSample(s watchrule.Sample) (string, error) {
	raw, err := json.Marshal(redisSample{
		MetricName: s.MetricName,
		Timestamp:  s.Timestamp.UnixNano(),
		Value:      s.Value,
		Unit:       s.Unit,
		Dimensions: s.Dimensions,
	})
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeSample(member string) (watchrule.Sample, error) {
	var rs redisSample
	if err := json.Unmarshal([]byte(member), &rs); err != nil {
		return watchrule.Sample{}, err
	}
	return watchrule.Sample{
		MetricName: rs.MetricName,
		Timestamp:  time.Unix(0, rs.Timestamp),
		Value:      rs.Value,
		Unit:       rs.Unit,
		Dimensions: rs.Dimensions,
	}, nil
}

func (r *RedisStore) Insert(ctx context.Context, ruleKey string, sample watchrule.Sample) error {
	member, err := encodeSample(sample)
	if err != nil {
		return fmt.Errorf("samplestore: encode sample: %w", err)
	}
	return r.client.ZAdd(ctx, r.key(ruleKey), redis.Z{
		Score:  float64(sample.Timestamp.UnixNano()),
		Member: member,
	}).Err()
}

func (r *RedisStore) Query(ctx context.Context, ruleKey string, start, end time.Time) ([]watchrule.Sample, error) {
	// ZRANGEBYSCORE is inclusive on both ends; exclude end explicitly to
	// keep the [start, end) contract.
	members, err := r.client.ZRangeByScore(ctx, r.key(ruleKey), &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", start.UnixNano()),
		Max: fmt.Sprintf("(%d", end.UnixNano()),
	}).Result()
	if err != nil {
		return nil, err
	}

	out := make([]watchrule.Sample, 0, len(members))
	for _, m := range members {
		s, err := decodeSample(m)
		if err != nil {
			return nil, fmt.Errorf("samplestore: decode sample: %w", err)
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *RedisStore) Prune(ctx context.Context, ruleKey string, cutoff time.Time) error {
	return r.client.ZRemRangeByScore(ctx, r.key(ruleKey), "-inf", fmt.Sprintf("(%d", cutoff.UnixNano())).Err()
}
