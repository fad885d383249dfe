package monitor

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	iferrors "github.com/vnykmshr/intervalflow/pkg/common/errors"
)

// Sink receives the datapoints of one collection.
type Sink interface {
	Send(ctx context.Context, dps []Datapoint) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, dps []Datapoint) error

// Send implements Sink.
func (f SinkFunc) Send(ctx context.Context, dps []Datapoint) error {
	return f(ctx, dps)
}

// LogSink writes each datapoint as a structured log line.
type LogSink struct {
	log zerolog.Logger
}

// NewLogSink creates a LogSink. A nil logger discards everything.
func NewLogSink(logger *zerolog.Logger) *LogSink {
	log := zerolog.Nop()
	if logger != nil {
		log = *logger
	}
	return &LogSink{log: log}
}

// Send implements Sink.
func (s *LogSink) Send(_ context.Context, dps []Datapoint) error {
	for _, dp := range dps {
		s.log.Info().
			Str("monitor", dp.MonitorID).
			Str("metric", dp.Metric).
			Str("type", string(dp.Type)).
			Float64("value", dp.Value).
			Time("timestamp", dp.Timestamp).
			Interface("dimensions", dp.Dimensions).
			Msg("datapoint")
	}
	return nil
}

// DefaultRedisChannel is the pub/sub channel RedisSink publishes to.
const DefaultRedisChannel = "datapoints"

// Publisher is the subset of redis.UniversalClient used by RedisSink.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisSink publishes every datapoint as a JSON message on a Redis channel.
type RedisSink struct {
	client  Publisher
	channel string
}

// NewRedisSink creates a RedisSink. An empty channel uses DefaultRedisChannel.
func NewRedisSink(client Publisher, channel string) *RedisSink {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	return &RedisSink{client: client, channel: channel}
}

// Send implements Sink. It keeps publishing after a failed message and
// returns every failure joined.
func (s *RedisSink) Send(ctx context.Context, dps []Datapoint) error {
	var errs []error
	for _, dp := range dps {
		payload, err := json.Marshal(dp)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
			errs = append(errs, iferrors.NewOperationError("monitor", "Publish", err).
				WithContext("channel "+s.channel))
		}
	}
	return errors.Join(errs...)
}
