package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/danmuck/edgebridge/internal/bridge"
	"github.com/danmuck/edgebridge/internal/protocol/frame"
	backend "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrNoChannel = errors.New("telemetry: missing channel")

const defaultQueue = 256

// Config configures the Redis feed. An empty RedisAddr disables it.
type Config struct {
	RedisAddr      string
	Password       string
	DB             int
	Channel        string
	PublishTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Channel:        "uwb/telemetry",
		PublishTimeout: 500 * time.Millisecond,
	}
}

func (c Config) Enabled() bool {
	return strings.TrimSpace(c.RedisAddr) != ""
}

// RedisPublisher publishes frame records from a bounded queue so device
// readers never wait on Redis.
type RedisPublisher struct {
	client  *backend.Client
	channel string
	timeout time.Duration
	queue   chan Record
	now     func() time.Time
	logger  zerolog.Logger
}

func NewRedisPublisher(cfg Config) (*RedisPublisher, error) {
	client := backend.NewClient(&backend.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return NewFromClient(client, cfg.Channel, cfg.PublishTimeout)
}

func NewFromClient(client *backend.Client, channel string, timeout time.Duration) (*RedisPublisher, error) {
	channel = strings.TrimSpace(channel)
	if channel == "" {
		return nil, ErrNoChannel
	}
	if timeout <= 0 {
		timeout = DefaultConfig().PublishTimeout
	}
	return &RedisPublisher{
		client:  client,
		channel: channel,
		timeout: timeout,
		queue:   make(chan Record, defaultQueue),
		now:     time.Now,
		logger:  log.With().Str("component", "telemetry").Str("channel", channel).Logger(),
	}, nil
}

// Ping checks the Redis connection.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Publish sends one record immediately.
func (p *RedisPublisher) Publish(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.client.Publish(ctx, p.channel, payload).Err()
}

// ObserveFrame queues telemetry frames; when the queue is full the record is
// dropped.
func (p *RedisPublisher) ObserveFrame(dev bridge.Device, in frame.Inbound) {
	rec, ok := RecordFor(dev, in, p.now())
	if !ok {
		return
	}
	select {
	case p.queue <- rec:
	default:
		p.logger.Warn().Str("conn_id", dev.ConnID).Msg("telemetry queue full, record dropped")
	}
}

// Run drains the queue until ctx is done.
func (p *RedisPublisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-p.queue:
			if err := p.Publish(ctx, rec); err != nil && ctx.Err() == nil {
				p.logger.Warn().Err(err).Str("conn_id", rec.ConnID).Msg("telemetry publish failed")
			}
		}
	}
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}

var _ bridge.FrameSink = (*RedisPublisher)(nil)
