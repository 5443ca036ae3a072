package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// DefaultChannel is the pub/sub channel used for board changes
const DefaultChannel = "clientboard:changes"

// RedisOptions configures a RedisBus
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Channel  string
	Logger   *zap.Logger
}

// RedisBus delivers changes across processes through Redis pub/sub
type RedisBus struct {
	client  *redis.Client
	channel string
	log     *zap.Logger
	local   *LocalBus

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

// NewRedisBus connects to Redis and starts relaying the channel to local
// subscribers
func NewRedisBus(ctx context.Context, opts RedisOptions) (*RedisBus, error) {
	if opts.Channel == "" {
		opts.Channel = DefaultChannel
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}

	pubsub := client.Subscribe(ctx, opts.Channel)
	// Wait for the subscription to be confirmed before publishing anything.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		client.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", opts.Channel, err)
	}

	b := &RedisBus{
		client:  client,
		channel: opts.Channel,
		log:     opts.Logger.Named("redis-bus"),
		local:   NewLocalBus(),
		pubsub:  pubsub,
		done:    make(chan struct{}),
	}
	go b.relay(pubsub.Channel())
	return b, nil
}

func (b *RedisBus) relay(messages <-chan *redis.Message) {
	defer close(b.done)
	for msg := range messages {
		var c Change
		if err := cbor.Unmarshal([]byte(msg.Payload), &c); err != nil {
			b.log.Warn("dropping malformed change", zap.Error(err))
			continue
		}
		b.local.Publish(context.Background(), c)
	}
}

// Publish sends the change to every process subscribed to the channel,
// including this one
func (b *RedisBus) Publish(ctx context.Context, c Change) error {
	payload, err := cbor.Marshal(c)
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, payload).Err()
}

// Subscribe registers handler for changes arriving from Redis
func (b *RedisBus) Subscribe(handler func(Change)) func() {
	return b.local.Subscribe(handler)
}

// Close stops the relay and disconnects
func (b *RedisBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pubsub == nil {
		return nil
	}
	err := b.pubsub.Close()
	<-b.done
	b.pubsub = nil
	b.local.Close()
	if cerr := b.client.Close(); err == nil {
		err = cerr
	}
	return err
}
