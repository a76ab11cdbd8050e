package transport

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirkon/errors"

	"github.com/sirkon/repinit/internal/logging"
	"github.com/sirkon/repinit/internal/wire"
)

// DefaultRedisPrefix префикс каналов по умолчанию.
const DefaultRedisPrefix = "repinit"

// RedisConfig настройки транспорта поверх публикаций redis.
type RedisConfig struct {
	URL     string
	Prefix  string
	Self    PeerID
	Workers int
	Timeout time.Duration // Предельное время одной публикации.
}

// NewRedisBus подключение к redis. Соединение устанавливается лениво,
// при первой публикации или подписке.
func NewRedisBus(cfg RedisConfig, logger logging.Logger) (*RedisBus, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis url is required")
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, errors.Wrap(err, "parse redis url").Str("url", cfg.URL)
	}

	if cfg.Prefix == "" {
		cfg.Prefix = DefaultRedisPrefix
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	return &RedisBus{
		cfg:    cfg,
		client: redis.NewClient(opts),
		logger: logger,
	}, nil
}

// RedisBus транспорт на публикациях redis. Узел подписан на собственный
// канал <prefix>:<id> и на общий канал <prefix>:broadcast.
type RedisBus struct {
	cfg    RedisConfig
	client *redis.Client
	logger logging.Logger

	sub    *redis.PubSub
	pool   *pool
	reader sync.WaitGroup
}

// Start подписка на каналы узла. Возвращается после подтверждения
// подписки, входящие сообщения передаются h.
func (b *RedisBus) Start(ctx context.Context, h Handler) error {
	sub := b.client.Subscribe(ctx, b.channel(b.cfg.Self), b.channel(Broadcast))
	for i := 0; i < 2; i++ {
		if _, err := sub.Receive(ctx); err != nil {
			_ = sub.Close()
			return errors.Wrap(err, "confirm subscription")
		}
	}

	b.sub = sub
	b.pool = newPool(b.cfg.Workers)
	b.reader.Add(1)
	go b.read(sub.Channel(), h)

	return nil
}

// Send для реализации Sender.
func (b *RedisBus) Send(to PeerID, msg wire.Message) error {
	data, err := seal(b.cfg.Self, to, msg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.Timeout)
	defer cancel()

	if err := b.client.Publish(ctx, b.channel(to), data).Err(); err != nil {
		return errors.Wrap(err, "publish message").Stg("peer", to)
	}

	return nil
}

// Close отписка и закрытие соединения.
func (b *RedisBus) Close() error {
	var errs []error
	if b.sub != nil {
		errs = append(errs, b.sub.Close())
		b.reader.Wait()
		b.pool.close()
	}
	errs = append(errs, b.client.Close())

	for _, err := range errs {
		if err != nil {
			return errors.Wrap(err, "close redis connection")
		}
	}

	return nil
}

func (b *RedisBus) channel(to PeerID) string {
	switch to {
	case Broadcast, Anywhere:
		// Любой отвечающий узел получает сообщение через общий канал.
		return b.cfg.Prefix + ":broadcast"
	default:
		return b.cfg.Prefix + ":" + to.String()
	}
}

func (b *RedisBus) read(ch <-chan *redis.Message, h Handler) {
	defer b.reader.Done()

	for m := range ch {
		env, msg, err := unseal([]byte(m.Payload))
		if err != nil {
			b.logger.ProtocolError(uint32(env.From), err)
			continue
		}
		if !addressed(env, b.cfg.Self) {
			continue
		}

		b.pool.submit(func() {
			h(env.From, msg)
		})
	}
}
