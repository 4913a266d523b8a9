package app

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"portal_server/server/common/infra/cache"
	"portal_server/server/common/infra/db"
	"portal_server/server/common/infra/mq"
	"portal_server/server/common/infra/object"
	commonlog "portal_server/server/common/log"
	"portal_server/server/notifier"
	"portal_server/server/portal/repository"
	"portal_server/server/portal/service"
)

const (
	notificationQueue = "portal.notifications"
	changeChannel     = "portal:changes"
)

// infra holds the backing connections shared by the API server and the
// notifier worker.
type infra struct {
	store   repository.Store
	redis   *redis.Client
	mqConn  *amqp.Connection
	mqQueue *mq.Queue
	queue   notifier.Queue
	feed    service.Feed
	objects service.ObjectStore
}

func openInfra(ctx context.Context, cfg Config) (*infra, error) {
	in := &infra{}
	ok := false
	defer func() {
		if !ok {
			in.close()
		}
	}()

	switch cfg.StoreBackend {
	case StoreBackendMemory:
		commonlog.Warnf("event=store action=open status=ok backend=memory detail=data_is_not_persisted")
		in.store = repository.NewMemoryStore()
	case StoreBackendPostgres:
		pool, err := db.NewPool(ctx, db.PoolConfig{
			DSN:             cfg.PostgresDSN,
			MaxConns:        int32(cfg.PostgresMaxConns),
			MaxConnLifetime: 30 * time.Minute,
		})
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		pg := repository.NewPGStore(pool)
		in.store = pg
		if err := pg.Migrate(ctx); err != nil {
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	if cfg.RedisEnabled {
		in.redis = cache.NewClient(cfg.RedisAddr)
		if err := cache.Ping(ctx, in.redis); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		in.feed = service.NewRedisFeed(cache.NewPubSub(in.redis, changeChannel))
	} else {
		in.feed = service.NewLocalFeed()
	}

	if cfg.UseMQ {
		conn, err := mq.NewConnection(cfg.LavinMQURL)
		if err != nil {
			return nil, fmt.Errorf("initialize lavinmq: %w", err)
		}
		in.mqConn = conn
		q, err := mq.NewQueue(conn, notificationQueue)
		if err != nil {
			return nil, fmt.Errorf("declare %s: %w", notificationQueue, err)
		}
		in.mqQueue = q
		in.queue = q
	} else {
		in.queue = notifier.NewLocalQueue(256)
	}

	if cfg.MinIOEndpoint != "" {
		client, err := object.NewClient(cfg.MinIOEndpoint, cfg.MinIOAccessKey, cfg.MinIOSecretKey, cfg.MinIOUseSSL)
		if err != nil {
			return nil, fmt.Errorf("initialize minio: %w", err)
		}
		if err := object.EnsureBucket(ctx, client, cfg.MinIOBucket); err != nil {
			return nil, fmt.Errorf("ensure bucket %s: %w", cfg.MinIOBucket, err)
		}
		in.objects = object.NewStorage(client, cfg.MinIOBucket)
	} else {
		commonlog.Warnf("event=object_storage action=open status=disabled detail=file_urls_unavailable")
	}

	ok = true
	return in, nil
}

// kv returns a prefixed redis key space, or nil when redis is disabled.
func (in *infra) kv(prefix string) *cache.KV {
	if in.redis == nil {
		return nil
	}
	return cache.NewKV(in.redis, prefix)
}

func (in *infra) newWorker(cfg Config) *notifier.Worker {
	var sender notifier.Sender = notifier.LogSender{}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		sender = notifier.NewTelegramSender(cfg.TelegramAPIURL, cfg.TelegramBotToken, cfg.TelegramChatID, 10*time.Second)
	} else {
		commonlog.Warnf("event=notifier action=configure status=fallback sender=log detail=telegram_not_configured")
	}
	worker := notifier.NewWorker(in.store, sender, notifier.Config{
		MaxAttempts:   cfg.NotifyMaxAttempts,
		RetryInterval: cfg.NotifyRetryInterval,
	}).WithFeed(in.feed)
	if kv := in.kv("notifier:"); kv != nil {
		worker.WithClaimer(kv)
	}
	return worker
}

func (in *infra) close() {
	if in.mqQueue != nil {
		_ = in.mqQueue.Close()
	}
	if in.mqConn != nil {
		_ = in.mqConn.Close()
	}
	if in.redis != nil {
		_ = in.redis.Close()
	}
	if in.store != nil {
		in.store.Close()
	}
}
