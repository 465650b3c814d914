package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/okieraised/go-fasterrcnn/config"
	"github.com/okieraised/go-fasterrcnn/utils"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorgonia.org/tensor"
)

type cachedAnchors struct {
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

// RedisAnchorCache shares anchor grids between processes through Redis.
type RedisAnchorCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisAnchorCache(cfg *config.CacheParams) *RedisAnchorCache {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &RedisAnchorCache{
		client: client,
		ttl:    cfg.TTL,
	}
}

func (c *RedisAnchorCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Get returns the anchors stored under key. A miss is not an error.
func (c *RedisAnchorCache) Get(ctx context.Context, key string) (*tensor.Dense, bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, errors.Wrapf(err, "failed to read anchors %s", key)
	}

	var entry cachedAnchors
	if err := json.Unmarshal(data, &entry); err != nil {
		utils.Logger.Error("failed to unmarshal cached anchors", zap.String("key", key), zap.Error(err))
		return nil, false, errors.Wrapf(err, "corrupt anchors %s", key)
	}

	size := 1
	for _, d := range entry.Shape {
		size *= d
	}
	if len(entry.Shape) == 0 || size != len(entry.Data) {
		return nil, false, errors.Errorf("cached anchors %s hold %d values for shape %v", key, len(entry.Data), entry.Shape)
	}

	return tensor.New(
		tensor.Of(tensor.Float32),
		tensor.WithShape(entry.Shape...),
		tensor.WithBacking(entry.Data),
	), true, nil
}

func (c *RedisAnchorCache) Set(ctx context.Context, key string, anchors *tensor.Dense) error {
	data, err := json.Marshal(cachedAnchors{
		Shape: anchors.Shape().Clone(),
		Data:  anchors.Float32s(),
	})
	if err != nil {
		return err
	}

	return c.client.Set(ctx, key, data, c.ttl).Err()
}

func (c *RedisAnchorCache) Close() error {
	return c.client.Close()
}
