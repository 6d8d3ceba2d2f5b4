package nats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/capitalize-ai/chat-orchestrator/internal/model"
)

// DefaultCacheBucket is the KeyValue bucket holding generated functions.
const DefaultCacheBucket = "FUNCTION_CACHE"

// KVCache stores generated functions in a JetStream KeyValue bucket. Items are
// stored without executables and rebound through a method registry on read.
type KVCache struct {
	kv       jetstream.KeyValue
	registry *model.MethodRegistry
}

// NewKVCache opens bucket, creating it when missing. A zero ttl keeps
// entries until they are overwritten.
func NewKVCache(ctx context.Context, client *Client, bucket string, ttl time.Duration, registry *model.MethodRegistry) (*KVCache, error) {
	if registry == nil {
		return nil, model.Validationf("kv cache needs a method registry")
	}
	if bucket == "" {
		bucket = DefaultCacheBucket
	}

	js := client.JetStream()
	kv, err := js.KeyValue(ctx, bucket)
	if errors.Is(err, jetstream.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      bucket,
			Description: "Generated function lists by cache key",
			TTL:         ttl,
			Storage:     jetstream.FileStorage,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open kv bucket %s: %w", bucket, err)
	}

	return &KVCache{kv: kv, registry: registry}, nil
}

// Get returns the functions stored under key with their methods rebound.
func (c *KVCache) Get(ctx context.Context, key string) ([]model.FunctionItem, bool, error) {
	entry, err := c.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache key: %w", err)
	}

	functions, err := c.registry.DecodeFunctionItems(entry.Value())
	if err != nil {
		return nil, false, err
	}
	return functions, true, nil
}

// Set stores functions under key. Later writes win.
func (c *KVCache) Set(ctx context.Context, key string, functions []model.FunctionItem) error {
	if functions == nil {
		functions = []model.FunctionItem{}
	}
	data, err := json.Marshal(functions)
	if err != nil {
		return fmt.Errorf("failed to encode functions: %w", err)
	}
	if _, err := c.kv.Put(ctx, key, data); err != nil {
		return fmt.Errorf("failed to write cache key: %w", err)
	}
	return nil
}
