package cloudsync

import (
	"context"
	"encoding/json"
	"log"

	redis "github.com/redis/go-redis/v9"
)

const (
	docKeyPrefix  = "pharmastore:"
	changeChannel = "pharmastore.changes."
)

// RedisRemote keeps each collection document as a JSON string and announces
// writes over pub/sub so other replicas can react in real time.
type RedisRemote struct {
	client *redis.Client
}

func NewRedisRemote(addr string, password string, db int) *RedisRemote {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisRemote{client: client}
}

func (r *RedisRemote) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisRemote) Get(ctx context.Context, name string) (Document, bool, error) {
	val, err := r.client.Get(ctx, docKeyPrefix+name).Result()
	if err == redis.Nil {
		return Document{}, false, nil
	}
	if err != nil {
		return Document{}, false, err
	}

	var doc Document
	if err := json.Unmarshal([]byte(val), &doc); err != nil {
		return Document{}, false, err
	}
	return doc, true, nil
}

// SetBatch writes all documents in one transactional pipeline and publishes
// a change notification per document.
func (r *RedisRemote) SetBatch(ctx context.Context, docs map[string]Document) error {
	payloads := make(map[string][]byte, len(docs))
	for name, doc := range docs {
		raw, err := json.Marshal(doc)
		if err != nil {
			return err
		}
		payloads[name] = raw
	}

	pipe := r.client.TxPipeline()
	for name, raw := range payloads {
		pipe.Set(ctx, docKeyPrefix+name, raw, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}

	for name, raw := range payloads {
		if err := r.client.Publish(ctx, changeChannel+name, raw).Err(); err != nil {
			log.Printf("[cloudsync] WARN: failed to publish change for %s: %v", name, err)
		}
	}
	return nil
}

func (r *RedisRemote) Subscribe(ctx context.Context, name string, handler func(Document)) (func(), error) {
	pubsub := r.client.Subscribe(ctx, changeChannel+name)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	go func() {
		for msg := range pubsub.Channel() {
			var doc Document
			if err := json.Unmarshal([]byte(msg.Payload), &doc); err != nil {
				log.Printf("[cloudsync] WARN: bad change payload on %s: %v", msg.Channel, err)
				continue
			}
			handler(doc)
		}
	}()

	return func() { _ = pubsub.Close() }, nil
}

func (r *RedisRemote) Close() error {
	return r.client.Close()
}
