package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kode4food/beckn/pkg/api"
	"github.com/kode4food/beckn/pkg/log"
)

type (
	// Redis keeps each record as a JSON value under its own key. Mutations
	// use optimistic WATCH/MULTI transactions, so concurrent callbacks for
	// the same transaction serialize without a process-local lock
	Redis struct {
		options
		client *redis.Client
		prefix string
		ttl    time.Duration
	}

	// RedisConfig locates the Redis server and shapes its keys
	RedisConfig struct {
		Addr     string
		Password string
		DB       int
		Prefix   string
		TTL      time.Duration
	}
)

const maxTxRetries = 16

var _ Store = (*Redis)(nil)

// NewRedis connects a Redis-backed store
func NewRedis(cfg RedisConfig, opts ...Option) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Redis{
		options: makeOptions(opts),
		client:  client,
		prefix:  cfg.Prefix,
		ttl:     cfg.TTL,
	}
}

// Ping verifies the connection
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Create implements Store
func (r *Redis) Create(
	ctx context.Context, id api.TransactionID,
) (*api.Transaction, error) {
	if id == "" {
		return nil, ErrEmptyTransactionID
	}
	tx := newRecord(id, r.clock())
	data, err := json.Marshal(tx)
	if err != nil {
		return nil, err
	}
	ok, err := r.client.SetNX(ctx, r.key(id), data, r.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTransactionExists, id)
	}
	if err := r.client.SAdd(ctx, r.indexKey(), string(id)).Err(); err != nil {
		return nil, err
	}
	r.feed.Publish(eventFor(tx, ""))
	return tx, nil
}

// Get implements Store
func (r *Redis) Get(
	ctx context.Context, id api.TransactionID,
) (*api.Transaction, error) {
	data, err := r.client.Get(ctx, r.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTransaction, id)
	}
	if err != nil {
		return nil, err
	}
	return decodeRecord(data)
}

// ApplyCallback implements Store
func (r *Redis) ApplyCallback(
	ctx context.Context, id api.TransactionID, action api.Action, p Payload,
) (*api.Transaction, error) {
	res, err := r.update(ctx, id, func(tx *api.Transaction) error {
		return applyCallback(tx, action, p, r.clock())
	})
	if err != nil {
		return nil, err
	}
	r.feed.Publish(eventFor(res, action))
	return res, nil
}

// Fail implements Store
func (r *Redis) Fail(
	ctx context.Context, id api.TransactionID, reason string,
) (*api.Transaction, error) {
	res, err := r.update(ctx, id, func(tx *api.Transaction) error {
		return fail(tx, reason, r.clock())
	})
	if err != nil {
		return nil, err
	}
	r.feed.Publish(eventFor(res, ""))
	return res, nil
}

// Expire implements Store
func (r *Redis) Expire(
	ctx context.Context, id api.TransactionID, reason string, seen time.Time,
) (*api.Transaction, error) {
	res, err := r.update(ctx, id, func(tx *api.Transaction) error {
		return expire(tx, reason, seen, r.clock())
	})
	if err != nil {
		return nil, err
	}
	r.feed.Publish(eventFor(res, ""))
	return res, nil
}

// List implements Store. Index entries whose record has expired are pruned
func (r *Redis) List(ctx context.Context) ([]*api.Transaction, error) {
	ids, err := r.client.SMembers(ctx, r.indexKey()).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*api.Transaction{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.key(api.TransactionID(id))
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	res := make([]*api.Transaction, 0, len(vals))
	var stale []any
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		tx, err := decodeRecord([]byte(s))
		if err != nil {
			slog.Warn("Skipping undecodable transaction record",
				log.TransactionID(ids[i]),
				log.Error(err))
			continue
		}
		res = append(res, tx)
	}
	if len(stale) > 0 {
		if err := r.client.SRem(ctx, r.indexKey(), stale...).Err(); err != nil {
			slog.Warn("Failed to prune transaction index",
				log.Error(err))
		}
	}
	sortByCreated(res)
	return res, nil
}

// Delete implements Store
func (r *Redis) Delete(ctx context.Context, id api.TransactionID) error {
	var del *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		del = p.Del(ctx, r.key(id))
		p.SRem(ctx, r.indexKey(), string(id))
		return nil
	})
	if err != nil {
		return err
	}
	if del.Val() == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownTransaction, id)
	}
	return nil
}

// Events implements Store
func (r *Redis) Events() *Feed {
	return r.feed
}

// Close implements Store
func (r *Redis) Close() error {
	r.feed.Close()
	return r.client.Close()
}

func (r *Redis) update(
	ctx context.Context, id api.TransactionID, fn func(*api.Transaction) error,
) (*api.Transaction, error) {
	key := r.key(id)
	var res *api.Transaction

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%w: %s", ErrUnknownTransaction, id)
		}
		if err != nil {
			return err
		}
		rec, err := decodeRecord(data)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
		next, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, next, redis.KeepTTL)
			return nil
		})
		if err == nil {
			res = rec
		}
		return err
	}

	for range maxTxRetries {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return res, nil
	}
	return nil, fmt.Errorf("%w: %s", redis.TxFailedErr, id)
}

func (r *Redis) key(id api.TransactionID) string {
	return r.prefix + ":txn:" + string(id)
}

func (r *Redis) indexKey() string {
	return r.prefix + ":txns"
}

func decodeRecord(data []byte) (*api.Transaction, error) {
	var tx api.Transaction
	if err := json.Unmarshal(data, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}
