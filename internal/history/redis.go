package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dvloznov/finance-assistant/internal/domain"
	"github.com/dvloznov/finance-assistant/internal/identity"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis keeps each conversation as a list of JSON turns.
type Redis struct {
	rdb    *redis.Client
	prefix string
}

var _ Store = (*Redis)(nil)

// RedisOptions configures the Redis store.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// OpenRedis connects and pings the server.
func OpenRedis(ctx context.Context, opts RedisOptions) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("OpenRedis: ping %s: %w", opts.Addr, err)
	}

	prefix := opts.Prefix
	if prefix == "" {
		prefix = "finance-assistant"
	}
	return &Redis{rdb: rdb, prefix: prefix}, nil
}

// Close closes the client.
func (r *Redis) Close() error { return r.rdb.Close() }

func (r *Redis) turnsKey(tenant identity.TenantID, conversationID string) string {
	return fmt.Sprintf("%s:history:%s:%s", r.prefix, tenant, conversationID)
}

func (r *Redis) conversationsKey(tenant identity.TenantID) string {
	return fmt.Sprintf("%s:conversations:%s", r.prefix, tenant)
}

// Get implements Store.
func (r *Redis) Get(ctx context.Context, tenant identity.TenantID, conversationID string) ([]domain.Turn, error) {
	if err := checkKey(tenant, conversationID); err != nil {
		return nil, err
	}

	vals, err := r.rdb.LRange(ctx, r.turnsKey(tenant, conversationID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("Redis.Get: %w", err)
	}

	turns := make([]domain.Turn, 0, len(vals))
	for _, v := range vals {
		var t domain.Turn
		if err := json.Unmarshal([]byte(v), &t); err != nil {
			return nil, fmt.Errorf("Redis.Get: decode turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}

// Append implements Store. RPUSH with several values is atomic.
func (r *Redis) Append(ctx context.Context, tenant identity.TenantID, conversationID string, turns ...domain.Turn) error {
	if err := checkKey(tenant, conversationID); err != nil {
		return err
	}
	if len(turns) == 0 {
		return nil
	}

	vals := make([]any, len(turns))
	for i, t := range turns {
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("Redis.Append: encode turn: %w", err)
		}
		vals[i] = b
	}

	if err := r.rdb.RPush(ctx, r.turnsKey(tenant, conversationID), vals...).Err(); err != nil {
		return fmt.Errorf("Redis.Append: %w", err)
	}
	return nil
}

// NewConversation implements Store. Numbers come from a per-tenant counter.
func (r *Redis) NewConversation(ctx context.Context, tenant identity.TenantID) (domain.Conversation, error) {
	if tenant.IsZero() {
		return domain.Conversation{}, ErrInvalidKey
	}

	seq, err := r.rdb.Incr(ctx, r.conversationsKey(tenant)+":seq").Result()
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("Redis.NewConversation: %w", err)
	}

	conv := domain.Conversation{
		ID:        uuid.NewString(),
		Tenant:    tenant,
		Number:    int(seq),
		CreatedAt: time.Now().UTC(),
	}
	b, err := json.Marshal(conv)
	if err != nil {
		return domain.Conversation{}, fmt.Errorf("Redis.NewConversation: encode: %w", err)
	}
	if err := r.rdb.RPush(ctx, r.conversationsKey(tenant), b).Err(); err != nil {
		return domain.Conversation{}, fmt.Errorf("Redis.NewConversation: %w", err)
	}
	return conv, nil
}

// Conversations implements Store.
func (r *Redis) Conversations(ctx context.Context, tenant identity.TenantID) ([]domain.Conversation, error) {
	vals, err := r.rdb.LRange(ctx, r.conversationsKey(tenant), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("Redis.Conversations: %w", err)
	}

	convs := make([]domain.Conversation, 0, len(vals))
	for _, v := range vals {
		var c domain.Conversation
		if err := json.Unmarshal([]byte(v), &c); err != nil {
			return nil, fmt.Errorf("Redis.Conversations: decode: %w", err)
		}
		convs = append(convs, c)
	}
	return convs, nil
}
