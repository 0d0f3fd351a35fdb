package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"drchat/internal/protocol/doubleratchet"
	"drchat/internal/service/redis"
)

type (
	// KV is the subset of the redis service the store needs.
	KV interface {
		Set(ctx context.Context, key string, value any, ttl time.Duration) error
		Get(ctx context.Context, key string) (string, error)
		Del(ctx context.Context, key string) error
	}

	// SessionRepo persists ratchet snapshots per (owner, peer) conversation.
	SessionRepo struct {
		kv  KV
		ttl time.Duration
	}
)

func NewSessionRepo(kv KV, ttl time.Duration) *SessionRepo {
	return &SessionRepo{
		kv:  kv,
		ttl: ttl,
	}
}

func key(owner, peer string) string {
	return fmt.Sprintf("ratchet:%s:%s", owner, peer)
}

func (r *SessionRepo) Save(ctx context.Context, owner, peer string, st doubleratchet.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode session state: %w", err)
	}
	return r.kv.Set(ctx, key(owner, peer), data, r.ttl)
}

// Load returns nil, nil when nothing is stored for the conversation.
func (r *SessionRepo) Load(ctx context.Context, owner, peer string) (*doubleratchet.State, error) {
	v, err := r.kv.Get(ctx, key(owner, peer))
	if errors.Is(err, redis.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var st doubleratchet.State
	if err := json.Unmarshal([]byte(v), &st); err != nil {
		return nil, fmt.Errorf("decode session state: %w", err)
	}
	return &st, nil
}

func (r *SessionRepo) Delete(ctx context.Context, owner, peer string) error {
	return r.kv.Del(ctx, key(owner, peer))
}
