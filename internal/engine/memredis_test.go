package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// memRedis implements the hash commands the secret store uses. Any other
// command panics through the nil embedded interface.
type memRedis struct {
	redis.Cmdable

	mu     sync.Mutex
	hashes map[string]map[string]string
}

func newMemRedis() *memRedis {
	return &memRedis{hashes: make(map[string]map[string]string)}
}

func (m *memRedis) HSet(ctx context.Context, key string, values ...any) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()

	h := m.hashes[key]
	if h == nil {
		h = make(map[string]string)
		m.hashes[key] = h
	}
	set := func(field string, v any) {
		switch b := v.(type) {
		case []byte:
			h[field] = string(b)
		default:
			h[field] = fmt.Sprint(b)
		}
	}
	if len(values) == 1 {
		if fields, ok := values[0].(map[string]any); ok {
			for f, v := range fields {
				set(f, v)
			}
		}
	} else {
		for i := 0; i+1 < len(values); i += 2 {
			set(fmt.Sprint(values[i]), values[i+1])
		}
	}

	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(h)))
	return cmd
}

func (m *memRedis) HGet(ctx context.Context, key, field string) *redis.StringCmd {
	m.mu.Lock()
	defer m.mu.Unlock()

	cmd := redis.NewStringCmd(ctx)
	v, ok := m.hashes[key][field]
	if !ok {
		cmd.SetErr(redis.Nil)
		return cmd
	}
	cmd.SetVal(v)
	return cmd
}

func (m *memRedis) HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, f := range fields {
		if _, ok := m.hashes[key][f]; ok {
			delete(m.hashes[key], f)
			n++
		}
	}
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(n)
	return cmd
}

func (m *memRedis) fields(key string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.hashes[key]))
	for f := range m.hashes[key] {
		out = append(out, f)
	}
	return out
}
