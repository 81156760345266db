// Package secrets keeps notification secret params out of alert definitions.
// Secrets live in one Redis hash per project; the alert keeps only a
// {"secret": "<field>"} reference. Every write gets a fresh field, so two
// definitions never share one.
package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/afikmenashe/alert-engine/internal/alerts"
)

const (
	// KeyPrefix is the Redis key prefix of the per-project secret hashes.
	KeyPrefix = "alert-secrets:"
	// RefParam is the secret_params key holding the reference.
	RefParam = alerts.SecretRefParam
)

// Store stores notification secrets in Redis.
type Store struct {
	client redis.Cmdable
}

// NewStore creates a secret store on the given Redis client.
func NewStore(client redis.Cmdable) *Store {
	return &Store{client: client}
}

func projectKey(project string) string {
	return KeyPrefix + project
}

func fieldName(entityID, notification string) string {
	return entityID + ":" + notification + ":" + uuid.NewString()
}

// SecretRef returns the hash field a masked notification points to.
func SecretRef(n alerts.Notification) (string, bool) {
	return n.SecretRef()
}

// MaskAndStoreNotificationSecrets writes the secret params of every
// notification to Redis and returns copies referencing them. Notifications
// without secrets, or already masked, are returned unchanged.
func (s *Store) MaskAndStoreNotificationSecrets(ctx context.Context, notifications []alerts.Notification, entityID, project string) ([]alerts.Notification, error) {
	masked := make([]alerts.Notification, len(notifications))
	values := make(map[string]any)

	for i, n := range notifications {
		masked[i] = n
		if len(n.SecretParams) == 0 {
			continue
		}
		if _, ok := SecretRef(n); ok {
			continue
		}

		data, err := json.Marshal(n.SecretParams)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal secret params of notification %s: %w", n.Name, err)
		}
		field := fieldName(entityID, n.Name)
		values[field] = data
		masked[i].SecretParams = map[string]any{RefParam: field}
	}

	if len(values) == 0 {
		return masked, nil
	}
	if err := s.client.HSet(ctx, projectKey(project), values).Err(); err != nil {
		return nil, fmt.Errorf("failed to store notification secrets: %w", err)
	}

	slog.Debug("Stored notification secrets",
		"project", project,
		"entity_id", entityID,
		"count", len(values),
	)
	return masked, nil
}

// DeleteNotificationSecrets removes the secret a masked notification points to.
func (s *Store) DeleteNotificationSecrets(ctx context.Context, project string, n alerts.Notification) error {
	ref, ok := SecretRef(n)
	if !ok {
		return nil
	}
	if err := s.client.HDel(ctx, projectKey(project), ref).Err(); err != nil {
		return fmt.Errorf("failed to delete notification secret %s: %w", ref, err)
	}
	return nil
}

// Resolve returns a copy of n with its secret params loaded from Redis.
func (s *Store) Resolve(ctx context.Context, project string, n alerts.Notification) (alerts.Notification, error) {
	ref, ok := SecretRef(n)
	if !ok {
		return n, nil
	}

	data, err := s.client.HGet(ctx, projectKey(project), ref).Bytes()
	if err == redis.Nil {
		return n, fmt.Errorf("%w: notification secret %s", alerts.ErrNotFound, ref)
	}
	if err != nil {
		return n, fmt.Errorf("failed to read notification secret %s: %w", ref, err)
	}

	var params map[string]any
	if err := json.Unmarshal(data, &params); err != nil {
		return n, fmt.Errorf("failed to unmarshal notification secret %s: %w", ref, err)
	}
	n.SecretParams = params
	return n, nil
}
