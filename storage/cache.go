package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"board-api/board"
	"board-api/domain"
)

// Cache wraps a board.Store with Redis-backed caching for the two hot
// reads, the board snapshot and the label set. Writes pass through to
// the backing store and evict the project's cached entries; the next
// read repopulates them.
type Cache struct {
	board.Store
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base board.Store, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base store is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{Store: base, redis: client, ttl: ttl}
}

func (c *Cache) FetchBoard(ctx context.Context, projectID string) ([]domain.Task, error) {
	if tasks, ok := loadCached[[]domain.Task](ctx, c, boardCacheKey(projectID)); ok {
		return tasks, nil
	}

	tasks, err := c.Store.FetchBoard(ctx, projectID)
	if err != nil {
		return nil, err
	}

	c.store(ctx, boardCacheKey(projectID), tasks)
	return tasks, nil
}

func (c *Cache) FetchLabels(ctx context.Context, projectID string) ([]domain.Label, error) {
	if labels, ok := loadCached[[]domain.Label](ctx, c, labelsCacheKey(projectID)); ok {
		return labels, nil
	}

	labels, err := c.Store.FetchLabels(ctx, projectID)
	if err != nil {
		return nil, err
	}

	c.store(ctx, labelsCacheKey(projectID), labels)
	return labels, nil
}

func (c *Cache) InsertTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	created, err := c.Store.InsertTask(ctx, t)
	if err != nil {
		return domain.Task{}, err
	}
	c.evict(ctx, created.ProjectID)
	return created, nil
}

func (c *Cache) UpdateTask(ctx context.Context, projectID, taskID string, patch board.TaskPatch) error {
	if err := c.Store.UpdateTask(ctx, projectID, taskID, patch); err != nil {
		return err
	}
	c.evict(ctx, projectID)
	return nil
}

func (c *Cache) DeleteTask(ctx context.Context, projectID, taskID string) error {
	if err := c.Store.DeleteTask(ctx, projectID, taskID); err != nil {
		return err
	}
	c.evict(ctx, projectID)
	return nil
}

func (c *Cache) InsertLabel(ctx context.Context, l domain.Label) (domain.Label, error) {
	created, err := c.Store.InsertLabel(ctx, l)
	if err != nil {
		return domain.Label{}, err
	}
	c.evict(ctx, created.ProjectID)
	return created, nil
}

func (c *Cache) DeleteLabel(ctx context.Context, projectID, labelID string) error {
	if err := c.Store.DeleteLabel(ctx, projectID, labelID); err != nil {
		return err
	}
	c.evict(ctx, projectID)
	return nil
}

func (c *Cache) AttachLabel(ctx context.Context, projectID, taskID, labelID string) error {
	if err := c.Store.AttachLabel(ctx, projectID, taskID, labelID); err != nil {
		return err
	}
	c.evict(ctx, projectID)
	return nil
}

func (c *Cache) DetachLabel(ctx context.Context, projectID, taskID, labelID string) error {
	if err := c.Store.DetachLabel(ctx, projectID, taskID, labelID); err != nil {
		return err
	}
	c.evict(ctx, projectID)
	return nil
}

func (c *Cache) AssignUser(ctx context.Context, projectID, taskID, userID string) error {
	if err := c.Store.AssignUser(ctx, projectID, taskID, userID); err != nil {
		return err
	}
	c.evict(ctx, projectID)
	return nil
}

func (c *Cache) UnassignUser(ctx context.Context, projectID, taskID, userID string) error {
	if err := c.Store.UnassignUser(ctx, projectID, taskID, userID); err != nil {
		return err
	}
	c.evict(ctx, projectID)
	return nil
}

func loadCached[T any](ctx context.Context, c *Cache, key string) (T, bool) {
	var zero T
	if c.redis == nil {
		return zero, false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing store without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return zero, false
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return zero, false
	}
	return out, true
}

func (c *Cache) store(ctx context.Context, key string, value any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, projectID string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, boardCacheKey(projectID), labelsCacheKey(projectID)).Result()
}

func boardCacheKey(projectID string) string {
	return "board:" + projectID
}

func labelsCacheKey(projectID string) string {
	return "labels:" + projectID
}
