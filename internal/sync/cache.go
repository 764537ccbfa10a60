package sync

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"bayou/internal/models"
	"bayou/internal/store"
	"bayou/internal/utils"
)

// ProfileCache is the TTL-bound cache for denormalized profile records,
// replacing the ambient module-level user/profile maps the UI surfaces
// used to share. It is owned by the SyncController; entries expire on
// their own, and mutations to a profile invalidate eagerly.
type ProfileCache struct {
	client *redis.Client
	store  store.Store
	ttl    time.Duration
	log    *slog.Logger
}

func NewProfileCache(client *redis.Client, st store.Store, ttl time.Duration, log *slog.Logger) *ProfileCache {
	if log == nil {
		log = slog.Default()
	}
	return &ProfileCache{client: client, store: st, ttl: ttl, log: log}
}

func cacheKey(uid uuid.UUID) string {
	return "bayou:profile:" + uid.String()
}

// Get returns the profile for uid, loading from the store on a miss.
// Cache failures degrade to a store read; they never fail the caller.
func (p *ProfileCache) Get(ctx context.Context, uid uuid.UUID) (*models.Profile, error) {
	raw, err := p.client.Get(ctx, cacheKey(uid)).Bytes()
	if err == nil {
		var profile models.Profile
		if err := json.Unmarshal(raw, &profile); err == nil {
			return &profile, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		p.log.Warn("profile cache read failed", "uid", uid, "error", err)
	}

	var profile models.Profile
	if err := p.store.Get(ctx, store.ProfilePath(uid), &profile); err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(&profile); err == nil {
		if err := p.client.Set(ctx, cacheKey(uid), encoded, p.ttl).Err(); err != nil {
			p.log.Warn("profile cache write failed", "uid", uid, "error", err)
		}
	}
	return &profile, nil
}

// Username resolves a display name, with a placeholder when the profile
// is missing or unreadable so render paths never fail on lookups.
func (p *ProfileCache) Username(ctx context.Context, uid uuid.UUID) string {
	profile, err := p.Get(ctx, uid)
	if err != nil {
		if !utils.IsErrorCode(err, utils.ErrNotFound) {
			p.log.Warn("profile load failed", "uid", uid, "error", err)
		}
		return "[unknown]"
	}
	return profile.Username
}

// Invalidate drops the cached entry for uid.
func (p *ProfileCache) Invalidate(ctx context.Context, uid uuid.UUID) {
	if err := p.client.Del(ctx, cacheKey(uid)).Err(); err != nil {
		p.log.Warn("profile cache invalidate failed", "uid", uid, "error", err)
	}
}
