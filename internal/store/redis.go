package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"visionpro-worker-go/internal/models"
)

// Key layout. Camera documents are written by the external backend; the
// worker only reads them. Events and identities are owned by the worker.
const (
	camerasKey    = "cameras"         // hash: camera id -> camera JSON
	identitiesKey = "identities"      // hash: identity id -> identity JSON
	eventKeyFmt   = "events:%s"       // string: event JSON
	recentKey     = "events:recent"   // list: newest event ids first
	recentKeep    = 1000
	eventTTL      = 30 * 24 * time.Hour
)

// Redis backs the camera directory, event store and identity store on a
// single Redis instance.
type Redis struct {
	client *redis.Client
}

func NewRedis(addr, password string, db int) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Info().Str("addr", addr).Int("db", db).Msg("Connected to Redis")
	return &Redis{client: client}, nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

// ListCameras returns every camera document in the directory.
func (r *Redis) ListCameras(ctx context.Context) ([]models.Camera, error) {
	entries, err := r.client.HGetAll(ctx, camerasKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list cameras: %w", err)
	}

	cameras := make([]models.Camera, 0, len(entries))
	for id, raw := range entries {
		var cam models.Camera
		if err := json.Unmarshal([]byte(raw), &cam); err != nil {
			log.Warn().Err(err).Str("camera_id", id).Msg("Skipping malformed camera document")
			continue
		}
		cameras = append(cameras, cam)
	}
	return cameras, nil
}

// GetCamera returns one camera document, or an error when absent.
func (r *Redis) GetCamera(ctx context.Context, cameraID string) (*models.Camera, error) {
	raw, err := r.client.HGet(ctx, camerasKey, cameraID).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("camera %s not found", cameraID)
	}
	if err != nil {
		return nil, fmt.Errorf("get camera %s: %w", cameraID, err)
	}

	var cam models.Camera
	if err := json.Unmarshal([]byte(raw), &cam); err != nil {
		return nil, fmt.Errorf("decode camera %s: %w", cameraID, err)
	}
	return &cam, nil
}

// InsertEvent persists one event and pushes it onto the recency list.
func (r *Redis) InsertEvent(ctx context.Context, ev *models.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, fmt.Sprintf(eventKeyFmt, ev.ID), data, eventTTL)
	pipe.LPush(ctx, recentKey, ev.ID)
	pipe.LTrim(ctx, recentKey, 0, recentKeep-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("insert event %s: %w", ev.ID, err)
	}
	return nil
}

// RecentEvents returns up to limit events, newest first. Expired or missing
// event bodies are skipped.
func (r *Redis) RecentEvents(ctx context.Context, limit int) ([]*models.Event, error) {
	if limit < 1 {
		limit = 1
	}
	ids, err := r.client.LRange(ctx, recentKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("recent events: %w", err)
	}

	events := make([]*models.Event, 0, len(ids))
	for _, id := range ids {
		raw, err := r.client.Get(ctx, fmt.Sprintf(eventKeyFmt, id)).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get event %s: %w", id, err)
		}
		var ev models.Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			log.Warn().Err(err).Str("event_id", id).Msg("Skipping malformed event document")
			continue
		}
		events = append(events, &ev)
	}
	return events, nil
}

// CreateIdentity persists a new identity record.
func (r *Redis) CreateIdentity(ctx context.Context, ident *models.Identity) error {
	data, err := json.Marshal(ident)
	if err != nil {
		return fmt.Errorf("encode identity: %w", err)
	}
	if err := r.client.HSet(ctx, identitiesKey, ident.ID, data).Err(); err != nil {
		return fmt.Errorf("create identity %s: %w", ident.ID, err)
	}
	return nil
}

// GetIdentity returns one identity record, or an error when absent.
func (r *Redis) GetIdentity(ctx context.Context, identityID string) (*models.Identity, error) {
	raw, err := r.client.HGet(ctx, identitiesKey, identityID).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("identity %s not found", identityID)
	}
	if err != nil {
		return nil, fmt.Errorf("get identity %s: %w", identityID, err)
	}

	var ident models.Identity
	if err := json.Unmarshal([]byte(raw), &ident); err != nil {
		return nil, fmt.Errorf("decode identity %s: %w", identityID, err)
	}
	return &ident, nil
}

// RecordAppearance bumps an identity's last-seen time and appearance count.
func (r *Redis) RecordAppearance(ctx context.Context, identityID string, seen time.Time) error {
	ident, err := r.GetIdentity(ctx, identityID)
	if err != nil {
		return err
	}
	ident.LastSeen = seen
	ident.TotalAppearances++

	data, err := json.Marshal(ident)
	if err != nil {
		return fmt.Errorf("encode identity: %w", err)
	}
	if err := r.client.HSet(ctx, identitiesKey, identityID, data).Err(); err != nil {
		return fmt.Errorf("record appearance %s: %w", identityID, err)
	}
	return nil
}
