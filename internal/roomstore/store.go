package roomstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/park285/Cheese-Arena/internal/gameplay"
	"github.com/park285/Cheese-Arena/internal/obslog"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	keyLive     = "arena:rooms"
	finishedTTL = 10 * time.Minute
	opTimeout   = 2 * time.Second
)

const (
	StatusLive     = "live"
	StatusFinished = "finished"
)

// Record is the JSON stored under arena:room:<id>.
type Record struct {
	RoomID    string            `json:"roomId"`
	Status    string            `json:"status"`
	White     gameplay.Identity `json:"white"`
	Black     gameplay.Identity `json:"black"`
	Settings  gameplay.Settings `json:"settings"`
	CreatedAt time.Time         `json:"createdAt"`
	Outcome   *gameplay.Outcome `json:"outcome,omitempty"`
}

// Store mirrors room lifecycle into Redis for operators. Routing never reads it.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(rdb *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &Store{rdb: rdb, ttl: ttl}
}

// Open connects to redisURL (redis:// or rediss://) and pings it.
func Open(ctx context.Context, redisURL string, ttl time.Duration) (*Store, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, errors.New("REDIS_URL required for room store")
	}
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return New(rdb, ttl), nil
}

func (s *Store) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

func roomKey(id string) string { return "arena:room:" + strings.TrimSpace(id) }

func (s *Store) SaveRoom(ctx context.Context, info gameplay.RoomInfo) error {
	raw, err := json.Marshal(Record{
		RoomID:    info.RoomID,
		Status:    StatusLive,
		White:     info.White,
		Black:     info.Black,
		Settings:  info.Settings,
		CreatedAt: info.CreatedAt,
	})
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, roomKey(info.RoomID), raw, s.ttl)
		p.SAdd(ctx, keyLive, info.RoomID)
		return nil
	})
	return err
}

// SaveOutcome marks the room finished, keeps it readable for a short while and drops it from the live set.
func (s *Store) SaveOutcome(ctx context.Context, out gameplay.Outcome) error {
	rec, err := s.Load(ctx, out.RoomID)
	if err != nil {
		return err
	}
	if rec == nil {
		rec = &Record{RoomID: out.RoomID, Settings: out.Settings}
	}
	rec.Status = StatusFinished
	rec.Outcome = &out
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, roomKey(out.RoomID), raw, finishedTTL)
		p.SRem(ctx, keyLive, out.RoomID)
		return nil
	})
	return err
}

// Load returns nil, nil when the room is unknown or expired.
func (s *Store) Load(ctx context.Context, id string) (*Record, error) {
	raw, err := s.rdb.Get(ctx, roomKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	return s.rdb.SCard(ctx, keyLive).Result()
}

func (s *Store) Live(ctx context.Context) ([]string, error) {
	return s.rdb.SMembers(ctx, keyLive).Result()
}

// Reset clears the live set. A restarted process owns no rooms, so stale ids are dropped at startup.
func (s *Store) Reset(ctx context.Context) error {
	return s.rdb.Del(ctx, keyLive).Err()
}

func (s *Store) RoomCreated(info gameplay.RoomInfo) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := s.SaveRoom(ctx, info); err != nil {
		obslog.L().Warn("roomstore_save_failed", zap.String("room_id", info.RoomID), zap.Error(err))
	}
}

func (s *Store) RoomClosed(out gameplay.Outcome) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()
	if err := s.SaveOutcome(ctx, out); err != nil {
		obslog.L().Warn("roomstore_outcome_failed", zap.String("room_id", out.RoomID), zap.Error(err))
	}
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid redis db %q", p)
		}
		db = n
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Username: u.User.Username(), Password: pass, DB: db}, nil
}
