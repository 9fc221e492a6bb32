package persephone

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/tartarus-sandbox/persephone/pkg/domain"
)

// ErrInvalidSeriesName is returned for names that cannot key a stored series.
var ErrInvalidSeriesName = errors.New("invalid series name")

var seriesName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// HistoryStore persists named weekly series. Saving a week that already
// exists replaces its value.
type HistoryStore interface {
	// Save stores a batch of observations under name
	Save(ctx context.Context, name string, obs []Observation) error

	// Load retrieves the weeks in [from, to]; a zero bound is open
	Load(ctx context.Context, name string, from, to domain.Week) (*Series, error)

	// QueryRecent retrieves the count most recent weeks
	QueryRecent(ctx context.Context, name string, count int) (*Series, error)

	// Prune removes weeks before the given week
	Prune(ctx context.Context, name string, before domain.Week) error

	// Close closes the storage backend
	Close() error
}

// ValidateSeriesName checks that name is usable as a file name and key suffix.
func ValidateSeriesName(name string) error {
	if !seriesName.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidSeriesName, name)
	}
	return nil
}

// RedisHistoryStore stores each series in a Redis sorted set scored by week
// ordinal.
type RedisHistoryStore struct {
	client *redis.Client
	prefix string
}

func NewRedisHistoryStore(addr string, db int, password string) (*RedisHistoryStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		DB:       db,
		Password: password,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisHistoryStore{
		client: client,
		prefix: "persephone:series:",
	}, nil
}

func (s *RedisHistoryStore) key(name string) string {
	return s.prefix + name
}

func (s *RedisHistoryStore) Save(ctx context.Context, name string, obs []Observation) error {
	if err := ValidateSeriesName(name); err != nil {
		return err
	}
	if len(obs) == 0 {
		return nil
	}

	key := s.key(name)
	pipe := s.client.TxPipeline()
	for _, o := range obs {
		if !o.Week.Valid() {
			return fmt.Errorf("%w: week %v", ErrInvalidSeries, o.Week)
		}
		data, err := json.Marshal(o)
		if err != nil {
			return fmt.Errorf("failed to marshal observation: %w", err)
		}

		// One member per week: drop whatever sits at this score first.
		score := strconv.FormatInt(o.Week.Ordinal(), 10)
		pipe.ZRemRangeByScore(ctx, key, score, score)
		pipe.ZAdd(ctx, key, redis.Z{
			Score:  float64(o.Week.Ordinal()),
			Member: data,
		})
	}

	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisHistoryStore) Load(ctx context.Context, name string, from, to domain.Week) (*Series, error) {
	if err := ValidateSeriesName(name); err != nil {
		return nil, err
	}
	min, max := "-inf", "+inf"
	if !from.IsZero() {
		min = strconv.FormatInt(from.Ordinal(), 10)
	}
	if !to.IsZero() {
		max = strconv.FormatInt(to.Ordinal(), 10)
	}

	results, err := s.client.ZRangeByScore(ctx, s.key(name), &redis.ZRangeBy{
		Min: min,
		Max: max,
	}).Result()
	if err != nil {
		return nil, err
	}
	return decodeMembers(results)
}

func (s *RedisHistoryStore) QueryRecent(ctx context.Context, name string, count int) (*Series, error) {
	if err := ValidateSeriesName(name); err != nil {
		return nil, err
	}
	if count <= 0 {
		return &Series{}, nil
	}

	// Get the N most recent entries (highest scores)
	results, err := s.client.ZRevRange(ctx, s.key(name), 0, int64(count-1)).Result()
	if err != nil {
		return nil, err
	}
	// SeriesFromObservations restores chronological order.
	return decodeMembers(results)
}

func (s *RedisHistoryStore) Prune(ctx context.Context, name string, before domain.Week) error {
	if err := ValidateSeriesName(name); err != nil {
		return err
	}
	max := "(" + strconv.FormatInt(before.Ordinal(), 10)
	return s.client.ZRemRangeByScore(ctx, s.key(name), "-inf", max).Err()
}

func (s *RedisHistoryStore) Close() error {
	return s.client.Close()
}

func decodeMembers(members []string) (*Series, error) {
	obs := make([]Observation, 0, len(members))
	for _, data := range members {
		var o Observation
		if err := json.Unmarshal([]byte(data), &o); err != nil {
			continue // Skip malformed members
		}
		obs = append(obs, o)
	}
	return SeriesFromObservations(obs)
}

// LocalHistoryStore stores each series as a JSON file under dataDir.
type LocalHistoryStore struct {
	dataDir string
	mu      sync.Mutex
}

func NewLocalHistoryStore(dataDir string) (*LocalHistoryStore, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	return &LocalHistoryStore{dataDir: dataDir}, nil
}

func (s *LocalHistoryStore) file(name string) string {
	return filepath.Join(s.dataDir, name+".json")
}

func (s *LocalHistoryStore) Save(ctx context.Context, name string, obs []Observation) error {
	if err := ValidateSeriesName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.read(name)
	if err != nil {
		return err
	}

	merged := make(map[domain.Week]float64, existing.Len()+len(obs))
	for _, o := range existing.Observations() {
		merged[o.Week] = o.Value
	}
	for _, o := range obs {
		if !o.Week.Valid() {
			return fmt.Errorf("%w: week %v", ErrInvalidSeries, o.Week)
		}
		merged[o.Week] = o.Value
	}

	all := make([]Observation, 0, len(merged))
	for w, v := range merged {
		all = append(all, Observation{Week: w, Value: v})
	}
	series, err := SeriesFromObservations(all)
	if err != nil {
		return err
	}
	return s.write(name, series)
}

func (s *LocalHistoryStore) Load(ctx context.Context, name string, from, to domain.Week) (*Series, error) {
	if err := ValidateSeriesName(name); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.read(name)
	if err != nil {
		return nil, err
	}
	return all.Range(from, to), nil
}

func (s *LocalHistoryStore) QueryRecent(ctx context.Context, name string, count int) (*Series, error) {
	if err := ValidateSeriesName(name); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.read(name)
	if err != nil {
		return nil, err
	}
	if count <= 0 {
		return &Series{}, nil
	}
	if all.Len() <= count {
		return all, nil
	}
	first, _ := all.At(all.Len() - count)
	return all.Range(first, domain.Week{}), nil
}

func (s *LocalHistoryStore) Prune(ctx context.Context, name string, before domain.Week) error {
	if err := ValidateSeriesName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.read(name)
	if err != nil {
		return err
	}
	_, kept := all.SplitAt(before)
	return s.write(name, kept)
}

func (s *LocalHistoryStore) Close() error {
	return nil // Nothing to close for file storage
}

func (s *LocalHistoryStore) read(name string) (*Series, error) {
	data, err := os.ReadFile(s.file(name))
	if err != nil {
		if os.IsNotExist(err) {
			return &Series{}, nil
		}
		return nil, err
	}

	var obs []Observation
	if err := json.Unmarshal(data, &obs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal series %s: %w", name, err)
	}
	return SeriesFromObservations(obs)
}

func (s *LocalHistoryStore) write(name string, series *Series) error {
	data, err := json.MarshalIndent(series.Observations(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal series %s: %w", name, err)
	}

	return os.WriteFile(s.file(name), data, 0644)
}
