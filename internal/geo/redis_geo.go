package geo

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/ride-dispatch/internal/match"
	"github.com/example/ride-dispatch/internal/models"
)

// RedisIndex implements Index on Redis GEO commands so multiple server
// processes share one candidate set (the consumer process feeds it too).
type RedisIndex struct {
	client *redis.Client
	key    string
}

func NewRedisIndex(addr, password, key string) *RedisIndex {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisIndex{client: c, key: key}
}

func (r *RedisIndex) Upsert(d models.DriverLocation) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _ = r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{Longitude: d.Lon, Latitude: d.Lat, Name: d.ID}).Result()
	_ = r.client.HSet(ctx, metaKey(d.ID), map[string]interface{}{"updated": time.Now().Format(time.RFC3339)}).Err()
}

func (r *RedisIndex) Candidates(ctx context.Context, lat, lon, radiusKm float64, limit int) []match.Candidate {
	if radiusKm <= 0 {
		radiusKm = 50
	}
	res, err := r.client.GeoRadius(ctx, r.key, lon, lat, &redis.GeoRadiusQuery{
		Radius: radiusKm, Unit: "km", WithCoord: true, Count: limit, Sort: "ASC",
	}).Result()
	if err != nil {
		return nil
	}
	out := make([]match.Candidate, 0, len(res))
	for _, g := range res {
		out = append(out, match.Candidate{ID: g.Name, Lat: g.Latitude, Lon: g.Longitude})
	}
	return out
}

func metaKey(id string) string { return "driver:meta:" + id }
