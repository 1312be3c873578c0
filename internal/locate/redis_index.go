package locate

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/bus-tracking/internal/models"
)

// RedisIndex keeps the latest known position of every vehicle in a
// Redis GEO set, with per-vehicle metadata in a hash. It is a cache in
// front of the fix ledger: losing it costs nothing but a slower radius
// search.
type RedisIndex struct {
	client *redis.Client
	key    string
}

func NewRedisIndex(addr, password, key string) *RedisIndex {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisIndex{client: c, key: key}
}

// Upsert replaces the vehicle's indexed position with the given fix.
// Fixes keyed by vehicle; a fix without a vehicle id is not indexable.
func (r *RedisIndex) Upsert(ctx context.Context, fix models.PositionFix) error {
	if fix.VehicleID == "" {
		return nil
	}
	if err := r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{
		Longitude: fix.Loc.Lon,
		Latitude:  fix.Loc.Lat,
		Name:      fix.VehicleID,
	}).Err(); err != nil {
		return err
	}
	return r.client.HSet(ctx, metaKey(fix.VehicleID), map[string]interface{}{
		"driver_id":   fix.DriverID,
		"captured_at": fix.CapturedAt.Format(time.RFC3339),
	}).Err()
}

// Nearby returns vehicles within radiusKm of the point, nearest first.
// limit <= 0 means unlimited.
func (r *RedisIndex) Nearby(ctx context.Context, lat, lon, radiusKm float64, limit int) ([]models.NearbyVehicle, error) {
	q := &redis.GeoRadiusQuery{Radius: radiusKm, Unit: "km", WithCoord: true, WithDist: true, Sort: "ASC"}
	if limit > 0 {
		q.Count = limit
	}
	res, err := r.client.GeoRadius(ctx, r.key, lon, lat, q).Result()
	if err != nil {
		return nil, err
	}
	out := make([]models.NearbyVehicle, 0, len(res))
	for _, g := range res {
		v := models.NearbyVehicle{
			VehicleID:  g.Name,
			Loc:        models.Coord{Lat: g.Latitude, Lon: g.Longitude},
			DistanceKm: g.Dist,
		}
		if m, err := r.client.HGetAll(ctx, metaKey(g.Name)).Result(); err == nil {
			if ts, ok := m["captured_at"]; ok {
				if t, err := time.Parse(time.RFC3339, ts); err == nil {
					v.CapturedAt = t
				}
			}
			if rid, ok := m["route_id"]; ok {
				if id, err := strconv.ParseInt(rid, 10, 64); err == nil {
					v.RouteID = id
				}
			}
		}
		out = append(out, v)
	}
	return out, nil
}

func (r *RedisIndex) Close() error { return r.client.Close() }

func metaKey(vehicleID string) string { return "vehicle:meta:" + vehicleID }
