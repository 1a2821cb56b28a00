package station

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const referenceWindow = 7 * 24 * time.Hour

type averager interface {
	AveragePrice(ctx context.Context, fuelType string, since time.Time) (float64, error)
}

// ReferencePricer serves the rolling market average per fuel type, cached in
// Redis for ttl. A nil Redis client disables caching.
type ReferencePricer struct {
	prices averager
	redis  *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

func NewReferencePricer(prices averager, redisClient *redis.Client, ttl time.Duration) *ReferencePricer {
	return &ReferencePricer{prices: prices, redis: redisClient, ttl: ttl, now: time.Now}
}

func (p *ReferencePricer) ReferencePrice(ctx context.Context, fuelType string) (float64, error) {
	key := referenceKey(fuelType)
	if p.redis != nil {
		cached, err := p.redis.Get(ctx, key).Result()
		switch {
		case err == nil:
			if v, perr := strconv.ParseFloat(cached, 64); perr == nil && v > 0 {
				return v, nil
			}
		case !errors.Is(err, redis.Nil):
			log.Printf("reference price cache read error: %v", err)
		}
	}

	avg, err := p.prices.AveragePrice(ctx, fuelType, p.now().Add(-referenceWindow))
	if err != nil {
		return 0, err
	}

	if p.redis != nil && p.ttl > 0 {
		if err := p.redis.Set(ctx, key, strconv.FormatFloat(avg, 'f', -1, 64), p.ttl).Err(); err != nil {
			log.Printf("reference price cache write error: %v", err)
		}
	}
	return avg, nil
}

func referenceKey(fuelType string) string {
	return "fuel:reference:" + fuelType
}
