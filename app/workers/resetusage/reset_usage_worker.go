// Optional policy: periodically reset the free-tier quota of unpaid users.
// The worker only exists when FREE_RESET_INTERVAL is configured; most
// deployments never reset.
package resetusage

import (
	"context"
	"time"

	"heart2heart/m/app/db/mongo"
	"heart2heart/m/app/db/redis"
	"heart2heart/m/app/workers"

	log "github.com/sirupsen/logrus"
)

var WORKER *workers.Worker

const lastRunKey = "resetusage:last_run"

func Run() {
	if !due() {
		log.Debug("[resetusage] not due yet, skipping")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	count, err := mongo.MongoDBClient.ResetFreeUsage(ctx)
	if err != nil {
		log.Errorf("[resetusage] failed to reset free usage: %s", err)
		WORKER.SystemBot.Alertf("⚠️ %s failed to reset free usage: %s", WORKER.AppName, err)
		return
	}

	dropCachedEntitlements()

	redis.RedisClient.Set(context.Background(), lastRunKey, time.Now().UTC().Format(time.RFC3339), 0)
	log.Infof("[resetusage] reset free quota for %d users", count)
	WORKER.SystemBot.Alertf("🌱 %s reset free quota for %d users", WORKER.AppName, count)
}

// due guards against overlapping runs from several pods sharing one redis.
func due() bool {
	lastRun, err := redis.RedisClient.Get(context.Background(), lastRunKey).Result()
	if err != nil || lastRun == "" {
		return true
	}
	last, err := time.Parse(time.RFC3339, lastRun)
	if err != nil {
		return true
	}
	return time.Now().UTC().Sub(last) >= WORKER.Interval
}

// Cached mirrors still hold pre-reset counters; drop them so the next render
// hydrates from the store.
func dropCachedEntitlements() {
	keys := redis.RedisClient.Keys(context.Background(), "*:entitlement")
	if keys.Err() != nil || len(keys.Val()) == 0 {
		return
	}
	cmd := redis.RedisClient.Del(context.Background(), keys.Val()...)
	if cmd.Err() != nil {
		log.Errorf("[resetusage] failed to drop cached entitlements: %s", cmd.Err())
		return
	}
	log.Infof("[resetusage] dropped %d cached entitlements", cmd.Val())
}
