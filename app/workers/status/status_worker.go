// Run regularly to check status of the system and persist it to the redis
package status

import (
	"encoding/json"

	log "github.com/sirupsen/logrus"

	"heart2heart/m/app/config"
	"heart2heart/m/app/db/mongo"
	"heart2heart/m/app/db/redis"
	"heart2heart/m/app/status"
	"heart2heart/m/app/workers"
)

var WORKER *workers.Worker

func Run() {
	systemStatus, err := redis.WrapInCache(redis.RedisClient, "system-status", WORKER.Interval*10, FetchStatus)()
	if err != nil {
		log.Errorf("failed to fetch system status: %s", err)
		return
	}
	log.Debugf("system status: %s", systemStatus)
}

func FetchStatus() (string, error) {
	w := WORKER
	systemStatus := status.New(mongo.MongoDBClient, redis.RedisClient, w.AI).GetSystemStatus()
	config.CONFIG.DataDogClient.Gauge("status_worker.mongo_db_available", boolToFloat64(systemStatus.MongoDB.Available), nil, 1)
	config.CONFIG.DataDogClient.Gauge("status_worker.redis_available", boolToFloat64(systemStatus.Redis.Available), nil, 1)
	config.CONFIG.DataDogClient.Gauge("status_worker.gateway_available", boolToFloat64(systemStatus.Gateway.Available), nil, 1)
	config.CONFIG.DataDogClient.Gauge("status_worker.total_cost", systemStatus.Usage.TotalCost, nil, 1)
	config.CONFIG.DataDogClient.Gauge("status_worker.total_tokens", float64(systemStatus.Usage.TotalTokens), nil, 1)
	config.CONFIG.DataDogClient.Gauge("status_worker.total_users", float64(systemStatus.Usage.TotalUsers), nil, 1)
	config.CONFIG.DataDogClient.Gauge("status_worker.total_basic_users", float64(systemStatus.Usage.TotalBasicUsers), nil, 1)
	config.CONFIG.DataDogClient.Gauge("status_worker.total_pro_users", float64(systemStatus.Usage.TotalProUsers), nil, 1)

	if !systemStatus.MongoDB.Available {
		w.SystemBot.Alertf("⚠️ %s: MongoDB is not available!", w.AppName)
	}
	if !systemStatus.Redis.Available {
		w.SystemBot.Alertf("⚠️ %s: Redis is not available!", w.AppName)
	}
	if !systemStatus.Gateway.Available {
		w.SystemBot.Alertf("⚠️ %s: completion API is not available!", w.AppName)
	}

	statusBytes, err := json.Marshal(systemStatus)
	if err != nil {
		return "", err
	}
	return string(statusBytes), nil
}

func boolToFloat64(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
