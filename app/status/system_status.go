package status

import (
	"context"
	"time"

	"heart2heart/m/app/ai"
	"heart2heart/m/app/db/mongo"
	"heart2heart/m/app/db/redis"
	"heart2heart/m/app/models"

	"github.com/sirupsen/logrus"
)

type SystemStatus struct {
	MongoDB *Status     `json:"mongodb"`
	Redis   *Status     `json:"redis"`
	Gateway *Status     `json:"gateway"`
	Time    time.Time   `json:"time"`
	Usage   SystemUsage `json:"usage"`
}

type SystemUsage struct {
	TotalUsers      int64   `json:"total_users"`
	TotalBasicUsers int64   `json:"total_basic_users"`
	TotalProUsers   int64   `json:"total_pro_users"`
	TotalTokens     int64   `json:"total_tokens"`
	TotalCost       float64 `json:"total_cost"`
}

// Status
type Status struct {
	Available bool `json:"available"`
}

// SystemStatusHandler is a handler for system status
type SystemStatusHandler struct {
	MongoDB mongo.MongoClient
	Redis   redis.Client
	AI      *ai.API
}

// New creates a new instance of SystemStatusHandler
func New(mongoDB mongo.MongoClient, redis redis.Client, ai *ai.API) *SystemStatusHandler {
	return &SystemStatusHandler{
		MongoDB: mongoDB,
		Redis:   redis,
		AI:      ai,
	}
}

// GetSystemStatus gets a status of the system
func (h *SystemStatusHandler) GetSystemStatus() SystemStatus {
	mongoAvailable := false
	ctxPing, cancelPing := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelPing()
	err := h.MongoDB.Ping(ctxPing, nil)
	if err != nil {
		logrus.WithError(err).Warn("GetSystemStatus: failed to ping MongoDB")
	} else {
		mongoAvailable = true
	}

	aiContext := context.WithValue(context.Background(), models.UserContext{}, "SYSTEM:STATUS")
	aiContext = context.WithValue(aiContext, models.ClientContext{}, "none")

	status := SystemStatus{
		MongoDB: &Status{
			Available: mongoAvailable,
		},
		Redis: &Status{
			Available: h.Redis != nil && h.Redis.Ping(context.Background()).Err() == nil,
		},
		Gateway: &Status{
			Available: h.AI != nil && h.AI.IsAvailable(aiContext),
		},
		Usage: SystemUsage{},
		Time:  time.Now(),
	}
	if status.Redis.Available {
		tokens := h.Redis.Get(context.Background(), "system_totals:tokens")
		if tokens.Err() == nil {
			status.Usage.TotalTokens, _ = tokens.Int64()
		}
		cost := h.Redis.Get(context.Background(), "system_totals:cost")
		if cost.Err() == nil {
			status.Usage.TotalCost, _ = cost.Float64()
		}
	}
	if status.MongoDB.Available {
		users, _ := h.MongoDB.GetUsersCount(context.Background())
		status.Usage.TotalUsers = users
		basicUsers, _ := h.MongoDB.GetUsersCountForPlan(context.Background(), models.PlanBasic)
		status.Usage.TotalBasicUsers = basicUsers
		proUsers, _ := h.MongoDB.GetUsersCountForPlan(context.Background(), models.PlanPro)
		status.Usage.TotalProUsers = proUsers
	}
	return status
}
