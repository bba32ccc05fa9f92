package redis

import (
	"context"
	"encoding/json"
	"time"

	"heart2heart/m/app/models"

	log "github.com/sirupsen/logrus"
)

// The cached entitlement mirrors the mongo record for page renders. It is
// written only after a confirmed store write; the store stays the source of
// truth and a cache miss just costs one extra round-trip.
const EntitlementTTL = 24 * time.Hour

func entitlementKey(userId string) string {
	return userId + ":entitlement"
}

func adminAttemptsKey(userId string) string {
	return userId + ":admin_attempts"
}

// CacheEntitlement mirrors a freshly persisted record for the next render.
func CacheEntitlement(user *models.MongoUser) {
	data, err := json.Marshal(user)
	if err != nil {
		log.Errorf("CacheEntitlement: failed to marshal user %s: %v", user.ID, err)
		return
	}
	err = RedisClient.Set(context.Background(), entitlementKey(user.ID), string(data), EntitlementTTL).Err()
	if err != nil {
		log.Warnf("CacheEntitlement: failed to cache user %s: %v", user.ID, err)
	}
}

// GetCachedEntitlement returns the mirrored record, or nil on a miss.
func GetCachedEntitlement(userId string) *models.MongoUser {
	data, err := RedisClient.Get(context.Background(), entitlementKey(userId)).Result()
	if err != nil || data == "" {
		return nil
	}
	var user models.MongoUser
	if err := json.Unmarshal([]byte(data), &user); err != nil {
		log.Warnf("GetCachedEntitlement: corrupt cache entry for %s: %v", userId, err)
		DropEntitlement(userId)
		return nil
	}
	return &user
}

// DropEntitlement invalidates the mirror, forcing the next render to hydrate
// from the store.
func DropEntitlement(userId string) {
	RedisClient.Del(context.Background(), entitlementKey(userId))
}

// CountAdminAttempt bumps the failed-attempt counter for a user id and
// returns the running total within the window.
func CountAdminAttempt(userId string, window time.Duration) int64 {
	ctx := context.Background()
	attempts, err := RedisClient.Incr(ctx, adminAttemptsKey(userId)).Result()
	if err != nil {
		log.Errorf("CountAdminAttempt: failed to count attempt for %s: %v", userId, err)
		return 0
	}
	if attempts == 1 {
		RedisClient.Expire(ctx, adminAttemptsKey(userId), window)
	}
	return attempts
}

// ClearAdminAttempts resets the counter after a successful authentication.
func ClearAdminAttempts(userId string) {
	RedisClient.Del(context.Background(), adminAttemptsKey(userId))
}
