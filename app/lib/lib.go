package lib

import (
	"context"
	"errors"
	"time"

	"heart2heart/m/app/config"
	"heart2heart/m/app/db/mongo"
	"heart2heart/m/app/db/redis"
	"heart2heart/m/app/models"

	log "github.com/sirupsen/logrus"
)

var TIMEOUT = 2 * time.Minute

const WebClientName = "web"

// ErrStoreUnavailable wraps any document-store failure surfaced to a user as
// a transient message.
var ErrStoreUnavailable = errors.New("store unavailable")

// SetupUserAndContext builds the per-turn context carrying the user id and
// request surface, bounded by the turn timeout.
func SetupUserAndContext(userId string, page string) (context.Context, context.CancelFunc) {
	currentContext := context.WithValue(context.Background(), models.UserContext{}, userId)
	currentContext = context.WithValue(currentContext, models.ClientContext{}, WebClientName)
	currentContext = context.WithValue(currentContext, models.PageContext{}, page)
	return context.WithTimeout(currentContext, TIMEOUT)
}

// LoadEntitlement hydrates the user's entitlement record. Page loads go to
// the store (creating defaults on first sight) and reconcile the session
// cache; per-turn re-checks may serve from the cache.
func LoadEntitlement(ctx context.Context, fromStore bool) (*models.MongoUser, error) {
	userId := ctx.Value(models.UserContext{}).(string)

	if !fromStore {
		if cached := redis.GetCachedEntitlement(userId); cached != nil {
			return cached, nil
		}
	}

	log.Infof("Fetching entitlement from DB for user: %s", userId)
	user, err := mongo.MongoDBClient.GetUser(ctx)
	if errors.Is(err, mongo.ErrUserNotFound) {
		config.CONFIG.DataDogClient.Incr("new_user", []string{"client:" + WebClientName}, 1)
		user, err = mongo.MongoDBClient.EnsureUser(ctx)
	}
	if err != nil {
		log.Warnf("Failed to load entitlement for user %s: %v", userId, err)
		return nil, ErrStoreUnavailable
	}

	redis.CacheEntitlement(user)
	return user, nil
}
