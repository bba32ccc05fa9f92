package admin

import (
	"log"
	"testing"

	"heart2heart/m/app/config"
	"heart2heart/m/app/db/redis"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/stretchr/testify/assert"
)

func init() {
	testClient, err := statsd.New("127.0.0.1:8125", statsd.WithNamespace("tests."))
	if err != nil {
		log.Fatalf("error creating test DataDog client: %v", err)
	}
	config.CONFIG = &config.Config{
		DataDogClient: testClient,
		AdminKeys:     Keys("secret-from-env"),
	}
}

func TestKeys(t *testing.T) {
	keys := Keys("custom")
	assert.Equal(t, []string{"custom", "6U4urDCJLr7D0EWa4nST", "4321"}, keys)

	// empty env key drops out, duplicates collapse
	assert.Equal(t, []string{"6U4urDCJLr7D0EWa4nST", "4321"}, Keys(""))
	assert.Equal(t, []string{"4321", "6U4urDCJLr7D0EWa4nST"}, Keys("4321"))
}

func TestCheckKey(t *testing.T) {
	redis.RedisClient = redis.NewMockRedisClient()

	assert.NoError(t, CheckKey("123", "secret-from-env"))
	assert.NoError(t, CheckKey("123", "4321"))
	assert.NoError(t, CheckKey("123", "  4321  "), "surrounding whitespace is stripped")
	assert.ErrorIs(t, CheckKey("123", "wrong"), ErrUnauthorized)
	assert.ErrorIs(t, CheckKey("123", ""), ErrUnauthorized)
}

func TestCheckKeyRateLimited(t *testing.T) {
	redis.RedisClient = redis.NewMockRedisClient()

	for i := 0; i < MaxAttempts; i++ {
		assert.ErrorIs(t, CheckKey("123", "wrong"), ErrUnauthorized)
	}
	assert.ErrorIs(t, CheckKey("123", "wrong"), ErrTooManyAttempts)

	// even the right key is refused while over the limit
	assert.ErrorIs(t, CheckKey("123", "4321"), ErrTooManyAttempts)

	// other users are unaffected
	assert.NoError(t, CheckKey("456", "4321"))
}

func TestCheckKeySuccessClearsAttempts(t *testing.T) {
	redis.RedisClient = redis.NewMockRedisClient()

	for i := 0; i < MaxAttempts-1; i++ {
		CheckKey("123", "wrong")
	}
	assert.NoError(t, CheckKey("123", "4321"))

	// counter starts over after a success
	for i := 0; i < MaxAttempts; i++ {
		assert.ErrorIs(t, CheckKey("123", "wrong"), ErrUnauthorized)
	}
}
