// Package admin guards the out-of-band grant path: the operator verifies a
// payment manually and applies a plan through a shared-secret form.
package admin

import (
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"heart2heart/m/app/config"
	"heart2heart/m/app/db/redis"

	log "github.com/sirupsen/logrus"
)

const (
	MaxAttempts   = 5
	AttemptWindow = 10 * time.Minute
)

var (
	ErrUnauthorized    = errors.New("admin key rejected")
	ErrTooManyAttempts = errors.New("too many admin attempts")
)

// built-in allow-list; ADMIN_KEY from the environment is prepended in main
var builtinKeys = []string{
	"6U4urDCJLr7D0EWa4nST",
	"4321",
}

// Keys builds the ordered, deduplicated allow-list.
func Keys(envKey string) []string {
	keys := []string{}
	for _, key := range append([]string{envKey}, builtinKeys...) {
		if key == "" {
			continue
		}
		seen := false
		for _, existing := range keys {
			if existing == key {
				seen = true
				break
			}
		}
		if !seen {
			keys = append(keys, key)
		}
	}
	return keys
}

// CheckKey validates the shared secret in constant time per candidate.
// Attempts are rate limited per user id; there is no lockout beyond the
// window.
func CheckKey(userId, password string) error {
	attempts := redis.CountAdminAttempt(userId, AttemptWindow)
	if attempts > MaxAttempts {
		log.Warnf("CheckKey: user %s over the attempt limit (%d)", userId, attempts)
		return ErrTooManyAttempts
	}

	candidate := []byte(strings.TrimSpace(password))
	matched := false
	for _, key := range config.CONFIG.AdminKeys {
		if subtle.ConstantTimeCompare(candidate, []byte(key)) == 1 {
			matched = true
		}
	}
	if !matched {
		return ErrUnauthorized
	}

	redis.ClearAdminAttempts(userId)
	return nil
}
