// Package entitlement holds the pure free/paid quota state machine. All
// persistence goes through the mongo adapter; everything here operates on an
// in-memory copy of the record.
package entitlement

import (
	"errors"
	"time"

	"heart2heart/m/app/models"
)

var ErrExhausted = errors.New("entitlement exhausted")

// Field names the single counter a successful debit changed, matching the
// bson field merged back into the store.
type Field string

const (
	FieldUsageCount        Field = "usage_count"
	FieldRemainingPaidUses Field = "remaining_paid_uses"
)

// NewRecord returns the default entitlement for a user id seen for the first time.
func NewRecord(userId string) *models.MongoUser {
	return &models.MongoUser{
		ID:                userId,
		IsPaid:            false,
		Plan:              models.PlanNone,
		Limit:             models.FreeLimit,
		UsageCount:        0,
		RemainingPaidUses: 0,
		CreatedAt:         time.Now().UTC().Format(time.RFC3339),
	}
}

func CanInteract(u *models.MongoUser) bool {
	if u.IsPaid {
		return u.RemainingPaidUses > 0
	}
	return u.UsageCount < u.Limit
}

// Debit consumes exactly one interaction: increments usage_count for free
// users, decrements remaining_paid_uses for paid users, never both. Counters
// are clamped so no sequence of calls can push usage_count past the limit or
// remaining_paid_uses below zero.
func Debit(u *models.MongoUser) (Field, error) {
	if !CanInteract(u) {
		return "", ErrExhausted
	}
	if u.IsPaid {
		u.RemainingPaidUses--
		if u.RemainingPaidUses < 0 {
			u.RemainingPaidUses = 0
		}
		return FieldRemainingPaidUses, nil
	}
	u.UsageCount++
	if u.UsageCount > u.Limit {
		u.UsageCount = u.Limit
	}
	return FieldUsageCount, nil
}

// Grant upgrades the record to a paid plan with a fresh allotment. Idempotent:
// repeating the same grant yields the same state.
func Grant(u *models.MongoUser, plan models.Plan) {
	u.IsPaid = true
	u.Plan = plan.Name
	u.Limit = plan.Limit
	u.UsageCount = 0
	u.RemainingPaidUses = plan.Limit
}

// ResetFree clears the free-tier counter only; paid fields are untouched.
func ResetFree(u *models.MongoUser) {
	u.UsageCount = 0
	u.LastResetAt = time.Now().UTC().Format(time.RFC3339)
}

// Remaining is the number of interactions left, clamped at zero for display.
func Remaining(u *models.MongoUser) int {
	var left int
	if u.IsPaid {
		left = u.RemainingPaidUses
	} else {
		left = u.Limit - u.UsageCount
	}
	if left < 0 {
		return 0
	}
	return left
}
