// Package metering orchestrates one chat turn: check entitlement, stream the
// completion, debit exactly once on success, persist, reconcile the session
// cache.
package metering

import (
	"context"
	"errors"

	"heart2heart/m/app/ai"
	"heart2heart/m/app/config"
	"heart2heart/m/app/db/mongo"
	"heart2heart/m/app/db/redis"
	"heart2heart/m/app/entitlement"
	"heart2heart/m/app/lib"
	"heart2heart/m/app/models"

	log "github.com/sirupsen/logrus"
)

// TurnState is the per-turn machine: Idle -> Checking -> {Blocked | Streaming}
// -> Settling -> Idle. Turns within one session are strictly sequential.
type TurnState string

const (
	StateIdle      TurnState = "idle"
	StateChecking  TurnState = "checking"
	StateBlocked   TurnState = "blocked"
	StateStreaming TurnState = "streaming"
	StateSettling  TurnState = "settling"
)

type TurnStatus string

const (
	// TurnCompleted: non-empty reply delivered and one counter debited.
	TurnCompleted TurnStatus = "completed"
	// TurnBlocked: entitlement exhausted before streaming; nothing mutated.
	TurnBlocked TurnStatus = "blocked"
	// TurnEmpty: the stream ended with zero fragments; a no-op turn, no debit.
	TurnEmpty TurnStatus = "empty"
	// TurnFailed: gateway or store failure before any debit.
	TurnFailed TurnStatus = "failed"
)

// Result is what the turn surfaces to the rendering layer. Err, when set, is
// one of the taxonomy errors (ai.ErrAuth, entitlement.ErrExhausted,
// lib.ErrStoreUnavailable) or a wrapped transport error.
type Result struct {
	Status      TurnStatus
	Reply       string
	Emotion     lib.EmotionName
	Entitlement *models.MongoUser

	// Exhausted means the post-debit state can no longer interact; the next
	// render shows the upgrade prompt preemptively.
	Exhausted bool

	Err error
}

// FragmentSink receives each fragment as it arrives, in delivery order.
type FragmentSink func(fragment string)

// Controller owns all entitlement mutation. Gateway and store are injected so
// tests can script both.
type Controller struct {
	AI    ai.Gateway
	Store mongo.MongoClient
}

func NewController(gateway ai.Gateway) *Controller {
	return &Controller{
		AI:    gateway,
		Store: mongo.MongoDBClient,
	}
}

// HandleTurn runs one interaction for the user carried in ctx. The sink is
// invoked for every fragment while streaming; the returned Result carries the
// settled entitlement state.
func (c *Controller) HandleTurn(ctx context.Context, cancel context.CancelFunc, userText string, sink FragmentSink) Result {
	userId := ctx.Value(models.UserContext{}).(string)
	c.transition(userId, StateIdle, StateChecking)

	user, err := lib.LoadEntitlement(ctx, false)
	if err != nil {
		return c.settle(userId, StateChecking, Result{Status: TurnFailed, Err: err})
	}

	if !entitlement.CanInteract(user) {
		c.transition(userId, StateChecking, StateBlocked)
		config.CONFIG.DataDogClient.Incr("metering.blocked", []string{"paid:" + paidTag(user)}, 1)
		return c.settle(userId, StateBlocked, Result{
			Status:      TurnBlocked,
			Entitlement: user,
			Exhausted:   true,
			Err:         entitlement.ErrExhausted,
		})
	}

	c.transition(userId, StateChecking, StateStreaming)
	emotion, systemPrompt := lib.BuildSystemPrompt(userText)
	fragments, errs := c.AI.ChatCompleteStreaming(ctx, models.ChatCompletion{
		Model:       config.CONFIG.Model,
		Temperature: 0.7,
		Messages: []models.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userText},
		},
	}, cancel)

	reply := ""
	for fragment := range fragments {
		reply += fragment
		if sink != nil {
			sink(fragment)
		}
	}
	gatewayErr := <-errs

	// no debit on a failed or empty turn; the user may retry as a fresh turn
	if gatewayErr != nil {
		// a stream can break after fragments were already delivered; the turn
		// still failed and is not charged
		config.CONFIG.DataDogClient.Incr("metering.gateway_error", []string{"emotion:" + string(emotion)}, 1)
		return c.settle(userId, StateStreaming, Result{Status: TurnFailed, Emotion: emotion, Entitlement: user, Err: gatewayErr})
	}
	if reply == "" {
		config.CONFIG.DataDogClient.Incr("metering.empty_response", []string{"emotion:" + string(emotion)}, 1)
		return c.settle(userId, StateStreaming, Result{Status: TurnEmpty, Emotion: emotion, Entitlement: user})
	}

	c.transition(userId, StateStreaming, StateSettling)

	// The quota guard is re-checked inside the store-side atomic debit, so a
	// stale read here cannot double-spend the last use.
	updated, err := c.Store.Debit(ctx, user.IsPaid)
	if errors.Is(err, entitlement.ErrExhausted) {
		// lost a race with another tab; surface Exhausted, do not re-attempt
		log.Warnf("HandleTurn: debit lost a race for user %s", userId)
		redis.DropEntitlement(userId)
		return c.settle(userId, StateSettling, Result{
			Status:      TurnCompleted,
			Reply:       reply,
			Emotion:     emotion,
			Entitlement: user,
			Exhausted:   true,
			Err:         entitlement.ErrExhausted,
		})
	}
	if err != nil {
		// reply was delivered but not charged; the cache keeps the persisted
		// state, never the optimistic one
		log.Errorf("HandleTurn: debit failed for user %s: %v", userId, err)
		return c.settle(userId, StateSettling, Result{
			Status:      TurnCompleted,
			Reply:       reply,
			Emotion:     emotion,
			Entitlement: user,
			Err:         lib.ErrStoreUnavailable,
		})
	}

	redis.CacheEntitlement(updated)
	config.CONFIG.DataDogClient.Incr("metering.debit", []string{"paid:" + paidTag(updated), "emotion:" + string(emotion)}, 1)

	return c.settle(userId, StateSettling, Result{
		Status:      TurnCompleted,
		Reply:       reply,
		Emotion:     emotion,
		Entitlement: updated,
		Exhausted:   !entitlement.CanInteract(updated),
	})
}

// Grant applies the administrative plan upgrade and reconciles the cache.
func (c *Controller) Grant(ctx context.Context, plan models.Plan) (*models.MongoUser, error) {
	userId := ctx.Value(models.UserContext{}).(string)
	if err := c.Store.GrantPlan(ctx, plan); err != nil {
		return nil, lib.ErrStoreUnavailable
	}
	user, err := c.Store.GetUser(ctx)
	if err != nil {
		redis.DropEntitlement(userId)
		return nil, lib.ErrStoreUnavailable
	}
	redis.CacheEntitlement(user)
	config.CONFIG.DataDogClient.Incr("metering.grant", []string{"plan:" + string(plan.Name)}, 1)
	return user, nil
}

func (c *Controller) transition(userId string, from, to TurnState) {
	log.Debugf("turn %s: %s -> %s", userId, from, to)
}

func (c *Controller) settle(userId string, from TurnState, result Result) Result {
	c.transition(userId, from, StateIdle)
	config.CONFIG.DataDogClient.Incr("metering.turn", []string{"status:" + string(result.Status)}, 1)
	return result
}

func paidTag(u *models.MongoUser) string {
	if u.IsPaid {
		return "true"
	}
	return "false"
}
