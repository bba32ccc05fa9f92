package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"heart2heart/m/app/config"
	"heart2heart/m/app/entitlement"
	"heart2heart/m/app/models"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	backoff "gopkg.in/cenkalti/backoff.v1"
)

const (
	MongoUserCollection     = "users"
	MongoFeedbackCollection = "feedback"
)

// ErrUserNotFound maps mongo.ErrNoDocuments; callers create defaults on it.
var ErrUserNotFound = errors.New("user not found")

// Client is a mongo client
type Client struct {
	*mongo.Client
}

type MongoClient interface {
	Disconnect(ctx context.Context) error
	Ping(ctx context.Context, rp *readpref.ReadPref) error

	GetUser(ctx context.Context) (*models.MongoUser, error)
	EnsureUser(ctx context.Context) (*models.MongoUser, error)
	SetMerge(ctx context.Context, fields bson.M) error
	Debit(ctx context.Context, paid bool) (*models.MongoUser, error)
	GrantPlan(ctx context.Context, plan models.Plan) error
	ResetFreeUsage(ctx context.Context) (int64, error)

	SaveFeedback(ctx context.Context, feedback models.MongoFeedback) error
	GetUsersCount(ctx context.Context) (int64, error)
	GetUsersCountForPlan(ctx context.Context, plan models.PlanName) (int64, error)
}

var MongoDBClient MongoClient

// NewClient creates a new mongo client
func NewClient(connection string) *Client {
	return &Client{
		Client: mustConnect(connection),
	}
}

// mustConnect connects to mongo, retrying with backoff, and panics when the
// store stays unreachable.
func mustConnect(connection string) *mongo.Client {
	client, err := mongo.NewClient(options.Client().ApplyURI(connection).SetMaxConnecting(25))
	if err != nil {
		logrus.WithError(err).Panic("failed to create mongo client")
	}

	connect := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := client.Connect(ctx); err != nil && !errors.Is(err, mongo.ErrClientDisconnected) {
			return err
		}
		return client.Ping(ctx, nil)
	}
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 30 * time.Second
	err = backoff.Retry(connect, policy)
	if err != nil {
		logrus.WithError(err).Panic("failed to connect to mongo")
	}

	return client
}

func (c *Client) users() *mongo.Collection {
	return c.Database(config.CONFIG.MongoDBName).Collection(MongoUserCollection)
}

func (c *Client) GetUser(ctx context.Context) (*models.MongoUser, error) {
	userId := ctx.Value(models.UserContext{}).(string)
	filter := bson.M{"_id": userId}
	var user models.MongoUser
	err := c.users().FindOne(ctx, filter).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("GetUser: failed to find user: %w", err)
	}
	return &user, nil
}

// EnsureUser fetches the entitlement record, creating the free-tier defaults
// the first time a user id is seen. The insert is an upsert so two concurrent
// first loads converge on one document.
func (c *Client) EnsureUser(ctx context.Context) (*models.MongoUser, error) {
	user, err := c.GetUser(ctx)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	userId := ctx.Value(models.UserContext{}).(string)
	defaults := entitlement.NewRecord(userId)
	filter := bson.M{"_id": userId}
	update := bson.M{
		"$setOnInsert": bson.M{
			"is_paid":             defaults.IsPaid,
			"plan":                defaults.Plan,
			"limit":               defaults.Limit,
			"usage_count":         defaults.UsageCount,
			"remaining_paid_uses": defaults.RemainingPaidUses,
			"created_at":          defaults.CreatedAt,
		},
	}
	opts := options.Update().SetUpsert(true)
	_, err = c.users().UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return nil, fmt.Errorf("EnsureUser: failed to create defaults: %w", err)
	}
	return c.GetUser(ctx)
}

// SetMerge applies a partial update; fields not mentioned are untouched.
func (c *Client) SetMerge(ctx context.Context, fields bson.M) error {
	if len(fields) == 0 {
		return nil
	}
	userId := ctx.Value(models.UserContext{}).(string)

	filter := bson.M{"_id": userId}
	update := bson.M{"$set": fields}
	opts := options.Update().SetUpsert(true)
	_, err := c.users().UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return fmt.Errorf("SetMerge: failed to update user: %w", err)
	}
	return nil
}

// Debit atomically consumes one interaction on the store side. The quota
// guard lives in the filter, so two racing turns over the last remaining use
// produce exactly one winner and the counter never crosses its bound. A
// filter miss surfaces as entitlement.ErrExhausted.
func (c *Client) Debit(ctx context.Context, paid bool) (*models.MongoUser, error) {
	userId := ctx.Value(models.UserContext{}).(string)

	var filter, update bson.M
	if paid {
		filter = bson.M{
			"_id":                 userId,
			"is_paid":             true,
			"remaining_paid_uses": bson.M{"$gt": 0},
		}
		update = bson.M{
			"$inc": bson.M{"remaining_paid_uses": -1},
			"$set": bson.M{"last_used_at": time.Now().UTC().Format(time.RFC3339)},
		}
	} else {
		filter = bson.M{
			"_id":     userId,
			"is_paid": false,
			"$expr":   bson.M{"$lt": bson.A{"$usage_count", "$limit"}},
		}
		update = bson.M{
			"$inc": bson.M{"usage_count": 1},
			"$set": bson.M{"last_used_at": time.Now().UTC().Format(time.RFC3339)},
		}
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var user models.MongoUser
	err := c.users().FindOneAndUpdate(ctx, filter, update, opts).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, entitlement.ErrExhausted
	}
	if err != nil {
		return nil, fmt.Errorf("Debit: failed to update user: %w", err)
	}
	return &user, nil
}

// GrantPlan upgrades the record to a paid plan with a fresh allotment.
func (c *Client) GrantPlan(ctx context.Context, plan models.Plan) error {
	userId := ctx.Value(models.UserContext{}).(string)

	filter := bson.M{"_id": userId}
	update := bson.M{
		"$set": bson.M{
			"is_paid":             true,
			"plan":                plan.Name,
			"limit":               plan.Limit,
			"usage_count":         0,
			"remaining_paid_uses": plan.Limit,
		},
	}
	opts := options.Update().SetUpsert(true)
	_, err := c.users().UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return fmt.Errorf("GrantPlan: failed to grant %s: %w", plan.Name, err)
	}
	return nil
}

// ResetFreeUsage clears the free-tier counter for every unpaid user, used by
// the optional periodic reset worker.
func (c *Client) ResetFreeUsage(ctx context.Context) (int64, error) {
	filter := bson.M{
		"is_paid":     false,
		"usage_count": bson.M{"$gt": 0},
	}
	update := bson.M{
		"$set": bson.M{
			"usage_count":   0,
			"last_reset_at": time.Now().UTC().Format(time.RFC3339),
		},
	}
	result, err := c.users().UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, fmt.Errorf("ResetFreeUsage: failed to reset users: %w", err)
	}
	return result.ModifiedCount, nil
}

func (c *Client) SaveFeedback(ctx context.Context, feedback models.MongoFeedback) error {
	collection := c.Database(config.CONFIG.MongoDBName).Collection(MongoFeedbackCollection)
	_, err := collection.InsertOne(ctx, feedback)
	if err != nil {
		return fmt.Errorf("SaveFeedback: failed to insert feedback: %w", err)
	}
	return nil
}

func (c *Client) GetUsersCount(ctx context.Context) (int64, error) {
	count, err := c.users().CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("GetUsersCount: failed to get users count: %w", err)
	}
	return count, nil
}

func (c *Client) GetUsersCountForPlan(ctx context.Context, plan models.PlanName) (int64, error) {
	count, err := c.users().CountDocuments(ctx, bson.M{"plan": plan})
	if err != nil {
		return 0, fmt.Errorf("GetUsersCountForPlan: failed to get users count: %w", err)
	}
	return count, nil
}
