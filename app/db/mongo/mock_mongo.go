package mongo

import (
	"context"
	"sync"

	"heart2heart/m/app/entitlement"
	"heart2heart/m/app/models"

	"go.mongodb.org/mongo-driver/bson"
)

// MockMongoDBClient is an in-memory mock for the MongoDB client, mirroring
// the guarded-debit semantics of the real adapter.
type MockMongoDBClient struct {
	MongoClient
	mu        sync.Mutex
	Users     map[string]*models.MongoUser
	Feedbacks []models.MongoFeedback

	// when set, every persistence call fails with it
	Err error
}

func NewMockMongoDBClient(users ...models.MongoUser) *MockMongoDBClient {
	m := &MockMongoDBClient{
		Users: make(map[string]*models.MongoUser),
	}
	for i := range users {
		user := users[i]
		m.Users[user.ID] = &user
	}
	return m
}

func (m *MockMongoDBClient) GetUser(ctx context.Context) (*models.MongoUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	userId := ctx.Value(models.UserContext{}).(string)
	user, ok := m.Users[userId]
	if !ok {
		return nil, ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

func (m *MockMongoDBClient) EnsureUser(ctx context.Context) (*models.MongoUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	userId := ctx.Value(models.UserContext{}).(string)
	user, ok := m.Users[userId]
	if !ok {
		user = entitlement.NewRecord(userId)
		m.Users[userId] = user
	}
	copied := *user
	return &copied, nil
}

func (m *MockMongoDBClient) SetMerge(ctx context.Context, fields bson.M) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	userId := ctx.Value(models.UserContext{}).(string)
	user, ok := m.Users[userId]
	if !ok {
		user = entitlement.NewRecord(userId)
		m.Users[userId] = user
	}
	for field, value := range fields {
		switch field {
		case "is_paid":
			user.IsPaid = value.(bool)
		case "plan":
			user.Plan = value.(models.PlanName)
		case "limit":
			user.Limit = value.(int)
		case "usage_count":
			user.UsageCount = value.(int)
		case "remaining_paid_uses":
			user.RemainingPaidUses = value.(int)
		case "last_reset_at":
			user.LastResetAt = value.(string)
		}
	}
	return nil
}

func (m *MockMongoDBClient) Debit(ctx context.Context, paid bool) (*models.MongoUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	userId := ctx.Value(models.UserContext{}).(string)
	user, ok := m.Users[userId]
	if !ok {
		return nil, ErrUserNotFound
	}
	if user.IsPaid != paid {
		return nil, entitlement.ErrExhausted
	}
	if _, err := entitlement.Debit(user); err != nil {
		return nil, err
	}
	copied := *user
	return &copied, nil
}

func (m *MockMongoDBClient) GrantPlan(ctx context.Context, plan models.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	userId := ctx.Value(models.UserContext{}).(string)
	user, ok := m.Users[userId]
	if !ok {
		user = entitlement.NewRecord(userId)
		m.Users[userId] = user
	}
	entitlement.Grant(user, plan)
	return nil
}

func (m *MockMongoDBClient) ResetFreeUsage(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return 0, m.Err
	}
	var reset int64
	for _, user := range m.Users {
		if !user.IsPaid && user.UsageCount > 0 {
			entitlement.ResetFree(user)
			reset++
		}
	}
	return reset, nil
}

func (m *MockMongoDBClient) SaveFeedback(ctx context.Context, feedback models.MongoFeedback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Feedbacks = append(m.Feedbacks, feedback)
	return nil
}

func (m *MockMongoDBClient) GetUsersCount(ctx context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.Users)), nil
}

func (m *MockMongoDBClient) GetUsersCountForPlan(ctx context.Context, plan models.PlanName) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var count int64
	for _, user := range m.Users {
		if user.Plan == plan {
			count++
		}
	}
	return count, nil
}
