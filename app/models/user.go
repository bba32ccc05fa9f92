package models

// UserContext is a context key carrying the end-user identifier.
type UserContext struct{}

// ClientContext is a context key carrying the surface the turn came from ("web").
type ClientContext struct{}

// PageContext is a context key carrying the page the request was made from.
type PageContext struct{}

type PlanName string

const (
	PlanNone  PlanName = ""
	PlanBasic PlanName = "basic"
	PlanPro   PlanName = "pro"
)

const FreeLimit = 4

type Plan struct {
	Name  PlanName `bson:"name" json:"name"`
	Limit int      `bson:"limit" json:"limit"`
}

var Plans = map[PlanName]Plan{
	PlanBasic: {
		Name:  PlanBasic,
		Limit: 30,
	},
	PlanPro: {
		Name:  PlanPro,
		Limit: 100,
	},
}

// MongoUser is the persisted entitlement record, one document per user id.
type MongoUser struct {
	ID                string   `bson:"_id" json:"user_id"`
	IsPaid            bool     `bson:"is_paid" json:"is_paid"`
	Plan              PlanName `bson:"plan" json:"plan"`
	Limit             int      `bson:"limit" json:"limit"`
	UsageCount        int      `bson:"usage_count" json:"usage_count"`
	RemainingPaidUses int      `bson:"remaining_paid_uses" json:"remaining_paid_uses"`
	LastResetAt       string   `bson:"last_reset_at,omitempty" json:"last_reset_at,omitempty"`
	CreatedAt         string   `bson:"created_at,omitempty" json:"-"`
	LastUsedAt        string   `bson:"last_used_at,omitempty" json:"-"`
}

// MongoFeedback is a write-only feedback record kept in its own collection.
type MongoFeedback struct {
	UserID     string `bson:"user_id"`
	Feedback   string `bson:"feedback"`
	AppVersion string `bson:"app_version"`
	Page       string `bson:"page"`
	Ts         string `bson:"ts"`
}

// ChatTurn is an in-memory (user, assistant) exchange, kept only for on-page
// replay within a single session. Never persisted.
type ChatTurn struct {
	UserText      string `json:"user_text"`
	AssistantText string `json:"assistant_text"`
}
