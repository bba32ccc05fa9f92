package mongo

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"testing"

	"heart2heart/m/app/config"
	"heart2heart/m/app/entitlement"
	"heart2heart/m/app/models"

	"github.com/tryvium-travels/memongo"
)

var MockMongoServer *memongo.Server

func TestMain(m *testing.M) {
	opts := &memongo.Options{
		MongoVersion: "6.0.13",
	}
	if runtime.GOARCH == "arm64" {
		if runtime.GOOS == "darwin" {
			// Only set the custom url as workaround for arm64 macs
			opts.DownloadURL = "https://fastdl.mongodb.org/osx/mongodb-macos-x86_64-6.0.13.tgz"
		}
	}

	MockMongoServer, _ = memongo.StartWithOptions(opts)
	defer MockMongoServer.Stop()
	m.Run()
}

func newTestClient(t *testing.T) *Client {
	uri := MockMongoServer.URIWithRandomDB()

	// parse db name from uri
	dbName := uri[strings.LastIndex(uri, "/")+1:]
	config.CONFIG = &config.Config{
		MongoDBName: dbName,
	}

	return NewClient(uri)
}

func userContext(userId string) context.Context {
	return context.WithValue(context.Background(), models.UserContext{}, userId)
}

func TestEnsureUserCreatesDefaults(t *testing.T) {
	client := newTestClient(t)
	ctx := userContext("292902807")

	_, err := client.GetUser(ctx)
	if err != ErrUserNotFound {
		t.Fatalf("expected ErrUserNotFound for a fresh id, got %v", err)
	}

	user, err := client.EnsureUser(ctx)
	if err != nil {
		t.Fatalf("error ensuring user: %v", err)
	}
	if user.ID != "292902807" {
		t.Fatalf("expected user id to be 292902807, got %s", user.ID)
	}
	if user.IsPaid || user.Limit != models.FreeLimit || user.UsageCount != 0 {
		t.Fatalf("unexpected defaults: %+v", user)
	}

	// second load hydrates the same record
	again, err := client.EnsureUser(ctx)
	if err != nil {
		t.Fatalf("error ensuring user again: %v", err)
	}
	if again.CreatedAt != user.CreatedAt {
		t.Fatalf("expected the same record, got %+v and %+v", user, again)
	}
}

func TestSetMergeLeavesOtherFields(t *testing.T) {
	client := newTestClient(t)
	ctx := userContext("292902807")

	if _, err := client.EnsureUser(ctx); err != nil {
		t.Fatalf("error ensuring user: %v", err)
	}
	err := client.SetMerge(ctx, map[string]interface{}{"usage_count": 2})
	if err != nil {
		t.Fatalf("error merging fields: %v", err)
	}

	user, err := client.GetUser(ctx)
	if err != nil {
		t.Fatalf("error getting user: %v", err)
	}
	if user.UsageCount != 2 {
		t.Fatalf("expected usage_count 2, got %d", user.UsageCount)
	}
	if user.IsPaid || user.Limit != models.FreeLimit {
		t.Fatalf("untouched fields changed: %+v", user)
	}
}

func TestDebitFreeStopsAtLimit(t *testing.T) {
	client := newTestClient(t)
	ctx := userContext("292902807")

	if _, err := client.EnsureUser(ctx); err != nil {
		t.Fatalf("error ensuring user: %v", err)
	}

	for i := 1; i <= models.FreeLimit; i++ {
		user, err := client.Debit(ctx, false)
		if err != nil {
			t.Fatalf("debit %d failed: %v", i, err)
		}
		if user.UsageCount != i {
			t.Fatalf("expected usage_count %d, got %d", i, user.UsageCount)
		}
	}

	_, err := client.Debit(ctx, false)
	if err != entitlement.ErrExhausted {
		t.Fatalf("expected ErrExhausted past the limit, got %v", err)
	}

	user, _ := client.GetUser(ctx)
	if user.UsageCount != models.FreeLimit {
		t.Fatalf("usage_count moved past the limit: %d", user.UsageCount)
	}
}

func TestGrantPlanThenPaidDebits(t *testing.T) {
	client := newTestClient(t)
	ctx := userContext("292902807")

	if _, err := client.EnsureUser(ctx); err != nil {
		t.Fatalf("error ensuring user: %v", err)
	}
	if _, err := client.Debit(ctx, false); err != nil {
		t.Fatalf("free debit failed: %v", err)
	}

	if err := client.GrantPlan(ctx, models.Plans[models.PlanBasic]); err != nil {
		t.Fatalf("error granting plan: %v", err)
	}

	user, err := client.GetUser(ctx)
	if err != nil {
		t.Fatalf("error getting user: %v", err)
	}
	if !user.IsPaid || user.Plan != models.PlanBasic || user.Limit != 30 ||
		user.UsageCount != 0 || user.RemainingPaidUses != 30 {
		t.Fatalf("unexpected record after grant: %+v", user)
	}

	user, err = client.Debit(ctx, true)
	if err != nil {
		t.Fatalf("paid debit failed: %v", err)
	}
	if user.RemainingPaidUses != 29 || user.UsageCount != 0 {
		t.Fatalf("paid debit touched the wrong counter: %+v", user)
	}
}

// Two racing turns over the last remaining paid use: exactly one may win and
// the counter must settle at zero, never below.
func TestDebitRaceSingleWinner(t *testing.T) {
	client := newTestClient(t)
	ctx := userContext("292902807")

	if _, err := client.EnsureUser(ctx); err != nil {
		t.Fatalf("error ensuring user: %v", err)
	}
	if err := client.GrantPlan(ctx, models.Plans[models.PlanBasic]); err != nil {
		t.Fatalf("error granting plan: %v", err)
	}
	if err := client.SetMerge(ctx, map[string]interface{}{"remaining_paid_uses": 1}); err != nil {
		t.Fatalf("error setting remaining uses: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = client.Debit(ctx, true)
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
		} else if err != entitlement.ErrExhausted {
			t.Fatalf("unexpected debit error: %v", err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winning debit, got %d", winners)
	}

	user, err := client.GetUser(ctx)
	if err != nil {
		t.Fatalf("error getting user: %v", err)
	}
	if user.RemainingPaidUses != 0 {
		t.Fatalf("expected remaining_paid_uses 0, got %d", user.RemainingPaidUses)
	}
}

func TestResetFreeUsageSkipsPaidUsers(t *testing.T) {
	client := newTestClient(t)

	freeCtx := userContext("free-user")
	paidCtx := userContext("paid-user")
	if _, err := client.EnsureUser(freeCtx); err != nil {
		t.Fatalf("error ensuring free user: %v", err)
	}
	if _, err := client.EnsureUser(paidCtx); err != nil {
		t.Fatalf("error ensuring paid user: %v", err)
	}
	if _, err := client.Debit(freeCtx, false); err != nil {
		t.Fatalf("free debit failed: %v", err)
	}
	if err := client.GrantPlan(paidCtx, models.Plans[models.PlanPro]); err != nil {
		t.Fatalf("error granting plan: %v", err)
	}
	if _, err := client.Debit(paidCtx, true); err != nil {
		t.Fatalf("paid debit failed: %v", err)
	}

	reset, err := client.ResetFreeUsage(context.Background())
	if err != nil {
		t.Fatalf("error resetting free usage: %v", err)
	}
	if reset != 1 {
		t.Fatalf("expected 1 reset record, got %d", reset)
	}

	freeUser, _ := client.GetUser(freeCtx)
	if freeUser.UsageCount != 0 || freeUser.LastResetAt == "" {
		t.Fatalf("free user not reset: %+v", freeUser)
	}
	paidUser, _ := client.GetUser(paidCtx)
	if paidUser.RemainingPaidUses != 99 {
		t.Fatalf("paid user touched by reset: %+v", paidUser)
	}
}

func TestSaveFeedback(t *testing.T) {
	client := newTestClient(t)

	err := client.SaveFeedback(context.Background(), models.MongoFeedback{
		UserID:     "292902807",
		Feedback:   "따뜻한 대화였어요",
		AppVersion: "v1.7.0",
		Page:       "chat",
		Ts:         "2026-08-28T00:00:00Z",
	})
	if err != nil {
		t.Fatalf("error saving feedback: %v", err)
	}
}
