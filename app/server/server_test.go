package server

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"

	"heart2heart/m/app/admin"
	"heart2heart/m/app/ai"
	"heart2heart/m/app/config"
	"heart2heart/m/app/db/mongo"
	"heart2heart/m/app/db/redis"
	"heart2heart/m/app/metering"
	"heart2heart/m/app/models"
	"heart2heart/m/app/sysbot"

	"github.com/DataDog/datadog-go/v5/statsd"
	"github.com/stretchr/testify/assert"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttputil"
)

func init() {
	testClient, err := statsd.New("127.0.0.1:8125", statsd.WithNamespace("tests."))
	if err != nil {
		log.Fatalf("error creating test DataDog client: %v", err)
	}
	config.CONFIG = &config.Config{
		AdminKeys:     admin.Keys(""),
		DataDogClient: testClient,
		Model:         string(models.ChatGpt4oMini),
		PaymentURL:    "https://www.paypal.com/ncp/payment/W6UUT2A8RXZSG",
	}
}

type fakeGateway struct {
	fragments []string
	err       error
	calls     int
}

func (f *fakeGateway) ChatCompleteStreaming(ctx context.Context, completion models.ChatCompletion, cancelContext context.CancelFunc) (chan string, chan error) {
	f.calls++
	messages := make(chan string)
	errs := make(chan error, 1)
	go func() {
		defer close(errs)
		defer close(messages)
		defer cancelContext()
		for _, fragment := range f.fragments {
			messages <- fragment
		}
		if f.err != nil {
			errs <- f.err
		}
	}()
	return messages, errs
}

// the prometheus middleware registers collectors globally, so the server is
// built once and its controller re-pointed per test
var (
	testServer *Server
	serverOnce sync.Once
)

func newTestServer(gateway ai.Gateway, users ...models.MongoUser) (*Server, *mongo.MockMongoDBClient) {
	serverOnce.Do(func() {
		testServer = NewServer(&metering.Controller{})
	})
	redis.RedisClient = redis.NewMockRedisClient()
	store := mongo.NewMockMongoDBClient(users...)
	mongo.MongoDBClient = store
	testServer.Controller.AI = gateway
	testServer.Controller.Store = store
	sysbot.NewStubSystemBot(config.CONFIG)
	return testServer, store
}

func serve(s *Server, method, uri, body string) *fasthttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(uri)
	if body != "" {
		ctx.Request.Header.SetContentType("application/json")
		ctx.Request.SetBodyString(body)
	}
	s.router.Handler(ctx)
	return ctx
}

func TestRootAssignsUidAndRedirects(t *testing.T) {
	s, _ := newTestServer(&fakeGateway{})

	ctx := serve(s, "GET", "/", "")

	assert.Equal(t, fasthttp.StatusFound, ctx.Response.StatusCode())
	location := string(ctx.Response.Header.Peek("Location"))
	assert.True(t, strings.HasPrefix(location, "/?uid="), "location: %s", location)
	assert.True(t, strings.HasSuffix(location, "&page=chat"), "location: %s", location)
	uid := strings.TrimSuffix(strings.TrimPrefix(location, "/?uid="), "&page=chat")
	assert.Len(t, uid, 36, "uid must be a v4 uuid")
}

func TestUnknownPageRedirectsToChat(t *testing.T) {
	s, _ := newTestServer(&fakeGateway{})

	ctx := serve(s, "GET", "/?uid=123&page=settings", "")

	assert.Equal(t, fasthttp.StatusFound, ctx.Response.StatusCode())
	assert.Equal(t, "/?uid=123&page=chat", string(ctx.Response.Header.Peek("Location")))
}

func TestChatPageRendersAndCreatesRecord(t *testing.T) {
	s, store := newTestServer(&fakeGateway{})

	ctx := serve(s, "GET", "/?uid=123&page=chat", "")

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Body()), "마음을 기댈 수 있는 AI 친구")

	// first page view must persist the default entitlement record
	user, ok := store.Users["123"]
	assert.True(t, ok)
	assert.False(t, user.IsPaid)
	assert.Equal(t, models.FreeLimit, user.Limit)
}

func TestPlansPageRenders(t *testing.T) {
	s, _ := newTestServer(&fakeGateway{})

	ctx := serve(s, "GET", "/?uid=123&page=plans", "")

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	body := string(ctx.Response.Body())
	assert.Contains(t, body, "결제 안내")
	assert.Contains(t, body, config.CONFIG.PaymentURL)
}

func TestMeHandler(t *testing.T) {
	s, _ := newTestServer(&fakeGateway{}, models.MongoUser{
		ID:         "123",
		Limit:      models.FreeLimit,
		UsageCount: 1,
	})

	ctx := serve(s, "GET", "/api/me?uid=123", "")

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	status := entitlementStatus{}
	assert.NoError(t, json.Unmarshal(ctx.Response.Body(), &status))
	assert.Equal(t, "123", status.UserID)
	assert.False(t, status.IsPaid)
	assert.Equal(t, 3, status.Remaining)
	assert.False(t, status.Exhausted)
	assert.Empty(t, status.PaymentURL)
}

func TestMeHandlerExhaustedCarriesPaymentURL(t *testing.T) {
	s, _ := newTestServer(&fakeGateway{}, models.MongoUser{
		ID:         "123",
		Limit:      models.FreeLimit,
		UsageCount: models.FreeLimit,
	})

	ctx := serve(s, "GET", "/api/me?uid=123", "")

	status := entitlementStatus{}
	assert.NoError(t, json.Unmarshal(ctx.Response.Body(), &status))
	assert.Equal(t, 0, status.Remaining)
	assert.True(t, status.Exhausted)
	assert.Equal(t, config.CONFIG.PaymentURL, status.PaymentURL)
}

func TestMeHandlerRequiresUid(t *testing.T) {
	s, _ := newTestServer(&fakeGateway{})

	ctx := serve(s, "GET", "/api/me", "")

	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
}

// the SSE endpoint hands its body to a stream writer, so it is exercised over
// a real connection
var (
	listenerOnce sync.Once
	streamClient *http.Client
)

func sseClient() *http.Client {
	listenerOnce.Do(func() {
		ln := fasthttputil.NewInmemoryListener()
		go func() {
			_ = fasthttp.Serve(ln, testServer.router.Handler)
		}()
		streamClient = &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
					return ln.Dial()
				},
			},
		}
	})
	return streamClient
}

func TestChatStreamsFragmentsAndSettles(t *testing.T) {
	_, store := newTestServer(&fakeGateway{fragments: []string{"응, ", "곁에 있어."}})
	client := sseClient()

	resp, err := client.Post("http://heart2heart/api/chat?uid=123&page=chat",
		"application/json", strings.NewReader(`{"message":"요즘 너무 외로워"}`))
	assert.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	assert.NoError(t, err)
	text := string(body)
	assert.Contains(t, text, `"delta":"응, "`)
	assert.Contains(t, text, `"delta":"곁에 있어."`)
	assert.Contains(t, text, "event: done")
	assert.Contains(t, text, `"status":"completed"`)
	assert.Contains(t, text, `"emotion":"loneliness"`)
	assert.Contains(t, text, `"assistant_text":"응, 곁에 있어."`)

	assert.Equal(t, 1, store.Users["123"].UsageCount)
}

func TestChatBlockedTurnStreamsDoneOnly(t *testing.T) {
	gateway := &fakeGateway{fragments: []string{"무시되어야 함"}}
	_, store := newTestServer(gateway, models.MongoUser{
		ID:         "123",
		Limit:      models.FreeLimit,
		UsageCount: models.FreeLimit,
	})
	client := sseClient()

	resp, err := client.Post("http://heart2heart/api/chat?uid=123&page=chat",
		"application/json", strings.NewReader(`{"message":"한 번만 더"}`))
	assert.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	assert.NoError(t, err)
	text := string(body)
	assert.NotContains(t, text, `"delta"`)
	assert.Contains(t, text, `"status":"blocked"`)
	assert.Contains(t, text, `"error":"exhausted"`)
	assert.Contains(t, text, config.CONFIG.PaymentURL)

	assert.Equal(t, 0, gateway.calls)
	assert.Equal(t, models.FreeLimit, store.Users["123"].UsageCount)
}

func TestChatRequiresMessage(t *testing.T) {
	s, _ := newTestServer(&fakeGateway{})

	ctx := serve(s, "POST", "/api/chat?uid=123", `{"message":"  "}`)
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())

	ctx = serve(s, "POST", "/api/chat", `{"message":"안녕"}`)
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
}

func TestFeedbackSaved(t *testing.T) {
	s, store := newTestServer(&fakeGateway{})

	ctx := serve(s, "POST", "/api/feedback?uid=123&page=plans", `{"feedback":"목소리가 따뜻해요"}`)

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Len(t, store.Feedbacks, 1)
	assert.Equal(t, "123", store.Feedbacks[0].UserID)
	assert.Equal(t, "목소리가 따뜻해요", store.Feedbacks[0].Feedback)
	assert.Equal(t, config.APP_VERSION, store.Feedbacks[0].AppVersion)
	assert.Equal(t, "plans", store.Feedbacks[0].Page)
}

func TestFeedbackRejectsEmpty(t *testing.T) {
	s, store := newTestServer(&fakeGateway{})

	ctx := serve(s, "POST", "/api/feedback?uid=123", `{"feedback":"   "}`)

	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
	assert.Empty(t, store.Feedbacks)
}

func TestAdminGrantHappyPath(t *testing.T) {
	s, store := newTestServer(&fakeGateway{})

	ctx := serve(s, "POST", "/api/admin/grant?uid=123", `{"password":"4321"}`)

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	status := entitlementStatus{}
	assert.NoError(t, json.Unmarshal(ctx.Response.Body(), &status))
	assert.True(t, status.IsPaid)
	assert.Equal(t, models.PlanBasic, status.Plan)
	assert.Equal(t, 30, status.Remaining)

	user := store.Users["123"]
	assert.True(t, user.IsPaid)
	assert.Equal(t, 30, user.RemainingPaidUses)
	assert.Equal(t, 0, user.UsageCount)
}

func TestAdminGrantProPlan(t *testing.T) {
	s, store := newTestServer(&fakeGateway{})

	ctx := serve(s, "POST", "/api/admin/grant?uid=123", `{"password":"4321","plan":"pro"}`)

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Equal(t, models.PlanPro, store.Users["123"].Plan)
	assert.Equal(t, 100, store.Users["123"].RemainingPaidUses)
}

func TestAdminGrantRejectsBadPassword(t *testing.T) {
	s, store := newTestServer(&fakeGateway{})

	ctx := serve(s, "POST", "/api/admin/grant?uid=123", `{"password":"wrong"}`)

	assert.Equal(t, fasthttp.StatusUnauthorized, ctx.Response.StatusCode())
	_, ok := store.Users["123"]
	assert.False(t, ok, "failed auth must not create or mutate the record")
}

func TestAdminGrantRejectsUnknownPlan(t *testing.T) {
	s, _ := newTestServer(&fakeGateway{})

	ctx := serve(s, "POST", "/api/admin/grant?uid=123", `{"password":"4321","plan":"enterprise"}`)

	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(&fakeGateway{})

	ctx := serve(s, "GET", "/health", "")

	assert.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Body()), "💙")
}
