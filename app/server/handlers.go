package server

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"heart2heart/m/app/admin"
	"heart2heart/m/app/ai"
	"heart2heart/m/app/config"
	"heart2heart/m/app/db/mongo"
	"heart2heart/m/app/entitlement"
	"heart2heart/m/app/lib"
	"heart2heart/m/app/metering"
	"heart2heart/m/app/models"
	"heart2heart/m/app/sysbot"
	"heart2heart/m/app/util"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
)

// entitlementStatus is the chip payload the pages render. PaymentURL is set
// only when the user can no longer interact.
type entitlementStatus struct {
	UserID     string          `json:"user_id"`
	Plan       models.PlanName `json:"plan"`
	IsPaid     bool            `json:"is_paid"`
	Limit      int             `json:"limit"`
	Remaining  int             `json:"remaining"`
	Exhausted  bool            `json:"exhausted"`
	PaymentURL string          `json:"payment_url,omitempty"`
}

func statusFor(user *models.MongoUser) entitlementStatus {
	status := entitlementStatus{
		UserID:    user.ID,
		Plan:      user.Plan,
		IsPaid:    user.IsPaid,
		Limit:     user.Limit,
		Remaining: entitlement.Remaining(user),
		Exhausted: !entitlement.CanInteract(user),
	}
	if status.Exhausted {
		status.PaymentURL = config.CONFIG.PaymentURL
	}
	return status
}

// pageHandler serves chat and plans. A visitor without uid gets a fresh one
// and a redirect so the id lands in the address bar; unknown pages route back
// to chat.
func (s *Server) pageHandler(ctx *fasthttp.RequestCtx) {
	uid := string(ctx.QueryArgs().Peek("uid"))
	page := string(ctx.QueryArgs().Peek("page"))
	if page == "" {
		page = PageChat
	}
	if uid == "" {
		redirectToPage(ctx, uuid.NewString(), page)
		return
	}
	if page != PageChat && page != PagePlans {
		redirectToPage(ctx, uid, PageChat)
		return
	}

	turnCtx, cancel := lib.SetupUserAndContext(uid, page)
	defer cancel()
	// page loads hydrate from the store so first-time visitors get a record
	if _, err := lib.LoadEntitlement(turnCtx, true); err != nil {
		log.Warnf("pageHandler: entitlement hydrate failed for %s: %v", uid, err)
	}
	config.CONFIG.DataDogClient.Incr("page.view", []string{"page:" + page}, 1)

	tmpl := chatPage
	if page == PagePlans {
		tmpl = plansPage
	}
	ctx.SetContentType("text/html; charset=utf-8")
	if err := tmpl.Execute(ctx, pageData{UID: uid, PaymentURL: config.CONFIG.PaymentURL}); err != nil {
		log.Errorf("pageHandler: render %s: %v", page, err)
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
	}
}

func redirectToPage(ctx *fasthttp.RequestCtx, uid string, page string) {
	ctx.Redirect(fmt.Sprintf("/?uid=%s&page=%s", uid, page), fasthttp.StatusFound)
}

func (s *Server) meHandler(ctx *fasthttp.RequestCtx) {
	uid := string(ctx.QueryArgs().Peek("uid"))
	if uid == "" {
		writeError(ctx, fasthttp.StatusBadRequest, "missing_uid")
		return
	}

	turnCtx, cancel := lib.SetupUserAndContext(uid, PageChat)
	defer cancel()
	user, err := lib.LoadEntitlement(turnCtx, false)
	if err != nil {
		writeError(ctx, fasthttp.StatusServiceUnavailable, "store_unavailable")
		return
	}
	writeJSON(ctx, fasthttp.StatusOK, statusFor(user))
}

type chatRequest struct {
	Message string `json:"message"`
}

// fragmentEvent is one SSE message while the assistant is speaking.
type fragmentEvent struct {
	Delta string `json:"delta"`
}

// doneEvent closes every chat stream, carrying the settled turn outcome. Turn
// is the completed exchange for on-page replay; it lives nowhere else.
type doneEvent struct {
	Status      string             `json:"status"`
	Emotion     string             `json:"emotion,omitempty"`
	Error       string             `json:"error,omitempty"`
	Turn        *models.ChatTurn   `json:"turn,omitempty"`
	Entitlement *entitlementStatus `json:"entitlement,omitempty"`
}

func doneEventFor(userText string, result metering.Result) doneEvent {
	done := doneEvent{
		Status:  string(result.Status),
		Emotion: string(result.Emotion),
	}
	if result.Reply != "" {
		done.Turn = &models.ChatTurn{
			UserText:      userText,
			AssistantText: result.Reply,
		}
	}
	if result.Entitlement != nil {
		status := statusFor(result.Entitlement)
		if result.Exhausted {
			status.Exhausted = true
			status.PaymentURL = config.CONFIG.PaymentURL
		}
		done.Entitlement = &status
	}
	switch {
	case result.Err == nil:
	case errors.Is(result.Err, entitlement.ErrExhausted):
		done.Error = "exhausted"
	case errors.Is(result.Err, ai.ErrAuth):
		done.Error = "auth"
	case errors.Is(result.Err, lib.ErrStoreUnavailable):
		done.Error = "store_unavailable"
	default:
		done.Error = "gateway"
	}
	return done
}

// chatHandler runs one metered turn and streams fragments back as SSE. The
// stream always terminates with a "done" event, blocked turns included.
func (s *Server) chatHandler(ctx *fasthttp.RequestCtx) {
	uid := string(ctx.QueryArgs().Peek("uid"))
	if uid == "" {
		writeError(ctx, fasthttp.StatusBadRequest, "missing_uid")
		return
	}
	page := string(ctx.QueryArgs().Peek("page"))
	if page == "" {
		page = PageChat
	}

	request := chatRequest{}
	if err := json.Unmarshal(ctx.PostBody(), &request); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "bad_request")
		return
	}
	message := strings.TrimSpace(request.Message)
	if message == "" {
		writeError(ctx, fasthttp.StatusBadRequest, "empty_message")
		return
	}

	ctx.SetContentType("text/event-stream")
	ctx.Response.Header.Set("Cache-Control", "no-cache")
	ctx.Response.Header.Set("Connection", "keep-alive")

	controller := s.Controller
	ctx.SetBodyStreamWriter(func(w *bufio.Writer) {
		turnCtx, cancel := lib.SetupUserAndContext(uid, page)
		defer cancel()
		result := controller.HandleTurn(turnCtx, cancel, message, func(fragment string) {
			writeEvent(w, "", fragmentEvent{Delta: fragment})
			_ = w.Flush()
		})
		writeEvent(w, "done", doneEventFor(message, result))
		_ = w.Flush()
	})
}

func writeEvent(w *bufio.Writer, event string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Errorf("writeEvent: marshal: %v", err)
		return
	}
	if event != "" {
		fmt.Fprintf(w, "event: %s\n", event)
	}
	fmt.Fprintf(w, "data: %s\n\n", body)
}

type feedbackRequest struct {
	Feedback string `json:"feedback"`
}

func (s *Server) feedbackHandler(ctx *fasthttp.RequestCtx) {
	uid := string(ctx.QueryArgs().Peek("uid"))
	if uid == "" {
		writeError(ctx, fasthttp.StatusBadRequest, "missing_uid")
		return
	}
	page := string(ctx.QueryArgs().Peek("page"))
	if page == "" {
		page = PagePlans
	}

	request := feedbackRequest{}
	if err := json.Unmarshal(ctx.PostBody(), &request); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "bad_request")
		return
	}
	text := strings.TrimSpace(request.Feedback)
	if text == "" {
		writeError(ctx, fasthttp.StatusBadRequest, "empty_feedback")
		return
	}

	turnCtx, cancel := lib.SetupUserAndContext(uid, page)
	defer cancel()
	err := mongo.MongoDBClient.SaveFeedback(turnCtx, models.MongoFeedback{
		UserID:     uid,
		Feedback:   text,
		AppVersion: config.APP_VERSION,
		Page:       page,
		Ts:         time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		log.Errorf("feedbackHandler: save failed for %s: %v", uid, err)
		writeError(ctx, fasthttp.StatusServiceUnavailable, "store_unavailable")
		return
	}
	config.CONFIG.DataDogClient.Incr("feedback", []string{"page:" + page}, 1)
	sysbot.SystemBOT.Alertf("💬 feedback from %s: %s", uid, util.TruncateString(text, 200))
	writeJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "ok"})
}

type grantRequest struct {
	Password string `json:"password"`
	Plan     string `json:"plan"`
}

// grantHandler applies the operator plan upgrade. Attempts are rate limited
// per user before any key comparison happens.
func (s *Server) grantHandler(ctx *fasthttp.RequestCtx) {
	uid := string(ctx.QueryArgs().Peek("uid"))
	if uid == "" {
		writeError(ctx, fasthttp.StatusBadRequest, "missing_uid")
		return
	}

	request := grantRequest{}
	if err := json.Unmarshal(ctx.PostBody(), &request); err != nil {
		writeError(ctx, fasthttp.StatusBadRequest, "bad_request")
		return
	}
	planName := models.PlanName(request.Plan)
	if planName == models.PlanNone {
		planName = models.PlanBasic
	}
	plan, ok := models.Plans[planName]
	if !ok {
		writeError(ctx, fasthttp.StatusBadRequest, "unknown_plan")
		return
	}

	switch err := admin.CheckKey(uid, request.Password); {
	case errors.Is(err, admin.ErrTooManyAttempts):
		writeError(ctx, fasthttp.StatusTooManyRequests, "too_many_attempts")
		return
	case err != nil:
		writeError(ctx, fasthttp.StatusUnauthorized, "unauthorized")
		return
	}

	turnCtx, cancel := lib.SetupUserAndContext(uid, PagePlans)
	defer cancel()
	if _, err := lib.LoadEntitlement(turnCtx, true); err != nil {
		writeError(ctx, fasthttp.StatusServiceUnavailable, "store_unavailable")
		return
	}
	user, err := s.Controller.Grant(turnCtx, plan)
	if err != nil {
		writeError(ctx, fasthttp.StatusServiceUnavailable, "store_unavailable")
		return
	}

	sysbot.SystemBOT.Alertf("💎 plan %s granted to %s", plan.Name, uid)
	writeJSON(ctx, fasthttp.StatusOK, statusFor(user))
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Errorf("writeJSON: marshal: %v", err)
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json; charset=utf-8")
	ctx.SetBody(body)
}

func writeError(ctx *fasthttp.RequestCtx, status int, code string) {
	writeJSON(ctx, status, map[string]string{"error": code})
}
