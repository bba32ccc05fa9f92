// Package server is the web surface: the two server-rendered pages and the
// JSON/SSE API the pages call.
package server

import (
	"heart2heart/m/app/metering"

	fasthttpprom "github.com/carousell/fasthttp-prometheus-middleware"
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"
)

const (
	PageChat  = "chat"
	PagePlans = "plans"
)

type Server struct {
	Controller *metering.Controller

	router  *router.Router
	handler fasthttp.RequestHandler
}

func NewServer(controller *metering.Controller) *Server {
	s := &Server{Controller: controller}

	rtr := router.New()
	rtr.GET("/", s.pageHandler)
	rtr.GET("/health", healthHandler)
	rtr.GET("/api/me", s.meHandler)
	rtr.POST("/api/chat", s.chatHandler)
	rtr.POST("/api/feedback", s.feedbackHandler)
	rtr.POST("/api/admin/grant", s.grantHandler)

	p := fasthttpprom.NewPrometheus("")
	p.Use(rtr)

	s.router = rtr
	s.handler = p.Handler
	return s
}

// Handler is the root fasthttp handler, prometheus middleware included.
func (s *Server) Handler() fasthttp.RequestHandler {
	return s.handler
}

func healthHandler(ctx *fasthttp.RequestCtx) {
	ctx.SetStatusCode(fasthttp.StatusOK)
	_, _ = ctx.WriteString("💙 from heart2heart")
}
