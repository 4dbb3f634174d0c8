// Package web serves the HTTP API and websocket event stream for a running
// orchestrator. Handlers are thin: they decode the request, call into the
// orchestrator, and map sentinel errors onto status codes.
package web

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wesheets/roundtable/internal/orchestrator"
	"github.com/wesheets/roundtable/internal/version"
)

// Config holds the listen address for the API server.
type Config struct {
	Host string
	Port int
}

// Server exposes the orchestrator over HTTP and fans its event stream out
// to websocket subscribers.
type Server struct {
	orc       *orchestrator.Orchestrator
	hub       *Hub
	engine    *gin.Engine
	httpSrv   *http.Server
	startedAt time.Time
}

func NewServer(orc *orchestrator.Orchestrator, cfg Config) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		orc:       orc,
		hub:       NewHub(),
		engine:    engine,
		startedAt: time.Now(),
	}
	s.routes()

	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Handler returns the routing engine, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	api := s.engine.Group("/api")

	api.GET("/health", s.handleHealth)

	api.POST("/tasks", s.handleSubmitTask)
	api.GET("/tasks", s.handleListTasks)
	api.GET("/tasks/:id", s.handleGetTask)
	api.GET("/tasks/:id/progress", s.handleTaskProgress)
	api.GET("/tasks/:id/messages", s.handleTaskMessages)
	api.POST("/tasks/:id/run", s.handleRunTask)
	api.POST("/tasks/:id/cancel", s.handleCancelTask)

	api.POST("/messages", s.handleSendMessage)
	api.GET("/messages/:id", s.handleGetMessage)
	api.GET("/messages/:id/responses", s.handleListResponses)
	api.POST("/messages/:id/responses", s.handleRecordResponse)
	api.POST("/messages/:id/read", s.handleMarkRead)
	api.GET("/channels/:id/messages", s.handleChannelMessages)
	api.GET("/agents/:id/mailbox", s.handleMailbox)

	api.GET("/threads", s.handleListThreads)
	api.GET("/threads/:id", s.handleGetThread)
	api.GET("/threads/:id/messages", s.handleThreadMessages)
	api.POST("/threads/:id/archive", s.handleArchiveThread)

	api.POST("/decisions", s.handleOpenDecision)
	api.GET("/decisions", s.handleListDecisions)
	api.GET("/decisions/:id", s.handleGetDecision)
	api.POST("/decisions/:id/votes", s.handleCastVote)

	api.GET("/agents", s.handleListAgents)

	api.GET("/ws", s.handleWebSocket)

	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Start runs the server until ctx is cancelled. It blocks.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)
	go s.forwardEvents(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[web] shutdown: %v", err)
		}
	}()

	log.Printf("[web] roundtable %s listening on %s", version.Get(), s.httpSrv.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// forwardEvents pumps the orchestrator event stream into the websocket hub.
// It returns when the stream closes or ctx ends.
func (s *Server) forwardEvents(ctx context.Context) {
	events := s.orc.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.hub.Broadcast(ev)
		}
	}
}
