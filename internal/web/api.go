package web

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wesheets/roundtable/internal/consensus"
	"github.com/wesheets/roundtable/internal/router"
	"github.com/wesheets/roundtable/internal/version"
	"github.com/wesheets/roundtable/pkg/models"
)

// respondError maps sentinel errors onto status codes. Anything we do not
// recognize is a 500.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrUnknownAgent):
		status = http.StatusBadRequest
	case errors.Is(err, models.ErrPolicyDenied):
		status = http.StatusForbidden
	case errors.Is(err, models.ErrDeliveryFailed):
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"version": version.Get(),
		"uptime":  time.Since(s.startedAt).Round(time.Second).String(),
	})
}

type submitTaskRequest struct {
	Request     string             `json:"request"`
	Constraints models.Constraints `json:"constraints"`
	// Run starts execution immediately after planning.
	Run bool `json:"run,omitempty"`
}

func (s *Server) handleSubmitTask(c *gin.Context) {
	var req submitTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	task, err := s.orc.Submit(c.Request.Context(), req.Request, req.Constraints)
	if err != nil {
		respondError(c, err)
		return
	}
	if req.Run {
		go s.runTask(task.ID)
	}
	c.JSON(http.StatusCreated, task)
}

func (s *Server) handleListTasks(c *gin.Context) {
	tasks, err := s.orc.Tasks(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

func (s *Server) handleGetTask(c *gin.Context) {
	task, err := s.orc.Task(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (s *Server) handleTaskProgress(c *gin.Context) {
	progress, err := s.orc.Progress(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, progress)
}

func (s *Server) handleTaskMessages(c *gin.Context) {
	msgs, err := s.orc.Store().MessagesByTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// handleRunTask kicks off execution in the background and returns 202.
// Progress is observable via the events websocket and the progress endpoint.
func (s *Server) handleRunTask(c *gin.Context) {
	taskID := c.Param("id")
	if _, err := s.orc.Load(c.Request.Context(), taskID); err != nil {
		respondError(c, err)
		return
	}
	go s.runTask(taskID)
	c.JSON(http.StatusAccepted, gin.H{"taskId": taskID, "status": "running"})
}

func (s *Server) runTask(taskID string) {
	if err := s.orc.Run(context.Background(), taskID); err != nil {
		log.Printf("[web] run task %s: %v", taskID, err)
	}
}

type cancelTaskRequest struct {
	AgentID string `json:"agentId"`
	Reason  string `json:"reason"`
}

func (s *Server) handleCancelTask(c *gin.Context) {
	var req cancelTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if err := s.orc.CancelTask(c.Request.Context(), c.Param("id"), req.AgentID, req.Reason); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"taskId": c.Param("id"), "status": "cancelled"})
}

type sendMessageRequest struct {
	FromAgent string                  `json:"fromAgent"`
	ChannelID string                  `json:"channelId"`
	To        []models.Recipient      `json:"to"`
	Content   models.MessageContent   `json:"content"`
	Context   models.MessageContext   `json:"context"`
	Semantics models.MessageSemantics `json:"semantics"`
}

func (s *Server) handleSendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	send := router.SendRequest{
		FromAgent: req.FromAgent,
		ChannelID: req.ChannelID,
		To:        req.To,
		Content:   req.Content,
		Context:   req.Context,
		Semantics: req.Semantics,
	}
	// Messages tied to a task get its team so @all and @lead mentions
	// expand against the real roster.
	if req.Context.TaskID != "" {
		if task, err := s.orc.Task(c.Request.Context(), req.Context.TaskID); err == nil {
			send.Team = task.Team
		}
	}
	msg, err := s.orc.SendMessage(c.Request.Context(), send)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, msg)
}

func (s *Server) handleGetMessage(c *gin.Context) {
	msg, err := s.orc.Store().Message(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (s *Server) handleListResponses(c *gin.Context) {
	resps, err := s.orc.Store().ResponsesByMessage(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resps)
}

func (s *Server) handleRecordResponse(c *gin.Context) {
	var resp models.AgentResponse
	if err := c.ShouldBindJSON(&resp); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	resp.OriginalMessageID = c.Param("id")
	if err := s.orc.RecordResponse(c.Request.Context(), &resp); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

type markReadRequest struct {
	AgentID string `json:"agentId"`
}

func (s *Server) handleMarkRead(c *gin.Context) {
	var req markReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	if err := s.orc.MarkRead(c.Request.Context(), c.Param("id"), req.AgentID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messageId": c.Param("id"), "readBy": req.AgentID})
}

func (s *Server) handleChannelMessages(c *gin.Context) {
	msgs, err := s.orc.Store().MessagesByChannel(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// handleMailbox drains an agent's pending deliveries. Messages are returned
// once; a second call only sees what arrived in between.
func (s *Server) handleMailbox(c *gin.Context) {
	agentID := c.Param("id")
	if !s.orc.Registry().Known(agentID) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown agent: " + agentID})
		return
	}
	mailbox := s.orc.Mailbox(agentID)
	msgs := make([]*models.AgentMessage, 0)
	for {
		select {
		case msg := <-mailbox:
			msgs = append(msgs, msg)
		default:
			c.JSON(http.StatusOK, msgs)
			return
		}
	}
}

func (s *Server) handleListThreads(c *gin.Context) {
	c.JSON(http.StatusOK, s.orc.Threads())
}

func (s *Server) handleGetThread(c *gin.Context) {
	thread, err := s.orc.Thread(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, thread)
}

func (s *Server) handleThreadMessages(c *gin.Context) {
	msgs, err := s.orc.Store().MessagesByThread(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func (s *Server) handleArchiveThread(c *gin.Context) {
	if err := s.orc.ArchiveThread(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"threadId": c.Param("id"), "archived": true})
}

type openDecisionRequest struct {
	FromAgent       string   `json:"fromAgent"`
	Question        string   `json:"question"`
	Options         []string `json:"options"`
	Participants    []string `json:"participants"`
	Threshold       float64  `json:"threshold"`
	DeadlineMinutes int      `json:"deadlineMinutes"`
	ChannelID       string   `json:"channelId"`
	ThreadID        string   `json:"threadId"`
	TaskID          string   `json:"taskId"`
}

func (s *Server) handleOpenDecision(c *gin.Context) {
	var req openDecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	decision, err := s.orc.OpenDecision(c.Request.Context(), consensus.OpenRequest{
		FromAgent:    req.FromAgent,
		Question:     req.Question,
		Options:      req.Options,
		Participants: req.Participants,
		Threshold:    req.Threshold,
		Deadline:     time.Duration(req.DeadlineMinutes) * time.Minute,
		ChannelID:    req.ChannelID,
		ThreadID:     req.ThreadID,
		TaskID:       req.TaskID,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, decision)
}

func (s *Server) handleListDecisions(c *gin.Context) {
	c.JSON(http.StatusOK, s.orc.Decisions())
}

func (s *Server) handleGetDecision(c *gin.Context) {
	decision, err := s.orc.Decision(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, decision)
}

type castVoteRequest struct {
	AgentID string `json:"agentId"`
	Option  string `json:"option"`
}

func (s *Server) handleCastVote(c *gin.Context) {
	var req castVoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}
	decision, err := s.orc.CastVote(c.Request.Context(), c.Param("id"), req.AgentID, req.Option)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, decision)
}

func (s *Server) handleListAgents(c *gin.Context) {
	c.JSON(http.StatusOK, s.orc.Registry().Profiles())
}
