package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"olympus/internal/agents"
	"olympus/internal/logging"
	"olympus/internal/steps"
	"olympus/internal/types"
)

// =============================================================================
// SEARCH
// =============================================================================

type searchRequest struct {
	Query          string   `json:"query" binding:"required"`
	UserID         string   `json:"user_id"`
	SessionID      string   `json:"session_id"`
	ConversationID string   `json:"conversation_id"`
	AttachedDocs   []string `json:"attached_docs"`
}

// handleSearch runs the full orchestrated pipeline. It always answers 200:
// internal failures surface as a response message, never a transport error.
func (s *Server) handleSearch(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusOK, gin.H{
			"status":           "error",
			"response_message": "I couldn't read that request. Please send a JSON body with a query field.",
			"results":          []types.SearchResult{},
			"count":            0,
		})
		return
	}
	if req.UserID == "" {
		req.UserID = "default"
	}
	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}

	zreq := agents.Request{
		UserID:         req.UserID,
		SessionID:      req.SessionID,
		ConversationID: req.ConversationID,
		Query:          req.Query,
		AttachedDocs:   req.AttachedDocs,
	}

	// A conversation brings its history and attachments into the request.
	if req.ConversationID != "" {
		if history, err := s.store.GetMessages(c.Request.Context(), req.ConversationID, 20); err == nil {
			zreq.History = history
		}
		if attached, err := s.store.GetAttachments(c.Request.Context(), req.ConversationID); err == nil {
			zreq.AttachedDocs = append(zreq.AttachedDocs, attached...)
		}
	}

	resp := s.zeus.ProcessQuery(c.Request.Context(), zreq)

	if req.ConversationID != "" {
		s.persistTurn(c, req, resp)
	}

	c.JSON(http.StatusOK, resp)
}

// persistTurn appends the user and assistant messages to the conversation.
// Persistence failures are logged, never surfaced.
func (s *Server) persistTurn(c *gin.Context, req searchRequest, resp agents.Response) {
	ctx := c.Request.Context()
	userMsg := &types.Message{
		ConversationID: req.ConversationID,
		Role:           "user",
		Content:        req.Query,
		Query:          req.Query,
	}
	if err := s.store.AppendMessage(ctx, userMsg); err != nil {
		logging.Server("failed to persist user message: %v", err)
		return
	}
	assistantMsg := &types.Message{
		ConversationID: req.ConversationID,
		Role:           "assistant",
		Content:        resp.ResponseMessage,
		Query:          req.Query,
		Results:        resp.Results,
		ThinkingSteps:  resp.Steps,
	}
	if err := s.store.AppendMessage(ctx, assistantMsg); err != nil {
		logging.Server("failed to persist assistant message: %v", err)
	}
}

// handleStream replays the session's step events as SSE until a terminal
// event, the stream timeout, or client disconnect.
func (s *Server) handleStream(c *gin.Context) {
	sessionID := c.Param("session_id")

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	err := s.bus.Stream(c.Request.Context(), sessionID, s.cfg.StreamTimeout, func(ev steps.Event) error {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
			return err
		}
		c.Writer.Flush()
		return nil
	})
	if err != nil {
		logging.Server("stream for session %s ended: %v", sessionID, err)
	}
}

// =============================================================================
// FEEDBACK
// =============================================================================

type feedbackRequest struct {
	UserID    string `json:"user_id"`
	Query     string `json:"query" binding:"required"`
	DocID     string `json:"doc_id" binding:"required"`
	IsHelpful *bool  `json:"is_helpful" binding:"required"`
}

func (s *Server) handleFeedback(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query, doc_id and is_helpful are required"})
		return
	}
	if req.UserID == "" {
		req.UserID = "default"
	}

	signal := -1
	if *req.IsHelpful {
		signal = 1
	}
	if err := s.store.UpsertFeedback(c.Request.Context(), req.UserID, req.Query, req.DocID, signal); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "recorded"})
}

// =============================================================================
// DOCUMENTS AND INDEXING
// =============================================================================

type indexRequest struct {
	Path       string   `json:"path" binding:"required"`
	Extensions []string `json:"extensions"`
}

func (s *Server) handleIndex(c *gin.Context) {
	if s.pipeline == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "indexing is not configured"})
		return
	}
	var req indexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "path is required"})
		return
	}

	results, err := s.pipeline.ProcessDirectory(c.Request.Context(), req.Path, req.Extensions, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "results": results})
		return
	}

	counts := map[string]int{}
	for _, r := range results {
		counts[string(r.Status)]++
	}
	c.JSON(http.StatusOK, gin.H{"total": len(results), "counts": counts, "results": results})
}

func (s *Server) handleListDocuments(c *gin.Context) {
	docs, err := s.store.ListDocuments(c.Request.Context(), 200)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs, "count": len(docs)})
}

func (s *Server) handleGetDocument(c *gin.Context) {
	doc, err := s.store.GetDocument(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if doc == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "document not found"})
		return
	}
	doc.Embedding = nil
	c.JSON(http.StatusOK, doc)
}

func (s *Server) handleDeleteDocument(c *gin.Context) {
	if err := s.store.DeleteDocument(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	count, err := s.store.CountDocuments(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"documents":      count,
		"vector_index":   s.store.VecEnabled(),
		"fts_index":      s.store.FTSEnabled(),
		"database_path":  s.store.Path(),
		"dropped_events": s.bus.DroppedTotal(),
	})
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

type createConversationRequest struct {
	UserID string `json:"user_id"`
	Title  string `json:"title"`
}

func (s *Server) handleCreateConversation(c *gin.Context) {
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if req.UserID == "" {
		req.UserID = "default"
	}
	if strings.TrimSpace(req.Title) == "" {
		req.Title = "New conversation"
	}
	conv, err := s.store.CreateConversation(c.Request.Context(), req.UserID, req.Title)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, conv)
}

func (s *Server) handleListConversations(c *gin.Context) {
	userID := c.DefaultQuery("user_id", "default")
	convs, err := s.store.ListConversations(c.Request.Context(), userID, 100)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs, "count": len(convs)})
}

func (s *Server) handleGetConversation(c *gin.Context) {
	conv, err := s.store.GetConversation(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if conv == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}
	c.JSON(http.StatusOK, conv)
}

func (s *Server) handleGetMessages(c *gin.Context) {
	msgs, err := s.store.GetMessages(c.Request.Context(), c.Param("id"), 200)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs, "count": len(msgs)})
}

type renameRequest struct {
	Title string `json:"title" binding:"required"`
}

func (s *Server) handleRenameConversation(c *gin.Context) {
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}
	if err := s.store.RenameConversation(c.Request.Context(), c.Param("id"), req.Title); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "renamed"})
}

type pinRequest struct {
	Pinned bool `json:"pinned"`
}

func (s *Server) handlePinConversation(c *gin.Context) {
	var req pinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if err := s.store.PinConversation(c.Request.Context(), c.Param("id"), req.Pinned); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

func (s *Server) handleDeleteConversation(c *gin.Context) {
	if err := s.store.DeleteConversation(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

type attachRequest struct {
	DocumentID string `json:"document_id" binding:"required"`
}

func (s *Server) handleAttachDocument(c *gin.Context) {
	var req attachRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "document_id is required"})
		return
	}
	if err := s.store.AttachDocument(c.Request.Context(), c.Param("id"), req.DocumentID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "attached"})
}

func (s *Server) handleDetachDocument(c *gin.Context) {
	if err := s.store.DetachDocument(c.Request.Context(), c.Param("id"), c.Param("doc_id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "detached"})
}
