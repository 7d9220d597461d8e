package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"voicecall-platform/internal/auth"
	"voicecall-platform/internal/calllog"
	"voicecall-platform/internal/orchestrator"
	"voicecall-platform/internal/session"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth     *auth.Manager
	Registry *orchestrator.Registry
	CallLog  *calllog.Service
}

// --- Auth ---

type loginRequest struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID, req.DisplayName)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Calls ---

type startCallRequest struct {
	CalleeID   string `json:"callee_id"`
	CalleeName string `json:"callee_name"`
}

func (h Handlers) StartCall(c *gin.Context) {
	o, ok := h.device(c)
	if !ok {
		return
	}
	var req startCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	sess, err := o.StartCall(c.Request.Context(), session.Identity{ID: req.CalleeID, Name: req.CalleeName})
	if err != nil {
		abortCallError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

func (h Handlers) AcceptCall(c *gin.Context) {
	o, ok := h.device(c)
	if !ok {
		return
	}
	if err := o.AcceptActiveCall(c.Request.Context()); err != nil {
		abortCallError(c, err)
		return
	}
	h.respondActive(c, o)
}

func (h Handlers) DeclineCall(c *gin.Context) {
	o, ok := h.device(c)
	if !ok {
		return
	}
	if err := o.DeclineActiveCall(c.Request.Context()); err != nil {
		abortCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "declined"})
}

func (h Handlers) EndCall(c *gin.Context) {
	o, ok := h.device(c)
	if !ok {
		return
	}
	if err := o.EndActiveCall(c.Request.Context()); err != nil {
		abortCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ended"})
}

func (h Handlers) JoinMedia(c *gin.Context) {
	o, ok := h.device(c)
	if !ok {
		return
	}
	if err := o.JoinMediaChannel(c.Request.Context()); err != nil {
		abortCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "joined"})
}

func (h Handlers) ToggleMute(c *gin.Context) {
	o, ok := h.device(c)
	if !ok {
		return
	}
	muted, err := o.ToggleMute(c.Request.Context())
	if err != nil {
		abortCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"muted": muted})
}

func (h Handlers) ToggleSpeaker(c *gin.Context) {
	o, ok := h.device(c)
	if !ok {
		return
	}
	on, err := o.ToggleSpeaker(c.Request.Context())
	if err != nil {
		abortCallError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"speaker_on": on})
}

func (h Handlers) ActiveCall(c *gin.Context) {
	o, ok := h.device(c)
	if !ok {
		return
	}
	h.respondActive(c, o)
}

// --- Call history ---

func (h Handlers) CallHistory(c *gin.Context) {
	if h.CallLog == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call log not configured"})
		return
	}
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	calls, err := h.CallLog.History(c.Request.Context(), userID, limit)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "history lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": calls})
}

func (h Handlers) CallSummary(c *gin.Context) {
	if h.CallLog == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call log not configured"})
		return
	}
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return
	}
	sum, err := h.CallLog.Summarize(c.Request.Context(), userID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "summary lookup failed"})
		return
	}
	c.JSON(http.StatusOK, sum)
}

// --- helpers ---

// device resolves the authenticated user's orchestrator.
func (h Handlers) device(c *gin.Context) (*orchestrator.Orchestrator, bool) {
	if h.Registry == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "orchestrator not configured"})
		return nil, false
	}
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user_id required"})
		return nil, false
	}
	o, err := h.Registry.ForUser(session.Identity{ID: userID, Name: auth.DisplayName(c.Request.Context())})
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "orchestrator init failed"})
		return nil, false
	}
	return o, true
}

func (h Handlers) respondActive(c *gin.Context, o *orchestrator.Orchestrator) {
	sess, ok, err := o.ActiveCall(c.Request.Context())
	if err != nil {
		abortCallError(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no active call"})
		return
	}
	c.JSON(http.StatusOK, sess)
}

// abortCallError maps orchestrator errors onto HTTP statuses. The message is
// the sentinel text only; wrapped internals stay in the logs.
func abortCallError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrInvalidTarget):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": orchestrator.ErrInvalidTarget.Error()})
	case errors.Is(err, orchestrator.ErrAlreadyInCall):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": orchestrator.ErrAlreadyInCall.Error()})
	case errors.Is(err, orchestrator.ErrNoActiveCall):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": orchestrator.ErrNoActiveCall.Error()})
	case errors.Is(err, orchestrator.ErrMissingSessionCredentials):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": orchestrator.ErrMissingSessionCredentials.Error()})
	case errors.Is(err, orchestrator.ErrTokenFetchFailed):
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": orchestrator.ErrTokenFetchFailed.Error()})
	case errors.Is(err, orchestrator.ErrStoreWriteFailed):
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": orchestrator.ErrStoreWriteFailed.Error()})
	case errors.Is(err, orchestrator.ErrClosed):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": orchestrator.ErrClosed.Error()})
	default:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call operation failed"})
	}
}
