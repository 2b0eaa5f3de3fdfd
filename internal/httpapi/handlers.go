package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"call-relay/internal/audit"
	"call-relay/internal/auth"
	"call-relay/internal/calls"
	"call-relay/internal/rbac"
	"call-relay/internal/reporting"
	"call-relay/internal/signaling"
	"call-relay/internal/sweeper"
	"call-relay/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Calls     *calls.Service
	Directory *calls.Directory
	Signaling *signaling.Service
	Stats     *reporting.Service
	Sweeper   *sweeper.Sweeper
	Audit     *audit.Service
}

// Register mounts the call routes on an authenticated /v1 group.
func (h Handlers) Register(v1 *gin.RouterGroup) {
	cg := v1.Group("/calls")
	{
		cg.POST("", h.CreateCall)
		cg.GET("/active", h.ListActive)
		cg.GET("/pending", h.ListPending)
		cg.GET("/history", h.ListHistory)
		cg.GET("/stats", h.GetStats)
		cg.GET("/:call_id", h.GetCall)
		cg.PUT("/:call_id/status", h.UpdateStatus)
		cg.PUT("/:call_id/signaling", h.AppendSignal)
		cg.GET("/:call_id/signaling", h.ReadSignals)
	}

	admin := v1.Group("/admin")
	admin.Use(rbac.RequireAnyRole(rbac.RoleService))
	{
		admin.POST("/calls/expire", h.AdminExpire)
		admin.POST("/calls/purge", h.AdminPurge)
		admin.GET("/calls/:call_id/audit", h.AdminCallAudit)
	}
}

// statusFor maps the error taxonomy to HTTP.
func statusFor(code calls.Code) int {
	switch code {
	case calls.CodeInvalidInput:
		return http.StatusBadRequest
	case calls.CodeAccessDenied:
		return http.StatusForbidden
	case calls.CodeNotFound:
		return http.StatusNotFound
	case calls.CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	code := calls.CodeOf(err)
	status := statusFor(code)
	log := logger.FromGin(c)

	var tagged *calls.Error
	if status >= http.StatusInternalServerError && (!errors.As(err, &tagged) || tagged.Err != nil) {
		log.Error("request failed", "code", code, "err", err)
	} else {
		log.Debug("request rejected", "code", code, "err", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": calls.MessageOf(err), "code": code})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": msg, "code": calls.CodeInvalidInput})
}

// requester returns the authenticated user or aborts with 401.
func requester(c *gin.Context) (string, bool) {
	uid, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return "", false
	}
	return uid, true
}

// --- Lifecycle ---

type createCallRequest struct {
	RecipientID string `json:"recipient_id"`
	CallType    string `json:"call_type"`
}

func (h Handlers) CreateCall(c *gin.Context) {
	uid, ok := requester(c)
	if !ok {
		return
	}
	var req createCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	created, err := h.Calls.Create(c.Request.Context(), uid, req.RecipientID, calls.CallType(req.CallType))
	if err != nil {
		writeError(c, err)
		return
	}
	logger.FromGin(c).Info("call created", "call_id", created.CallID, "recipient_id", created.RecipientID, "call_type", created.CallType)
	c.JSON(http.StatusCreated, h.Directory.ViewOf(c.Request.Context(), uid, created))
}

type updateStatusRequest struct {
	Status    string `json:"status"`
	EndReason string `json:"end_reason,omitempty"`
}

func (h Handlers) UpdateStatus(c *gin.Context) {
	uid, ok := requester(c)
	if !ok {
		return
	}
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	updated, err := h.Calls.UpdateStatusFor(c.Request.Context(), c.Param("call_id"), uid, calls.Status(req.Status), req.EndReason)
	if err != nil {
		writeError(c, err)
		return
	}
	logger.FromGin(c).Info("call status changed", "call_id", updated.CallID, "status", updated.Status)
	c.JSON(http.StatusOK, h.Directory.ViewOf(c.Request.Context(), uid, updated))
}

type callDetail struct {
	calls.View
	Signaling []signaling.Message `json:"signaling"`
}

func (h Handlers) GetCall(c *gin.Context) {
	uid, ok := requester(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	call, err := h.Calls.GetFor(ctx, c.Param("call_id"), uid)
	if err != nil {
		writeError(c, err)
		return
	}
	msgs, err := h.Signaling.Read(ctx, call.CallID, uid, 0)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, callDetail{View: h.Directory.ViewOf(ctx, uid, call), Signaling: msgs})
}

// --- Signaling ---

type signalingData struct {
	Type             string  `json:"type"`
	SDP              string  `json:"sdp,omitempty"`
	Candidate        string  `json:"candidate,omitempty"`
	SDPMid           *string `json:"sdpMid,omitempty"`
	SDPMLineIndex    *uint16 `json:"sdpMLineIndex,omitempty"`
	UsernameFragment *string `json:"usernameFragment,omitempty"`
}

type appendSignalRequest struct {
	SignalingData *signalingData `json:"signaling_data"`
}

func (h Handlers) AppendSignal(c *gin.Context) {
	uid, ok := requester(c)
	if !ok {
		return
	}
	var req appendSignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid json")
		return
	}
	if req.SignalingData == nil {
		badRequest(c, "signaling_data required")
		return
	}
	d := req.SignalingData
	msg, err := h.Signaling.Append(c.Request.Context(), c.Param("call_id"), uid, signaling.Message{
		Type:             signaling.Type(d.Type),
		SDP:              d.SDP,
		Candidate:        d.Candidate,
		SDPMid:           d.SDPMid,
		SDPMLineIndex:    d.SDPMLineIndex,
		UsernameFragment: d.UsernameFragment,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "seq": msg.Seq})
}

func (h Handlers) ReadSignals(c *gin.Context) {
	uid, ok := requester(c)
	if !ok {
		return
	}
	since, ok := queryInt64(c, "since", 0)
	if !ok {
		return
	}
	msgs, err := h.Signaling.Read(c.Request.Context(), c.Param("call_id"), uid, since)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs, "last_seq": signaling.LastSeq(msgs, since)})
}

// --- Directory ---

func (h Handlers) ListActive(c *gin.Context) {
	uid, ok := requester(c)
	if !ok {
		return
	}
	views, err := h.Directory.Active(c.Request.Context(), uid)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": views})
}

func (h Handlers) ListPending(c *gin.Context) {
	uid, ok := requester(c)
	if !ok {
		return
	}
	views, err := h.Directory.Pending(c.Request.Context(), uid)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": views})
}

func (h Handlers) ListHistory(c *gin.Context) {
	uid, ok := requester(c)
	if !ok {
		return
	}
	limit, ok := queryInt64(c, "limit", calls.DefaultHistoryLimit)
	if !ok {
		return
	}
	offset, ok := queryInt64(c, "offset", 0)
	if !ok {
		return
	}
	views, err := h.Directory.History(c.Request.Context(), uid, calls.HistoryQuery{
		Limit:    int(limit),
		Offset:   int(offset),
		CallType: calls.CallType(c.Query("type")),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": views})
}

func (h Handlers) GetStats(c *gin.Context) {
	uid, ok := requester(c)
	if !ok {
		return
	}
	days, ok := queryInt64(c, "days", reporting.DefaultStatsDays)
	if !ok {
		return
	}
	stats, err := h.Stats.Stats(c.Request.Context(), uid, int(days))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// --- Admin ---

func (h Handlers) AdminExpire(c *gin.Context) {
	h.runSweep(c, sweeper.KindExpire)
}

func (h Handlers) AdminPurge(c *gin.Context) {
	h.runSweep(c, sweeper.KindPurge)
}

func (h Handlers) runSweep(c *gin.Context, kind string) {
	if h.Sweeper == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "sweeper not configured"})
		return
	}
	var (
		n   int64
		err error
	)
	switch kind {
	case sweeper.KindExpire:
		n, err = h.Sweeper.Expire(c.Request.Context())
	case sweeper.KindPurge:
		n, err = h.Sweeper.Purge(c.Request.Context())
	}
	if err != nil {
		writeError(c, err)
		return
	}
	actor, _ := auth.UserID(c.Request.Context())
	logger.FromGin(c).Info("manual sweep", "kind", kind, "affected", n, "actor", actor)
	c.JSON(http.StatusOK, gin.H{"kind": kind, "affected": n})
}

// AdminCallAudit returns the lifecycle events recorded for one call, oldest first.
func (h Handlers) AdminCallAudit(c *gin.Context) {
	if h.Audit == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "audit not configured"})
		return
	}
	ctx := c.Request.Context()
	call, err := h.Calls.Get(ctx, c.Param("call_id"))
	if err != nil {
		writeError(c, err)
		return
	}
	events, err := h.Audit.ListByCall(ctx, call.CallID)
	if err != nil {
		writeError(c, calls.StoreErr("list audit events", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"call_id": call.CallID, "events": events})
}

func queryInt64(c *gin.Context, key string, def int64) (int64, bool) {
	raw := c.Query(key)
	if raw == "" {
		return def, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		badRequest(c, key+" must be an integer")
		return 0, false
	}
	return v, true
}
