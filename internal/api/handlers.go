// Package api is the thin HTTP surface (§3.4) in front of the pipeline:
// meeting lifecycle endpoints, correction answers, retranscribe requests,
// SSE subscription, health/stats. Grounded on the teacher's
// internal/api/handlers.go Handler-struct-plus-method-set shape, trimmed to
// the operations SPEC_FULL.md's API section actually names — chat,
// summarization, notes, speaker-mapping and CSV-batch handlers have no
// meeting-domain equivalent and are dropped (see DESIGN.md).
package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"meetcorrect/internal/auth"
	"meetcorrect/internal/config"
	"meetcorrect/internal/correctionsvc"
	"meetcorrect/internal/heartbeat"
	"meetcorrect/internal/models"
	"meetcorrect/internal/notify"
	"meetcorrect/internal/repository"
	"meetcorrect/internal/store"
	"meetcorrect/pkg/logger"
)

// Handler contains all the API handlers.
type Handler struct {
	config      *config.Config
	authService *auth.Service
	store       *store.Store
	correction  *correctionsvc.Service
	emitter     *notify.Emitter
	heartbeats  *heartbeat.Tracker
	users       repository.UserRepository
	apiKeys     repository.APIKeyRepository
}

// NewHandler builds a Handler.
func NewHandler(cfg *config.Config, authService *auth.Service, st *store.Store, correctionSvc *correctionsvc.Service, emitter *notify.Emitter, heartbeats *heartbeat.Tracker, users repository.UserRepository, apiKeys repository.APIKeyRepository) *Handler {
	return &Handler{config: cfg, authService: authService, store: st, correction: correctionSvc, emitter: emitter, heartbeats: heartbeats, users: users, apiKeys: apiKeys}
}

// HealthCheck reports liveness.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// LoginRequest is the operator login payload.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse carries the issued access token.
type LoginResponse struct {
	Token string `json:"token"`
	User  struct {
		ID       uint   `json:"id"`
		Username string `json:"username"`
	} `json:"user"`
}

// RegisterRequest is the single-admin bootstrap payload.
type RegisterRequest struct {
	Username        string `json:"username" binding:"required"`
	Password        string `json:"password" binding:"required,min=8"`
	ConfirmPassword string `json:"confirmPassword" binding:"required"`
}

// RegistrationStatusResponse reports whether bootstrap registration is open.
type RegistrationStatusResponse struct {
	RegistrationEnabled bool `json:"registrationEnabled"`
}

func (h *Handler) GetRegistrationStatus(c *gin.Context) {
	_, count, err := h.users.List(c.Request.Context(), 0, 1)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check registration status"})
		return
	}
	c.JSON(http.StatusOK, RegistrationStatusResponse{RegistrationEnabled: count == 0})
}

func (h *Handler) Register(c *gin.Context) {
	_, count, err := h.users.List(c.Request.Context(), 0, 1)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check existing users"})
		return
	}
	if count > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "Registration is not allowed, an admin user already exists"})
		return
	}

	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	if req.Password != req.ConfirmPassword {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Passwords do not match"})
		return
	}

	hashed, err := auth.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to secure password"})
		return
	}

	user := models.User{Username: req.Username, Password: hashed}
	if err := h.users.Create(c.Request.Context(), &user); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Username already exists"})
		return
	}

	token, err := h.authService.GenerateToken(&user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate login token"})
		return
	}

	resp := LoginResponse{Token: token}
	resp.User.ID = user.ID
	resp.User.Username = user.Username
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	user, err := h.users.FindByUsername(c.Request.Context(), req.Username)
	if err != nil {
		logger.AuthEvent("login", req.Username, c.ClientIP(), false, "user_not_found")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	if err := auth.CheckPassword(user.Password, req.Password); err != nil {
		logger.AuthEvent("login", req.Username, c.ClientIP(), false, "invalid_password")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	token, err := h.authService.GenerateToken(user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     "meetcorrect_access_token",
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(24 * time.Hour),
		HttpOnly: true,
		Secure:   h.config.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	resp := LoginResponse{Token: token}
	resp.User.ID = user.ID
	resp.User.Username = user.Username
	logger.AuthEvent("login", req.Username, c.ClientIP(), true)
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) Logout(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     "meetcorrect_access_token",
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   h.config.SecureCookies,
	})
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

// CreateMeetingRequest is the payload for starting a new meeting record,
// per spec.md §4.1's "create(meeting) -> UPLOADED" operation, fed by
// whatever uploaded the audio (a CLI, a device agent, a dial-in bridge).
type CreateMeetingRequest struct {
	Title          string                `json:"title" binding:"required"`
	ClientID       string                `json:"clientId" binding:"required"`
	ProjectID      *string               `json:"projectId,omitempty"`
	MeetingType    models.MeetingType    `json:"meetingType"`
	AudioInputType models.AudioInputType `json:"audioInputType"`
	AudioFilePath  string                `json:"audioFilePath" binding:"required"`
}

func (h *Handler) CreateMeeting(c *gin.Context) {
	var req CreateMeetingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	meeting := &models.Meeting{
		ID:             uuid.New().String(),
		Title:          req.Title,
		ClientID:       req.ClientID,
		ProjectID:      req.ProjectID,
		MeetingType:    req.MeetingType,
		AudioInputType: req.AudioInputType,
		AudioFilePath:  req.AudioFilePath,
		State:          models.StateUploaded,
	}
	if meeting.MeetingType == "" {
		meeting.MeetingType = models.MeetingTypeGeneral
	}
	if meeting.AudioInputType == "" {
		meeting.AudioInputType = models.AudioInputUpload
	}

	if err := h.store.Create(c.Request.Context(), meeting); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create meeting"})
		return
	}
	h.emitter.MeetingStateChanged(meeting.ID, "", string(models.StateUploaded))
	c.JSON(http.StatusCreated, meeting)
}

func (h *Handler) GetMeeting(c *gin.Context) {
	id := c.Param("id")
	meeting, err := h.store.FindByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Meeting not found"})
		return
	}
	c.JSON(http.StatusOK, meeting)
}

func (h *Handler) ListMeetings(c *gin.Context) {
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	meetings, total, err := h.store.ListPage(c.Request.Context(), offset, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list meetings"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"meetings": meetings, "total": total, "offset": offset, "limit": limit})
}

// AnswerRequest mirrors one entry of correctionsvc.Answer, decoded from
// the wire.
type AnswerRequest struct {
	QuestionID   string `json:"questionId"`
	SegmentIndex int    `json:"segmentIndex"`
	Original     string `json:"original"`
	Corrected    string `json:"corrected"`
	Category     string `json:"category"`
}

// AnswerQuestionsRequest is spec.md §4.6's answerQuestions payload.
type AnswerQuestionsRequest struct {
	Answers []AnswerRequest `json:"answers" binding:"required"`
}

func (h *Handler) AnswerQuestions(c *gin.Context) {
	id := c.Param("id")
	var req AnswerQuestionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	answers := make([]correctionsvc.Answer, len(req.Answers))
	for i, a := range req.Answers {
		answers[i] = correctionsvc.Answer{
			QuestionID:   a.QuestionID,
			SegmentIndex: a.SegmentIndex,
			Original:     a.Original,
			Corrected:    a.Corrected,
			Category:     a.Category,
		}
	}

	if err := h.correction.AnswerQuestions(c.Request.Context(), id, answers); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Answers submitted"})
}

// RetranscribeRequest is the user-initiated re-transcription payload
// (spec.md §4.6's retranscribeSelectedSegments).
type RetranscribeRequest struct {
	SegmentIndices []int `json:"segmentIndices" binding:"required"`
}

func (h *Handler) RetranscribeSegments(c *gin.Context) {
	id := c.Param("id")
	var req RetranscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	if err := h.correction.RetranscribeSelectedSegments(c.Request.Context(), id, req.SegmentIndices); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Retranscription started"})
}

// Events relays SSE subscriptions to the notification emitter (C4).
func (h *Handler) Events(c *gin.Context) {
	h.emitter.ServeHTTP(c.Writer, c.Request)
}

// GetPipelineStats reports how many meetings sit in each lifecycle state,
// the operator-facing analogue of the teacher's GetQueueStats.
func (h *Handler) GetPipelineStats(c *gin.Context) {
	counts, err := h.store.CountByState(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute stats"})
		return
	}
	c.JSON(http.StatusOK, counts)
}

// Heartbeat records a client-side liveness ping for a meeting currently in
// a transient state, per spec.md §4.1's heartbeat operation (C1).
func (h *Handler) Heartbeat(c *gin.Context) {
	id := c.Param("id")
	h.heartbeats.Touch(id)
	c.JSON(http.StatusOK, gin.H{"message": "ok"})
}

// ListStuckMeetings reports every meeting currently parked in a transient
// state, for the meetingctl stuck-scan operator command to review before
// deciding whether to requeue one by hand.
func (h *Handler) ListStuckMeetings(c *gin.Context) {
	ctx := c.Request.Context()

	transcribing, err := h.store.StreamByState(ctx, models.StateTranscribing)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list transcribing meetings"})
		return
	}
	correcting, err := h.store.StreamByState(ctx, models.StateCorrecting)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list correcting meetings"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transcribing": transcribing,
		"correcting":   correcting,
	})
}

// RequeueMeeting is the manual counterpart to the stuck detector (C8): it
// reverts a meeting parked in a transient state back to the stable state
// that precedes it, the same edge the automatic sweep would take, but on an
// operator's schedule instead of the sweep interval's.
func (h *Handler) RequeueMeeting(c *gin.Context) {
	id := c.Param("id")
	meeting, err := h.store.FindByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Meeting not found"})
		return
	}

	var from, to models.MeetingState
	switch meeting.State {
	case models.StateTranscribing:
		from, to = models.StateTranscribing, models.StateUploaded
	case models.StateCorrecting:
		from, to = models.StateCorrecting, models.StateTranscribed
	default:
		c.JSON(http.StatusConflict, gin.H{"error": "Meeting is not in a transient state: " + string(meeting.State)})
		return
	}

	if err := h.store.CompareAndSwapState(c.Request.Context(), id, from, to, time.Now()); err != nil {
		if errors.Is(err, store.ErrCASConflict) {
			c.JSON(http.StatusConflict, gin.H{"error": "Meeting state changed concurrently, retry"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.emitter.MeetingStateChanged(id, string(from), string(to))
	c.JSON(http.StatusOK, gin.H{"message": "Requeued", "from": from, "to": to})
}
