package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/inkwell-notes/inkwell/internal/events"
	"github.com/inkwell-notes/inkwell/internal/fault"
	"github.com/inkwell-notes/inkwell/internal/notes"
	"github.com/inkwell-notes/inkwell/internal/users"
	"go.uber.org/zap"
)

const userIDContextKey = "inkwell_user_id"

var (
	errMissingUserService   = errors.New("user service dependency required")
	errMissingTokenManager  = errors.New("token manager dependency required")
	errMissingNoteStores    = errors.New("note store factory dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// TokenManager issues and validates bearer tokens for authenticated users.
type TokenManager interface {
	IssueToken(userID string) (string, int64, error)
	ValidateToken(token string) (string, error)
}

// NoteStoreFactory builds a note store bound to the given owner. The
// router constructs one per authenticated request so every note
// operation is owner-scoped by construction.
type NoteStoreFactory func(ownerID string) (*notes.Store, error)

// Dependencies wires the HTTP layer to the stores.
type Dependencies struct {
	UserService *users.Service
	Tokens      TokenManager
	NoteStores  NoteStoreFactory
	Events      *events.Dispatcher
	Logger      *zap.Logger
}

// NewHTTPHandler builds the gin router for the API surface.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.UserService == nil {
		return nil, errMissingUserService
	}
	if deps.Tokens == nil {
		return nil, errMissingTokenManager
	}
	if deps.NoteStores == nil {
		return nil, errMissingNoteStores
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		userService: deps.UserService,
		tokens:      deps.Tokens,
		noteStores:  deps.NoteStores,
		events:      deps.Events,
		logger:      logger,
	}

	router.POST("/auth/register", handler.handleRegister)
	router.POST("/auth/login", handler.handleLogin)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/auth/logout", handler.handleLogout)
	protected.GET("/auth/session", handler.handleSession)
	protected.GET("/notes", handler.handleListNotes)
	protected.POST("/notes", handler.handleCreateNote)
	protected.PUT("/notes/:id", handler.handleUpdateNote)
	protected.DELETE("/notes/:id", handler.handleDeleteNote)
	protected.GET("/events", handler.handleEventStream)

	return router, nil
}

type httpHandler struct {
	userService *users.Service
	tokens      TokenManager
	noteStores  NoteStoreFactory
	events      *events.Dispatcher
	logger      *zap.Logger
}

type credentialsPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type sessionResponsePayload struct {
	AccessToken string      `json:"access_token"`
	ExpiresIn   int64       `json:"expires_in"`
	TokenType   string      `json:"token_type"`
	User        userPayload `json:"user"`
}

type userPayload struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type notePayload struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type noteRequestPayload struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	var request credentialsPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	user, err := h.userService.Register(c.Request.Context(), request.Username, request.Password)
	if err != nil {
		switch {
		case errors.Is(err, users.ErrUsernameTaken):
			c.JSON(http.StatusConflict, gin.H{"error": "username already exists"})
		case errors.Is(err, users.ErrBlankCredentials):
			c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		default:
			h.logger.Error("registration failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "registration_failed"})
		}
		return
	}

	h.respondWithSession(c, user)
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request credentialsPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	user, err := h.userService.Login(c.Request.Context(), request.Username, request.Password)
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
			return
		}
		h.logger.Error("login failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login_failed"})
		return
	}

	h.respondWithSession(c, user)
}

func (h *httpHandler) respondWithSession(c *gin.Context, user users.User) {
	token, expiresIn, err := h.tokens.IssueToken(user.ID)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	h.publishSessionChange(user.ID)
	c.JSON(http.StatusOK, sessionResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
		User:        userPayload{ID: user.ID, Username: user.Username},
	})
}

func (h *httpHandler) handleLogout(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	h.userService.Logout(c.Request.Context())
	h.publishSessionChange(userID)
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleSession(c *gin.Context) {
	userID := c.GetString(userIDContextKey)
	user, found, err := h.userService.FindByID(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("session lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session_lookup_failed"})
		return
	}
	if !found {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, userPayload{ID: user.ID, Username: user.Username})
}

func (h *httpHandler) handleListNotes(c *gin.Context) {
	store, ok := h.boundStore(c)
	if !ok {
		return
	}

	records, err := store.List(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list notes", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		return
	}

	payload := make([]notePayload, 0, len(records))
	for _, record := range records {
		payload = append(payload, toNotePayload(record))
	}
	c.JSON(http.StatusOK, gin.H{"notes": payload})
}

func (h *httpHandler) handleCreateNote(c *gin.Context) {
	store, ok := h.boundStore(c)
	if !ok {
		return
	}

	var request noteRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	record, err := store.Create(c.Request.Context(), request.Title, request.Content)
	if err != nil {
		h.respondNoteError(c, "create", err)
		return
	}
	c.JSON(http.StatusCreated, toNotePayload(record))
}

func (h *httpHandler) handleUpdateNote(c *gin.Context) {
	store, ok := h.boundStore(c)
	if !ok {
		return
	}

	var request noteRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	record, err := store.Update(c.Request.Context(), c.Param("id"), request.Title, request.Content)
	if err != nil {
		h.respondNoteError(c, "update", err)
		return
	}
	c.JSON(http.StatusOK, toNotePayload(record))
}

func (h *httpHandler) handleDeleteNote(c *gin.Context) {
	store, ok := h.boundStore(c)
	if !ok {
		return
	}

	if err := store.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.respondNoteError(c, "delete", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) respondNoteError(c *gin.Context, operation string, err error) {
	switch {
	case errors.Is(err, notes.ErrNoteNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "note not found"})
	case errors.Is(err, notes.ErrEmptyTitle):
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
	case fault.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
	default:
		h.logger.Error("note operation failed", zap.String("operation", operation), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": operation + "_failed"})
	}
}

func (h *httpHandler) boundStore(c *gin.Context) (*notes.Store, bool) {
	userID := c.GetString(userIDContextKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return nil, false
	}
	store, err := h.noteStores(userID)
	if err != nil {
		h.logger.Error("failed to bind note store", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store_unavailable"})
		return nil, false
	}
	return store, true
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, subject)
	c.Next()
}

func (h *httpHandler) publishSessionChange(userID string) {
	if h.events == nil || userID == "" {
		return
	}
	h.events.Publish(events.Message{
		UserID:    userID,
		EventType: events.EventSessionChanged,
		Timestamp: time.Now().UTC(),
	})
}

func toNotePayload(record notes.Note) notePayload {
	return notePayload{
		ID:        record.ID,
		Title:     record.Title,
		Content:   record.Content,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
}
