package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/openmatlab/rollflow/internal/auth"
	"github.com/openmatlab/rollflow/internal/flowgraph"
	"github.com/openmatlab/rollflow/internal/flows"
	"github.com/openmatlab/rollflow/internal/groups"
	"github.com/openmatlab/rollflow/internal/media"
	"github.com/openmatlab/rollflow/internal/sharing"
	"github.com/openmatlab/rollflow/internal/techniques"
	"github.com/openmatlab/rollflow/internal/training"
	"github.com/openmatlab/rollflow/internal/users"
	"go.uber.org/zap"
)

const userIDContextKey = "rollflow_user_id"

var (
	errMissingProviderVerifier = errors.New("provider verifier dependency required")
	errMissingTokenManager     = errors.New("token manager dependency required")
	errMissingUsersService     = errors.New("users service dependency required")
	errInvalidAuthorization    = errors.New("authorization header missing or invalid")
)

// ProviderVerifier validates an external identity provider token.
type ProviderVerifier interface {
	Verify(ctx context.Context, token string) (auth.ProviderClaims, error)
}

// BackendTokenManager issues and validates first-party access tokens.
type BackendTokenManager interface {
	IssueBackendToken(ctx context.Context, userID string) (string, int64, error)
	ValidateToken(token string) (string, error)
}

// Dependencies carries everything the HTTP surface needs.
type Dependencies struct {
	ProviderVerifier  ProviderVerifier
	TokenManager      BackendTokenManager
	UsersService      *users.Service
	TechniquesService *techniques.Service
	FlowsService      *flows.Service
	TrainingService   *training.Service
	GroupsService     *groups.Service
	SharingService    *sharing.Service
	MediaStore        *media.Store
	Logger            *zap.Logger
}

// NewHTTPHandler wires the full route table.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.ProviderVerifier == nil {
		return nil, errMissingProviderVerifier
	}
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.UsersService == nil {
		return nil, errMissingUsersService
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
		verifier:   deps.ProviderVerifier,
		tokens:     deps.TokenManager,
		users:      deps.UsersService,
		techniques: deps.TechniquesService,
		flows:      deps.FlowsService,
		training:   deps.TrainingService,
		groups:     deps.GroupsService,
		sharing:    deps.SharingService,
		media:      deps.MediaStore,
		logger:     logger,
	}

	router.POST("/auth/token", handler.handleAuthToken)
	router.GET("/themes/:belt", handler.handleGetTheme)
	router.GET("/share/public", handler.handleListPublicShares)
	router.GET("/share/:code", handler.handleResolveShare)
	if deps.MediaStore != nil {
		router.Static("/media", deps.MediaStore.Directory())
	}

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)

	protected.GET("/profile", handler.handleGetProfile)
	protected.PUT("/profile/belt", handler.handleSetBelt)

	protected.POST("/techniques", handler.handleCreateTechnique)
	protected.GET("/techniques", handler.handleListTechniques)
	protected.GET("/techniques/:id", handler.handleGetTechnique)
	protected.PUT("/techniques/:id", handler.handleUpdateTechnique)
	protected.DELETE("/techniques/:id", handler.handleDeleteTechnique)
	protected.PUT("/techniques/:id/mastery", handler.handleSetMastery)
	protected.POST("/techniques/:id/videos", handler.handleAddTechniqueVideo)

	protected.POST("/flows", handler.handleCreateFlow)
	protected.GET("/flows", handler.handleListFlows)
	protected.GET("/flows/:id", handler.handleGetFlow)
	protected.PUT("/flows/:id", handler.handleUpdateFlow)
	protected.DELETE("/flows/:id", handler.handleDeleteFlow)
	protected.PUT("/flows/:id/favorite", handler.handleSetFlowFavorite)

	protected.POST("/training-logs", handler.handleCreateTrainingLog)
	protected.GET("/training-logs", handler.handleListTrainingLogs)
	protected.GET("/training-logs/:id", handler.handleGetTrainingLog)
	protected.PUT("/training-logs/:id", handler.handleUpdateTrainingLog)
	protected.DELETE("/training-logs/:id", handler.handleDeleteTrainingLog)

	protected.POST("/groups", handler.handleCreateGroup)
	protected.GET("/groups", handler.handleListGroups)
	protected.GET("/groups/:id", handler.handleGetGroup)
	protected.DELETE("/groups/:id", handler.handleDeleteGroup)
	protected.GET("/groups/:id/members", handler.handleListGroupMembers)
	protected.POST("/groups/:id/members", handler.handleAddGroupMember)
	protected.DELETE("/groups/:id/members/:userID", handler.handleRemoveGroupMember)
	protected.PUT("/groups/:id/icon", handler.handleSetGroupIcon)
	protected.POST("/groups/:id/shared", handler.handleShareToGroup)
	protected.GET("/groups/:id/shared", handler.handleListGroupShares)
	protected.DELETE("/groups/:id/shared/:sharedID", handler.handleDeleteGroupShare)

	protected.POST("/share", handler.handleShare)
	protected.POST("/media", handler.handleUploadMedia)

	return router, nil
}

type httpHandler struct {
	verifier   ProviderVerifier
	tokens     BackendTokenManager
	users      *users.Service
	techniques *techniques.Service
	flows      *flows.Service
	training   *training.Service
	groups     *groups.Service
	sharing    *sharing.Service
	media      *media.Store
	logger     *zap.Logger
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

// respondError maps domain errors onto HTTP statuses. Anything unrecognized
// is a 500 with a generic body so internals never leak.
func (h *httpHandler) respondError(c *gin.Context, err error) {
	switch {
	case isValidationError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "detail": err.Error()})
	case isNotFoundError(err):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case isConflictError(err):
		c.JSON(http.StatusConflict, gin.H{"error": "conflict", "detail": err.Error()})
	case isForbiddenError(err):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	default:
		h.logger.Error("request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}

func isValidationError(err error) bool {
	for _, target := range []error{
		techniques.ErrInvalidName, techniques.ErrInvalidType, techniques.ErrInvalidMastery, techniques.ErrTooManyVideos,
		flows.ErrInvalidName,
		flowgraph.ErrUnsupportedVersion, flowgraph.ErrEmptyLabel, flowgraph.ErrUnknownNode,
		training.ErrInvalidDate, training.ErrInvalidTime, training.ErrInvalidTimeRange,
		training.ErrInvalidCondition, training.ErrTooManyVideos,
		groups.ErrInvalidName,
		users.ErrInvalidBeltRank,
		sharing.ErrInvalidContentType, sharing.ErrInvalidVisibility, sharing.ErrInvalidTitle,
		media.ErrUnsupportedType, media.ErrTooLarge, media.ErrEmptyUpload,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func isNotFoundError(err error) bool {
	for _, target := range []error{
		techniques.ErrNotFound, flows.ErrNotFound, training.ErrNotFound,
		groups.ErrNotFound, users.ErrProfileNotFound, sharing.ErrNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func isConflictError(err error) bool {
	for _, target := range []error{
		techniques.ErrVersionConflict, flows.ErrVersionConflict, training.ErrVersionConflict,
		groups.ErrAlreadyMember,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func isForbiddenError(err error) bool {
	for _, target := range []error{
		groups.ErrNotMember, groups.ErrNotAdmin, sharing.ErrNotSharer,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
