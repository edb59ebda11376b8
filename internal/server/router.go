package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/quotia/backend/internal/devicetokens"
	"github.com/quotia/backend/internal/quotations"
	"github.com/quotia/backend/internal/users"
)

const userIDContextKey = "quotia_user_id"

var (
	errMissingTokenManager        = errors.New("token manager dependency required")
	errMissingUsersService        = errors.New("users service dependency required")
	errMissingQuotationsService   = errors.New("quotations service dependency required")
	errMissingDeviceTokensService = errors.New("device tokens service dependency required")
	errInvalidAuthorization       = errors.New("authorization header missing or invalid")
)

type TokenManager interface {
	IssueToken(ctx context.Context, userID string) (string, int64, error)
	ValidateToken(token string) (string, error)
}

type Dependencies struct {
	TokenManager        TokenManager
	UsersService        *users.Service
	QuotationsService   *quotations.Service
	DeviceTokensService *devicetokens.Service
	Logger              *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.UsersService == nil {
		return nil, errMissingUsersService
	}
	if deps.QuotationsService == nil {
		return nil, errMissingQuotationsService
	}
	if deps.DeviceTokensService == nil {
		return nil, errMissingDeviceTokensService
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
		tokens:       deps.TokenManager,
		users:        deps.UsersService,
		quotations:   deps.QuotationsService,
		deviceTokens: deps.DeviceTokensService,
		logger:       logger,
	}

	router.POST("/users", handler.handleRegisterUser)
	router.POST("/users/auth/login", handler.handleLogin)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/users/:id", handler.handleGetUser)
	protected.PUT("/users/:id", handler.handleUpdateUser)
	protected.POST("/quotations", handler.handleCreateQuotation)
	protected.GET("/quotations/user/:userId", handler.handleListQuotations)
	protected.GET("/quotations/project/:name", handler.handleGetQuotationByProject)
	protected.GET("/quotations/:id/download", handler.handleDownloadQuotation)
	protected.POST("/device-tokens", handler.handleRegisterDeviceToken)
	protected.DELETE("/device-tokens/:token", handler.handleDeleteDeviceToken)

	return router, nil
}

type httpHandler struct {
	tokens       TokenManager
	users        *users.Service
	quotations   *quotations.Service
	deviceTokens *devicetokens.Service
	logger       *zap.Logger
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
