package auth

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/good-yellow-bee/alertboard/internal/api/respond"
	"github.com/good-yellow-bee/alertboard/internal/metrics"
	"github.com/good-yellow-bee/alertboard/internal/storage"
)

const maxAuthBody = 4 << 10

// Handler serves the /auth endpoints.
type Handler struct {
	storage storage.Storage
	jwt     *JWTService
	tokens  *TokenService
	lockout *LockoutTracker
	logger  *zap.Logger
}

// NewHandler creates the auth handler.
func NewHandler(store storage.Storage, jwt *JWTService, lockout *LockoutTracker, refreshTTL time.Duration, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		storage: store,
		jwt:     jwt,
		tokens:  NewTokenService(store, refreshTTL),
		lockout: lockout,
		logger:  logger,
	}
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RefreshRequest is the body of POST /auth/refresh and /auth/logout.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// LoginResponse carries a token pair.
type LoginResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// Login exchanges a username and password for a token pair.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := respond.Decode(w, r, maxAuthBody, &req); err != nil {
		respond.Fail(w, respond.BadRequest("invalid request body"))
		return
	}
	if req.Username == "" || req.Password == "" {
		respond.Fail(w, respond.BadRequest("username and password required"))
		return
	}

	log := h.logger.With(zap.String("username", req.Username))

	if h.lockout.IsLocked(req.Username) {
		metrics.AuthAttemptsTotal.WithLabelValues("locked").Inc()
		log.Warn("login blocked: account locked", zap.Duration("remaining", h.lockout.Remaining(req.Username)))
		respond.Fail(w, respond.ErrAccountLocked)
		return
	}

	ctx := r.Context()
	user, err := h.storage.Users().GetByUsername(ctx, req.Username)
	if err != nil {
		log.Error("login: get user", zap.Error(err))
		respond.Fail(w, respond.ErrInternal)
		return
	}
	if user == nil || !CheckPassword(user.PasswordHash, req.Password) {
		h.lockout.RecordFailure(req.Username)
		metrics.AuthAttemptsTotal.WithLabelValues("failure").Inc()
		log.Info("login failed")
		respond.Fail(w, respond.ErrUnauthorized)
		return
	}
	h.lockout.ClearFailures(req.Username)

	access, err := h.jwt.GenerateToken(user)
	if err != nil {
		log.Error("login: sign access token", zap.Error(err))
		respond.Fail(w, respond.ErrInternal)
		return
	}
	refresh, err := h.tokens.Create(ctx, user.ID)
	if err != nil {
		log.Error("login: create refresh token", zap.Error(err))
		respond.Fail(w, respond.ErrInternal)
		return
	}

	metrics.AuthAttemptsTotal.WithLabelValues("success").Inc()
	metrics.AuthTokensIssued.WithLabelValues("access").Inc()
	metrics.AuthTokensIssued.WithLabelValues("refresh").Inc()
	log.Info("login succeeded")

	respond.OK(w, h.pair(access, refresh))
}

// Refresh rotates a refresh token and issues a new access token.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := respond.Decode(w, r, maxAuthBody, &req); err != nil || req.RefreshToken == "" {
		respond.Fail(w, respond.BadRequest("refresh_token required"))
		return
	}

	ctx := r.Context()
	user, err := h.tokens.Validate(ctx, req.RefreshToken)
	if err != nil {
		h.logger.Info("refresh rejected", zap.Error(err))
		respond.Fail(w, respond.ErrInvalidToken)
		return
	}

	access, err := h.jwt.GenerateToken(user)
	if err != nil {
		h.logger.Error("refresh: sign access token", zap.Error(err))
		respond.Fail(w, respond.ErrInternal)
		return
	}
	refresh, err := h.tokens.Rotate(ctx, req.RefreshToken, user.ID)
	if err != nil {
		h.logger.Error("refresh: rotate", zap.Error(err))
		respond.Fail(w, respond.ErrInternal)
		return
	}

	metrics.AuthTokensIssued.WithLabelValues("access").Inc()
	metrics.AuthTokensIssued.WithLabelValues("refresh").Inc()
	respond.OK(w, h.pair(access, refresh))
}

// Logout revokes the given refresh token.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if err := respond.Decode(w, r, maxAuthBody, &req); err != nil || req.RefreshToken == "" {
		respond.Fail(w, respond.BadRequest("refresh_token required"))
		return
	}
	if err := h.tokens.Revoke(r.Context(), req.RefreshToken); err != nil {
		// Already revoked or gone; logout still succeeds.
		h.logger.Warn("logout: revoke", zap.Error(err))
	}
	respond.NoContent(w)
}

func (h *Handler) pair(access, refresh string) *LoginResponse {
	return &LoginResponse{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    h.jwt.TTLSeconds(),
		TokenType:    "Bearer",
	}
}
