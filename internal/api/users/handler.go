package users

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/good-yellow-bee/alertboard/internal/api/auth"
	"github.com/good-yellow-bee/alertboard/internal/api/middleware"
	"github.com/good-yellow-bee/alertboard/internal/api/respond"
	"github.com/good-yellow-bee/alertboard/internal/models"
	"github.com/good-yellow-bee/alertboard/internal/storage"
)

const maxUserBody = 8 << 10

// UserResponse is a user without sensitive fields.
type UserResponse struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// Handler handles user management endpoints.
type Handler struct {
	storage storage.Storage
	logger  *zap.Logger
}

// NewHandler creates a new user handler.
func NewHandler(store storage.Storage, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{storage: store, logger: logger}
}

// CreateRequest is the request body for creating a user.
type CreateRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// UpdateRequest is the request body for updating a user.
type UpdateRequest struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// ChangePasswordRequest is the request body for changing password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *Handler) internal(w http.ResponseWriter, msg string, err error) {
	h.logger.Error(msg, zap.Error(err))
	respond.Fail(w, respond.ErrInternal)
}

// List returns all users (admin only).
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.storage.Users().List(r.Context())
	if err != nil {
		h.internal(w, "list users", err)
		return
	}

	resp := make([]*UserResponse, len(users))
	for i, u := range users {
		resp[i] = userToResponse(u)
	}
	respond.OK(w, resp)
}

// Create creates a new user (admin only).
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if err := respond.Decode(w, r, maxUserBody, &req); err != nil {
		respond.Fail(w, respond.BadRequest("invalid request body"))
		return
	}

	if err := ValidateUsername(req.Username); err != nil {
		respond.Fail(w, respond.Validation(err.Error()))
		return
	}
	if err := ValidateEmail(req.Email); err != nil {
		respond.Fail(w, respond.Validation(err.Error()))
		return
	}
	if err := auth.ValidatePassword(req.Password); err != nil {
		respond.Fail(w, respond.Validation(err.Error()))
		return
	}
	role, err := ValidateRole(req.Role)
	if err != nil {
		respond.Fail(w, respond.Validation(err.Error()))
		return
	}

	ctx := r.Context()
	username := strings.TrimSpace(req.Username)
	email := strings.TrimSpace(req.Email)

	if conflict, err := h.taken(ctx, username, email, ""); err != nil {
		h.internal(w, "create user: check uniqueness", err)
		return
	} else if conflict != "" {
		respond.Fail(w, respond.Conflict(conflict))
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		h.internal(w, "create user: hash password", err)
		return
	}

	user := models.NewUser(username, email, role)
	user.ID = uuid.New().String()
	user.PasswordHash = hash
	if err := h.storage.Users().Create(ctx, user); err != nil {
		h.internal(w, "create user", err)
		return
	}

	h.logger.Info("user created", zap.String("username", user.Username), zap.String("id", user.ID), zap.String("role", string(role)))
	respond.Created(w, userToResponse(user))
}

// taken reports which of username or email already belongs to another user.
func (h *Handler) taken(ctx context.Context, username, email, selfID string) (string, error) {
	if username != "" {
		existing, err := h.storage.Users().GetByUsername(ctx, username)
		if err != nil {
			return "", err
		}
		if existing != nil && existing.ID != selfID {
			return "username already exists", nil
		}
	}
	if email != "" {
		existing, err := h.storage.Users().GetByEmail(ctx, email)
		if err != nil {
			return "", err
		}
		if existing != nil && existing.ID != selfID {
			return "email already exists", nil
		}
	}
	return "", nil
}

// GetByID returns a user by ID (admin only).
func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	user, ok := h.lookup(w, r, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	respond.OK(w, userToResponse(user))
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request, id string) (*models.User, bool) {
	if id == "" {
		respond.Fail(w, respond.BadRequest("user id required"))
		return nil, false
	}
	user, err := h.storage.Users().GetByID(r.Context(), id)
	if err != nil {
		h.internal(w, "get user", err)
		return nil, false
	}
	if user == nil {
		respond.Fail(w, respond.NotFound("user not found"))
		return nil, false
	}
	return user, true
}

// Update changes a user's email or role (admin only). An admin cannot
// change their own role.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	var req UpdateRequest
	if err := respond.Decode(w, r, maxUserBody, &req); err != nil {
		respond.Fail(w, respond.BadRequest("invalid request body"))
		return
	}

	user, ok := h.lookup(w, r, userID)
	if !ok {
		return
	}
	ctx := r.Context()

	if req.Email != "" {
		if err := ValidateEmail(req.Email); err != nil {
			respond.Fail(w, respond.Validation(err.Error()))
			return
		}
		email := strings.TrimSpace(req.Email)
		if conflict, err := h.taken(ctx, "", email, userID); err != nil {
			h.internal(w, "update user: check email", err)
			return
		} else if conflict != "" {
			respond.Fail(w, respond.Conflict(conflict))
			return
		}
		user.Email = email
	}

	if req.Role != "" {
		role, err := ValidateRole(req.Role)
		if err != nil {
			respond.Fail(w, respond.Validation(err.Error()))
			return
		}
		if userID == middleware.GetUserID(r) && role != user.Role {
			respond.Fail(w, respond.BadRequest("cannot change own role"))
			return
		}
		user.Role = role
	}

	user.UpdatedAt = time.Now()
	if err := h.storage.Users().Update(ctx, user); err != nil {
		h.internal(w, "update user", err)
		return
	}

	h.logger.Info("user updated", zap.String("username", user.Username), zap.String("id", user.ID))
	respond.OK(w, userToResponse(user))
}

// Delete removes a user (admin only). Admins cannot delete themselves.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	if userID != "" && userID == middleware.GetUserID(r) {
		respond.Fail(w, respond.BadRequest("cannot delete own account"))
		return
	}

	user, ok := h.lookup(w, r, userID)
	if !ok {
		return
	}
	if err := h.storage.Users().Delete(r.Context(), userID); err != nil {
		h.internal(w, "delete user", err)
		return
	}

	h.logger.Info("user deleted", zap.String("username", user.Username), zap.String("id", user.ID))
	respond.NoContent(w)
}

// Me returns the authenticated user.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := h.lookup(w, r, middleware.GetUserID(r))
	if !ok {
		return
	}
	respond.OK(w, userToResponse(user))
}

// ChangePassword changes the authenticated user's password and revokes
// their refresh tokens.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if err := respond.Decode(w, r, maxUserBody, &req); err != nil {
		respond.Fail(w, respond.BadRequest("invalid request body"))
		return
	}
	if req.CurrentPassword == "" {
		respond.Fail(w, respond.Validation("current_password is required"))
		return
	}
	if err := auth.ValidatePassword(req.NewPassword); err != nil {
		respond.Fail(w, respond.Validation(err.Error()))
		return
	}

	user, ok := h.lookup(w, r, middleware.GetUserID(r))
	if !ok {
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.CurrentPassword) {
		respond.Fail(w, respond.Validation("current password is incorrect"))
		return
	}

	hash, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		h.internal(w, "change password: hash", err)
		return
	}
	user.PasswordHash = hash
	user.UpdatedAt = time.Now()

	ctx := r.Context()
	if err := h.storage.Users().Update(ctx, user); err != nil {
		h.internal(w, "change password", err)
		return
	}
	if err := h.storage.Tokens().RevokeAllForUser(ctx, user.ID); err != nil {
		// The password is already changed.
		h.logger.Warn("change password: revoke tokens", zap.String("id", user.ID), zap.Error(err))
	}

	h.logger.Info("password changed", zap.String("username", user.Username))
	respond.NoContent(w)
}

func userToResponse(u *models.User) *UserResponse {
	return &UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      string(u.Role),
		CreatedAt: u.CreatedAt.Format(time.RFC3339),
		UpdatedAt: u.UpdatedAt.Format(time.RFC3339),
	}
}
