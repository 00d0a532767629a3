package handlers

import (
	"errors"
	"strings"
	"time"

	"telemed-server/internal/apperr"
	"telemed-server/internal/config"
	"telemed-server/internal/middleware"
	"telemed-server/internal/models"
	"telemed-server/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const refreshCookie = "refresh_token"

// AuthHandler handles authentication-related requests.
type AuthHandler struct {
	DB     *gorm.DB
	Cfg    *config.Config
	Logger zerolog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(db *gorm.DB, cfg *config.Config, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{DB: db, Cfg: cfg, Logger: logger}
}

// RegisterRequest represents the request body for user registration.
type RegisterRequest struct {
	FirstName      string `json:"firstName" binding:"required"`
	LastName       string `json:"lastName" binding:"required"`
	Email          string `json:"email" binding:"required,email"`
	Password       string `json:"password" binding:"required,min=8"`
	Role           string `json:"role" binding:"required,oneof=patient doctor"`
	PhoneNumber    string `json:"phoneNumber"`
	Specialization string `json:"specialization"`
}

// Register handles user registration. Doctors start pending until an admin
// approves them.
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	ctx := c.Request.Context()
	email := strings.ToLower(strings.TrimSpace(req.Email))

	var existing int64
	if err := h.DB.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&existing).Error; err != nil {
		utils.RespondError(c, apperr.FromStore(err, "user"))
		return
	}
	if existing > 0 {
		utils.RespondError(c, apperr.InvalidInput("user with this email already exists"))
		return
	}

	role := models.Role(req.Role)
	user := models.User{
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Email:       email,
		Role:        role,
		Status:      models.InitialStatus(role),
		PhoneNumber: req.PhoneNumber,
	}
	if role == models.RoleDoctor {
		user.Specialization = req.Specialization
	}

	if err := user.SetPassword(req.Password); err != nil {
		utils.RespondError(c, apperr.Internal("failed to hash password", err))
		return
	}
	if err := h.DB.WithContext(ctx).Create(&user).Error; err != nil {
		utils.RespondError(c, apperr.FromStore(err, "user"))
		return
	}

	h.Logger.Info().Str("user_id", user.ID).Str("role", string(role)).Msg("user registered")
	utils.Created(c, "User registered successfully", user.Sanitize())
}

// LoginRequest represents the request body for user login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse represents the response body for successful login.
type LoginResponse struct {
	*utils.TokenPair
	User models.UserSanitized `json:"user"`
}

// Login handles user login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	var user models.User
	err := h.DB.WithContext(c.Request.Context()).
		Where("email = ?", strings.ToLower(strings.TrimSpace(req.Email))).
		First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		utils.Unauthorized(c, "Invalid email or password")
		return
	}
	if err != nil {
		utils.RespondError(c, apperr.FromStore(err, "user"))
		return
	}
	if !user.CheckPassword(req.Password) {
		utils.Unauthorized(c, "Invalid email or password")
		return
	}
	if user.Status == models.UserStatusRejected || user.Status == models.UserStatusSuspended {
		utils.Forbidden(c, "Account is "+string(user.Status))
		return
	}

	pair, err := h.issueTokens(c, &user)
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	utils.Success(c, "Login successful", LoginResponse{TokenPair: pair, User: user.Sanitize()})
}

// RefreshTokenRequest represents the request body for token refresh.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

// RefreshToken rotates a refresh token: the presented one is revoked and a new
// pair is issued.
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	presented, err := c.Cookie(refreshCookie)
	if err != nil || presented == "" {
		var req RefreshTokenRequest
		if !utils.BindAndValidate(c, &req) {
			return
		}
		presented = req.RefreshToken
	}

	claims, err := utils.ValidateToken(presented, h.Cfg.JWTRefreshSecret)
	if err != nil {
		utils.Unauthorized(c, "Invalid refresh token")
		return
	}

	ctx := c.Request.Context()
	var user models.User
	var pair *utils.TokenPair
	err = h.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.RefreshToken{}).
			Where("token_hash = ? AND user_id = ? AND is_revoked = ? AND expires_at > ?",
				models.HashRefreshToken(presented), claims.UserID, false, time.Now().UTC()).
			Update("is_revoked", true)
		if result.Error != nil {
			return apperr.FromStore(result.Error, "refresh token")
		}
		if result.RowsAffected == 0 {
			return apperr.Unauthenticated("refresh token not found, expired, or revoked")
		}

		if err := tx.First(&user, "id = ?", claims.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.Unauthenticated("user no longer exists")
			}
			return apperr.FromStore(err, "user")
		}
		if user.Status == models.UserStatusRejected || user.Status == models.UserStatusSuspended {
			return apperr.Forbidden("account is " + string(user.Status))
		}

		pair, err = h.storeTokens(tx, &user)
		return err
	})
	if err != nil {
		utils.RespondError(c, err)
		return
	}

	h.setRefreshCookie(c, pair.RefreshToken, h.Cfg.JWTRefreshExpirationHours*60*60)
	utils.Success(c, "Access token refreshed successfully", pair)
}

// LogoutRequest represents the request body for user logout.
type LogoutRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Logout revokes the presented refresh token. Unknown tokens are accepted so
// logging out twice succeeds.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req LogoutRequest
	_ = c.ShouldBindJSON(&req)
	if req.RefreshToken == "" {
		if cookie, err := c.Cookie(refreshCookie); err == nil {
			req.RefreshToken = cookie
		}
	}
	if req.RefreshToken == "" {
		utils.BadRequest(c, "Refresh token is required")
		return
	}

	err := h.DB.WithContext(c.Request.Context()).Model(&models.RefreshToken{}).
		Where("token_hash = ? AND is_revoked = ?", models.HashRefreshToken(req.RefreshToken), false).
		Updates(map[string]interface{}{"is_revoked": true, "expires_at": time.Now().UTC()}).Error
	if err != nil {
		utils.RespondError(c, apperr.FromStore(err, "refresh token"))
		return
	}

	h.setRefreshCookie(c, "", -1)
	utils.Success(c, "Logout successful", nil)
}

// GetProfile handles fetching the currently authenticated user's profile.
func (h *AuthHandler) GetProfile(c *gin.Context) {
	userID, _ := middleware.GetUserIDFromContext(c)

	var user models.User
	if err := h.DB.WithContext(c.Request.Context()).First(&user, "id = ?", userID).Error; err != nil {
		utils.RespondError(c, apperr.FromStore(err, "user profile not found"))
		return
	}

	utils.Success(c, "Profile fetched successfully", user.Sanitize())
}

// UpdateProfileRequest represents the request body for updating user profile.
type UpdateProfileRequest struct {
	FirstName      string `json:"firstName"`
	LastName       string `json:"lastName"`
	PhoneNumber    string `json:"phoneNumber"`
	Specialization string `json:"specialization"`
}

// UpdateProfile handles updating the currently authenticated user's profile.
// Email, role and status are not editable here.
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	userID, _ := middleware.GetUserIDFromContext(c)

	var req UpdateProfileRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	ctx := c.Request.Context()
	var user models.User
	if err := h.DB.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		utils.RespondError(c, apperr.FromStore(err, "user not found"))
		return
	}

	updates := map[string]interface{}{}
	if req.FirstName != "" {
		updates["first_name"] = req.FirstName
	}
	if req.LastName != "" {
		updates["last_name"] = req.LastName
	}
	if req.PhoneNumber != "" {
		updates["phone_number"] = req.PhoneNumber
	}
	if req.Specialization != "" && user.Role == models.RoleDoctor {
		updates["specialization"] = req.Specialization
	}
	if len(updates) > 0 {
		if err := h.DB.WithContext(ctx).Model(&user).Updates(updates).Error; err != nil {
			utils.RespondError(c, apperr.FromStore(err, "user not found"))
			return
		}
		if err := h.DB.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
			utils.RespondError(c, apperr.FromStore(err, "user not found"))
			return
		}
	}

	utils.Success(c, "Profile updated successfully", user.Sanitize())
}

func (h *AuthHandler) issueTokens(c *gin.Context, user *models.User) (*utils.TokenPair, error) {
	pair, err := h.storeTokens(h.DB.WithContext(c.Request.Context()), user)
	if err != nil {
		return nil, err
	}
	h.setRefreshCookie(c, pair.RefreshToken, h.Cfg.JWTRefreshExpirationHours*60*60)
	return pair, nil
}

// storeTokens mints a token pair and records the refresh token's hash.
func (h *AuthHandler) storeTokens(db *gorm.DB, user *models.User) (*utils.TokenPair, error) {
	pair, err := utils.GenerateTokens(user, h.Cfg)
	if err != nil {
		return nil, apperr.Internal("failed to generate tokens", err)
	}
	record := models.RefreshToken{
		UserID:    user.ID,
		TokenHash: models.HashRefreshToken(pair.RefreshToken),
		ExpiresAt: pair.RefreshExpiresAt,
	}
	if err := db.Create(&record).Error; err != nil {
		return nil, apperr.FromStore(err, "refresh token")
	}
	return pair, nil
}

func (h *AuthHandler) setRefreshCookie(c *gin.Context, value string, maxAge int) {
	c.SetCookie(refreshCookie, value, maxAge, "/", "", !h.Cfg.IsDevelopment(), true)
}
