package handlers

import (
	"fmt"
	"strings"

	"telemed-server/internal/apperr"
	"telemed-server/internal/middleware"
	"telemed-server/internal/models"
	"telemed-server/internal/services"
	"telemed-server/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// UserHandler handles user-related requests (typically admin operations).
type UserHandler struct {
	DB            *gorm.DB
	Notifications *services.NotificationService
	Logger        zerolog.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(db *gorm.DB, notifications *services.NotificationService, logger zerolog.Logger) *UserHandler {
	return &UserHandler{DB: db, Notifications: notifications, Logger: logger}
}

// CreateUserRequest represents the request body for creating a user by an admin.
type CreateUserRequest struct {
	FirstName      string `json:"firstName" binding:"required"`
	LastName       string `json:"lastName" binding:"required"`
	Email          string `json:"email" binding:"required,email"`
	Password       string `json:"password" binding:"required,min=8"`
	Role           string `json:"role" binding:"required,oneof=patient doctor admin"`
	Specialization string `json:"specialization"`
}

// CreateUser handles creating a new user (admin). Accounts created by an
// admin are active immediately.
func (h *UserHandler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
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

	user := models.User{
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Email:          email,
		Role:           models.Role(req.Role),
		Status:         models.UserStatusActive,
		Specialization: req.Specialization,
	}
	if err := user.SetPassword(req.Password); err != nil {
		utils.RespondError(c, apperr.Internal("failed to hash password", err))
		return
	}
	if err := h.DB.WithContext(ctx).Create(&user).Error; err != nil {
		utils.RespondError(c, apperr.FromStore(err, "user"))
		return
	}

	utils.Created(c, "User created successfully", user.Sanitize())
}

// GetUserByID handles fetching a single user by ID (admin).
func (h *UserHandler) GetUserByID(c *gin.Context) {
	var user models.User
	if err := h.DB.WithContext(c.Request.Context()).First(&user, "id = ?", c.Param("id")).Error; err != nil {
		utils.RespondError(c, apperr.FromStore(err, "user not found"))
		return
	}
	utils.Success(c, "User fetched successfully", user.Sanitize())
}

// UpdateUserStatusRequest is the admin's decision on an account.
type UpdateUserStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=pending active rejected suspended"`
	Reason string `json:"reason"`
}

// UpdateUserStatus approves, rejects, suspends or reactivates an account and
// tells the user. Suspending a doctor leaves their appointments untouched.
func (h *UserHandler) UpdateUserStatus(c *gin.Context) {
	var req UpdateUserStatusRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	ctx := c.Request.Context()
	adminID, _ := middleware.GetUserIDFromContext(c)
	userID := c.Param("id")
	status := models.UserStatus(req.Status)

	if userID == adminID {
		utils.BadRequest(c, "Admins cannot change their own status")
		return
	}

	var user models.User
	if err := h.DB.WithContext(ctx).First(&user, "id = ?", userID).Error; err != nil {
		utils.RespondError(c, apperr.FromStore(err, "user not found"))
		return
	}
	if user.Status == status {
		utils.Success(c, "User status unchanged", user.Sanitize())
		return
	}

	result := h.DB.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND status = ?", user.ID, user.Status).
		Update("status", status)
	if result.Error != nil {
		utils.RespondError(c, apperr.FromStore(result.Error, "user not found"))
		return
	}
	if result.RowsAffected == 0 {
		utils.RespondError(c, apperr.InvalidTransition("user status changed concurrently"))
		return
	}
	previous := user.Status
	user.Status = status

	message := fmt.Sprintf("Your account status changed from %s to %s", previous, status)
	if req.Reason != "" {
		message += ": " + req.Reason
	}
	if _, err := h.Notifications.Notify(ctx, services.NotificationInput{
		UserID:  user.ID,
		Type:    models.NotificationAccountStatusChanged,
		Title:   "Account " + string(status),
		Message: message,
	}); err != nil {
		// status change is already committed
		h.Logger.Warn().Err(err).Str("user_id", user.ID).Msg("failed to record account status notification")
	}

	h.Logger.Info().
		Str("user_id", user.ID).
		Str("admin_id", adminID).
		Str("from", string(previous)).
		Str("to", string(status)).
		Msg("user status changed")
	utils.Success(c, "User status updated successfully", user.Sanitize())
}

// GetDoctors lists active doctors, for patients picking whom to book with.
func (h *UserHandler) GetDoctors(c *gin.Context) {
	query := h.DB.WithContext(c.Request.Context()).
		Where("role = ? AND status = ?", models.RoleDoctor, models.UserStatusActive).
		Order("last_name asc, first_name asc")
	if specialty := strings.TrimSpace(c.Query("specialization")); specialty != "" {
		query = query.Where("specialization = ?", specialty)
	}

	var doctors []models.User
	if err := query.Find(&doctors).Error; err != nil {
		utils.RespondError(c, apperr.FromStore(err, "doctors"))
		return
	}

	sanitized := make([]models.UserSanitized, len(doctors))
	for i, doctor := range doctors {
		sanitized[i] = doctor.Sanitize()
	}
	utils.Success(c, "Doctors fetched successfully", sanitized)
}

// GetDoctorPatients lists the patients who have at least one appointment with
// the requesting doctor.
func (h *UserHandler) GetDoctorPatients(c *gin.Context) {
	doctorID, _ := middleware.GetUserIDFromContext(c)

	var patients []models.User
	err := h.DB.WithContext(c.Request.Context()).
		Where("role = ? AND id IN (?)", models.RolePatient,
			h.DB.Model(&models.Appointment{}).Select("patient_id").Where("doctor_id = ?", doctorID)).
		Order("last_name asc, first_name asc").
		Find(&patients).Error
	if err != nil {
		utils.RespondError(c, apperr.FromStore(err, "patients"))
		return
	}

	sanitized := make([]models.UserSanitized, len(patients))
	for i, patient := range patients {
		sanitized[i] = patient.Sanitize()
	}
	utils.Success(c, "Patients fetched successfully", sanitized)
}
