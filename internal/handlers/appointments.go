package handlers

import (
	"time"

	"telemed-server/internal/middleware"
	"telemed-server/internal/models"
	"telemed-server/internal/services"
	"telemed-server/internal/utils"

	"github.com/gin-gonic/gin"
)

// AppointmentHandler handles appointment related requests.
type AppointmentHandler struct {
	Appointments *services.AppointmentService
}

// NewAppointmentHandler creates a new AppointmentHandler.
func NewAppointmentHandler(appointments *services.AppointmentService) *AppointmentHandler {
	return &AppointmentHandler{Appointments: appointments}
}

// principal returns the caller or writes a 401.
func principal(c *gin.Context) (services.Principal, bool) {
	p, ok := middleware.PrincipalFromContext(c)
	if !ok {
		utils.Unauthorized(c, "User not authenticated")
		c.Abort()
	}
	return p, ok
}

// CreateAppointmentRequest represents the request body for creating an appointment.
type CreateAppointmentRequest struct {
	DoctorID     string    `json:"doctorId" binding:"required"`
	PatientID    string    `json:"patientId"` // admins only; patients book for themselves
	ScheduledFor time.Time `json:"scheduledFor" binding:"required"`
	Reason       string    `json:"reason" binding:"required"`
	Notes        string    `json:"notes"`
}

// CreateAppointment books a new pending appointment.
func (h *AppointmentHandler) CreateAppointment(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req CreateAppointmentRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	appt, err := h.Appointments.Book(c.Request.Context(), p, services.BookInput{
		DoctorID:     req.DoctorID,
		PatientID:    req.PatientID,
		ScheduledFor: req.ScheduledFor,
		Reason:       req.Reason,
		Notes:        req.Notes,
	})
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Created(c, "Appointment created successfully", appt)
}

// GetAppointmentsForUser lists the caller's appointments. Admins see all.
func (h *AppointmentHandler) GetAppointmentsForUser(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	status := models.AppointmentStatus(c.Query("status"))

	appointments, err := h.Appointments.ListForPrincipal(c.Request.Context(), p, status)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Appointments fetched successfully", appointments)
}

// GetAppointmentByID handles fetching a single appointment by its ID.
func (h *AppointmentHandler) GetAppointmentByID(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	appt, err := h.Appointments.Get(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Appointment fetched successfully", appt)
}

// AcceptAppointment confirms a pending appointment.
func (h *AppointmentHandler) AcceptAppointment(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	appt, err := h.Appointments.Accept(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Appointment accepted", appt)
}

// ReasonRequest carries an optional free-text reason or note.
type ReasonRequest struct {
	Reason string `json:"reason"`
	Notes  string `json:"notes"`
}

func bindReason(c *gin.Context) (ReasonRequest, bool) {
	var req ReasonRequest
	if c.Request.ContentLength == 0 {
		return req, true
	}
	return req, utils.BindAndValidate(c, &req)
}

// RejectAppointment declines a pending appointment.
func (h *AppointmentHandler) RejectAppointment(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	req, ok := bindReason(c)
	if !ok {
		return
	}
	appt, err := h.Appointments.Reject(c.Request.Context(), p, c.Param("id"), req.Reason)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Appointment rejected", appt)
}

// CompleteAppointment closes an accepted appointment.
func (h *AppointmentHandler) CompleteAppointment(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	req, ok := bindReason(c)
	if !ok {
		return
	}
	appt, err := h.Appointments.Complete(c.Request.Context(), p, c.Param("id"), req.Notes)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Appointment completed", appt)
}

// CancelAppointment cancels a non-terminal appointment.
func (h *AppointmentHandler) CancelAppointment(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	req, ok := bindReason(c)
	if !ok {
		return
	}
	appt, err := h.Appointments.Cancel(c.Request.Context(), p, c.Param("id"), req.Reason)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Appointment cancelled", appt)
}

// UpdateAppointmentStatusRequest represents the request body for updating an appointment's status.
type UpdateAppointmentStatusRequest struct {
	Status models.AppointmentStatus `json:"status" binding:"required,oneof=accepted rejected completed cancelled"`
	Notes  string                   `json:"notes"` // reason for rejections and cancellations
}

// UpdateAppointmentStatus dispatches a status change to the matching
// transition.
func (h *AppointmentHandler) UpdateAppointmentStatus(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req UpdateAppointmentStatusRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	ctx := c.Request.Context()
	id := c.Param("id")
	var (
		appt *models.Appointment
		err  error
	)
	switch req.Status {
	case models.StatusAccepted:
		appt, err = h.Appointments.Accept(ctx, p, id)
	case models.StatusRejected:
		appt, err = h.Appointments.Reject(ctx, p, id, req.Notes)
	case models.StatusCompleted:
		appt, err = h.Appointments.Complete(ctx, p, id, req.Notes)
	case models.StatusCancelled:
		appt, err = h.Appointments.Cancel(ctx, p, id, req.Notes)
	}
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Appointment status updated successfully", appt)
}

// RescheduleAppointmentRequest represents the request body for rescheduling an appointment.
type RescheduleAppointmentRequest struct {
	ScheduledFor time.Time `json:"scheduledFor" binding:"required"`
	Reason       string    `json:"reason"`
}

// RescheduleAppointment moves an appointment to a new time.
func (h *AppointmentHandler) RescheduleAppointment(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req RescheduleAppointmentRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	appt, err := h.Appointments.Reschedule(c.Request.Context(), p, c.Param("id"), services.RescheduleInput{
		ScheduledFor: req.ScheduledFor,
		Reason:       req.Reason,
	})
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Appointment rescheduled successfully", appt)
}
