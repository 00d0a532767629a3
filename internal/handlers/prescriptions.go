package handlers

import (
	"telemed-server/internal/models"
	"telemed-server/internal/services"
	"telemed-server/internal/utils"

	"github.com/gin-gonic/gin"
)

// PrescriptionHandler handles prescription related requests.
type PrescriptionHandler struct {
	Prescriptions *services.PrescriptionService
}

// NewPrescriptionHandler creates a new PrescriptionHandler.
func NewPrescriptionHandler(prescriptions *services.PrescriptionService) *PrescriptionHandler {
	return &PrescriptionHandler{Prescriptions: prescriptions}
}

// IssuePrescriptionRequest represents the request body for issuing a prescription.
type IssuePrescriptionRequest struct {
	AppointmentID string              `json:"appointmentId" binding:"required"`
	Medications   []models.Medication `json:"medications" binding:"required,min=1,dive"`
	Notes         string              `json:"notes"`
}

// IssuePrescription attaches a prescription to an accepted or completed
// appointment.
func (h *PrescriptionHandler) IssuePrescription(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req IssuePrescriptionRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}

	rx, err := h.Prescriptions.Issue(c.Request.Context(), p, services.IssueInput{
		AppointmentID: req.AppointmentID,
		Medications:   req.Medications,
		Notes:         req.Notes,
	})
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Created(c, "Prescription issued successfully", rx)
}

// GetPrescriptions lists the caller's prescriptions, optionally by ?status=.
func (h *PrescriptionHandler) GetPrescriptions(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	list, err := h.Prescriptions.ListForPrincipal(c.Request.Context(), p, models.PrescriptionStatus(c.Query("status")))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Prescriptions fetched successfully", list)
}

// GetPrescriptionByID fetches one prescription.
func (h *PrescriptionHandler) GetPrescriptionByID(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	rx, err := h.Prescriptions.Get(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Prescription fetched successfully", rx)
}

// UpdatePrescriptionStatusRequest closes or voids an active prescription.
type UpdatePrescriptionStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=completed cancelled"`
}

// UpdatePrescriptionStatus handles PATCH /prescriptions/:id/status.
func (h *PrescriptionHandler) UpdatePrescriptionStatus(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req UpdatePrescriptionStatusRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	rx, err := h.Prescriptions.UpdateStatus(c.Request.Context(), p, c.Param("id"), models.PrescriptionStatus(req.Status))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Prescription status updated successfully", rx)
}
