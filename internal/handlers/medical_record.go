package handlers

import (
	"time"

	"telemed-server/internal/models"
	"telemed-server/internal/services"
	"telemed-server/internal/utils"

	"github.com/gin-gonic/gin"
)

// MedicalRecordHandler handles medical record related requests.
type MedicalRecordHandler struct {
	Records *services.MedicalRecordService
}

// NewMedicalRecordHandler creates a new MedicalRecordHandler.
func NewMedicalRecordHandler(records *services.MedicalRecordService) *MedicalRecordHandler {
	return &MedicalRecordHandler{Records: records}
}

// CreateMedicalRecordRequest represents the request body for creating a medical record.
type CreateMedicalRecordRequest struct {
	PatientID     string                   `json:"patientId" binding:"required"`
	AppointmentID string                   `json:"appointmentId"`
	RecordType    models.MedicalRecordType `json:"recordType"`
	RecordDate    string                   `json:"recordDate"` // RFC3339, defaults to now
	Title         string                   `json:"title" binding:"required"`
	Department    string                   `json:"department"`
	Summary       string                   `json:"summary" binding:"required"`
	Details       string                   `json:"details"`
}

// parseRecordDate accepts an empty string as "not given".
func parseRecordDate(c *gin.Context, value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		utils.BadRequest(c, "Invalid date format. Please use ISO 8601 format (YYYY-MM-DDTHH:MM:SSZ)")
		return time.Time{}, false
	}
	return t, true
}

// CreateMedicalRecord handles creating a new medical record.
// Only doctors who have seen the patient may write one.
func (h *MedicalRecordHandler) CreateMedicalRecord(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req CreateMedicalRecordRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	recordDate, ok := parseRecordDate(c, req.RecordDate)
	if !ok {
		return
	}

	record, err := h.Records.Create(c.Request.Context(), p, services.RecordInput{
		PatientID:     req.PatientID,
		AppointmentID: req.AppointmentID,
		RecordType:    req.RecordType,
		RecordDate:    recordDate,
		Title:         req.Title,
		Department:    req.Department,
		Summary:       req.Summary,
		Details:       req.Details,
	})
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Created(c, "Medical record created successfully", record)
}

// GetMedicalRecordsForPatient handles fetching medical records for a specific patient.
func (h *MedicalRecordHandler) GetMedicalRecordsForPatient(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	records, err := h.Records.ListForPatient(c.Request.Context(), p, c.Param("patientId"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Medical records fetched successfully", records)
}

// GetMyMedicalRecords is the patient's own view.
func (h *MedicalRecordHandler) GetMyMedicalRecords(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	records, err := h.Records.ListForPatient(c.Request.Context(), p, p.ID)
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Medical records fetched successfully", records)
}

// GetMedicalRecordByID handles fetching a single medical record by its ID.
func (h *MedicalRecordHandler) GetMedicalRecordByID(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	record, err := h.Records.Get(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Medical record fetched successfully", record)
}

// UpdateMedicalRecordRequest represents the request body for updating a medical record.
type UpdateMedicalRecordRequest struct {
	RecordType models.MedicalRecordType `json:"recordType,omitempty"`
	RecordDate string                   `json:"recordDate,omitempty"`
	Title      string                   `json:"title,omitempty"`
	Department string                   `json:"department,omitempty"`
	Summary    string                   `json:"summary,omitempty"`
	Details    string                   `json:"details,omitempty"`
}

// UpdateMedicalRecord handles updating an existing medical record.
// Only accessible by the doctor who created it or an admin.
func (h *MedicalRecordHandler) UpdateMedicalRecord(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var req UpdateMedicalRecordRequest
	if !utils.BindAndValidate(c, &req) {
		return
	}
	recordDate, ok := parseRecordDate(c, req.RecordDate)
	if !ok {
		return
	}

	record, err := h.Records.Update(c.Request.Context(), p, c.Param("id"), services.RecordInput{
		RecordType: req.RecordType,
		RecordDate: recordDate,
		Title:      req.Title,
		Department: req.Department,
		Summary:    req.Summary,
		Details:    req.Details,
	})
	if err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Medical record updated successfully", record)
}

// DeleteMedicalRecord handles deleting a medical record.
// Only accessible by the doctor who created it or an admin.
func (h *MedicalRecordHandler) DeleteMedicalRecord(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	if err := h.Records.Delete(c.Request.Context(), p, c.Param("id")); err != nil {
		utils.RespondError(c, err)
		return
	}
	utils.Success(c, "Medical record deleted successfully", nil)
}
