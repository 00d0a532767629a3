package services

import (
	"context"
	"fmt"
	"strings"

	"telemed-server/internal/apperr"
	"telemed-server/internal/models"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// IssueInput holds a new prescription.
type IssueInput struct {
	AppointmentID string
	Medications   []models.Medication
	Notes         string
}

// PrescriptionService issues prescriptions bound to exactly one appointment.
type PrescriptionService struct {
	db            *gorm.DB
	notifications *NotificationService
	logger        zerolog.Logger
}

// NewPrescriptionService creates a PrescriptionService.
func NewPrescriptionService(db *gorm.DB, notifications *NotificationService, logger zerolog.Logger) *PrescriptionService {
	return &PrescriptionService{db: db, notifications: notifications, logger: logger}
}

// prescribable are the appointment states a prescription may be issued in.
var prescribable = map[models.AppointmentStatus]bool{
	models.StatusAccepted:  true,
	models.StatusCompleted: true,
}

// Issue creates an active prescription and back-links the appointment. The
// insert, the back-reference and the patient notification commit together or
// not at all.
func (s *PrescriptionService) Issue(ctx context.Context, p Principal, in IssueInput) (*models.Prescription, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}

	appt, err := loadAppointment(ctx, s.db, in.AppointmentID)
	if err != nil {
		return nil, err
	}
	if err := owningDoctor(p, appt); err != nil {
		return nil, err
	}
	if !prescribable[appt.Status] {
		return nil, apperr.InvalidTransition(fmt.Sprintf("cannot issue a prescription for an appointment that is %s", appt.Status))
	}
	if appt.PrescriptionID != nil {
		return nil, apperr.InvalidTransition("appointment already has a prescription")
	}

	medications, err := cleanMedications(in.Medications)
	if err != nil {
		return nil, err
	}

	rx := &models.Prescription{
		PatientID:     appt.PatientID,
		DoctorID:      appt.DoctorID,
		AppointmentID: appt.ID,
		Medications:   medications,
		Notes:         in.Notes,
		Status:        models.PrescriptionActive,
	}

	var emitted *models.Notification
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(rx).Error; err != nil {
			return apperr.FromStore(err, "prescription")
		}

		result := tx.Model(&models.Appointment{}).
			Where("id = ? AND prescription_id IS NULL", appt.ID).
			Update("prescription_id", rx.ID)
		if result.Error != nil {
			return apperr.FromStore(result.Error, "appointment not found")
		}
		if result.RowsAffected == 0 {
			return apperr.InvalidTransition("appointment already has a prescription")
		}

		n, err := s.notifications.Emit(ctx, tx, NotificationInput{
			UserID:        appt.PatientID,
			Type:          models.NotificationPrescriptionIssued,
			Title:         "New prescription",
			Message:       fmt.Sprintf("A prescription with %d medication(s) was issued for your appointment on %s", len(medications), formatSchedule(appt.ScheduledFor)),
			AppointmentID: appt.ID,
		})
		emitted = n
		return err
	})
	if err != nil {
		return nil, apperr.FromStore(err, "prescription")
	}

	s.notifications.Deliver(ctx, emitted)
	s.logger.Info().Str("prescription_id", rx.ID).Str("appointment_id", appt.ID).Msg("prescription issued")
	return rx, nil
}

// Get returns a prescription visible to the principal.
func (s *PrescriptionService) Get(ctx context.Context, p Principal, id string) (*models.Prescription, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	rx, err := s.load(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if !p.IsAdmin() && p.ID != rx.PatientID && p.ID != rx.DoctorID {
		return nil, apperr.Concealed("prescription not found")
	}
	return rx, nil
}

// ListForPrincipal returns the principal's prescriptions, newest first.
func (s *PrescriptionService) ListForPrincipal(ctx context.Context, p Principal, status models.PrescriptionStatus) ([]models.Prescription, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	query := s.db.WithContext(ctx).Order("created_at desc")
	switch p.Role {
	case models.RolePatient:
		query = query.Where("patient_id = ?", p.ID)
	case models.RoleDoctor:
		query = query.Where("doctor_id = ?", p.ID)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}
	prescriptions := []models.Prescription{}
	if err := query.Find(&prescriptions).Error; err != nil {
		return nil, apperr.FromStore(err, "prescriptions")
	}
	return prescriptions, nil
}

// UpdateStatus lets the prescribing doctor close an active prescription.
func (s *PrescriptionService) UpdateStatus(ctx context.Context, p Principal, id string, status models.PrescriptionStatus) (*models.Prescription, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	if status != models.PrescriptionCompleted && status != models.PrescriptionCancelled {
		return nil, apperr.InvalidInput("status must be completed or cancelled")
	}

	rx, err := s.load(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if p.ID != rx.PatientID && p.ID != rx.DoctorID {
		return nil, apperr.Concealed("prescription not found")
	}
	if p.ID != rx.DoctorID || !p.ActiveDoctor() {
		return nil, apperr.Forbidden("only the prescribing doctor can change a prescription")
	}
	if rx.Status != models.PrescriptionActive {
		return nil, apperr.InvalidTransition(fmt.Sprintf("prescription is already %s", rx.Status))
	}

	result := s.db.WithContext(ctx).Model(&models.Prescription{}).
		Where("id = ? AND status = ?", rx.ID, models.PrescriptionActive).
		Update("status", status)
	if result.Error != nil {
		return nil, apperr.FromStore(result.Error, "prescription not found")
	}
	if result.RowsAffected == 0 {
		return nil, apperr.InvalidTransition("prescription changed concurrently")
	}
	return s.load(ctx, s.db, rx.ID)
}

func (s *PrescriptionService) load(ctx context.Context, db *gorm.DB, id string) (*models.Prescription, error) {
	if id == "" {
		return nil, apperr.InvalidInput("prescription id is required")
	}
	var rx models.Prescription
	if err := db.WithContext(ctx).First(&rx, "id = ?", id).Error; err != nil {
		return nil, apperr.FromStore(err, "prescription not found")
	}
	return &rx, nil
}

func cleanMedications(in []models.Medication) ([]models.Medication, error) {
	if len(in) == 0 {
		return nil, apperr.InvalidInput("at least one medication is required")
	}
	out := make([]models.Medication, 0, len(in))
	for i, m := range in {
		m.Name = strings.TrimSpace(m.Name)
		if m.Name == "" {
			return nil, apperr.InvalidInput(fmt.Sprintf("medication %d: name is required", i+1))
		}
		out = append(out, m)
	}
	return out, nil
}
