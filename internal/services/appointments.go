package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"telemed-server/internal/apperr"
	"telemed-server/internal/models"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// BookInput holds the fields of a new booking.
type BookInput struct {
	DoctorID     string
	PatientID    string
	ScheduledFor time.Time
	Reason       string
	Notes        string
}

// RescheduleInput holds the new schedule of an appointment.
type RescheduleInput struct {
	ScheduledFor time.Time
	Reason       string
}

// AppointmentService drives the appointment state machine.
type AppointmentService struct {
	db            *gorm.DB
	notifications *NotificationService
	logger        zerolog.Logger
	now           func() time.Time
}

// NewAppointmentService creates an AppointmentService.
func NewAppointmentService(db *gorm.DB, notifications *NotificationService, logger zerolog.Logger) *AppointmentService {
	return &AppointmentService{
		db:            db,
		notifications: notifications,
		logger:        logger,
		now:           time.Now,
	}
}

// actor checks who may act on an appointment once it is known to exist.
type actor func(p Principal, appt *models.Appointment) error

// transition describes one edge of the state machine.
type transition struct {
	name    string
	from    []models.AppointmentStatus
	to      models.AppointmentStatus
	actor   actor
	updates map[string]interface{}
	// entry, when set, is appended to the reschedule history.
	entry *models.RescheduleEntry
	// guard rejects an edge the state alone allows.
	guard func(appt *models.Appointment) error
	// within runs inside the transaction after the status update.
	within func(tx *gorm.DB, appt *models.Appointment) error
	notify func(appt *models.Appointment) []NotificationInput
}

func (t transition) allows(s models.AppointmentStatus) bool {
	for _, from := range t.from {
		if from == s {
			return true
		}
	}
	return false
}

// awaitingDoctor are the states in which the doctor's decision is pending.
var awaitingDoctor = []models.AppointmentStatus{models.StatusPending, models.StatusRescheduled}

var nonTerminal = []models.AppointmentStatus{
	models.StatusPending,
	models.StatusAccepted,
	models.StatusRescheduled,
}

// owningDoctor allows only the appointment's doctor, and only while active.
func owningDoctor(p Principal, appt *models.Appointment) error {
	if !appt.IsParticipant(p.ID) {
		return apperr.Concealed("appointment not found")
	}
	if p.Role != models.RoleDoctor || p.ID != appt.DoctorID {
		return apperr.Forbidden("only the assigned doctor can perform this action")
	}
	if p.Status != models.UserStatusActive {
		return apperr.Forbidden("doctor account is not active")
	}
	return nil
}

// participant allows either side of the appointment.
func participant(p Principal, appt *models.Appointment) error {
	if !appt.IsParticipant(p.ID) {
		return apperr.Concealed("appointment not found")
	}
	if p.Role == models.RoleDoctor && p.Status != models.UserStatusActive {
		return apperr.Forbidden("doctor account is not active")
	}
	return nil
}

// participantOrAdmin also lets admins through.
func participantOrAdmin(p Principal, appt *models.Appointment) error {
	if p.IsAdmin() {
		return nil
	}
	return participant(p, appt)
}

// Book creates a pending appointment and notifies the doctor.
func (s *AppointmentService) Book(ctx context.Context, p Principal, in BookInput) (*models.Appointment, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}

	patientID := in.PatientID
	switch p.Role {
	case models.RolePatient:
		if patientID != "" && patientID != p.ID {
			return nil, apperr.Forbidden("patients can only book appointments for themselves")
		}
		patientID = p.ID
	case models.RoleAdmin:
		if patientID == "" {
			return nil, apperr.InvalidInput("patientId is required")
		}
	default:
		return nil, apperr.Forbidden("only patients and admins can book appointments")
	}

	if in.DoctorID == "" {
		return nil, apperr.InvalidInput("doctorId is required")
	}
	if strings.TrimSpace(in.Reason) == "" {
		return nil, apperr.InvalidInput("reason is required")
	}
	if in.ScheduledFor.IsZero() || !in.ScheduledFor.After(s.now()) {
		return nil, apperr.InvalidInput("appointment date must be in the future")
	}

	doctor, err := requireUser(ctx, s.db, in.DoctorID, models.RoleDoctor)
	if err != nil {
		return nil, err
	}
	if doctor.Status != models.UserStatusActive {
		return nil, apperr.InvalidInput("doctor is not accepting appointments")
	}
	patient, err := requireUser(ctx, s.db, patientID, models.RolePatient)
	if err != nil {
		return nil, err
	}

	appt := &models.Appointment{
		PatientID:    patient.ID,
		DoctorID:     doctor.ID,
		ScheduledFor: in.ScheduledFor.UTC(),
		Status:       models.StatusPending,
		Reason:       strings.TrimSpace(in.Reason),
		Notes:        in.Notes,
	}

	var emitted *models.Notification
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(appt).Error; err != nil {
			return apperr.FromStore(err, "appointment")
		}
		n, err := s.notifications.Emit(ctx, tx, NotificationInput{
			UserID:        doctor.ID,
			Type:          models.NotificationAppointmentRequested,
			Title:         "New appointment request",
			Message:       fmt.Sprintf("%s requested an appointment on %s", patient.FullName(), formatSchedule(appt.ScheduledFor)),
			AppointmentID: appt.ID,
		})
		emitted = n
		return err
	})
	if err != nil {
		return nil, apperr.FromStore(err, "appointment")
	}

	s.notifications.Deliver(ctx, emitted)
	s.logger.Info().Str("appointment_id", appt.ID).Str("doctor_id", doctor.ID).Msg("appointment booked")
	appt.RescheduleHistory = []models.RescheduleEntry{}
	return appt, nil
}

// Accept moves a pending appointment to accepted.
func (s *AppointmentService) Accept(ctx context.Context, p Principal, id string) (*models.Appointment, error) {
	return s.apply(ctx, p, id, transition{
		name:  "accept",
		from:  awaitingDoctor,
		to:    models.StatusAccepted,
		actor: owningDoctor,
		notify: func(appt *models.Appointment) []NotificationInput {
			return []NotificationInput{{
				UserID:        appt.PatientID,
				Type:          models.NotificationAppointmentConfirmed,
				Title:         "Appointment confirmed",
				Message:       fmt.Sprintf("Your appointment on %s has been confirmed", formatSchedule(appt.ScheduledFor)),
				AppointmentID: appt.ID,
			}}
		},
	})
}

// Reject moves a pending appointment to rejected.
func (s *AppointmentService) Reject(ctx context.Context, p Principal, id, reason string) (*models.Appointment, error) {
	updates := map[string]interface{}{}
	if reason != "" {
		updates["notes"] = reason
	}
	return s.apply(ctx, p, id, transition{
		name:    "reject",
		from:    awaitingDoctor,
		to:      models.StatusRejected,
		actor:   owningDoctor,
		updates: updates,
		guard: func(appt *models.Appointment) error {
			if appt.PrescriptionID != nil {
				return apperr.InvalidTransition("cannot reject an appointment that has a prescription")
			}
			return nil
		},
		notify: func(appt *models.Appointment) []NotificationInput {
			msg := fmt.Sprintf("Your appointment on %s was declined", formatSchedule(appt.ScheduledFor))
			if reason != "" {
				msg += ": " + reason
			}
			return []NotificationInput{{
				UserID:        appt.PatientID,
				Type:          models.NotificationAppointmentRejected,
				Title:         "Appointment declined",
				Message:       msg,
				AppointmentID: appt.ID,
			}}
		},
	})
}

// Complete moves an accepted appointment to completed and stamps completedAt.
func (s *AppointmentService) Complete(ctx context.Context, p Principal, id, notes string) (*models.Appointment, error) {
	updates := map[string]interface{}{"completed_at": s.now().UTC()}
	if notes != "" {
		updates["notes"] = notes
	}
	return s.apply(ctx, p, id, transition{
		name:    "complete",
		from:    []models.AppointmentStatus{models.StatusAccepted},
		to:      models.StatusCompleted,
		actor:   owningDoctor,
		updates: updates,
		notify: func(appt *models.Appointment) []NotificationInput {
			return []NotificationInput{{
				UserID:        appt.PatientID,
				Type:          models.NotificationAppointmentCompleted,
				Title:         "Appointment completed",
				Message:       fmt.Sprintf("Your appointment on %s has been marked as completed", formatSchedule(appt.ScheduledFor)),
				AppointmentID: appt.ID,
			}}
		},
	})
}

// Reschedule moves the appointment to a new time and appends one history
// entry. Either participant may reschedule a non-terminal appointment.
func (s *AppointmentService) Reschedule(ctx context.Context, p Principal, id string, in RescheduleInput) (*models.Appointment, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	if in.ScheduledFor.IsZero() || !in.ScheduledFor.After(s.now()) {
		return nil, apperr.InvalidInput("new appointment date must be in the future")
	}
	newTime := in.ScheduledFor.UTC()
	entry := &models.RescheduleEntry{
		NewScheduledFor: newTime,
		Reason:          in.Reason,
		ChangedBy:       p.Role,
		ChangedByID:     p.ID,
		ChangedAt:       s.now().UTC(),
	}
	return s.apply(ctx, p, id, transition{
		name:    "reschedule",
		from:    nonTerminal,
		to:      models.StatusRescheduled,
		actor:   participant,
		updates: map[string]interface{}{"scheduled_for": newTime},
		entry:   entry,
		notify: func(appt *models.Appointment) []NotificationInput {
			return []NotificationInput{{
				UserID:        appt.Counterpart(p.ID),
				Type:          models.NotificationAppointmentRescheduled,
				Title:         "Appointment rescheduled",
				Message:       fmt.Sprintf("Your appointment on %s was moved to %s", formatSchedule(appt.ScheduledFor), formatSchedule(newTime)),
				AppointmentID: appt.ID,
			}}
		},
	})
}

// Cancel moves a non-terminal appointment to cancelled. An active
// prescription issued for it is cancelled in the same transaction.
func (s *AppointmentService) Cancel(ctx context.Context, p Principal, id, reason string) (*models.Appointment, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	updates := map[string]interface{}{
		"cancelled_at": s.now().UTC(),
		"cancelled_by": p.Role,
	}
	if reason != "" {
		updates["notes"] = reason
	}
	return s.apply(ctx, p, id, transition{
		name:    "cancel",
		from:    nonTerminal,
		to:      models.StatusCancelled,
		actor:   participantOrAdmin,
		updates: updates,
		within:  voidPrescription,
		notify: func(appt *models.Appointment) []NotificationInput {
			msg := fmt.Sprintf("The appointment on %s was cancelled", formatSchedule(appt.ScheduledFor))
			if reason != "" {
				msg += ": " + reason
			}
			var recipients []string
			if p.IsAdmin() && !appt.IsParticipant(p.ID) {
				recipients = []string{appt.PatientID, appt.DoctorID}
			} else {
				recipients = []string{appt.Counterpart(p.ID)}
			}
			inputs := make([]NotificationInput, 0, len(recipients))
			for _, userID := range recipients {
				inputs = append(inputs, NotificationInput{
					UserID:        userID,
					Type:          models.NotificationAppointmentCancelled,
					Title:         "Appointment cancelled",
					Message:       msg,
					AppointmentID: appt.ID,
				})
			}
			return inputs
		},
	})
}

// voidPrescription cancels the still active prescription of a cancelled
// appointment.
func voidPrescription(tx *gorm.DB, appt *models.Appointment) error {
	if appt.PrescriptionID == nil {
		return nil
	}
	err := tx.Model(&models.Prescription{}).
		Where("id = ? AND status = ?", *appt.PrescriptionID, models.PrescriptionActive).
		Update("status", models.PrescriptionCancelled).Error
	if err != nil {
		return apperr.FromStore(err, "prescription")
	}
	return nil
}

// Get returns one appointment visible to the principal.
func (s *AppointmentService) Get(ctx context.Context, p Principal, id string) (*models.Appointment, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	appt, err := loadAppointment(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if !p.IsAdmin() && !appt.IsParticipant(p.ID) {
		return nil, apperr.Concealed("appointment not found")
	}
	return appt, nil
}

// ListForPrincipal returns the principal's appointments ordered by schedule.
// Admins see every appointment.
func (s *AppointmentService) ListForPrincipal(ctx context.Context, p Principal, status models.AppointmentStatus) ([]models.Appointment, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).
		Preload("RescheduleHistory", func(db *gorm.DB) *gorm.DB { return db.Order("sequence asc") }).
		Order("scheduled_for asc")
	switch p.Role {
	case models.RolePatient:
		query = query.Where("patient_id = ?", p.ID)
	case models.RoleDoctor:
		query = query.Where("doctor_id = ?", p.ID)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}

	appointments := []models.Appointment{}
	if err := query.Find(&appointments).Error; err != nil {
		return nil, apperr.FromStore(err, "appointments")
	}
	return appointments, nil
}

// apply runs the checks in order: existence, authorization, state. The status
// change is a compare-and-swap on the observed status and version, and commits
// together with the history entry and the notification rows. Of two racing
// writers only the first succeeds; the second gets InvalidTransition.
func (s *AppointmentService) apply(ctx context.Context, p Principal, id string, t transition) (*models.Appointment, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}

	appt, err := loadAppointment(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if err := t.actor(p, appt); err != nil {
		return nil, err
	}
	if !t.allows(appt.Status) {
		return nil, apperr.InvalidTransition(fmt.Sprintf("cannot %s an appointment that is %s", t.name, appt.Status))
	}
	if t.guard != nil {
		if err := t.guard(appt); err != nil {
			return nil, err
		}
	}

	var emitted []*models.Notification
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"status":  t.to,
			"version": gorm.Expr("version + 1"),
		}
		for k, v := range t.updates {
			updates[k] = v
		}
		result := tx.Model(&models.Appointment{}).
			Where("id = ? AND status = ? AND version = ?", appt.ID, appt.Status, appt.Version).
			Updates(updates)
		if result.Error != nil {
			return apperr.FromStore(result.Error, "appointment not found")
		}
		if result.RowsAffected == 0 {
			return staleTransition(tx, appt.ID, t.name)
		}

		if t.entry != nil {
			entry := *t.entry
			entry.AppointmentID = appt.ID
			entry.PreviousScheduledFor = appt.ScheduledFor
			entry.Sequence = len(appt.RescheduleHistory) + 1
			if err := tx.Create(&entry).Error; err != nil {
				return apperr.FromStore(err, "reschedule entry")
			}
		}

		if t.within != nil {
			if err := t.within(tx, appt); err != nil {
				return err
			}
		}

		for _, in := range t.notify(appt) {
			n, err := s.notifications.Emit(ctx, tx, in)
			if err != nil {
				return err
			}
			emitted = append(emitted, n)
		}
		return nil
	})
	if err != nil {
		return nil, apperr.FromStore(err, "appointment not found")
	}

	s.notifications.Deliver(ctx, emitted...)
	s.logger.Info().
		Str("appointment_id", appt.ID).
		Str("from", string(appt.Status)).
		Str("to", string(t.to)).
		Str("actor_id", p.ID).
		Msg("appointment " + t.name)

	return loadAppointment(ctx, s.db, appt.ID)
}

// staleTransition explains a compare-and-swap that matched no row.
func staleTransition(tx *gorm.DB, id, action string) error {
	var current models.Appointment
	err := tx.Select("id", "status").First(&current, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound("appointment not found")
	}
	if err != nil {
		return apperr.FromStore(err, "appointment not found")
	}
	return apperr.InvalidTransition(fmt.Sprintf("cannot %s: appointment changed concurrently and is now %s", action, current.Status))
}

// loadAppointment is the existence check every appointment dereference goes
// through.
func loadAppointment(ctx context.Context, db *gorm.DB, id string) (*models.Appointment, error) {
	if id == "" {
		return nil, apperr.InvalidInput("appointment id is required")
	}
	var appt models.Appointment
	err := db.WithContext(ctx).
		Preload("RescheduleHistory", func(db *gorm.DB) *gorm.DB { return db.Order("sequence asc") }).
		First(&appt, "id = ?", id).Error
	if err != nil {
		return nil, apperr.FromStore(err, "appointment not found")
	}
	return &appt, nil
}

func formatSchedule(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04 UTC")
}
