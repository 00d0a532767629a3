package services

import (
	"context"
	"testing"
	"time"

	"telemed-server/internal/apperr"
	"telemed-server/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var amoxicillin = []models.Medication{{
	Name:      "Amoxicillin",
	Dosage:    "500mg",
	Frequency: "3x daily",
	Duration:  "7 days",
}}

func TestPrescriptionService_IssueLinksBothWays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.seedAppointment(t, models.StatusAccepted)

	rx, err := f.prescriptions.Issue(ctx, f.doctor, IssueInput{AppointmentID: appt.ID, Medications: amoxicillin, Notes: "with food"})
	require.NoError(t, err)
	assert.Equal(t, models.PrescriptionActive, rx.Status)
	assert.Equal(t, appt.ID, rx.AppointmentID)
	assert.Equal(t, f.patient.ID, rx.PatientID)

	reloaded, err := f.appointments.Get(ctx, f.patient, appt.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.PrescriptionID)
	assert.Equal(t, rx.ID, *reloaded.PrescriptionID)

	stored, err := f.prescriptions.Get(ctx, f.patient, rx.ID)
	require.NoError(t, err)
	require.Len(t, stored.Medications, 1)
	assert.Equal(t, "Amoxicillin", stored.Medications[0].Name)

	notes := f.notificationsFor(t, f.patient.ID)
	require.Len(t, notes, 1)
	assert.Equal(t, models.NotificationPrescriptionIssued, notes[0].Type)
}

func TestPrescriptionService_UnknownAppointment(t *testing.T) {
	f := newFixture(t)

	_, err := f.prescriptions.Issue(context.Background(), f.doctor, IssueInput{AppointmentID: "missing", Medications: amoxicillin})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	var count int64
	require.NoError(t, f.db.Model(&models.Prescription{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestPrescriptionService_IssueOnlyOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.seedAppointment(t, models.StatusCompleted)

	_, err := f.prescriptions.Issue(ctx, f.doctor, IssueInput{AppointmentID: appt.ID, Medications: amoxicillin})
	require.NoError(t, err)

	_, err = f.prescriptions.Issue(ctx, f.doctor, IssueInput{AppointmentID: appt.ID, Medications: amoxicillin})
	assert.True(t, apperr.Is(err, apperr.KindInvalidTransition))

	var count int64
	require.NoError(t, f.db.Model(&models.Prescription{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestPrescriptionService_IssueChecks(t *testing.T) {
	ctx := context.Background()

	t.Run("wrong doctor", func(t *testing.T) {
		f := newFixture(t)
		appt := f.seedAppointment(t, models.StatusAccepted)
		_, err := f.prescriptions.Issue(ctx, f.other, IssueInput{AppointmentID: appt.ID, Medications: amoxicillin})
		assert.True(t, apperr.Is(err, apperr.KindForbidden))
	})
	t.Run("patient", func(t *testing.T) {
		f := newFixture(t)
		appt := f.seedAppointment(t, models.StatusAccepted)
		_, err := f.prescriptions.Issue(ctx, f.patient, IssueInput{AppointmentID: appt.ID, Medications: amoxicillin})
		assert.True(t, apperr.Is(err, apperr.KindForbidden))
	})
	t.Run("pending appointment", func(t *testing.T) {
		f := newFixture(t)
		appt := f.seedAppointment(t, models.StatusPending)
		_, err := f.prescriptions.Issue(ctx, f.doctor, IssueInput{AppointmentID: appt.ID, Medications: amoxicillin})
		assert.True(t, apperr.Is(err, apperr.KindInvalidTransition))
	})
	t.Run("no medications", func(t *testing.T) {
		f := newFixture(t)
		appt := f.seedAppointment(t, models.StatusAccepted)
		_, err := f.prescriptions.Issue(ctx, f.doctor, IssueInput{AppointmentID: appt.ID})
		assert.True(t, apperr.Is(err, apperr.KindInvalidInput))
	})
	t.Run("blank medication name", func(t *testing.T) {
		f := newFixture(t)
		appt := f.seedAppointment(t, models.StatusAccepted)
		_, err := f.prescriptions.Issue(ctx, f.doctor, IssueInput{AppointmentID: appt.ID, Medications: []models.Medication{{Name: "  "}}})
		assert.True(t, apperr.Is(err, apperr.KindInvalidInput))

		var count int64
		require.NoError(t, f.db.Model(&models.Prescription{}).Count(&count).Error)
		assert.Zero(t, count)
	})
}

func TestPrescriptionService_UpdateStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.seedAppointment(t, models.StatusAccepted)
	rx, err := f.prescriptions.Issue(ctx, f.doctor, IssueInput{AppointmentID: appt.ID, Medications: amoxicillin})
	require.NoError(t, err)

	_, err = f.prescriptions.UpdateStatus(ctx, f.patient, rx.ID, models.PrescriptionCompleted)
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	_, err = f.prescriptions.UpdateStatus(ctx, f.doctor, rx.ID, models.PrescriptionActive)
	assert.True(t, apperr.Is(err, apperr.KindInvalidInput))

	got, err := f.prescriptions.UpdateStatus(ctx, f.doctor, rx.ID, models.PrescriptionCompleted)
	require.NoError(t, err)
	assert.Equal(t, models.PrescriptionCompleted, got.Status)

	_, err = f.prescriptions.UpdateStatus(ctx, f.doctor, rx.ID, models.PrescriptionCancelled)
	assert.True(t, apperr.Is(err, apperr.KindInvalidTransition))
}

func TestPrescriptionService_List(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.seedAppointment(t, models.StatusAccepted)
	_, err := f.prescriptions.Issue(ctx, f.doctor, IssueInput{AppointmentID: appt.ID, Medications: amoxicillin})
	require.NoError(t, err)

	mine, err := f.prescriptions.ListForPrincipal(ctx, f.patient, "")
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	theirs, err := f.prescriptions.ListForPrincipal(ctx, f.other, "")
	require.NoError(t, err)
	assert.Empty(t, theirs)

	all, err := f.prescriptions.ListForPrincipal(ctx, f.admin, models.PrescriptionActive)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestPrescriptionService_RescheduledAppointmentKeepsPrescription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.seedAppointment(t, models.StatusAccepted)
	_, err := f.prescriptions.Issue(ctx, f.doctor, IssueInput{AppointmentID: appt.ID, Medications: amoxicillin})
	require.NoError(t, err)

	moved, err := f.appointments.Reschedule(ctx, f.patient, appt.ID, RescheduleInput{ScheduledFor: f.now.Add(96 * time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, models.StatusRescheduled, moved.Status)
	require.NotNil(t, moved.PrescriptionID)

	_, err = f.appointments.Reject(ctx, f.doctor, appt.ID, "no longer needed")
	assert.True(t, apperr.Is(err, apperr.KindInvalidTransition))
	assert.Equal(t, models.StatusRescheduled, f.status(t, appt.ID))

	accepted, err := f.appointments.Accept(ctx, f.doctor, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, accepted.Status)
}

func TestPrescriptionService_CancelVoidsActivePrescription(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	appt := f.seedAppointment(t, models.StatusAccepted)
	rx, err := f.prescriptions.Issue(ctx, f.doctor, IssueInput{AppointmentID: appt.ID, Medications: amoxicillin})
	require.NoError(t, err)

	_, err = f.appointments.Cancel(ctx, f.patient, appt.ID, "")
	require.NoError(t, err)

	got, err := f.prescriptions.Get(ctx, f.patient, rx.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PrescriptionCancelled, got.Status)
}
