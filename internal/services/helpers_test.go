package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"telemed-server/internal/models"
	"telemed-server/internal/realtime"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// recordingPublisher keeps every event it is handed and can be made to fail.
type recordingPublisher struct {
	mu     sync.Mutex
	events []realtime.Event
	err    error
}

func (r *recordingPublisher) Publish(_ context.Context, e realtime.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, e)
	return nil
}

func (r *recordingPublisher) Events() []realtime.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]realtime.Event(nil), r.events...)
}

type fixture struct {
	db            *gorm.DB
	publisher     *recordingPublisher
	notifications *NotificationService
	appointments  *AppointmentService
	prescriptions *PrescriptionService
	records       *MedicalRecordService
	now           time.Time

	patient Principal
	doctor  Principal
	other   Principal
	admin   Principal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := models.OpenDB(models.DatabaseConfig{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:services_%d?mode=memory&cache=shared", time.Now().UnixNano()),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, models.Migrate(db))

	f := &fixture{
		db:        db,
		publisher: &recordingPublisher{},
		now:       time.Date(2030, 1, 10, 8, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }

	f.notifications = NewNotificationService(db, f.publisher, zerolog.Nop())
	f.notifications.now = clock
	f.appointments = NewAppointmentService(db, f.notifications, zerolog.Nop())
	f.appointments.now = clock
	f.prescriptions = NewPrescriptionService(db, f.notifications, zerolog.Nop())
	f.records = NewMedicalRecordService(db)
	f.records.now = clock

	f.patient = f.seedUser(t, "patient@example.com", models.RolePatient, models.UserStatusActive)
	f.doctor = f.seedUser(t, "doctor@example.com", models.RoleDoctor, models.UserStatusActive)
	f.other = f.seedUser(t, "other@example.com", models.RoleDoctor, models.UserStatusActive)
	f.admin = f.seedUser(t, "admin@example.com", models.RoleAdmin, models.UserStatusActive)
	return f
}

func (f *fixture) seedUser(t *testing.T, email string, role models.Role, status models.UserStatus) Principal {
	t.Helper()
	u := models.User{
		Email:     email,
		Password:  "x",
		FirstName: string(role),
		LastName:  "Test",
		Role:      role,
		Status:    status,
	}
	require.NoError(t, f.db.Create(&u).Error)
	return Principal{ID: u.ID, Role: role, Status: status}
}

// seedAppointment inserts an appointment directly in the given status.
func (f *fixture) seedAppointment(t *testing.T, status models.AppointmentStatus) *models.Appointment {
	t.Helper()
	appt := &models.Appointment{
		PatientID:    f.patient.ID,
		DoctorID:     f.doctor.ID,
		ScheduledFor: f.now.Add(48 * time.Hour),
		Status:       status,
		Reason:       "checkup",
	}
	require.NoError(t, f.db.Create(appt).Error)
	return appt
}

func (f *fixture) notificationsFor(t *testing.T, userID string) []models.Notification {
	t.Helper()
	var out []models.Notification
	require.NoError(t, f.db.Where("user_id = ?", userID).Order("created_at asc").Find(&out).Error)
	return out
}

func (f *fixture) status(t *testing.T, id string) models.AppointmentStatus {
	t.Helper()
	var appt models.Appointment
	require.NoError(t, f.db.First(&appt, "id = ?", id).Error)
	return appt.Status
}
