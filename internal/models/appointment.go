package models

import (
	"encoding/json"
	"time"
)

// AppointmentStatus represents the status of an appointment
type AppointmentStatus string

const (
	StatusPending     AppointmentStatus = "pending"
	StatusAccepted    AppointmentStatus = "accepted"
	StatusRejected    AppointmentStatus = "rejected"
	StatusCompleted   AppointmentStatus = "completed"
	StatusCancelled   AppointmentStatus = "cancelled"
	StatusRescheduled AppointmentStatus = "rescheduled"
)

// Terminal reports whether no further transition may leave s.
func (s AppointmentStatus) Terminal() bool {
	switch s {
	case StatusRejected, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Appointment represents a scheduled consultation between a patient and a doctor.
type Appointment struct {
	BaseModel
	PatientID      string            `gorm:"size:36;index;not null" json:"patientId"`
	DoctorID       string            `gorm:"size:36;index;not null" json:"doctorId"`
	ScheduledFor   time.Time         `gorm:"index" json:"scheduledFor"`
	Status         AppointmentStatus `gorm:"size:20;index;not null" json:"status"`
	Reason         string            `gorm:"size:255" json:"reason"`
	Notes          string            `gorm:"type:text" json:"notes,omitempty"`
	PrescriptionID *string           `gorm:"size:36" json:"prescriptionId,omitempty"`
	CompletedAt    *time.Time        `json:"completedAt,omitempty"`
	CancelledAt    *time.Time        `json:"cancelledAt,omitempty"`
	CancelledBy    Role              `gorm:"size:20" json:"cancelledBy,omitempty"`
	Version        int               `gorm:"not null;default:0" json:"version"`

	RescheduleHistory []RescheduleEntry `gorm:"foreignKey:AppointmentID" json:"rescheduleHistory"`
}

// IsParticipant reports whether userID is the patient or the doctor.
func (a *Appointment) IsParticipant(userID string) bool {
	return userID != "" && (userID == a.PatientID || userID == a.DoctorID)
}

// Counterpart returns the participant on the other side of userID.
func (a *Appointment) Counterpart(userID string) string {
	if userID == a.DoctorID {
		return a.PatientID
	}
	return a.DoctorID
}

// MarshalJSON adds the date and time views of ScheduledFor.
func (a Appointment) MarshalJSON() ([]byte, error) {
	type alias Appointment
	history := a.RescheduleHistory
	if history == nil {
		history = []RescheduleEntry{}
	}
	utc := a.ScheduledFor.UTC()
	return json.Marshal(struct {
		alias
		Date              string            `json:"date"`
		Time              string            `json:"time"`
		RescheduleHistory []RescheduleEntry `json:"rescheduleHistory"`
	}{
		alias:             alias(a),
		Date:              utc.Format("2006-01-02"),
		Time:              utc.Format("15:04"),
		RescheduleHistory: history,
	})
}

// RescheduleEntry is one append-only record of a schedule change. Rows are
// inserted once and never updated.
type RescheduleEntry struct {
	BaseModel
	AppointmentID        string    `gorm:"size:36;not null;uniqueIndex:idx_reschedule_seq" json:"appointmentId"`
	Sequence             int       `gorm:"not null;uniqueIndex:idx_reschedule_seq" json:"sequence"`
	PreviousScheduledFor time.Time `json:"previousScheduledFor"`
	NewScheduledFor      time.Time `json:"newScheduledFor"`
	Reason               string    `gorm:"size:255" json:"reason,omitempty"`
	ChangedBy            Role      `gorm:"size:20;not null" json:"changedBy"`
	ChangedByID          string    `gorm:"size:36;not null" json:"changedById"`
	ChangedAt            time.Time `json:"changedAt"`
}

// TableName keeps reschedule history next to its owner.
func (RescheduleEntry) TableName() string {
	return "appointment_reschedules"
}
