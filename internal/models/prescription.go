package models

import (
	"gorm.io/datatypes"
)

// PrescriptionStatus represents the status of a prescription
type PrescriptionStatus string

const (
	PrescriptionActive    PrescriptionStatus = "active"
	PrescriptionCompleted PrescriptionStatus = "completed"
	PrescriptionCancelled PrescriptionStatus = "cancelled"
)

// Medication is one line of a prescription.
type Medication struct {
	Name         string `json:"name" binding:"required"`
	Dosage       string `json:"dosage"`
	Frequency    string `json:"frequency"`
	Duration     string `json:"duration"`
	Instructions string `json:"instructions,omitempty"`
}

// Prescription is issued by a doctor for exactly one appointment.
type Prescription struct {
	BaseModel
	PatientID     string                          `gorm:"size:36;index;not null" json:"patientId"`
	DoctorID      string                          `gorm:"size:36;index;not null" json:"doctorId"`
	AppointmentID string                          `gorm:"size:36;uniqueIndex;not null" json:"appointmentId"`
	Medications   datatypes.JSONSlice[Medication] `json:"medications"`
	Notes         string                          `gorm:"type:text" json:"notes,omitempty"`
	Status        PrescriptionStatus              `gorm:"size:20;index;not null" json:"status"`
}
