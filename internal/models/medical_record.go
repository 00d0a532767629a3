package models

import (
	"time"
)

// MedicalRecordType represents the type of medical record
type MedicalRecordType string

const (
	RecordTypeConsultation     MedicalRecordType = "ConsultationNote"
	RecordTypeLabResult        MedicalRecordType = "LabResult"
	RecordTypeImagingReport    MedicalRecordType = "ImagingReport"
	RecordTypeVaccination      MedicalRecordType = "VaccinationRecord"
	RecordTypeAllergy          MedicalRecordType = "AllergyRecord"
	RecordTypeDischargeSummary MedicalRecordType = "DischargeSummary"
)

// Valid reports whether t is a known record type.
func (t MedicalRecordType) Valid() bool {
	switch t {
	case RecordTypeConsultation, RecordTypeLabResult, RecordTypeImagingReport,
		RecordTypeVaccination, RecordTypeAllergy, RecordTypeDischargeSummary:
		return true
	}
	return false
}

// MedicalRecord represents a patient's medical record
type MedicalRecord struct {
	BaseModel
	PatientID     string            `gorm:"size:36;index;not null" json:"patientId"`
	DoctorID      string            `gorm:"size:36;index;not null" json:"doctorId"`
	AppointmentID string            `gorm:"size:36;index" json:"appointmentId,omitempty"`
	RecordType    MedicalRecordType `gorm:"size:50" json:"recordType"`
	RecordDate    time.Time         `json:"recordDate"`
	Title         string            `gorm:"size:255;not null" json:"title"`
	Department    string            `gorm:"size:100" json:"department,omitempty"`
	Summary       string            `gorm:"type:text" json:"summary"`
	Details       string            `gorm:"type:text" json:"details,omitempty"`
}

// TableName matches the collection name used across the app.
func (MedicalRecord) TableName() string {
	return "medical_records"
}
