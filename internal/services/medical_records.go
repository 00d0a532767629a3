package services

import (
	"context"
	"strings"
	"time"

	"telemed-server/internal/apperr"
	"telemed-server/internal/models"

	"gorm.io/gorm"
)

// RecordInput holds the editable fields of a medical record.
type RecordInput struct {
	PatientID     string
	AppointmentID string
	RecordType    models.MedicalRecordType
	RecordDate    time.Time
	Title         string
	Department    string
	Summary       string
	Details       string
}

// MedicalRecordService stores clinical notes written by doctors about patients
// they treat.
type MedicalRecordService struct {
	db  *gorm.DB
	now func() time.Time
}

// NewMedicalRecordService creates a MedicalRecordService.
func NewMedicalRecordService(db *gorm.DB) *MedicalRecordService {
	return &MedicalRecordService{db: db, now: time.Now}
}

// treats reports whether doctorID has any appointment with patientID.
func (s *MedicalRecordService) treats(ctx context.Context, doctorID, patientID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Appointment{}).
		Where("doctor_id = ? AND patient_id = ?", doctorID, patientID).
		Count(&count).Error
	if err != nil {
		return false, apperr.FromStore(err, "appointments")
	}
	return count > 0, nil
}

// Create adds a record. The author must be an active doctor with at least one
// appointment with the patient; a referenced appointment must be theirs.
func (s *MedicalRecordService) Create(ctx context.Context, p Principal, in RecordInput) (*models.MedicalRecord, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	if !p.ActiveDoctor() {
		return nil, apperr.Forbidden("only active doctors can create medical records")
	}
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Summary) == "" {
		return nil, apperr.InvalidInput("title and summary are required")
	}
	if in.RecordType != "" && !in.RecordType.Valid() {
		return nil, apperr.InvalidInput("unknown record type " + string(in.RecordType))
	}

	patient, err := requireUser(ctx, s.db, in.PatientID, models.RolePatient)
	if err != nil {
		return nil, err
	}

	if in.AppointmentID != "" {
		appt, err := loadAppointment(ctx, s.db, in.AppointmentID)
		if err != nil {
			return nil, err
		}
		if appt.DoctorID != p.ID || appt.PatientID != patient.ID {
			return nil, apperr.Concealed("appointment not found")
		}
	} else {
		ok, err := s.treats(ctx, p.ID, patient.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, apperr.Forbidden("no appointment with this patient")
		}
	}

	recordDate := in.RecordDate
	if recordDate.IsZero() {
		recordDate = s.now()
	}
	recordType := in.RecordType
	if recordType == "" {
		recordType = models.RecordTypeConsultation
	}

	record := &models.MedicalRecord{
		PatientID:     patient.ID,
		DoctorID:      p.ID,
		AppointmentID: in.AppointmentID,
		RecordType:    recordType,
		RecordDate:    recordDate.UTC(),
		Title:         strings.TrimSpace(in.Title),
		Department:    in.Department,
		Summary:       in.Summary,
		Details:       in.Details,
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return nil, apperr.FromStore(err, "medical record")
	}
	return record, nil
}

// canRead is the read rule: the patient, a doctor who treats them, or an admin.
func (s *MedicalRecordService) canRead(ctx context.Context, p Principal, patientID string) (bool, error) {
	switch {
	case p.IsAdmin(), p.ID == patientID:
		return true, nil
	case p.Role == models.RoleDoctor:
		return s.treats(ctx, p.ID, patientID)
	}
	return false, nil
}

// ListForPatient returns a patient's records, newest first.
func (s *MedicalRecordService) ListForPatient(ctx context.Context, p Principal, patientID string) ([]models.MedicalRecord, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	ok, err := s.canRead(ctx, p, patientID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Concealed("patient not found")
	}
	if _, err := requireUser(ctx, s.db, patientID, models.RolePatient); err != nil {
		return nil, err
	}

	records := []models.MedicalRecord{}
	err = s.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("record_date desc").
		Find(&records).Error
	if err != nil {
		return nil, apperr.FromStore(err, "medical records")
	}
	return records, nil
}

// Get returns one record.
func (s *MedicalRecordService) Get(ctx context.Context, p Principal, id string) (*models.MedicalRecord, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	record, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := s.canRead(ctx, p, record.PatientID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.Concealed("medical record not found")
	}
	return record, nil
}

// Update changes the text of a record. Only its author or an admin may.
func (s *MedicalRecordService) Update(ctx context.Context, p Principal, id string, in RecordInput) (*models.MedicalRecord, error) {
	if err := requirePrincipal(p); err != nil {
		return nil, err
	}
	record, err := s.authorOrAdmin(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if in.RecordType != "" && !in.RecordType.Valid() {
		return nil, apperr.InvalidInput("unknown record type " + string(in.RecordType))
	}

	updates := map[string]interface{}{}
	if in.RecordType != "" {
		updates["record_type"] = in.RecordType
	}
	if !in.RecordDate.IsZero() {
		updates["record_date"] = in.RecordDate.UTC()
	}
	if t := strings.TrimSpace(in.Title); t != "" {
		updates["title"] = t
	}
	if in.Department != "" {
		updates["department"] = in.Department
	}
	if in.Summary != "" {
		updates["summary"] = in.Summary
	}
	if in.Details != "" {
		updates["details"] = in.Details
	}
	if len(updates) == 0 {
		return record, nil
	}
	if err := s.db.WithContext(ctx).Model(&models.MedicalRecord{}).Where("id = ?", record.ID).Updates(updates).Error; err != nil {
		return nil, apperr.FromStore(err, "medical record not found")
	}
	return s.load(ctx, record.ID)
}

// Delete removes a record. Only its author or an admin may.
func (s *MedicalRecordService) Delete(ctx context.Context, p Principal, id string) error {
	if err := requirePrincipal(p); err != nil {
		return err
	}
	record, err := s.authorOrAdmin(ctx, p, id)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&models.MedicalRecord{}, "id = ?", record.ID).Error; err != nil {
		return apperr.FromStore(err, "medical record not found")
	}
	return nil
}

func (s *MedicalRecordService) authorOrAdmin(ctx context.Context, p Principal, id string) (*models.MedicalRecord, error) {
	record, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.IsAdmin() {
		return record, nil
	}
	if p.ID != record.DoctorID && p.ID != record.PatientID {
		return nil, apperr.Concealed("medical record not found")
	}
	if p.ID != record.DoctorID || !p.ActiveDoctor() {
		return nil, apperr.Forbidden("only the authoring doctor can change this record")
	}
	return record, nil
}

func (s *MedicalRecordService) load(ctx context.Context, id string) (*models.MedicalRecord, error) {
	var record models.MedicalRecord
	if err := s.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		return nil, apperr.FromStore(err, "medical record not found")
	}
	return &record, nil
}
