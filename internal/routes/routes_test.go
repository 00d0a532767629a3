package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"telemed-server/internal/config"
	"telemed-server/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type api struct {
	t      *testing.T
	db     *gorm.DB
	router *gin.Engine
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

func newAPI(t *testing.T) *api {
	t.Helper()
	db, err := models.OpenDB(models.DatabaseConfig{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:routes_%d?mode=memory&cache=shared", time.Now().UnixNano()),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, models.Migrate(db))

	cfg := &config.Config{
		Origin:                    "*",
		Environment:               "test",
		JWTSecret:                 "test-secret",
		JWTRefreshSecret:          "test-refresh",
		JWTExpirationMinutes:      5,
		JWTRefreshExpirationHours: 1,
	}
	router := gin.New()
	SetupRoutes(router, Deps{DB: db, Config: cfg, Logger: zerolog.Nop()})
	return &api{t: t, db: db, router: router}
}

func (a *api) do(method, path, token string, body interface{}) (int, envelope) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w.Code, env
}

func (a *api) decode(env envelope, v interface{}) {
	a.t.Helper()
	require.NoError(a.t, json.Unmarshal(env.Data, v))
}

// register creates an account through the API and logs it in.
func (a *api) register(email, role string) (id, token string) {
	a.t.Helper()
	code, env := a.do(http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"firstName": "Test", "lastName": role, "email": email, "password": "password123", "role": role,
	})
	require.Equal(a.t, http.StatusCreated, code, env.Error)
	return a.login(email)
}

type session struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	User         struct {
		ID string `json:"id"`
	} `json:"user"`
}

func (a *api) loginSession(email string) session {
	a.t.Helper()
	code, env := a.do(http.MethodPost, "/api/v1/auth/login", "", gin.H{"email": email, "password": "password123"})
	require.Equal(a.t, http.StatusOK, code, env.Error)
	var out session
	a.decode(env, &out)
	require.NotEmpty(a.t, out.AccessToken)
	require.NotEmpty(a.t, out.RefreshToken)
	return out
}

func (a *api) login(email string) (id, token string) {
	a.t.Helper()
	s := a.loginSession(email)
	return s.User.ID, s.AccessToken
}

func (a *api) seedAdmin(email string) (id, token string) {
	a.t.Helper()
	admin := models.User{Email: email, Role: models.RoleAdmin, Status: models.UserStatusActive, FirstName: "Ada", LastName: "Admin"}
	require.NoError(a.t, admin.SetPassword("password123"))
	require.NoError(a.t, a.db.Create(&admin).Error)
	return a.login(email)
}

func TestHealth(t *testing.T) {
	a := newAPI(t)
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"UP"}`, w.Body.String())
}

func TestAppointmentLifecycleOverHTTP(t *testing.T) {
	a := newAPI(t)
	patientID, patientTok := a.register("pat@example.com", "patient")
	doctorID, doctorTok := a.register("doc@example.com", "doctor")
	_, strangerTok := a.register("stranger@example.com", "patient")
	_, adminTok := a.seedAdmin("admin@example.com")

	// A pending doctor cannot act on appointments until approved.
	code, env := a.do(http.MethodPost, "/api/v1/appointments", patientTok, gin.H{
		"doctorId": doctorID, "scheduledFor": time.Now().Add(72 * time.Hour), "reason": "rash",
	})
	require.Equal(t, http.StatusBadRequest, code, env.Error)
	assert.Equal(t, "INVALID_INPUT", env.Code)

	code, env = a.do(http.MethodPatch, "/api/v1/users/"+doctorID+"/status", adminTok, gin.H{"status": "active"})
	require.Equal(t, http.StatusOK, code, env.Error)
	code, env = a.do(http.MethodPatch, "/api/v1/users/"+doctorID+"/status", patientTok, gin.H{"status": "active"})
	assert.Equal(t, http.StatusForbidden, code)

	code, env = a.do(http.MethodPost, "/api/v1/appointments", patientTok, gin.H{
		"doctorId": doctorID, "scheduledFor": time.Now().Add(72 * time.Hour), "reason": "rash",
	})
	require.Equal(t, http.StatusCreated, code, env.Error)
	var appt models.Appointment
	a.decode(env, &appt)
	assert.Equal(t, models.StatusPending, appt.Status)
	assert.Equal(t, patientID, appt.PatientID)

	code, env = a.do(http.MethodPatch, "/api/v1/appointments/"+appt.ID+"/accept", patientTok, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, env = a.do(http.MethodPatch, "/api/v1/appointments/"+appt.ID+"/accept", doctorTok, nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	a.decode(env, &appt)
	assert.Equal(t, models.StatusAccepted, appt.Status)

	code, env = a.do(http.MethodPatch, "/api/v1/appointments/"+appt.ID+"/accept", doctorTok, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, "INVALID_TRANSITION", env.Code)

	// A stranger sees exactly what a missing appointment looks like.
	hiddenCode, hidden := a.do(http.MethodGet, "/api/v1/appointments/"+appt.ID, strangerTok, nil)
	missingCode, missing := a.do(http.MethodGet, "/api/v1/appointments/does-not-exist", strangerTok, nil)
	assert.Equal(t, http.StatusNotFound, hiddenCode)
	assert.Equal(t, missingCode, hiddenCode)
	assert.Equal(t, missing, hidden)

	code, env = a.do(http.MethodPost, "/api/v1/prescriptions", doctorTok, gin.H{
		"appointmentId": appt.ID,
		"medications":   []gin.H{{"name": "Hydrocortisone", "dosage": "1%", "frequency": "2x daily", "duration": "5 days"}},
	})
	require.Equal(t, http.StatusCreated, code, env.Error)

	code, env = a.do(http.MethodGet, "/api/v1/notifications/unread-count", patientTok, nil)
	require.Equal(t, http.StatusOK, code)
	var count struct {
		Count int64 `json:"count"`
	}
	a.decode(env, &count)
	assert.Equal(t, int64(2), count.Count)

	code, env = a.do(http.MethodPatch, "/api/v1/notifications/read-all", patientTok, nil)
	require.Equal(t, http.StatusOK, code)
	var updated struct {
		Updated int64 `json:"updated"`
	}
	a.decode(env, &updated)
	assert.Equal(t, int64(2), updated.Updated)

	_, env = a.do(http.MethodPatch, "/api/v1/notifications/read-all", patientTok, nil)
	a.decode(env, &updated)
	assert.Equal(t, int64(0), updated.Updated)

	code, env = a.do(http.MethodPatch, "/api/v1/appointments/"+appt.ID+"/complete", doctorTok, gin.H{"notes": "resolved"})
	require.Equal(t, http.StatusOK, code, env.Error)
	a.decode(env, &appt)
	assert.Equal(t, models.StatusCompleted, appt.Status)
	assert.NotNil(t, appt.CompletedAt)
}

func TestRescheduleOverHTTP(t *testing.T) {
	a := newAPI(t)
	_, patientTok := a.register("pat@example.com", "patient")
	doctorID, _ := a.register("doc@example.com", "doctor")
	require.NoError(t, a.db.Model(&models.User{}).Where("id = ?", doctorID).Update("status", models.UserStatusActive).Error)

	code, env := a.do(http.MethodPost, "/api/v1/appointments", patientTok, gin.H{
		"doctorId": doctorID, "scheduledFor": time.Now().Add(24 * time.Hour), "reason": "check",
	})
	require.Equal(t, http.StatusCreated, code, env.Error)
	var appt models.Appointment
	a.decode(env, &appt)

	code, env = a.do(http.MethodPatch, "/api/v1/appointments/"+appt.ID+"/reschedule", patientTok, gin.H{
		"scheduledFor": time.Now().Add(-time.Hour),
	})
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = a.do(http.MethodPatch, "/api/v1/appointments/"+appt.ID+"/reschedule", patientTok, gin.H{
		"scheduledFor": time.Now().Add(96 * time.Hour), "reason": "travel",
	})
	require.Equal(t, http.StatusOK, code, env.Error)
	a.decode(env, &appt)
	assert.Equal(t, models.StatusRescheduled, appt.Status)
	require.Len(t, appt.RescheduleHistory, 1)
	assert.Equal(t, "travel", appt.RescheduleHistory[0].Reason)
}

func TestValidationErrors(t *testing.T) {
	a := newAPI(t)
	_, patientTok := a.register("pat@example.com", "patient")

	code, env := a.do(http.MethodPost, "/api/v1/appointments", patientTok, gin.H{"reason": "x"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.NotEmpty(t, env.Error)

	code, _ = a.do(http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"firstName": "A", "lastName": "B", "email": "x@example.com", "password": "password123", "role": "admin",
	})
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = a.do(http.MethodGet, "/api/v1/appointments", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestRefreshTokenRotation(t *testing.T) {
	a := newAPI(t)
	a.register("pat@example.com", "patient")
	s := a.loginSession("pat@example.com")

	code, env := a.do(http.MethodPost, "/api/v1/auth/refresh-token", "", gin.H{"refreshToken": s.RefreshToken})
	require.Equal(t, http.StatusOK, code, env.Error)
	var rotated session
	a.decode(env, &rotated)
	require.NotEmpty(t, rotated.RefreshToken)
	assert.NotEqual(t, s.RefreshToken, rotated.RefreshToken)

	code, _ = a.do(http.MethodPost, "/api/v1/auth/refresh-token", "", gin.H{"refreshToken": s.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, env = a.do(http.MethodPost, "/api/v1/auth/refresh-token", "", gin.H{"refreshToken": rotated.RefreshToken})
	assert.Equal(t, http.StatusOK, code, env.Error)
}

func TestRefreshAfterLogout(t *testing.T) {
	a := newAPI(t)
	a.register("pat@example.com", "patient")
	s := a.loginSession("pat@example.com")

	code, env := a.do(http.MethodPost, "/api/v1/auth/logout", s.AccessToken, gin.H{"refreshToken": s.RefreshToken})
	require.Equal(t, http.StatusOK, code, env.Error)

	code, _ = a.do(http.MethodPost, "/api/v1/auth/logout", s.AccessToken, gin.H{"refreshToken": s.RefreshToken})
	assert.Equal(t, http.StatusOK, code)

	code, _ = a.do(http.MethodPost, "/api/v1/auth/refresh-token", "", gin.H{"refreshToken": s.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestRefreshForSuspendedUser(t *testing.T) {
	a := newAPI(t)
	id, _ := a.register("pat@example.com", "patient")
	s := a.loginSession("pat@example.com")
	require.NoError(t, a.db.Model(&models.User{}).Where("id = ?", id).Update("status", models.UserStatusSuspended).Error)

	code, _ := a.do(http.MethodPost, "/api/v1/auth/refresh-token", "", gin.H{"refreshToken": s.RefreshToken})
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = a.do(http.MethodGet, "/api/v1/auth/profile", s.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestDuplicateRegistration(t *testing.T) {
	a := newAPI(t)
	a.register("pat@example.com", "patient")

	code, env := a.do(http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"firstName": "A", "lastName": "B", "email": "PAT@example.com", "password": "password123", "role": "patient",
	})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_INPUT", env.Code)
}

func TestAdminUserManagement(t *testing.T) {
	a := newAPI(t)
	_, adminTok := a.seedAdmin("admin@example.com")
	_, patientTok := a.register("pat@example.com", "patient")

	newDoctor := gin.H{
		"firstName": "Greg", "lastName": "House", "email": "house@example.com",
		"password": "password123", "role": "doctor", "specialization": "diagnostics",
	}
	code, _ := a.do(http.MethodPost, "/api/v1/users", patientTok, newDoctor)
	assert.Equal(t, http.StatusForbidden, code)

	code, env := a.do(http.MethodPost, "/api/v1/users", adminTok, newDoctor)
	require.Equal(t, http.StatusCreated, code, env.Error)
	var created models.UserSanitized
	a.decode(env, &created)
	assert.Equal(t, models.UserStatusActive, created.Status)

	code, env = a.do(http.MethodPost, "/api/v1/users", adminTok, newDoctor)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "INVALID_INPUT", env.Code)

	code, env = a.do(http.MethodGet, "/api/v1/users/"+created.ID, adminTok, nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	code, _ = a.do(http.MethodGet, "/api/v1/users/"+created.ID, patientTok, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = a.do(http.MethodGet, "/api/v1/users/missing", adminTok, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestDoctorDirectory(t *testing.T) {
	a := newAPI(t)
	patientID, patientTok := a.register("pat@example.com", "patient")
	a.register("other@example.com", "patient")
	doctorID, doctorTok := a.register("doc@example.com", "doctor")
	a.register("pending@example.com", "doctor")
	require.NoError(t, a.db.Model(&models.User{}).Where("id = ?", doctorID).
		Updates(map[string]interface{}{"status": models.UserStatusActive, "specialization": "dermatology"}).Error)

	var doctors []models.UserSanitized
	code, env := a.do(http.MethodGet, "/api/v1/users/doctors", patientTok, nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	a.decode(env, &doctors)
	require.Len(t, doctors, 1)
	assert.Equal(t, doctorID, doctors[0].ID)

	_, env = a.do(http.MethodGet, "/api/v1/users/doctors?specialization=cardiology", patientTok, nil)
	a.decode(env, &doctors)
	assert.Empty(t, doctors)

	code, env = a.do(http.MethodPost, "/api/v1/appointments", patientTok, gin.H{
		"doctorId": doctorID, "scheduledFor": time.Now().Add(48 * time.Hour), "reason": "mole",
	})
	require.Equal(t, http.StatusCreated, code, env.Error)

	var patients []models.UserSanitized
	code, env = a.do(http.MethodGet, "/api/v1/users/doctor-patients", doctorTok, nil)
	require.Equal(t, http.StatusOK, code, env.Error)
	a.decode(env, &patients)
	require.Len(t, patients, 1)
	assert.Equal(t, patientID, patients[0].ID)

	code, _ = a.do(http.MethodGet, "/api/v1/users/doctor-patients", patientTok, nil)
	assert.Equal(t, http.StatusForbidden, code)
}
