package patient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/dphilippe/vitality-server/cmd/models"
	"github.com/dphilippe/vitality-server/cmd/utils"
	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestHandler(t *testing.T) (*mux.Router, *gorm.DB, *miniredis.Miniredis) {
	t.Helper()
	t.Setenv("SECRET_KEY", "test-secret")
	t.Setenv("STREAM_API_KEY", "")

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&models.Patient{}))

	mr := miniredis.RunT(t)
	otps := NewOTPStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	router := mux.NewRouter()
	NewHandler(db, otps).RegisterRoutes(router)
	return router, db, mr
}

func postJSON(t *testing.T, router *mux.Router, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest("POST", path, &buf)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestGetCountries(t *testing.T) {
	router, _, _ := newTestHandler(t)

	req := httptest.NewRequest("GET", "/countries", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var countries []utils.Country
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &countries))
	require.Len(t, countries, 5)
	assert.Equal(t, "+961", countries[0].Code)
	assert.Equal(t, "LEB", countries[0].Abbr)
}

func TestRegisterValidation(t *testing.T) {
	router, _, _ := newTestHandler(t)

	tests := []struct {
		name string
		body map[string]string
		want int
	}{
		{"valid", map[string]string{"full_name": "Jad Khoury", "country_code": "+961", "phone": "70123456"}, http.StatusCreated},
		{"name too short", map[string]string{"full_name": "J", "country_code": "+961", "phone": "70123457"}, http.StatusBadRequest},
		{"name all whitespace", map[string]string{"full_name": "   ", "country_code": "+961", "phone": "70123458"}, http.StatusBadRequest},
		{"unknown country", map[string]string{"full_name": "Jad Khoury", "country_code": "+49", "phone": "70123459"}, http.StatusBadRequest},
		{"phone too short", map[string]string{"full_name": "Jad Khoury", "country_code": "+961", "phone": "70123"}, http.StatusBadRequest},
		{"phone with letters", map[string]string{"full_name": "Jad Khoury", "country_code": "+961", "phone": "70ab3456"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := postJSON(t, router, "/patients/register", tt.body)
			assert.Equal(t, tt.want, rr.Code, rr.Body.String())
		})
	}
}

func TestRegisterDuplicatePhone(t *testing.T) {
	router, _, _ := newTestHandler(t)

	body := map[string]string{"full_name": "Jad Khoury", "country_code": "+961", "phone": "70123456"}
	rr := postJSON(t, router, "/patients/register", body)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = postJSON(t, router, "/patients/register", body)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Contains(t, rr.Body.String(), "already in use")
}

func TestRegisterReturnsFileID(t *testing.T) {
	router, _, _ := newTestHandler(t)

	rr := postJSON(t, router, "/patients/register", map[string]string{
		"full_name": "Nour Haddad", "country_code": "+961", "phone": "70123456",
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	fileID, _ := body["file_id"].(string)
	assert.Contains(t, fileID, "NH-LEB-")
	assert.NotZero(t, body["patient_id"])
}

func TestOTPFlow(t *testing.T) {
	router, db, mr := newTestHandler(t)

	rr := postJSON(t, router, "/patients/register", map[string]string{
		"full_name": "Jad Khoury", "country_code": "+961", "phone": "70123456",
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	// Unknown phone cannot request a code.
	rr = postJSON(t, router, "/patients/otp/request", map[string]string{"phone": "99999999"})
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = postJSON(t, router, "/patients/otp/request", map[string]string{"phone": "70123456"})
	require.Equal(t, http.StatusOK, rr.Code)

	code, err := mr.Get("otp:70123456")
	require.NoError(t, err)

	// Wrong code is rejected and leaves the patient unverified.
	wrong := "0000"
	if code == wrong {
		wrong = "0001"
	}
	rr = postJSON(t, router, "/patients/otp/verify", map[string]string{"phone": "70123456", "code": wrong})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = postJSON(t, router, "/patients/otp/verify", map[string]string{"phone": "70123456", "code": code})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.NotEmpty(t, body["access_token"])

	var patient models.Patient
	require.NoError(t, db.Where("phone = ?", "70123456").First(&patient).Error)
	assert.True(t, patient.PhoneVerified)

	// The code is single use.
	rr = postJSON(t, router, "/patients/otp/verify", map[string]string{"phone": "70123456", "code": code})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestGetPatientOwnership(t *testing.T) {
	router, db, _ := newTestHandler(t)

	patient := models.Patient{FullName: "Jad Khoury", CountryCode: "+961", Phone: "70123456"}
	require.NoError(t, db.Create(&patient).Error)

	token, err := utils.GenerateJWT(patient.ID, utils.RolePatient, 60)
	require.NoError(t, err)
	otherToken, err := utils.GenerateJWT(patient.ID+1, utils.RolePatient, 60)
	require.NoError(t, err)
	practitionerToken, err := utils.GenerateJWT(1, utils.RolePractitioner, 60)
	require.NoError(t, err)

	get := func(token string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", fmt.Sprintf("/patients/%d", patient.ID), nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	assert.Equal(t, http.StatusOK, get(token).Code)
	assert.Equal(t, http.StatusForbidden, get(otherToken).Code)
	assert.Equal(t, http.StatusOK, get(practitionerToken).Code)
}
