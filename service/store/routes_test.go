package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/dphilippe/vitality-server/cmd/models"
	"github.com/dphilippe/vitality-server/cmd/utils"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestHandler(t *testing.T) (*mux.Router, *gorm.DB, *models.Patient) {
	t.Helper()
	t.Setenv("SECRET_KEY", "test-secret")

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(
		&models.Patient{},
		&models.Supplement{},
		&models.Order{},
		&models.OrderItem{},
		&models.PaymentReceipt{},
		&models.Transaction{},
	))

	patient := models.Patient{FullName: "Jad Khoury", CountryCode: "+961", Phone: "70123456"}
	require.NoError(t, db.Create(&patient).Error)

	router := mux.NewRouter()
	NewHandler(db).RegisterRoutes(router)
	return router, db, &patient
}

func seedSupplements(t *testing.T, db *gorm.DB) []models.Supplement {
	t.Helper()
	supplements := []models.Supplement{
		{Name: "Vitamin D3", Type: "Pill", Price: 20, WeightGrams: 100},
		{Name: "Omega 3", Type: "Liquid", Price: 35, WeightGrams: 250},
	}
	for i := range supplements {
		require.NoError(t, db.Create(&supplements[i]).Error)
	}
	return supplements
}

func authedDo(t *testing.T, router *mux.Router, userID uint, role, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	token, err := utils.GenerateJWT(userID, role, 60)
	require.NoError(t, err)

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestGetSupplements(t *testing.T) {
	router, db, _ := newTestHandler(t)
	seedSupplements(t, db)

	req := httptest.NewRequest("GET", "/supplements", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var supplements []models.Supplement
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &supplements))
	require.Len(t, supplements, 2)
	assert.Equal(t, "Omega 3", supplements[0].Name)
}

func TestCreateOrderComputesTotals(t *testing.T) {
	router, db, patient := newTestHandler(t)
	supplements := seedSupplements(t, db)

	rr := authedDo(t, router, patient.ID, utils.RolePatient, "POST",
		fmt.Sprintf("/patients/%d/orders", patient.ID), map[string]interface{}{
			"country":        "FR",
			"payment_method": "Whish",
			"items": []map[string]interface{}{
				{"supplement_id": supplements[0].ID, "quantity": 2},
				{"supplement_id": supplements[1].ID, "quantity": 1},
			},
		})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var order models.Order
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &order))

	// Subtotal 2*20 + 35, weight 2*100g + 250g = 0.45kg to France.
	assert.InDelta(t, 75, order.Subtotal, 1e-9)
	assert.InDelta(t, 15+0.45*10, order.ShippingFee, 1e-9)
	assert.InDelta(t, order.Subtotal+order.ShippingFee, order.Total, 1e-9)
	assert.Equal(t, models.OrderPendingPayment, order.Status)
	require.Len(t, order.Items, 2)
}

func TestCreateOrderValidation(t *testing.T) {
	router, db, patient := newTestHandler(t)
	supplements := seedSupplements(t, db)
	path := fmt.Sprintf("/patients/%d/orders", patient.ID)
	item := map[string]interface{}{"supplement_id": supplements[0].ID, "quantity": 1}

	// Empty cart.
	rr := authedDo(t, router, patient.ID, utils.RolePatient, "POST", path, map[string]interface{}{
		"country": "LB", "payment_method": "Whish", "items": []map[string]interface{}{},
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// Bad payment method.
	rr = authedDo(t, router, patient.ID, utils.RolePatient, "POST", path, map[string]interface{}{
		"country": "LB", "payment_method": "Cash", "items": []map[string]interface{}{item},
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// Unshippable destination.
	rr = authedDo(t, router, patient.ID, utils.RolePatient, "POST", path, map[string]interface{}{
		"country": "DE", "payment_method": "Whish", "items": []map[string]interface{}{item},
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// Unknown supplement.
	rr = authedDo(t, router, patient.ID, utils.RolePatient, "POST", path, map[string]interface{}{
		"country": "LB", "payment_method": "Whish",
		"items": []map[string]interface{}{{"supplement_id": 999, "quantity": 1}},
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// Zero quantity.
	rr = authedDo(t, router, patient.ID, utils.RolePatient, "POST", path, map[string]interface{}{
		"country": "LB", "payment_method": "Whish",
		"items": []map[string]interface{}{{"supplement_id": supplements[0].ID, "quantity": 0}},
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	// Another patient's order list is off limits.
	rr = authedDo(t, router, patient.ID+1, utils.RolePatient, "GET", path, nil)
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func uploadReceipt(t *testing.T, router *mux.Router, patientID uint, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	token, err := utils.GenerateJWT(patientID, utils.RolePatient, 60)
	require.NoError(t, err)

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "receipt.jpg")
	require.NoError(t, err)
	_, err = part.Write([]byte("fake image bytes"))
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest("POST", fmt.Sprintf("/patients/%d/receipts", patientID), &buf)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestReceiptApprovalMovesOrderToProcessing(t *testing.T) {
	tmp := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(tmp))
	t.Cleanup(func() { os.Chdir(wd) })

	router, db, patient := newTestHandler(t)
	supplements := seedSupplements(t, db)

	rr := authedDo(t, router, patient.ID, utils.RolePatient, "POST",
		fmt.Sprintf("/patients/%d/orders", patient.ID), map[string]interface{}{
			"country":        "LB",
			"payment_method": "OMT",
			"items":          []map[string]interface{}{{"supplement_id": supplements[0].ID, "quantity": 1}},
		})
	require.Equal(t, http.StatusCreated, rr.Code)
	var order models.Order
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &order))

	rr = uploadReceipt(t, router, patient.ID, map[string]string{
		"payment_type": "StoreOrder",
		"method":       "OMT",
		"amount":       fmt.Sprintf("%.2f", order.Total),
		"order_id":     fmt.Sprintf("%d", order.ID),
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var receipt models.PaymentReceipt
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &receipt))
	assert.Equal(t, models.ReceiptPending, receipt.Status)

	rr = authedDo(t, router, 1, utils.RolePractitioner, "PATCH",
		"/practitioner/receipts/"+receipt.UUID, map[string]string{"status": models.ReceiptApproved})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var updatedOrder models.Order
	require.NoError(t, db.First(&updatedOrder, order.ID).Error)
	assert.Equal(t, models.OrderProcessing, updatedOrder.Status)

	var transaction models.Transaction
	require.NoError(t, db.Where("patient_id = ?", patient.ID).First(&transaction).Error)
	assert.InDelta(t, order.Total, transaction.Amount, 0.01)
	assert.Equal(t, "StoreOrder", transaction.Purpose)

	// A settled receipt cannot be re-reviewed.
	rr = authedDo(t, router, 1, utils.RolePractitioner, "PATCH",
		"/practitioner/receipts/"+receipt.UUID, map[string]string{"status": models.ReceiptRejected})
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestReceiptRejectionLeavesOrderAlone(t *testing.T) {
	tmp := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(tmp))
	t.Cleanup(func() { os.Chdir(wd) })

	router, db, patient := newTestHandler(t)
	supplements := seedSupplements(t, db)

	rr := authedDo(t, router, patient.ID, utils.RolePatient, "POST",
		fmt.Sprintf("/patients/%d/orders", patient.ID), map[string]interface{}{
			"country":        "LB",
			"payment_method": "OMT",
			"items":          []map[string]interface{}{{"supplement_id": supplements[0].ID, "quantity": 1}},
		})
	require.Equal(t, http.StatusCreated, rr.Code)
	var order models.Order
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &order))

	rr = uploadReceipt(t, router, patient.ID, map[string]string{
		"payment_type": "StoreOrder",
		"method":       "OMT",
		"amount":       "25.00",
		"order_id":     fmt.Sprintf("%d", order.ID),
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	var receipt models.PaymentReceipt
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &receipt))

	rr = authedDo(t, router, 1, utils.RolePractitioner, "PATCH",
		"/practitioner/receipts/"+receipt.UUID, map[string]string{"status": models.ReceiptRejected})
	require.Equal(t, http.StatusOK, rr.Code)

	var updatedOrder models.Order
	require.NoError(t, db.First(&updatedOrder, order.ID).Error)
	assert.Equal(t, models.OrderPendingPayment, updatedOrder.Status)

	var count int64
	require.NoError(t, db.Model(&models.Transaction{}).Count(&count).Error)
	assert.EqualValues(t, 0, count)
}

func TestUploadReceiptValidation(t *testing.T) {
	tmp := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(tmp))
	t.Cleanup(func() { os.Chdir(wd) })

	router, _, patient := newTestHandler(t)

	rr := uploadReceipt(t, router, patient.ID, map[string]string{
		"payment_type": "StoreOrder", "method": "Cash", "amount": "10",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = uploadReceipt(t, router, patient.ID, map[string]string{
		"payment_type": "Bribe", "method": "OMT", "amount": "10",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = uploadReceipt(t, router, patient.ID, map[string]string{
		"payment_type": "StoreOrder", "method": "OMT", "amount": "-5",
	})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = uploadReceipt(t, router, patient.ID, map[string]string{
		"payment_type": "StoreOrder", "method": "OMT", "amount": "10", "order_id": "999",
	})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
