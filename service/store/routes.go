package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/dphilippe/vitality-server/cmd/models"
	"github.com/dphilippe/vitality-server/cmd/utils"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

var validPaymentMethods = map[string]bool{
	"Whish":        true,
	"OMT":          true,
	"WesternUnion": true,
	"CreditCard":   true,
}

type Handler struct {
	db *gorm.DB
}

func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/supplements", h.GetSupplements).Methods("GET")
	router.Handle("/patients/{id}/orders", utils.AuthMiddleware(http.HandlerFunc(h.CreateOrder))).Methods("POST")
	router.Handle("/patients/{id}/orders", utils.AuthMiddleware(http.HandlerFunc(h.GetOrders))).Methods("GET")
	router.Handle("/patients/{id}/receipts", utils.AuthMiddleware(http.HandlerFunc(h.UploadReceipt))).Methods("POST")
	router.Handle("/practitioner/receipts", utils.PractitionerOnly(http.HandlerFunc(h.GetReceipts))).Methods("GET")
	router.Handle("/practitioner/receipts/{uuid}", utils.PractitionerOnly(http.HandlerFunc(h.ReviewReceipt))).Methods("PATCH")
}

func (h *Handler) GetSupplements(w http.ResponseWriter, r *http.Request) {
	var supplements []models.Supplement
	if err := h.db.Order("name").Find(&supplements).Error; err != nil {
		http.Error(w, "Error retrieving supplements", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(supplements)
}

func pathPatientID(r *http.Request) (uint, error) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	return uint(id), err
}

func ownPatient(w http.ResponseWriter, r *http.Request) (uint, bool) {
	patientID, err := pathPatientID(r)
	if err != nil {
		http.Error(w, "Invalid patient ID", http.StatusBadRequest)
		return 0, false
	}
	role, _ := utils.GetRoleFromContext(r)
	if role != utils.RolePractitioner {
		sessionID, err := utils.GetUserIDFromContext(r)
		if err != nil || sessionID != patientID {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return 0, false
		}
	}
	return patientID, true
}

// CreateOrder prices a cart: subtotal from the catalogue, shipping from the
// destination and total weight. The order starts as PendingPayment until a
// receipt is approved.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	patientID, ok := ownPatient(w, r)
	if !ok {
		return
	}

	var orderRequest struct {
		Country       string `json:"country"`
		PaymentMethod string `json:"payment_method"`
		Items         []struct {
			SupplementID uint `json:"supplement_id"`
			Quantity     int  `json:"quantity"`
		} `json:"items"`
	}
	if err := json.NewDecoder(r.Body).Decode(&orderRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(orderRequest.Items) == 0 {
		http.Error(w, "Order must contain at least one item", http.StatusBadRequest)
		return
	}
	if !validPaymentMethods[orderRequest.PaymentMethod] {
		http.Error(w, "Unsupported payment method", http.StatusBadRequest)
		return
	}

	var order models.Order
	err := h.db.Transaction(func(tx *gorm.DB) error {
		var subtotal float64
		var totalWeight int
		items := make([]models.OrderItem, 0, len(orderRequest.Items))

		for _, item := range orderRequest.Items {
			if item.Quantity < 1 {
				return fmt.Errorf("invalid quantity for supplement %d", item.SupplementID)
			}
			var supplement models.Supplement
			if err := tx.First(&supplement, item.SupplementID).Error; err != nil {
				return fmt.Errorf("supplement %d not found", item.SupplementID)
			}
			subtotal += supplement.Price * float64(item.Quantity)
			totalWeight += supplement.WeightGrams * item.Quantity
			items = append(items, models.OrderItem{
				SupplementID: supplement.ID,
				Quantity:     item.Quantity,
				UnitPrice:    supplement.Price,
			})
		}

		shippingFee, err := ShippingFee(orderRequest.Country, totalWeight)
		if err != nil {
			return err
		}

		order = models.Order{
			PatientID:     patientID,
			Country:       orderRequest.Country,
			Subtotal:      subtotal,
			ShippingFee:   shippingFee,
			Total:         subtotal + shippingFee,
			Status:        models.OrderPendingPayment,
			PaymentMethod: orderRequest.PaymentMethod,
			Items:         items,
		}
		return tx.Create(&order).Error
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.db.Preload("Items.Supplement").First(&order, order.ID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(order)
}

func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	patientID, ok := ownPatient(w, r)
	if !ok {
		return
	}

	var orders []models.Order
	if err := h.db.Where("patient_id = ?", patientID).
		Preload("Items.Supplement").
		Order("created_at DESC").Find(&orders).Error; err != nil {
		http.Error(w, "Error retrieving orders", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"orders": orders,
		"total":  len(orders),
	})
}

// UploadReceipt stores a manual payment proof (multipart form: file, plus
// payment_type, method, amount and optional order_id fields).
func (h *Handler) UploadReceipt(w http.ResponseWriter, r *http.Request) {
	patientID, ok := ownPatient(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(utils.MaxReceiptSize); err != nil {
		http.Error(w, "Invalid multipart form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Receipt file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	method := r.FormValue("method")
	if !validPaymentMethods[method] {
		http.Error(w, "Unsupported payment method", http.StatusBadRequest)
		return
	}
	paymentType := r.FormValue("payment_type")
	if paymentType != "StoreOrder" && paymentType != "Subscription" && paymentType != "IrisTest" {
		http.Error(w, "Unsupported payment type", http.StatusBadRequest)
		return
	}
	amount, err := strconv.ParseFloat(r.FormValue("amount"), 64)
	if err != nil || amount <= 0 {
		http.Error(w, "Invalid amount", http.StatusBadRequest)
		return
	}

	filePath, err := utils.SaveReceipt(file, header)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	receipt := models.PaymentReceipt{
		UUID:        uuid.New().String(),
		PatientID:   patientID,
		PaymentType: paymentType,
		Method:      method,
		FilePath:    filePath,
		Amount:      amount,
		Status:      models.ReceiptPending,
	}
	if orderID := r.FormValue("order_id"); orderID != "" {
		id, err := strconv.ParseUint(orderID, 10, 64)
		if err != nil {
			http.Error(w, "Invalid order ID", http.StatusBadRequest)
			return
		}
		var order models.Order
		if err := h.db.Where("id = ? AND patient_id = ?", id, patientID).First(&order).Error; err != nil {
			http.Error(w, "Order not found", http.StatusNotFound)
			return
		}
		oid := uint(id)
		receipt.OrderID = &oid
	}

	if err := h.db.Create(&receipt).Error; err != nil {
		http.Error(w, "Error saving receipt", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(receipt)
}

func (h *Handler) GetReceipts(w http.ResponseWriter, r *http.Request) {
	query := h.db.Model(&models.PaymentReceipt{})
	if status := r.URL.Query().Get("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var receipts []models.PaymentReceipt
	if err := query.Order("created_at DESC").Find(&receipts).Error; err != nil {
		http.Error(w, "Error retrieving receipts", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"receipts": receipts,
		"total":    len(receipts),
	})
}

// ReviewReceipt approves or rejects a pending receipt. Approval records a
// transaction and, for store orders, moves the order to Processing.
func (h *Handler) ReviewReceipt(w http.ResponseWriter, r *http.Request) {
	receiptUUID := mux.Vars(r)["uuid"]

	var review struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&review); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if review.Status != models.ReceiptApproved && review.Status != models.ReceiptRejected {
		http.Error(w, "Status must be Approved or Rejected", http.StatusBadRequest)
		return
	}

	var receipt models.PaymentReceipt
	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("uuid = ?", receiptUUID).First(&receipt).Error; err != nil {
			return err
		}
		if receipt.Status != models.ReceiptPending {
			return fmt.Errorf("receipt already %s", receipt.Status)
		}

		receipt.Status = review.Status
		if err := tx.Save(&receipt).Error; err != nil {
			return err
		}

		if review.Status != models.ReceiptApproved {
			return nil
		}

		transaction := models.Transaction{
			PatientID: receipt.PatientID,
			Amount:    receipt.Amount,
			Method:    receipt.Method,
			Purpose:   receipt.PaymentType,
		}
		if err := tx.Create(&transaction).Error; err != nil {
			return err
		}

		if receipt.OrderID != nil {
			return tx.Model(&models.Order{}).Where("id = ?", *receipt.OrderID).
				Update("status", models.OrderProcessing).Error
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.Error(w, "Receipt not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(receipt)
}
