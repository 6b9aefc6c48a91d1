package models

import "gorm.io/gorm"

type Supplement struct {
	gorm.Model
	Name        string  `gorm:"column:name;size:255;not null" json:"name"`
	Description string  `gorm:"column:description;type:text" json:"description"`
	Type        string  `gorm:"column:type;size:20;not null" json:"type"` // Pill, Liquid, Powder
	Price       float64 `gorm:"column:price;not null" json:"price"`
	WeightGrams int     `gorm:"column:weight_grams;not null" json:"weight_grams"`
}

const (
	OrderPendingPayment = "PendingPayment"
	OrderProcessing     = "Processing"
	OrderShipped        = "Shipped"
	OrderDelivered      = "Delivered"
)

type Order struct {
	gorm.Model
	PatientID     uint    `gorm:"column:patient_id;not null;index" json:"patient_id"`
	Country       string  `gorm:"column:country;size:5;not null" json:"country"`
	Subtotal      float64 `gorm:"column:subtotal;not null" json:"subtotal"`
	ShippingFee   float64 `gorm:"column:shipping_fee;not null" json:"shipping_fee"`
	Total         float64 `gorm:"column:total;not null" json:"total"`
	Status        string  `gorm:"column:status;size:30;not null;default:'PendingPayment'" json:"status"`
	PaymentMethod string  `gorm:"column:payment_method;size:30" json:"payment_method"`

	Items   []OrderItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE" json:"items"`
	Patient *Patient    `gorm:"foreignKey:PatientID" json:"patient,omitempty"`
}

type OrderItem struct {
	gorm.Model
	OrderID      uint    `gorm:"column:order_id;not null" json:"order_id"`
	SupplementID uint    `gorm:"column:supplement_id;not null" json:"supplement_id"`
	Quantity     int     `gorm:"column:quantity;not null" json:"quantity"`
	UnitPrice    float64 `gorm:"column:unit_price;not null" json:"unit_price"`

	Supplement *Supplement `gorm:"foreignKey:SupplementID" json:"supplement,omitempty"`
}

const (
	ReceiptPending  = "Pending"
	ReceiptApproved = "Approved"
	ReceiptRejected = "Rejected"
)

// PaymentReceipt is a manually uploaded proof of payment for a store order,
// a subscription, or a standalone iris test.
type PaymentReceipt struct {
	gorm.Model
	UUID        string  `gorm:"column:uuid;size:36;not null;uniqueIndex" json:"uuid"`
	PatientID   uint    `gorm:"column:patient_id;not null;index" json:"patient_id"`
	OrderID     *uint   `gorm:"column:order_id" json:"order_id,omitempty"`
	PaymentType string  `gorm:"column:payment_type;size:30;not null" json:"payment_type"` // StoreOrder, Subscription, IrisTest
	Method      string  `gorm:"column:method;size:30;not null" json:"method"`             // Whish, OMT, WesternUnion, CreditCard
	FilePath    string  `gorm:"column:file_path;size:500;not null" json:"file_path"`
	Amount      float64 `gorm:"column:amount;not null" json:"amount"`
	Status      string  `gorm:"column:status;size:20;not null;default:'Pending'" json:"status"`
}

type Transaction struct {
	gorm.Model
	PatientID uint    `gorm:"column:patient_id;not null" json:"patient_id"`
	Amount    float64 `gorm:"column:amount;type:float;not null" json:"amount"`
	Method    string  `gorm:"column:method;type:text;not null" json:"method"`
	Purpose   string  `gorm:"column:purpose;type:text;not null" json:"purpose"`

	Patient Patient `gorm:"foreignKey:PatientID" json:"patient,omitempty"`
}
