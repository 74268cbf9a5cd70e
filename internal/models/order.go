package models

import (
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/shopspring/decimal"
)

// OrderStatus captures the lifecycle of a single payment attempt.
type OrderStatus string

const (
	OrderStatusPending  OrderStatus = "pending"
	OrderStatusPaid     OrderStatus = "paid"
	OrderStatusFailed   OrderStatus = "failed"
	OrderStatusRefunded OrderStatus = "refunded"
	OrderStatusVoid     OrderStatus = "void"
)

// OrderPaymentMethod records who collected the payment.
type OrderPaymentMethod string

const (
	OrderPaymentProvider OrderPaymentMethod = "provider"
	OrderPaymentManual   OrderPaymentMethod = "manual"
)

// Keys used inside the order metadata approval trail.
const (
	MetaApprovedBy       = "approved_by"
	MetaApprovedAt       = "approved_at"
	MetaReceiptReference = "receipt_reference"
	MetaPaymentDate      = "payment_date"
	MetaRejectedBy       = "rejected_by"
	MetaRejectedAt       = "rejected_at"
	MetaGeneratedBy      = "generated_by"
)

// Order is a billing event tied to an enrollment.
type Order struct {
	ID            string             `db:"id" json:"id"`
	EnrollmentID  string             `db:"enrollment_id" json:"enrollment_id"`
	Amount        decimal.Decimal    `db:"amount" json:"amount"`
	Currency      string             `db:"currency" json:"currency"`
	Status        OrderStatus        `db:"status" json:"status"`
	PeriodStart   *time.Time         `db:"period_start" json:"period_start,omitempty"`
	PeriodEnd     *time.Time         `db:"period_end" json:"period_end,omitempty"`
	PaidAt        *time.Time         `db:"paid_at" json:"paid_at,omitempty"`
	FailureCode   *string            `db:"failure_code" json:"failure_code,omitempty"`
	FailureReason *string            `db:"failure_reason" json:"failure_reason,omitempty"`
	PaymentMethod OrderPaymentMethod `db:"payment_method" json:"payment_method"`
	Metadata      types.JSONText     `db:"metadata" json:"metadata,omitempty"`
	CreatedAt     time.Time          `db:"created_at" json:"created_at"`
}

// MetadataMap decodes the free-form metadata column. Malformed payloads yield an empty map.
func (o *Order) MetadataMap() map[string]string {
	out := map[string]string{}
	if o == nil || len(o.Metadata) == 0 {
		return out
	}
	if err := json.Unmarshal(o.Metadata, &out); err != nil {
		return map[string]string{}
	}
	return out
}

// MergeMetadata writes the provided keys on top of the existing metadata.
func (o *Order) MergeMetadata(values map[string]string) error {
	merged := o.MetadataMap()
	for k, v := range values {
		merged[k] = v
	}
	raw, err := json.Marshal(merged)
	if err != nil {
		return err
	}
	o.Metadata = types.JSONText(raw)
	return nil
}
