package models

import (
	"context"
	"time"
)

// AuditAction constants represent billing actions written to the audit trail.
const (
	AuditActionSubscriptionCreate   = "SUBSCRIPTION_CREATE"
	AuditActionSubscriptionConfirm  = "SUBSCRIPTION_CONFIRM"
	AuditActionSubscriptionCancel   = "SUBSCRIPTION_CANCEL"
	AuditActionSubscriptionUndo     = "SUBSCRIPTION_UNDO_CANCEL"
	AuditActionSubscriptionResume   = "SUBSCRIPTION_RESUME"
	AuditActionSubscriptionRecreate = "SUBSCRIPTION_RECREATE"
	AuditActionSubscriptionSync     = "SUBSCRIPTION_SYNC"
	AuditActionScheduleUpdate       = "SCHEDULE_UPDATE"
	AuditActionPaymentModeSwitch    = "PAYMENT_MODE_SWITCH"
	AuditActionManualOrderCreate    = "MANUAL_ORDER_CREATE"
	AuditActionManualOrderApprove   = "MANUAL_ORDER_APPROVE"
	AuditActionManualOrderReject    = "MANUAL_ORDER_REJECT"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	UserID     *string   `db:"user_id" json:"user_id,omitempty"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	OldValues  []byte    `db:"old_values" json:"old_values,omitempty"`
	NewValues  []byte    `db:"new_values" json:"new_values,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// RequestOrigin identifies the client behind an audited action.
type RequestOrigin struct {
	IPAddress string
	UserAgent string
}

type requestOriginKey struct{}

// WithRequestOrigin stores the client origin on ctx.
func WithRequestOrigin(ctx context.Context, origin RequestOrigin) context.Context {
	return context.WithValue(ctx, requestOriginKey{}, origin)
}

// RequestOriginFrom returns the origin stored on ctx, if any.
func RequestOriginFrom(ctx context.Context) (RequestOrigin, bool) {
	origin, ok := ctx.Value(requestOriginKey{}).(RequestOrigin)
	return origin, ok
}
