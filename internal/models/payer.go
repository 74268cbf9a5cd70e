package models

import "time"

// Payer is the billing contact responsible for an enrollment.
type Payer struct {
	ID               string    `db:"id" json:"id"`
	FullName         string    `db:"full_name" json:"full_name"`
	Email            string    `db:"email" json:"email"`
	StripeCustomerID *string   `db:"stripe_customer_id" json:"stripe_customer_id,omitempty"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// HasCustomer reports whether the payer is linked to a provider customer record.
func (p *Payer) HasCustomer() bool {
	return p != nil && p.StripeCustomerID != nil && *p.StripeCustomerID != ""
}

// PaymentMethod is a stored provider payment instrument for a payer.
type PaymentMethod struct {
	ID               string    `db:"id" json:"id"`
	PayerID          string    `db:"payer_id" json:"payer_id"`
	ProviderMethodID string    `db:"stripe_payment_method_id" json:"stripe_payment_method_id"`
	Brand            string    `db:"brand" json:"brand"`
	Last4            string    `db:"last4" json:"last4"`
	IsDefault        bool      `db:"is_default" json:"is_default"`
	Active           bool      `db:"active" json:"active"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}
