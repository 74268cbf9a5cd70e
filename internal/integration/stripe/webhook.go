package stripe

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/noah-isme/course-billing-api/internal/models"
)

// ErrInvalidSignature is returned when a webhook payload fails verification.
var ErrInvalidSignature = errors.New("invalid stripe webhook signature")

// WebhookVerifier checks Stripe signatures and normalises events.
type WebhookVerifier struct {
	secret string
}

// NewWebhookVerifier builds a verifier for the endpoint secret.
func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: secret}
}

// eventObject holds the fields needed to find the subscription behind an event.
// Invoices carry it directly on older API versions and under parent on newer ones.
type eventObject struct {
	ID           string          `json:"id"`
	Object       string          `json:"object"`
	Subscription json.RawMessage `json:"subscription"`
	Parent       *struct {
		SubscriptionDetails *struct {
			Subscription json.RawMessage `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

// Parse verifies the signature header and returns the event.
func (v *WebhookVerifier) Parse(payload []byte, signature string) (*models.ProviderEvent, error) {
	if strings.TrimSpace(v.secret) == "" {
		return nil, errors.New("stripe webhook secret is not configured")
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	out := &models.ProviderEvent{
		ID:         event.ID,
		Type:       string(event.Type),
		OccurredAt: unixTime(event.Created),
	}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return out, nil
	}
	var obj eventObject
	if err := json.Unmarshal(event.Data.Raw, &obj); err != nil {
		return nil, fmt.Errorf("decode stripe event object: %w", err)
	}
	out.SubscriptionID = subscriptionRef(obj)
	return out, nil
}

func subscriptionRef(obj eventObject) string {
	if obj.Object == "subscription" {
		return obj.ID
	}
	if id := idOf(obj.Subscription); id != "" {
		return id
	}
	if obj.Parent != nil && obj.Parent.SubscriptionDetails != nil {
		return idOf(obj.Parent.SubscriptionDetails.Subscription)
	}
	return ""
}

// idOf accepts either a bare id or an expanded object.
func idOf(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		return id
	}
	var expanded struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(raw, &expanded); err == nil {
		return expanded.ID
	}
	return ""
}
