package billing

import (
	"strconv"
	"time"

	"github.com/noah-isme/course-billing-api/internal/models"
)

// FieldChange records one local field overwritten by fresher provider state.
type FieldChange struct {
	Field  string `json:"field"`
	Old    string `json:"old"`
	New    string `json:"new"`
	Reason string `json:"reason"`
}

// SyncResult is the outcome of comparing local and remote subscription state.
type SyncResult struct {
	Stale   bool
	Changes []FieldChange
}

// Changed reports whether any field differs.
func (r SyncResult) Changed() bool { return len(r.Changes) > 0 }

// DiffRemote computes the changes that bring local in line with remote and applies them
// to local. The provider is authoritative, but a read observed at or before the last
// sync is stale and changes nothing.
func DiffRemote(local *models.Enrollment, remote models.SubscriptionDetails) SyncResult {
	if local.SubscriptionSyncedAt != nil && !remote.ObservedAt.After(*local.SubscriptionSyncedAt) {
		return SyncResult{Stale: true}
	}

	reason := "provider state observed at " + remote.ObservedAt.UTC().Format(time.RFC3339)
	var changes []FieldChange
	record := func(field, oldValue, newValue string) {
		if oldValue != newValue {
			changes = append(changes, FieldChange{Field: field, Old: oldValue, New: newValue, Reason: reason})
		}
	}

	if remote.Status != "" {
		record("subscription_status", string(local.Status()), string(remote.Status))
		local.SubscriptionStatus = remote.Status
	}

	cancelAt := remote.CancelAt
	if cancelAt == nil && remote.CancelAtPeriodEnd {
		cancelAt = remote.CurrentPeriodEnd
	}
	ended := remote.Status == models.SubscriptionStatusCanceled || remote.Status == models.SubscriptionStatusIncompleteExpired
	if ended {
		cancelAt = nil
	}
	record("subscription_cancel_at", formatTime(local.SubscriptionCancelAt), formatTime(cancelAt))
	local.SubscriptionCancelAt = cloneTime(cancelAt)

	record("trial_end_at", formatTime(local.TrialEndAt), formatTime(remote.TrialEnd))
	local.TrialEndAt = cloneTime(remote.TrialEnd)

	var next *time.Time
	if isLive(remote.Status) && remote.CurrentPeriodEnd != nil && cancelAt == nil && !remote.PauseCollection {
		next = remote.CurrentPeriodEnd
	}
	record("next_payment_at", formatTime(local.NextPaymentAt), formatTime(next))
	local.NextPaymentAt = cloneTime(next)

	// manual mode keeps an ended subscription marked as paused
	paused := remote.PauseCollection || (ended && local.PaymentMode == models.PaymentModeManual)
	record("collection_paused", strconv.FormatBool(local.CollectionPaused), strconv.FormatBool(paused))
	local.CollectionPaused = paused

	observed := remote.ObservedAt
	local.SubscriptionSyncedAt = &observed
	return SyncResult{Changes: changes}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
