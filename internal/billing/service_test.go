package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	stripe "github.com/stripe/stripe-go/v81"
	"gorm.io/gorm"

	"github.com/teianlab/teian-api/internal/proposal"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(gormsqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&proposal.UsageRecord{}, &proposal.StripeEvent{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T) (*Service, *proposal.Repo, *gorm.DB) {
	t.Helper()
	db := openTestDB(t)
	repo := proposal.NewRepo(db)
	return NewService(repo, "", "whsec_test", "price_test", "https://app.example.test"), repo, db
}

func event(id, typ, raw string) stripe.Event {
	return stripe.Event{
		ID:   id,
		Type: stripe.EventType(typ),
		Data: &stripe.EventData{Raw: json.RawMessage(raw)},
	}
}

func checkoutEvent(id string, userID uint64, customerID, subscriptionID string) stripe.Event {
	raw := fmt.Sprintf(`{
		"metadata": {"user_id": "%d"},
		"customer": {"id": %q},
		"subscription": {"id": %q}
	}`, userID, customerID, subscriptionID)
	return event(id, EventCheckoutCompleted, raw)
}

func TestHandleEvent_CheckoutActivates(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.HandleEvent(ctx, checkoutEvent("evt_co_7001", 7001, "cus_7001", "sub_7001")); err != nil {
		t.Fatalf("handle: %v", err)
	}

	usage, err := repo.GetUsage(ctx, 7001)
	if err != nil || usage == nil {
		t.Fatalf("usage row missing: %v", err)
	}
	if !usage.IsActivePro() {
		t.Fatalf("checkout must activate: is_paid=%v status=%q", usage.IsPaid, usage.SubscriptionStatus)
	}
	if usage.StripeCustomerID != "cus_7001" || usage.StripeSubscriptionID != "sub_7001" {
		t.Fatalf("provider ids not recorded: %q %q", usage.StripeCustomerID, usage.StripeSubscriptionID)
	}
}

func TestHandleEvent_DuplicateDeliverySkipped(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.HandleEvent(ctx, checkoutEvent("evt_dup_7002", 7002, "cus_7002", "sub_7002")); err != nil {
		t.Fatalf("first delivery: %v", err)
	}

	// same event id redelivered with a hostile payload: must be a no-op
	hostile := event("evt_dup_7002", EventSubscriptionDeleted, `{"customer": {"id": "cus_7002"}}`)
	if err := svc.HandleEvent(ctx, hostile); err != nil {
		t.Fatalf("duplicate delivery: %v", err)
	}

	usage, _ := repo.GetUsage(ctx, 7002)
	if !usage.IsActivePro() {
		t.Fatalf("duplicate delivery mutated the entitlement")
	}
}

func TestHandleEvent_SubscriptionDeleted(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.HandleEvent(ctx, checkoutEvent("evt_co_7003", 7003, "cus_7003", "sub_7003")); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if err := svc.HandleEvent(ctx, event("evt_del_7003", EventSubscriptionDeleted, `{"customer": {"id": "cus_7003"}}`)); err != nil {
		t.Fatalf("delete: %v", err)
	}

	usage, _ := repo.GetUsage(ctx, 7003)
	if usage.IsPaid || usage.SubscriptionStatus != proposal.StatusCancelled {
		t.Fatalf("deletion not applied: is_paid=%v status=%q", usage.IsPaid, usage.SubscriptionStatus)
	}
	if usage.StripeSubscriptionID != "" {
		t.Fatalf("subscription id must be cleared on deletion")
	}
}

func TestHandleEvent_SubscriptionUpdated(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.HandleEvent(ctx, checkoutEvent("evt_co_7004", 7004, "cus_7004", "sub_7004")); err != nil {
		t.Fatalf("activate: %v", err)
	}

	if err := svc.HandleEvent(ctx, event("evt_up_7004a", EventSubscriptionUpdated,
		`{"customer": {"id": "cus_7004"}, "status": "past_due"}`)); err != nil {
		t.Fatalf("update past_due: %v", err)
	}
	usage, _ := repo.GetUsage(ctx, 7004)
	if usage.IsPaid || usage.SubscriptionStatus != proposal.StatusPastDue {
		t.Fatalf("past_due not mirrored: is_paid=%v status=%q", usage.IsPaid, usage.SubscriptionStatus)
	}

	if err := svc.HandleEvent(ctx, event("evt_up_7004b", EventSubscriptionUpdated,
		`{"customer": {"id": "cus_7004"}, "status": "active"}`)); err != nil {
		t.Fatalf("update active: %v", err)
	}
	usage, _ = repo.GetUsage(ctx, 7004)
	if !usage.IsActivePro() {
		t.Fatalf("recovery to active not mirrored")
	}
}

func TestHandleEvent_InvoicePaymentFailed(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	if err := svc.HandleEvent(ctx, checkoutEvent("evt_co_7005", 7005, "cus_7005", "sub_7005")); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if err := svc.HandleEvent(ctx, event("evt_inv_7005", EventInvoicePaymentFailed,
		`{"customer": {"id": "cus_7005"}}`)); err != nil {
		t.Fatalf("invoice failed: %v", err)
	}

	usage, _ := repo.GetUsage(ctx, 7005)
	if usage.SubscriptionStatus != proposal.StatusPastDue {
		t.Fatalf("delinquency not recorded: status=%q", usage.SubscriptionStatus)
	}
	// is_paid stays until the provider sends the subscription update, but
	// entitlement is already revoked
	if !usage.IsPaid {
		t.Fatalf("is_paid must be left for the subscription update to change")
	}
	if usage.IsActivePro() {
		t.Fatalf("past_due subscriber must not keep unlimited generation")
	}
}

func TestHandleEvent_UnknownTypeAcknowledged(t *testing.T) {
	svc, _, _ := newTestService(t)

	if err := svc.HandleEvent(context.Background(), event("evt_other_7006", "charge.refunded", `{}`)); err != nil {
		t.Fatalf("unknown event type must be acknowledged: %v", err)
	}
}

func TestHandleEvent_CheckoutWithoutMetadataIgnored(t *testing.T) {
	svc, _, db := newTestService(t)
	ctx := context.Background()

	raw := `{"customer": {"id": "cus_7007"}, "subscription": {"id": "sub_7007"}}`
	if err := svc.HandleEvent(ctx, event("evt_co_7007", EventCheckoutCompleted, raw)); err != nil {
		t.Fatalf("handle: %v", err)
	}

	var n int64
	// no user id to attribute the purchase to: nothing is written
	if err := db.Model(&proposal.UsageRecord{}).
		Where("stripe_customer_id = ?", "cus_7007").Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("checkout without user_id metadata must not create entitlement rows")
	}
}
