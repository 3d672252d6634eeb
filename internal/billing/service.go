package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"

	stripe "github.com/stripe/stripe-go/v81"
	portalsession "github.com/stripe/stripe-go/v81/billingportal/session"
	checkoutsession "github.com/stripe/stripe-go/v81/checkout/session"
	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/teianlab/teian-api/internal/proposal"
)

// Closed set of provider events this service applies. Anything else is
// acknowledged without effect.
const (
	EventCheckoutCompleted    = "checkout.session.completed"
	EventSubscriptionDeleted  = "customer.subscription.deleted"
	EventSubscriptionUpdated  = "customer.subscription.updated"
	EventInvoicePaymentFailed = "invoice.payment_failed"
)

var ErrNoSubscription = errors.New("no subscription found")

type Service struct {
	repo          *proposal.Repo
	webhookSecret string
	priceID       string
	appURL        string
}

func NewService(repo *proposal.Repo, secretKey, webhookSecret, priceID, appURL string) *Service {
	stripe.Key = secretKey
	return &Service{
		repo:          repo,
		webhookSecret: webhookSecret,
		priceID:       priceID,
		appURL:        appURL,
	}
}

// CreateCheckoutSession starts a subscription checkout. Return URLs derive
// from the configured app URL only; the inbound Host header is never
// trusted.
func (s *Service) CreateCheckoutSession(userID uint64, email string) (string, error) {
	uid := strconv.FormatUint(userID, 10)

	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Mode:               stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(s.priceID),
				Quantity: stripe.Int64(1),
			},
		},
		CustomerEmail: stripe.String(email),
		SuccessURL:    stripe.String(s.appURL + "/dashboard?upgraded=true"),
		CancelURL:     stripe.String(s.appURL + "/dashboard"),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{"user_id": uid},
		},
	}
	params.AddMetadata("user_id", uid)

	sess, err := checkoutsession.New(params)
	if err != nil {
		return "", err
	}
	return sess.URL, nil
}

// CreatePortalSession opens the billing portal for an existing customer.
func (s *Service) CreatePortalSession(ctx context.Context, userID uint64) (string, error) {
	usage, err := s.repo.GetUsage(ctx, userID)
	if err != nil {
		return "", err
	}
	if usage == nil || usage.StripeCustomerID == "" {
		return "", ErrNoSubscription
	}

	sess, err := portalsession.New(&stripe.BillingPortalSessionParams{
		Customer:  stripe.String(usage.StripeCustomerID),
		ReturnURL: stripe.String(s.appURL + "/dashboard"),
	})
	if err != nil {
		return "", err
	}
	return sess.URL, nil
}

// VerifyWebhook checks the provider signature and returns the parsed event.
func (s *Service) VerifyWebhook(payload []byte, sigHeader string) (stripe.Event, error) {
	return webhook.ConstructEvent(payload, sigHeader, s.webhookSecret)
}

// HandleEvent applies one provider event to the entitlement record. The
// event id is recorded first; a duplicate delivery (including a concurrent
// one) is acknowledged without reprocessing.
func (s *Service) HandleEvent(ctx context.Context, event stripe.Event) error {
	first, err := s.repo.MarkEventProcessed(ctx, event.ID, string(event.Type))
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	if !first {
		log.Printf("webhook duplicate delivery skipped event=%s type=%s", event.ID, event.Type)
		return nil
	}

	switch string(event.Type) {
	case EventCheckoutCompleted:
		return s.applyCheckoutCompleted(ctx, event)
	case EventSubscriptionDeleted:
		return s.applySubscriptionDeleted(ctx, event)
	case EventSubscriptionUpdated:
		return s.applySubscriptionUpdated(ctx, event)
	case EventInvoicePaymentFailed:
		return s.applyInvoicePaymentFailed(ctx, event)
	default:
		return nil
	}
}

func (s *Service) applyCheckoutCompleted(ctx context.Context, event stripe.Event) error {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return err
	}

	uid := sess.Metadata["user_id"]
	if uid == "" || sess.Subscription == nil {
		return nil
	}
	userID, err := strconv.ParseUint(uid, 10, 64)
	if err != nil {
		return fmt.Errorf("bad user_id metadata %q: %w", uid, err)
	}

	customerID := ""
	if sess.Customer != nil {
		customerID = sess.Customer.ID
	}
	return s.repo.ActivateSubscription(ctx, userID, customerID, sess.Subscription.ID)
}

func (s *Service) applySubscriptionDeleted(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return err
	}
	if sub.Customer == nil {
		return nil
	}
	return s.repo.CancelByCustomer(ctx, sub.Customer.ID)
}

func (s *Service) applySubscriptionUpdated(ctx context.Context, event stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return err
	}
	if sub.Customer == nil {
		return nil
	}
	return s.repo.UpdateStatusByCustomer(ctx, sub.Customer.ID, string(sub.Status))
}

func (s *Service) applyInvoicePaymentFailed(ctx context.Context, event stripe.Event) error {
	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return err
	}
	if inv.Customer == nil {
		return nil
	}
	return s.repo.MarkPastDueByCustomer(ctx, inv.Customer.ID)
}
