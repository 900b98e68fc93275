package billing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/goccy/go-json"

	"github.com/platinummonkey/cristata/pkg/apierr"
	"github.com/platinummonkey/cristata/pkg/httputil"
	"github.com/platinummonkey/cristata/pkg/observability"
	"github.com/platinummonkey/cristata/pkg/tenants"
)

// maxPayloadBytes bounds webhook bodies; Stripe events are far smaller
const maxPayloadBytes = 1 << 20

// TenantUpdater applies billing changes to the tenant owning a customer id
type TenantUpdater interface {
	UpdateBilling(ctx context.Context, customerID string, apply func(*tenants.Billing)) error
}

// Service verifies Stripe webhooks and records the billing state they
// report on the owning tenant
type Service struct {
	tenants   TenantUpdater
	secret    string
	tolerance time.Duration
	clock     clock.Clock
	metrics   *observability.Metrics
}

// Option configures a Service
type Option func(*Service)

// WithClock replaces the wall clock used for the signature tolerance
func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithMetrics records webhook outcomes
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithTolerance overrides DefaultTolerance
func WithTolerance(d time.Duration) Option {
	return func(s *Service) { s.tolerance = d }
}

// NewService creates a webhook service
func NewService(updater TenantUpdater, secret string, opts ...Option) *Service {
	s := &Service{
		tenants:   updater,
		secret:    secret,
		tolerance: DefaultTolerance,
		clock:     clock.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleWebhook verifies and applies one event. Events of other types and
// events for unknown customers are acknowledged without changes.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (string, error) {
	if err := VerifySignature(payload, signature, s.secret, s.tolerance, s.clock.Now()); err != nil {
		return "", apierr.Validation(err.Error())
	}

	var event StripeWebhookEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return "", apierr.Validation(fmt.Sprintf("failed to parse webhook: %v", err))
	}

	var err error
	switch event.Type {
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		err = s.handleSubscription(ctx, event)
	case EventInvoicePaid, EventInvoicePaymentFail:
		err = s.handleInvoice(ctx, event)
	}
	return event.Type, err
}

func (s *Service) handleSubscription(ctx context.Context, event StripeWebhookEvent) error {
	var sub StripeSubscription
	if err := json.Unmarshal(event.Data.Object, &sub); err != nil {
		return apierr.Validation(fmt.Sprintf("failed to parse subscription: %v", err))
	}
	status := tenants.SubscriptionStatus(sub.Status)
	if event.Type == EventSubscriptionDeleted {
		status = tenants.SubscriptionCanceled
	}
	return s.tenants.UpdateBilling(ctx, sub.Customer, func(b *tenants.Billing) {
		b.CustomerID = sub.Customer
		b.SubscriptionID = sub.ID
		b.Status = status
		if sub.CurrentPeriodEnd > 0 {
			end := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
			b.CurrentPeriodEnd = &end
		}
	})
}

func (s *Service) handleInvoice(ctx context.Context, event StripeWebhookEvent) error {
	var inv StripeInvoice
	if err := json.Unmarshal(event.Data.Object, &inv); err != nil {
		return apierr.Validation(fmt.Sprintf("failed to parse invoice: %v", err))
	}
	return s.tenants.UpdateBilling(ctx, inv.Customer, func(b *tenants.Billing) {
		if event.Type == EventInvoicePaymentFail {
			b.PaymentFailed = true
			return
		}
		paidAt := inv.StatusTransitions.PaidAt
		if paidAt == 0 {
			paidAt = event.Created
		}
		at := time.Unix(paidAt, 0).UTC()
		b.LastPaymentAt = &at
		b.PaymentFailed = false
	})
}

// ServeHTTP implements the webhook endpoint. Unknown customers get a 200 so
// Stripe stops retrying; storage failures get a 500 so it retries.
func (s *Service) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := observability.FromContext(r.Context())

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		httputil.WriteBadRequest(w, "failed to read body")
		return
	}

	eventType, err := s.HandleWebhook(r.Context(), payload, r.Header.Get(SignatureHeader))
	switch {
	case err == nil:
		s.metrics.RecordWebhookEvent(eventType, "applied")
		_ = httputil.WriteSuccess(w, map[string]bool{"received": true})
	case errors.Is(err, apierr.ErrNotFound):
		s.metrics.RecordWebhookEvent(eventType, "ignored")
		logger.WithError(err).WithField("event_type", eventType).Warn("Webhook for unknown customer")
		_ = httputil.WriteSuccess(w, map[string]bool{"received": true})
	case errors.Is(err, apierr.ErrValidation):
		s.metrics.RecordWebhookEvent(eventType, "rejected")
		httputil.WriteError(w, err)
	default:
		s.metrics.RecordWebhookEvent(eventType, "failed")
		logger.WithError(err).WithField("event_type", eventType).Error("Failed to apply webhook")
		httputil.WriteError(w, apierr.Internal("failed to apply webhook", err))
	}
}
