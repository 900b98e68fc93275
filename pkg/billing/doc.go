// Package billing receives Stripe webhooks and records subscription and
// payment state on the owning tenant.
//
// Payloads are authenticated with the Stripe-Signature header: an
// HMAC-SHA256 over "<timestamp>.<payload>" keyed by the endpoint secret,
// accepted within a tolerance window. Billing state is informational;
// requests of tenants with lapsed subscriptions are still served.
//
//	svc := billing.NewService(tenantSource, cfg.Billing.WebhookSecret,
//		billing.WithMetrics(metrics))
//	router.Handle("/stripe/webhook", svc).Methods(http.MethodPost)
package billing
