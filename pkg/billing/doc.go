// Package billing talks to the payment provider on behalf of the membership
// lifecycle: customers, stored card instruments and one-shot off-session
// charges.
//
// Gateway is the provider-neutral contract. StripeGateway implements it on
// top of stripe-go; MemoryGateway is an in-process fake that understands the
// usual Stripe test tokens and is used by tests and local development.
//
// Every failure is a *GatewayError whose Kind is one of the package
// sentinels, so callers branch with errors.Is:
//
//	attempt, err := gw.Charge(ctx, req)
//	switch {
//	case errors.Is(err, billing.ErrDeclined):
//		// the card was refused; the user may try another one
//	case errors.Is(err, billing.ErrGateway):
//		// provider unreachable or failing
//	}
package billing
