package logger

import "log/slog"

// Error logs err under "error". A nil error yields an empty attribute,
// which slog drops.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.Any("error", err)
}

// UserID logs the local user id.
func UserID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("user_id", id)
}

// Role logs a membership role.
func Role(role any) slog.Attr {
	return slog.Any("role", role)
}

// Component names the subsystem emitting the record.
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Event names a domain event, e.g. "membership.upgraded".
func Event(name string) slog.Attr {
	return slog.String("event", name)
}

// CustomerRef logs a payment provider customer id.
func CustomerRef(ref string) slog.Attr {
	if ref == "" {
		return slog.Attr{}
	}
	return slog.String("customer_ref", ref)
}

// InstrumentRef logs a payment provider payment method id.
func InstrumentRef(ref string) slog.Attr {
	if ref == "" {
		return slog.Attr{}
	}
	return slog.String("instrument_ref", ref)
}

// ChargeID logs a provider charge (payment intent) id.
func ChargeID(id string) slog.Attr {
	if id == "" {
		return slog.Attr{}
	}
	return slog.String("charge_id", id)
}

// IdempotencyKey logs the key sent with a charge.
func IdempotencyKey(key string) slog.Attr {
	return slog.String("idempotency_key", key)
}

// RequestID logs the HTTP request id.
func RequestID(id any) slog.Attr {
	if id == nil {
		return slog.Attr{}
	}
	return slog.Any("request_id", id)
}

// Duration logs elapsed time.
func Duration(d any) slog.Attr {
	return slog.Any("duration", d)
}
