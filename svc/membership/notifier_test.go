package membership_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i-daichi/nagoyameshi/pkg/billing"
	"github.com/i-daichi/nagoyameshi/pkg/email"
	"github.com/i-daichi/nagoyameshi/svc/membership"
)

type captureSender struct {
	sent []email.Message
}

func (c *captureSender) Send(_ context.Context, msg email.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	c.sent = append(c.sent, msg)
	return nil
}

func TestMailNotifier(t *testing.T) {
	t.Parallel()
	user := membership.User{ID: uuid.New(), Name: "侍 <太郎>", Email: "taro@example.com", Role: membership.RolePaid}

	t.Run("upgrade mail carries charge", func(t *testing.T) {
		t.Parallel()
		s := &captureSender{}
		n := membership.NewMailNotifier(s)
		err := n.Notify(context.Background(), membership.Event{
			Kind:       membership.EventUpgraded,
			User:       user,
			Charge:     &billing.ChargeAttempt{ID: "pi_123", Amount: price, Status: billing.ChargeSucceeded},
			Instrument: &billing.PaymentInstrument{Brand: "visa", Last4: "4242"},
		})
		require.NoError(t, err)
		require.Len(t, s.sent, 1)

		msg := s.sent[0]
		assert.Equal(t, "taro@example.com", msg.To)
		assert.Contains(t, msg.Subject, "有料会員登録")
		assert.Equal(t, "membership-upgraded", msg.Tag)
		assert.Contains(t, msg.BodyHTML, "30000 JPY")
		assert.Contains(t, msg.BodyHTML, "pi_123")
		assert.Contains(t, msg.BodyHTML, "VISA **** 4242")
		assert.Contains(t, msg.BodyHTML, "&lt;太郎&gt;")
	})

	t.Run("downgrade mail", func(t *testing.T) {
		t.Parallel()
		s := &captureSender{}
		require.NoError(t, membership.NewMailNotifier(s).Notify(context.Background(), membership.Event{Kind: membership.EventDowngraded, User: user}))
		require.Len(t, s.sent, 1)
		assert.Contains(t, s.sent[0].Subject, "解約")
	})

	t.Run("unknown event is ignored", func(t *testing.T) {
		t.Parallel()
		s := &captureSender{}
		require.NoError(t, membership.NewMailNotifier(s).Notify(context.Background(), membership.Event{Kind: "membership.other", User: user}))
		assert.Empty(t, s.sent)
	})

	t.Run("invalid address surfaces", func(t *testing.T) {
		t.Parallel()
		s := &captureSender{}
		bad := user
		bad.Email = "not an address"
		err := membership.NewMailNotifier(s).Notify(context.Background(), membership.Event{Kind: membership.EventDowngraded, User: bad})
		assert.ErrorIs(t, err, email.ErrInvalidParams)
	})
}
