package membership

import (
	"context"
	"fmt"
	"strings"

	"github.com/i-daichi/nagoyameshi/pkg/billing"
	"github.com/i-daichi/nagoyameshi/pkg/email"
	"github.com/i-daichi/nagoyameshi/pkg/email/templates"
)

type EventKind string

const (
	EventUpgraded           EventKind = "membership.upgraded"
	EventDowngraded         EventKind = "membership.downgraded"
	EventInstrumentReplaced EventKind = "membership.instrument_replaced"
)

// Event is emitted after a committed change.
type Event struct {
	Kind       EventKind
	User       User
	Charge     *billing.ChargeAttempt
	Instrument *billing.PaymentInstrument
}

// Notifier is told about committed changes. Failures are logged by the
// Manager and never undo the change.
type Notifier interface {
	Notify(ctx context.Context, e Event) error
}

type NotifierFunc func(ctx context.Context, e Event) error

func (f NotifierFunc) Notify(ctx context.Context, e Event) error { return f(ctx, e) }

// MailNotifier mails the member about plan and card changes.
type MailNotifier struct {
	sender email.Sender
}

func NewMailNotifier(sender email.Sender) *MailNotifier {
	return &MailNotifier{sender: sender}
}

func (n *MailNotifier) Notify(ctx context.Context, e Event) error {
	p := templates.PlanChange{Name: e.User.Name}
	var subject string
	switch e.Kind {
	case EventUpgraded:
		subject = "【NAGOYAMESHI】有料会員登録が完了しました"
		p.Headline = "有料会員登録が完了しました"
		p.Lines = []string{"ご登録ありがとうございます。有料会員限定の機能をご利用いただけます。"}
		if e.Charge != nil {
			p.Amount = formatMoney(e.Charge.Amount)
			p.ChargeID = e.Charge.ID
		}
	case EventDowngraded:
		subject = "【NAGOYAMESHI】有料会員を解約しました"
		p.Headline = "有料会員を解約しました"
		p.Lines = []string{"これまでのご利用ありがとうございました。無料会員として引き続きご利用いただけます。"}
	case EventInstrumentReplaced:
		subject = "【NAGOYAMESHI】お支払い方法を変更しました"
		p.Headline = "お支払い方法を変更しました"
	default:
		return nil
	}
	if e.Instrument != nil {
		p.Card = fmt.Sprintf("%s **** %s", strings.ToUpper(e.Instrument.Brand), e.Instrument.Last4)
	}

	body, err := templates.Render(ctx, templates.PlanChangeMail(p))
	if err != nil {
		return err
	}
	return n.sender.Send(ctx, email.Message{
		To:       e.User.Email,
		Subject:  subject,
		BodyHTML: body,
		Tag:      strings.ReplaceAll(string(e.Kind), ".", "-"),
	})
}

func formatMoney(m billing.Money) string {
	return fmt.Sprintf("%d %s", m.Amount, strings.ToUpper(m.Currency))
}
