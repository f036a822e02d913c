package email

import (
	"context"
	"fmt"
	"net/mail"
)

// Sender delivers one message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type Message struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	BodyHTML string `json:"-"`
	Tag      string `json:"tag,omitempty"`
}

func (m Message) Validate() error {
	if _, err := mail.ParseAddress(m.To); err != nil {
		return fmt.Errorf("%w: recipient: %v", ErrInvalidParams, err)
	}
	if m.Subject == "" {
		return fmt.Errorf("%w: subject is empty", ErrInvalidParams)
	}
	if m.BodyHTML == "" {
		return fmt.Errorf("%w: body is empty", ErrInvalidParams)
	}
	return nil
}

// NewSender picks Postmark when a server token is configured, the dev
// sender otherwise.
func NewSender(cfg Config) (Sender, error) {
	if cfg.PostmarkServerToken == "" {
		return NewDevSender(cfg.DevDir), nil
	}
	return NewPostmarkSender(cfg)
}
