package email

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"

	"github.com/mrz1836/postmark"
)

type PostmarkSender struct {
	client *postmark.Client
	from   string
	reply  string
}

type PostmarkOption func(*postmark.Client)

// WithPostmarkEndpoint points the client at another API root, e.g. a test
// server.
func WithPostmarkEndpoint(baseURL string, hc *http.Client) PostmarkOption {
	return func(c *postmark.Client) {
		c.BaseURL = baseURL
		if hc != nil {
			c.HTTPClient = hc
		}
	}
}

func NewPostmarkSender(cfg Config, opts ...PostmarkOption) (*PostmarkSender, error) {
	if cfg.PostmarkServerToken == "" {
		return nil, fmt.Errorf("%w: postmark server token is required", ErrInvalidConfig)
	}
	if _, err := mail.ParseAddress(cfg.SenderEmail); err != nil {
		return nil, fmt.Errorf("%w: sender email: %v", ErrInvalidConfig, err)
	}
	if _, err := mail.ParseAddress(cfg.SupportEmail); err != nil {
		return nil, fmt.Errorf("%w: support email: %v", ErrInvalidConfig, err)
	}

	client := postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken)
	for _, opt := range opts {
		opt(client)
	}
	return &PostmarkSender{client: client, from: cfg.SenderEmail, reply: cfg.SupportEmail}, nil
}

func (s *PostmarkSender) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	resp, err := s.client.SendEmail(ctx, postmark.Email{
		From:       s.from,
		ReplyTo:    s.reply,
		To:         msg.To,
		Subject:    msg.Subject,
		Tag:        msg.Tag,
		HTMLBody:   msg.BodyHTML,
		TrackOpens: false,
	})
	if err != nil {
		return errors.Join(ErrSendFailed, err)
	}
	if resp.ErrorCode != 0 {
		return fmt.Errorf("%w: postmark %d: %s", ErrSendFailed, resp.ErrorCode, resp.Message)
	}
	return nil
}
