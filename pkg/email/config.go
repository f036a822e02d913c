package email

// Config selects the sender. Without a Postmark server token mail is written
// to DevDir instead of being sent.
type Config struct {
	PostmarkServerToken  string `env:"POSTMARK_SERVER_TOKEN"`
	PostmarkAccountToken string `env:"POSTMARK_ACCOUNT_TOKEN"`
	SenderEmail          string `env:"SENDER_EMAIL" envDefault:"no-reply@nagoyameshi.example"`
	SupportEmail         string `env:"SUPPORT_EMAIL" envDefault:"support@nagoyameshi.example"`
	DevDir               string `env:"EMAIL_DEV_DIR" envDefault:"tmp/mail"`
}
