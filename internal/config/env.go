package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Secrets are read from the environment, optionally primed from a .env file
type Secrets struct {
	SMTPHost string
	SMTPPort int
	SMTPUser string
	SMTPPass string
	SMTPFrom string
	NotifyTo string
}

// MailEnabled reports whether enough SMTP settings are present to send mail
func (s Secrets) MailEnabled() bool {
	return s.SMTPHost != "" && s.SMTPFrom != "" && s.NotifyTo != ""
}

// LoadEnv loads envFile if it exists (without overriding variables already
// set) and reads the secrets.
func LoadEnv(envFile string) (Secrets, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Secrets{}, err
		}
	}

	port, err := strconv.Atoi(getenv("SMTP_PORT", "587"))
	if err != nil {
		port = 587
	}
	return Secrets{
		SMTPHost: getenv("SMTP_HOST", ""),
		SMTPPort: port,
		SMTPUser: getenv("SMTP_USER", ""),
		SMTPPass: getenv("SMTP_PASS", ""),
		SMTPFrom: getenv("SMTP_FROM", ""),
		NotifyTo: getenv("NOTIFY_TO", ""),
	}, nil
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}
