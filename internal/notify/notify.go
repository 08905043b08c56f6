// Package notify sends failure summaries to a human. Delivery is
// fire-and-forget.
package notify

import (
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"sync"
	"time"

	"jordanella.com/paws-farm-go/internal/config"
	"jordanella.com/paws-farm-go/internal/events"
	"jordanella.com/paws-farm-go/internal/logging"
)

// Notifier accepts a message for best-effort delivery. It never blocks on
// the network.
type Notifier interface {
	Notify(subject, body string)
	Close()
}

// New returns a Mailer when SMTP is configured and a LogNotifier otherwise.
func New(secrets config.Secrets) Notifier {
	if secrets.MailEnabled() {
		return NewMailer(secrets, 32)
	}
	return NewLogNotifier()
}

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type message struct {
	subject string
	body    string
}

// Mailer delivers notifications over SMTP from a single background sender.
type Mailer struct {
	secrets config.Secrets
	send    SendFunc
	queue   chan message
	logger  *logging.Logger
	wg      sync.WaitGroup
	once    sync.Once
}

// NewMailer starts a mailer with a queue of the given size.
func NewMailer(secrets config.Secrets, queueSize int) *Mailer {
	return newMailer(secrets, queueSize, smtp.SendMail)
}

func newMailer(secrets config.Secrets, queueSize int, send SendFunc) *Mailer {
	m := &Mailer{
		secrets: secrets,
		send:    send,
		queue:   make(chan message, queueSize),
		logger:  logging.NewLogger("Mailer"),
	}
	m.wg.Add(1)
	go m.run()
	return m
}

// Notify queues a message, dropping it when the queue is full.
func (m *Mailer) Notify(subject, body string) {
	select {
	case m.queue <- message{subject: subject, body: body}:
	default:
		m.logger.WarnWithContext("notification dropped, queue full", map[string]interface{}{"subject": subject})
	}
}

// Close delivers what is queued and stops the sender.
func (m *Mailer) Close() {
	m.once.Do(func() {
		close(m.queue)
		m.wg.Wait()
	})
}

func (m *Mailer) run() {
	defer m.wg.Done()
	for msg := range m.queue {
		if err := m.deliver(msg); err != nil {
			m.logger.ErrorWithContext("notification failed", err, map[string]interface{}{"subject": msg.subject})
			continue
		}
		m.logger.InfoWithContext("notification sent", map[string]interface{}{"subject": msg.subject, "to": m.secrets.NotifyTo})
	}
}

func (m *Mailer) deliver(msg message) error {
	addr := net.JoinHostPort(m.secrets.SMTPHost, strconv.Itoa(m.secrets.SMTPPort))
	var auth smtp.Auth
	if m.secrets.SMTPUser != "" {
		auth = smtp.PlainAuth("", m.secrets.SMTPUser, m.secrets.SMTPPass, m.secrets.SMTPHost)
	}
	to := strings.Split(m.secrets.NotifyTo, ",")
	for i := range to {
		to[i] = strings.TrimSpace(to[i])
	}
	return m.send(addr, auth, m.secrets.SMTPFrom, to, buildMessage(m.secrets.SMTPFrom, to, msg, time.Now()))
}

func buildMessage(from string, to []string, msg message, now time.Time) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", sanitizeHeader(msg.subject))
	fmt.Fprintf(&b, "Date: %s\r\n", now.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	b.WriteString(msg.body)
	b.WriteString("\r\n")
	return []byte(b.String())
}

func sanitizeHeader(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

// LogNotifier writes notifications to the log when mail is not configured.
type LogNotifier struct {
	logger *logging.Logger
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: logging.NewLogger("Notify")}
}

func (n *LogNotifier) Notify(subject, body string) {
	n.logger.WarnWithContext(subject, map[string]interface{}{"body": body})
}

func (n *LogNotifier) Close() {}

// Subscribe forwards account failures from the bus to n.
func Subscribe(bus events.EventBus, n Notifier) {
	bus.Subscribe(events.EventTypeAccountDead, func(e events.Event) {
		phone, _ := e.Data["phone"].(string)
		reason, _ := e.Data["reason"].(string)
		n.Notify(fmt.Sprintf("[pawsfarm] %s stopped", phone),
			fmt.Sprintf("Account %d (%s) was taken out of rotation at %s.\n\nReason: %s\n",
				e.AccountID, phone, e.Timestamp.Format(time.RFC3339), reason))
	})
	bus.Subscribe(events.EventTypeAccountBanned, func(e events.Event) {
		phone, _ := e.Data["phone"].(string)
		n.Notify(fmt.Sprintf("[pawsfarm] %s banned", phone),
			fmt.Sprintf("Account %d (%s) was reported banned at %s.\n", e.AccountID, phone, e.Timestamp.Format(time.RFC3339)))
	})
}
