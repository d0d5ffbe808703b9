package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// Timeout bounds one delivery, connection included.
	Timeout time.Duration
}

// SMTPTransport sends mail through a relay, upgrading to TLS when the relay
// offers STARTTLS and authenticating with PLAIN when a username is set.
type SMTPTransport struct {
	config SMTPConfig
	dial   func(ctx context.Context, network, addr string) (net.Conn, error)
}

func NewSMTPTransport(config SMTPConfig) *SMTPTransport {
	if config.Port == 0 {
		config.Port = 587
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	dialer := &net.Dialer{}
	return &SMTPTransport{config: config, dial: dialer.DialContext}
}

func (t *SMTPTransport) Send(ctx context.Context, msg Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", Permanent(err)
	}
	if msg.To == "" || !strings.Contains(msg.To, "@") {
		return "", Permanent(fmt.Errorf("invalid recipient %q", msg.To))
	}

	ctx, cancel := context.WithTimeout(ctx, t.config.Timeout)
	defer cancel()

	id := fmt.Sprintf("<%s@%s>", uuid.NewString(), t.config.Host)
	raw := buildMessage(id, msg, time.Now())

	if err := t.deliver(ctx, msg.From, msg.To, raw); err != nil {
		// 5xx replies (unknown mailbox, auth rejected) will not succeed on retry.
		var tpErr *textproto.Error
		if errors.As(err, &tpErr) && tpErr.Code >= 500 {
			return "", Permanent(err)
		}
		return "", err
	}
	return id, nil
}

// deliver runs one SMTP session. The connection deadline follows ctx and a
// cancelled ctx unblocks any pending read or write.
func (t *SMTPTransport) deliver(ctx context.Context, from, to string, raw []byte) (err error) {
	addr := net.JoinHostPort(t.config.Host, strconv.Itoa(t.config.Port))
	conn, err := t.dial(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { conn.SetDeadline(time.Now()) })
	defer stop()

	defer func() {
		if err != nil && ctx.Err() != nil {
			err = fmt.Errorf("%w: %w", ctx.Err(), err)
		}
	}()

	c, err := smtp.NewClient(conn, t.config.Host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: t.config.Host}); err != nil {
			return fmt.Errorf("failed to start tls: %w", err)
		}
	}
	if t.config.Username != "" {
		if ok, _ := c.Extension("AUTH"); !ok {
			return Permanent(errors.New("smtp server does not support AUTH"))
		}
		if err := c.Auth(smtp.PlainAuth("", t.config.Username, t.config.Password, t.config.Host)); err != nil {
			return err
		}
	}

	if err := c.Mail(from); err != nil {
		return err
	}
	if err := c.Rcpt(to); err != nil {
		return err
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(raw); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	// the relay accepted the message; a failed QUIT must not trigger a resend
	if err := c.Quit(); err != nil {
		log.Debug().Err(err).Str("to", to).Msg("smtp quit failed after delivery")
	}
	return nil
}

func buildMessage(id string, msg Message, now time.Time) []byte {
	var sb strings.Builder
	sb.WriteString("From: " + msg.From + "\r\n")
	sb.WriteString("To: " + msg.To + "\r\n")
	sb.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", msg.Subject) + "\r\n")
	sb.WriteString("Message-ID: " + id + "\r\n")
	sb.WriteString("Date: " + now.Format(time.RFC1123Z) + "\r\n")
	sb.WriteString("MIME-Version: 1.0\r\n")
	sb.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	sb.WriteString("\r\n")
	sb.WriteString(strings.ReplaceAll(msg.HTML, "\n", "\r\n"))
	return []byte(sb.String())
}

// LogTransport only logs messages. Used for dry runs.
type LogTransport struct{}

func (LogTransport) Send(_ context.Context, msg Message) (string, error) {
	id := uuid.NewString()
	log.Info().Str("to", msg.To).Str("subject", msg.Subject).Str("message_id", id).Msg("dry run: notification not sent")
	return id, nil
}
