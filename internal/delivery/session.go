package delivery

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/emersion/go-smtp"
	coreerrors "github.com/welldanyogia/webrana-mailstore/internal/errors"
	"github.com/welldanyogia/webrana-mailstore/internal/validator"
)

// Session implements the go-smtp Session interface
type Session struct {
	backend    *Backend
	from       string
	recipients []string
}

// NewSession creates a new SMTP session
func NewSession(backend *Backend) *Session {
	return &Session{
		backend:    backend,
		recipients: make([]string, 0),
	}
}

// AuthPlain handles PLAIN authentication (not required for receiving)
func (s *Session) AuthPlain(username, password string) error {
	return nil
}

// Mail handles the MAIL FROM command
func (s *Session) Mail(from string, opts *smtp.MailOptions) error {
	s.from = from
	s.backend.logger.Debug("MAIL FROM", slog.String("from", from))
	return nil
}

// Rcpt handles the RCPT TO command. The recipient address doubles as the
// mailbox owner's username.
func (s *Session) Rcpt(to string, opts *smtp.RcptOptions) error {
	username, err := recipientUsername(to)
	if err != nil {
		return &smtp.SMTPError{
			Code:         550,
			EnhancedCode: smtp.EnhancedCode{5, 1, 1},
			Message:      "Invalid recipient address",
		}
	}

	s.recipients = append(s.recipients, username)
	s.backend.logger.Debug("RCPT TO", slog.String("to", to), slog.String("username", username))
	return nil
}

// Data handles the DATA command - receives the email content
func (s *Session) Data(r io.Reader) error {
	if len(s.recipients) == 0 {
		return &smtp.SMTPError{
			Code:         503,
			EnhancedCode: smtp.EnhancedCode{5, 5, 1},
			Message:      "No recipients specified",
		}
	}

	data, err := io.ReadAll(r)
	if err != nil {
		s.backend.logger.Error("failed to read message data", slog.Any("error", err))
		return &smtp.SMTPError{
			Code:         451,
			EnhancedCode: smtp.EnhancedCode{4, 3, 0},
			Message:      "Temporary error",
		}
	}

	LogPreview(s.backend.logger, s.backend.preview, data)

	ctx := context.Background()
	receivedAt := time.Now().UTC()

	delivered := 0
	var lastErr error
	for _, recipient := range s.recipients {
		if _, err := s.backend.manager.Deliver(ctx, recipient, bytes.NewReader(data), receivedAt); err != nil {
			s.backend.logger.Error("failed to deliver message",
				slog.String("recipient", recipient),
				slog.Any("error", err))
			lastErr = err
			// Continue processing other recipients
			continue
		}
		delivered++
	}

	s.backend.logger.Info("message received",
		slog.String("from", s.from),
		slog.Int("recipients", len(s.recipients)),
		slog.Int("delivered", delivered))

	if delivered == 0 {
		if coreerrors.IsRetryable(lastErr) {
			return &smtp.SMTPError{
				Code:         451,
				EnhancedCode: smtp.EnhancedCode{4, 3, 0},
				Message:      "Temporary delivery failure",
			}
		}
		return &smtp.SMTPError{
			Code:         550,
			EnhancedCode: smtp.EnhancedCode{5, 7, 1},
			Message:      "Delivery failed for all recipients",
		}
	}
	return nil
}

// Reset resets the session state
func (s *Session) Reset() {
	s.from = ""
	s.recipients = make([]string, 0)
}

// Logout handles the end of the session
func (s *Session) Logout() error {
	return nil
}

// recipientUsername maps an SMTP recipient address to a mailbox owner
// username.
func recipientUsername(address string) (string, error) {
	address = strings.TrimPrefix(address, "<")
	address = strings.TrimSuffix(address, ">")
	address = strings.ToLower(strings.TrimSpace(address))

	if err := validator.ValidateUsername(address); err != nil {
		return "", err
	}
	return address, nil
}
