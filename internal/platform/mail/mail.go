// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package mail renders and delivers the transactional emails of the account
lifecycle: verification codes and password reset links.

Architecture:

  - Sender: Provider-agnostic delivery of a rendered [Message].
  - ResendSender: Delivery through the Resend HTTP API.
  - Mailer: Renders the embedded pongo2 templates and annotates them with the
    requester's approximate location and the UTC request time.
*/
package mail

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/flosch/pongo2/v6"

	"github.com/taibuivan/authkeeper/internal/platform/constants"
	"github.com/taibuivan/authkeeper/internal/platform/ctxutil"
	"github.com/taibuivan/authkeeper/internal/platform/geo"
)

// # Contracts & Types

// Message is a fully rendered email ready for delivery.
type Message struct {
	From    string
	To      string
	Subject string
	HTML    string
}

// Sender delivers a rendered message.
type Sender interface {
	// Send hands the message to the provider.
	//
	// # Returns
	//   - err: Any provider or transport failure. Callers treat every error
	//     as "the email was not delivered".
	Send(ctx context.Context, message Message) error
}

// VerificationNotice carries the data of a verification code email.
type VerificationNotice struct {
	Email string
	Code  string
	IP    string
}

// ResetNotice carries the data of a password reset email.
type ResetNotice struct {
	Email    string
	ResetURL string
	IP       string
}

// # Templates

// timeLayout renders request times like "02 January 2006, 15:04 UTC".
const timeLayout = "02 January 2006, 15:04 UTC"

// unknownLocation is shown when the requester cannot be located.
const unknownLocation = "an unknown location"

//go:embed templates/*.html
var templateFiles embed.FS

// templates holds the compiled email bodies.
type templates struct {
	verification *pongo2.Template
	reset        *pongo2.Template
}

func loadTemplates() (*templates, error) {
	compile := func(name string) (*pongo2.Template, error) {
		source, err := templateFiles.ReadFile("templates/" + name)
		if err != nil {
			return nil, fmt.Errorf("mail: failed to read template %s: %w", name, err)
		}
		template, err := pongo2.FromBytes(source)
		if err != nil {
			return nil, fmt.Errorf("mail: failed to compile template %s: %w", name, err)
		}
		return template, nil
	}

	verification, err := compile("verification.html")
	if err != nil {
		return nil, err
	}
	reset, err := compile("reset.html")
	if err != nil {
		return nil, err
	}

	return &templates{verification: verification, reset: reset}, nil
}

// # Mailer

// Mailer renders lifecycle emails and hands them to a [Sender].
type Mailer struct {
	sender    Sender
	locator   geo.Locator
	from      string
	templates *templates
	now       func() time.Time
}

// NewMailer compiles the templates and wires the collaborators.
// A nil locator disables location lookups.
func NewMailer(sender Sender, locator geo.Locator, from string) (*Mailer, error) {
	compiled, err := loadTemplates()
	if err != nil {
		return nil, err
	}

	return &Mailer{
		sender:    sender,
		locator:   locator,
		from:      from,
		templates: compiled,
		now:       time.Now,
	}, nil
}

// WithClock replaces the time source used for the request timestamp.
func (mailer *Mailer) WithClock(now func() time.Time) *Mailer {
	mailer.now = now
	return mailer
}

/*
SendVerificationCode emails a one-time verification code.

Parameters:
  - ctx: context.Context
  - notice: VerificationNotice

Returns:
  - err: Rendering or delivery failures
*/
func (mailer *Mailer) SendVerificationCode(ctx context.Context, notice VerificationNotice) error {
	body, err := mailer.templates.verification.Execute(pongo2.Context{
		"code":         notice.Code,
		"location":     mailer.locate(ctx, notice.IP),
		"requested_at": mailer.now().UTC().Format(timeLayout),
	})
	if err != nil {
		return fmt.Errorf("mail_render_verification_failed: %w", err)
	}

	return mailer.deliver(ctx, Message{
		From:    mailer.from,
		To:      notice.Email,
		Subject: fmt.Sprintf("%s is your verification code", notice.Code),
		HTML:    body,
	})
}

/*
SendPasswordReset emails a password reset link.

Parameters:
  - ctx: context.Context
  - notice: ResetNotice

Returns:
  - err: Rendering or delivery failures
*/
func (mailer *Mailer) SendPasswordReset(ctx context.Context, notice ResetNotice) error {
	body, err := mailer.templates.reset.Execute(pongo2.Context{
		"reset_url":          notice.ResetURL,
		"expires_in_minutes": int(constants.ResetTokenTTL.Minutes()),
		"location":           mailer.locate(ctx, notice.IP),
		"requested_at":       mailer.now().UTC().Format(timeLayout),
	})
	if err != nil {
		return fmt.Errorf("mail_render_reset_failed: %w", err)
	}

	return mailer.deliver(ctx, Message{
		From:    mailer.from,
		To:      notice.Email,
		Subject: "Password Reset Request",
		HTML:    body,
	})
}

func (mailer *Mailer) deliver(ctx context.Context, message Message) error {
	if err := mailer.sender.Send(ctx, message); err != nil {
		return fmt.Errorf("mail_delivery_failed: %w", err)
	}

	ctxutil.GetLogger(ctx).InfoContext(ctx, "mail_sent", slog.String("subject", message.Subject))
	return nil
}

// locate never fails; lookup errors are logged and replaced by a placeholder.
func (mailer *Mailer) locate(ctx context.Context, ip string) string {
	if mailer.locator == nil {
		return unknownLocation
	}

	location, err := mailer.locator.Locate(ctx, ip)
	if err != nil || location.IsZero() {
		if err != nil {
			ctxutil.GetLogger(ctx).DebugContext(ctx, "geo_lookup_failed", slog.Any("error", err))
		}
		return unknownLocation
	}
	return location.String()
}
