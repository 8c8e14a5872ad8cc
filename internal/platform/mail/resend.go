// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package mail

import (
	"context"
	"fmt"

	"github.com/resend/resend-go/v2"
)

// ResendSender delivers messages through the Resend API.
type ResendSender struct {
	client *resend.Client
}

// NewResendSender creates a sender authenticated with apiKey.
func NewResendSender(apiKey string) *ResendSender {
	return &ResendSender{client: resend.NewClient(apiKey)}
}

// Send implements [Sender].
func (sender *ResendSender) Send(ctx context.Context, message Message) error {
	request := &resend.SendEmailRequest{
		From:    message.From,
		To:      []string{message.To},
		Subject: message.Subject,
		Html:    message.HTML,
	}

	if _, err := sender.client.Emails.SendWithContext(ctx, request); err != nil {
		return fmt.Errorf("resend: %w", err)
	}
	return nil
}
