// Package notifier implements the outbound notification senders: an SES
// email sender for production and a log-only sender for environments
// without mail credentials.
package notifier

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/go-faster/errors"

	"github.com/cisasmendi/sistema-stock/internal/domain/notify"
)

// SESConfig carries the settings for the SES sender.
type SESConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SenderEmail     string
}

var _ notify.Sender = (*SESSender)(nil)

// SESSender delivers notifications as email through Amazon SES.
type SESSender struct {
	client *ses.Client
	sender string
}

// NewSESSender builds an SES client from static credentials.
func NewSESSender(ctx context.Context, cfg SESConfig) (*SESSender, error) {
	if cfg.SenderEmail == "" {
		return nil, errors.New("sender email address is not configured")
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, errors.Wrap(err, "load AWS config")
	}

	return &SESSender{
		client: ses.NewFromConfig(awsCfg),
		sender: cfg.SenderEmail,
	}, nil
}

// Send renders the template for kind and sends it to the given address.
func (s *SESSender) Send(ctx context.Context, to string, kind notify.Kind, o notify.OrderSnapshot) error {
	if to == "" {
		return errors.New("recipient email address is empty")
	}

	subject, body := renderTemplate(kind, o)
	input := &ses.SendEmailInput{
		Source: aws.String(s.sender),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Charset: aws.String("UTF-8"),
				Data:    aws.String(subject),
			},
			Body: &types.Body{
				Text: &types.Content{
					Charset: aws.String("UTF-8"),
					Data:    aws.String(body),
				},
			},
		},
	}

	if _, err := s.client.SendEmail(ctx, input); err != nil {
		return errors.Wrapf(err, "send %s email", kind)
	}
	return nil
}

func renderTemplate(kind notify.Kind, o notify.OrderSnapshot) (subject, body string) {
	switch kind {
	case notify.KindPaymentConfirmed:
		subject = fmt.Sprintf("Payment confirmed for order %s", o.OrderID)
		body = fmt.Sprintf(
			"Hello,\n\nWe received your payment for order %s (total %s).\n"+
				"We will let you know as soon as it ships.\n",
			o.OrderID, o.Total)
	case notify.KindShippingCode:
		subject = fmt.Sprintf("Your order %s is on its way", o.OrderID)
		body = fmt.Sprintf(
			"Hello,\n\nOrder %s has been dispatched.\n"+
				"Tracking code: %s\n",
			o.OrderID, o.ShippingCode)
	default:
		subject = fmt.Sprintf("Order %s received", o.OrderID)
		body = fmt.Sprintf(
			"Hello,\n\nThank you for your order!\n\n"+
				"Order ID: %s\nTotal: %s\n\n"+
				"It is reserved while we wait for your payment.\n",
			o.OrderID, o.Total)
	}
	return subject, body
}
