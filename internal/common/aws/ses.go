// internal/common/aws/ses.go
package aws

import (
	"context"
	"fmt"
	"strings"

	"circulation-workers/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESService is the subset of the SES client used here, for mocking.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESNotifier delivers email payloads through Amazon SES.
type SESNotifier struct {
	client    SESService
	fromEmail string
}

func NewSESNotifier(ctx context.Context, region, fromEmail string) (*SESNotifier, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewSESNotifierWithClient(ses.NewFromConfig(cfg), fromEmail), nil
}

func NewSESNotifierWithClient(client SESService, fromEmail string) *SESNotifier {
	return &SESNotifier{client: client, fromEmail: fromEmail}
}

func (n *SESNotifier) Name() string { return "ses" }

// Send emails the payload as plain text. To and Cc may hold several
// comma-separated addresses.
func (n *SESNotifier) Send(ctx context.Context, payload models.EmailPayload) error {
	to := splitAddresses(payload.To)
	if len(to) == 0 {
		return fmt.Errorf("ses: no recipient for %q", payload.Subject)
	}

	_, err := n.client.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: to,
			CcAddresses: splitAddresses(payload.Cc),
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(payload.Subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(payload.Body)},
			},
		},
		Source: aws.String(n.fromEmail),
	})
	if err != nil {
		return fmt.Errorf("ses send: %w", err)
	}
	return nil
}

func splitAddresses(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
