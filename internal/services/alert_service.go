package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// SESAlertService notifies the parish support mailbox when an account
// latches into a permanent block, since only support can clear it.
type SESAlertService struct {
	sesClient      *ses.Client
	fromAddress    string
	supportAddress string
	logger         *slog.Logger
}

// NewSESAlertService creates an alert service backed by AWS SES.
func NewSESAlertService(region, fromAddress, supportAddress string, logger *slog.Logger) (*SESAlertService, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESAlertService{
		sesClient:      ses.NewFromConfig(cfg),
		fromAddress:    fromAddress,
		supportAddress: supportAddress,
		logger:         logger,
	}, nil
}

// NotifyPermanentBlock sends the support notification for a latched account.
func (s *SESAlertService) NotifyPermanentBlock(ctx context.Context, email string, at time.Time) error {
	subject := "Account permanently locked: " + email
	body := fmt.Sprintf(
		"The account %s was permanently locked at %s after repeated lockouts.\n\n"+
			"This lock does not expire. Verify the account owner before clearing it "+
			"from the admin dashboard.\n",
		email, at.UTC().Format(time.RFC3339),
	)

	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{s.supportAddress},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject), Charset: aws.String("UTF-8")},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body), Charset: aws.String("UTF-8")},
			},
		},
	}

	if _, err := s.sesClient.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("failed to send permanent block alert: %w", err)
	}

	s.logger.Info("permanent block alert sent", slog.String("email", email))
	return nil
}
