// Package notify tells reviewers and downstream systems about decisions:
// an SES email to the reviewer mailbox and a JSON event on an SNS topic.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	awsclients "loan-underwriting/internal/common/aws"
	"loan-underwriting/internal/common/config"
	apperrors "loan-underwriting/internal/common/errors"
	"loan-underwriting/internal/common/logger"
	"loan-underwriting/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/google/uuid"
)

const (
	StatusSent     = "sent"
	StatusDisabled = "disabled"
)

const (
	ChannelEmail = "email"
	ChannelSNS   = "sns"
)

const (
	subjectTemplate = "Loan application {{applicationId}}: {{decision}}"
	bodyTemplate    = `Applicant: {{applicantName}}
Application: {{applicationId}}
Decision: {{decision}}
Requested amount: {{loanAmount}}
Approved amount: {{approvedAmount}}
Interest rate: {{interestRate}}
Risk score: {{riskScore}}
Source: {{source}}

{{reasoning}}
`
)

// DecisionEvent is the SNS message body.
type DecisionEvent struct {
	EventID        string   `json:"event_id"`
	ApplicationID  string   `json:"application_id"`
	Decision       string   `json:"decision"`
	ApprovedAmount float64  `json:"approved_amount"`
	InterestRate   *float64 `json:"interest_rate"`
	RiskScore      float64  `json:"risk_score"`
	Source         string   `json:"source"`
	SubmittedAt    string   `json:"submitted_at"`
}

type Result struct {
	NotificationID string `json:"notificationId"`
	Status         string `json:"status"`
	EmailSent      bool   `json:"emailSent"`
	EventPublished bool   `json:"eventPublished"`
	SentAt         string `json:"sentAt"`
}

type Notifier struct {
	config    config.NotificationConfig
	sesClient awsclients.SESService
	snsClient awsclients.SNSService
	logger    logger.Logger
	now       func() time.Time
}

// New builds a Notifier with AWS clients for the enabled channels.
func New(ctx context.Context, cfg config.NotificationConfig, log logger.Logger) (*Notifier, error) {
	n := NewWithClients(cfg, nil, nil, log)
	if !cfg.Enabled() {
		return n, nil
	}
	awsCfg, err := awsclients.LoadConfig(ctx, cfg.AWS.Region)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	if cfg.Email.Enabled {
		n.sesClient = awsclients.NewSESClient(awsCfg)
	}
	if cfg.SNS.Enabled {
		n.snsClient = awsclients.NewSNSClient(awsCfg)
	}
	return n, nil
}

func NewWithClients(cfg config.NotificationConfig, sesClient awsclients.SESService, snsClient awsclients.SNSService, log logger.Logger) *Notifier {
	return &Notifier{
		config:    cfg,
		sesClient: sesClient,
		snsClient: snsClient,
		logger:    log.WithFields(map[string]interface{}{"component": "notifier"}),
		now:       time.Now,
	}
}

// Notify sends rec on every enabled channel. The first channel failure is
// returned; channels already sent stay sent.
func (n *Notifier) Notify(ctx context.Context, rec models.ApplicationRecord) (*Result, error) {
	res := &Result{
		NotificationID: uuid.New().String(),
		Status:         StatusDisabled,
		SentAt:         n.now().UTC().Format(time.RFC3339),
	}

	if n.config.Email.Enabled && n.sesClient != nil && n.config.Email.ToEmail != "" {
		if err := n.sendEmail(ctx, rec); err != nil {
			return res, apperrors.NewNotificationFailedError(ChannelEmail, err)
		}
		res.EmailSent = true
	}

	if n.config.SNS.Enabled && n.snsClient != nil && n.config.SNS.TopicARN != "" {
		if err := n.publishEvent(ctx, rec, res.NotificationID); err != nil {
			return res, apperrors.NewNotificationFailedError(ChannelSNS, err)
		}
		res.EventPublished = true
	}

	if res.EmailSent || res.EventPublished {
		res.Status = StatusSent
	}
	n.logger.Info("decision notification processed", map[string]interface{}{
		"applicationId":  rec.ApplicationID,
		"status":         res.Status,
		"emailSent":      res.EmailSent,
		"eventPublished": res.EventPublished,
	})
	return res, nil
}

func (n *Notifier) sendEmail(ctx context.Context, rec models.ApplicationRecord) error {
	data := templateData(rec)
	subject := renderTemplate(subjectTemplate, data)
	body := renderTemplate(bodyTemplate, data)

	_, err := n.sesClient.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{n.config.Email.ToEmail},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(n.config.Email.FromEmail),
	})
	return err
}

func (n *Notifier) publishEvent(ctx context.Context, rec models.ApplicationRecord, eventID string) error {
	event := DecisionEvent{
		EventID:        eventID,
		ApplicationID:  rec.ApplicationID,
		Decision:       string(rec.Status),
		ApprovedAmount: rec.ApprovedAmount,
		InterestRate:   rec.InterestRate,
		RiskScore:      rec.RiskScore,
		Source:         string(rec.Source),
		SubmittedAt:    rec.SubmittedAt.UTC().Format(time.RFC3339),
	}
	msg, err := json.Marshal(event)
	if err != nil {
		return err
	}

	_, err = n.snsClient.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.config.SNS.TopicARN),
		Message:  aws.String(string(msg)),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"decision": {
				DataType:    aws.String("String"),
				StringValue: aws.String(string(rec.Status)),
			},
		},
	})
	return err
}

func templateData(rec models.ApplicationRecord) map[string]interface{} {
	rate := "n/a"
	if rec.InterestRate != nil {
		rate = fmt.Sprintf("%.2f%%", *rec.InterestRate)
	}
	return map[string]interface{}{
		"applicationId":  rec.ApplicationID,
		"applicantName":  rec.ApplicantName,
		"decision":       strings.ToUpper(string(rec.Status)),
		"loanAmount":     fmt.Sprintf("$%.2f", rec.LoanAmount),
		"approvedAmount": fmt.Sprintf("$%.2f", rec.ApprovedAmount),
		"interestRate":   rate,
		"riskScore":      fmt.Sprintf("%.1f", rec.RiskScore),
		"source":         string(rec.Source),
		"reasoning":      rec.Reasoning,
	}
}

// renderTemplate substitutes {{key}} placeholders and drops unknown ones.
func renderTemplate(tmpl string, data map[string]interface{}) string {
	result := tmpl
	for k, v := range data {
		value := ""
		if v != nil {
			value = fmt.Sprintf("%v", v)
		}
		result = strings.ReplaceAll(result, "{{"+k+"}}", value)
	}

	for {
		start := strings.Index(result, "{{")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}}")
		if end == -1 {
			break
		}
		result = result[:start] + result[start+end+2:]
	}
	return result
}
