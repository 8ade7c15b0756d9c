package service

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"speakwise/internal/models"
)

// ReportService sends progress report emails via Amazon SES.
type ReportService struct {
	client    *sesv2.Client
	fromEmail string
	fromName  string
	enabled   bool
	progress  *ProgressService
}

// NewReportService creates a report service. An empty fromEmail creates a
// disabled service that logs and skips all sends.
func NewReportService(awsRegion, fromEmail, fromName string, progress *ProgressService) (*ReportService, error) {
	if fromEmail == "" {
		log.Println("Report service disabled: SES_FROM_EMAIL not configured")
		return &ReportService{enabled: false, progress: progress}, nil
	}

	cfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithRegion(awsRegion),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	log.Printf("Report service enabled: from=%s, region=%s", fromEmail, awsRegion)
	return &ReportService{
		client:    sesv2.NewFromConfig(cfg),
		fromEmail: fromEmail,
		fromName:  fromName,
		enabled:   true,
		progress:  progress,
	}, nil
}

// IsEnabled returns whether the report service can send email.
func (s *ReportService) IsEnabled() bool {
	return s.enabled
}

// SendProgressReport emails a learner's current progress summary.
func (s *ReportService) SendProgressReport(ctx context.Context, toEmail, learnerID, learnerName string) error {
	if !s.enabled {
		log.Printf("Skipping email send (service disabled): progress report to %s", toEmail)
		return nil
	}

	records, err := s.progress.ListProgress(learnerID)
	if err != nil {
		return fmt.Errorf("load progress for %s: %w", learnerID, err)
	}
	points, err := s.progress.TotalPoints(learnerID)
	if err != nil {
		return fmt.Errorf("total points for %s: %w", learnerID, err)
	}
	sessions, err := s.progress.RecentSessions(learnerID, 5)
	if err != nil {
		return fmt.Errorf("recent sessions for %s: %w", learnerID, err)
	}

	subject := fmt.Sprintf("Speakwise Progress Report for %s", learnerName)
	htmlBody := buildReportHTML(learnerName, points, records, sessions)
	textBody := buildReportText(learnerName, points, records, sessions)

	return s.sendEmail(ctx, toEmail, subject, htmlBody, textBody)
}

func buildReportHTML(learnerName string, points int, records []models.ProgressRecord, sessions []models.SessionRecord) string {
	var rows strings.Builder
	for _, rec := range records {
		status := "In progress"
		if rec.Completed {
			status = "Completed"
		} else if rec.Enrolled {
			status = "Enrolled"
		}
		fmt.Fprintf(&rows, `<tr><td>%s</td><td>%s</td><td>%.0f%%</td><td>%d</td><td>%s</td></tr>`,
			rec.TopicID, rec.UnitID, rec.Percentage, rec.CompletedSteps, status)
	}

	var recent strings.Builder
	for _, sess := range sessions {
		fmt.Fprintf(&recent, `<li>%s: %.0f%% (%d points)</li>`,
			sess.CompletedAt.Format("2 Jan 2006"), sess.AggregatePercentage, sess.PointsEarned)
	}

	return fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<style>
		body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
		.container { max-width: 600px; margin: 0 auto; padding: 20px; }
		.header { background-color: #4a90e2; color: white; padding: 20px; text-align: center; border-radius: 5px 5px 0 0; }
		.content { background-color: #f9f9f9; padding: 30px; border-radius: 0 0 5px 5px; }
		table { width: 100%%; border-collapse: collapse; margin: 15px 0; }
		th, td { padding: 8px; border-bottom: 1px solid #ddd; text-align: left; }
		.footer { text-align: center; margin-top: 20px; font-size: 12px; color: #666; }
	</style>
</head>
<body>
	<div class="container">
		<div class="header">
			<h1>Progress Report</h1>
		</div>
		<div class="content">
			<p>Here is how %s is doing with their speaking practice.</p>
			<p><strong>Total points earned: %d</strong></p>
			<table>
				<tr><th>Topic</th><th>Unit</th><th>Average</th><th>Steps passed</th><th>Status</th></tr>
				%s
			</table>
			<p>Recent sessions:</p>
			<ul>%s</ul>
		</div>
		<div class="footer">
			<p>This is an automated email from Speakwise. Please do not reply.</p>
		</div>
	</div>
</body>
</html>
`, learnerName, points, rows.String(), recent.String())
}

func buildReportText(learnerName string, points int, records []models.ProgressRecord, sessions []models.SessionRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Progress report for %s\n\nTotal points earned: %d\n\n", learnerName, points)
	for _, rec := range records {
		status := "in progress"
		if rec.Completed {
			status = "completed"
		} else if rec.Enrolled {
			status = "enrolled"
		}
		fmt.Fprintf(&b, "- %s / %s: %.0f%% average, %d steps passed (%s)\n",
			rec.TopicID, rec.UnitID, rec.Percentage, rec.CompletedSteps, status)
	}
	b.WriteString("\nRecent sessions:\n")
	for _, sess := range sessions {
		fmt.Fprintf(&b, "- %s: %.0f%% (%d points)\n",
			sess.CompletedAt.Format("2 Jan 2006"), sess.AggregatePercentage, sess.PointsEarned)
	}
	b.WriteString("\n---\nThis is an automated email from Speakwise. Please do not reply.\n")
	return b.String()
}

// sendEmail sends an email using Amazon SES.
func (s *ReportService) sendEmail(ctx context.Context, toEmail, subject, htmlBody, textBody string) error {
	fromAddress := s.fromEmail
	if s.fromName != "" {
		fromAddress = fmt.Sprintf("%s <%s>", s.fromName, s.fromEmail)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{toEmail},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{
					Data:    aws.String(subject),
					Charset: aws.String("UTF-8"),
				},
				Body: &types.Body{
					Html: &types.Content{
						Data:    aws.String(htmlBody),
						Charset: aws.String("UTF-8"),
					},
					Text: &types.Content{
						Data:    aws.String(textBody),
						Charset: aws.String("UTF-8"),
					},
				},
			},
		},
	}

	if _, err := s.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", toEmail, err)
	}

	log.Printf("Email sent successfully: to=%s, subject=%s", toEmail, subject)
	return nil
}
