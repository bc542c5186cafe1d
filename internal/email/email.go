package email

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"mime"
	"net"
	"net/smtp"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"genzweekly/internal/config"
	"genzweekly/internal/core"
	"genzweekly/internal/logger"
	"genzweekly/internal/store"
)

// ReportSummaryLength caps story summaries in the approval report.
const ReportSummaryLength = 300

// ErrNotConfigured is returned by Sender.Send when SMTP credentials are missing.
var ErrNotConfigured = errors.New("email credentials not configured")

// EmailTemplate represents an HTML email template configuration
type EmailTemplate struct {
	Name            string
	Subject         string
	IncludeCSS      bool
	HeaderColor     string
	AccentColor     string
	BackgroundColor string
	TextColor       string
	LinkColor       string
	BorderColor     string
	MaxWidth        string
	FontFamily      string
}

// ReportStory is one ranked story as shown to the approver.
type ReportStory struct {
	Rank      int
	Category  string
	Title     string
	Summary   string
	Source    string
	URL       string
	Score     string
	Published string
	Reason    string
}

// ApprovalData contains all data needed for the approval report
type ApprovalData struct {
	WeekID     string
	Period     string
	Stories    []ReportStory
	Categories []string
	Confidence string
	Iterations int
	Converged  bool
	Command    string
}

// NewsletterData wraps the refined newsletter body
type NewsletterData struct {
	Title   string
	WeekID  string
	Period  string
	Content template.HTML
}

// GetApprovalEmailTemplate returns the template used for weekly approval requests
func GetApprovalEmailTemplate() *EmailTemplate {
	return &EmailTemplate{
		Name:            "approval",
		Subject:         "Weekly News Digest Approval - Week {{.WeekID}}",
		IncludeCSS:      true,
		HeaderColor:     "#6366F1", // Indigo-500
		AccentColor:     "#10b981", // Emerald-500
		BackgroundColor: "#f5f5f5",
		TextColor:       "#333333",
		LinkColor:       "#6366F1",
		BorderColor:     "#e2e8f0",
		MaxWidth:        "800px",
		FontFamily:      "-apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Oxygen, Ubuntu, Cantarell, sans-serif",
	}
}

// GetNewsletterEmailTemplate returns the reader-facing newsletter template
func GetNewsletterEmailTemplate() *EmailTemplate {
	return &EmailTemplate{
		Name:            "newsletter",
		Subject:         "Gen Z News Digest - Week {{.WeekID}}",
		IncludeCSS:      true,
		HeaderColor:     "#6366F1",
		AccentColor:     "#f59e0b", // Amber-500
		BackgroundColor: "#ffffff",
		TextColor:       "#1e293b",
		LinkColor:       "#6366F1",
		BorderColor:     "#e5e7eb",
		MaxWidth:        "600px",
		FontFamily:      "Arial, sans-serif",
	}
}

// getEmailCSS returns CSS styles for the email
func getEmailCSS(tmpl *EmailTemplate) string {
	return fmt.Sprintf(`
<style>
  body {
    font-family: %s;
    line-height: 1.6;
    color: %s;
    background-color: %s;
    max-width: %s;
    margin: 0 auto;
    padding: 20px;
  }
  .container {
    background: #ffffff;
    border-radius: 8px;
    padding: 30px;
    box-shadow: 0 2px 4px rgba(0,0,0,0.1);
  }
  h1 {
    color: %s;
    border-bottom: 3px solid %s;
    padding-bottom: 10px;
  }
  a {
    color: %s;
    text-decoration: none;
    font-weight: 500;
  }
  .summary {
    background: #f8f9fa;
    padding: 15px;
    border-radius: 5px;
    margin: 20px 0;
  }
  .story {
    margin: 25px 0;
    padding: 20px;
    border-left: 4px solid %s;
    background: #fafafa;
    border-radius: 4px;
  }
  .category {
    display: inline-block;
    background: %s;
    color: #ffffff;
    padding: 4px 12px;
    border-radius: 12px;
    font-size: 0.85em;
    font-weight: bold;
    text-transform: uppercase;
  }
  .rank {
    color: #666666;
    font-size: 0.9em;
    font-weight: bold;
    margin-left: 8px;
  }
  .story-meta {
    margin-top: 15px;
    font-size: 0.9em;
    color: #777777;
  }
  .score {
    display: inline-block;
    background: %s;
    color: #ffffff;
    padding: 4px 10px;
    border-radius: 12px;
    font-weight: bold;
  }
  .actions {
    margin-top: 30px;
    padding: 20px;
    background: #fff3cd;
    border-left: 4px solid #ffc107;
    border-radius: 4px;
  }
  .actions code {
    background: #f8f9fa;
    padding: 2px 6px;
    border-radius: 3px;
    font-family: 'Courier New', monospace;
  }
  .footer {
    margin-top: 24px;
    padding-top: 12px;
    border-top: 1px solid %s;
    font-size: 13px;
    color: #64748b;
    text-align: center;
  }
</style>
`,
		tmpl.FontFamily, tmpl.TextColor, tmpl.BackgroundColor, tmpl.MaxWidth,
		tmpl.HeaderColor, tmpl.HeaderColor, tmpl.LinkColor, tmpl.HeaderColor,
		tmpl.HeaderColor, tmpl.AccentColor, tmpl.BorderColor)
}

const approvalHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Weekly News Digest Approval - Week {{.Data.WeekID}}</title>
    {{if .Template.IncludeCSS}}{{.CSS}}{{end}}
</head>
<body>
    <div class="container">
        <h1>📰 Weekly News Digest - Approval Request</h1>

        <div class="summary">
            <strong>Week:</strong> {{.Data.WeekID}}{{if .Data.Period}} ({{.Data.Period}}){{end}}<br>
            <strong>Total Stories:</strong> {{len .Data.Stories}}<br>
            <strong>Categories:</strong> {{join .Data.Categories ", "}}<br>
            <strong>Ranking confidence:</strong> {{.Data.Confidence}} after {{.Data.Iterations}} iteration(s){{if not .Data.Converged}} (budget exhausted){{end}}
        </div>

        <h2>Top Stories for This Week</h2>
        {{range .Data.Stories}}
        <div class="story">
            <div>
                <span class="category">{{.Category}}</span>
                <span class="rank">Rank #{{.Rank}}</span>
            </div>
            <h3>{{.Title}}</h3>
            {{if .Summary}}<p>{{.Summary}}</p>{{end}}
            <div class="story-meta">
                <span>Source: {{.Source}}</span>
                <span class="score">⭐ {{.Score}}</span>
                {{if .Published}}<span>Published: {{.Published}}</span>{{end}}
            </div>
            {{if .Reason}}<p><em>{{.Reason}}</em></p>{{end}}
            <p><a href="{{.URL}}" target="_blank">🔗 Read Full Article →</a></p>
        </div>
        {{end}}

        <div class="actions">
            <h3>📋 Approval Actions</h3>
            <p><strong>To approve this week's digest:</strong></p>
            <p><code>{{.Data.Command}} approve {{.Data.WeekID}}</code></p>
            <p><strong>To reject:</strong></p>
            <p><code>{{.Data.Command}} reject {{.Data.WeekID}} --note "reason"</code></p>
            <p><strong>After approval, run:</strong></p>
            <p><code>{{.Data.Command}} publish {{.Data.WeekID}}</code></p>
        </div>
    </div>
</body>
</html>`

const newsletterHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Data.Title}}</title>
    {{if .Template.IncludeCSS}}{{.CSS}}{{end}}
</head>
<body>
    <div class="container">
        <h1>{{.Data.Title}}</h1>
        {{if .Data.Period}}<p class="story-meta">{{.Data.Period}}</p>{{end}}
        {{.Data.Content}}
        <div class="footer">Week {{.Data.WeekID}}</div>
    </div>
</body>
</html>`

// BuildApprovalData converts a processed week into report data. command is
// the CLI name shown in the approval instructions.
func BuildApprovalData(week store.ProcessedWeek, command string) ApprovalData {
	if command == "" {
		command = "genzweekly"
	}
	data := ApprovalData{
		WeekID:     week.Week.ID,
		Period:     formatPeriod(week.Week),
		Confidence: strconv.FormatFloat(week.Confidence, 'f', 2, 64),
		Iterations: week.Iterations,
		Converged:  week.Converged,
		Command:    command,
	}

	seen := make(map[string]bool)
	for _, item := range week.Stories {
		data.Stories = append(data.Stories, reportStory(item))
		if !seen[item.Article.Category] {
			seen[item.Article.Category] = true
			data.Categories = append(data.Categories, item.Article.Category)
		}
	}
	sort.Strings(data.Categories)
	return data
}

func reportStory(item core.RankedItem) ReportStory {
	art := item.Article
	story := ReportStory{
		Rank:     item.Rank,
		Category: art.Category,
		Title:    art.Title,
		Summary:  art.Summary,
		Source:   art.Source,
		URL:      art.URL,
		Score:    strconv.FormatFloat(item.ImportanceScore, 'f', 2, 64),
		Reason:   item.SelectionReason,
	}
	if r := []rune(story.Summary); len(r) > ReportSummaryLength {
		story.Summary = string(r[:ReportSummaryLength]) + "..."
	}
	if !art.PublishDate.IsZero() {
		story.Published = art.PublishDate.Format("2006-01-02")
	}
	return story
}

func formatPeriod(week core.Week) string {
	if week.Start.IsZero() {
		return ""
	}
	return week.Start.Format("Jan 2") + " - " + week.End.Format("Jan 2, 2006")
}

// RenderApprovalReport renders the approval request for a processed week
func RenderApprovalReport(data ApprovalData, emailTemplate *EmailTemplate) (string, error) {
	return render("approval", approvalHTML, data, emailTemplate)
}

// RenderNewsletter wraps refined newsletter content in the reader template.
// The content is trusted HTML produced by the content refiner.
func RenderNewsletter(week core.Week, content string, emailTemplate *EmailTemplate) (string, error) {
	data := NewsletterData{
		Title:   "Gen Z News Digest",
		WeekID:  week.ID,
		Period:  formatPeriod(week),
		Content: template.HTML(content),
	}
	return render("newsletter", newsletterHTML, data, emailTemplate)
}

func render(name, body string, data any, emailTemplate *EmailTemplate) (string, error) {
	if emailTemplate == nil {
		emailTemplate = GetApprovalEmailTemplate()
	}

	tmpl, err := template.New(name).Funcs(template.FuncMap{"join": strings.Join}).Parse(body)
	if err != nil {
		return "", fmt.Errorf("failed to parse %s template: %w", name, err)
	}

	templateData := struct {
		Data     any
		Template *EmailTemplate
		CSS      template.HTML
	}{
		Data:     data,
		Template: emailTemplate,
		CSS:      template.HTML(getEmailCSS(emailTemplate)),
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, templateData); err != nil {
		return "", fmt.Errorf("failed to execute %s template: %w", name, err)
	}

	return buf.String(), nil
}

// GenerateSubject generates email subject using template
func GenerateSubject(emailTemplate *EmailTemplate, weekID string) (string, error) {
	tmpl, err := template.New("subject").Parse(emailTemplate.Subject)
	if err != nil {
		return "", fmt.Errorf("failed to parse subject template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, struct{ WeekID string }{weekID}); err != nil {
		return "", fmt.Errorf("failed to execute subject template: %w", err)
	}

	return buf.String(), nil
}

// WriteHTMLEmail writes HTML email content to file
func WriteHTMLEmail(content string, outputDir string, filename string) (string, error) {
	if !strings.HasSuffix(filename, ".html") {
		filename = strings.TrimSuffix(filename, ".md") + ".html"
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(outputDir, filename)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("failed to write email file: %w", err)
	}
	return path, nil
}

// Sender delivers HTML mail over SMTP.
type Sender struct {
	cfg      config.Email
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	now      func() time.Time
}

// NewSender creates a sender for the configured SMTP account.
func NewSender(cfg config.Email) *Sender {
	return &Sender{cfg: cfg, sendMail: smtp.SendMail, now: time.Now}
}

// Configured reports whether credentials and a sender address are present.
func (s *Sender) Configured() bool {
	return s.cfg.SMTP.Username != "" && s.cfg.SMTP.Password != "" && s.from() != ""
}

func (s *Sender) from() string {
	if s.cfg.FromAddress != "" {
		return s.cfg.FromAddress
	}
	return s.cfg.SMTP.Username
}

// Send delivers an HTML message to recipient. smtp.SendMail upgrades the
// connection with STARTTLS when the server offers it.
func (s *Sender) Send(recipient, subject, html string) error {
	log := logger.With("email")
	if !s.Configured() {
		log.Warn("Email credentials not configured, skipping send", "subject", subject)
		return ErrNotConfigured
	}
	if recipient == "" {
		return fmt.Errorf("no recipient for %q", subject)
	}

	addr := net.JoinHostPort(s.cfg.SMTP.Host, strconv.Itoa(s.cfg.SMTP.Port))
	auth := smtp.PlainAuth("", s.cfg.SMTP.Username, s.cfg.SMTP.Password, s.cfg.SMTP.Host)

	msg := s.buildMessage(recipient, subject, html)
	if err := s.sendMail(addr, auth, s.from(), []string{recipient}, msg); err != nil {
		return fmt.Errorf("failed to send email via %s: %w", addr, err)
	}

	log.Info("Email sent", "recipient", recipient, "subject", subject)
	return nil
}

// SendApprovalRequest renders and mails the approval report for week.
func (s *Sender) SendApprovalRequest(week store.ProcessedWeek, command string) error {
	tmpl := GetApprovalEmailTemplate()
	html, err := RenderApprovalReport(BuildApprovalData(week, command), tmpl)
	if err != nil {
		return err
	}
	subject, err := GenerateSubject(tmpl, week.Week.ID)
	if err != nil {
		return err
	}
	return s.Send(s.cfg.ApprovalRecipient, subject, html)
}

func (s *Sender) buildMessage(recipient, subject, html string) []byte {
	from := s.from()
	if s.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", s.cfg.FromName), from)
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", recipient)
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", s.now().Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(html)
	return buf.Bytes()
}
