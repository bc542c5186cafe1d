// Package website publishes approved weeks as static site pages.
package website

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"genzweekly/internal/logger"
	"genzweekly/internal/store"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"gopkg.in/yaml.v3"
)

// PageSummaryLength caps story summaries on week pages.
const PageSummaryLength = 200

// FrontMatter is the YAML header of a week page.
type FrontMatter struct {
	Title   string    `yaml:"title"`
	WeekID  string    `yaml:"week_id"`
	Date    time.Time `yaml:"date"`
	Stories int       `yaml:"stories"`
	Audio   string    `yaml:"audio,omitempty"`
}

// Options configures a Publisher.
type Options struct {
	OutputDir     string // Week pages are written to OutputDir/<week>/
	BaseURL       string
	BuildCommand  string
	DeployCommand string
	Dir           string // Working directory for build and deploy commands
}

// Publisher writes week pages and runs the site's build and deploy commands.
type Publisher struct {
	opts Options
	run  func(ctx context.Context, dir, command string) ([]byte, error)
	now  func() time.Time
}

// NewPublisher creates a publisher.
func NewPublisher(opts Options) *Publisher {
	if opts.OutputDir == "" {
		opts.OutputDir = filepath.Join("website", "content", "weeks")
	}
	return &Publisher{opts: opts, run: runCommand, now: time.Now}
}

// Result lists what Publish produced.
type Result struct {
	PagePath string
	HTMLPath string
	Audio    string
	Built    bool
	Deployed bool
}

// BuildWeekPage renders the markdown page for a week. audio is the page
// relative audio path, empty when there is no podcast.
func BuildWeekPage(week store.ProcessedWeek, audio string, date time.Time) (string, error) {
	fm := FrontMatter{
		Title:   "Week " + week.Week.ID,
		WeekID:  week.Week.ID,
		Date:    date.UTC(),
		Stories: len(week.Stories),
		Audio:   audio,
	}
	header, err := yaml.Marshal(fm)
	if err != nil {
		return "", fmt.Errorf("failed to encode front matter: %w", err)
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(header)
	b.WriteString("---\n\n")
	b.WriteString(pageBody(week, audio))
	return b.String(), nil
}

func pageBody(week store.ProcessedWeek, audio string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Week %s\n\n", week.Week.ID)
	if !week.Week.Start.IsZero() {
		fmt.Fprintf(&b, "*%s - %s*\n\n", week.Week.Start.Format("Jan 2"), week.Week.End.Format("Jan 2, 2006"))
	}
	if audio != "" {
		fmt.Fprintf(&b, "🎧 [Listen to this week's podcast](%s)\n\n", audio)
	}

	for _, item := range week.Stories {
		art := item.Article
		title := art.Title
		if title == "" {
			title = "Untitled"
		}
		category := art.Category
		if category == "" {
			category = "News"
		}
		fmt.Fprintf(&b, "## %d. [%s](%s)\n\n", item.Rank, title, art.URL)
		fmt.Fprintf(&b, "**%s**", category)
		if art.Source != "" {
			fmt.Fprintf(&b, " · %s", art.Source)
		}
		b.WriteString("\n\n")
		if summary := strings.TrimSpace(art.Summary); summary != "" {
			if r := []rune(summary); len(r) > PageSummaryLength {
				summary = string(r[:PageSummaryLength]) + "..."
			}
			b.WriteString(summary)
			b.WriteString("\n\n")
		}
	}
	return b.String()
}

// RenderMarkdown converts markdown to HTML with external links opening in a
// new tab.
func RenderMarkdown(text string) string {
	if text == "" {
		return ""
	}
	mdParser := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	renderer := html.NewRenderer(html.RendererOptions{
		Flags: html.CommonFlags | html.HrefTargetBlank,
	})
	return string(markdown.ToHTML([]byte(text), mdParser, renderer))
}

// Publish writes the week's page, its HTML rendering, the podcast audio and
// the latest-stories data file, then runs the build and deploy commands when
// configured.
func (p *Publisher) Publish(ctx context.Context, week store.ProcessedWeek, audio []byte) (Result, error) {
	log := logger.With("website_agent")
	var res Result

	dir := filepath.Join(p.opts.OutputDir, week.Week.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return res, fmt.Errorf("failed to create page directory: %w", err)
	}

	audioRef := ""
	if len(audio) > 0 {
		res.Audio = filepath.Join(dir, "podcast.mp3")
		if err := os.WriteFile(res.Audio, audio, 0644); err != nil {
			return res, fmt.Errorf("failed to copy podcast: %w", err)
		}
		audioRef = "podcast.mp3"
	}

	page, err := BuildWeekPage(week, audioRef, p.now())
	if err != nil {
		return res, err
	}
	res.PagePath = filepath.Join(dir, "index.md")
	if err := os.WriteFile(res.PagePath, []byte(page), 0644); err != nil {
		return res, fmt.Errorf("failed to write page: %w", err)
	}

	res.HTMLPath = filepath.Join(dir, "index.html")
	body := RenderMarkdown(pageBody(week, audioRef))
	doc := fmt.Sprintf("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n<meta charset=\"UTF-8\">\n<title>Week %s</title>\n</head>\n<body>\n%s</body>\n</html>\n", week.Week.ID, body)
	if err := os.WriteFile(res.HTMLPath, []byte(doc), 0644); err != nil {
		return res, fmt.Errorf("failed to write html page: %w", err)
	}

	if err := p.writeLatest(week); err != nil {
		return res, err
	}
	log.Info("Week page written", "week_id", week.Week.ID, "path", res.PagePath)

	if p.opts.BuildCommand != "" {
		if out, err := p.run(ctx, p.opts.Dir, p.opts.BuildCommand); err != nil {
			return res, fmt.Errorf("build failed: %w: %s", err, strings.TrimSpace(string(out)))
		}
		res.Built = true
		log.Info("Website built", "command", p.opts.BuildCommand)
	}
	if p.opts.DeployCommand != "" {
		if out, err := p.run(ctx, p.opts.Dir, p.opts.DeployCommand); err != nil {
			return res, fmt.Errorf("deploy failed: %w: %s", err, strings.TrimSpace(string(out)))
		}
		res.Deployed = true
		log.Info("Website deployed", "command", p.opts.DeployCommand)
	}
	return res, nil
}

type latestData struct {
	WeekID  string    `json:"weekId"`
	Stories any       `json:"stories"`
	Updated time.Time `json:"updated"`
	URL     string    `json:"url,omitempty"`
}

func (p *Publisher) writeLatest(week store.ProcessedWeek) error {
	data := latestData{WeekID: week.Week.ID, Stories: week.Stories, Updated: p.now()}
	if p.opts.BaseURL != "" {
		data.URL = strings.TrimRight(p.opts.BaseURL, "/") + "/weeks/" + week.Week.ID + "/"
	}
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode latest stories: %w", err)
	}
	path := filepath.Join(p.opts.OutputDir, "latest-stories.json")
	if err := os.WriteFile(path, raw, 0644); err != nil {
		return fmt.Errorf("failed to write latest stories: %w", err)
	}
	return nil
}

func runCommand(ctx context.Context, dir, command string) ([]byte, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, nil
	}
	cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}
