package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"genzweekly/internal/core"
	"genzweekly/internal/email"
	"genzweekly/internal/events"
	"genzweekly/internal/store"

	"github.com/google/uuid"
)

// ScrapeReport summarizes a daily scrape.
type ScrapeReport struct {
	Day    time.Time
	Counts map[string]int // Stored articles per category
	Failed []string       // Categories that could not be scraped
	Total  int
}

func newRun() events.Event {
	return events.Event{CorrelationID: uuid.NewString()}
}

// categories returns the configured categories in priority order.
func (p *Pipeline) categories() []core.CategoryConfig {
	sorted := append([]core.CategoryConfig(nil), p.config.Categories...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority < sorted[j].Priority
	})
	return sorted
}

// RunDailyScrape scrapes every category, filters the results for quality
// and stores what survives under today's date. A failing category is
// reported and skipped.
func (p *Pipeline) RunDailyScrape(ctx context.Context) (ScrapeReport, error) {
	report := ScrapeReport{Day: p.config.Now(), Counts: make(map[string]int)}
	if p.scraper == nil {
		return report, fmt.Errorf("scraper: %w", ErrNotConfigured)
	}

	run := newRun()
	p.log.Info("Starting daily news scrape", "categories", len(p.config.Categories))

	for _, category := range p.categories() {
		sources := p.config.SourcesFor(category.Name)
		if len(sources) == 0 {
			p.log.Warn("No sources configured", "category", category.Name)
			continue
		}

		articles, err := p.scrapeCategory(ctx, category.Name, sources)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			report.Failed = append(report.Failed, category.Name)
			p.reportError(ctx, run, AgentScraper, fmt.Errorf("category %s: %w", category.Name, err))
			continue
		}

		if err := p.store.SaveRaw(ctx, category.Name, report.Day, articles); err != nil {
			return report, err
		}
		report.Counts[category.Name] = len(articles)
		report.Total += len(articles)

		p.emit(ctx, run, events.NewsScraped, AgentScraper, map[string]any{
			"category": category.Name,
			"count":    len(articles),
			"date":     report.Day.Format("2006-01-02"),
		})
	}

	p.log.Info("Daily scrape complete", "total", report.Total, "failed", len(report.Failed))
	return report, nil
}

func (p *Pipeline) scrapeCategory(ctx context.Context, category string, sources []core.Source) ([]core.Article, error) {
	articles, err := p.scraper.ScrapeCategory(ctx, category, sources)
	if err != nil {
		return nil, err
	}
	p.log.Info("Scraped category", "category", category, "articles", len(articles))

	if p.filter == nil || len(articles) == 0 {
		return articles, nil
	}
	return p.filter.Filter(ctx, articles)
}

// RunWeeklyConsolidation ranks the current week's stored articles, saves the
// selection for approval, writes the approval report and mails it.
func (p *Pipeline) RunWeeklyConsolidation(ctx context.Context) (*store.ProcessedWeek, error) {
	if p.ranker == nil {
		return nil, fmt.Errorf("ranker: %w", ErrNotConfigured)
	}

	week := core.WeekOf(p.config.Now())
	p.log.Info("Starting weekly consolidation", "week_id", week.ID,
		"start", week.Start.Format("2006-01-02"), "end", week.End.Format("2006-01-02"))

	weekly, err := p.store.LoadWeeklyRaw(ctx, week.Start, week.End)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, articles := range weekly {
		total += len(articles)
	}
	if total == 0 {
		return nil, fmt.Errorf("%w %s", ErrNoStories, week.ID)
	}

	result, err := p.ranker.Rank(ctx, weekly)
	if err != nil {
		return nil, err
	}
	if len(result.Stories) == 0 {
		return nil, fmt.Errorf("%w %s", ErrNoStories, week.ID)
	}
	for _, u := range result.Underfilled {
		p.log.Warn("Category below minimum", "category", u.Category, "want", u.Want, "got", u.Got)
	}

	if err := p.store.SaveProcessed(ctx, store.ProcessedWeek{
		Week:        week,
		Stories:     result.Stories,
		Confidence:  result.Confidence,
		Iterations:  result.Iterations,
		Converged:   result.Converged,
		TotalInputs: total,
	}); err != nil {
		return nil, err
	}
	processed, err := p.store.LoadProcessed(ctx, week.ID)
	if err != nil {
		return nil, err
	}

	run := newRun()
	p.emit(ctx, run, events.ConsolidationReady, AgentConsolidation, map[string]any{
		"week_id":     week.ID,
		"story_count": len(processed.Stories),
		"confidence":  processed.Confidence,
	})

	if err := p.requestApproval(ctx, run, *processed); err != nil {
		return processed, err
	}

	p.log.Info("Consolidation complete", "week_id", week.ID, "stories", len(processed.Stories))
	return processed, nil
}

func (p *Pipeline) requestApproval(ctx context.Context, run events.Event, week store.ProcessedWeek) error {
	report, err := email.RenderApprovalReport(
		email.BuildApprovalData(week, p.config.CommandName), email.GetApprovalEmailTemplate())
	if err != nil {
		return err
	}
	if _, err := p.store.SaveArtifact(ctx, week.Week.ID, FormatApprovalReport, "html", []byte(report)); err != nil {
		return err
	}

	sent := false
	if p.mailer != nil {
		err := p.mailer.SendApprovalRequest(week, p.config.CommandName)
		switch {
		case errors.Is(err, email.ErrNotConfigured):
			p.log.Warn("Approval email skipped", "week_id", week.Week.ID)
		case err != nil:
			p.reportError(ctx, run, AgentConsolidation, fmt.Errorf("approval email: %w", err))
		default:
			sent = true
		}
	}

	p.emit(ctx, run, events.ApprovalRequested, AgentConsolidation, map[string]any{
		"week_id":     week.Week.ID,
		"story_count": len(week.Stories),
		"emailed":     sent,
	})
	return nil
}
