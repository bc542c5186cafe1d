package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"genzweekly/internal/core"
	"genzweekly/internal/events"
	"genzweekly/internal/narrative"
	"genzweekly/internal/ranking"
	"genzweekly/internal/social"
	"genzweekly/internal/store"
	"genzweekly/internal/website"
)

var testNow = time.Date(2025, 6, 18, 9, 0, 0, 0, time.UTC)

type fakeScraper struct {
	articles map[string][]core.Article
	fail     map[string]error
	calls    []string
}

func (f *fakeScraper) ScrapeCategory(ctx context.Context, category string, sources []core.Source) ([]core.Article, error) {
	f.calls = append(f.calls, category)
	if err := f.fail[category]; err != nil {
		return nil, err
	}
	return f.articles[category], nil
}

type dropFilter struct{ drop string }

func (f dropFilter) Filter(ctx context.Context, articles []core.Article) ([]core.Article, error) {
	var kept []core.Article
	for _, a := range articles {
		if a.Title != f.drop {
			kept = append(kept, a.WithRelevance(0.8))
		}
	}
	return kept, nil
}

type fakeRanker struct{ underfilled []ranking.Underfill }

func (f fakeRanker) Rank(ctx context.Context, weekly map[string][]core.Article) (ranking.Result, error) {
	var res ranking.Result
	for _, category := range []string{"Sports", "Technology"} {
		for _, a := range weekly[category] {
			res.Stories = append(res.Stories, core.RankedItem{Article: a, Rank: len(res.Stories) + 1, ImportanceScore: 0.7})
		}
	}
	res.Confidence = 0.9
	res.Iterations = 1
	res.Converged = true
	res.Underfilled = f.underfilled
	return res, nil
}

type fakeRefiner struct {
	err   error
	calls int
}

func (f *fakeRefiner) Refine(ctx context.Context, stories []narrative.Story) (narrative.Refined, error) {
	f.calls++
	if f.err != nil {
		return narrative.Refined{}, f.err
	}
	return narrative.Refined{Content: "<p>" + stories[0].Title + "</p>", Confidence: 0.9, Iterations: 2, Converged: true}, nil
}

type fakeMailer struct {
	err  error
	sent []string
}

func (f *fakeMailer) SendApprovalRequest(week store.ProcessedWeek, command string) error {
	f.sent = append(f.sent, week.Week.ID)
	return f.err
}

type fakeSpeaker struct{ texts []string }

func (f *fakeSpeaker) Synthesize(ctx context.Context, text string) ([]byte, error) {
	f.texts = append(f.texts, text)
	return []byte("ID3"), nil
}

type fakePoster struct{ tweets []social.Tweet }

func (f *fakePoster) PostThread(ctx context.Context, tweets []social.Tweet) ([]string, error) {
	f.tweets = tweets
	ids := make([]string, len(tweets))
	for i := range tweets {
		ids[i] = "id"
	}
	return ids, nil
}

type fakeSite struct {
	weeks []string
	audio []byte
}

func (f *fakeSite) Publish(ctx context.Context, week store.ProcessedWeek, audio []byte) (website.Result, error) {
	f.weeks = append(f.weeks, week.Week.ID)
	f.audio = audio
	return website.Result{PagePath: "weeks/" + week.Week.ID + "/index.md"}, nil
}

type harness struct {
	p       *Pipeline
	store   *store.Store
	bus     *events.Bus
	scraper *fakeScraper
	refiner *fakeRefiner
	mailer  *fakeMailer
	speaker *fakeSpeaker
	poster  *fakePoster
	site    *fakeSite
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	st, err := store.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	h := &harness{
		store: st,
		bus:   events.NewBus(0),
		scraper: &fakeScraper{articles: map[string][]core.Article{
			"Sports": {
				{Title: "Finals tonight", URL: "https://example.com/finals", Category: "Sports", Source: "ESPN"},
				{Title: "Spam", URL: "https://example.com/spam", Category: "Sports"},
			},
			"Technology": {
				{Title: "New phone drops", URL: "https://example.com/phone", Category: "Technology", Source: "The Verge"},
			},
		}},
		refiner: &fakeRefiner{},
		mailer:  &fakeMailer{},
		speaker: &fakeSpeaker{},
		poster:  &fakePoster{},
		site:    &fakeSite{},
	}

	sources := map[string][]core.Source{
		"Sports":     {{Name: "ESPN", RSS: "https://example.com/espn.xml"}},
		"Technology": {{Name: "The Verge", RSS: "https://example.com/verge.xml"}},
	}
	h.p = NewPipeline(h.bus, st, Components{
		Scraper: h.scraper,
		Filter:  dropFilter{drop: "Spam"},
		Ranker:  fakeRanker{},
		Refiner: h.refiner,
		Scripts: ScriptWriterFunc(func(ctx context.Context, stories []narrative.Story, minutes int) (string, error) {
			return "[intro music]\nWhat's up! " + stories[0].Title + " & more.", nil
		}),
		Mailer:  h.mailer,
		Speaker: h.speaker,
		Poster:  h.poster,
		Site:    h.site,
	}, &Config{
		Categories: []core.CategoryConfig{
			{Name: "Technology", Priority: 2},
			{Name: "Sports", Priority: 1},
			{Name: "Culture", Priority: 3},
		},
		SourcesFor: func(category string) []core.Source { return sources[category] },
		Now:        func() time.Time { return testNow },
	})
	h.p.Wire()
	return h
}

func (h *harness) consolidate(t *testing.T) string {
	t.Helper()
	if _, err := h.p.RunDailyScrape(context.Background()); err != nil {
		t.Fatalf("RunDailyScrape failed: %v", err)
	}
	week, err := h.p.RunWeeklyConsolidation(context.Background())
	if err != nil {
		t.Fatalf("RunWeeklyConsolidation failed: %v", err)
	}
	return week.Week.ID
}

func TestRunDailyScrape(t *testing.T) {
	h := newHarness(t)
	h.scraper.fail = map[string]error{"Technology": errors.New("feed down")}

	report, err := h.p.RunDailyScrape(context.Background())
	if err != nil {
		t.Fatalf("RunDailyScrape failed: %v", err)
	}

	if strings.Join(h.scraper.calls, ",") != "Sports,Technology" {
		t.Errorf("Expected priority order without unsourced categories, got %v", h.scraper.calls)
	}
	if report.Total != 1 || report.Counts["Sports"] != 1 {
		t.Errorf("Expected filtered sports article, got %+v", report)
	}
	if len(report.Failed) != 1 || report.Failed[0] != "Technology" {
		t.Errorf("Expected Technology failure, got %v", report.Failed)
	}

	saved, err := h.store.LoadRaw(context.Background(), "Sports", testNow)
	if err != nil || len(saved) != 1 || saved[0].Title != "Finals tonight" {
		t.Fatalf("Expected stored sports article, got %v, %v", saved, err)
	}
	if saved[0].Relevance(0) != 0.8 {
		t.Errorf("Expected relevance kept, got %v", saved[0].Relevance(0))
	}

	scraped := h.bus.History(events.NewsScraped)
	if len(scraped) != 1 || scraped[0].String("category") != "Sports" || scraped[0].String("date") != "2025-06-18" {
		t.Errorf("Unexpected news_scraped events: %+v", scraped)
	}
	failures := h.bus.History(events.ErrorOccurred)
	if len(failures) != 1 || failures[0].String("agent") != AgentScraper ||
		!strings.Contains(failures[0].String("error"), "feed down") {
		t.Errorf("Expected scraper error event, got %+v", failures)
	}
}

func TestRunDailyScrapeWithoutScraper(t *testing.T) {
	p := NewPipeline(nil, nil, Components{}, nil)
	if _, err := p.RunDailyScrape(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Expected ErrNotConfigured, got %v", err)
	}
}

func TestRunWeeklyConsolidation(t *testing.T) {
	h := newHarness(t)
	weekID := h.consolidate(t)
	if weekID != "2025-W24" {
		t.Fatalf("Expected week 2025-W24, got %s", weekID)
	}

	week, err := h.store.LoadProcessed(context.Background(), weekID)
	if err != nil {
		t.Fatalf("LoadProcessed failed: %v", err)
	}
	if len(week.Stories) != 2 || week.Status != store.StatusPending || week.TotalInputs != 2 {
		t.Errorf("Unexpected processed week: %+v", week)
	}

	report, err := h.store.LoadArtifact(context.Background(), weekID, FormatApprovalReport)
	if err != nil {
		t.Fatalf("Expected approval report: %v", err)
	}
	if !strings.Contains(string(report.Content), "Finals tonight") {
		t.Errorf("Approval report should list the stories")
	}
	if len(h.mailer.sent) != 1 || h.mailer.sent[0] != weekID {
		t.Errorf("Expected approval email, got %v", h.mailer.sent)
	}

	ready := h.bus.History(events.ConsolidationReady)
	requested := h.bus.History(events.ApprovalRequested)
	if len(ready) != 1 || len(requested) != 1 {
		t.Fatalf("Expected consolidation and approval events, got %d and %d", len(ready), len(requested))
	}
	if ready[0].CorrelationID != requested[0].CorrelationID {
		t.Errorf("Expected events on one correlation chain")
	}
	if requested[0].String("story_count") != "2" || requested[0].String("emailed") != "true" {
		t.Errorf("Unexpected approval_requested data: %v", requested[0].Data)
	}
}

func TestRunWeeklyConsolidationNoStories(t *testing.T) {
	h := newHarness(t)
	if _, err := h.p.RunWeeklyConsolidation(context.Background()); !errors.Is(err, ErrNoStories) {
		t.Errorf("Expected ErrNoStories, got %v", err)
	}
}

func TestRunWeeklyConsolidationEmailFailure(t *testing.T) {
	h := newHarness(t)
	h.mailer.err = errors.New("smtp refused")

	weekID := h.consolidate(t)

	failures := h.bus.History(events.ErrorOccurred)
	if len(failures) != 1 || failures[0].String("week_id") != weekID ||
		failures[0].String("agent") != AgentConsolidation {
		t.Errorf("Expected email failure event, got %+v", failures)
	}
	if got := h.bus.History(events.ApprovalRequested); len(got) != 1 || got[0].String("emailed") != "false" {
		t.Errorf("Expected approval still requested, got %+v", got)
	}
}

func TestApproveFormatsAndGeneratesAudio(t *testing.T) {
	h := newHarness(t)
	weekID := h.consolidate(t)

	if err := h.p.Approve(context.Background(), weekID, "looks good"); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}

	newsletter, err := h.store.LoadArtifact(context.Background(), weekID, FormatNewsletter)
	if err != nil || !strings.Contains(string(newsletter.Content), "<p>Finals tonight</p>") {
		t.Fatalf("Expected newsletter artifact, got %v", err)
	}
	if _, err := h.store.LoadArtifact(context.Background(), weekID, FormatThread); err != nil {
		t.Errorf("Expected thread artifact: %v", err)
	}
	script, err := h.store.LoadArtifact(context.Background(), weekID, FormatScript)
	if err != nil || !strings.HasPrefix(string(script.Content), "[intro music]") {
		t.Errorf("Expected raw script saved, got %v", err)
	}
	if len(h.speaker.texts) != 1 || h.speaker.texts[0] != "What's up! Finals tonight and more." {
		t.Errorf("Expected speech-ready script, got %q", h.speaker.texts)
	}
	if podcast, err := h.store.LoadArtifact(context.Background(), weekID, FormatPodcast); err != nil || string(podcast.Content) != "ID3" {
		t.Errorf("Expected podcast artifact, got %v", err)
	}

	formatted := h.bus.History(events.ContentFormatted)
	audio := h.bus.History(events.AudioGenerated)
	if len(formatted) != 1 || len(audio) != 1 || audio[0].String("has_audio") != "true" {
		t.Fatalf("Expected formatter and audio events, got %d and %d", len(formatted), len(audio))
	}
	received := h.bus.History(events.ApprovalReceived)
	if audio[0].CorrelationID != received[0].CorrelationID {
		t.Errorf("Expected audio event to follow the approval chain")
	}
}

func TestRejectSkipsFormatting(t *testing.T) {
	h := newHarness(t)
	weekID := h.consolidate(t)

	if err := h.p.Reject(context.Background(), weekID, "too much sports"); err != nil {
		t.Fatalf("Reject failed: %v", err)
	}

	week, _ := h.store.LoadProcessed(context.Background(), weekID)
	if week.Status != store.StatusRejected || week.Note != "too much sports" {
		t.Errorf("Expected rejection recorded, got %s %q", week.Status, week.Note)
	}
	if h.refiner.calls != 0 || len(h.bus.History(events.ContentFormatted)) != 0 {
		t.Errorf("Rejected week should not be formatted")
	}
	if err := h.p.PublishWeek(context.Background(), weekID); !errors.Is(err, ErrNotApproved) {
		t.Errorf("Expected ErrNotApproved, got %v", err)
	}
}

func TestRecordDecisionDefersFormatting(t *testing.T) {
	h := newHarness(t)
	weekID := h.consolidate(t)
	ctx := context.Background()

	e, err := h.p.RecordDecision(ctx, weekID, store.StatusApproved, "ship it")
	if err != nil {
		t.Fatalf("RecordDecision failed: %v", err)
	}
	week, _ := h.store.LoadProcessed(ctx, weekID)
	if week.Status != store.StatusApproved {
		t.Errorf("Expected approval stored before announcing, got %s", week.Status)
	}
	if h.refiner.calls != 0 || len(h.bus.History(events.ApprovalReceived)) != 0 {
		t.Fatalf("Recording must not start formatting")
	}

	if err := h.p.Announce(ctx, e); err != nil {
		t.Fatalf("Announce failed: %v", err)
	}
	if h.refiner.calls != 1 || len(h.bus.History(events.ContentFormatted)) != 1 {
		t.Errorf("Expected announcing to format the week")
	}

	if _, err := h.p.RecordDecision(ctx, "2024-W01", store.StatusApproved, ""); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown week, got %v", err)
	}
}

func TestPublishWeek(t *testing.T) {
	h := newHarness(t)
	weekID := h.consolidate(t)
	if err := h.p.Approve(context.Background(), weekID, ""); err != nil {
		t.Fatalf("Approve failed: %v", err)
	}

	if err := h.p.PublishWeek(context.Background(), weekID); err != nil {
		t.Fatalf("PublishWeek failed: %v", err)
	}

	if len(h.poster.tweets) != 3 || h.poster.tweets[0].Text != social.HookText {
		t.Errorf("Expected hook plus two story tweets, got %+v", h.poster.tweets)
	}
	if len(h.site.weeks) != 1 || string(h.site.audio) != "ID3" {
		t.Errorf("Expected website published with audio, got %v %q", h.site.weeks, h.site.audio)
	}

	twitter := h.bus.History(events.TwitterPublished)
	site := h.bus.History(events.WebsitePublished)
	if len(twitter) != 1 || twitter[0].String("tweets") != "3" {
		t.Errorf("Unexpected twitter_published events: %+v", twitter)
	}
	if len(site) != 1 || site[0].String("path") != "weeks/2025-W24/index.md" {
		t.Errorf("Unexpected website_published events: %+v", site)
	}
}

func TestPublishWeekFormatsMissingNewsletter(t *testing.T) {
	h := newHarness(t)
	weekID := h.consolidate(t)
	if err := h.store.SetApproval(context.Background(), weekID, store.StatusApproved, ""); err != nil {
		t.Fatalf("SetApproval failed: %v", err)
	}

	if err := h.p.PublishWeek(context.Background(), weekID); err != nil {
		t.Fatalf("PublishWeek failed: %v", err)
	}
	if h.refiner.calls != 1 {
		t.Errorf("Expected newsletter formatted before publishing, got %d refine calls", h.refiner.calls)
	}
	if len(h.bus.History(events.ReadyToPublish)) != 1 {
		t.Errorf("Expected ready_to_publish event")
	}
}

func TestFormatterFailureEmitsError(t *testing.T) {
	h := newHarness(t)
	weekID := h.consolidate(t)
	h.refiner.err = errors.New("quota exceeded")

	err := h.p.Approve(context.Background(), weekID, "")
	if err == nil || !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("Expected formatter failure, got %v", err)
	}

	failures := h.bus.History(events.ErrorOccurred)
	if len(failures) != 1 || failures[0].String("agent") != AgentFormatter || failures[0].String("week_id") != weekID {
		t.Errorf("Expected formatter error event, got %+v", failures)
	}
	if len(h.bus.History(events.AudioGenerated)) != 0 {
		t.Errorf("Audio should not run after a formatting failure")
	}
}

func TestResolveWeek(t *testing.T) {
	h := newHarness(t)
	if _, err := h.p.ResolveWeek(context.Background(), ""); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound without weeks, got %v", err)
	}

	weekID := h.consolidate(t)
	got, err := h.p.ResolveWeek(context.Background(), "")
	if err != nil || got != weekID {
		t.Errorf("Expected latest week %s, got %s, %v", weekID, got, err)
	}
	if got, _ := h.p.ResolveWeek(context.Background(), "2024-W01"); got != "2024-W01" {
		t.Errorf("Expected explicit week kept, got %s", got)
	}
}
