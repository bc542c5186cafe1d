package handlers

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

// NewScrapeCmd creates the daily scrape command
func NewScrapeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scrape",
		Short: "Scrape today's news for every category",
		Long: `Fetch every configured source, filter the articles for relevance and
store them under today's date. Run it daily (e.g. from cron).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := buildPipeline(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			report, err := p.RunDailyScrape(cmd.Context())
			if err != nil {
				return err
			}

			categories := make([]string, 0, len(report.Counts))
			for category := range report.Counts {
				categories = append(categories, category)
			}
			sort.Strings(categories)

			fmt.Printf("✅ Scraped %d articles on %s\n", report.Total, report.Day.Format("2006-01-02"))
			for _, category := range categories {
				fmt.Printf("   %-20s %d\n", category, report.Counts[category])
			}
			for _, category := range report.Failed {
				fmt.Printf("   ⚠️  %s failed\n", category)
			}
			return nil
		},
	}
}

// NewConsolidateCmd creates the weekly consolidation command
func NewConsolidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "consolidate",
		Short: "Rank this week's articles and request approval",
		Long: `Load the articles scraped Monday through Friday, select and rank the
week's stories and email the approval report.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := buildPipeline(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			week, err := p.RunWeeklyConsolidation(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("✅ Week %s: %d stories selected (confidence %.2f, %d iterations)\n",
				week.Week.ID, len(week.Stories), week.Confidence, week.Iterations)
			fmt.Printf("💡 Review with: genzweekly review %s\n", week.Week.ID)
			return nil
		},
	}
}

// NewImportCmd creates the command that imports legacy daily scrape files
func NewImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <raw-dir>",
		Short: "Import daily JSON scrape files into the archive",
		Long: `Import a directory laid out as <raw-dir>/<YYYY-MM-DD>/<category>.json
into the archive so earlier scrapes can be consolidated.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := buildPipeline(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			n, err := p.Store().ImportRawDir(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("import stopped after %d articles: %w", n, err)
			}
			fmt.Printf("✅ Imported %d articles from %s\n", n, args[0])
			return nil
		},
	}
}
