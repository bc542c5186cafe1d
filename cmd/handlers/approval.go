package handlers

import (
	"fmt"
	"strings"

	"genzweekly/internal/tui"

	"github.com/spf13/cobra"
)

// NewApproveCmd creates the approve command
func NewApproveCmd() *cobra.Command {
	var note string

	cmd := &cobra.Command{
		Use:   "approve [week]",
		Short: "Approve a week and generate its content",
		Long: `Approve a consolidated week (default: the latest). Approval writes the
newsletter, the thread and the podcast.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := buildPipeline(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			weekID, err := p.ResolveWeek(cmd.Context(), weekArg(args))
			if err != nil {
				return err
			}
			if err := p.Approve(cmd.Context(), weekID, note); err != nil {
				return err
			}
			fmt.Printf("✅ Week %s approved\n", weekID)
			fmt.Printf("💡 Publish with: genzweekly publish %s\n", weekID)
			return nil
		},
	}

	cmd.Flags().StringVar(&note, "note", "", "Note stored with the decision")
	return cmd
}

// NewRejectCmd creates the reject command
func NewRejectCmd() *cobra.Command {
	var note string

	cmd := &cobra.Command{
		Use:   "reject [week]",
		Short: "Reject a week",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := buildPipeline(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			weekID, err := p.ResolveWeek(cmd.Context(), weekArg(args))
			if err != nil {
				return err
			}
			if err := p.Reject(cmd.Context(), weekID, note); err != nil {
				return err
			}
			fmt.Printf("❌ Week %s rejected\n", weekID)
			return nil
		},
	}

	cmd.Flags().StringVar(&note, "note", "", "Reason for the rejection")
	return cmd
}

// NewPublishCmd creates the publish command
func NewPublishCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "publish [week]",
		Short: "Post the thread and publish the website page of an approved week",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := buildPipeline(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			weekID, err := p.ResolveWeek(cmd.Context(), weekArg(args))
			if err != nil {
				return err
			}
			if err := p.PublishWeek(cmd.Context(), weekID); err != nil {
				return err
			}
			fmt.Printf("🚀 Week %s published\n", weekID)
			return nil
		},
	}
}

// NewReviewCmd creates the review command
func NewReviewCmd() *cobra.Command {
	var interactive bool

	cmd := &cobra.Command{
		Use:   "review [week]",
		Short: "Show a week's selection, optionally approving it interactively",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := buildPipeline(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			weekID, err := p.ResolveWeek(cmd.Context(), weekArg(args))
			if err != nil {
				return err
			}
			week, err := p.Store().LoadProcessed(cmd.Context(), weekID)
			if err != nil {
				return err
			}

			if !interactive {
				fmt.Print(renderSelection(week.Week.ID, string(week.Status), week.Confidence, storyLines(week.Stories)))
				return nil
			}

			decision, err := tui.Run(*week)
			if err != nil {
				return err
			}
			switch decision {
			case tui.Approve:
				if err := p.Approve(cmd.Context(), weekID, ""); err != nil {
					return err
				}
				fmt.Printf("✅ Week %s approved\n", weekID)
			case tui.Reject:
				if err := p.Reject(cmd.Context(), weekID, ""); err != nil {
					return err
				}
				fmt.Printf("❌ Week %s rejected\n", weekID)
			default:
				fmt.Println("No decision recorded")
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Open the review screen to approve or reject")
	return cmd
}

// NewArchiveCmd creates the archive listing command
func NewArchiveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "archive",
		Short: "List weeks with generated content",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := buildPipeline(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = p.Close() }()

			entries, err := p.Store().ArchiveIndex(cmd.Context())
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Println("No archived weeks yet")
				return nil
			}
			for _, entry := range entries {
				fmt.Printf("%-10s %-9s %s\n", entry.WeekID, entry.Status, strings.Join(entry.Formats, ", "))
			}
			return nil
		},
	}
}
