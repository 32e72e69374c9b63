package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/joescharf/ledger/internal/models"
	"github.com/joescharf/ledger/internal/output"
)

var annotateModel string

var annotateCmd = &cobra.Command{
	Use:   "annotate <prompt...>",
	Short: "Attach a prompt to the next commit",
	Long: `Record the prompt that produced the changes you are about to commit.
The post-commit hook attaches it to the commit's trace and consumes it.
A newer annotation replaces an unconsumed one.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return annotateRun(commandContext(cmd), strings.Join(args, " "))
	},
}

func init() {
	annotateCmd.Flags().StringVar(&annotateModel, "model", "", "Model that produced the change")
	rootCmd.AddCommand(annotateCmd)
}

func annotateRun(ctx context.Context, prompt string) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	// Best-effort: link the annotation to the current session.
	var sid string
	if m, err := getManager(); err == nil {
		if c, err := m.Resolve(ctx, sessionID); err == nil {
			sid = c.SessionID
		}
	}

	if dryRun {
		ui.DryRunMsg("Would record annotation for the next commit")
		return nil
	}

	if err := s.EnsureStore(ctx); err != nil {
		return err
	}
	rec, err := s.WritePendingAnnotation(ctx, &models.AnnotationRecord{
		Prompt:    prompt,
		Model:     annotateModel,
		SessionID: sid,
	})
	if err != nil {
		return err
	}

	if jsonOut {
		return ui.JSON(rec)
	}
	ui.Success("Annotation %s pending for the next commit", output.Cyan(rec.ID))
	return nil
}
