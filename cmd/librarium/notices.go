package main

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/bigkaa/librarium/internal/database"
	"github.com/bigkaa/librarium/internal/notify"
	"github.com/bigkaa/librarium/internal/repository"
	"github.com/bigkaa/librarium/internal/service"
)

// newNoticesCmd sends overdue reminders once. Scheduling is left to cron
// or a Kubernetes CronJob.
func newNoticesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notices",
		Short: "Borrower notifications",
	}

	send := &cobra.Command{
		Use:   "send-overdue",
		Short: "Email every borrower with overdue books",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			pool, err := database.Connect(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer pool.Close()

			mailer, err := notify.NewSMTPSender(notify.SMTPConfig{
				Host:     cfg.SMTPHost,
				Port:     cfg.SMTPPort,
				Username: cfg.SMTPUsername,
				Password: cfg.SMTPPassword,
				Timeout:  cfg.SMTPTimeout,
				From:     cfg.MailFrom,
			}, logger)
			if err != nil {
				return fmt.Errorf("mail sender: %w", err)
			}

			summary, err := service.NewNoticeService(repository.NewTxRunner(pool), mailer, logger).SendOverdueNotices(ctx)
			if err != nil {
				return err
			}
			logger.Info("Overdue notices finished",
				slog.Int("sent", summary.Sent),
				slog.Int("total", summary.Total),
				slog.Int("failed", len(summary.Failed)),
			)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(summary); err != nil {
				return err
			}
			if len(summary.Failed) > 0 {
				return fmt.Errorf("%d of %d notices failed", len(summary.Failed), summary.Total)
			}
			return nil
		},
	}

	cmd.AddCommand(send)
	return cmd
}
