/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"fmt"

	"github.com/jjudge-oj/accounts/config"
	"github.com/jjudge-oj/accounts/internal/logging"
	"github.com/jjudge-oj/accounts/internal/mail"
	"github.com/jjudge-oj/accounts/internal/mq"
	"github.com/spf13/cobra"
)

// workerCmd delivers emails queued by servers running MAIL_TRANSPORT=queue.
var workerCmd = &cobra.Command{
	Use:   "mail-worker",
	Short: "Deliver queued account emails",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := logging.New(cfg.LogLevel)
		ctx := cmd.Context()

		sender, err := mail.NewDirectSender(config.MailConfig{
			Transport:      config.MailTransportQueue,
			SendGridAPIKey: cfg.Mail.SendGridAPIKey,
		}, logger)
		if err != nil {
			return err
		}

		queue, err := mq.Open(ctx, cfg)
		if err != nil {
			return fmt.Errorf("open queue: %w", err)
		}
		defer func() {
			_ = queue.Close()
		}()

		return mail.NewWorker(queue, cfg.Mail.QueueChannel, sender, logger).Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}
