package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/Priya8975/taskflow-webhooks/internal/config"
	"github.com/Priya8975/taskflow-webhooks/internal/signature"
	"github.com/Priya8975/taskflow-webhooks/internal/store"
	"github.com/Priya8975/taskflow-webhooks/internal/worker"
	"github.com/spf13/cobra"
)

var errSignatureMismatch = errors.New("signature mismatch")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "webhookctl",
		Short:        "Operate TaskFlow outbound webhooks",
		SilenceUsage: true,
	}
	root.AddCommand(newSignCmd(), newVerifyCmd(), newPruneCmd())
	return root
}

func newSignCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Print the X-Webhook-Signature of a payload",
		Long:  "Reads the payload from --file or stdin and prints its HMAC-SHA256 signature as lowercase hex.",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, _ := cmd.Flags().GetString("secret")
			payload, err := readPayload(cmd)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), signature.Sign(payload, secret))
			return nil
		},
	}
	cmd.Flags().String("secret", "", "subscription secret")
	cmd.Flags().String("file", "", "payload file (default stdin)")
	cmd.MarkFlagRequired("secret")
	return cmd
}

func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check a payload against a received signature",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, _ := cmd.Flags().GetString("secret")
			sig, _ := cmd.Flags().GetString("signature")
			payload, err := readPayload(cmd)
			if err != nil {
				return err
			}
			if !signature.Verify(payload, sig, secret) {
				return errSignatureMismatch
			}
			fmt.Fprintln(cmd.OutOrStdout(), "signature valid")
			return nil
		},
	}
	cmd.Flags().String("secret", "", "subscription secret")
	cmd.Flags().String("signature", "", "hex signature from the X-Webhook-Signature header")
	cmd.Flags().String("file", "", "payload file (default stdin)")
	cmd.MarkFlagRequired("secret")
	cmd.MarkFlagRequired("signature")
	return cmd
}

func newPruneCmd() *cobra.Command {
	defaults := config.Default().Retention

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Apply the delivery log retention policy once",
		RunE: func(cmd *cobra.Command, args []string) error {
			dbURL, _ := cmd.Flags().GetString("database-url")
			if dbURL == "" {
				return errors.New("--database-url or DATABASE_URL is required")
			}
			olderThan, _ := cmd.Flags().GetDuration("older-than")
			keep, _ := cmd.Flags().GetInt("keep")
			staleAfter, _ := cmd.Flags().GetDuration("stale-retry-after")

			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
			defer cancel()

			pgStore, err := store.NewPostgres(ctx, dbURL)
			if err != nil {
				return err
			}
			defer pgStore.Close()

			logger := slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), nil))
			janitor := worker.NewJanitor(pgStore, config.RetentionConfig{
				MaxAge:             olderThan,
				MaxPerSubscription: keep,
				StaleRetryAfter:    staleAfter,
			}, logger)

			deleted, err := janitor.RunOnce(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %d delivery records\n", deleted)
			return nil
		},
	}
	cmd.Flags().String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection URL")
	cmd.Flags().Duration("older-than", defaults.MaxAge, "delete records older than this")
	cmd.Flags().Int("keep", defaults.MaxPerSubscription, "newest records kept per webhook (0 keeps all)")
	cmd.Flags().Duration("stale-retry-after", defaults.StaleRetryAfter, "fail pending records overdue by more than this (0 disables; use 0 with durable retries)")
	return cmd
}

func readPayload(cmd *cobra.Command) ([]byte, error) {
	path, _ := cmd.Flags().GetString("file")
	if path == "" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("reading payload from stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading payload file: %w", err)
	}
	return data, nil
}
