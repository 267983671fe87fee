package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "udyam/pkg/platform/audit"
	"udyam/pkg/platform/audit/consumer"
)

type tailOptions struct {
	brokers    []string
	topic      string
	group      string
	categories []string
}

// recordSource is what the tail reads from; *kgo.Client in production.
type recordSource interface {
	PollFetches(ctx context.Context) kgo.Fetches
	CommitUncommittedOffsets(ctx context.Context) error
}

func newAuditCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Inspect the audit event stream",
	}
	cmd.AddCommand(newAuditTailCmd(opts))
	return cmd
}

func newAuditTailCmd(opts *rootOptions) *cobra.Command {
	tail := &tailOptions{}
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Follow audit events from Kafka until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(tail.brokers) == 0 {
				return errors.New("no brokers: pass --brokers or set KAFKA_BROKERS")
			}
			client, err := consumer.NewClient(tail.brokers, tail.topic, tail.group)
			if err != nil {
				return err
			}
			defer client.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			err = runTail(ctx, client, cmd.OutOrStdout(), opts, tail)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringSliceVar(&tail.brokers, "brokers", splitList(os.Getenv("KAFKA_BROKERS")), "Kafka seed brokers (env KAFKA_BROKERS)")
	cmd.Flags().StringVar(&tail.topic, "topic", envOr("KAFKA_AUDIT_TOPIC", "udyam.audit"), "Audit topic (env KAFKA_AUDIT_TOPIC)")
	cmd.Flags().StringVar(&tail.group, "group", "", "Consumer group; offsets are committed when set")
	cmd.Flags().StringSliceVar(&tail.categories, "category", nil, "Only show these categories: compliance, security, operations")
	return cmd
}

func runTail(ctx context.Context, source recordSource, out io.Writer, opts *rootOptions, tail *tailOptions) error {
	show := printEvent(out, opts.output)
	var handler consumer.Handler = show
	if len(tail.categories) > 0 {
		router := consumer.NewRouter(opts.logger(os.Stderr), nil)
		for _, c := range tail.categories {
			router.Register(audit.EventCategory(strings.ToLower(c)), show)
		}
		handler = router
	}

	copts := []consumer.Option{consumer.WithLogger(opts.logger(os.Stderr))}
	if tail.group != "" {
		copts = append(copts, consumer.WithCommit())
	}
	return consumer.New(source, handler, copts...).Run(ctx)
}

// printEvent writes one line per event: a summary for text output, otherwise
// a compact JSON object.
func printEvent(out io.Writer, format string) consumer.HandlerFunc {
	return func(_ context.Context, e audit.Event) error {
		if format != "text" {
			return json.NewEncoder(out).Encode(e)
		}
		line := fmt.Sprintf("%s %-10s %s", e.Timestamp.Format("2006-01-02T15:04:05Z07:00"), e.Category, e.Action)
		if e.Subject != "" {
			line += " subject=" + e.Subject
		}
		if e.Decision != "" {
			line += " decision=" + e.Decision
		}
		if e.Reason != "" {
			line += fmt.Sprintf(" reason=%q", e.Reason)
		}
		_, err := fmt.Fprintln(out, line)
		return err
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
