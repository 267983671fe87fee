package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"udyam/internal/formflow/httpclient"
	"udyam/internal/platform/config"
	"udyam/internal/platform/logger"
)

const defaultServer = "http://localhost:3001"

type rootOptions struct {
	server  string
	timeout time.Duration
	output  string
	verbose bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "udyamctl",
		Short:         "Udyam registration from the command line",
		Long:          `udyamctl walks through Aadhaar OTP verification and PAN validation against a registration server, then submits the registration.`,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	server := os.Getenv("UDYAM_SERVER")
	if server == "" {
		server = defaultServer
	}
	cmd.PersistentFlags().StringVar(&opts.server, "server", server, "Registration server base URL (env UDYAM_SERVER)")
	cmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "Per-request timeout")
	cmd.PersistentFlags().StringVarP(&opts.output, "output", "o", "text", "Output format: text, json or yaml")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log collaborator calls to stderr")

	cmd.AddCommand(newRegisterCmd(opts), newStatusCmd(opts), newSchemaCmd(opts), newAuditCmd(opts))
	return cmd
}

func (o *rootOptions) client() *httpclient.Client {
	return httpclient.New(o.server, httpclient.WithHTTPClient(&http.Client{Timeout: o.timeout}))
}

func (o *rootOptions) logger(w io.Writer) *slog.Logger {
	level := "warn"
	if o.verbose {
		level = "debug"
	}
	return logger.NewWithWriter(w, config.Log{Level: level, Format: "text"})
}

// render writes v as JSON or YAML. The text format is handled by callers.
func render(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
