package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"udyam/internal/formflow"
	"udyam/internal/formflow/httpclient"
	"udyam/internal/formflow/schema"
)

// maxOTPTries matches the server's attempt limit.
const maxOTPTries = 5

var (
	errAlreadyRegistered = errors.New(formflow.MsgAlreadyRegistered)
	errTooManyOTPTries   = errors.New("too many incorrect OTP attempts")
)

type registerOptions struct {
	aadhaar string
	name    string
	org     string
	pan     string
	gstin   string
	itr     string
}

func newRegisterCmd(root *rootOptions) *cobra.Command {
	opts := &registerOptions{}
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Register interactively",
		Long: `Prompts for each form field, verifies the Aadhaar with an OTP, validates the
PAN and submits the registration. Flags pre-fill fields; the OTP is always
prompted for.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := schema.Load()
			if err != nil {
				return err
			}
			client := root.client()
			r := &registration{
				client: client,
				engine: formflow.New(client, client, client, formflow.WithLogger(root.logger(cmd.ErrOrStderr()))),
				schema: s,
				prompt: newPrompter(cmd.InOrStdin(), cmd.OutOrStdout()),
				out:    cmd.OutOrStdout(),
				preset: map[formflow.Field]string{
					formflow.FieldAadhaarNumber:    opts.aadhaar,
					formflow.FieldEntrepreneurName: opts.name,
					formflow.FieldOrganizationType: opts.org,
					formflow.FieldPANNumber:        opts.pan,
					formflow.FieldGSTIN:            opts.gstin,
					formflow.FieldFiledITR:         opts.itr,
				},
			}
			return r.run(cmd.Context())
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.aadhaar, "aadhaar", "", "12-digit Aadhaar number")
	f.StringVar(&opts.name, "name", "", "Name of the entrepreneur as per Aadhaar")
	f.StringVar(&opts.org, "org-type", "", "Organisation type, e.g. proprietorship")
	f.StringVar(&opts.pan, "pan", "", "10-character PAN")
	f.StringVar(&opts.gstin, "gstin", "", "GSTIN, if applicable")
	f.StringVar(&opts.itr, "filed-itr", "", "Filed last year's ITR: yes or no")
	return cmd
}

// registration drives one engine through both steps.
type registration struct {
	client *httpclient.Client
	engine *formflow.Engine
	schema *schema.Schema
	prompt *prompter
	out    io.Writer
	// preset values are used once; a rejected value is prompted for again.
	preset map[formflow.Field]string
}

func (r *registration) run(ctx context.Context) error {
	if err := r.verifyAadhaar(ctx); err != nil {
		return err
	}
	if err := r.verifyPAN(ctx); err != nil {
		return err
	}

	done, err := r.client.Submit(ctx, r.engine.SessionToken())
	if err != nil {
		return fmt.Errorf("submit registration: %w", err)
	}
	fmt.Fprintln(r.out, "Registration completed successfully")
	fmt.Fprintf(r.out, "Udyam number:     %s\n", done.UdyamNumber)
	fmt.Fprintf(r.out, "Reference number: %s\n", done.ReferenceNumber)
	return nil
}

func (r *registration) verifyAadhaar(ctx context.Context) error {
	r.heading(formflow.StepAadhaar)
	for {
		if err := r.fill(formflow.FieldAadhaarNumber, formflow.FieldEntrepreneurName); err != nil {
			return err
		}
		res := r.engine.RequestOTP(ctx)
		r.report(res)
		if res.OK {
			break
		}
	}

	for try := 0; try < maxOTPTries; try++ {
		if err := r.fill(formflow.FieldOTP); err != nil {
			return err
		}
		res := r.engine.ValidateOTP(ctx)
		r.report(res)
		if res.OK {
			return nil
		}
	}
	return errTooManyOTPTries
}

func (r *registration) verifyPAN(ctx context.Context) error {
	r.heading(formflow.StepPAN)
	for {
		if err := r.fill(
			formflow.FieldOrganizationType,
			formflow.FieldPANNumber,
			formflow.FieldGSTIN,
			formflow.FieldFiledITR,
		); err != nil {
			return err
		}
		res := r.engine.ValidatePAN(ctx)
		r.report(res)
		if res.AlreadyRegistered {
			return errAlreadyRegistered
		}
		if res.OK {
			return nil
		}
	}
}

// fill sets each field from its preset or a prompt. When some of the fields
// were rejected only those are asked again; a rejection that names no field
// asks for all of them.
func (r *registration) fill(fields ...formflow.Field) error {
	state := r.engine.Snapshot()
	anyInvalid := false
	for _, name := range fields {
		if _, ok := state.Errors[name]; ok {
			anyInvalid = true
		}
	}
	for _, name := range fields {
		if _, invalid := state.Errors[name]; anyInvalid && !invalid {
			continue
		}
		value, ok := r.preset[name]
		delete(r.preset, name)
		if !ok || value == "" {
			var err error
			if value, err = r.ask(name); err != nil {
				return err
			}
		}
		r.engine.SetField(name, r.resolveOption(name, value))
	}
	return nil
}

func (r *registration) ask(name formflow.Field) (string, error) {
	field, ok := r.schema.Field(name)
	if !ok {
		return r.prompt.ask(string(name))
	}
	for i, o := range field.Options {
		fmt.Fprintf(r.out, "  %d) %s\n", i+1, o.Label)
	}
	label := field.Label
	if !field.Required {
		label += " (optional)"
	}
	return r.prompt.ask(label)
}

// resolveOption accepts an option's number or label as well as its value.
func (r *registration) resolveOption(name formflow.Field, value string) string {
	field, ok := r.schema.Field(name)
	if !ok || len(field.Options) == 0 {
		return value
	}
	if n, err := strconv.Atoi(value); err == nil && n >= 1 && n <= len(field.Options) {
		return field.Options[n-1].Value
	}
	for _, o := range field.Options {
		if strings.EqualFold(o.Label, value) {
			return o.Value
		}
	}
	return strings.ToLower(value)
}

func (r *registration) heading(step formflow.Step) {
	if s, ok := r.schema.Step(int(step)); ok {
		fmt.Fprintf(r.out, "\n== Step %d: %s ==\n", s.Number, s.Name)
	}
}

func (r *registration) report(res formflow.Result) {
	if res.OK {
		fmt.Fprintf(r.out, "✓ %s\n", res.Message)
		return
	}
	state := r.engine.Snapshot()
	for _, name := range formflow.Fields {
		if msg, ok := state.Errors[name]; ok {
			fmt.Fprintf(r.out, "✗ %s: %s\n", name, msg)
		}
	}
	if msg, ok := state.Errors[formflow.FieldForm]; ok {
		fmt.Fprintf(r.out, "✗ %s\n", msg)
	}
}

// prompter reads one answer per line.
type prompter struct {
	in  *bufio.Scanner
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewScanner(in), out: out}
}

func (p *prompter) ask(label string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", label)
	if !p.in.Scan() {
		if err := p.in.Err(); err != nil {
			return "", err
		}
		return "", io.ErrUnexpectedEOF
	}
	return strings.TrimSpace(p.in.Text()), nil
}
