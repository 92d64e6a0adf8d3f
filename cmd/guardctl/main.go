package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/ignite/outreach-guard/internal/client"
	"github.com/ignite/outreach-guard/internal/config"
	"github.com/ignite/outreach-guard/internal/domain"
	"github.com/ignite/outreach-guard/internal/guard"
	"github.com/ignite/outreach-guard/internal/rejection"
	"github.com/ignite/outreach-guard/internal/templates"
)

// Gate is the operation set guardctl needs. The HTTP client implements it
// for --server; localGate implements it against the configured storage.
type Gate interface {
	Check(ctx context.Context, draft domain.LeadDraft, lead *domain.EnrichedLead) (*domain.QualityGuardResult, error)
	RecordRejection(ctx context.Context, in rejection.RejectionInput) (*domain.RejectionRecord, error)
	History(ctx context.Context, email string) (*domain.RejectionRecord, error)
	SelectTemplate(ctx context.Context, recipient string, ordered []string) (*templates.Selection, error)
}

type localGate struct {
	guard *guard.Guard
	store *rejection.Store
	close func()
}

func (l *localGate) Check(ctx context.Context, draft domain.LeadDraft, lead *domain.EnrichedLead) (*domain.QualityGuardResult, error) {
	res := l.guard.Check(ctx, draft, lead)
	return &res, nil
}

func (l *localGate) RecordRejection(ctx context.Context, in rejection.RejectionInput) (*domain.RejectionRecord, error) {
	return l.guard.RecordRejection(ctx, in)
}

func (l *localGate) History(ctx context.Context, email string) (*domain.RejectionRecord, error) {
	rec, ok := l.store.GetRejectionHistory(ctx, email)
	if !ok {
		return nil, client.ErrNotFound
	}
	return rec, nil
}

func (l *localGate) SelectTemplate(ctx context.Context, recipient string, ordered []string) (*templates.Selection, error) {
	sel, err := templates.Select(ctx, l.store, recipient, ordered)
	if err != nil {
		return nil, err
	}
	return &sel, nil
}

func openLocal(ctx context.Context, configPath string) (*localGate, error) {
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	var rc *redis.Client
	if cfg.Storage.Backend == "redis" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("redis url: %w", err)
		}
		rc = redis.NewClient(opts)
	}

	store, err := rejection.NewStoreFromConfig(ctx, cfg, rc)
	if err != nil {
		return nil, err
	}
	g, err := guard.New(store, cfg.Guard)
	if err != nil {
		return nil, err
	}
	return &localGate{
		guard: g,
		store: store,
		close: func() {
			if rc != nil {
				rc.Close()
			}
		},
	}, nil
}

type options struct {
	configPath string
	server     string
}

// newRootCmd builds the command tree. open is called lazily by each
// subcommand so --help never touches storage.
func newRootCmd(open func(ctx context.Context, o *options) (Gate, func(), error)) *cobra.Command {
	o := &options{}

	root := &cobra.Command{
		Use:           "guardctl",
		Short:         "guardctl - inspect and drive the outreach quality gate",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&o.configPath, "config", "config/config.yaml", "Config file for local mode")
	root.PersistentFlags().StringVar(&o.server, "server", os.Getenv("GUARD_SERVER"), "Gate server base URL; empty runs against local storage")

	var draftPath, leadPath string
	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Evaluate a draft JSON file against every guard rule",
		RunE: func(cmd *cobra.Command, args []string) error {
			var draft domain.LeadDraft
			if err := readJSON(draftPath, &draft); err != nil {
				return err
			}
			var lead *domain.EnrichedLead
			if leadPath != "" {
				lead = &domain.EnrichedLead{}
				if err := readJSON(leadPath, lead); err != nil {
					return err
				}
			}

			gate, done, err := open(cmd.Context(), o)
			if err != nil {
				return err
			}
			defer done()

			res, err := gate.Check(cmd.Context(), draft, lead)
			if err != nil {
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
			if !res.Passed {
				return fmt.Errorf("draft blocked: %s", res.BlockedReason)
			}
			return nil
		},
	}
	checkCmd.Flags().StringVar(&draftPath, "draft", "", "Path to draft JSON (- for stdin)")
	checkCmd.Flags().StringVar(&leadPath, "lead", "", "Path to enriched lead JSON")
	checkCmd.MarkFlagRequired("draft")

	var in rejection.RejectionInput
	var bodyPath string
	rejectCmd := &cobra.Command{
		Use:   "reject",
		Short: "Record a human rejection for a recipient",
		RunE: func(cmd *cobra.Command, args []string) error {
			if bodyPath != "" {
				body, err := readFile(bodyPath)
				if err != nil {
					return err
				}
				in.Body = string(body)
			}

			gate, done, err := open(cmd.Context(), o)
			if err != nil {
				return err
			}
			defer done()

			rec, err := gate.RecordRejection(cmd.Context(), in)
			if err != nil {
				return err
			}
			if rec == nil {
				return errors.New("rejection not recorded: storage unavailable")
			}
			return writeJSON(cmd.OutOrStdout(), rec)
		},
	}
	rejectCmd.Flags().StringVar(&in.RecipientEmail, "recipient", "", "Recipient email")
	rejectCmd.Flags().StringVar(&in.Tag, "tag", "", "Rejection tag, e.g. too_generic")
	rejectCmd.Flags().StringVar(&in.Subject, "subject", "", "Rejected subject line")
	rejectCmd.Flags().StringVar(&bodyPath, "body-file", "", "Path to the rejected body (- for stdin)")
	rejectCmd.Flags().StringVar(&in.FeedbackText, "feedback", "", "Reviewer feedback")
	rejectCmd.Flags().StringVar(&in.TemplateID, "template", "", "Template id of the rejected draft")
	rejectCmd.MarkFlagRequired("recipient")

	historyCmd := &cobra.Command{
		Use:   "history <email>",
		Short: "Show the live rejection record for a recipient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gate, done, err := open(cmd.Context(), o)
			if err != nil {
				return err
			}
			defer done()

			rec, err := gate.History(cmd.Context(), args[0])
			if errors.Is(err, client.ErrNotFound) {
				fmt.Fprintln(cmd.OutOrStdout(), "no rejection history")
				return nil
			}
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), rec)
		},
	}

	selectCmd := &cobra.Command{
		Use:   "select-template <email> <template>...",
		Short: "Pick the first template the recipient has not rejected",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			gate, done, err := open(cmd.Context(), o)
			if err != nil {
				return err
			}
			defer done()

			sel, err := gate.SelectTemplate(cmd.Context(), args[0], args[1:])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), sel)
		},
	}

	root.AddCommand(checkCmd, rejectCmd, historyCmd, selectCmd)
	return root
}

func openGate(ctx context.Context, o *options) (Gate, func(), error) {
	if o.server != "" {
		return client.New(o.server, nil), func() {}, nil
	}
	l, err := openLocal(ctx, o.configPath)
	if err != nil {
		return nil, nil, err
	}
	return l, l.close, nil
}

func readFile(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func readJSON(path string, dst any) error {
	data, err := readFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := newRootCmd(openGate).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, strings.TrimSpace(err.Error()))
		os.Exit(1)
	}
}
