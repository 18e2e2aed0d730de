package main

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"

	"StoryAgent-Kit/internal/agent"
	"StoryAgent-Kit/internal/apps"
	"StoryAgent-Kit/internal/config"
	"StoryAgent-Kit/internal/daemon"
	xerrors "StoryAgent-Kit/internal/errors"
	"StoryAgent-Kit/internal/wallet"
	"StoryAgent-Kit/pkg/logger"
)

const version = "0.1.0"

// errActionFailed marks an invocation whose result carried status "error".
// The result has already been printed.
var errActionFailed = stdErrors.New("action failed")

type Runner struct {
	stdout io.Writer
	stderr io.Writer
}

func NewRunner(stdout, stderr io.Writer) *Runner {
	return &Runner{stdout: stdout, stderr: stderr}
}

type globalFlags struct {
	ConfigPath string
	PrivateKey string
}

type runtimeState struct {
	runner *Runner
	flags  globalFlags
	cfg    *config.Config
}

// Run executes the command line and returns the process exit code.
func (r *Runner) Run(args []string) int {
	state := &runtimeState{runner: r}
	root := state.newRootCommand()
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := root.ExecuteContext(ctx)
	_ = logger.Sync()
	switch {
	case err == nil:
		return 0
	case stdErrors.Is(err, errActionFailed):
		return 1
	case xerrors.HasCode(err, xerrors.CodeInvalidArgument):
		fmt.Fprintf(r.stderr, "error: %v\n", err)
		return 2
	default:
		fmt.Fprintf(r.stderr, "error: %v\n", err)
		return 1
	}
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "storyagent",
		Short:   "Wallet agent for the Story chain",
		Version: version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			cfg, err := config.LoadOrDefault(s.flags.ConfigPath)
			if err != nil {
				return xerrors.Wrap(xerrors.CodeInvalidArgument, err, "load configuration")
			}
			if strings.TrimSpace(s.flags.PrivateKey) != "" {
				cfg.Web3 = cfg.Web3.WithPrivateKey(s.flags.PrivateKey)
			}
			if err := logger.Init(cfg.Logging); err != nil {
				return err
			}
			s.cfg = cfg
			return nil
		},
	}
	cmd.PersistentFlags().StringVar(&s.flags.ConfigPath, "config", "", "Path to config file")
	cmd.PersistentFlags().StringVar(&s.flags.PrivateKey, "private-key", "", "Wallet private key (overrides "+config.EnvPrivateKey+")")

	cmd.AddCommand(s.newActionsCommand())
	cmd.AddCommand(s.newInvokeCommand())
	cmd.AddCommand(s.newAddressCommand())
	cmd.AddCommand(s.newServeCommand())
	cmd.AddCommand(s.newMCPCommand())
	cmd.AddCommand(newCodesCommand())
	return cmd
}

func (s *runtimeState) newActionsCommand() *cobra.Command {
	var names bool
	cmd := &cobra.Command{
		Use:   "actions",
		Short: "List available actions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := apps.NewRegistry()
			if err != nil {
				return err
			}
			if names {
				for _, name := range registry.Names() {
					_, _ = fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			}
			return writeJSON(cmd.OutOrStdout(), registry.Infos())
		},
	}
	cmd.Flags().BoolVar(&names, "names", false, "Print action names only")
	return cmd
}

func (s *runtimeState) newInvokeCommand() *cobra.Command {
	var raw string
	cmd := &cobra.Command{
		Use:   "invoke <action>",
		Short: "Invoke an action and print its result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := parseInput(raw)
			if err != nil {
				return err
			}
			rt, err := daemon.New(cmd.Context(), s.cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			out, err := rt.Agent().Execute(cmd.Context(), agent.TaskRequest{Action: args[0], Input: input})
			if err != nil {
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), out.Result); err != nil {
				return err
			}
			if !out.Result.OK() {
				return errActionFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&raw, "input", "", "Action input as a JSON object")
	return cmd
}

func (s *runtimeState) newAddressCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "address",
		Short: "Print the wallet address",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := s.cfg.Web3.PrivateKey()
			if err != nil {
				return err
			}
			parsed, err := wallet.ParsePrivateKey(key)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), crypto.PubkeyToAddress(parsed.PublicKey).Hex())
			return err
		},
	}
}

func (s *runtimeState) newServeCommand() *cobra.Command {
	var noTasks bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := daemon.New(cmd.Context(), s.cfg)
			if err != nil {
				return err
			}
			defer rt.Close()
			if !noTasks {
				if err := rt.EnableTasks(cmd.Context()); err != nil {
					return err
				}
			}
			return rt.ServeHTTP(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&noTasks, "no-tasks", false, "Disable the asynchronous task endpoints")
	return cmd
}

func (s *runtimeState) newMCPCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve actions as MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := daemon.New(cmd.Context(), s.cfg)
			if err != nil {
				return err
			}
			defer rt.Close()
			return rt.ServeMCP(cmd.Context(), version)
		},
	}
}

func newCodesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "codes",
		Short: "List the error codes an action result can carry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "GROUP\tCODE\tSEVERITY\tALERT\tMESSAGE")
			for _, e := range xerrors.Catalog() {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%s\n", e.Group, e.Code, e.Severity, e.Alert, e.Message)
			}
			return w.Flush()
		},
	}
}

func parseInput(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	var input map[string]any
	if err := json.Unmarshal([]byte(raw), &input); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "--input must be a JSON object")
	}
	if input == nil {
		input = map[string]any{}
	}
	return input, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
