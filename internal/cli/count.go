package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/okian/snackboard/internal/client/counter"
	"github.com/okian/snackboard/internal/client/identity"
	"github.com/okian/snackboard/internal/client/session"
	"github.com/okian/snackboard/internal/client/syncclient"
	"github.com/okian/snackboard/internal/domain/types"
)

// NewEatCommand creates the eat command.
func NewEatCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "eat",
		Short: "Count one more snack",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMutation(rootOpts, cmd, func(ctx context.Context, s *session.Session) (int, error) {
				return s.Increment(ctx)
			})
		},
	}
}

// NewUneatCommand creates the uneat command.
func NewUneatCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "uneat",
		Short: "Take one snack back (never below zero)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMutation(rootOpts, cmd, func(ctx context.Context, s *session.Session) (int, error) {
				return s.Decrement(ctx)
			})
		},
	}
}

// NewSetCommand creates the set command.
func NewSetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <n>",
		Short: "Set the snack count",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return rootOpts.formatter(cmd).Fail(ExitFailure, ErrCodeInvalidInput,
					fmt.Sprintf("count must be an integer, got %q", args[0]), err)
			}
			return runMutation(rootOpts, cmd, func(ctx context.Context, s *session.Session) (int, error) {
				return s.SetCount(ctx, n)
			})
		},
	}
}

// NewCountCommand creates the count command.
func NewCountCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Show the snack count stored on this device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMutation(rootOpts, cmd, nil)
		},
	}
}

// runMutation applies change (when set) inside a session and prints the
// resulting count. Pushes finish before it returns.
func runMutation(opts *RootOptions, cmd *cobra.Command, change func(context.Context, *session.Session) (int, error)) error {
	f := opts.formatter(cmd)
	rt, err := newRuntime(opts)
	if err != nil {
		return fail(f, err)
	}
	defer rt.Close()

	ctx := cmd.Context()
	var snap session.Snapshot
	err = rt.withSession(ctx, func(s *session.Session) error {
		if s.State() == session.NoIdentity {
			return session.ErrNoIdentity
		}
		if change != nil {
			if _, err := change(ctx, s); err != nil {
				return err
			}
		}
		snap = s.Snapshot()
		return nil
	}, session.WithPushOnLoad(false))
	if err != nil {
		return fail(f, err)
	}
	return f.Success(newCountResult(snap))
}

// fail maps client errors to CLI error codes and exit codes.
func fail(f *OutputFormatter, err error) error {
	switch {
	case errors.Is(err, session.ErrNoIdentity):
		return f.Fail(ExitFailure, ErrCodeNoIdentity, "no identity on this device; run `snack join <name>` first", nil)
	case errors.Is(err, identity.ErrEmptyName), errors.Is(err, types.ErrNegativeCount):
		return f.Fail(ExitFailure, ErrCodeInvalidInput, err.Error(), nil)
	case errors.Is(err, identity.ErrPersist), errors.Is(err, counter.ErrStorage), errors.Is(err, counter.ErrSchemaTooNew):
		return f.Fail(ExitCommandError, ErrCodeStorage, "local storage failed", err)
	case errors.Is(err, syncclient.ErrInvalidBaseURL):
		return f.Fail(ExitCommandError, ErrCodeInvalidInput, "invalid server URL", err)
	default:
		return f.Fail(ExitCommandError, ErrCodeGeneric, "command failed", err)
	}
}
