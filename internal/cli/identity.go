package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/okian/snackboard/internal/client/session"
)

// messageResult is the output of commands that only confirm an action.
type messageResult struct {
	Message string `json:"message"`
}

func (m messageResult) String() string { return m.Message }

// NewJoinCommand creates the join command.
func NewJoinCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "join <name>",
		Short: "Create an identity on this device",
		Long: `Create a fresh identity for <name> on this device and register it with
the server. Run change-user first to count as someone else.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJoin(rootOpts, strings.Join(args, " "), cmd)
		},
	}
}

func runJoin(opts *RootOptions, name string, cmd *cobra.Command) error {
	f := opts.formatter(cmd)
	rt, err := newRuntime(opts)
	if err != nil {
		return fail(f, err)
	}
	defer rt.Close()

	ctx := cmd.Context()
	if current, ok := rt.identities.Lookup(ctx); ok {
		return f.Fail(ExitFailure, ErrCodeGeneric,
			"already joined as "+current.UserName+"; run change-user first", nil)
	}

	var result identityResult
	err = rt.withSession(ctx, func(s *session.Session) error {
		id, err := s.Join(ctx, name)
		result = identityResult{Identity: id}
		return err
	})
	if err != nil {
		return fail(f, err)
	}
	f.VerboseLog("identity stored in %s", rt.identities.Path())
	return f.Success(result)
}

// NewWhoamiCommand creates the whoami command.
func NewWhoamiCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the identity stored on this device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			rt, err := newRuntime(rootOpts)
			if err != nil {
				return fail(f, err)
			}
			defer rt.Close()

			id, ok := rt.identities.Lookup(cmd.Context())
			if !ok {
				return fail(f, session.ErrNoIdentity)
			}
			return f.Success(identityResult{Identity: id})
		},
	}
}

// NewChangeUserCommand creates the change-user command.
func NewChangeUserCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "change-user",
		Short: "Forget the identity on this device",
		Long: `Forget the identity on this device. The server keeps the old record
and this device keeps its local count for it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			rt, err := newRuntime(rootOpts)
			if err != nil {
				return fail(f, err)
			}
			defer rt.Close()

			ctx := cmd.Context()
			err = rt.withSession(ctx, func(s *session.Session) error {
				return s.ChangeUser(ctx)
			}, session.WithPushOnLoad(false))
			if err != nil {
				return fail(f, err)
			}
			return f.Success(messageResult{Message: "identity cleared"})
		},
	}
}
