package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/okian/snackboard/internal/client/counter"
	"github.com/okian/snackboard/internal/client/identity"
	"github.com/okian/snackboard/internal/client/session"
	"github.com/okian/snackboard/internal/client/syncclient"
	"github.com/okian/snackboard/internal/domain/types"
	"github.com/okian/snackboard/pkg/logger"
)

// stopTimeoutFactor bounds how many request timeouts a command waits for
// pending pushes before giving up on them.
const stopTimeoutFactor = 3

// runtime wires the client components for one command invocation.
type runtime struct {
	opts       *RootOptions
	identities *identity.Store
	counts     *counter.Cache
	client     *syncclient.Client
}

func newRuntime(opts *RootOptions, clientOpts ...syncclient.Option) (*runtime, error) {
	cfg := opts.Config
	if cfg == nil {
		return nil, errors.New("configuration not resolved")
	}

	clientOpts = append([]syncclient.Option{
		syncclient.WithTimeout(cfg.RequestTimeout()),
		syncclient.WithRankingLimit(cfg.RankingLimit),
	}, clientOpts...)
	client, err := syncclient.New(cfg.ServerURL, clientOpts...)
	if err != nil {
		return nil, err
	}

	return &runtime{
		opts:       opts,
		identities: identity.New(cfg.StateDir),
		counts:     counter.New(cfg.StateDir),
		client:     client,
	}, nil
}

// session builds a session without background polling unless opts add it.
func (r *runtime) session(opts ...session.Option) *session.Session {
	opts = append([]session.Option{
		session.WithMaxCount(r.opts.Config.MaxCount),
		session.WithPollInterval(0),
	}, opts...)
	return session.New(r.identities, r.counts, r.client, opts...)
}

// checkSchema refuses a counter database written by a newer client. Reads
// from such a file degrade to 0, and pushing that 0 would overwrite the
// server's count. Other storage failures only degrade local caching.
func (r *runtime) checkSchema(ctx context.Context) error {
	v, err := r.counts.Version(ctx)
	switch {
	case errors.Is(err, counter.ErrSchemaTooNew):
		return err
	case err != nil:
		logger.Get().Warn(ctx, "counter cache unavailable; counts will not persist locally", logger.Error(err))
	default:
		logger.Get().Debug(ctx, "counter cache ready", logger.String("path", r.counts.Path()), logger.Int("schema_version", v))
	}
	return nil
}

func (r *runtime) Close() error {
	return r.counts.Close()
}

// withSession starts a session, runs fn and stops the session so every
// queued change is saved and pushed before the command returns.
func (r *runtime) withSession(ctx context.Context, fn func(*session.Session) error, opts ...session.Option) error {
	if err := r.checkSchema(ctx); err != nil {
		return err
	}

	s := r.session(opts...)
	fnErr := s.Start(ctx)
	if fnErr == nil {
		fnErr = fn(s)
	}

	// Stop gets its own deadline since ctx may already be done.
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeoutFactor*r.opts.Config.RequestTimeout())
	defer cancel()
	if err := s.Stop(stopCtx); err != nil && fnErr == nil {
		return err
	}
	return fnErr
}

// countResult is the output of commands that report the current count.
type countResult struct {
	types.LocalCounterRecord
	UserName string `json:"userName"`
}

func newCountResult(snap session.Snapshot) countResult {
	return countResult{
		LocalCounterRecord: types.LocalCounterRecord{ID: snap.Identity.UserID, Count: snap.Count},
		UserName:           snap.Identity.UserName,
	}
}

func (c countResult) String() string {
	return fmt.Sprintf("%s: %d", c.UserName, c.Count)
}

// identityResult is the output of join and whoami.
type identityResult struct {
	types.Identity
}

func (i identityResult) String() string {
	return fmt.Sprintf("%s (%s)", i.UserName, i.UserID)
}

// rankingResult renders a ranking as a table, marking the current user.
type rankingResult struct {
	Ranking []types.UserRecord `json:"ranking"`
	Me      string             `json:"me,omitempty"`
}

func (r rankingResult) String() string {
	if len(r.Ranking) == 0 {
		return "No one on the board yet. Be the first!"
	}

	var b strings.Builder
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tNAME\tCOUNT\t")
	for i, rec := range r.Ranking {
		marker := ""
		if r.Me != "" && rec.ID == r.Me {
			marker = "<- you"
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", i+1, rec.Name, rec.Count, marker)
	}
	_ = tw.Flush()
	return strings.TrimRight(b.String(), "\n")
}
