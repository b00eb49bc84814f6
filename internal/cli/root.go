// Package cli implements flowctl, a command line client for the trove API.
// Commands that change order go through the editor exactly like a drag in
// the UI would, so they get the same classification and rollback.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"trove/api/internal/config"
	"trove/api/internal/editor"
	"trove/api/internal/flowclient"
	"trove/api/internal/telemetry"
)

type globals struct {
	apiURL   string
	token    string
	user     string
	output   string
	logLevel string
}

type env struct {
	g      *globals
	stdout io.Writer
	stderr io.Writer
	doer   flowclient.Doer
}

// client builds an API client. Without a token it logs in as --user.
func (e *env) client(ctx context.Context) (*flowclient.Client, error) {
	c := flowclient.New(e.g.apiURL, flowclient.WithToken(e.g.token), flowclient.WithHTTPClient(e.doer))
	if c.Token() != "" {
		return c, nil
	}
	if e.g.user == "" {
		return nil, errors.New("no credentials: set --token (TROVE_TOKEN) or --user")
	}
	if _, err := c.Login(ctx, e.g.user); err != nil {
		return nil, fmt.Errorf("login as %s: %w", e.g.user, err)
	}
	return c, nil
}

func (e *env) output() (*Output, error) {
	format, err := ParseFormat(e.g.output)
	if err != nil {
		return nil, err
	}
	return NewOutput(format, e.stdout, e.stderr), nil
}

func (e *env) logger() zerolog.Logger {
	return telemetry.NewLogger(e.stderr, e.g.logLevel, "console")
}

// openEditor loads flowID into an editor that reports notices on stderr.
func (e *env) openEditor(ctx context.Context, c *flowclient.Client, flowID string, opts ...editor.Option) (*editor.Editor, error) {
	logger := e.logger()
	opts = append(opts,
		editor.WithLogger(logger),
		editor.WithNotifier(editor.NotifierFunc(func(n editor.Notice) {
			logger.WithLevel(noticeLevel(n.Level)).Err(n.Err).Msg(n.Message)
		})),
	)
	return editor.Open(ctx, c, flowID, opts...)
}

func noticeLevel(level editor.NoticeLevel) zerolog.Level {
	switch level {
	case editor.NoticeError:
		return zerolog.ErrorLevel
	case editor.NoticeWarning:
		return zerolog.WarnLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewRootCmd assembles flowctl. Defaults come from TROVE_API_URL and
// TROVE_TOKEN.
func NewRootCmd(version string, stdout, stderr io.Writer) *cobra.Command {
	return newRootCmd(version, stdout, stderr, nil)
}

func newRootCmd(version string, stdout, stderr io.Writer, doer flowclient.Doer) *cobra.Command {
	defaults := config.LoadClient()
	e := &env{g: &globals{}, stdout: stdout, stderr: stderr, doer: doer}

	root := &cobra.Command{
		Use:           "flowctl",
		Short:         "Edit trove flows from the command line",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&e.g.apiURL, "api-url", defaults.APIURL, "API server URL")
	flags.StringVar(&e.g.token, "token", defaults.Token, "Bearer token")
	flags.StringVar(&e.g.user, "user", "", "Log in by display name when no token is set")
	flags.StringVarP(&e.g.output, "output", "o", "table", "Output format: table, json or yaml")
	flags.StringVar(&e.g.logLevel, "log-level", "warn", "Log level for diagnostics on stderr")

	root.AddCommand(
		newFlowsCmd(e),
		newStageCmd(e),
		newNodeCmd(e),
		newLibraryCmd(e),
	)
	return root
}

// drag replays one pointer drag through the editor and fails unless the
// drop changed something on the server.
func drag(ctx context.Context, ed *editor.Editor, src editor.Source, target editor.Target) (editor.Result, error) {
	if err := ed.BeginDrag(src); err != nil {
		return editor.Result{}, err
	}
	ed.Hover(&target)
	res := ed.Release(ctx)
	switch res.Kind {
	case editor.ResultCommitted, editor.ResultInserted:
		return res, nil
	case editor.ResultIgnored:
		if ignore, ok := res.Action.(editor.Ignore); ok {
			return res, fmt.Errorf("nothing to do: %s", ignore.Reason)
		}
		return res, errors.New("nothing to do")
	default:
		if res.Err != nil {
			return res, fmt.Errorf("%s: %w", res.Kind, res.Err)
		}
		return res, errors.New(string(res.Kind))
	}
}
