package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/vk/cellgrid/internal/app"
	"github.com/vk/cellgrid/internal/document"
)

// Version is set at build time.
var Version = "dev"

// flags are shared by run and serve.
type flags struct {
	settings      string
	logLevel      string
	logFormat     string
	idleWait      string
	nativeContext string
	httpPort      int
	set           []string
}

// Execute runs the command line against args.
func Execute(ctx context.Context, args []string, outW, errW io.Writer) error {
	root := NewRootCommand(outW, errW)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// NewRootCommand builds the cellgrid command tree.
func NewRootCommand(outW, errW io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "cellgrid",
		Short: "cellgrid - a reactive, polyglot cell engine",
		Long: `cellgrid evaluates documents of cells that reference each other and
user inputs by name. Edits propagate to everything downstream, across the
native expression context and any remote language runtimes.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(outW)
	root.SetErr(errW)
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})

	root.AddCommand(
		newRunCommand(outW, errW),
		newServeCommand(outW, errW),
		newFmtCommand(outW),
		newVersionCommand(outW),
	)
	return root
}

func newRunCommand(outW, errW io.Writer) *cobra.Command {
	f := &flags{}
	cmd := &cobra.Command{
		Use:   "run [flags] PATH...",
		Short: "Evaluate a document once and print every cell",
		Long: `Evaluate a document once and print every cell.

PATH is a single .hcl file or a directory containing .hcl files.

Examples:
  cellgrid run notebook.hcl
  cellgrid run --set x=10 --set 'mode="fast"' notebook.hcl`,
		Args: documentArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.config(cmd, args)
			if err != nil {
				return err
			}
			a, err := app.NewApp(outW, errW, cfg)
			if err != nil {
				return err
			}
			return a.Run(cmd.Context())
		},
	}
	f.register(cmd, false)
	return cmd
}

func newServeCommand(outW, errW io.Writer) *cobra.Command {
	f := &flags{}
	cmd := &cobra.Command{
		Use:   "serve [flags] PATH...",
		Short: "Keep a document live and expose it over HTTP",
		Long: `Keep a document live and expose it over HTTP.

Endpoints:
  GET /health          liveness
  GET /values          every cell as a value package
  GET /values/{id}     one cell rendered with its MIME type
  PUT /inputs/{name}   bind name to the value package in the body`,
		Args: documentArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.config(cmd, args)
			if err != nil {
				return err
			}
			a, err := app.NewApp(outW, errW, cfg)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.Serve(ctx)
		},
	}
	f.register(cmd, true)
	return cmd
}

func newFmtCommand(outW io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "fmt PATH...",
		Short: "Print a document in canonical form",
		Args:  documentArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			model, err := document.NewLoader().Load(cmd.Context(), args...)
			if err != nil {
				return err
			}
			out, err := document.Encode(model)
			if err != nil {
				return err
			}
			_, err = outW.Write(out)
			return err
		},
	}
}

func newVersionCommand(outW io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(*cobra.Command, []string) {
			fmt.Fprintf(outW, "cellgrid %s\n", Version)
		},
	}
}

func documentArgs(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return usageError(fmt.Errorf("%s: at least one document path is required", cmd.Name()))
	}
	return nil
}

func (f *flags) register(cmd *cobra.Command, serve bool) {
	fs := cmd.Flags()
	fs.StringVar(&f.settings, "settings", "", "Path to a TOML settings file.")
	fs.StringVar(&f.logLevel, "log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	fs.StringVar(&f.logFormat, "log-format", "text", "Log output format. Options: 'text' or 'json'.")
	fs.StringVar(&f.idleWait, "idle-wait", "", "How long edits must pause before a pass runs, e.g. 500ms.")
	fs.StringVar(&f.nativeContext, "native-context", "", "Name of the in-process expression context.")
	fs.StringArrayVar(&f.set, "set", nil, "Bind a name before evaluation, as name=value. Repeatable.")
	if serve {
		fs.IntVar(&f.httpPort, "http-port", 8080, "Port for the HTTP server. 0 is disabled.")
	}
}

// config builds the app configuration: defaults, then the settings file,
// then the flags the user set explicitly.
func (f *flags) config(cmd *cobra.Command, args []string) (*app.Config, error) {
	cfg := app.DefaultConfig()
	cfg.DocumentPaths = args

	if f.settings != "" {
		s, err := app.LoadSettings(f.settings)
		if err != nil {
			return nil, usageError(err)
		}
		s.Apply(&cfg)
	}

	fs := cmd.Flags()
	if fs.Changed("log-level") {
		cfg.LogLevel = strings.ToLower(f.logLevel)
	}
	if fs.Changed("log-format") {
		cfg.LogFormat = strings.ToLower(f.logFormat)
	}
	if fs.Changed("idle-wait") {
		d, err := parseDuration(f.idleWait)
		if err != nil {
			return nil, usageError(fmt.Errorf("invalid idle-wait: %w", err))
		}
		cfg.IdleWait = d
	}
	if fs.Changed("native-context") {
		cfg.NativeContext = f.nativeContext
	}
	if fs.Changed("http-port") {
		cfg.HTTPPort = f.httpPort
	}

	if len(f.set) > 0 {
		cfg.Values = make(map[string]any, len(f.set))
		for _, assignment := range f.set {
			name, v, err := parseAssignment(assignment)
			if err != nil {
				return nil, usageError(err)
			}
			cfg.Values[name] = v
		}
	}

	validated, err := app.NewConfig(cfg)
	if err != nil {
		return nil, usageError(err)
	}
	return validated, nil
}
