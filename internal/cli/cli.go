// Package cli implements the saldoctl subcommands: schema migration,
// balance verification and repair, reports and key generation.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/google/subcommands"
	"github.com/joho/godotenv"

	"saldo/internal/app"
	"saldo/internal/config"
	"saldo/internal/log"
)

// Env is what commands read from and write to.
type Env struct {
	Stdout io.Writer
	Stderr io.Writer

	// Config loads and validates configuration.
	Config func() (*config.Config, error)
	Logger *log.Logger

	// Render turns markdown into terminal output. Nil prints it raw.
	Render func(md string) (string, error)
}

// DefaultEnv reads configuration from the environment and an optional
// .env file. Logs go to stderr so stdout stays pipeable.
func DefaultEnv() *Env {
	return &Env{
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Config: loadConfig,
		Logger: log.New(log.Config{
			Level:     log.ParseLevel(os.Getenv("LOG_LEVEL")),
			Format:    "text",
			Component: log.ComponentCLI,
			Output:    os.Stderr,
		}),
		Render: renderTerminal,
	}
}

// Commands lists every subcommand bound to env.
func Commands(env *Env) []subcommands.Command {
	return []subcommands.Command{
		&migrateCmd{env: env},
		&verifyCmd{env: env},
		&reconcileCmd{env: env},
		&reportCmd{env: env},
		&genKeyCmd{env: env},
	}
}

func loadConfig() (*config.Config, error) {
	_ = godotenv.Load()
	cfg := config.Load()
	if err := cfg.ValidateBackground(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func renderTerminal(md string) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return "", err
	}
	return r.Render(md)
}

func (e *Env) open(ctx context.Context) (*app.App, error) {
	cfg, err := e.Config()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, e.Logger)
}

func (e *Env) printMarkdown(md string) {
	out := md
	if e.Render != nil {
		rendered, err := e.Render(md)
		if err != nil {
			e.Logger.Warn("Failed to render markdown", log.FieldError, err)
		} else {
			out = rendered
		}
	}
	fmt.Fprint(e.Stdout, out)
}

func (e *Env) fail(err error) subcommands.ExitStatus {
	fmt.Fprintln(e.Stderr, err)
	return subcommands.ExitFailure
}
