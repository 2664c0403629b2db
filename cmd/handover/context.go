package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dukerupert/handover"
	"github.com/dukerupert/handover/client"
	"github.com/dukerupert/handover/internal/catalog"
	"github.com/dukerupert/handover/internal/draft"
	"github.com/dukerupert/handover/internal/validation"
	"github.com/dukerupert/handover/internal/workflow"
	"github.com/spf13/cobra"
)

const defaultServer = "http://localhost:8080"

type commandContext struct {
	getenv  func(string) string
	server  string
	drafts  string
	verbose bool
}

func newCommandContext(getenv func(string) string) *commandContext {
	return &commandContext{getenv: getenv}
}

func (c *commandContext) serverURL() string {
	if s := strings.TrimSpace(c.server); s != "" {
		return s
	}
	if s := c.getenv("HANDOVER_SERVER"); s != "" {
		return s
	}
	return defaultServer
}

func (c *commandContext) draftsDir() (string, error) {
	if d := strings.TrimSpace(c.drafts); d != "" {
		return d, nil
	}
	if d := c.getenv("HANDOVER_DRAFTS"); d != "" {
		return d, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locating home directory: %w", err)
	}
	return filepath.Join(home, ".handover", "drafts"), nil
}

func (c *commandContext) logger(cmd *cobra.Command) *slog.Logger {
	var w io.Writer = io.Discard
	if c.verbose {
		w = cmd.ErrOrStderr()
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// openSession loads or creates the inspection for an order.
func (c *commandContext) openSession(cmd *cobra.Command, orderNumber string) (*workflow.Session, error) {
	if !validation.ValidOrderNumber(orderNumber) {
		return nil, fmt.Errorf("invalid order number %q", orderNumber)
	}

	cat, err := catalog.Default()
	if err != nil {
		return nil, err
	}
	dir, err := c.draftsDir()
	if err != nil {
		return nil, err
	}
	drafts, err := draft.NewFileCache(dir, orderNumber)
	if err != nil {
		return nil, err
	}

	api := client.New(c.serverURL())
	return workflow.Open(cmd.Context(), workflow.Config{
		Backend:  api,
		Orders:   api,
		Catalog:  cat,
		Drafts:   drafts,
		Uploader: api,
		Logger:   c.logger(cmd),
	}, orderNumber)
}

// describeError prefers the user-facing message of domain errors.
func describeError(err error) string {
	var appErr *handover.Error
	if !errors.As(err, &appErr) {
		return err.Error()
	}
	msg := appErr.Message
	if len(appErr.Fields) > 0 {
		parts := make([]string, 0, len(appErr.Fields))
		for k, v := range appErr.Fields {
			parts = append(parts, k+" "+v)
		}
		msg += " (" + strings.Join(parts, "; ") + ")"
	}
	return msg
}

// reportPending tells the user how local state relates to the server.
func reportPending(w io.Writer, s *workflow.Session) {
	if s.Unsaved() {
		fmt.Fprintln(w, "Changes are saved locally only; run `handover flush` when the server is reachable.")
	}
	if s.CompletionPending() {
		fmt.Fprintln(w, "A signature is waiting for server confirmation; run `handover flush`.")
	}
}
