package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/conneroisu/brokerage/internal/config"
	"github.com/conneroisu/brokerage/internal/formstate"
	"github.com/conneroisu/brokerage/internal/logging"
)

var formsCmd = &cobra.Command{
	Use:   "forms",
	Short: "Inspect visitors' saved form state",
	Long: `Read the draft and submission state the server keeps per visitor session.

The commands open the storage backend configured for the server, so they
only see state written by a file or sqlite backend.`,
}

var formsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions with saved state",
	Args:  cobra.NoArgs,
	RunE:  runFormsList,
}

var formsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Print a session's drafts and submitted forms as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runFormsShow,
}

var formsClearCmd = &cobra.Command{
	Use:   "clear <session-id>",
	Short: "Delete a session's saved state",
	Long: `Delete a session's saved state from storage.

Run it while the server is stopped. A running server keeps the session in
memory and writes it back on the visitor's next change.`,
	Args: cobra.ExactArgs(1),
	RunE: runFormsClear,
}

func init() {
	rootCmd.AddCommand(formsCmd)
	formsCmd.AddCommand(formsListCmd, formsShowCmd, formsClearCmd)
}

// withFormStorage opens the configured form storage for the duration of fn.
func withFormStorage(fn func(cfg *config.Config, storage formstate.Storage) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	storage, closeStorage, err := formstate.OpenStorage(cfg.Storage.Backend, cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer closeStorage()

	return fn(cfg, storage)
}

func runFormsList(cmd *cobra.Command, args []string) error {
	return withFormStorage(func(cfg *config.Config, storage formstate.Storage) error {
		return listSessions(cmd.Context(), cmd.OutOrStdout(), storage, cfg.Storage.Namespace)
	})
}

func runFormsShow(cmd *cobra.Command, args []string) error {
	return withFormStorage(func(cfg *config.Config, storage formstate.Storage) error {
		return showSession(cmd.OutOrStdout(), storage, cfg.Storage.Namespace, args[0])
	})
}

func runFormsClear(cmd *cobra.Command, args []string) error {
	return withFormStorage(func(cfg *config.Config, storage formstate.Storage) error {
		return clearSession(cmd.Context(), cmd.OutOrStdout(), storage, cfg.Storage.Namespace, args[0])
	})
}

func listSessions(ctx context.Context, out io.Writer, storage formstate.Storage, namespace string) error {
	lister, ok := storage.(formstate.Lister)
	if !ok {
		return fmt.Errorf("storage backend cannot list sessions")
	}

	prefix := formstate.Key(namespace, "")
	keys, err := lister.Keys(ctx, prefix)
	if err != nil {
		return err
	}

	for _, key := range keys {
		fmt.Fprintln(out, strings.TrimPrefix(key, prefix))
	}
	return nil
}

func showSession(out io.Writer, storage formstate.Storage, namespace, sessionID string) error {
	if !formstate.ValidSessionID(sessionID) {
		return fmt.Errorf("invalid session id %q", sessionID)
	}

	store := formstate.New(storage, formstate.Key(namespace, sessionID), logging.NewNop())

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(store.Snapshot())
}

func clearSession(ctx context.Context, out io.Writer, storage formstate.Storage, namespace, sessionID string) error {
	if !formstate.ValidSessionID(sessionID) {
		return fmt.Errorf("invalid session id %q", sessionID)
	}

	if err := storage.Delete(ctx, formstate.Key(namespace, sessionID)); err != nil {
		return err
	}

	fmt.Fprintf(out, "Cleared %s\n", sessionID)
	return nil
}
