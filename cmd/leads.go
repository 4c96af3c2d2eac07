package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/conneroisu/brokerage/internal/config"
	"github.com/conneroisu/brokerage/internal/leads"
)

var (
	leadsLimit  int
	leadsFormat string
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "Work with accepted leads",
}

var leadsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the most recent leads",
	Long: `List the most recent leads, newest first.

Examples:
  brokerage leads list                  # Last 20 leads as a table
  brokerage leads list -n 100 -f json   # Last 100 leads as JSON`,
	Args: cobra.NoArgs,
	RunE: runLeadsList,
}

func init() {
	rootCmd.AddCommand(leadsCmd)
	leadsCmd.AddCommand(leadsListCmd)

	leadsListCmd.Flags().IntVarP(&leadsLimit, "limit", "n", 20, "Number of leads to show")
	leadsListCmd.Flags().StringVarP(&leadsFormat, "format", "f", "table", "Output format (table, json)")

	AddFlagValidation(leadsListCmd, "format", OneOf("table", "json"))
}

func runLeadsList(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	store, err := leads.OpenSQLite(cfg.Leads.DatabasePath)
	if err != nil {
		return err
	}
	defer store.Close()

	return printLeads(cmd.Context(), cmd.OutOrStdout(), store, leadsLimit, leadsFormat)
}

func printLeads(ctx context.Context, out io.Writer, store leads.Store, limit int, format string) error {
	list, err := store.List(ctx, limit)
	if err != nil {
		return err
	}

	switch format {
	case "json":
		if list == nil {
			list = []*leads.Lead{}
		}
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(list)
	case "table":
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tFORM\tCREATED\tFIELDS")
		for _, lead := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				lead.ID, lead.FormID, lead.CreatedAt.Format("2006-01-02 15:04"), summarizeFields(lead.Fields))
		}
		return w.Flush()
	default:
		return fmt.Errorf("unsupported format: %s (supported: table, json)", format)
	}
}

// summarizeFields renders fields as sorted key=value pairs.
func summarizeFields(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := fields[k]
		if r := []rune(v); len(r) > 32 {
			v = string(r[:29]) + "..."
		}
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, " ")
}
