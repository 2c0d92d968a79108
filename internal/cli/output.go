package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/medtrack/pkg/types"
)

// printJSON writes v as indented JSON.
func printJSON(cmd *cobra.Command, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return sysError(fmt.Errorf("marshal output: %w", err))
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

// emit prints v as JSON in --json mode, otherwise runs text.
func (a *app) emit(cmd *cobra.Command, v any, text func(w io.Writer)) error {
	if a.jsonMode {
		return printJSON(cmd, v)
	}
	text(cmd.OutOrStdout())
	return nil
}

// printTable writes a tab-aligned table with a dashed rule under the
// header, trimming trailing whitespace from each line.
func printTable(w io.Writer, header []string, rows [][]string) {
	var sb strings.Builder
	tw := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join(header, "\t"))
	rule := make([]string, len(header))
	for i, h := range header {
		rule[i] = strings.Repeat("-", len(h))
	}
	fmt.Fprintln(tw, strings.Join(rule, "\t"))
	for _, r := range rows {
		fmt.Fprintln(tw, strings.Join(r, "\t"))
	}
	tw.Flush()
	for _, line := range strings.Split(strings.TrimRight(sb.String(), "\n"), "\n") {
		fmt.Fprintln(w, strings.TrimRight(line, " "))
	}
}

// printWarnings writes validation warnings to stderr.
func printWarnings(cmd *cobra.Command, warnings []string) {
	for _, w := range warnings {
		fmt.Fprintln(cmd.ErrOrStderr(), "Warning:", w)
	}
}

// validationError joins validation errors into one user error.
func validationError(res types.ValidationResult) error {
	if res.Valid {
		return nil
	}
	return userError(fmt.Errorf("invalid input: %s", strings.Join(res.Errors, "; ")))
}

// truncate shortens s to n runes with an ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04")
}

// parseTime accepts RFC 3339 or "2006-01-02 15:04" in local time. Empty
// means zero.
func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", v, time.Local)
	if err != nil {
		return time.Time{}, userError(fmt.Errorf("invalid time %q: use RFC 3339 or YYYY-MM-DD HH:MM", v))
	}
	return t, nil
}
