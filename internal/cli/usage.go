package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"market-predictor/internal/provider"
)

var usageServer string

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show provider quota usage",
	Long: "Show provider quota usage. Quotas are tracked per process, so point --server " +
		"at a running predictor server to see its counters.",
	RunE: func(cmd *cobra.Command, args []string) error {
		var usage []provider.QuotaUsage
		if usageServer != "" {
			var err error
			usage, err = fetchRemoteUsage(cmd.Context(), usageServer)
			if err != nil {
				return err
			}
		} else {
			usage = getService().Usage()
		}
		return writeUsage(cmd.OutOrStdout(), usage)
	},
}

func init() {
	usageCmd.Flags().StringVar(&usageServer, "server", "", "Base URL of a running server, e.g. http://localhost:8080")
}

func fetchRemoteUsage(ctx context.Context, base string) ([]provider.QuotaUsage, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(base, "/")+"/api/usage", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch usage: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch usage: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		Providers []provider.QuotaUsage `json:"providers"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode usage: %w", err)
	}
	return payload.Providers, nil
}

func writeUsage(w io.Writer, usage []provider.QuotaUsage) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PROVIDER\tCALLS\tLIMIT\tRESETS")
	for _, u := range usage {
		resets := "-"
		if !u.ResetsAt.IsZero() {
			resets = u.ResetsAt.Local().Format(time.RFC822)
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", u.Provider, u.Calls, u.Limit, resets)
	}
	return tw.Flush()
}
