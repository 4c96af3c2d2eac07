package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

// HealthReport is what the health command learned about a running server.
type HealthReport struct {
	URL        string          `json:"url"`
	Healthy    bool            `json:"healthy"`
	StatusCode int             `json:"status_code,omitempty"`
	Latency    time.Duration   `json:"latency"`
	Message    string          `json:"message,omitempty"`
	Server     json.RawMessage `json:"server,omitempty"`
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that a running server is healthy",
	Long: `Requests /api/health from a running server and exits non-zero
unless it answers 200.

This command is used by container health checks and deployment readiness probes.`,
	RunE: runHealthCheck,
}

var (
	healthPort    int
	healthHost    string
	healthTimeout time.Duration
	healthVerbose bool
)

func init() {
	rootCmd.AddCommand(healthCmd)

	healthCmd.Flags().IntVarP(&healthPort, "port", "p", 8080, "Port of the server to check")
	healthCmd.Flags().
		StringVarP(&healthHost, "host", "H", "localhost", "Host of the server to check")
	healthCmd.Flags().
		DurationVarP(&healthTimeout, "timeout", "t", 3*time.Second, "Timeout for the check")
	healthCmd.Flags().BoolVarP(&healthVerbose, "verbose", "v", false, "Print the full report as JSON")

	AddFlagValidation(healthCmd, "port", ValidatePort)
}

func runHealthCheck(cmd *cobra.Command, args []string) error {
	url := fmt.Sprintf("http://%s/api/health", net.JoinHostPort(healthHost, strconv.Itoa(healthPort)))

	ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
	defer cancel()

	report := probeHealth(ctx, http.DefaultClient, url)

	out := cmd.OutOrStdout()
	if healthVerbose {
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(report); err != nil {
			return err
		}
	} else if report.Healthy {
		fmt.Fprintf(out, "healthy (%s)\n", report.Latency.Round(time.Millisecond))
	} else {
		fmt.Fprintf(out, "unhealthy: %s\n", report.Message)
	}

	if !report.Healthy {
		return errors.New("health check failed")
	}

	return nil
}

// probeHealth performs one GET against url.
func probeHealth(ctx context.Context, client *http.Client, url string) *HealthReport {
	report := &HealthReport{URL: url}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		report.Message = err.Error()
		return report
	}

	start := time.Now()
	resp, err := client.Do(req)
	report.Latency = time.Since(start)
	if err != nil {
		report.Message = fmt.Sprintf("failed to connect to server: %v", err)
		return report
	}
	defer resp.Body.Close()

	report.StatusCode = resp.StatusCode
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err == nil && json.Valid(body) {
		report.Server = body
	}

	if resp.StatusCode != http.StatusOK {
		report.Message = fmt.Sprintf("server returned status %d", resp.StatusCode)
		return report
	}

	report.Healthy = true
	return report
}
