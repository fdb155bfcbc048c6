// Package main implements the remedyctl CLI for manual operations
// against the remedyd HTTP server.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the remedyd HTTP server
	serverURL string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "remedyctl",
	Short: "CLI for remedyd remediation server operations",
	Long: `remedyctl is a command-line interface for the remedyd remediation
orchestration server. It submits remediation proposals, resolves pending
approvals, and inspects records, learning insights, and detected patterns.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8484", "remedyd server URL")
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(recordsCmd)
	rootCmd.AddCommand(approvalsCmd)
	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(rejectCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(feedbackCmd)
	rootCmd.AddCommand(observeCmd)
	rootCmd.AddCommand(insightsCmd)
	rootCmd.AddCommand(patternsCmd)
}

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check remedyd server health",
	Long: `Check the health status of the remedyd HTTP server.

Examples:
  # Check health
  remedyctl health

  # Check health on a different server
  remedyctl health --server http://localhost:8080`,
	RunE: runHealth,
}

// HealthResponse matches pkg/server HealthResponse.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

func runHealth(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 5 * time.Second}

	url := fmt.Sprintf("%s/health", serverURL)
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(resp)
	}

	var healthResp HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&healthResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	fmt.Printf("Server Status: %s\n", healthResp.Status)
	return nil
}

// doGet issues a GET request and returns the response body on 200.
func doGet(path string) ([]byte, error) {
	client := &http.Client{Timeout: 30 * time.Second}

	url := serverURL + path
	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(resp)
	}
	return io.ReadAll(resp.Body)
}

// doPost issues a JSON POST and returns the response body when the
// status matches one of the accepted codes.
func doPost(path string, payload any, accept ...int) ([]byte, int, error) {
	reqJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := serverURL + path
	httpReq, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(reqJSON))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to send request to %s: %w", url, err)
	}
	defer resp.Body.Close()

	for _, code := range accept {
		if resp.StatusCode == code {
			body, readErr := io.ReadAll(resp.Body)
			if readErr != nil {
				return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", readErr)
			}
			return body, resp.StatusCode, nil
		}
	}
	return nil, resp.StatusCode, statusError(resp)
}

// statusError formats a non-success HTTP response as an error.
func statusError(resp *http.Response) error {
	body, readErr := io.ReadAll(resp.Body)
	if readErr != nil {
		return fmt.Errorf("server returned status %d (failed to read response body: %w)", resp.StatusCode, readErr)
	}
	return fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(body))
}

// printJSON pretty-prints a JSON body to stdout.
func printJSON(body []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, body, "", "  "); err != nil {
		// Not JSON; print as-is.
		fmt.Println(string(body))
		return nil
	}
	fmt.Println(buf.String())
	return nil
}
