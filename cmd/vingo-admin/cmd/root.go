// Package cmd contains all CLI commands for vingo-admin.
package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	baseURL    string
	token      string
	cookieName string
	output     string
)

// Client wraps the HTTP client for backend API calls
type Client struct {
	baseURL    string
	token      string
	cookieName string
	httpClient *http.Client
}

// NewClient creates a new API client. The token, when set, is sent as the
// session cookie.
func NewClient(baseURL, token, cookieName string) *Client {
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		token:      token,
		cookieName: cookieName,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Request makes an HTTP request to the backend
func (c *Client) Request(method, path string, body interface{}) ([]byte, error) {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.AddCookie(&http.Cookie{Name: c.cookieName, Value: c.token})
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, errResp.Error)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return respBody, nil
}

func newClient() *Client {
	return NewClient(baseURL, token, cookieName)
}

// printJSON formats and prints JSON output
func printJSON(data []byte) error {
	var formatted bytes.Buffer
	if err := json.Indent(&formatted, data, "", "  "); err != nil {
		// Not JSON, print as-is
		fmt.Println(string(data))
		return nil
	}
	fmt.Println(formatted.String())
	return nil
}

var rootCmd = &cobra.Command{
	Use:   "vingo-admin",
	Short: "CLI tool for inspecting a Vingo backend",
	Long: `vingo-admin is a command-line tool for checking a running Vingo backend
and browsing its catalog and orders over the public API.

Examples:
  # Liveness and readiness
  vingo-admin health
  vingo-admin status

  # Shops and items in a city
  vingo-admin shops Bengaluru
  vingo-admin items search dosa --city Bengaluru

  # Orders of the signed-in user
  vingo-admin --token $TOKEN orders

Environment Variables:
  VINGO_ADMIN_URL    Base URL of the backend (default: http://localhost:8000)
  VINGO_ADMIN_TOKEN  Session token sent as the auth cookie`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&baseURL, "url", "u", getEnvOrDefault("VINGO_ADMIN_URL", "http://localhost:8000"), "Backend base URL")
	rootCmd.PersistentFlags().StringVarP(&token, "token", "t", os.Getenv("VINGO_ADMIN_TOKEN"), "Session token")
	rootCmd.PersistentFlags().StringVar(&cookieName, "cookie-name", "token", "Name of the session cookie")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format: table, json")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
