package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// StatusResponse mirrors GET /status
type StatusResponse struct {
	Status       string   `json:"status"`
	Service      string   `json:"service"`
	State        string   `json:"state"`
	OnlineUsers  int      `json:"online_users"`
	APIVersion   int      `json:"api_version"`
	Capabilities []string `json:"capabilities"`
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the liveness endpoint",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := newClient().Request("GET", "/", nil)
		if err != nil {
			return err
		}
		fmt.Println(strings.TrimSpace(string(data)))
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server readiness and online users",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := newClient().Request("GET", "/status", nil)
		if err != nil {
			return err
		}

		if output == "json" {
			return printJSON(data)
		}

		var resp StatusResponse
		if err := json.Unmarshal(data, &resp); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}

		t := newTable(
			column{title: "SERVICE"},
			column{title: "STATUS"},
			column{title: "STATE"},
			column{title: "ONLINE", numeric: true},
			column{title: "API"},
			column{title: "CAPABILITIES", max: 60},
		)
		t.add(resp.Service, resp.Status, resp.State, fmt.Sprintf("%d", resp.OnlineUsers),
			fmt.Sprintf("v%d", resp.APIVersion), strings.Join(resp.Capabilities, ","))
		t.render(os.Stdout)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(statusCmd)
}
