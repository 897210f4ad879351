package cmd

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"
)

// OrderResponse is the subset of an order the CLI displays
type OrderResponse struct {
	ID            string  `json:"_id"`
	PaymentMethod string  `json:"paymentMethod"`
	TotalAmount   float64 `json:"totalAmount"`
	CreatedAt     string  `json:"createdAt"`
	ShopOrders    []struct {
		ShopID   string  `json:"shop"`
		Subtotal float64 `json:"subtotal"`
		Status   string  `json:"status"`
	} `json:"shopOrders"`
}

var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "List orders visible to the signed-in user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if token == "" {
			return fmt.Errorf("--token is required")
		}

		data, err := newClient().Request("GET", "/api/order/my-orders", nil)
		if err != nil {
			return err
		}

		if output == "json" {
			return printJSON(data)
		}

		var orders []OrderResponse
		if err := json.Unmarshal(data, &orders); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
		if len(orders) == 0 {
			fmt.Println("No orders found.")
			return nil
		}

		ordersTable(orders, wideIDs).render(os.Stdout)
		return nil
	},
}

var orderGetCmd = &cobra.Command{
	Use:   "order <order-id>",
	Short: "Show one order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if token == "" {
			return fmt.Errorf("--token is required")
		}

		data, err := newClient().Request("GET", "/api/order/get-order-by-id/"+url.PathEscape(args[0]), nil)
		if err != nil {
			return err
		}
		return printJSON(data)
	},
}

var wideIDs bool

func init() {
	ordersCmd.Flags().BoolVar(&wideIDs, "wide", false, "Print full order and shop IDs")
	rootCmd.AddCommand(ordersCmd)
	rootCmd.AddCommand(orderGetCmd)
}
