package cmd

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"

	"github.com/spf13/cobra"
)

// ShopResponse is the subset of a shop the CLI displays
type ShopResponse struct {
	ID      string `json:"_id"`
	Name    string `json:"name"`
	City    string `json:"city"`
	State   string `json:"state"`
	Address string `json:"address"`
}

// ItemResponse is the subset of an item the CLI displays
type ItemResponse struct {
	ID       string  `json:"_id"`
	Name     string  `json:"name"`
	ShopID   string  `json:"shop"`
	Category string  `json:"category"`
	Price    float64 `json:"price"`
	FoodType string  `json:"foodType"`
	Rating   struct {
		Average float64 `json:"average"`
		Count   int     `json:"count"`
	} `json:"rating"`
}

var shopsCmd = &cobra.Command{
	Use:   "shops <city>",
	Short: "List shops in a city",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := newClient().Request("GET", "/api/shop/get-by-city/"+url.PathEscape(args[0]), nil)
		if err != nil {
			return err
		}

		if output == "json" {
			return printJSON(data)
		}

		var shops []ShopResponse
		if err := json.Unmarshal(data, &shops); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
		if len(shops) == 0 {
			fmt.Println("No shops found.")
			return nil
		}

		shopsTable(shops).render(os.Stdout)
		return nil
	},
}

var itemsCmd = &cobra.Command{
	Use:   "items",
	Short: "Browse menu items",
}

var itemsSearchCity string

var itemsSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search items by name or category within a city",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q := url.Values{}
		q.Set("query", args[0])
		q.Set("city", itemsSearchCity)
		return listItems("/api/item/search-items?" + q.Encode())
	},
}

var itemsCityCmd = &cobra.Command{
	Use:   "city <city>",
	Short: "List items sold in a city",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return listItems("/api/item/get-by-city/" + url.PathEscape(args[0]))
	},
}

var itemsShopCmd = &cobra.Command{
	Use:   "shop <shop-id>",
	Short: "List items of one shop",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return listItems("/api/item/get-by-shop/" + url.PathEscape(args[0]))
	},
}

func listItems(path string) error {
	data, err := newClient().Request("GET", path, nil)
	if err != nil {
		return err
	}

	if output == "json" {
		return printJSON(data)
	}

	var items []ItemResponse
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	if len(items) == 0 {
		fmt.Println("No items found.")
		return nil
	}

	itemsTable(items).render(os.Stdout)
	return nil
}

func init() {
	rootCmd.AddCommand(shopsCmd)
	rootCmd.AddCommand(itemsCmd)
	itemsCmd.AddCommand(itemsSearchCmd)
	itemsCmd.AddCommand(itemsCityCmd)
	itemsCmd.AddCommand(itemsShopCmd)

	itemsSearchCmd.Flags().StringVar(&itemsSearchCity, "city", "", "City to search in (required)")
	_ = itemsSearchCmd.MarkFlagRequired("city")
}
