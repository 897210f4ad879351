package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"
)

// column describes one table column. Numeric columns are right aligned and
// cells longer than max runes are cut short.
type column struct {
	title   string
	numeric bool
	max     int
}

type table struct {
	columns []column
	rows    [][]string
}

func newTable(columns ...column) *table {
	return &table{columns: columns}
}

func (t *table) add(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *table) render(w io.Writer) {
	widths := make([]int, len(t.columns))
	for i, c := range t.columns {
		widths[i] = utf8.RuneCountInString(c.title)
	}
	cells := make([][]string, len(t.rows))
	for r, row := range t.rows {
		cells[r] = make([]string, len(t.columns))
		for i := range t.columns {
			if i < len(row) {
				cells[r][i] = truncate(row[i], t.columns[i].max)
			}
			if n := utf8.RuneCountInString(cells[r][i]); n > widths[i] {
				widths[i] = n
			}
		}
	}

	line := func(values []string) {
		parts := make([]string, len(values))
		for i, v := range values {
			pad := strings.Repeat(" ", widths[i]-utf8.RuneCountInString(v))
			if t.columns[i].numeric {
				parts[i] = pad + v
			} else {
				parts[i] = v + pad
			}
		}
		fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
	}

	titles := make([]string, len(t.columns))
	rules := make([]string, len(t.columns))
	for i, c := range t.columns {
		titles[i] = c.title
		rules[i] = strings.Repeat("-", widths[i])
	}
	line(titles)
	line(rules)
	for _, row := range cells {
		line(row)
	}
}

func truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	if max <= 3 {
		return string([]rune(s)[:max])
	}
	return string([]rune(s)[:max-3]) + "..."
}

// shortID keeps the tail of a long identifier, which is what tells
// ObjectIDs and UUIDs apart at a glance
func shortID(id string) string {
	const keep = 8
	if utf8.RuneCountInString(id) <= keep {
		return id
	}
	r := []rune(id)
	return string(r[len(r)-keep:])
}

func money(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

// when renders an API timestamp in local time, or as received if it does
// not parse
func when(ts string) string {
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return ts
	}
	return t.Local().Format("2006-01-02 15:04")
}

// ordersTable lists one line per shop order. The order columns are only
// filled on the first line of each order.
func ordersTable(orders []OrderResponse, wide bool) *table {
	id := shortID
	if wide {
		id = func(s string) string { return s }
	}
	t := newTable(
		column{title: "ORDER"},
		column{title: "CREATED"},
		column{title: "PAYMENT"},
		column{title: "TOTAL", numeric: true},
		column{title: "SHOP"},
		column{title: "SUBTOTAL", numeric: true},
		column{title: "STATUS"},
	)
	for _, o := range orders {
		if len(o.ShopOrders) == 0 {
			t.add(id(o.ID), when(o.CreatedAt), strings.ToUpper(o.PaymentMethod), money(o.TotalAmount), "-", "", "")
			continue
		}
		for i, so := range o.ShopOrders {
			if i == 0 {
				t.add(id(o.ID), when(o.CreatedAt), strings.ToUpper(o.PaymentMethod), money(o.TotalAmount),
					id(so.ShopID), money(so.Subtotal), so.Status)
				continue
			}
			t.add("", "", "", "", id(so.ShopID), money(so.Subtotal), so.Status)
		}
	}
	return t
}

func shopsTable(shops []ShopResponse) *table {
	t := newTable(
		column{title: "ID"},
		column{title: "NAME", max: 28},
		column{title: "LOCATION", max: 32},
		column{title: "ADDRESS", max: 40},
	)
	for _, s := range shops {
		location := s.City
		if s.State != "" {
			location += ", " + s.State
		}
		t.add(s.ID, s.Name, location, s.Address)
	}
	return t
}

func itemsTable(items []ItemResponse) *table {
	t := newTable(
		column{title: "ID"},
		column{title: "NAME", max: 28},
		column{title: "CATEGORY", max: 16},
		column{title: "TYPE"},
		column{title: "PRICE", numeric: true},
		column{title: "RATING", numeric: true},
		column{title: "SHOP"},
	)
	for _, it := range items {
		rating := "-"
		if it.Rating.Count > 0 {
			rating = fmt.Sprintf("%.1f (%d)", it.Rating.Average, it.Rating.Count)
		}
		t.add(it.ID, it.Name, it.Category, it.FoodType, money(it.Price), rating, it.ShopID)
	}
	return t
}
