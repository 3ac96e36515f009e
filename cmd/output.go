package cmd

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/olekukonko/tablewriter"
	"github.com/shopspring/decimal"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatCSV   = "csv"
)

func validateFormat(format string) error {
	switch format {
	case formatTable, formatJSON, formatCSV:
		return nil
	default:
		return fmt.Errorf("unknown format %q: use table, json or csv", format)
	}
}

// tabular is anything that can be printed as rows. JSON output encodes the
// value itself, so field names match the HTTP API.
type tabular struct {
	value  interface{}
	header []string
	rows   [][]string
}

func render(w io.Writer, format string, t tabular) error {
	switch format {
	case formatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		err := encoder.Encode(t.value)
		if err != nil {
			return fmt.Errorf("encode JSON: %w", err)
		}
		return nil
	case formatCSV:
		writer := csv.NewWriter(w)
		err := writer.Write(t.header)
		if err != nil {
			return fmt.Errorf("write CSV header: %w", err)
		}
		for _, row := range t.rows {
			err = writer.Write(row)
			if err != nil {
				return fmt.Errorf("write CSV row: %w", err)
			}
		}
		writer.Flush()
		return writer.Error()
	default:
		tbl := tablewriter.NewWriter(w)
		tbl.Header(cells(t.header)...)
		for _, row := range t.rows {
			err := tbl.Append(cells(row)...)
			if err != nil {
				return fmt.Errorf("append table row: %w", err)
			}
		}
		return tbl.Render()
	}
}

func cells(row []string) []interface{} {
	out := make([]interface{}, len(row))
	for i, c := range row {
		out[i] = c
	}
	return out
}

// keyValues renders a single record as a two-column table.
func keyValues(value interface{}, pairs ...string) tabular {
	t := tabular{value: value, header: []string{"Field", "Value"}}
	for i := 0; i+1 < len(pairs); i += 2 {
		t.rows = append(t.rows, []string{pairs[i], pairs[i+1]})
	}
	return t
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func price(d decimal.Decimal) string {
	return d.StringFixed(4)
}

func optMoney(d *decimal.Decimal) string {
	if d == nil {
		return "-"
	}
	return money(*d)
}

func optPrice(d *decimal.Decimal) string {
	if d == nil {
		return "-"
	}
	return price(*d)
}

func optFloat(f *float64, precision int) string {
	if f == nil {
		return "-"
	}
	return strconv.FormatFloat(*f, 'f', precision, 64)
}

func float(f float64, precision int) string {
	return strconv.FormatFloat(f, 'f', precision, 64)
}

func integer[T int | int64](n T) string {
	return strconv.FormatInt(int64(n), 10)
}
