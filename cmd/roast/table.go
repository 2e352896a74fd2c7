package main

import (
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

// wideColumnMax caps free-text columns such as roasts and transcriptions.
const wideColumnMax = 60

type tableSpec struct {
	headers []string
	aligns  []columnAlignment
	// wide lists zero-based columns that wrap at wideColumnMax.
	wide []int
}

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	return renderTableSpec(tableSpec{headers: headers, aligns: aligns}, rows)
}

func renderTableSpec(spec tableSpec, rows [][]string) string {
	columns := len(spec.headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i, h := range spec.headers {
		header[i] = h
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := range columns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	wide := make(map[int]bool, len(spec.wide))
	for _, idx := range spec.wide {
		wide[idx] = true
	}
	configs := make([]table.ColumnConfig, 0, columns)
	for i := range columns {
		align := text.AlignLeft
		if i < len(spec.aligns) && spec.aligns[i] == alignRight {
			align = text.AlignRight
		}
		cc := table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		}
		if wide[i] {
			cc.WidthMax = wideColumnMax
			cc.WidthMaxEnforcer = text.WrapSoft
		}
		configs = append(configs, cc)
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

// renderKeyValues renders label/value pairs as a two column table.
func renderKeyValues(pairs [][2]string) string {
	rows := make([][]string, 0, len(pairs))
	for _, p := range pairs {
		rows = append(rows, []string{p[0], p[1]})
	}
	return renderTableSpec(tableSpec{headers: []string{"Field", "Value"}, wide: []int{1}}, rows)
}

func truncate(value string, limit int) string {
	value = strings.Join(strings.Fields(value), " ")
	if limit <= 0 || len([]rune(value)) <= limit {
		return value
	}
	runes := []rune(value)
	return string(runes[:limit-1]) + "…"
}

func dash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}
