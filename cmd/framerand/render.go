package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

// lineState pairs the bracketed tag of a status line with the color it
// renders in on a terminal.
type lineState struct {
	tag   string
	color string
}

var (
	stateInfo = lineState{"INFO", ansiBlue}
	stateOK   = lineState{"OK", ansiGreen}
	stateWarn = lineState{"WARN", ansiYellow}
	stateFail = lineState{"ERROR", ansiRed}
)

// statusLine renders one "  Label:  [TAG] detail" line. The label column is
// padded so the tags align down the page.
func statusLine(label string, state lineState, detail string, colorize bool) string {
	tag := "[" + state.tag + "]"
	if detail != "" {
		tag += " " + detail
	}
	line := fmt.Sprintf("  %-20s %s", label+":", tag)
	if colorize {
		return state.color + line + ansiReset
	}
	return line
}

func sectionHeader(out io.Writer, title string, colorize bool) {
	line := fmt.Sprintf("== %s ==", title)
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	fmt.Fprintln(out, line)
	fmt.Fprintln(out, rule)
}

func shouldColorize(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(file.Fd()) || isatty.IsCygwinTerminal(file.Fd())
}

// renderTable draws a rounded table. Columns listed in rightAligned hold
// numbers and render flush right; everything else is left-aligned.
func renderTable(headers []string, rows [][]string, rightAligned ...int) string {
	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(header)
	for _, row := range rows {
		r := make(table.Row, len(headers))
		for i := range r {
			r[i] = ""
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, len(rightAligned))
	for _, col := range rightAligned {
		configs = append(configs, table.ColumnConfig{
			Number:      col + 1,
			Align:       text.AlignRight,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}
