package main

import (
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
)

const timeLayout = "2006-01-02 15:04:05"

func newTable(out io.Writer, header table.Row) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(header)
	return t
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(timeLayout)
}

func yes(b bool) string {
	if b {
		return color.GreenString("yes")
	}
	return ""
}

func warnf(out io.Writer, format string, args ...any) {
	color.New(color.FgYellow).Fprintf(out, format+"\n", args...)
}

func okf(out io.Writer, format string, args ...any) {
	color.New(color.FgGreen).Fprintf(out, format+"\n", args...)
}

func warnString(s string) string {
	return color.New(color.FgYellow).Sprint(s)
}
