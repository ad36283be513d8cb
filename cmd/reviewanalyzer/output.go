package main

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"ReviewAnalyzer/internal/domain"
	"ReviewAnalyzer/internal/usecase"
)

func renderResult(w io.Writer, result usecase.Result) {
	d := result.Aggregate.Display()

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(d.ProductName)
	t.AppendHeader(table.Row{"Sentiment", "Share"})
	t.AppendRows([]table.Row{
		{"Positive", fmt.Sprintf("%.1f%%", d.PositivePercent)},
		{"Neutral", fmt.Sprintf("%.1f%%", d.NeutralPercent)},
		{"Negative", fmt.Sprintf("%.1f%%", d.NegativePercent)},
	})
	t.AppendFooter(table.Row{"Rating", fmt.Sprintf("%.2f / 5", d.OverallRating)})
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 2, Align: text.AlignRight, AlignFooter: text.AlignRight}})
	t.Render()

	fmt.Fprintf(w, "Reviews considered: %d\n", d.ReviewsConsidered)
	if result.Degraded > 0 {
		fmt.Fprintf(w, "Reviews labeled neutral after classifier errors: %d\n", result.Degraded)
	}
	fmt.Fprintf(w, "Source: %s\n", result.SourceURL)
}

func renderHistory(w io.Writer, items []domain.Analysis) {
	if len(items) == 0 {
		fmt.Fprintln(w, "No analyses yet.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"#", "Date", "Product", "Positive", "Neutral", "Negative", "Rating", "Reviews"})
	for _, a := range items {
		d := domain.AggregateResult{
			ProductName:       a.ProductName,
			PositivePercent:   a.PositivePercent,
			NeutralPercent:    a.NeutralPercent,
			NegativePercent:   a.NegativePercent,
			OverallRating:     a.OverallRating,
			ReviewsConsidered: a.ReviewsConsidered,
		}.Display()
		t.AppendRow(table.Row{
			a.ID,
			a.CreatedAt.Local().Format("2006-01-02 15:04"),
			d.ProductName,
			fmt.Sprintf("%.1f%%", d.PositivePercent),
			fmt.Sprintf("%.1f%%", d.NeutralPercent),
			fmt.Sprintf("%.1f%%", d.NegativePercent),
			fmt.Sprintf("%.2f", d.OverallRating),
			d.ReviewsConsidered,
		})
	}
	t.SetStyle(table.StyleLight)
	t.Render()
}
