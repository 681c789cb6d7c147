package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"

	"github.com/dvloznov/txgroup/internal/domain"
	"github.com/dvloznov/txgroup/internal/grouping"
	"github.com/dvloznov/txgroup/internal/ledger"
	"github.com/dvloznov/txgroup/internal/summary"
)

var (
	errc = color.New(color.BgRed, color.FgWhite).PrintfFunc()
	okc  = color.New(color.FgGreen).PrintfFunc()
)

const descLength = 40

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func printBatch(b *domain.ImportBatch) {
	state := color.New(color.BgRed, color.FgWhite).Sprint(" UNMAPPED ")
	if b.IsMapped {
		state = color.New(color.BgGreen, color.FgBlack).Sprint("  MAPPED  ")
	}
	fmt.Printf("%s %s %-30s %s\n", state, b.ID, truncate(b.OriginalFilename, 30), b.CreatedAt.Format("2006-01-02 15:04"))
	fmt.Printf("           headers: %s\n", strings.Join(b.Headers, " | "))
	if b.IsMapped {
		fmt.Printf("           records: %d, skipped rows: %d\n", b.TotalEntries, b.SkippedRows)
	}
}

func printMapResult(r *ledger.MapResult) {
	okc("Mapped %d record(s)", r.Records)
	fmt.Printf(", skipped %d blank row(s)\n", r.Skipped)
	for _, f := range r.Failed {
		errc(" line %d ", f.Line)
		fmt.Printf(" %v\n", f.Err)
	}
	fmt.Printf("Categories restored: %d exact, %d by similar description, %d unmatched\n",
		r.Restore.Exact, r.Restore.Fallback, r.Restore.Unmatched)
}

func printRecord(prefix string, r domain.TransactionRecord) {
	fmt.Print(prefix)
	color.New(color.BgYellow, color.FgBlack).Printf(" %10s ", r.TransactionDate)
	color.New(color.BgWhite, color.FgBlack).Printf(" %-*s", descLength, truncate(r.Description, descLength))
	color.New(color.BgRed, color.FgWhite).Printf(" %10s %3s ", r.Amount.StringFixed(2), r.Currency)

	switch domain.StatusOf(r) {
	case domain.StatusExcluded:
		color.New(color.FgHiBlack).Printf(" excluded")
	case domain.StatusUncategorized:
		color.New(color.FgYellow).Printf(" uncategorized")
	default:
		names := make([]string, 0, len(r.Categories))
		for _, c := range r.Categories {
			names = append(names, c.Name)
		}
		color.New(color.FgGreen).Printf(" %s", strings.Join(names, ", "))
	}
	fmt.Printf("  %s\n", r.ID)
}

func printGroups(types []grouping.TypeGroup) {
	if len(types) == 0 {
		fmt.Println("No records.")
		return
	}
	for _, tg := range types {
		color.New(color.BgBlue, color.FgWhite).Printf(" %-20s ", tg.Type)
		fmt.Printf(" %d group(s), total %s, calculable %s\n", len(tg.Groups), tg.TotalAmount.StringFixed(2), tg.CalculableAmount.StringFixed(2))

		for _, g := range tg.Groups {
			printRecord("  ", g.Main)
			for _, r := range g.Similar {
				printRecord("    ~ ", r)
			}
			if len(g.Similar) > 0 {
				fmt.Printf("    = %d records, %s\n", g.Size(), g.CalculableAmount.StringFixed(2))
			}
		}
		fmt.Println()
	}
}

func printSummary(s summary.Summary) {
	for _, c := range s.Categories {
		color.New(color.BgGreen, color.FgBlack).Printf(" %-20s ", c.Name)
		fmt.Printf(" %12s  (%d)\n", c.Amount.StringFixed(2), c.Count)
	}
	fmt.Println(strings.Repeat("-", 40))
	fmt.Printf(" %-20s  %12s\n", "Total", s.Total.StringFixed(2))
	fmt.Printf(" %-20s  %12s\n", "Raw total", s.RawTotal.StringFixed(2))
}

func printCategories(cats []domain.Category) {
	for _, c := range cats {
		line := fmt.Sprintf(" %-20s %s %s", c.Name, c.Color, c.ID)
		if c.ExcludeFromCalculations {
			color.New(color.FgHiBlack).Println(line + " (excluded)")
			continue
		}
		fmt.Println(line)
	}
}

func printDashboard(d *ledger.Dashboard) {
	for _, o := range d.Batches {
		if o.Busy {
			color.New(color.BgMagenta, color.FgWhite).Printf(" BUSY ")
			fmt.Printf(" %s %s\n", o.Batch.ID, o.Batch.OriginalFilename)
			continue
		}
		color.New(color.BgBlue, color.FgWhite).Printf(" [%4d] ", o.Records)
		fmt.Printf(" %-30s total %12s  calculable %12s", truncate(o.Batch.OriginalFilename, 30), o.Total.StringFixed(2), o.Calculable.StringFixed(2))
		if o.Uncategorized > 0 {
			color.New(color.FgYellow).Printf("  %d uncategorized", o.Uncategorized)
		}
		fmt.Println()
	}
	fmt.Println(strings.Repeat("-", 60))
	fmt.Printf("%d record(s), %d uncategorized, total %s, calculable %s\n",
		d.Records, d.Uncategorized, d.Total.StringFixed(2), d.Calculable.StringFixed(2))
}
