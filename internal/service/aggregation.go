package service

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/managenergy/dashboard-bfa-go/internal/domain"
)

// ChartOptions are the user-selected view filters for chart building.
type ChartOptions struct {
	// CategoryFilter is "all" (or empty) for every category, or a category id.
	CategoryFilter string
	// GroupBy is "day" or "month".
	GroupBy string
	// Period scopes day-grouping to one YYYY-MM month. Empty or unknown
	// falls back to the most recent available period.
	Period string
	// Now anchors the current window (records on/after the first of Now's
	// month). Evaluated at build time, never cached.
	Now time.Time
}

// GroupBy values.
const (
	GroupByDay   = "day"
	GroupByMonth = "month"
)

// CategoryAll selects every category.
const CategoryAll = "all"

// BuildChartData turns a cache snapshot into chart-ready series. Pure:
// same snapshot and options always yield the same result. Records whose
// date failed normalization carry an empty date and are skipped.
func BuildChartData(snap Snapshot, opts ChartOptions) *domain.ChartData {
	groupBy := opts.GroupBy
	if groupBy != GroupByMonth {
		groupBy = GroupByDay
	}

	windowStart := fmt.Sprintf("%04d-%02d-01", opts.Now.Year(), int(opts.Now.Month()))

	// Current window: dated records on/after the first of the current month.
	// ISO date strings compare lexicographically in chronological order.
	window := make([]domain.ConsumptionRecord, 0, len(snap.Items))
	for _, r := range snap.Items {
		if r.Date != "" && r.Date >= windowStart {
			window = append(window, r)
		}
	}

	periods := distinctMonths(window)
	selected := opts.Period
	if !containsString(periods, selected) {
		selected = ""
		if len(periods) > 0 {
			selected = periods[len(periods)-1]
		}
	}

	scoped := window
	if groupBy == GroupByDay && selected != "" {
		scoped = make([]domain.ConsumptionRecord, 0, len(window))
		for _, r := range window {
			if domain.MonthKey(r.Date) == selected {
				scoped = append(scoped, r)
			}
		}
	}

	filtered := scoped
	categoryFilter := opts.CategoryFilter
	if categoryFilter == "" {
		categoryFilter = CategoryAll
	}
	if categoryFilter != CategoryAll {
		filtered = make([]domain.ConsumptionRecord, 0, len(scoped))
		for _, r := range scoped {
			if r.CategoryID == categoryFilter {
				filtered = append(filtered, r)
			}
		}
	}

	keyOf := dayKey
	labelOf := dayLabel
	if groupBy == GroupByMonth {
		keyOf = domain.MonthKey
		labelOf = monthLabel
	}

	data := &domain.ChartData{
		Periods:        periods,
		SelectedPeriod: selected,
		GroupBy:        groupBy,
		Quantity:       buildSeries(filtered, keyOf, labelOf, quantityOf),
		Cost:           buildSeries(filtered, keyOf, labelOf, costOf),
	}

	// Multi-series view: one quantity series per category that has data in
	// scope; the cost series stays a single aggregate.
	if categoryFilter == CategoryAll {
		for _, c := range snap.Categories {
			subset := make([]domain.ConsumptionRecord, 0)
			for _, r := range filtered {
				if r.CategoryID == c.ID {
					subset = append(subset, r)
				}
			}
			if len(subset) == 0 {
				continue
			}
			s := buildSeries(subset, keyOf, labelOf, quantityOf)
			s.CategoryID = c.ID
			s.CategoryName = c.Name
			s.Unit = c.Unit
			data.ByCategory = append(data.ByCategory, s)
		}
	}

	return data
}

// CurrentMonthTotals sums quantities per category for records dated in the
// month containing now. Used by the alert monitor.
func CurrentMonthTotals(items []domain.ConsumptionRecord, now time.Time) map[string]float64 {
	key := fmt.Sprintf("%04d-%02d", now.Year(), int(now.Month()))
	totals := make(map[string]float64)
	for _, r := range items {
		if domain.MonthKey(r.Date) == key {
			totals[r.CategoryID] += r.Quantity
		}
	}
	return totals
}

func quantityOf(r domain.ConsumptionRecord) float64 { return r.Quantity }
func costOf(r domain.ConsumptionRecord) float64     { return r.Quantity * r.UnitPrice }

func dayKey(date string) string { return date }

func buildSeries(records []domain.ConsumptionRecord, keyOf, labelOf func(string) string, valueOf func(domain.ConsumptionRecord) float64) domain.Series {
	sums := make(map[string]float64)
	for _, r := range records {
		k := keyOf(r.Date)
		if k == "" {
			continue
		}
		sums[k] += valueOf(r)
	}

	keys := make([]string, 0, len(sums))
	for k := range sums {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	points := make([]domain.SeriesPoint, 0, len(keys))
	for _, k := range keys {
		points = append(points, domain.SeriesPoint{Key: k, Label: labelOf(k), Value: sums[k]})
	}
	return domain.Series{Points: points}
}

func distinctMonths(records []domain.ConsumptionRecord) []string {
	seen := make(map[string]bool)
	for _, r := range records {
		if m := domain.MonthKey(r.Date); m != "" {
			seen[m] = true
		}
	}
	months := make([]string, 0, len(seen))
	for m := range seen {
		months = append(months, m)
	}
	sort.Strings(months)
	return months
}

func containsString(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}

// Display labels follow the dashboard's French locale.
var frenchMonths = [13]string{
	"",
	"Janvier", "Février", "Mars", "Avril", "Mai", "Juin",
	"Juillet", "Août", "Septembre", "Octobre", "Novembre", "Décembre",
}

// dayLabel renders a YYYY-MM-DD key as dd/mm/yyyy.
func dayLabel(key string) string {
	if len(key) != 10 {
		return key
	}
	return key[8:10] + "/" + key[5:7] + "/" + key[0:4]
}

// monthLabel renders a YYYY-MM key as a capitalized month-year, e.g.
// "Mars 2024".
func monthLabel(key string) string {
	if len(key) != 7 {
		return key
	}
	m, err := strconv.Atoi(key[5:7])
	if err != nil || m < 1 || m > 12 {
		return key
	}
	return frenchMonths[m] + " " + key[0:4]
}
