// Package report computes sales and inventory aggregates over a snapshot of
// the drug and sale collections. Everything here is a pure function of its
// inputs plus a reference date, so reports are trivially testable.
package report

import (
	"sort"
	"time"

	"pharmastore/backend/internal/domain"
)

const (
	lowStockThreshold  = 10
	expiringSoonDays   = 30
	monthlyTotalsLimit = 6
)

type SalesReport struct {
	Sales        []domain.Sale `json:"sales"`
	TotalAmount  float64       `json:"total_sales_amount"`
	TotalItems   int           `json:"total_items_sold"`
	Transactions int           `json:"total_transactions"`
}

func summarize(sales []domain.Sale) SalesReport {
	r := SalesReport{Sales: sales}
	for _, s := range sales {
		r.TotalAmount += s.Total
		r.TotalItems += s.Quantity
	}
	r.Transactions = len(sales)
	if r.Sales == nil {
		r.Sales = []domain.Sale{}
	}
	return r
}

func filterSales(sales []domain.Sale, keep func(time.Time) bool) []domain.Sale {
	out := make([]domain.Sale, 0)
	for _, s := range sales {
		d, err := time.Parse(domain.DateLayout, s.Date)
		if err != nil {
			continue
		}
		if keep(d) {
			out = append(out, s)
		}
	}
	return out
}

// Daily reports sales whose date matches the reference date exactly.
func Daily(sales []domain.Sale, ref time.Time) SalesReport {
	day := ref.Format(domain.DateLayout)
	out := make([]domain.Sale, 0)
	for _, s := range sales {
		if s.Date == day {
			out = append(out, s)
		}
	}
	return summarize(out)
}

// Weekly reports the calendar week containing the reference date, with the
// week starting on Sunday.
func Weekly(sales []domain.Sale, ref time.Time) SalesReport {
	refDay := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, time.UTC)
	weekStart := refDay.AddDate(0, 0, -int(refDay.Weekday()))
	weekEnd := weekStart.AddDate(0, 0, 6)

	return summarize(filterSales(sales, func(d time.Time) bool {
		return !d.Before(weekStart) && !d.After(weekEnd)
	}))
}

// Monthly reports sales within the reference date's calendar year and month.
func Monthly(sales []domain.Sale, ref time.Time) SalesReport {
	return summarize(filterSales(sales, func(d time.Time) bool {
		return d.Year() == ref.Year() && d.Month() == ref.Month()
	}))
}

// Yearly reports sales within the reference date's calendar year.
func Yearly(sales []domain.Sale, ref time.Time) SalesReport {
	return summarize(filterSales(sales, func(d time.Time) bool {
		return d.Year() == ref.Year()
	}))
}

const (
	StatusOK                  = "OK"
	StatusLowStock            = "Low Stock"
	StatusExpiringSoon        = "Expiring Soon"
	StatusLowStockAndExpiring = "Low Stock & Expiring Soon"
)

type InventoryLine struct {
	Drug         domain.Drug `json:"drug"`
	Value        float64     `json:"value"`
	LowStock     bool        `json:"low_stock"`
	ExpiringSoon bool        `json:"expiring_soon"`
	Status       string      `json:"status"`
}

type InventoryReport struct {
	TotalItems        int             `json:"total_items"`
	TotalValue        float64         `json:"total_value"`
	LowStockCount     int             `json:"low_stock_count"`
	ExpiringSoonCount int             `json:"expiring_soon_count"`
	Lines             []InventoryLine `json:"lines"`
}

// Inventory reports stock value and flags each drug as low-stock
// (quantity <= 10) and/or expiring soon (expiry within 30 days of now). Both
// predicates are evaluated independently; the combined status tag names
// low-stock first.
func Inventory(drugs []domain.Drug, now time.Time) InventoryReport {
	cutoff := now.AddDate(0, 0, expiringSoonDays)
	rep := InventoryReport{TotalItems: len(drugs), Lines: make([]InventoryLine, 0, len(drugs))}

	for _, d := range drugs {
		line := InventoryLine{
			Drug:     d,
			Value:    float64(d.Quantity) * d.Price,
			LowStock: d.Quantity <= lowStockThreshold,
		}
		if expiry, err := time.Parse(domain.DateLayout, d.Expiry); err == nil {
			line.ExpiringSoon = !expiry.After(cutoff)
		}

		switch {
		case line.LowStock && line.ExpiringSoon:
			line.Status = StatusLowStockAndExpiring
		case line.LowStock:
			line.Status = StatusLowStock
		case line.ExpiringSoon:
			line.Status = StatusExpiringSoon
		default:
			line.Status = StatusOK
		}

		rep.TotalValue += line.Value
		if line.LowStock {
			rep.LowStockCount++
		}
		if line.ExpiringSoon {
			rep.ExpiringSoonCount++
		}
		rep.Lines = append(rep.Lines, line)
	}
	return rep
}

type DrugSales struct {
	Name      string  `json:"name"`
	TotalSold int     `json:"total_sold"`
	Revenue   float64 `json:"revenue"`
}

// TopSelling ranks drugs by cumulative quantity sold. Ties keep the order of
// first appearance in the ledger, which makes the ranking stable across runs.
func TopSelling(sales []domain.Sale, limit int) []DrugSales {
	totals := make(map[string]*DrugSales)
	order := make([]string, 0)
	for _, s := range sales {
		agg, ok := totals[s.DrugName]
		if !ok {
			agg = &DrugSales{Name: s.DrugName}
			totals[s.DrugName] = agg
			order = append(order, s.DrugName)
		}
		agg.TotalSold += s.Quantity
		agg.Revenue += s.Total
	}

	out := make([]DrugSales, 0, len(order))
	for _, name := range order {
		out = append(out, *totals[name])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TotalSold > out[j].TotalSold })

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

type CategoryTotal struct {
	Category string  `json:"category"`
	Total    float64 `json:"total"`
}

// CategoryRevenue sums sale totals per drug category, descending. Sales whose
// drug no longer exists carry no category and are skipped.
func CategoryRevenue(drugs []domain.Drug, sales []domain.Sale) []CategoryTotal {
	byID := make(map[string]domain.Drug, len(drugs))
	for _, d := range drugs {
		byID[d.ID] = d
	}

	totals := make(map[string]float64)
	order := make([]string, 0)
	for _, s := range sales {
		drug, ok := byID[s.DrugID]
		if !ok {
			continue
		}
		if _, seen := totals[drug.Category]; !seen {
			order = append(order, drug.Category)
		}
		totals[drug.Category] += s.Total
	}

	out := make([]CategoryTotal, 0, len(order))
	for _, cat := range order {
		out = append(out, CategoryTotal{Category: cat, Total: totals[cat]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Total > out[j].Total })
	return out
}

type DailyTotal struct {
	Date    string  `json:"date"`
	Weekday string  `json:"weekday"`
	Total   float64 `json:"total"`
}

// LastSevenDays returns exactly seven daily buckets ending on the reference
// date, oldest first, zero-filled for days without sales.
func LastSevenDays(sales []domain.Sale, ref time.Time) []DailyTotal {
	byDate := make(map[string]float64)
	for _, s := range sales {
		byDate[s.Date] += s.Total
	}

	out := make([]DailyTotal, 0, 7)
	for i := 6; i >= 0; i-- {
		day := ref.AddDate(0, 0, -i)
		key := day.Format(domain.DateLayout)
		out = append(out, DailyTotal{
			Date:    key,
			Weekday: day.Weekday().String()[:3],
			Total:   byDate[key],
		})
	}
	return out
}

type MonthTotal struct {
	Month string  `json:"month"`
	Label string  `json:"label"`
	Total float64 `json:"total"`
}

// MonthlyTotals aggregates per calendar month and keeps the most recent six
// months that appear in the ledger.
func MonthlyTotals(sales []domain.Sale) []MonthTotal {
	totals := make(map[string]*MonthTotal)
	for _, s := range sales {
		d, err := time.Parse(domain.DateLayout, s.Date)
		if err != nil {
			continue
		}
		key := d.Format("2006-01")
		agg, ok := totals[key]
		if !ok {
			agg = &MonthTotal{Month: key, Label: d.Format("Jan 2006")}
			totals[key] = agg
		}
		agg.Total += s.Total
	}

	out := make([]MonthTotal, 0, len(totals))
	for _, agg := range totals {
		out = append(out, *agg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	if len(out) > monthlyTotalsLimit {
		out = out[len(out)-monthlyTotalsLimit:]
	}
	return out
}

type Insights struct {
	BestSeller        string  `json:"best_seller"`
	TotalRevenue      float64 `json:"total_revenue"`
	Transactions      int     `json:"transactions"`
	AverageSaleValue  float64 `json:"average_sale_value"`
	TodaySalesTotal   float64 `json:"today_sales_total"`
	LowStockCount     int     `json:"low_stock_count"`
	ExpiringSoonCount int     `json:"expiring_soon_count"`
}

// Summary computes the dashboard numbers in one pass over the snapshot.
func Summary(drugs []domain.Drug, sales []domain.Sale, now time.Time) Insights {
	ins := Insights{Transactions: len(sales)}

	today := now.Format(domain.DateLayout)
	for _, s := range sales {
		ins.TotalRevenue += s.Total
		if s.Date == today {
			ins.TodaySalesTotal += s.Total
		}
	}
	if len(sales) > 0 {
		ins.AverageSaleValue = ins.TotalRevenue / float64(len(sales))
	}

	if top := TopSelling(sales, 1); len(top) > 0 {
		ins.BestSeller = top[0].Name
	}

	inv := Inventory(drugs, now)
	ins.LowStockCount = inv.LowStockCount
	ins.ExpiringSoonCount = inv.ExpiringSoonCount
	return ins
}
