package settle

import "time"

// Record is one settlement row: revenue and cost for a partner deal plus the
// derived split and evidence flags. Records are independent of each other.
type Record struct {
	ID              string
	Partner         string
	Date            time.Time
	Memo            string
	Revenue         float64
	Cost            float64
	DeductionRate   float64
	Profit          float64
	DeductionAmount float64
	FriendShare     float64
	MyProfit        float64
	PaymentReceived bool
	InvoiceIssued   bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Summary aggregates the KPI cards of the settlements screen.
type Summary struct {
	TotalRevenue   float64
	TotalMyProfit  float64
	TotalDeduction float64
	UnpaidCount    int
}

// Summarize folds records into the screen KPIs.
func Summarize(records []Record) Summary {
	var s Summary
	for _, r := range records {
		s.TotalRevenue += r.Revenue
		s.TotalMyProfit += r.MyProfit
		s.TotalDeduction += r.DeductionAmount
		if !r.PaymentReceived {
			s.UnpaidCount++
		}
	}
	return s
}
