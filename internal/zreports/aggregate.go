package zreports

import (
	"sort"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mtarikucar/kds-sub004/pkg/db/models"
	"github.com/mtarikucar/kds-sub004/pkg/enums"
)

const topProductLimit = 10

// DayActivity is everything a tenant-day contributes to a report.
type DayActivity struct {
	Paid      []models.Order
	Payments  []models.Payment
	Cancelled []models.Order
	Movements []models.CashDrawerMovement
}

// CashCount holds the drawer figures supplied by the operator. A nil field is
// derived from the day's drawer movements.
type CashCount struct {
	Opening *decimal.Decimal
	Counted *decimal.Decimal
}

// Aggregate computes the report figures for one day. Identity fields
// (tenant, number, date, actor) are left for the caller.
func Aggregate(day DayActivity, cash CashCount, taxRate decimal.Decimal) models.ZReport {
	var report models.ZReport

	report.TotalOrders = len(day.Paid)
	for _, order := range day.Paid {
		report.GrossSales = report.GrossSales.Add(order.TotalAmount)
		report.TotalDiscount = report.TotalDiscount.Add(order.Discount)
		report.NetSales = report.NetSales.Add(order.FinalAmount)
		report.OrderTypes.Record(order.Type, order.FinalAmount)
	}
	report.TaxAmount = report.NetSales.Mul(taxRate).Round(2)

	for _, payment := range day.Payments {
		if payment.Status != enums.PaymentStatusCompleted {
			continue
		}
		report.PaymentMethods.Record(payment.Method, payment.Amount)
	}

	report.CancelledOrders = len(day.Cancelled)
	for _, order := range day.Cancelled {
		report.CancelledAmount = report.CancelledAmount.Add(order.FinalAmount)
	}

	report.CashPayments = report.PaymentMethods.Cash.Amount
	report.OpeningCash = resolveOpening(cash.Opening, day.Movements)
	report.ExpectedCash = report.OpeningCash.Add(report.CashPayments)
	report.CountedCash = resolveCounted(cash.Counted, day.Movements, report.ExpectedCash)
	report.CashDifference = CashDifference(report.OpeningCash, report.CashPayments, report.CountedCash)

	report.TopProducts = TopProducts(day.Paid, topProductLimit)
	report.CashMovements = movementRecords(day.Movements)
	return report
}

// CashDifference is counted - (opening + cash payments). The sign is kept:
// negative means the drawer is short.
func CashDifference(opening, cashPayments, counted decimal.Decimal) decimal.Decimal {
	return counted.Sub(opening.Add(cashPayments))
}

// TopProducts ranks order lines by revenue. Products are first seen in order
// and line sequence, and equal revenues keep that sequence.
func TopProducts(orders []models.Order, limit int) models.TopProducts {
	index := make(map[uuid.UUID]int)
	ranked := make([]models.TopProduct, 0)
	for _, order := range orders {
		for _, item := range order.Items {
			pos, ok := index[item.ProductID]
			if !ok {
				pos = len(ranked)
				index[item.ProductID] = pos
				ranked = append(ranked, models.TopProduct{ProductID: item.ProductID, Name: item.Name})
			}
			ranked[pos].Quantity += item.Quantity
			ranked[pos].Revenue = ranked[pos].Revenue.Add(item.Subtotal)
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Revenue.GreaterThan(ranked[j].Revenue)
	})
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return models.TopProducts(ranked)
}

func resolveOpening(supplied *decimal.Decimal, movements []models.CashDrawerMovement) decimal.Decimal {
	if supplied != nil {
		return *supplied
	}
	total, _ := sumMovements(movements, enums.CashMovementTypeOpening)
	return total
}

func resolveCounted(supplied *decimal.Decimal, movements []models.CashDrawerMovement, expected decimal.Decimal) decimal.Decimal {
	if supplied != nil {
		return *supplied
	}
	if total, found := sumMovements(movements, enums.CashMovementTypeClosing); found {
		return total
	}
	return expected
}

func sumMovements(movements []models.CashDrawerMovement, kind enums.CashMovementType) (decimal.Decimal, bool) {
	total := decimal.Zero
	found := false
	for _, movement := range movements {
		if movement.Type != kind {
			continue
		}
		total = total.Add(movement.Amount)
		found = true
	}
	return total, found
}

func movementRecords(movements []models.CashDrawerMovement) models.CashMovementRecords {
	records := make(models.CashMovementRecords, 0, len(movements))
	for _, movement := range movements {
		record := models.CashMovementRecord{
			Type:        movement.Type,
			Amount:      movement.Amount,
			PerformedBy: movement.UserID.String(),
			Timestamp:   movement.CreatedAt.UTC(),
		}
		if movement.Reason != nil {
			record.Reason = *movement.Reason
		}
		if movement.User != nil && movement.User.Name != "" {
			record.PerformedBy = movement.User.Name
		}
		records = append(records, record)
	}
	return records
}

// ReportNumber formats the day as Z-YYYYMMDD.
func ReportNumber(date time.Time) string {
	return "Z-" + date.Format("20060102")
}

// DayWindow returns the [start, end) instants of date's calendar day in loc.
func DayWindow(date time.Time, loc *time.Location) (time.Time, time.Time) {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := date.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// Location resolves an IANA timezone, falling back to UTC.
func Location(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// CalendarDate truncates t to its date in loc and returns it as UTC midnight,
// the form report dates are stored in.
func CalendarDate(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
