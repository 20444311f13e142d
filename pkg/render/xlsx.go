package render

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const (
	summarySheet  = "Summary"
	productsSheet = "Top Products"
	cashSheet     = "Cash Movements"
)

// XLSX exports the report as a workbook with summary, product and drawer sheets.
func XLSX(view ReportView) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	r := view.Report
	rows := [][]any{
		{"Report", r.ReportNumber},
		{"Tenant", view.TenantName},
		{"Date", view.ReportDate()},
		{"Currency", r.Currency},
		{},
		{"Orders", r.TotalOrders},
		{"Gross sales", r.GrossSales.InexactFloat64()},
		{"Discounts", r.TotalDiscount.InexactFloat64()},
		{"Net sales", r.NetSales.InexactFloat64()},
		{"Tax", r.TaxAmount.InexactFloat64()},
		{"Cancelled orders", r.CancelledOrders},
		{"Cancelled amount", r.CancelledAmount.InexactFloat64()},
		{},
		{"Method", "Count", "Amount"},
		{"Cash", r.PaymentMethods.Cash.Count, r.PaymentMethods.Cash.Amount.InexactFloat64()},
		{"Card", r.PaymentMethods.Card.Count, r.PaymentMethods.Card.Amount.InexactFloat64()},
		{"Digital", r.PaymentMethods.Digital.Count, r.PaymentMethods.Digital.Amount.InexactFloat64()},
		{},
		{"Order type", "Count", "Amount"},
		{"Dine-in", r.OrderTypes.DineIn.Count, r.OrderTypes.DineIn.Amount.InexactFloat64()},
		{"Takeaway", r.OrderTypes.Takeaway.Count, r.OrderTypes.Takeaway.Amount.InexactFloat64()},
		{"Delivery", r.OrderTypes.Delivery.Count, r.OrderTypes.Delivery.Amount.InexactFloat64()},
		{},
		{"Opening cash", r.OpeningCash.InexactFloat64()},
		{"Cash payments", r.CashPayments.InexactFloat64()},
		{"Expected cash", r.ExpectedCash.InexactFloat64()},
		{"Counted cash", r.CountedCash.InexactFloat64()},
		{"Difference", r.CashDifference.InexactFloat64(), view.DifferenceLabel()},
	}
	if err := writeRows(f, summarySheet, rows); err != nil {
		return nil, err
	}

	if _, err := f.NewSheet(productsSheet); err != nil {
		return nil, err
	}
	products := [][]any{{"Rank", "Product", "Quantity", "Revenue"}}
	for i, p := range r.TopProducts {
		products = append(products, []any{i + 1, p.Name, p.Quantity, p.Revenue.InexactFloat64()})
	}
	if err := writeRows(f, productsSheet, products); err != nil {
		return nil, err
	}

	if _, err := f.NewSheet(cashSheet); err != nil {
		return nil, err
	}
	movements := [][]any{{"Type", "Amount", "Reason", "Performed by", "Time"}}
	for _, m := range r.CashMovements {
		movements = append(movements, []any{string(m.Type), m.Amount.InexactFloat64(), m.Reason, m.PerformedBy, m.Timestamp.UTC().Format("2006-01-02 15:04")})
	}
	if err := writeRows(f, cashSheet, movements); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		values := row
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
	}
	return nil
}
