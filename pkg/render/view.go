package render

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mtarikucar/kds-sub004/pkg/currency"
	"github.com/mtarikucar/kds-sub004/pkg/db/models"
)

// ReportView is the presentation model shared by the PDF and XLSX outputs.
type ReportView struct {
	Report     *models.ZReport
	TenantName string
	Symbol     string
	ClosedBy   string
}

// NewReportView prepares a report for rendering.
func NewReportView(report *models.ZReport, tenantName, closedBy string) ReportView {
	return ReportView{
		Report:     report,
		TenantName: tenantName,
		Symbol:     currency.Symbol(report.Currency),
		ClosedBy:   closedBy,
	}
}

// Money formats an amount with the report's currency symbol.
func (v ReportView) Money(amount decimal.Decimal) string {
	return v.Symbol + amount.StringFixed(2)
}

// DifferenceLabel is "Over" for a surplus, "Short" for a shortfall and
// "Balanced" when the drawer matches.
func (v ReportView) DifferenceLabel() string {
	switch v.Report.CashDifference.Sign() {
	case 1:
		return "Over"
	case -1:
		return "Short"
	default:
		return "Balanced"
	}
}

func (v ReportView) ReportDate() string {
	return v.Report.ReportDate.Format("2006-01-02")
}

func (v ReportView) GeneratedAt() string {
	return v.Report.CreatedAt.UTC().Format(time.RFC3339)
}
