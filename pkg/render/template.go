package render

import (
	"bytes"
	"html/template"
)

var reportFuncs = template.FuncMap{
	"inc": func(i int) int { return i + 1 },
}

var reportTemplate = template.Must(template.New("z-report").Funcs(reportFuncs).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Report.ReportNumber}}</title>
<style>
body { font-family: Helvetica, Arial, sans-serif; font-size: 12px; margin: 32px; }
h1 { font-size: 20px; margin-bottom: 0; }
table { width: 100%; border-collapse: collapse; margin-top: 12px; }
th, td { border-bottom: 1px solid #ddd; padding: 4px; text-align: left; }
td.num { text-align: right; }
.over { color: #1b7f3b; }
.short { color: #b3261e; }
</style>
</head>
<body>
<h1>Z Report {{.Report.ReportNumber}}</h1>
<p>{{.TenantName}} &middot; {{.ReportDate}}{{if .ClosedBy}} &middot; closed by {{.ClosedBy}}{{end}}</p>

<h2>Sales</h2>
<table>
<tr><td>Orders</td><td class="num">{{.Report.TotalOrders}}</td></tr>
<tr><td>Gross sales</td><td class="num">{{.Money .Report.GrossSales}}</td></tr>
<tr><td>Discounts</td><td class="num">{{.Money .Report.TotalDiscount}}</td></tr>
<tr><td>Net sales</td><td class="num">{{.Money .Report.NetSales}}</td></tr>
<tr><td>Tax</td><td class="num">{{.Money .Report.TaxAmount}}</td></tr>
<tr><td>Cancelled ({{.Report.CancelledOrders}})</td><td class="num">{{.Money .Report.CancelledAmount}}</td></tr>
</table>

<h2>Payments</h2>
<table>
<tr><th>Method</th><th>Count</th><th>Amount</th></tr>
<tr><td>Cash</td><td>{{.Report.PaymentMethods.Cash.Count}}</td><td class="num">{{.Money .Report.PaymentMethods.Cash.Amount}}</td></tr>
<tr><td>Card</td><td>{{.Report.PaymentMethods.Card.Count}}</td><td class="num">{{.Money .Report.PaymentMethods.Card.Amount}}</td></tr>
<tr><td>Digital</td><td>{{.Report.PaymentMethods.Digital.Count}}</td><td class="num">{{.Money .Report.PaymentMethods.Digital.Amount}}</td></tr>
</table>

<h2>Order types</h2>
<table>
<tr><th>Type</th><th>Count</th><th>Amount</th></tr>
<tr><td>Dine-in</td><td>{{.Report.OrderTypes.DineIn.Count}}</td><td class="num">{{.Money .Report.OrderTypes.DineIn.Amount}}</td></tr>
<tr><td>Takeaway</td><td>{{.Report.OrderTypes.Takeaway.Count}}</td><td class="num">{{.Money .Report.OrderTypes.Takeaway.Amount}}</td></tr>
<tr><td>Delivery</td><td>{{.Report.OrderTypes.Delivery.Count}}</td><td class="num">{{.Money .Report.OrderTypes.Delivery.Amount}}</td></tr>
</table>

<h2>Cash drawer</h2>
<table>
<tr><td>Opening</td><td class="num">{{.Money .Report.OpeningCash}}</td></tr>
<tr><td>Cash payments</td><td class="num">{{.Money .Report.CashPayments}}</td></tr>
<tr><td>Expected</td><td class="num">{{.Money .Report.ExpectedCash}}</td></tr>
<tr><td>Counted</td><td class="num">{{.Money .Report.CountedCash}}</td></tr>
<tr><td>Difference</td><td class="num {{if eq .DifferenceLabel "Over"}}over{{else if eq .DifferenceLabel "Short"}}short{{end}}">{{.Money .Report.CashDifference}} ({{.DifferenceLabel}})</td></tr>
</table>
{{if .Report.CashMovements}}
<table>
<tr><th>Movement</th><th>By</th><th>Reason</th><th>Amount</th></tr>
{{range .Report.CashMovements}}<tr><td>{{.Type}}</td><td>{{.PerformedBy}}</td><td>{{.Reason}}</td><td class="num">{{$.Money .Amount}}</td></tr>
{{end}}</table>
{{end}}
{{if .Report.TopProducts}}
<h2>Top products</h2>
<table>
<tr><th>#</th><th>Product</th><th>Qty</th><th>Revenue</th></tr>
{{range $i, $p := .Report.TopProducts}}<tr><td>{{inc $i}}</td><td>{{$p.Name}}</td><td>{{$p.Quantity}}</td><td class="num">{{$.Money $p.Revenue}}</td></tr>
{{end}}</table>
{{end}}
{{with .Report.Notes}}<h2>Notes</h2><p>{{.}}</p>{{end}}
<p>Generated {{.GeneratedAt}}</p>
</body>
</html>
`))

// HTML renders the report document markup.
func HTML(view ReportView) ([]byte, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, view); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
