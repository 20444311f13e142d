package mailer

import (
	"bytes"
	"fmt"
	"html/template"
)

// Template names accepted by Message.Template.
const (
	TemplateZReport          = "z-report"
	TemplatePaymentSucceeded = "payment-succeeded"
	TemplatePaymentFailed    = "payment-failed"
)

var templates = map[string]*template.Template{
	TemplateZReport: template.Must(template.New(TemplateZReport).Parse(`<!DOCTYPE html>
<html><body style="font-family: Helvetica, Arial, sans-serif">
<h2>{{.tenantName}} end of day report</h2>
<p>Report <strong>{{.reportNumber}}</strong> for {{.reportDate}} is attached.</p>
<table>
<tr><td>Orders</td><td>{{.totalOrders}}</td></tr>
<tr><td>Net sales</td><td>{{.netSales}}</td></tr>
<tr><td>Cash difference</td><td>{{.cashDifference}} ({{.differenceLabel}})</td></tr>
</table>
</body></html>
`)),
	TemplatePaymentSucceeded: template.Must(template.New(TemplatePaymentSucceeded).Parse(`<!DOCTYPE html>
<html><body style="font-family: Helvetica, Arial, sans-serif">
<h2>Payment received</h2>
<p>Hello {{.tenantName}}, we received your payment of <strong>{{.amount}}</strong>.</p>
<table>
<tr><td>Plan</td><td>{{.planName}}</td></tr>
<tr><td>Invoice</td><td>{{.invoiceNumber}}</td></tr>
<tr><td>Valid until</td><td>{{.periodEnd}}</td></tr>
</table>
</body></html>
`)),
	TemplatePaymentFailed: template.Must(template.New(TemplatePaymentFailed).Parse(`<!DOCTYPE html>
<html><body style="font-family: Helvetica, Arial, sans-serif">
<h2>Payment failed</h2>
<p>Hello {{.tenantName}}, your payment of <strong>{{.amount}}</strong> could not be completed.</p>
<p>Reason: {{.reason}}</p>
<p>You can request a new payment link from the billing page.</p>
</body></html>
`)),
}

func renderTemplate(name string, data map[string]any) (string, error) {
	tpl, ok := templates[name]
	if !ok {
		return "", fmt.Errorf("unknown email template %q", name)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render email template %q: %w", name, err)
	}
	return buf.String(), nil
}
