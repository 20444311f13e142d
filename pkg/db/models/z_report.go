package models

import (
	"database/sql/driver"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dbtypes "github.com/mtarikucar/kds-sub004/pkg/db/types"
	"github.com/mtarikucar/kds-sub004/pkg/enums"
)

// ZReport is the end-of-day reconciliation record. One row per tenant and
// calendar date; figures never change after creation.
type ZReport struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	TenantID     uuid.UUID `gorm:"column:tenant_id;type:uuid;not null;uniqueIndex:uq_z_reports_tenant_date"`
	ReportNumber string    `gorm:"column:report_number;not null"`
	ReportDate   time.Time `gorm:"column:report_date;type:date;not null;uniqueIndex:uq_z_reports_tenant_date"`
	Currency     string    `gorm:"column:currency;not null"`

	TotalOrders     int                `gorm:"column:total_orders;not null"`
	GrossSales      decimal.Decimal    `gorm:"column:gross_sales;type:numeric(12,2);not null"`
	TotalDiscount   decimal.Decimal    `gorm:"column:total_discount;type:numeric(12,2);not null"`
	NetSales        decimal.Decimal    `gorm:"column:net_sales;type:numeric(12,2);not null"`
	TaxAmount       decimal.Decimal    `gorm:"column:tax_amount;type:numeric(12,2);not null"`
	PaymentMethods  PaymentBreakdown   `gorm:"column:payment_methods;type:jsonb;not null"`
	OrderTypes      OrderTypeBreakdown `gorm:"column:order_types;type:jsonb;not null"`
	CancelledOrders int                `gorm:"column:cancelled_orders;not null"`
	CancelledAmount decimal.Decimal    `gorm:"column:cancelled_amount;type:numeric(12,2);not null"`

	OpeningCash    decimal.Decimal `gorm:"column:opening_cash;type:numeric(12,2);not null"`
	CashPayments   decimal.Decimal `gorm:"column:cash_payments;type:numeric(12,2);not null"`
	ExpectedCash   decimal.Decimal `gorm:"column:expected_cash;type:numeric(12,2);not null"`
	CountedCash    decimal.Decimal `gorm:"column:counted_cash;type:numeric(12,2);not null"`
	CashDifference decimal.Decimal `gorm:"column:cash_difference;type:numeric(12,2);not null"`

	TopProducts   TopProducts         `gorm:"column:top_products;type:jsonb;not null"`
	CashMovements CashMovementRecords `gorm:"column:cash_movements;type:jsonb;not null"`
	Notes         *string             `gorm:"column:notes"`

	ClosedByID  uuid.UUID  `gorm:"column:closed_by_id;type:uuid;not null"`
	IsFinalized bool       `gorm:"column:is_finalized;not null;default:false"`
	FinalizedAt *time.Time `gorm:"column:finalized_at"`
	EmailSent   bool       `gorm:"column:email_sent;not null;default:false"`
	EmailSentAt *time.Time `gorm:"column:email_sent_at"`
	EmailError  *string    `gorm:"column:email_error"`
	CreatedAt   time.Time  `gorm:"column:created_at"`
	UpdatedAt   time.Time  `gorm:"column:updated_at"`
}

// DeliveryAttempted reports whether a send was tried, successful or not.
func (r *ZReport) DeliveryAttempted() bool {
	return r.EmailSent || r.EmailError != nil
}

// MethodTotals is a count and sum pair.
type MethodTotals struct {
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

// Add folds one more amount into the totals.
func (m MethodTotals) Add(amount decimal.Decimal) MethodTotals {
	return MethodTotals{Count: m.Count + 1, Amount: m.Amount.Add(amount)}
}

type PaymentBreakdown struct {
	Cash    MethodTotals `json:"cash"`
	Card    MethodTotals `json:"card"`
	Digital MethodTotals `json:"digital"`
}

// Record adds a payment to the bucket for its method. Unknown methods are ignored.
func (b *PaymentBreakdown) Record(method enums.PaymentMethod, amount decimal.Decimal) {
	switch method {
	case enums.PaymentMethodCash:
		b.Cash = b.Cash.Add(amount)
	case enums.PaymentMethodCard:
		b.Card = b.Card.Add(amount)
	case enums.PaymentMethodDigital:
		b.Digital = b.Digital.Add(amount)
	}
}

func (b PaymentBreakdown) Value() (driver.Value, error) { return dbtypes.JSONValue(b) }
func (b *PaymentBreakdown) Scan(src any) error { return dbtypes.ScanJSON(src, b) }

type OrderTypeBreakdown struct {
	DineIn   MethodTotals `json:"dineIn"`
	Takeaway MethodTotals `json:"takeaway"`
	Delivery MethodTotals `json:"delivery"`
}

func (b *OrderTypeBreakdown) Record(orderType enums.OrderType, amount decimal.Decimal) {
	switch orderType {
	case enums.OrderTypeDineIn:
		b.DineIn = b.DineIn.Add(amount)
	case enums.OrderTypeTakeaway:
		b.Takeaway = b.Takeaway.Add(amount)
	case enums.OrderTypeDelivery:
		b.Delivery = b.Delivery.Add(amount)
	}
}

func (b OrderTypeBreakdown) Value() (driver.Value, error) { return dbtypes.JSONValue(b) }
func (b *OrderTypeBreakdown) Scan(src any) error { return dbtypes.ScanJSON(src, b) }

type TopProduct struct {
	ProductID uuid.UUID       `json:"productId"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Revenue   decimal.Decimal `json:"revenue"`
}

type TopProducts []TopProduct

func (p TopProducts) Value() (driver.Value, error) {
	if p == nil {
		p = TopProducts{}
	}
	return dbtypes.JSONValue([]TopProduct(p))
}

func (p *TopProducts) Scan(src any) error { return dbtypes.ScanJSON(src, (*[]TopProduct)(p)) }

// CashMovementRecord is a snapshot of a drawer movement taken at report time.
type CashMovementRecord struct {
	Type        enums.CashMovementType `json:"type"`
	Amount      decimal.Decimal        `json:"amount"`
	Reason      string                 `json:"reason,omitempty"`
	PerformedBy string                 `json:"performedBy"`
	Timestamp   time.Time              `json:"timestamp"`
}

type CashMovementRecords []CashMovementRecord

func (c CashMovementRecords) Value() (driver.Value, error) {
	if c == nil {
		c = CashMovementRecords{}
	}
	return dbtypes.JSONValue([]CashMovementRecord(c))
}

func (c *CashMovementRecords) Scan(src any) error {
	return dbtypes.ScanJSON(src, (*[]CashMovementRecord)(c))
}
