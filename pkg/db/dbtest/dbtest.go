// Package dbtest opens isolated in-memory sqlite databases carrying the
// billing and reporting schema for repository and service tests.
package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mtarikucar/kds-sub004/pkg/db"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS tenants (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'ACTIVE',
  current_plan_id TEXT,
  currency TEXT NOT NULL DEFAULT 'TRY',
  timezone TEXT NOT NULL DEFAULT 'UTC',
  closing_time TEXT,
  report_email_enabled INTEGER NOT NULL DEFAULT 0,
  report_email_recipients TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  tenant_id TEXT NOT NULL,
  email TEXT NOT NULL,
  name TEXT NOT NULL,
  role TEXT NOT NULL,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  tenant_id TEXT NOT NULL,
  order_number TEXT NOT NULL,
  table_id TEXT,
  type TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'PENDING',
  total_amount TEXT NOT NULL,
  discount TEXT NOT NULL DEFAULT '0',
  final_amount TEXT NOT NULL,
  customer_name TEXT,
  notes TEXT,
  created_by_id TEXT,
  paid_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  name TEXT NOT NULL,
  quantity INTEGER NOT NULL,
  unit_price TEXT NOT NULL,
  subtotal TEXT NOT NULL,
  position INTEGER NOT NULL DEFAULT 0
);`,
	`CREATE TABLE IF NOT EXISTS payments (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  tenant_id TEXT NOT NULL,
  method TEXT NOT NULL,
  amount TEXT NOT NULL,
  status TEXT NOT NULL,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS subscription_plans (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL UNIQUE,
  display_name TEXT NOT NULL,
  monthly_price TEXT NOT NULL,
  yearly_price TEXT NOT NULL,
  currency TEXT NOT NULL DEFAULT 'TRY',
  is_active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS subscriptions (
  id TEXT PRIMARY KEY,
  tenant_id TEXT NOT NULL,
  plan_id TEXT NOT NULL,
  status TEXT NOT NULL,
  billing_cycle TEXT NOT NULL,
  payment_provider TEXT NOT NULL,
  amount TEXT NOT NULL,
  currency TEXT NOT NULL,
  current_period_start DATETIME NOT NULL,
  current_period_end DATETIME NOT NULL,
  is_trial_period INTEGER NOT NULL DEFAULT 0,
  trial_end DATETIME,
  cancel_at_period_end INTEGER NOT NULL DEFAULT 0,
  cancelled_at DATETIME,
  renewal_reminder_sent_at DATETIME,
  grace_period_ends_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS subscription_payments (
  id TEXT PRIMARY KEY,
  subscription_id TEXT NOT NULL,
  merchant_order_id TEXT NOT NULL UNIQUE,
  plan_id TEXT NOT NULL,
  billing_cycle TEXT NOT NULL,
  payment_provider TEXT NOT NULL,
  payment_link TEXT,
  amount TEXT NOT NULL,
  currency TEXT NOT NULL,
  status TEXT NOT NULL,
  paid_at DATETIME,
  failure_code TEXT,
  failure_message TEXT,
  retry_count INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME,
  updated_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS invoices (
  id TEXT PRIMARY KEY,
  subscription_id TEXT NOT NULL,
  payment_id TEXT,
  invoice_number TEXT NOT NULL UNIQUE,
  status TEXT NOT NULL,
  subtotal TEXT NOT NULL,
  tax TEXT NOT NULL DEFAULT '0',
  total TEXT NOT NULL,
  currency TEXT NOT NULL,
  period_start DATETIME NOT NULL,
  period_end DATETIME NOT NULL,
  description TEXT,
  paid_at DATETIME,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS cash_drawer_movements (
  id TEXT PRIMARY KEY,
  tenant_id TEXT NOT NULL,
  type TEXT NOT NULL,
  amount TEXT NOT NULL,
  reason TEXT,
  user_id TEXT NOT NULL,
  created_at DATETIME
);`,
	`CREATE TABLE IF NOT EXISTS z_reports (
  id TEXT PRIMARY KEY,
  tenant_id TEXT NOT NULL,
  report_number TEXT NOT NULL,
  report_date DATE NOT NULL,
  currency TEXT NOT NULL,
  total_orders INTEGER NOT NULL,
  gross_sales TEXT NOT NULL,
  total_discount TEXT NOT NULL,
  net_sales TEXT NOT NULL,
  tax_amount TEXT NOT NULL,
  payment_methods TEXT NOT NULL,
  order_types TEXT NOT NULL,
  cancelled_orders INTEGER NOT NULL,
  cancelled_amount TEXT NOT NULL,
  opening_cash TEXT NOT NULL,
  cash_payments TEXT NOT NULL,
  expected_cash TEXT NOT NULL,
  counted_cash TEXT NOT NULL,
  cash_difference TEXT NOT NULL,
  top_products TEXT NOT NULL,
  cash_movements TEXT NOT NULL,
  notes TEXT,
  closed_by_id TEXT NOT NULL,
  is_finalized INTEGER NOT NULL DEFAULT 0,
  finalized_at DATETIME,
  email_sent INTEGER NOT NULL DEFAULT 0,
  email_sent_at DATETIME,
  email_error TEXT,
  created_at DATETIME,
  updated_at DATETIME,
  CONSTRAINT uq_z_reports_tenant_date UNIQUE (tenant_id, report_date)
);`,
	`CREATE TABLE IF NOT EXISTS outbox_events (
  id TEXT PRIMARY KEY,
  event_type TEXT NOT NULL,
  aggregate_type TEXT NOT NULL,
  aggregate_id TEXT NOT NULL,
  payload BLOB NOT NULL,
  created_at DATETIME,
  published_at DATETIME,
  attempt_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT
);`,
}

// Open returns a private in-memory database with every table created.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		require.NoError(t, conn.Exec(stmt).Error)
	}
	return conn
}

// Client wraps Open in the shared db client.
func Client(t *testing.T) (*db.Client, *gorm.DB) {
	t.Helper()
	conn := Open(t)
	return db.FromGorm(conn), conn
}
