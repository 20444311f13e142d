package migrate_test

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mtarikucar/kds-sub004/pkg/migrate"
)

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
}

func TestEmbeddedMigrationsMatchDisk(t *testing.T) {
	embedded, err := migrate.Source("")
	if err != nil {
		t.Fatalf("embedded source: %v", err)
	}
	if err := migrate.Validate(embedded); err != nil {
		t.Fatalf("validate embedded migrations: %v", err)
	}
	onDisk, _ := filepath.Glob(filepath.Join("migrations", "*.sql"))
	inBinary, _ := fs.Glob(embedded, "*.sql")
	if len(onDisk) != len(inBinary) {
		t.Fatalf("embedded %d migrations, disk has %d", len(inBinary), len(onDisk))
	}
}

func TestValidateReportsBadFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "20250101000000_ok.sql"), "-- +goose Up\n-- +goose Down\n")
	writeFile(t, filepath.Join(dir, "20250101000000_dup.sql"), "-- +goose Up\n-- +goose Down\n")
	writeFile(t, filepath.Join(dir, "bad-name.sql"), "")
	writeFile(t, filepath.Join(dir, "20250102000000_no_down.sql"), "-- +goose Up\n")

	err := migrate.ValidateDir(dir)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"already used", "bad-name.sql", "missing \"-- +goose Down\""} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestBillingMigrationEnforcesIdempotencyKey(t *testing.T) {
	content := readMigration(t, "*_create_billing.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS subscription_payments",
		"CONSTRAINT uq_subscription_payments_merchant_order UNIQUE (merchant_order_id)",
		"CONSTRAINT uq_invoices_number UNIQUE (invoice_number)",
		"CREATE UNIQUE INDEX IF NOT EXISTS uq_subscriptions_tenant_open",
		"DROP TABLE IF EXISTS subscription_payments",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestZReportMigrationOneRowPerTenantDay(t *testing.T) {
	content := readMigration(t, "*_create_z_reports.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS z_reports",
		"CONSTRAINT uq_z_reports_tenant_date UNIQUE (tenant_id, report_date)",
		"cash_difference numeric(12,2) NOT NULL",
		"CREATE TABLE IF NOT EXISTS cash_drawer_movements",
		"DROP TABLE IF EXISTS z_reports",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestSubscriptionPaymentPlanMigrationBackfills(t *testing.T) {
	content := readMigration(t, "*_subscription_payment_plan.sql")

	checks := []string{
		"ADD COLUMN IF NOT EXISTS plan_id uuid",
		"ADD COLUMN IF NOT EXISTS billing_cycle billing_cycle",
		"SET plan_id = s.plan_id",
		"ALTER COLUMN billing_cycle SET NOT NULL",
		"DROP COLUMN IF EXISTS plan_id",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestPaymentsMigrationRejectsNonPositiveAmounts(t *testing.T) {
	content := readMigration(t, "*_create_orders_payments.sql")
	if !strings.Contains(content, "amount numeric(12,2) NOT NULL CHECK (amount > 0)") {
		t.Fatal("payments.amount must be constrained positive")
	}
}

func TestCreateSQLMigrationWritesGooseTemplate(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Tip Column!")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_tip_column.sql") {
		t.Fatalf("unexpected filename %s", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("generated migration failed validation: %v", err)
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration matching %s", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}
