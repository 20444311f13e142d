package tenants

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/mtarikucar/kds-sub004/pkg/db/models"
)

var validate = validator.New()

// Recipients returns the tenant's report addresses, trimmed, deduplicated and
// stripped of anything that does not parse as an address.
func Recipients(tenant *models.Tenant) []string {
	if tenant == nil {
		return nil
	}
	return CleanRecipients(tenant.ReportEmailRecipients)
}

// CleanRecipients normalizes a raw recipient list.
func CleanRecipients(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, candidate := range raw {
		addr := strings.TrimSpace(candidate)
		if addr == "" {
			continue
		}
		if err := validate.Var(addr, "email"); err != nil {
			continue
		}
		key := strings.ToLower(addr)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, addr)
	}
	return out
}
