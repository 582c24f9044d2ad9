package tenant

import (
	"example.com/horizon/services/ledger/domain"
)

// BelongsToTenant reports whether every loaded event is owned by the
// expected tenant. Checking all events, not just the first, catches partial
// corruption and misconfigured row filters that let mixed-tenant rows
// through. An empty batch returns true: a nonexistent aggregate is a
// not-found case upstream, not a tenant violation.
//
// Callers that get false must answer "not found", never "forbidden", so an
// attacker cannot confirm that an aggregate id exists under another tenant.
func BelongsToTenant(events []domain.Event, expectedTenant string) bool {
	for _, event := range events {
		if event.Metadata.TenantID != expectedTenant {
			return false
		}
	}
	return true
}
