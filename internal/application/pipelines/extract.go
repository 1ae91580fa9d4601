package pipelines

import (
	"slices"
	"strings"
	"time"

	"wix-store-migrator/internal/domain"
)

// timeStrategy reads a timestamp from one place in a record
type timeStrategy func(domain.RawItem) (time.Time, bool)

func timeAt(path string) timeStrategy {
	return func(r domain.RawItem) (time.Time, bool) {
		return r.Time(path)
	}
}

// contactCreatedDate lists where a contact's signup time may be found, in order
var contactCreatedDate = []timeStrategy{
	timeAt("createdDate"),
	timeAt("info.createdDate"),
	timeAt("source.createdDate"),
	timeAt("_createdDate"),
}

// loyaltyCreatedDate lists where a loyalty account's creation time may be found, in order
var loyaltyCreatedDate = []timeStrategy{
	timeAt("createdDate"),
	timeAt("account.createdDate"),
	timeAt("points.createdDate"),
	timeAt("_createdDate"),
	timeAt("lastActivityDate"),
}

// resolveTime returns the first timestamp found by strategies
func resolveTime(r domain.RawItem, strategies []timeStrategy) (time.Time, bool) {
	for _, s := range strategies {
		if t, ok := s(r); ok && !t.IsZero() {
			return t, true
		}
	}
	return time.Time{}, false
}

// sortOldestFirst orders items by creation time. Items without a date keep
// their relative order after every dated item.
func sortOldestFirst(items []domain.RawItem, strategies []timeStrategy) {
	type entry struct {
		item domain.RawItem
		t    time.Time
		ok   bool
	}
	entries := make([]entry, len(items))
	for i, it := range items {
		t, ok := resolveTime(it, strategies)
		entries[i] = entry{item: it, t: t, ok: ok}
	}
	slices.SortStableFunc(entries, func(a, b entry) int {
		switch {
		case a.ok && b.ok:
			return a.t.Compare(b.t)
		case a.ok:
			return -1
		case b.ok:
			return 1
		}
		return 0
	})
	for i, e := range entries {
		items[i] = e.item
	}
}

// stringStrategy reads a string from one place in a record
type stringStrategy func(domain.RawItem) string

func stringAt(path string) stringStrategy {
	return func(r domain.RawItem) string {
		return strings.TrimSpace(r.String(path))
	}
}

// contactEmail lists where a contact's email may be found, in order
var contactEmail = []stringStrategy{
	stringAt("primaryInfo.email"),
	stringAt("primaryEmail.email"),
	stringAt("info.emails.items.0.email"),
	stringAt("info.emails.0.email"),
	stringAt("email"),
}

// loyaltyEmail lists where a loyalty account's contact email may be found, in order
var loyaltyEmail = []stringStrategy{
	stringAt("contact.email"),
	stringAt("contact.primaryInfo.email"),
	stringAt("contactEmail"),
	stringAt("email"),
}

// buyerEmail lists where an order's buyer email may be found, in order
var buyerEmail = []stringStrategy{
	stringAt("buyerInfo.email"),
	stringAt("billingInfo.contactDetails.email"),
	stringAt("billingInfo.address.email"),
}

// resolveString returns the first non-empty value found by strategies
func resolveString(r domain.RawItem, strategies []stringStrategy) string {
	for _, s := range strategies {
		if v := s(r); v != "" {
			return v
		}
	}
	return ""
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
