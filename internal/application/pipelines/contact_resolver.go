package pipelines

import (
	"context"
	"fmt"
	"time"

	"wix-store-migrator/internal/ports"

	"github.com/graph-gophers/dataloader"
)

// contactLookupChunk bounds the emails sent in one destination query
const contactLookupChunk = 50

// ContactResolver maps contact emails to destination contact ids with batched
// lookups. Results are cached for the lifetime of the resolver.
type ContactResolver struct {
	loader *dataloader.Loader
}

// NewContactResolver creates a resolver against the destination store
func NewContactResolver(client ports.ContactsClient, token string) *ContactResolver {
	batchFn := func(ctx context.Context, keys dataloader.Keys) []*dataloader.Result {
		emails := keys.Keys()
		found, err := client.QueryContactIDsByEmail(ctx, token, emails)

		results := make([]*dataloader.Result, len(keys))
		for i, email := range emails {
			if err != nil {
				results[i] = &dataloader.Result{Error: err}
				continue
			}
			results[i] = &dataloader.Result{Data: found[email]}
		}
		return results
	}

	loader := dataloader.NewBatchedLoader(batchFn,
		dataloader.WithBatchCapacity(contactLookupChunk),
		dataloader.WithWait(time.Millisecond),
	)
	return &ContactResolver{loader: loader}
}

// Resolve returns normalized email -> destination contact id for every email
// that exists in the destination
func (r *ContactResolver) Resolve(ctx context.Context, emails []string) (map[string]string, error) {
	seen := make(map[string]bool, len(emails))
	keys := make(dataloader.Keys, 0, len(emails))
	for _, e := range emails {
		n := normalizeEmail(e)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		keys = append(keys, dataloader.StringKey(n))
	}

	out := make(map[string]string, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	data, errs := r.loader.LoadMany(ctx, keys)()
	var firstErr error
	for i, raw := range data {
		if len(errs) > i && errs[i] != nil {
			if firstErr == nil {
				firstErr = errs[i]
			}
			continue
		}
		if id, _ := raw.(string); id != "" {
			out[keys[i].String()] = id
		}
	}
	if firstErr != nil {
		return out, fmt.Errorf("failed to resolve destination contacts: %w", firstErr)
	}
	return out, nil
}

// ResolveOne returns the destination contact id for email, or "" when absent
func (r *ContactResolver) ResolveOne(ctx context.Context, email string) (string, error) {
	n := normalizeEmail(email)
	if n == "" {
		return "", nil
	}
	raw, err := r.loader.Load(ctx, dataloader.StringKey(n))()
	if err != nil {
		return "", fmt.Errorf("failed to resolve destination contact: %w", err)
	}
	id, _ := raw.(string)
	return id, nil
}
