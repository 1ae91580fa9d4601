package pipelines

import (
	"context"
	"fmt"

	"wix-store-migrator/internal/domain"
)

const loyaltyBalancePath = "points.balance"

// LoyaltyPipeline migrates loyalty accounts oldest-first. Accounts attach to the
// destination contact with the same email; balances are carried over as a
// points adjustment.
type LoyaltyPipeline struct {
	base
}

// NewLoyaltyPipeline creates a new loyalty pipeline
func NewLoyaltyPipeline(deps Deps) *LoyaltyPipeline {
	return &LoyaltyPipeline{base{entity: domain.EntityLoyalty, deps: deps}}
}

func (p *LoyaltyPipeline) Run(ctx context.Context, job *Job) domain.EntityResult {
	res := domain.NewEntityResult(p.entity)

	accounts, err := listAll(p.deps.Remote.Loyalty.ListAccounts(ctx, job.SourceToken))
	if err != nil {
		return configFailure(&res, "failed to list source loyalty accounts: %w", err)
	}
	sortOldestFirst(accounts, loyaltyCreatedDate)

	emails, err := p.accountEmails(ctx, job, accounts)
	if err != nil {
		return configFailure(&res, "%w", err)
	}
	p.log(ctx, job, "", domain.LevelInfo, "Found %d loyalty accounts", len(accounts))

	if job.ExportOnly() {
		p.export(ctx, job, &res, accounts, emails)
		return res
	}

	list := make([]string, 0, len(emails))
	for _, e := range emails {
		list = append(list, e)
	}
	contacts, err := NewContactResolver(p.deps.Remote.Contacts, job.DestinationToken).Resolve(ctx, list)
	if err != nil {
		return configFailure(&res, "%w", err)
	}

	destAccounts, err := listAll(p.deps.Remote.Loyalty.ListAccounts(ctx, job.DestinationToken))
	if err != nil {
		return configFailure(&res, "failed to list destination loyalty accounts: %w", err)
	}
	byContact := make(map[string]domain.RawItem, len(destAccounts))
	for _, a := range destAccounts {
		byContact[a.String("contactId")] = a
	}

	for i, account := range accounts {
		p.migrateAccount(ctx, job, &res, account, emails[account.String("id")], contacts, byContact)
		p.progress(ctx, job, &res, i+1)
	}
	return res
}

// accountEmails returns source account id -> normalized contact email. Accounts
// without an embedded email fall back to the source contact they belong to.
func (p *LoyaltyPipeline) accountEmails(ctx context.Context, job *Job, accounts []domain.RawItem) (map[string]string, error) {
	out := make(map[string]string, len(accounts))
	var missing bool
	for _, a := range accounts {
		email := normalizeEmail(resolveString(a, loyaltyEmail))
		out[a.String("id")] = email
		if email == "" && a.String("contactId") != "" {
			missing = true
		}
	}
	if !missing {
		return out, nil
	}

	contacts, err := listAll(p.deps.Remote.Contacts.ListContacts(ctx, job.SourceToken))
	if err != nil {
		return nil, fmt.Errorf("failed to list source contacts: %w", err)
	}
	byContact := make(map[string]string, len(contacts))
	for _, c := range contacts {
		byContact[c.String("id")] = normalizeEmail(resolveString(c, contactEmail))
	}
	for _, a := range accounts {
		id := a.String("id")
		if out[id] == "" {
			out[id] = byContact[a.String("contactId")]
		}
	}
	return out, nil
}

func (p *LoyaltyPipeline) descriptor(account domain.RawItem, email string) domain.Descriptor {
	return domain.Descriptor{NaturalKey: email, Label: email, ParentKey: account.String("contactId")}
}

func (p *LoyaltyPipeline) export(ctx context.Context, job *Job, res *domain.EntityResult, accounts []domain.RawItem, emails map[string]string) {
	for _, a := range accounts {
		id := a.String("id")
		entry, err := p.deps.Ledger.UpsertPending(ctx, p.key(job, id), p.descriptor(a, emails[id]))
		if err != nil {
			res.AddError("%s %s: ledger unavailable: %v", p.entity.DisplayName(), id, err)
			continue
		}
		if !entry.IsSuccess() {
			res.Exported++
		}
	}
}

func (p *LoyaltyPipeline) migrateAccount(ctx context.Context, job *Job, res *domain.EntityResult,
	account domain.RawItem, email string, contacts map[string]string, byContact map[string]domain.RawItem) {
	client := p.deps.Remote.Loyalty
	sourceID := account.String("id")
	balance := account.Int(loyaltyBalancePath)
	var destContact string

	p.processItem(ctx, job, res, item{
		sourceKey: sourceID,
		desc:      p.descriptor(account, email),
		skip: func() string {
			if email == "" {
				return "loyalty account has no contact email"
			}
			return ""
		},
		prepare: func(context.Context) error {
			destContact = contacts[email]
			if destContact == "" {
				return fmt.Errorf("contact %s does not exist in the destination store", email)
			}
			return nil
		},
		find: func(context.Context) (string, error) {
			return byContact[destContact].String("id"), nil
		},
		create: func(ctx context.Context) (string, bool, error) {
			id, err := client.CreateAccount(ctx, job.DestinationToken, destContact)
			return id, false, err
		},
		record: func(destID string) {
			job.Remapper.Record(domain.EntityLoyalty, sourceID, destID)
		},
		after: func(ctx context.Context, destID string, matched bool) []error {
			current := 0
			if matched {
				current = byContact[destContact].Int(loyaltyBalancePath)
			}
			delta := balance - current
			if delta == 0 {
				return nil
			}
			if err := client.AdjustPoints(ctx, job.DestinationToken, destID, delta); err != nil {
				return []error{fmt.Errorf("failed to adjust balance by %d: %w", delta, err)}
			}
			byContact[destContact] = domain.RawItem{
				"id":        destID,
				"contactId": destContact,
				"points":    map[string]any{"balance": balance},
			}
			return nil
		},
	})
}
