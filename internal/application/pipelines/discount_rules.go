package pipelines

import (
	"context"

	"wix-store-migrator/internal/domain"
)

// DiscountRulesPipeline creates each automatic discount rule once, keyed by its source id
type DiscountRulesPipeline struct {
	base
}

// NewDiscountRulesPipeline creates a new discount rules pipeline
func NewDiscountRulesPipeline(deps Deps) *DiscountRulesPipeline {
	return &DiscountRulesPipeline{base{entity: domain.EntityDiscountRules, deps: deps}}
}

func (p *DiscountRulesPipeline) Run(ctx context.Context, job *Job) domain.EntityResult {
	res := domain.NewEntityResult(p.entity)
	client := p.deps.Remote.DiscountRules

	rules, err := listAll(client.ListDiscountRules(ctx, job.SourceToken))
	if err != nil {
		return configFailure(&res, "failed to list source discount rules: %w", err)
	}
	p.log(ctx, job, "", domain.LevelInfo, "Found %d discount rules", len(rules))

	for i, rule := range rules {
		sourceID := rule.String("id")
		payload := stripSystem(rule, "status", "usageCount")

		p.processItem(ctx, job, &res, item{
			sourceKey: sourceID,
			desc:      domain.Descriptor{Label: rule.String("name")},
			create: func(ctx context.Context) (string, bool, error) {
				id, err := client.CreateDiscountRule(ctx, job.DestinationToken, payload)
				return id, false, err
			},
			record: func(destID string) {
				job.Remapper.Record(domain.EntityDiscountRules, sourceID, destID)
			},
		})
		p.progress(ctx, job, &res, i+1)
	}
	return res
}
