package pipelines

import "wix-store-migrator/internal/domain"

// NewRegistry builds one pipeline per entity type
func NewRegistry(deps Deps) map[domain.EntityType]Pipeline {
	all := []Pipeline{
		NewCollectionsPipeline(deps),
		NewProductsPipeline(deps),
		NewContactsPipeline(deps),
		NewOrdersPipeline(deps),
		NewCouponsPipeline(deps),
		NewDiscountRulesPipeline(deps),
		NewMediaPipeline(deps),
		NewLoyaltyPipeline(deps),
	}
	registry := make(map[domain.EntityType]Pipeline, len(all))
	for _, p := range all {
		registry[p.EntityType()] = p
	}
	return registry
}
