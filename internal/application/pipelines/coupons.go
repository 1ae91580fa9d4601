package pipelines

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"wix-store-migrator/internal/domain"
	"wix-store-migrator/internal/ports"
)

// CouponsPipeline migrates coupons once. A coupon scoped to a collection or
// product only migrates after its target did.
type CouponsPipeline struct {
	base
}

// NewCouponsPipeline creates a new coupons pipeline
func NewCouponsPipeline(deps Deps) *CouponsPipeline {
	return &CouponsPipeline{base{entity: domain.EntityCoupons, deps: deps}}
}

func (p *CouponsPipeline) Run(ctx context.Context, job *Job) domain.EntityResult {
	res := domain.NewEntityResult(p.entity)
	client := p.deps.Remote.Coupons

	for _, dep := range []domain.EntityType{domain.EntityCollections, domain.EntityProducts} {
		if err := seedFromLedger(ctx, p.deps.Ledger, job, dep); err != nil {
			return configFailure(&res, "%w", err)
		}
	}

	coupons, err := listAll(client.ListCoupons(ctx, job.SourceToken))
	if err != nil {
		return configFailure(&res, "failed to list source coupons: %w", err)
	}
	p.log(ctx, job, "", domain.LevelInfo, "Found %d coupons", len(coupons))

	for i, c := range coupons {
		sourceID := c.String("id")
		code := strings.TrimSpace(c.String("specification.code"))
		var spec domain.RawItem

		findByCode := func(ctx context.Context) (string, error) {
			existing, err := client.FindCouponByCode(ctx, job.DestinationToken, code)
			if err != nil || existing == nil {
				return "", err
			}
			return existing.String("id"), nil
		}

		p.processItem(ctx, job, &res, item{
			sourceKey: sourceID,
			desc:      domain.Descriptor{NaturalKey: code, Label: code},
			skip: func() string {
				if code == "" {
					return "coupon has no code"
				}
				return ""
			},
			prepare: func(context.Context) error {
				var err error
				spec, err = couponSpecification(c, job.Remapper)
				return err
			},
			find: findByCode,
			create: func(ctx context.Context) (string, bool, error) {
				id, err := client.CreateCoupon(ctx, job.DestinationToken, spec)
				if err == nil {
					return id, false, nil
				}
				// another writer may have created the code since the lookup
				if ports.IsRemoteStatus(err, http.StatusBadRequest, http.StatusConflict) {
					if existing, findErr := findByCode(ctx); findErr == nil && existing != "" {
						return existing, true, nil
					}
				}
				return "", false, err
			},
			record: func(destID string) {
				job.Remapper.Record(domain.EntityCoupons, sourceID, destID)
			},
		})
		p.progress(ctx, job, &res, i+1)
	}
	return res
}

// couponSpecification copies the coupon's specification with its scope
// translated to destination ids
func couponSpecification(coupon domain.RawItem, remapper *Remapper) (domain.RawItem, error) {
	src, ok := coupon.Object("specification")
	if !ok {
		return nil, fmt.Errorf("coupon has no specification")
	}
	spec := stripSystem(src, "usageCount", "expired", "displayData")

	group := spec.String("scope.group.name")
	entityID := spec.String("scope.group.entityId")
	if entityID == "" {
		return spec, nil
	}

	var entity domain.EntityType
	switch group {
	case "collection":
		entity = domain.EntityCollections
	case "product":
		entity = domain.EntityProducts
	default:
		return spec, nil
	}
	destID, ok := remapper.Translate(entity, entityID)
	if !ok {
		return nil, fmt.Errorf("coupon scope %s %s has no migrated destination %s", group, entityID, entity)
	}
	spec.Set("scope.group.entityId", destID)
	return spec, nil
}
