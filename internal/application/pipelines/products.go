package pipelines

import (
	"context"
	"fmt"
	"strings"

	"wix-store-migrator/internal/domain"
)

// ProductsPipeline migrates catalog products with their inventory and collection membership
type ProductsPipeline struct {
	base
}

// NewProductsPipeline creates a new products pipeline
func NewProductsPipeline(deps Deps) *ProductsPipeline {
	return &ProductsPipeline{base{entity: domain.EntityProducts, deps: deps}}
}

func (p *ProductsPipeline) Run(ctx context.Context, job *Job) domain.EntityResult {
	res := domain.NewEntityResult(p.entity)
	client := p.deps.Remote.Products

	if err := seedFromLedger(ctx, p.deps.Ledger, job, domain.EntityCollections); err != nil {
		return configFailure(&res, "%w", err)
	}

	inventory, err := listAll(client.ListInventory(ctx, job.SourceToken))
	if err != nil {
		return configFailure(&res, "failed to list source inventory: %w", err)
	}
	bySKU := inventoryBySKU(inventory)

	products, err := listAll(client.ListProducts(ctx, job.SourceToken))
	if err != nil {
		return configFailure(&res, "failed to list source products: %w", err)
	}
	p.log(ctx, job, "", domain.LevelInfo, "Found %d products and %d inventory items", len(products), len(inventory))

	for i, prod := range products {
		sourceID := prod.String("id")
		sku := strings.TrimSpace(prod.String("sku"))
		var payload domain.RawItem

		p.processItem(ctx, job, &res, item{
			sourceKey: sourceID,
			desc:      domain.Descriptor{NaturalKey: sku, Label: prod.String("name")},
			prepare: func(context.Context) error {
				payload = productPayload(prod, bySKU[sku])
				return nil
			},
			create: func(ctx context.Context) (string, bool, error) {
				id, err := client.CreateProduct(ctx, job.DestinationToken, payload)
				return id, false, err
			},
			record: func(destID string) {
				job.Remapper.Record(domain.EntityProducts, sourceID, destID)
				job.Remapper.Record(domain.EntityProducts, sku, destID)
			},
			after: func(ctx context.Context, destID string, _ bool) []error {
				return p.addToCollections(ctx, job, prod, destID)
			},
		})
		p.progress(ctx, job, &res, i+1)
	}
	return res
}

func (p *ProductsPipeline) addToCollections(ctx context.Context, job *Job, prod domain.RawItem, destID string) []error {
	var errs []error
	for _, sourceCollection := range prod.Strings("collectionIds") {
		if sourceCollection == allProductsCollectionID {
			continue
		}
		destCollection, ok := job.Remapper.Translate(domain.EntityCollections, sourceCollection)
		if !ok {
			errs = append(errs, fmt.Errorf("collection %s was not migrated", sourceCollection))
			continue
		}
		if err := p.deps.Remote.Products.AddProductsToCollection(ctx, job.DestinationToken, destCollection, []string{destID}); err != nil {
			errs = append(errs, fmt.Errorf("failed to add to collection %s: %w", destCollection, err))
		}
	}
	return errs
}

// inventoryBySKU indexes inventory items by SKU. The first item listed for a SKU wins.
func inventoryBySKU(items []domain.RawItem) map[string]domain.RawItem {
	out := make(map[string]domain.RawItem, len(items))
	for _, inv := range items {
		sku := strings.TrimSpace(inv.FirstString("sku", "variants.0.sku"))
		if sku == "" {
			continue
		}
		if _, taken := out[sku]; !taken {
			out[sku] = inv
		}
	}
	return out
}

// productPayload strips system fields and attaches inventory when one matched
func productPayload(prod, inv domain.RawItem) domain.RawItem {
	payload := stripSystem(prod,
		"slug", "numericId", "inventoryItemId", "collectionIds", "productPageUrl", "variants", "stock")
	if inv == nil {
		return payload
	}
	stock := map[string]any{"trackInventory": inv.Bool("trackQuantity")}
	if inv.Bool("trackQuantity") {
		stock["quantity"] = inv.Int("variants.0.quantity")
	} else {
		stock["inStock"] = inv.Bool("variants.0.inStock")
	}
	payload["stock"] = stock
	return payload
}
