package pipelines

import (
	"context"

	"wix-store-migrator/internal/domain"
)

// allProductsCollectionID is the built-in collection every store has
const allProductsCollectionID = "00000000-000000-000000-000000000001"

// CollectionsPipeline migrates store collections in source list order
type CollectionsPipeline struct {
	base
}

// NewCollectionsPipeline creates a new collections pipeline
func NewCollectionsPipeline(deps Deps) *CollectionsPipeline {
	return &CollectionsPipeline{base{entity: domain.EntityCollections, deps: deps}}
}

func (p *CollectionsPipeline) Run(ctx context.Context, job *Job) domain.EntityResult {
	res := domain.NewEntityResult(p.entity)
	client := p.deps.Remote.Collections

	collections, err := listAll(client.ListCollections(ctx, job.SourceToken))
	if err != nil {
		return configFailure(&res, "failed to list source collections: %w", err)
	}
	p.log(ctx, job, "", domain.LevelInfo, "Found %d collections", len(collections))

	for i, c := range collections {
		sourceID := c.String("id")
		slug := c.String("slug")
		var payload domain.RawItem

		p.processItem(ctx, job, &res, item{
			sourceKey: sourceID,
			desc:      domain.Descriptor{NaturalKey: slug, Label: c.String("name")},
			skip: func() string {
				if sourceID == allProductsCollectionID {
					return "built-in collection exists in every store"
				}
				return ""
			},
			prepare: func(context.Context) error {
				// the destination regenerates slugs
				payload = stripSystem(c, "slug", "numberOfProducts")
				return nil
			},
			create: func(ctx context.Context) (string, bool, error) {
				id, err := client.CreateCollection(ctx, job.DestinationToken, payload)
				return id, false, err
			},
			record: func(destID string) {
				job.Remapper.Record(domain.EntityCollections, sourceID, destID)
				job.Remapper.Record(domain.EntityCollections, slug, destID)
			},
		})
		p.progress(ctx, job, &res, i+1)
	}
	return res
}
