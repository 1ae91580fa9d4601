package pipelines

import (
	"context"
	"fmt"
	"strings"

	"wix-store-migrator/internal/domain"
)

// orderTagLists are the order fields holding tag ids
var orderTagLists = []string{"tags.privateTags.tagIds", "tags.tags.tagIds"}

// OrdersPipeline migrates orders with their fulfillments, payments and refunds.
// An order row stays pending with its destination id until the dependent writes
// finish, so an interrupted order resumes without being created twice.
type OrdersPipeline struct {
	base
}

// NewOrdersPipeline creates a new orders pipeline
func NewOrdersPipeline(deps Deps) *OrdersPipeline {
	return &OrdersPipeline{base{entity: domain.EntityOrders, deps: deps}}
}

type orderRun struct {
	*OrdersPipeline
	job      *Job
	res      *domain.EntityResult
	contacts *ContactResolver

	sourceTags map[string]string // source tag id -> display name
	destTags   map[string]string // display name -> destination tag id
}

func (p *OrdersPipeline) Run(ctx context.Context, job *Job) domain.EntityResult {
	res := domain.NewEntityResult(p.entity)
	client := p.deps.Remote.Orders

	if err := seedFromLedger(ctx, p.deps.Ledger, job, domain.EntityProducts); err != nil {
		return configFailure(&res, "%w", err)
	}

	r := &orderRun{
		OrdersPipeline: p,
		job:            job,
		res:            &res,
		contacts:       NewContactResolver(p.deps.Remote.Contacts, job.DestinationToken),
		sourceTags:     make(map[string]string),
		destTags:       make(map[string]string),
	}

	tags, err := listAll(client.ListTags(ctx, job.SourceToken))
	if err != nil {
		return configFailure(&res, "failed to list source order tags: %w", err)
	}
	for _, t := range tags {
		r.sourceTags[t.String("id")] = t.String("displayName")
	}

	orders, err := listAll(client.ListOrders(ctx, job.SourceToken))
	if err != nil {
		return configFailure(&res, "failed to list source orders: %w", err)
	}
	p.log(ctx, job, "", domain.LevelInfo, "Found %d orders", len(orders))

	// warm the contact lookup in batches before orders are fetched one by one
	emails := make([]string, 0, len(orders))
	for _, o := range orders {
		emails = append(emails, resolveString(o, buyerEmail))
	}
	if _, err := r.contacts.Resolve(ctx, emails); err != nil {
		res.AddError("%s: %v", p.entity.DisplayName(), err)
	}

	for i, summary := range orders {
		r.migrateOrder(ctx, summary)
		p.progress(ctx, job, &res, i+1)
	}
	return res
}

func (r *orderRun) migrateOrder(ctx context.Context, summary domain.RawItem) {
	client := r.deps.Remote.Orders
	sourceID := summary.String("id")
	number := summary.String("number")
	label := "#" + number
	if number == "" {
		label = sourceID
	}

	var order, payload domain.RawItem
	var warnings []error

	r.processItem(ctx, r.job, r.res, item{
		sourceKey:  sourceID,
		desc:       domain.Descriptor{NaturalKey: number, Label: label},
		checkpoint: true,
		prepare: func(ctx context.Context) error {
			var err error
			order, err = client.GetOrder(ctx, r.job.SourceToken, sourceID)
			if err != nil {
				return fmt.Errorf("failed to fetch order: %w", err)
			}
			if order == nil {
				return fmt.Errorf("order %s no longer exists in the source store", sourceID)
			}
			payload, warnings, err = r.orderPayload(ctx, order)
			return err
		},
		create: func(ctx context.Context) (string, bool, error) {
			id, err := client.CreateOrder(ctx, r.job.DestinationToken, payload)
			return id, false, err
		},
		record: func(destID string) {
			r.job.Remapper.Record(domain.EntityOrders, sourceID, destID)
		},
		after: func(ctx context.Context, destID string, _ bool) []error {
			errs := append([]error(nil), warnings...)
			errs = append(errs, r.copyFulfillments(ctx, order, destID)...)
			return append(errs, r.copyPayments(ctx, order, destID)...)
		},
	})
}

// orderPayload builds the create payload. Tags that cannot be recreated are
// dropped and reported as warnings.
func (r *orderRun) orderPayload(ctx context.Context, order domain.RawItem) (domain.RawItem, []error, error) {
	payload := stripSystem(order,
		"number", "buyerInfo.memberId", "buyerInfo.visitorId",
		"balanceSummary", "fulfillmentStatus", "activities", "refunds")

	for _, line := range payload.Objects("lineItems") {
		line.Delete("id")
		productID := line.String("catalogReference.catalogItemId")
		if productID == "" {
			continue
		}
		if destID, ok := r.job.Remapper.Translate(domain.EntityProducts, productID); ok {
			line.Set("catalogReference.catalogItemId", destID)
		} else {
			line.Delete("catalogReference")
		}
	}

	payload.Delete("buyerInfo.contactId")
	if email := resolveString(order, buyerEmail); email != "" {
		contactID, err := r.contacts.ResolveOne(ctx, email)
		if err != nil {
			return nil, nil, err
		}
		if contactID != "" {
			payload.Set("buyerInfo.contactId", contactID)
		}
	}

	var warnings []error
	for _, path := range orderTagLists {
		ids := order.Strings(path)
		if len(ids) == 0 {
			continue
		}
		translated := make([]any, 0, len(ids))
		for _, id := range ids {
			destID, err := r.destinationTag(ctx, id)
			if err != nil {
				warnings = append(warnings, err)
				continue
			}
			translated = append(translated, destID)
		}
		payload.Set(path, translated)
	}
	return payload, warnings, nil
}

func (r *orderRun) destinationTag(ctx context.Context, sourceTagID string) (string, error) {
	name, ok := r.sourceTags[sourceTagID]
	if !ok || name == "" {
		return "", fmt.Errorf("tag %s is unknown in the source store and was dropped", sourceTagID)
	}
	if id, ok := r.destTags[name]; ok {
		return id, nil
	}
	id, err := r.deps.Remote.Orders.FindOrCreateTag(ctx, r.job.DestinationToken, name)
	if err != nil {
		return "", fmt.Errorf("tag %q was dropped: %w", name, err)
	}
	r.destTags[name] = id
	return id, nil
}

// copyFulfillments replays source fulfillments. Fulfillments whose tracking
// number the destination already has are skipped, and the rest are capped at
// the units the source shipped that the destination is still missing.
func (r *orderRun) copyFulfillments(ctx context.Context, order domain.RawItem, destID string) []error {
	client := r.deps.Remote.Orders
	sourceFulfillments, err := client.ListFulfillments(ctx, r.job.SourceToken, order.String("id"))
	if err != nil {
		return []error{fmt.Errorf("failed to list source fulfillments: %w", err)}
	}
	if len(sourceFulfillments) == 0 {
		return nil
	}

	destOrder, err := client.GetOrder(ctx, r.job.DestinationToken, destID)
	if err != nil {
		return []error{fmt.Errorf("failed to fetch destination order: %w", err)}
	}
	destFulfillments, err := client.ListFulfillments(ctx, r.job.DestinationToken, destID)
	if err != nil {
		return []error{fmt.Errorf("failed to list destination fulfillments: %w", err)}
	}

	capacity := newLineCapacity(destOrder.Objects("lineItems"), destFulfillments)
	sourceLines := make(map[string]domain.RawItem)
	for _, l := range order.Objects("lineItems") {
		sourceLines[l.String("id")] = l
	}
	capacity.expect(sourceLines, sourceFulfillments)

	tracked := make(map[string]bool)
	for _, f := range destFulfillments {
		if tn := trackingNumber(f); tn != "" {
			tracked[tn] = true
		}
	}

	var errs []error
	for _, f := range sourceFulfillments {
		if tn := trackingNumber(f); tn != "" && tracked[tn] {
			continue
		}
		lines := capacity.take(sourceLines, f)
		if len(lines) == 0 {
			continue
		}
		fulfillment := stripSystem(f, "lineItems")
		fulfillment["lineItems"] = lines
		if _, err := client.CreateFulfillment(ctx, r.job.DestinationToken, destID, fulfillment); err != nil {
			errs = append(errs, fmt.Errorf("failed to create fulfillment: %w", err))
		}
	}
	return errs
}

func trackingNumber(fulfillment domain.RawItem) string {
	return strings.TrimSpace(fulfillment.String("trackingInfo.trackingNumber"))
}

// copyPayments adds the source payments the destination order lacks, then
// replays their refunds onto the matching destination payments
func (r *orderRun) copyPayments(ctx context.Context, order domain.RawItem, destID string) []error {
	client := r.deps.Remote.Orders
	sourcePayments, err := client.ListTransactions(ctx, r.job.SourceToken, order.String("id"))
	if err != nil {
		return []error{fmt.Errorf("failed to list source payments: %w", err)}
	}
	if len(sourcePayments) == 0 {
		return nil
	}

	var errs []error
	refunds := make([][]domain.RawItem, len(sourcePayments))
	for i, p := range sourcePayments {
		var refundErrs []error
		refunds[i], refundErrs = r.sourceRefunds(ctx, p)
		errs = append(errs, refundErrs...)
	}

	destPayments, err := client.ListTransactions(ctx, r.job.DestinationToken, destID)
	if err != nil {
		return append(errs, fmt.Errorf("failed to list destination payments: %w", err))
	}
	matches := matchPayments(sourcePayments, destPayments)

	var toAdd []domain.RawItem
	for i, j := range matches {
		if j < 0 {
			toAdd = append(toAdd, paymentPayload(sourcePayments[i]))
		}
	}
	if len(toAdd) > 0 {
		if _, err := client.AddPayments(ctx, r.job.DestinationToken, destID, toAdd); err != nil {
			return append(errs, fmt.Errorf("failed to add payments: %w", err))
		}
		destPayments, err = client.ListTransactions(ctx, r.job.DestinationToken, destID)
		if err != nil {
			return append(errs, fmt.Errorf("failed to list destination payments: %w", err))
		}
		matches = matchPayments(sourcePayments, destPayments)
	}

	var paymentRefunds []domain.RawItem
	for i, j := range matches {
		if len(refunds[i]) == 0 {
			continue
		}
		if j < 0 {
			errs = append(errs, fmt.Errorf("payment %s has no destination payment to refund", sourcePayments[i].String("id")))
			continue
		}
		for _, refund := range missingRefunds(refunds[i], destPayments[j]) {
			amount, ok := moneyAt(refund, "amount")
			if !ok {
				errs = append(errs, fmt.Errorf("refund %s has no amount", refund.String("id")))
				continue
			}
			paymentRefunds = append(paymentRefunds, domain.RawItem{
				"paymentId":      destPayments[j].String("id"),
				"amount":         map[string]any{"amount": amount.StringFixed(2)},
				"externalRefund": true,
			})
		}
	}
	if len(paymentRefunds) > 0 {
		if err := client.RefundPayments(ctx, r.job.DestinationToken, destID, paymentRefunds); err != nil {
			errs = append(errs, fmt.Errorf("failed to refund payments: %w", err))
		}
	}
	return errs
}

// sourceRefunds merges the refunds embedded in a payment with those found by
// searching its charge id. Search and enrichment failures are non-fatal.
func (r *orderRun) sourceRefunds(ctx context.Context, payment domain.RawItem) ([]domain.RawItem, []error) {
	client := r.deps.Remote.Orders
	refunds := payment.Objects("refunds")
	seen := make(map[string]bool, len(refunds))
	for _, rf := range refunds {
		seen[rf.String("id")] = true
	}

	chargeID := payment.FirstString("regularPaymentDetails.chargeId", "regularPaymentDetails.providerTransactionId", "providerTransactionId")
	if chargeID == "" {
		return refunds, nil
	}
	found, err := client.SearchRefundsByCharge(ctx, r.job.SourceToken, chargeID)
	if err != nil {
		return refunds, []error{fmt.Errorf("failed to search refunds of charge %s: %w", chargeID, err)}
	}

	var errs []error
	for _, rf := range found {
		id := rf.String("id")
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		full, err := client.GetRefund(ctx, r.job.SourceToken, id)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("failed to fetch refund %s: %w", id, err))
		case full != nil:
			rf = full
		}
		refunds = append(refunds, rf)
	}
	return refunds, errs
}
