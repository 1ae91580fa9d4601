package ports

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"

	"wix-store-migrator/internal/domain"
)

// RemoteError is a write or lookup rejected by the remote platform. Body is kept
// verbatim for operator diagnosis.
type RemoteError struct {
	Op     string
	Status int
	Body   string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s failed with status %d: %s", e.Op, e.Status, e.Body)
}

// RemoteStatus returns the HTTP status of a RemoteError in err's chain, or 0
func RemoteStatus(err error) int {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Status
	}
	return 0
}

// IsRemoteStatus reports whether err carries one of the given statuses
func IsRemoteStatus(err error, statuses ...int) bool {
	status := RemoteStatus(err)
	return status != 0 && slices.Contains(statuses, status)
}

// CollectionsClient reads and writes store collections
type CollectionsClient interface {
	ListCollections(ctx context.Context, token string) iter.Seq2[domain.RawItem, error]
	CreateCollection(ctx context.Context, token string, payload domain.RawItem) (string, error)
}

// ProductsClient reads and writes catalog products
type ProductsClient interface {
	ListProducts(ctx context.Context, token string) iter.Seq2[domain.RawItem, error]
	ListInventory(ctx context.Context, token string) iter.Seq2[domain.RawItem, error]
	CreateProduct(ctx context.Context, token string, payload domain.RawItem) (string, error)
	AddProductsToCollection(ctx context.Context, token string, collectionID string, productIDs []string) error
}

// ContactsClient reads and writes CRM contacts with their labels, extended fields and attachments
type ContactsClient interface {
	ListContacts(ctx context.Context, token string) iter.Seq2[domain.RawItem, error]
	FindContactByEmail(ctx context.Context, token string, email string) (domain.RawItem, error)
	// QueryContactIDsByEmail resolves up to one page of emails; the result is keyed by lowercased email
	QueryContactIDsByEmail(ctx context.Context, token string, emails []string) (map[string]string, error)
	CreateContact(ctx context.Context, token string, payload domain.RawItem) (string, error)

	ListLabels(ctx context.Context, token string) iter.Seq2[domain.RawItem, error]
	// FindOrCreateLabel returns the destination label key for a display name
	FindOrCreateLabel(ctx context.Context, token string, displayName string) (string, error)
	ListExtendedFields(ctx context.Context, token string) iter.Seq2[domain.RawItem, error]
	FindOrCreateExtendedField(ctx context.Context, token string, displayName string, dataType string) (string, error)

	ListAttachments(ctx context.Context, token string, contactID string) ([]domain.RawItem, error)
	// AttachmentUploadURL asks the destination for a signed URL to upload one attachment to
	AttachmentUploadURL(ctx context.Context, token string, contactID string, fileName string, mimeType string) (string, error)
}

// MembersClient reads and writes site members and their social graph
type MembersClient interface {
	ListMembers(ctx context.Context, token string) iter.Seq2[domain.RawItem, error]
	CreateMember(ctx context.Context, token string, payload domain.RawItem) (string, error)

	ListBadges(ctx context.Context, token string) iter.Seq2[domain.RawItem, error]
	ListBadgeMembers(ctx context.Context, token string, badgeID string) ([]string, error)
	FindOrCreateBadge(ctx context.Context, token string, payload domain.RawItem) (string, error)
	AssignBadge(ctx context.Context, token string, badgeID string, memberIDs []string) error

	ListFollowing(ctx context.Context, token string, memberID string) ([]string, error)
	Follow(ctx context.Context, token string, memberID string, followedMemberID string) error
}

// OrdersClient reads and writes orders with their payments, refunds, fulfillments and tags
type OrdersClient interface {
	// ListOrders yields summary records; GetOrder returns the full order
	ListOrders(ctx context.Context, token string) iter.Seq2[domain.RawItem, error]
	GetOrder(ctx context.Context, token string, orderID string) (domain.RawItem, error)
	// ListTransactions returns the payments of an order, each with its embedded refunds
	ListTransactions(ctx context.Context, token string, orderID string) ([]domain.RawItem, error)
	SearchRefundsByCharge(ctx context.Context, token string, chargeID string) ([]domain.RawItem, error)
	GetRefund(ctx context.Context, token string, refundID string) (domain.RawItem, error)
	ListFulfillments(ctx context.Context, token string, orderID string) ([]domain.RawItem, error)
	ListTags(ctx context.Context, token string) iter.Seq2[domain.RawItem, error]
	FindOrCreateTag(ctx context.Context, token string, name string) (string, error)

	CreateOrder(ctx context.Context, token string, payload domain.RawItem) (string, error)
	CreateFulfillment(ctx context.Context, token string, orderID string, payload domain.RawItem) (string, error)
	// AddPayments returns the destination payment ids in input order
	AddPayments(ctx context.Context, token string, orderID string, payments []domain.RawItem) ([]string, error)
	RefundPayments(ctx context.Context, token string, orderID string, refunds []domain.RawItem) error
}

// CouponsClient reads and writes coupons
type CouponsClient interface {
	ListCoupons(ctx context.Context, token string) iter.Seq2[domain.RawItem, error]
	FindCouponByCode(ctx context.Context, token string, code string) (domain.RawItem, error)
	CreateCoupon(ctx context.Context, token string, payload domain.RawItem) (string, error)
}

// DiscountRulesClient reads and writes automatic discount rules
type DiscountRulesClient interface {
	ListDiscountRules(ctx context.Context, token string) iter.Seq2[domain.RawItem, error]
	CreateDiscountRule(ctx context.Context, token string, payload domain.RawItem) (string, error)
}

// FileImport is one file to import into the destination media manager by URL
type FileImport struct {
	ExternalID     string // Source file id, echoed back in the result
	URL            string
	DisplayName    string
	MimeType       string
	ParentFolderID string
}

// FileImportResult is the per-file outcome of a batch import
type FileImportResult struct {
	ExternalID    string
	DestinationID string
	Error         string
}

// MediaClient reads and writes media manager folders and files
type MediaClient interface {
	ListFolders(ctx context.Context, token string) iter.Seq2[domain.RawItem, error]
	ListFiles(ctx context.Context, token string, folderID string) iter.Seq2[domain.RawItem, error]
	EnsureFolder(ctx context.Context, token string, displayName string, parentFolderID string) (string, error)
	ImportFiles(ctx context.Context, token string, files []FileImport) ([]FileImportResult, error)
}

// LoyaltyClient reads and writes loyalty accounts
type LoyaltyClient interface {
	ListAccounts(ctx context.Context, token string) iter.Seq2[domain.RawItem, error]
	CreateAccount(ctx context.Context, token string, contactID string) (string, error)
	// AdjustPoints changes the balance by delta, which may be negative
	AdjustPoints(ctx context.Context, token string, accountID string, delta int) error
}

// RemoteClients groups every per-entity client of one platform
type RemoteClients struct {
	Collections   CollectionsClient
	Products      ProductsClient
	Contacts      ContactsClient
	Members       MembersClient
	Orders        OrdersClient
	Coupons       CouponsClient
	DiscountRules DiscountRulesClient
	Media         MediaClient
	Loyalty       LoyaltyClient
}
