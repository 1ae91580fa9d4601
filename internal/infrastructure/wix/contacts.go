package wix

import (
	"context"
	"iter"
	"net/http"
	"net/url"
	"strings"

	"wix-store-migrator/internal/domain"
	"wix-store-migrator/internal/ports"
)

func (c *Client) ListContacts(ctx context.Context, token string) iter.Seq2[domain.RawItem, error] {
	return c.paginate(ctx, token, pageRequest{
		op:         "contacts.list",
		method:     http.MethodGet,
		path:       "/contacts/v4/contacts",
		itemsField: "contacts",
		query:      url.Values{"fieldsets": {"FULL"}},
	})
}

func (c *Client) queryContacts(ctx context.Context, token string, filter map[string]any, limit int) ([]domain.RawItem, error) {
	body := map[string]any{
		"query": map[string]any{
			"filter": filter,
			"paging": map[string]any{"limit": limit},
		},
	}
	var resp domain.RawItem
	if err := c.do(ctx, "contacts.query", token, http.MethodPost, "/contacts/v4/contacts/query", body, &resp); err != nil {
		return nil, err
	}
	return resp.Objects("contacts"), nil
}

func (c *Client) FindContactByEmail(ctx context.Context, token string, email string) (domain.RawItem, error) {
	contacts, err := c.queryContacts(ctx, token, map[string]any{
		"info.emails.email": map[string]any{"$eq": email},
	}, 1)
	if err != nil {
		return nil, err
	}
	if len(contacts) == 0 {
		return nil, nil
	}
	return contacts[0], nil
}

func (c *Client) QueryContactIDsByEmail(ctx context.Context, token string, emails []string) (map[string]string, error) {
	out := make(map[string]string, len(emails))
	if len(emails) == 0 {
		return out, nil
	}
	contacts, err := c.queryContacts(ctx, token, map[string]any{
		"info.emails.email": map[string]any{"$in": emails},
	}, len(emails))
	if err != nil {
		return nil, err
	}
	for _, contact := range contacts {
		id := contact.String("id")
		for _, e := range contact.Objects("info.emails.items") {
			if addr := strings.ToLower(e.String("email")); addr != "" {
				if _, taken := out[addr]; !taken {
					out[addr] = id
				}
			}
		}
		if addr := strings.ToLower(contact.String("primaryInfo.email")); addr != "" {
			out[addr] = id
		}
	}
	return out, nil
}

func (c *Client) CreateContact(ctx context.Context, token string, payload domain.RawItem) (string, error) {
	body := payload.Clone()
	if _, ok := body["allowDuplicates"]; !ok {
		body["allowDuplicates"] = false
	}
	return c.createAndExtractID(ctx, "contacts.create", token, "/contacts/v4/contacts", "", body, "contact.id")
}

// Labels and extended fields

func (c *Client) ListLabels(ctx context.Context, token string) iter.Seq2[domain.RawItem, error] {
	return c.paginate(ctx, token, pageRequest{
		op:         "labels.list",
		method:     http.MethodGet,
		path:       "/contacts/v4/labels",
		itemsField: "labels",
	})
}

// FindOrCreateLabel relies on the endpoint returning the existing label when
// the display name is already taken.
func (c *Client) FindOrCreateLabel(ctx context.Context, token string, displayName string) (string, error) {
	return c.createAndExtractID(ctx, "labels.findOrCreate", token, "/contacts/v4/labels", "",
		domain.RawItem{"displayName": displayName}, "label.key")
}

func (c *Client) ListExtendedFields(ctx context.Context, token string) iter.Seq2[domain.RawItem, error] {
	return c.paginate(ctx, token, pageRequest{
		op:         "extendedFields.list",
		method:     http.MethodGet,
		path:       "/contacts/v4/extended-fields",
		itemsField: "fields",
	})
}

func (c *Client) FindOrCreateExtendedField(ctx context.Context, token string, displayName string, dataType string) (string, error) {
	body := domain.RawItem{"displayName": displayName}
	if dataType != "" {
		body["dataType"] = dataType
	}
	return c.createAndExtractID(ctx, "extendedFields.findOrCreate", token, "/contacts/v4/extended-fields", "", body, "field.key")
}

// Attachments

func (c *Client) ListAttachments(ctx context.Context, token string, contactID string) ([]domain.RawItem, error) {
	var resp domain.RawItem
	if err := c.do(ctx, "attachments.list", token, http.MethodGet,
		"/contacts/v4/attachments/"+escape(contactID), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Objects("attachments"), nil
}

func (c *Client) AttachmentUploadURL(ctx context.Context, token string, contactID string, fileName string, mimeType string) (string, error) {
	body := map[string]any{"fileName": fileName, "mimeType": mimeType}
	var resp domain.RawItem
	if err := c.do(ctx, "attachments.uploadUrl", token, http.MethodPost,
		"/contacts/v4/attachments/"+escape(contactID)+"/upload-url", body, &resp); err != nil {
		return "", err
	}
	u := resp.String("uploadUrl")
	if u == "" {
		return "", &ports.RemoteError{Op: "attachments.uploadUrl", Status: http.StatusOK, Body: "response carried no uploadUrl"}
	}
	return u, nil
}
