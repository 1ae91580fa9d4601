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

// RootFolderID is the platform id of the media manager root
const RootFolderID = domain.MediaRootFolderID

func (c *Client) ListFolders(ctx context.Context, token string) iter.Seq2[domain.RawItem, error] {
	return c.paginate(ctx, token, pageRequest{
		op:           "folders.search",
		method:       http.MethodPost,
		path:         "/site-media/v1/folders/search",
		itemsField:   "folders",
		cursorPaging: true,
		body: func(_ int, limit int, cursor string) any {
			paging := map[string]any{"limit": limit}
			if cursor != "" {
				paging["cursor"] = cursor
			}
			return map[string]any{"rootFolder": "MEDIA_ROOT", "paging": paging}
		},
	})
}

func (c *Client) ListFiles(ctx context.Context, token string, folderID string) iter.Seq2[domain.RawItem, error] {
	return c.paginate(ctx, token, pageRequest{
		op:           "files.list",
		method:       http.MethodGet,
		path:         "/site-media/v1/files",
		itemsField:   "files",
		cursorPaging: true,
		query:        url.Values{"parentFolderId": {folderID}},
	})
}

// EnsureFolder returns the child of parentFolderID named displayName, creating it when missing
func (c *Client) EnsureFolder(ctx context.Context, token string, displayName string, parentFolderID string) (string, error) {
	if parentFolderID == "" {
		parentFolderID = RootFolderID
	}
	for folder, err := range c.paginate(ctx, token, pageRequest{
		op:           "folders.list",
		method:       http.MethodGet,
		path:         "/site-media/v1/folders",
		itemsField:   "folders",
		cursorPaging: true,
		query:        url.Values{"parentFolderId": {parentFolderID}},
	}) {
		if err != nil {
			return "", err
		}
		if strings.EqualFold(folder.String("displayName"), displayName) {
			return folder.String("id"), nil
		}
	}
	return c.createAndExtractID(ctx, "folders.create", token, "/site-media/v1/folders", "",
		domain.RawItem{"displayName": displayName, "parentFolderId": parentFolderID}, "folder.id")
}

// ImportFiles imports a batch of files by URL. Per-file failures are reported
// in the results; only a rejected batch returns an error.
func (c *Client) ImportFiles(ctx context.Context, token string, files []ports.FileImport) ([]ports.FileImportResult, error) {
	requests := make([]any, len(files))
	for i, f := range files {
		req := map[string]any{
			"url":            f.URL,
			"displayName":    f.DisplayName,
			"parentFolderId": f.ParentFolderID,
			"externalInfo": map[string]any{
				"origin":      "store-migrator",
				"externalIds": []any{f.ExternalID},
			},
		}
		if f.MimeType != "" {
			req["mimeType"] = f.MimeType
		}
		requests[i] = req
	}

	var resp domain.RawItem
	body := map[string]any{"importFileRequests": requests, "returnEntity": true}
	if err := c.doWrite(ctx, "files.bulkImport", token, http.MethodPost, "/site-media/v1/bulk/files/import-v2", body, &resp); err != nil {
		return nil, err
	}

	results := make([]ports.FileImportResult, len(files))
	for i, f := range files {
		results[i] = ports.FileImportResult{ExternalID: f.ExternalID, Error: "no result returned for file"}
	}
	for pos, r := range resp.Objects("results") {
		idx := pos
		if _, ok := r.Get("itemMetadata.originalIndex"); ok {
			idx = r.Int("itemMetadata.originalIndex")
		}
		if idx < 0 || idx >= len(files) {
			continue
		}
		if r.Bool("itemMetadata.success") {
			results[idx].DestinationID = r.FirstString("item.id", "itemMetadata.id")
			results[idx].Error = ""
			continue
		}
		results[idx].Error = r.FirstString("itemMetadata.error.description", "itemMetadata.error.code")
		if results[idx].Error == "" {
			results[idx].Error = "import rejected"
		}
	}
	return results, nil
}
