package pipelines

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"

	"wix-store-migrator/internal/domain"
	"wix-store-migrator/internal/ports"
)

// mediaImportBatch is the number of files imported per request
const mediaImportBatch = 50

func folderKey(id string) string { return "folder:" + id }
func fileKey(id string) string   { return "file:" + id }

// MediaPipeline migrates media manager folders and files. Every folder and file
// is logged pending before anything is imported, so an export-only run leaves a
// complete inventory for a later import to claim.
type MediaPipeline struct {
	base
}

// NewMediaPipeline creates a new media pipeline
func NewMediaPipeline(deps Deps) *MediaPipeline {
	return &MediaPipeline{base{entity: domain.EntityMedia, deps: deps}}
}

type mediaFolder struct {
	id      string
	parent  string
	name    string
	files   []domain.RawItem
	listErr error
	entry   *domain.LedgerEntry
}

type mediaRun struct {
	*MediaPipeline
	job     *Job
	res     *domain.EntityResult
	folders map[string]*mediaFolder
	files   map[string]*domain.LedgerEntry // source file id -> ledger row
}

func (p *MediaPipeline) Run(ctx context.Context, job *Job) domain.EntityResult {
	res := domain.NewEntityResult(p.entity)
	r := &mediaRun{
		MediaPipeline: p,
		job:           job,
		res:           &res,
		folders:       make(map[string]*mediaFolder),
		files:         make(map[string]*domain.LedgerEntry),
	}

	if err := r.inventory(ctx); err != nil {
		return configFailure(&res, "%w", err)
	}
	if job.ExportOnly() {
		return res
	}
	r.importAll(ctx)
	return res
}

// inventory lists every folder and file and logs them pending
func (r *mediaRun) inventory(ctx context.Context) error {
	media := r.deps.Remote.Media
	listed, err := listAll(media.ListFolders(ctx, r.job.SourceToken))
	if err != nil {
		return fmt.Errorf("failed to list source folders: %w", err)
	}
	root := domain.RawItem{"id": domain.MediaRootFolderID, "displayName": "Media root"}
	for _, f := range append([]domain.RawItem{root}, listed...) {
		id := f.String("id")
		if _, dup := r.folders[id]; dup || id == "" {
			continue
		}
		parent := f.String("parentFolderId")
		if id == domain.MediaRootFolderID {
			parent = ""
		} else if parent == "" {
			parent = domain.MediaRootFolderID
		}
		r.folders[id] = &mediaFolder{id: id, parent: parent, name: f.String("displayName")}
	}

	var fileCount int
	for _, folder := range r.ordered() {
		folder.files, folder.listErr = listAll(media.ListFiles(ctx, r.job.SourceToken, folder.id))
		if folder.listErr != nil {
			r.res.AddError("%s: folder %s: failed to list files: %v", r.entity.DisplayName(), folder.name, folder.listErr)
		}

		desc := domain.Descriptor{Label: folder.name}
		if folder.parent != "" {
			desc.ParentKey = folderKey(folder.parent)
		}
		folder.entry = r.upsert(ctx, folderKey(folder.id), desc)

		for _, file := range folder.files {
			id := file.String("id")
			r.files[id] = r.upsert(ctx, fileKey(id), domain.Descriptor{
				NaturalKey: file.String("url"),
				Label:      file.String("displayName"),
				ParentKey:  folderKey(folder.id),
			})
			fileCount++
		}
	}
	r.log(ctx, r.job, "", domain.LevelInfo, "Logged %d folders and %d files", len(r.folders), fileCount)
	return nil
}

// upsert logs one row pending. A nil entry means the ledger rejected it.
func (r *mediaRun) upsert(ctx context.Context, sourceKey string, desc domain.Descriptor) *domain.LedgerEntry {
	entry, err := r.deps.Ledger.UpsertPending(ctx, r.key(r.job, sourceKey), desc)
	if err != nil {
		r.res.AddError("%s %s: ledger unavailable: %v", r.entity.DisplayName(), sourceKey, err)
		return nil
	}
	if r.job.ExportOnly() && !entry.IsSuccess() {
		r.res.Exported++
	}
	return entry
}

// ordered returns folders parent first, siblings ordered by id
func (r *mediaRun) ordered() []*mediaFolder {
	depth := make(map[string]int, len(r.folders))
	var depthOf func(id string, seen int) int
	depthOf = func(id string, seen int) int {
		if d, ok := depth[id]; ok {
			return d
		}
		f, ok := r.folders[id]
		if !ok || f.parent == "" || seen > len(r.folders) {
			return 0
		}
		d := depthOf(f.parent, seen+1) + 1
		depth[id] = d
		return d
	}

	out := make([]*mediaFolder, 0, len(r.folders))
	for _, f := range r.folders {
		depthOf(f.id, 0)
		out = append(out, f)
	}
	slices.SortStableFunc(out, func(a, b *mediaFolder) int {
		if c := cmp.Compare(depth[a.id], depth[b.id]); c != 0 {
			return c
		}
		return cmp.Compare(a.id, b.id)
	})
	return out
}

func (r *mediaRun) importAll(ctx context.Context) {
	destFolders := map[string]string{domain.MediaRootFolderID: domain.MediaRootFolderID}
	ordered := r.ordered()

	for _, folder := range ordered {
		if folder.id == domain.MediaRootFolderID {
			continue
		}
		if folder.entry.IsSuccess() {
			destFolders[folder.id] = folder.entry.DestinationID
			continue
		}
		destParent, ok := destFolders[folder.parent]
		if !ok {
			r.failFolder(ctx, folder, fmt.Sprintf("parent folder %s was not migrated", folder.parent))
			continue
		}
		destID, err := r.deps.Remote.Media.EnsureFolder(ctx, r.job.DestinationToken, folder.name, destParent)
		if err != nil {
			r.failFolder(ctx, folder, failureMessage(err))
			continue
		}
		destFolders[folder.id] = destID
	}

	var seen int
	for _, folder := range ordered {
		destID, ok := destFolders[folder.id]
		if !ok {
			continue
		}
		failed := r.importFiles(ctx, folder, destID)
		r.settleFolder(ctx, folder, destID, failed)
		seen += len(folder.files)
		r.progress(ctx, r.job, r.res, seen)
	}
}

// importFiles imports the folder's pending files and returns the names of
// files that are not in the destination afterwards
func (r *mediaRun) importFiles(ctx context.Context, folder *mediaFolder, destFolderID string) []string {
	var failed []string
	var pending []ports.FileImport
	names := make(map[string]string)

	for _, file := range folder.files {
		id := file.String("id")
		name := file.FirstString("displayName", "id")
		entry := r.files[id]
		switch {
		case entry == nil:
			failed = append(failed, name)
		case entry.IsSuccess():
			r.res.AlreadyMigrated++
			r.itemProcessed(domain.StatusSuccess)
		default:
			names[id] = name
			pending = append(pending, ports.FileImport{
				ExternalID:     id,
				URL:            file.String("url"),
				DisplayName:    file.String("displayName"),
				MimeType:       file.String("mimeType"),
				ParentFolderID: destFolderID,
			})
		}
	}

	for start := 0; start < len(pending); start += mediaImportBatch {
		batch := pending[start:min(start+mediaImportBatch, len(pending))]
		results, err := r.deps.Remote.Media.ImportFiles(ctx, r.job.DestinationToken, batch)
		if err != nil {
			msg := failureMessage(err)
			for _, f := range batch {
				r.fail(ctx, r.job, r.res, r.key(r.job, fileKey(f.ExternalID)), names[f.ExternalID], msg)
				failed = append(failed, names[f.ExternalID])
			}
			continue
		}
		answered := make(map[string]bool, len(batch))
		for _, result := range results {
			name, ok := names[result.ExternalID]
			if !ok || answered[result.ExternalID] {
				continue
			}
			answered[result.ExternalID] = true
			if result.Error != "" || result.DestinationID == "" {
				msg := result.Error
				if msg == "" {
					msg = "import returned no file id"
				}
				r.fail(ctx, r.job, r.res, r.key(r.job, fileKey(result.ExternalID)), name, msg)
				failed = append(failed, name)
				continue
			}
			r.mark(ctx, r.key(r.job, fileKey(result.ExternalID)), domain.LedgerResult{
				DestinationID: result.DestinationID,
				Status:        domain.StatusSuccess,
			})
			r.res.Imported++
			r.itemProcessed(domain.StatusSuccess)
			r.log(ctx, r.job, fileKey(result.ExternalID), domain.LevelSuccess, "Imported %s", name)
		}
		for _, f := range batch {
			if answered[f.ExternalID] {
				continue
			}
			r.fail(ctx, r.job, r.res, r.key(r.job, fileKey(f.ExternalID)), names[f.ExternalID], "import returned no result for this file")
			failed = append(failed, names[f.ExternalID])
		}
	}
	return failed
}

// settleFolder marks a folder success only when every one of its files made it
func (r *mediaRun) settleFolder(ctx context.Context, folder *mediaFolder, destID string, failedFiles []string) {
	if folder.entry == nil {
		return
	}
	if folder.entry.IsSuccess() {
		r.res.AlreadyMigrated++
		r.itemProcessed(domain.StatusSuccess)
		return
	}
	key := r.key(r.job, folderKey(folder.id))
	switch {
	case folder.listErr != nil:
		r.fail(ctx, r.job, r.res, key, folder.name, "failed to list files: "+failureMessage(folder.listErr))
	case len(failedFiles) > 0:
		r.fail(ctx, r.job, r.res, key, folder.name, "failed files: "+strings.Join(failedFiles, ", "))
	default:
		r.mark(ctx, key, domain.LedgerResult{DestinationID: destID, Status: domain.StatusSuccess})
		r.res.Imported++
		r.itemProcessed(domain.StatusSuccess)
		r.log(ctx, r.job, key.SourceKey, domain.LevelSuccess, "Imported folder %s", folder.name)
	}
}

// failFolder fails a folder that could not be created along with its files
func (r *mediaRun) failFolder(ctx context.Context, folder *mediaFolder, msg string) {
	r.fail(ctx, r.job, r.res, r.key(r.job, folderKey(folder.id)), folder.name, msg)
	for _, file := range folder.files {
		id := file.String("id")
		if entry := r.files[id]; entry == nil || entry.IsSuccess() {
			continue
		}
		r.fail(ctx, r.job, r.res, r.key(r.job, fileKey(id)), file.FirstString("displayName", "id"), "folder "+folder.name+" was not migrated")
	}
}
