package pipelines

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"wix-store-migrator/internal/domain"
	"wix-store-migrator/internal/ports"
)

var errNoContactIdentity = errors.New("contact has no name, email or phone")

// ContactsPipeline migrates CRM contacts oldest-first together with their
// attachments, linked site members, badges and following edges
type ContactsPipeline struct {
	base
}

// NewContactsPipeline creates a new contacts pipeline
func NewContactsPipeline(deps Deps) *ContactsPipeline {
	return &ContactsPipeline{base{entity: domain.EntityContacts, deps: deps}}
}

// contactRun holds the per-run caches of one contacts migration
type contactRun struct {
	*ContactsPipeline
	job *Job
	res *domain.EntityResult

	labelNames map[string]string        // source label key -> display name
	labelKeys  map[string]string        // display name -> destination label key
	fieldDefs  map[string]domain.RawItem // source extended field key -> definition
	fieldKeys  map[string]string        // display name -> destination field key

	membersByContact map[string]domain.RawItem // source contact id -> source member
	memberMap        map[string]string        // source member id -> destination member id
}

func (p *ContactsPipeline) Run(ctx context.Context, job *Job) domain.EntityResult {
	res := domain.NewEntityResult(p.entity)
	contactsClient := p.deps.Remote.Contacts

	r := &contactRun{
		ContactsPipeline: p,
		job:              job,
		res:              &res,
		labelNames:       make(map[string]string),
		labelKeys:        make(map[string]string),
		fieldDefs:        make(map[string]domain.RawItem),
		fieldKeys:        make(map[string]string),
		membersByContact: make(map[string]domain.RawItem),
		memberMap:        make(map[string]string),
	}

	labels, err := listAll(contactsClient.ListLabels(ctx, job.SourceToken))
	if err != nil {
		return configFailure(&res, "failed to list source labels: %w", err)
	}
	for _, l := range labels {
		r.labelNames[l.String("key")] = l.String("displayName")
	}

	fields, err := listAll(contactsClient.ListExtendedFields(ctx, job.SourceToken))
	if err != nil {
		return configFailure(&res, "failed to list source extended fields: %w", err)
	}
	for _, f := range fields {
		r.fieldDefs[f.String("key")] = f
	}

	contacts, err := listAll(contactsClient.ListContacts(ctx, job.SourceToken))
	if err != nil {
		return configFailure(&res, "failed to list source contacts: %w", err)
	}

	// a store without the members area still migrates its contacts
	members, err := listAll(p.deps.Remote.Members.ListMembers(ctx, job.SourceToken))
	if err != nil {
		res.AddError("%s: failed to list source members, member records are not migrated: %v", p.entity.DisplayName(), err)
		members = nil
	}
	for _, m := range members {
		if contactID := m.String("contactId"); contactID != "" {
			r.membersByContact[contactID] = m
		}
	}

	sortOldestFirst(contacts, contactCreatedDate)
	p.log(ctx, job, "", domain.LevelInfo, "Found %d contacts and %d members", len(contacts), len(members))

	for i, c := range contacts {
		r.migrateContact(ctx, c)
		p.progress(ctx, job, &res, i+1)
	}

	if len(members) > 0 {
		r.completeMemberMap(ctx, members)
		r.replayBadges(ctx)
		r.replayFollowing(ctx)
	}
	return res
}

func (r *contactRun) migrateContact(ctx context.Context, c domain.RawItem) {
	sourceID := c.String("id")
	email := normalizeEmail(resolveString(c, contactEmail))
	var payload domain.RawItem

	r.processItem(ctx, r.job, r.res, item{
		sourceKey: sourceID,
		desc:      domain.Descriptor{NaturalKey: email, Label: contactLabel(c, email)},
		skip: func() string {
			if !hasContactIdentity(c, email) {
				return errNoContactIdentity.Error()
			}
			return ""
		},
		prepare: func(ctx context.Context) error {
			info, err := r.contactInfo(ctx, c)
			if err != nil {
				return err
			}
			payload = domain.RawItem{"info": map[string]any(info)}
			return nil
		},
		find: func(ctx context.Context) (string, error) {
			if email == "" {
				return "", nil
			}
			existing, err := r.deps.Remote.Contacts.FindContactByEmail(ctx, r.job.DestinationToken, email)
			if err != nil || existing == nil {
				return "", err
			}
			return existing.String("id"), nil
		},
		create: func(ctx context.Context) (string, bool, error) {
			id, err := r.deps.Remote.Contacts.CreateContact(ctx, r.job.DestinationToken, payload)
			return id, false, err
		},
		record: func(destID string) {
			r.job.Remapper.Record(domain.EntityContacts, sourceID, destID)
			r.job.Remapper.Record(domain.EntityContacts, email, destID)
		},
		after: func(ctx context.Context, destID string, matched bool) []error {
			if matched {
				return nil
			}
			errs := r.copyAttachments(ctx, sourceID, destID)
			if err := r.createMember(ctx, sourceID, email); err != nil {
				errs = append(errs, err)
			}
			return errs
		},
	})
}

func hasContactIdentity(c domain.RawItem, email string) bool {
	if email != "" {
		return true
	}
	if c.FirstString("info.name.first", "info.name.last", "primaryInfo.name") != "" {
		return true
	}
	return c.FirstString("primaryInfo.phone", "info.phones.items.0.phone", "info.phones.items.0.e164Phone") != ""
}

func contactLabel(c domain.RawItem, email string) string {
	name := strings.TrimSpace(c.String("info.name.first") + " " + c.String("info.name.last"))
	if name != "" {
		return name
	}
	return email
}

// contactInfo copies the contact's info with labels and custom fields
// translated to destination keys
func (r *contactRun) contactInfo(ctx context.Context, c domain.RawItem) (domain.RawItem, error) {
	src, _ := c.Object("info")
	info := stripSystem(src, "labelKeys", "extendedFields", "locations")
	if info == nil {
		info = domain.RawItem{}
	}
	for _, list := range []string{"emails.items", "phones.items", "addresses.items"} {
		for _, entry := range info.Objects(list) {
			entry.Delete("id")
			entry.Delete("_id")
		}
	}

	var labelKeys []any
	for _, key := range src.Strings("labelKeys.items") {
		destKey, err := r.destinationLabel(ctx, key)
		if err != nil {
			return nil, err
		}
		labelKeys = append(labelKeys, destKey)
	}
	if len(labelKeys) > 0 {
		info.Set("labelKeys.items", labelKeys)
	}

	fields := map[string]any{}
	if values, ok := src.Object("extendedFields.items"); ok {
		for key, value := range values {
			if !strings.HasPrefix(key, "custom.") {
				continue
			}
			destKey, err := r.destinationField(ctx, key)
			if err != nil {
				return nil, err
			}
			fields[destKey] = value
		}
	}
	if len(fields) > 0 {
		info.Set("extendedFields.items", fields)
	}
	return info, nil
}

// destinationLabel maps a source label key; only custom labels are recreated
func (r *contactRun) destinationLabel(ctx context.Context, key string) (string, error) {
	if !strings.HasPrefix(key, "custom.") {
		return key, nil
	}
	name := r.labelNames[key]
	if name == "" {
		name = strings.TrimPrefix(key, "custom.")
	}
	if destKey, ok := r.labelKeys[name]; ok {
		return destKey, nil
	}
	destKey, err := r.deps.Remote.Contacts.FindOrCreateLabel(ctx, r.job.DestinationToken, name)
	if err != nil {
		return "", fmt.Errorf("failed to recreate label %q: %w", name, err)
	}
	r.labelKeys[name] = destKey
	return destKey, nil
}

func (r *contactRun) destinationField(ctx context.Context, key string) (string, error) {
	def := r.fieldDefs[key]
	name := def.String("displayName")
	if name == "" {
		name = strings.TrimPrefix(key, "custom.")
	}
	if destKey, ok := r.fieldKeys[name]; ok {
		return destKey, nil
	}
	destKey, err := r.deps.Remote.Contacts.FindOrCreateExtendedField(ctx, r.job.DestinationToken, name, def.String("dataType"))
	if err != nil {
		return "", fmt.Errorf("failed to recreate extended field %q: %w", name, err)
	}
	r.fieldKeys[name] = destKey
	return destKey, nil
}

func (r *contactRun) copyAttachments(ctx context.Context, sourceID, destID string) []error {
	if r.deps.Files == nil {
		return nil
	}
	attachments, err := r.deps.Remote.Contacts.ListAttachments(ctx, r.job.SourceToken, sourceID)
	if err != nil {
		return []error{fmt.Errorf("failed to list attachments: %w", err)}
	}

	var errs []error
	for _, a := range attachments {
		name := a.FirstString("fileName", "displayName", "id")
		url := a.FirstString("url", "downloadUrl", "media.url")
		if url == "" {
			errs = append(errs, fmt.Errorf("attachment %s has no download url", name))
			continue
		}
		content, contentType, err := r.deps.Files.Download(ctx, url)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to download attachment %s: %w", name, err))
			continue
		}
		if mime := a.String("mimeType"); mime != "" {
			contentType = mime
		}
		uploadURL, err := r.deps.Remote.Contacts.AttachmentUploadURL(ctx, r.job.DestinationToken, destID, name, contentType)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to request upload url for attachment %s: %w", name, err))
			continue
		}
		if err := r.deps.Files.Upload(ctx, uploadURL, content, contentType); err != nil {
			errs = append(errs, fmt.Errorf("failed to upload attachment %s: %w", name, err))
		}
	}
	return errs
}

func (r *contactRun) createMember(ctx context.Context, sourceContactID, email string) error {
	member, ok := r.membersByContact[sourceContactID]
	if !ok {
		return nil
	}
	loginEmail := member.String("loginEmail")
	if loginEmail == "" {
		loginEmail = email
	}
	payload := domain.RawItem{"loginEmail": loginEmail}
	if profile, ok := member.Object("profile"); ok {
		payload["profile"] = map[string]any(stripSystem(profile, "slug", "photo", "cover"))
	}
	if status := member.String("privacyStatus"); status != "" {
		payload["privacyStatus"] = status
	}

	destID, err := r.deps.Remote.Members.CreateMember(ctx, r.job.DestinationToken, payload)
	if err != nil {
		return fmt.Errorf("failed to create linked member: %w", err)
	}
	r.memberMap[member.String("id")] = destID
	return nil
}

// completeMemberMap links source members created by earlier runs through their
// login email
func (r *contactRun) completeMemberMap(ctx context.Context, members []domain.RawItem) {
	missing := false
	for _, m := range members {
		if _, ok := r.memberMap[m.String("id")]; !ok {
			missing = true
			break
		}
	}
	if !missing {
		return
	}

	destMembers, err := listAll(r.deps.Remote.Members.ListMembers(ctx, r.job.DestinationToken))
	if err != nil {
		r.res.AddError("%s: failed to list destination members: %v", r.entity.DisplayName(), err)
		return
	}
	byEmail := make(map[string]string, len(destMembers))
	for _, m := range destMembers {
		if e := normalizeEmail(m.String("loginEmail")); e != "" {
			byEmail[e] = m.String("id")
		}
	}
	for _, m := range members {
		id := m.String("id")
		if _, ok := r.memberMap[id]; ok {
			continue
		}
		if destID, ok := byEmail[normalizeEmail(m.String("loginEmail"))]; ok {
			r.memberMap[id] = destID
		}
	}
}

// replayBadges recreates badges and assigns them to the migrated members
func (r *contactRun) replayBadges(ctx context.Context) {
	members := r.deps.Remote.Members
	badges, err := listAll(members.ListBadges(ctx, r.job.SourceToken))
	if err != nil {
		r.res.AddError("%s: failed to list source badges: %v", r.entity.DisplayName(), err)
		return
	}

	for _, badge := range badges {
		title := badge.String("title")
		holders, err := members.ListBadgeMembers(ctx, r.job.SourceToken, badge.String("id"))
		if err != nil {
			r.res.AddError("%s: badge %q: failed to list members: %v", r.entity.DisplayName(), title, err)
			continue
		}
		destBadge, err := members.FindOrCreateBadge(ctx, r.job.DestinationToken, stripSystem(badge, "slug", "memberCount"))
		if err != nil {
			r.res.AddError("%s: badge %q: %v", r.entity.DisplayName(), title, err)
			continue
		}

		var destHolders []string
		for _, h := range holders {
			if id, ok := r.memberMap[h]; ok {
				destHolders = append(destHolders, id)
			}
		}
		if len(destHolders) == 0 {
			continue
		}
		if err := members.AssignBadge(ctx, r.job.DestinationToken, destBadge, destHolders); err != nil {
			r.res.AddError("%s: badge %q: failed to assign: %v", r.entity.DisplayName(), title, err)
		}
	}
}

// replayFollowing recreates following edges between migrated members. An edge
// that already exists is not an error.
func (r *contactRun) replayFollowing(ctx context.Context) {
	members := r.deps.Remote.Members
	sourceIDs := make([]string, 0, len(r.memberMap))
	for id := range r.memberMap {
		sourceIDs = append(sourceIDs, id)
	}
	slices.Sort(sourceIDs)

	for _, sourceID := range sourceIDs {
		following, err := members.ListFollowing(ctx, r.job.SourceToken, sourceID)
		if err != nil {
			r.res.AddError("%s: member %s: failed to list following: %v", r.entity.DisplayName(), sourceID, err)
			continue
		}
		for _, followed := range following {
			destFollowed, ok := r.memberMap[followed]
			if !ok {
				continue
			}
			err := members.Follow(ctx, r.job.DestinationToken, r.memberMap[sourceID], destFollowed)
			if err != nil && !ports.IsRemoteStatus(err, http.StatusConflict) {
				r.res.AddError("%s: member %s: failed to follow %s: %v", r.entity.DisplayName(), sourceID, followed, err)
			}
		}
	}
}
