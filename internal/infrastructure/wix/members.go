package wix

import (
	"context"
	"iter"
	"net/http"
	"net/url"
	"strings"

	"wix-store-migrator/internal/domain"
)

func (c *Client) ListMembers(ctx context.Context, token string) iter.Seq2[domain.RawItem, error] {
	return c.paginate(ctx, token, pageRequest{
		op:         "members.list",
		method:     http.MethodGet,
		path:       "/members/v1/members",
		itemsField: "members",
		query:      url.Values{"fieldsets": {"FULL"}},
	})
}

func (c *Client) CreateMember(ctx context.Context, token string, payload domain.RawItem) (string, error) {
	return c.createAndExtractID(ctx, "members.create", token, "/members/v1/members", "member", payload, "member.id")
}

// Badges

func (c *Client) ListBadges(ctx context.Context, token string) iter.Seq2[domain.RawItem, error] {
	return c.paginate(ctx, token, pageRequest{
		op:         "badges.list",
		method:     http.MethodGet,
		path:       "/badges/v3/badges",
		itemsField: "badges",
	})
}

func (c *Client) ListBadgeMembers(ctx context.Context, token string, badgeID string) ([]string, error) {
	var resp domain.RawItem
	if err := c.do(ctx, "badges.members", token, http.MethodGet,
		"/badges/v3/badges/"+escape(badgeID)+"/members", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Strings("memberIds"), nil
}

// FindOrCreateBadge matches an existing badge by title before creating one
func (c *Client) FindOrCreateBadge(ctx context.Context, token string, payload domain.RawItem) (string, error) {
	title := strings.TrimSpace(payload.String("title"))
	for badge, err := range c.ListBadges(ctx, token) {
		if err != nil {
			return "", err
		}
		if title != "" && strings.EqualFold(strings.TrimSpace(badge.String("title")), title) {
			return badge.String("id"), nil
		}
	}
	return c.createAndExtractID(ctx, "badges.create", token, "/badges/v3/badges", "badge", payload, "badge.id")
}

func (c *Client) AssignBadge(ctx context.Context, token string, badgeID string, memberIDs []string) error {
	return c.do(ctx, "badges.assign", token, http.MethodPost,
		"/badges/v3/badges/"+escape(badgeID)+"/members", map[string]any{"memberIds": memberIDs}, nil)
}

// Follow graph

func (c *Client) ListFollowing(ctx context.Context, token string, memberID string) ([]string, error) {
	var ids []string
	for item, err := range c.paginate(ctx, token, pageRequest{
		op:         "followers.following",
		method:     http.MethodGet,
		path:       "/members/v3/follows/" + escape(memberID) + "/following",
		itemsField: "members",
	}) {
		if err != nil {
			return nil, err
		}
		if id := item.FirstString("id", "memberId"); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (c *Client) Follow(ctx context.Context, token string, memberID string, followedMemberID string) error {
	body := map[string]any{"memberId": memberID}
	return c.do(ctx, "followers.follow", token, http.MethodPost,
		"/members/v3/follows/"+escape(followedMemberID)+"/follow", body, nil)
}
