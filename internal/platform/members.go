package platform

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/opentab/possync/internal/entity"
)

// GetMember fetches one loyalty member.
func (c *Client) GetMember(ctx context.Context, id string) (entity.Member, error) {
	var out entity.Member
	err := c.do(ctx, http.MethodGet, "/members/"+url.PathEscape(id), nil, &out)
	return out, err
}

// UpdateMember pushes a member mutation with its last observed version.
func (c *Client) UpdateMember(ctx context.Context, m entity.Member) (entity.Member, error) {
	if m.ID == "" {
		return entity.Member{}, fmt.Errorf("platform: update member: missing id")
	}
	var out entity.Member
	err := c.do(ctx, http.MethodPut, "/members/"+url.PathEscape(m.ID), m, &out)
	return out, err
}

// ListRewards fetches the rewards a member can redeem.
func (c *Client) ListRewards(ctx context.Context, memberID string) ([]entity.Reward, error) {
	var out []entity.Reward
	err := c.do(ctx, http.MethodGet, "/members/"+url.PathEscape(memberID)+"/rewards", nil, &out)
	return out, err
}

// rewardClaim echoes the reward version on the claim call.
type rewardClaim struct {
	Version string `json:"version,omitempty"`
}

// ClaimReward claims a redeemed reward against the platform. Called only
// after the order carrying the redemption has been pushed successfully.
func (c *Client) ClaimReward(ctx context.Context, memberID, rewardID, version string) error {
	path := "/members/" + url.PathEscape(memberID) + "/rewards/" + url.PathEscape(rewardID) + "/claim"
	return c.do(ctx, http.MethodPost, path, rewardClaim{Version: version}, nil)
}
