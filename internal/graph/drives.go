package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// driveResponse mirrors the Graph API drive JSON response.
// Unexported; callers use DriveInfo via toDriveInfo() normalization.
type driveResponse struct {
	ID    string      `json:"id"`
	Owner *ownerFacet `json:"owner"`
	Quota *quotaFacet `json:"quota"`
}

// ownerFacet represents the owner block in a Graph API drive response.
type ownerFacet struct {
	User struct {
		Email       string `json:"email"`
		DisplayName string `json:"displayName"`
	} `json:"user"`
}

// quotaFacet represents the quota block in a Graph API drive response.
type quotaFacet struct {
	Total     int64 `json:"total"`
	Used      int64 `json:"used"`
	Remaining int64 `json:"remaining"`
}

// toDriveInfo normalizes a Graph API drive response.
// Nil-safe for optional owner and quota facets.
func (d *driveResponse) toDriveInfo() DriveInfo {
	info := DriveInfo{ID: d.ID}

	if d.Owner != nil {
		info.OwnerEmail = d.Owner.User.Email
	}

	if d.Quota != nil {
		info.Total = d.Quota.Total
		info.Used = d.Quota.Used
		info.Remaining = d.Quota.Remaining
	}

	return info
}

// MyDrivePath is the drive resource of the signed-in user.
const MyDrivePath = "/me/drive"

// SiteDrivePath returns the default document library of a SharePoint site.
func SiteDrivePath(siteID string) string {
	return "/sites/" + siteID + "/drive"
}

// Drive fetches quota and owner metadata for the drive at drivePath
// (MyDrivePath or SiteDrivePath).
func (c *Client) Drive(ctx context.Context, token, drivePath string) (*DriveInfo, error) {
	c.logger.Info("fetching drive", slog.String("path", drivePath))

	raw, err := c.API(ctx, Request{URL: drivePath, Token: token})
	if err != nil {
		return nil, err
	}

	var dr driveResponse
	if err := json.Unmarshal(raw, &dr); err != nil {
		return nil, fmt.Errorf("graph: decoding drive response: %w", err)
	}

	info := dr.toDriveInfo()

	c.logger.Debug("fetched drive",
		slog.String("id", info.ID),
		slog.Int64("used", info.Used),
		slog.Int64("total", info.Total),
	)

	return &info, nil
}
