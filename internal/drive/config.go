// Package drive owns the per-drive record: its persisted shape, the token
// lifecycle (refresh and authorization-code exchange), and the file
// operations forwarded to Graph on the drive's behalf.
package drive

import (
	"errors"
	"time"

	"github.com/tonimelisma/onedrive-proxy/internal/graph"
)

// Drive types stored in Config.DriveType.
const (
	TypeOneDrive   = "OneDrive"
	TypeSharePoint = "SharePoint"
)

// TokenLifetime is how long a freshly minted access token is trusted.
// Graph issues ~3600s tokens; the remainder is headroom.
const TokenLifetime = 3500 * time.Second

// DateLayout formats Config.UpdateDate.
const DateLayout = "2006-01-02 15:04:05"

var (
	// ErrNotFound means no record exists for the drive key.
	ErrNotFound = errors.New("drive: not found")
	// ErrNotAuthorized means the record holds no credentials yet and the
	// authorize flow has to run first.
	ErrNotAuthorized = errors.New("drive: not authorized")
)

// Config is one persisted drive record. The JSON names are the storage
// format and are shared with records written by earlier deployments.
//
// Config is passed by value; Service methods that change it return the
// updated copy.
type Config struct {
	DriveID      string `json:"driveId"`
	Name         string `json:"name"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	DriveType    string `json:"driveType"`
	SiteID       string `json:"siteId"`

	AccessToken  string `json:"access_token,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ExpiresTime  int64  `json:"expires_time,omitempty"`

	GraphDriveID string `json:"drive_id,omitempty"`
	Total        int64  `json:"total,omitempty"`
	Used         int64  `json:"used,omitempty"`
	Remaining    int64  `json:"remaining,omitempty"`
	Username     string `json:"username,omitempty"`
	UpdateDate   string `json:"update_date,omitempty"`

	RedirectURI string `json:"redirect_uri,omitempty"`
	Scope       string `json:"scope,omitempty"`
}

// RootPath is the Graph path of the drive's root folder.
func (c Config) RootPath() string {
	return graph.DriveRoot(c.SiteID)
}

// DrivePath is the Graph path of the drive resource itself, used to read
// quota and owner.
func (c Config) DrivePath() string {
	if c.DriveType == TypeOneDrive || c.SiteID == "" {
		return graph.MyDrivePath
	}

	return graph.SiteDrivePath(c.SiteID)
}

// Authenticated reports whether the record carries any credential.
func (c Config) Authenticated() bool {
	return c.AccessToken != "" || c.RefreshToken != ""
}

// Stale reports whether the access token must be refreshed before use.
func (c Config) Stale(now time.Time) bool {
	return now.Unix() >= c.ExpiresTime
}

// Expires returns ExpiresTime as a time.Time, zero when unset.
func (c Config) Expires() time.Time {
	if c.ExpiresTime == 0 {
		return time.Time{}
	}

	return time.Unix(c.ExpiresTime, 0)
}

// Redacted returns a copy with secrets masked, for display.
func (c Config) Redacted() Config {
	c.ClientSecret = mask(c.ClientSecret)
	c.AccessToken = mask(c.AccessToken)
	c.RefreshToken = mask(c.RefreshToken)

	return c
}

func mask(s string) string {
	if s == "" {
		return ""
	}

	const keep = 4
	if len(s) <= keep*2 {
		return "****"
	}

	return s[:keep] + "****" + s[len(s)-keep:]
}
