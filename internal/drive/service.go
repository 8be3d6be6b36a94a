package drive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tonimelisma/onedrive-proxy/internal/graph"
)

// Settings are the deployment-wide values a Service reads on every call.
type Settings struct {
	OAuth graph.OAuth
	// Select is the default $select for listings.
	Select string
	// Limit is the default $top for listings.
	Limit int
	// Location is the zone UpdateDate is written in.
	Location *time.Location
}

// DefaultLocation is UTC+8, the zone update_date has always been written in.
var DefaultLocation = time.FixedZone("UTC+8", 8*60*60)

// Service performs drive operations against Graph, refreshing tokens on
// demand and persisting the results through a Repository.
type Service struct {
	repo      *Repository
	client    *graph.Client
	settings  func() Settings
	logger    *slog.Logger
	nowFunc   func() time.Time
	refreshes singleflight.Group
}

// NewService creates a Service. settings is called once per operation so
// that reloaded configuration takes effect without a restart.
func NewService(repo *Repository, client *graph.Client, settings func() Settings, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		repo:     repo,
		client:   client,
		settings: settings,
		logger:   logger,
		nowFunc:  time.Now,
	}
}

// ListDrives returns all drive keys in ascending order.
func (s *Service) ListDrives(ctx context.Context) ([]string, error) {
	return s.repo.List(ctx)
}

// Load returns the record for key, ready for use: a stale token is
// refreshed (and persisted) before Load returns.
func (s *Service) Load(ctx context.Context, key string) (Config, error) {
	cfg, err := s.repo.Get(ctx, key)
	if err != nil {
		return Config{}, err
	}

	if !cfg.Authenticated() {
		return Config{}, fmt.Errorf("%w: %s", ErrNotAuthorized, key)
	}

	if cfg.Stale(s.nowFunc()) {
		s.logger.Info("access token stale, refreshing",
			slog.String("drive", key),
			slog.Int64("expires_time", cfg.ExpiresTime),
		)

		return s.Refresh(ctx, key, cfg)
	}

	return cfg, nil
}

// Refresh exchanges cfg's refresh token for a new access token, re-reads
// drive quota and owner, and persists the merged record under key.
// Concurrent refreshes of the same key share one exchange. The exchange is
// not tied to any one caller's cancellation: a caller whose ctx ends stops
// waiting, and the others still get the result.
func (s *Service) Refresh(ctx context.Context, key string, cfg Config) (Config, error) {
	ch := s.refreshes.DoChan(key, func() (any, error) {
		return s.refresh(context.WithoutCancel(ctx), key, cfg)
	})

	var res singleflight.Result

	select {
	case <-ctx.Done():
		return Config{}, fmt.Errorf("drive: waiting for refresh of %s: %w", key, ctx.Err())
	case res = <-ch:
	}

	if res.Err != nil {
		return Config{}, res.Err
	}

	if res.Shared {
		s.logger.Debug("joined in-flight refresh", slog.String("drive", key))
	}

	next, ok := res.Val.(Config)
	if !ok {
		return Config{}, errors.New("drive: refresh returned unexpected type")
	}

	return next, nil
}

func (s *Service) refresh(ctx context.Context, key string, cfg Config) (Config, error) {
	if cfg.RefreshToken == "" {
		return Config{}, fmt.Errorf("%w: %s has no refresh token", ErrNotAuthorized, key)
	}

	set := s.settings()
	o := oauthFor(set.OAuth, cfg)

	tok, _, err := s.client.RequestToken(ctx, o, o.RefreshForm(cfg.ClientID, cfg.ClientSecret, cfg.RefreshToken))
	if err != nil {
		return Config{}, fmt.Errorf("drive: refreshing token for %s: %w", key, err)
	}

	next := s.applyToken(cfg, tok, set.Location)

	info, err := s.client.Drive(ctx, next.AccessToken, next.DrivePath())
	if err != nil {
		return Config{}, fmt.Errorf("drive: fetching drive metadata for %s: %w", key, err)
	}

	next.GraphDriveID = info.ID
	next.Total = info.Total
	next.Used = info.Used
	next.Remaining = info.Remaining
	next.Username = info.OwnerEmail

	if err := s.repo.Put(ctx, key, next); err != nil {
		return Config{}, err
	}

	s.logger.Info("token refreshed",
		slog.String("drive", key),
		slog.Int64("expires_time", next.ExpiresTime),
		slog.Bool("rotated_refresh_token", tok.RefreshToken != ""),
	)

	return next, nil
}

// applyToken returns cfg updated with a token-endpoint response. The old
// refresh token is kept when the response omits one.
func (s *Service) applyToken(cfg Config, tok *graph.TokenResponse, loc *time.Location) Config {
	if loc == nil {
		loc = DefaultLocation
	}

	now := s.nowFunc()

	cfg.AccessToken = tok.AccessToken
	cfg.ExpiresTime = now.Add(TokenLifetime).Unix()
	cfg.UpdateDate = now.In(loc).Format(DateLayout)

	if tok.RefreshToken != "" {
		cfg.RefreshToken = tok.RefreshToken
	}

	return cfg
}

// oauthFor applies the redirect URI and scope recorded at authorize time,
// so the token exchange matches the consent request.
func oauthFor(base graph.OAuth, cfg Config) graph.OAuth {
	if cfg.RedirectURI != "" {
		base.RedirectURI = cfg.RedirectURI
	}

	if scopes := strings.Fields(cfg.Scope); len(scopes) > 0 {
		base.Scopes = scopes
	}

	return base
}

// AuthorizeParams are the inputs of the authorize step.
type AuthorizeParams struct {
	// ID is the drive key being authorized.
	ID           string
	Name         string
	ClientID     string
	ClientSecret string
	// DriveType defaults to TypeOneDrive.
	DriveType string
}

// Authorize returns the consent URL for drive p.ID. When p carries a full
// set of credentials a new record is stored first. The consent response is
// routed back to {host}/{id}/code via the state parameter.
func (s *Service) Authorize(ctx context.Context, host string, p AuthorizeParams) (string, error) {
	if p.ID == "" {
		return "", errors.New("drive: authorize requires a drive id")
	}

	o := s.settings().OAuth
	clientID := p.ClientID

	if p.ClientID != "" && p.ClientSecret != "" {
		driveType := p.DriveType
		if driveType == "" {
			driveType = TypeOneDrive
		}

		cfg := Config{
			DriveID:      p.ID,
			Name:         p.Name,
			ClientID:     p.ClientID,
			ClientSecret: p.ClientSecret,
			DriveType:    driveType,
			RedirectURI:  o.RedirectURI,
			Scope:        o.Scope(),
		}

		if err := s.repo.Put(ctx, p.ID, cfg); err != nil {
			return "", err
		}

		s.logger.Info("registered drive",
			slog.String("drive", p.ID),
			slog.String("drive_type", driveType),
		)
	} else {
		stored, err := s.repo.Get(ctx, p.ID)

		switch {
		case err == nil:
			if stored.ClientID != "" {
				clientID = stored.ClientID
			}

			o = oauthFor(o, stored)
		case !errors.Is(err, ErrNotFound):
			return "", err
		}
	}

	if clientID == "" {
		return "", fmt.Errorf("drive: authorize %s: client_id is required", p.ID)
	}

	return o.AuthCodeURL(clientID, host+"/"+p.ID+"/code"), nil
}

// AuthorizeToken exchanges an authorization code for the first token pair
// of drive key and persists it. It returns the raw token payload.
func (s *Service) AuthorizeToken(ctx context.Context, key, code string) (json.RawMessage, error) {
	if code == "" {
		return nil, fmt.Errorf("drive: authorize %s: missing code", key)
	}

	cfg, err := s.repo.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	set := s.settings()
	o := oauthFor(set.OAuth, cfg)

	tok, raw, err := s.client.RequestToken(ctx, o, o.CodeForm(cfg.ClientID, cfg.ClientSecret, code))
	if err != nil {
		return nil, fmt.Errorf("drive: exchanging code for %s: %w", key, err)
	}

	next := s.applyToken(cfg, tok, set.Location)
	if err := s.repo.Put(ctx, key, next); err != nil {
		return nil, err
	}

	s.logger.Info("drive authorized", slog.String("drive", key))

	return raw, nil
}

// GetFile returns the item metadata at path.
func (s *Service) GetFile(ctx context.Context, cfg Config, path string) (json.RawMessage, error) {
	return s.client.GetItem(ctx, cfg.AccessToken, cfg.RootPath(), path)
}

// Upload writes body to path, creating or replacing the file. size is the
// body length in bytes, or -1 when unknown.
func (s *Service) Upload(
	ctx context.Context, cfg Config, path string, body io.Reader, size int64, contentType string,
) (json.RawMessage, error) {
	return s.client.Upload(ctx, cfg.AccessToken, cfg.RootPath(), path, body, size, contentType)
}

// DeleteFile removes the item at path.
func (s *Service) DeleteFile(ctx context.Context, cfg Config, path string) (json.RawMessage, error) {
	return s.client.Delete(ctx, cfg.AccessToken, cfg.RootPath(), path)
}

// ListMode is the listing strategy chosen for a ListQuery.
type ListMode int

const (
	ListChildren ListMode = iota
	ListSearch
	ListPage
)

func (m ListMode) String() string {
	switch m {
	case ListPage:
		return "page"
	case ListSearch:
		return "search"
	default:
		return "children"
	}
}

// ListQuery describes one listing request.
type ListQuery struct {
	// Path is the folder, relative to the drive root.
	Path string
	// Page is a continuation cursor from a previous response.
	Page string
	// Search is a search term.
	Search string
	// Fields overrides the default $select.
	Fields string
	// Limit overrides the default $top.
	Limit int
}

// Mode picks exactly one strategy: a cursor wins over a search term, which
// wins over a children listing.
func (q ListQuery) Mode() ListMode {
	switch {
	case q.Page != "":
		return ListPage
	case q.Search != "":
		return ListSearch
	default:
		return ListChildren
	}
}

// ListFiles returns one page of a folder listing, a search, or a
// continuation page, per q.Mode.
func (s *Service) ListFiles(ctx context.Context, cfg Config, q ListQuery) (json.RawMessage, error) {
	set := s.settings()

	opts := graph.ListOptions{Select: set.Select, Top: set.Limit}
	if q.Fields != "" {
		opts.Select = q.Fields
	}

	if q.Limit > 0 {
		opts.Top = q.Limit
	}

	switch q.Mode() {
	case ListPage:
		return s.client.Page(ctx, cfg.AccessToken, q.Page)
	case ListSearch:
		return s.client.Search(ctx, cfg.AccessToken, cfg.RootPath(), q.Search, opts)
	default:
		return s.client.ListChildren(ctx, cfg.AccessToken, cfg.RootPath(), q.Path, opts)
	}
}
