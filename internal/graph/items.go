package graph

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Listing defaults applied when the caller does not override them.
const (
	DefaultSelect    = "id, name, size, folder, audio, video, photo, image, lastModifiedDateTime"
	DefaultPageSize  = 20
	thumbnailsExpand = "thumbnails($select=large)"
)

// DriveRoot returns the root item path of a drive: the site's default
// library when siteID is set, otherwise the signed-in user's drive.
func DriveRoot(siteID string) string {
	if siteID != "" {
		return "/sites/" + siteID + "/drive/root"
	}

	return "/me/drive/root"
}

// encodePathSegments URL-encodes each segment of a slash-separated path.
// Characters like #, ?, %, and spaces are encoded per-segment so the
// resulting path is safe for interpolation into Graph API URLs.
func encodePathSegments(path string) string {
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}

	return strings.Join(segments, "/")
}

// cleanPath trims slashes and normalizes to NFC. macOS clients send
// decomposed names; OneDrive stores composed ones.
func cleanPath(p string) string {
	return norm.NFC.String(trimSlashes(p))
}

// ItemPath addresses a drive item by its path relative to root.
// An empty path addresses root itself.
func ItemPath(root, p string) string {
	p = cleanPath(p)
	if p == "" {
		return root
	}

	return root + ":/" + encodePathSegments(p)
}

// ChildrenPath addresses the children collection of the folder at p.
func ChildrenPath(root, p string) string {
	p = cleanPath(p)
	if p == "" {
		return root + "/children"
	}

	return root + ":/" + encodePathSegments(p) + ":/children"
}

// ContentPath addresses the content stream of the file at p.
func ContentPath(root, p string) string {
	return root + ":/" + encodePathSegments(cleanPath(p)) + ":/content"
}

// SearchPath builds the OData search function call for term. Single quotes
// are doubled per OData string literal rules.
func SearchPath(root, term string) string {
	quoted := strings.ReplaceAll(norm.NFC.String(term), "'", "''")
	return root + "/search(q='" + url.PathEscape(quoted) + "')"
}

func (o ListOptions) params() map[string]string {
	sel := o.Select
	if sel == "" {
		sel = DefaultSelect
	}

	top := o.Top
	if top <= 0 {
		top = DefaultPageSize
	}

	return map[string]string{
		"$select": sel,
		"$top":    strconv.Itoa(top),
	}
}

// GetItem returns the driveItem JSON at path p below root.
func (c *Client) GetItem(ctx context.Context, token, root, p string) (json.RawMessage, error) {
	c.logger.Info("getting item", slog.String("root", root), slog.String("path", p))

	return c.API(ctx, Request{URL: ItemPath(root, p), Token: token})
}

// ListChildren returns one page of the children of folder p, with large
// thumbnails expanded.
func (c *Client) ListChildren(
	ctx context.Context, token, root, p string, opts ListOptions,
) (json.RawMessage, error) {
	c.logger.Info("listing children",
		slog.String("root", root),
		slog.String("path", p),
		slog.Int("top", opts.Top),
	)

	params := opts.params()
	params["$expand"] = thumbnailsExpand

	return c.API(ctx, Request{URL: ChildrenPath(root, p), Params: params, Token: token})
}

// Search returns one page of items below root matching term.
func (c *Client) Search(
	ctx context.Context, token, root, term string, opts ListOptions,
) (json.RawMessage, error) {
	c.logger.Info("searching drive", slog.String("root", root))

	return c.API(ctx, Request{URL: SearchPath(root, term), Params: opts.params(), Token: token})
}

// Page follows an @odata.nextLink cursor verbatim. The cursor must point at
// this client's API root so the bearer token is never sent elsewhere.
func (c *Client) Page(ctx context.Context, token, cursor string) (json.RawMessage, error) {
	if !strings.HasPrefix(cursor, c.baseURL+"/") {
		return nil, ErrForeignPage
	}

	c.logger.Info("following page cursor")

	return c.API(ctx, Request{URL: cursor, Token: token})
}

// Upload writes body as the content of file p (simple upload; Graph caps
// this at 250 MB). size is sent as Content-Length when positive; Graph
// does not accept chunked simple uploads.
func (c *Client) Upload(
	ctx context.Context, token, root, p string, body io.Reader, size int64, contentType string,
) (json.RawMessage, error) {
	if cleanPath(p) == "" {
		return nil, errors.New("graph: upload requires a file path")
	}

	c.logger.Info("uploading file",
		slog.String("root", root),
		slog.String("path", p),
		slog.Int64("size", size),
	)

	return c.API(ctx, Request{
		Method:        http.MethodPut,
		URL:           ContentPath(root, p),
		Body:          body,
		ContentType:   contentType,
		ContentLength: size,
		Token:         token,
	})
}

// Delete removes item p. Graph answers 204, so the result is
// {"status_code":204}.
func (c *Client) Delete(ctx context.Context, token, root, p string) (json.RawMessage, error) {
	if cleanPath(p) == "" {
		return nil, errors.New("graph: refusing to delete the drive root")
	}

	c.logger.Info("deleting item", slog.String("root", root), slog.String("path", p))

	return c.API(ctx, Request{Method: http.MethodDelete, URL: ItemPath(root, p), Token: token})
}
