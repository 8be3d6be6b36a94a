// Package server exposes drives over HTTP. Every request is parsed into a
// Route, dispatched to the drive service, and answered with a JSON envelope
// or a redirect.
package server

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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/tonimelisma/onedrive-proxy/internal/drive"
)

// Routing variants.
const (
	ModeMulti  = "multi"
	ModeSingle = "single"
)

// Query actions on drive-scoped item paths.
const (
	actionUpload = "upload"
	actionDelete = "delete"
)

// ErrNoDrive is reported at the root when no drive is registered.
var ErrNoDrive = errors.New("No Drive") //nolint:revive,staticcheck // wire-visible message

// Service is the drive functionality the handler dispatches to.
type Service interface {
	ListDrives(ctx context.Context) ([]string, error)
	Load(ctx context.Context, key string) (drive.Config, error)
	Authorize(ctx context.Context, host string, p drive.AuthorizeParams) (string, error)
	AuthorizeToken(ctx context.Context, key, code string) (json.RawMessage, error)
	GetFile(ctx context.Context, cfg drive.Config, path string) (json.RawMessage, error)
	Upload(
		ctx context.Context, cfg drive.Config, path string, body io.Reader, size int64, contentType string,
	) (json.RawMessage, error)
	DeleteFile(ctx context.Context, cfg drive.Config, path string) (json.RawMessage, error)
	ListFiles(ctx context.Context, cfg drive.Config, q drive.ListQuery) (json.RawMessage, error)
}

// Settings are read on every request so a config reload takes effect
// immediately.
type Settings struct {
	Mode string
	// Drive is the fixed drive key in single mode.
	Drive      string
	FaviconURL string
}

// CORSConfig enables cross-origin requests. It is applied when the router
// is built.
type CORSConfig struct {
	Enabled          bool
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           int
}

// HandlerConfig configures a Handler.
type HandlerConfig struct {
	Settings func() Settings
	CORS     CORSConfig
}

// Handler serves the proxy's HTTP surface.
type Handler struct {
	config  HandlerConfig
	service Service
	logger  *slog.Logger
}

// NewHandler creates a Handler over service.
func NewHandler(config *HandlerConfig, service Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{
		config:  *config,
		service: service,
		logger:  logger,
	}
}

// Router returns an http.Handler with middleware and the catch-all route.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(RequestLogger(h.logger))
	r.Use(middleware.Recoverer)

	if h.config.CORS.Enabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   h.config.CORS.AllowedOrigins,
			AllowedMethods:   h.config.CORS.AllowedMethods,
			AllowedHeaders:   h.config.CORS.AllowedHeaders,
			ExposedHeaders:   h.config.CORS.ExposedHeaders,
			AllowCredentials: h.config.CORS.AllowCredentials,
			MaxAge:           h.config.CORS.MaxAge,
		}))
	}

	r.HandleFunc("/*", h.ServeHTTP)

	return r
}

// ServeHTTP dispatches one request according to the configured mode.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	set := h.config.Settings()

	if set.Mode == ModeSingle {
		h.serveSingle(w, r, set)
		return
	}

	h.serveMulti(w, r, set)
}

func (h *Handler) serveMulti(w http.ResponseWriter, r *http.Request, set Settings) {
	route := ParseRoute(r.URL.Path)

	switch route.Kind {
	case RouteFavicon:
		http.Redirect(w, r, set.FaviconURL, http.StatusMovedPermanently)
	case RouteRootRedirect:
		h.handleRoot(w, r)
	case RouteInit:
		h.handleInit(w, r, route)
	case RouteCode:
		h.handleCode(w, r, route)
	default:
		h.handleDrive(w, r, route)
	}
}

func (h *Handler) handleRoot(w http.ResponseWriter, r *http.Request) {
	keys, err := h.service.ListDrives(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}

	if len(keys) == 0 {
		h.fail(w, r, ErrNoDrive)
		return
	}

	http.Redirect(w, r, "/"+url.PathEscape(keys[0])+"/", http.StatusFound)
}

func (h *Handler) handleInit(w http.ResponseWriter, r *http.Request, route Route) {
	q := r.URL.Query()

	id := q.Get("id")
	if id == "" {
		id = route.Drive
	}

	authURL, err := h.service.Authorize(r.Context(), origin(r), drive.AuthorizeParams{
		ID:           id,
		Name:         q.Get("name"),
		ClientID:     q.Get("client_id"),
		ClientSecret: q.Get("client_secret"),
		DriveType:    q.Get("drive_type"),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	WriteOK(w, authURL)
}

func (h *Handler) handleCode(w http.ResponseWriter, r *http.Request, route Route) {
	data, err := h.service.AuthorizeToken(r.Context(), route.Drive, r.URL.Query().Get("code"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	WriteOK(w, data)
}

func (h *Handler) handleDrive(w http.ResponseWriter, r *http.Request, route Route) {
	ctx := r.Context()

	cfg, err := h.service.Load(ctx, route.Drive)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	q := r.URL.Query()

	var data json.RawMessage

	switch action := q.Get("a"); {
	case action == actionUpload:
		data, err = h.service.Upload(ctx, cfg, target(q, route.Rest), r.Body, r.ContentLength, r.Header.Get("Content-Type"))
	case action == actionDelete:
		data, err = h.service.DeleteFile(ctx, cfg, target(q, route.Rest))
	case route.Listing:
		data, err = h.service.ListFiles(ctx, cfg, listQuery(r, route))
	default:
		data, err = h.service.GetFile(ctx, cfg, route.Rest)
	}

	if err != nil {
		h.fail(w, r, err)
		return
	}

	WriteOK(w, data)
}

// serveSingle handles the single-drive variant: uploads to filePath, and
// item lookups by path. Listing, deletion and authorization are not
// exposed.
func (h *Handler) serveSingle(w http.ResponseWriter, r *http.Request, set Settings) {
	path := strings.Trim(r.URL.Path, "/")

	first, _, _ := strings.Cut(path, "/")
	if strings.Contains(first, "favicon") {
		http.Redirect(w, r, set.FaviconURL, http.StatusMovedPermanently)
		return
	}

	ctx := r.Context()

	cfg, err := h.service.Load(ctx, set.Drive)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	q := r.URL.Query()

	if q.Get("a") == actionUpload {
		data, err := h.service.Upload(ctx, cfg, q.Get("filePath"), r.Body, r.ContentLength, r.Header.Get("Content-Type"))
		if err != nil {
			h.fail(w, r, err)
			return
		}

		WriteOK(w, data)

		return
	}

	if path == "" {
		WriteOK(w, struct{}{})
		return
	}

	data, err := h.service.GetFile(ctx, cfg, path)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	WriteOK(w, data)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	h.logger.Warn("request failed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("request_id", RequestIDFrom(r.Context())),
		slog.String("error", err.Error()),
	)

	WriteError(w, err)
}

// target is the filePath query parameter when set, otherwise the path.
func target(q url.Values, rest string) string {
	if fp := q.Get("filePath"); fp != "" {
		return fp
	}

	return rest
}

func listQuery(r *http.Request, route Route) drive.ListQuery {
	q := r.URL.Query()

	lq := drive.ListQuery{
		Path:   route.Rest,
		Page:   r.Header.Get("page"),
		Search: q.Get("wd"),
		Fields: q.Get("fields"),
	}

	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		lq.Limit = n
	}

	return lq
}

// origin reconstructs scheme://host of the incoming request.
func origin(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}

	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme, _, _ = strings.Cut(fwd, ",")
		scheme = strings.TrimSpace(scheme)
	}

	return scheme + "://" + r.Host
}
