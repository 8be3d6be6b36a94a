package server

import "strings"

// RouteKind tags the variant of a parsed request path.
type RouteKind int

const (
	// RouteDriveScoped is /{drive}/... : a listing or a single item.
	RouteDriveScoped RouteKind = iota
	// RouteFavicon is any path whose first segment mentions favicon.
	RouteFavicon
	// RouteRootRedirect is "/" or the empty path.
	RouteRootRedirect
	// RouteInit is /{drive}/init, the start of the authorize flow.
	RouteInit
	// RouteCode is /{drive}/code, the OAuth redirect callback.
	RouteCode
)

func (k RouteKind) String() string {
	switch k {
	case RouteFavicon:
		return "favicon"
	case RouteRootRedirect:
		return "root"
	case RouteInit:
		return "init"
	case RouteCode:
		return "code"
	default:
		return "drive"
	}
}

// Route is a request path parsed into its variant.
type Route struct {
	Kind RouteKind
	// Drive is the first path segment.
	Drive string
	// Rest is the path after the drive segment, without surrounding slashes.
	Rest string
	// Listing is set when the path names a folder: only the drive segment,
	// or a trailing slash.
	Listing bool
}

// ParseRoute classifies an already-decoded URL path.
func ParseRoute(path string) Route {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return Route{Kind: RouteRootRedirect}
	}

	drive, rest, hasRest := strings.Cut(trimmed, "/")

	if strings.Contains(drive, "favicon") {
		return Route{Kind: RouteFavicon}
	}

	switch rest {
	case "init":
		return Route{Kind: RouteInit, Drive: drive}
	case "code":
		return Route{Kind: RouteCode, Drive: drive}
	}

	return Route{
		Kind:    RouteDriveScoped,
		Drive:   drive,
		Rest:    rest,
		Listing: !hasRest || strings.HasSuffix(path, "/"),
	}
}
