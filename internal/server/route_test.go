package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRoute(t *testing.T) {
	tests := []struct {
		path string
		want Route
	}{
		{"", Route{Kind: RouteRootRedirect}},
		{"/", Route{Kind: RouteRootRedirect}},
		{"//", Route{Kind: RouteRootRedirect}},
		{"/favicon.ico", Route{Kind: RouteFavicon}},
		{"/favicon-32.png/x", Route{Kind: RouteFavicon}},
		{"/d1/init", Route{Kind: RouteInit, Drive: "d1"}},
		{"/d1/init/", Route{Kind: RouteInit, Drive: "d1"}},
		{"/d1/code", Route{Kind: RouteCode, Drive: "d1"}},
		{"/d1", Route{Kind: RouteDriveScoped, Drive: "d1", Listing: true}},
		{"/d1/", Route{Kind: RouteDriveScoped, Drive: "d1", Listing: true}},
		{"/d1/docs/", Route{Kind: RouteDriveScoped, Drive: "d1", Rest: "docs", Listing: true}},
		{"/d1/docs/a.txt", Route{Kind: RouteDriveScoped, Drive: "d1", Rest: "docs/a.txt"}},
		{"/d1/docs/init", Route{Kind: RouteDriveScoped, Drive: "d1", Rest: "docs/init"}},
		{"/d1/sub/init", Route{Kind: RouteDriveScoped, Drive: "d1", Rest: "sub/init"}},
		{"/d1/sub/code/", Route{Kind: RouteDriveScoped, Drive: "d1", Rest: "sub/code", Listing: true}},
		{"/d1/initial.txt", Route{Kind: RouteDriveScoped, Drive: "d1", Rest: "initial.txt"}},
		{"/d1/barcode/", Route{Kind: RouteDriveScoped, Drive: "d1", Rest: "barcode", Listing: true}},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseRoute(tt.path))
		})
	}
}

func TestRouteKind_String(t *testing.T) {
	assert.Equal(t, "init", RouteInit.String())
	assert.Equal(t, "drive", RouteDriveScoped.String())
	assert.Equal(t, "favicon", RouteFavicon.String())
}
