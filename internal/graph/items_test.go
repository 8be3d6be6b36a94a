package graph

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriveRoot(t *testing.T) {
	assert.Equal(t, "/me/drive/root", DriveRoot(""))
	assert.Equal(t, "/sites/s1/drive/root", DriveRoot("s1"))
}

func TestPathBuilders(t *testing.T) {
	root := DriveRoot("")

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"item root", ItemPath(root, "/"), "/me/drive/root"},
		{"item nested", ItemPath(root, "/docs/a b.txt"), "/me/drive/root:/docs/a%20b.txt"},
		{"item hash", ItemPath(root, "x#1"), "/me/drive/root:/x%231"},
		{"children root", ChildrenPath(root, ""), "/me/drive/root/children"},
		{"children slash", ChildrenPath(root, "/"), "/me/drive/root/children"},
		{"children nested", ChildrenPath(root, "/docs/"), "/me/drive/root:/docs:/children"},
		{"content", ContentPath(root, "docs/a.txt"), "/me/drive/root:/docs/a.txt:/content"},
		{"search", SearchPath(root, "report"), "/me/drive/root/search(q='report')"},
		{"search quote", SearchPath(root, "it's"), "/me/drive/root/search(q='it%27%27s')"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestItemPath_NFC(t *testing.T) {
	// "e" + combining acute accent composes to U+00E9.
	assert.Equal(t, ItemPath("/r", "\u00e9"), ItemPath("/r", "e\u0301"))
}

func TestListChildren_Params(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sites/s1/drive/root:/docs:/children", r.URL.Path)

		q := r.URL.Query()
		assert.Equal(t, DefaultSelect, q.Get("$select"))
		assert.Equal(t, "20", q.Get("$top"))
		assert.Equal(t, "thumbnails($select=large)", q.Get("$expand"))

		_, _ = w.Write([]byte(`{"value":[{"name":"a"}]}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	raw, err := client.ListChildren(context.Background(), "tok", DriveRoot("s1"), "docs", ListOptions{})
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":[{"name":"a"}]}`, string(raw))
}

func TestSearch_Params(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/me/drive/root/search(q='wd')", r.URL.Path)
		assert.Equal(t, "id,name", r.URL.Query().Get("$select"))
		assert.Equal(t, "7", r.URL.Query().Get("$top"))
		assert.Empty(t, r.URL.Query().Get("$expand"))
		_, _ = w.Write([]byte(`{"value":[]}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.Search(context.Background(), "tok", DriveRoot(""), "wd", ListOptions{Select: "id,name", Top: 7})
	require.NoError(t, err)
}

func TestPage_FollowsCursorVerbatim(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/me/drive/root/children", r.URL.Path)
		assert.Equal(t, "abc", r.URL.Query().Get("$skiptoken"))
		assert.Empty(t, r.URL.Query().Get("$select"))
		_, _ = w.Write([]byte(`{"value":[]}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.Page(context.Background(), "tok", srv.URL+"/me/drive/root/children?$skiptoken=abc")
	require.NoError(t, err)
}

func TestPage_RejectsForeignHost(t *testing.T) {
	client := newTestClient(t, "https://graph.microsoft.com/v1.0")

	_, err := client.Page(context.Background(), "tok", "https://evil.example/steal")
	assert.ErrorIs(t, err, ErrForeignPage)

	_, err = client.Page(context.Background(), "tok", "https://graph.microsoft.com/v1.0.evil.example/x")
	assert.ErrorIs(t, err, ErrForeignPage)
}

func TestGetItem(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/me/drive/root:/a/b.txt", r.URL.Path)
		_, _ = w.Write([]byte(`{"name":"b.txt"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	raw, err := client.GetItem(context.Background(), "tok", DriveRoot(""), "/a/b.txt")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"b.txt"}`, string(raw))
}

func TestUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/me/drive/root:/up/f.txt:/content", r.URL.Path)
		assert.Equal(t, "text/plain", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Equal(t, "hello", string(body))

		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"f"}`))
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	raw, err := client.Upload(context.Background(), "tok", DriveRoot(""), "up/f.txt", strings.NewReader("hello"), 5, "text/plain")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"f"}`, string(raw))
}

func TestUpload_OpaqueBodySendsContentLength(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, int64(11), r.ContentLength)
		assert.Empty(t, r.TransferEncoding)
		assert.Equal(t, "11", r.Header.Get("Content-Length"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Equal(t, "hello world", string(body))

		_, _ = w.Write([]byte(`{"id":"f"}`))
	}))
	defer srv.Close()

	// An io.NopCloser hides the length, like an incoming request body.
	body := io.NopCloser(strings.NewReader("hello world"))

	client := newTestClient(t, srv.URL)
	_, err := client.Upload(context.Background(), "tok", DriveRoot(""), "f.txt", body, 11, "")
	require.NoError(t, err)
}

func TestUpload_EmptyPath(t *testing.T) {
	client := newTestClient(t, "https://graph.invalid")

	_, err := client.Upload(context.Background(), "tok", DriveRoot(""), "/", strings.NewReader("x"), 1, "")
	assert.Error(t, err)
}

func TestDelete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/me/drive/root:/old.txt", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	raw, err := client.Delete(context.Background(), "tok", DriveRoot(""), "old.txt")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status_code":204}`, string(raw))

	_, err = client.Delete(context.Background(), "tok", DriveRoot(""), "")
	assert.Error(t, err)
}
