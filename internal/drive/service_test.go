package drive

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/onedrive-proxy/internal/graph"
	"github.com/tonimelisma/onedrive-proxy/internal/kvstore"
)

const (
	tokenPath = "/common/oauth2/v2.0/token"
	apiPrefix = "/v1.0"
)

var fixedNow = time.Unix(1_700_000_000, 0)

// fakeGraph serves both the token endpoint and the Graph API.
type fakeGraph struct {
	srv *httptest.Server

	tokenCalls atomic.Int32
	driveCalls atomic.Int32

	mu       sync.Mutex
	forms    []url.Values
	tokenRes string
	tokenErr int
	gate     chan struct{}
	api      http.HandlerFunc
}

func newFakeGraph(t *testing.T) *fakeGraph {
	t.Helper()

	f := &fakeGraph{
		tokenRes: `{"access_token":"new-at","token_type":"Bearer","expires_in":3599}`,
	}

	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == tokenPath:
			f.handleToken(w, r)
		case r.URL.Path == apiPrefix+"/me/drive" || strings.HasPrefix(r.URL.Path, apiPrefix+"/sites/") &&
			strings.HasSuffix(r.URL.Path, "/drive"):
			f.driveCalls.Add(1)
			_, _ = w.Write([]byte(`{
				"id":"graph-drive",
				"owner":{"user":{"email":"owner@example.com"}},
				"quota":{"total":1000,"used":250,"remaining":750}
			}`))
		case f.api != nil:
			f.api(w, r)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.srv.Close)

	return f
}

func (f *fakeGraph) handleToken(w http.ResponseWriter, r *http.Request) {
	f.tokenCalls.Add(1)

	_ = r.ParseForm()

	f.mu.Lock()
	f.forms = append(f.forms, r.PostForm)
	gate, status, body := f.gate, f.tokenErr, f.tokenRes
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	if status != 0 {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))

		return
	}

	_, _ = w.Write([]byte(body))
}

func (f *fakeGraph) lastForm() url.Values {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.forms) == 0 {
		return nil
	}

	return f.forms[len(f.forms)-1]
}

func newTestService(t *testing.T, f *fakeGraph) (*Service, *Repository) {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	repo := NewRepository(kvstore.NewMemoryStore())
	client := graph.NewClient(f.srv.URL+apiPrefix, f.srv.Client(), logger)
	oauth := graph.NewOAuth(f.srv.URL, "common", "https://relay.example", nil)

	svc := NewService(repo, client, func() Settings {
		return Settings{OAuth: oauth, Select: graph.DefaultSelect, Limit: graph.DefaultPageSize}
	}, logger)
	svc.nowFunc = func() time.Time { return fixedNow }

	return svc, repo
}

func seed(t *testing.T, repo *Repository, key string, cfg Config) {
	t.Helper()
	require.NoError(t, repo.Put(context.Background(), key, cfg))
}

func authorizedConfig(expires int64) Config {
	return Config{
		DriveID:      "d1",
		Name:         "Docs",
		ClientID:     "cid",
		ClientSecret: "secret",
		DriveType:    TypeOneDrive,
		AccessToken:  "old-at",
		RefreshToken: "old-rt",
		ExpiresTime:  expires,
	}
}

func TestLoad_NotFound(t *testing.T) {
	svc, _ := newTestService(t, newFakeGraph(t))

	_, err := svc.Load(context.Background(), "missing")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "missing")
}

func TestLoad_NotAuthorized(t *testing.T) {
	f := newFakeGraph(t)
	svc, repo := newTestService(t, f)
	seed(t, repo, "d1", Config{DriveID: "d1", ClientID: "cid", ClientSecret: "s"})

	_, err := svc.Load(context.Background(), "d1")
	require.ErrorIs(t, err, ErrNotAuthorized)
	assert.Zero(t, f.tokenCalls.Load())
}

func TestLoad_FreshTokenSkipsRefresh(t *testing.T) {
	f := newFakeGraph(t)
	svc, repo := newTestService(t, f)
	seed(t, repo, "d1", authorizedConfig(fixedNow.Unix()+60))

	cfg, err := svc.Load(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, "old-at", cfg.AccessToken)
	assert.Zero(t, f.tokenCalls.Load())
	assert.Zero(t, f.driveCalls.Load())
}

func TestLoad_StaleTokenRefreshesExactlyOnce(t *testing.T) {
	for _, expires := range []int64{fixedNow.Unix(), fixedNow.Unix() - 10, 0} {
		f := newFakeGraph(t)
		svc, repo := newTestService(t, f)
		seed(t, repo, "d1", authorizedConfig(expires))

		cfg, err := svc.Load(context.Background(), "d1")
		require.NoError(t, err)
		assert.Equal(t, int32(1), f.tokenCalls.Load())
		assert.Equal(t, int32(1), f.driveCalls.Load())
		assert.Equal(t, "new-at", cfg.AccessToken)
	}
}

func TestRefresh_UpdatesAndPersists(t *testing.T) {
	f := newFakeGraph(t)
	svc, repo := newTestService(t, f)
	seed(t, repo, "d1", authorizedConfig(0))

	cfg, err := svc.Load(context.Background(), "d1")
	require.NoError(t, err)

	assert.Equal(t, fixedNow.Unix()+3500, cfg.ExpiresTime)
	assert.Equal(t, "old-rt", cfg.RefreshToken, "refresh token kept when the response omits one")
	assert.Equal(t, "graph-drive", cfg.GraphDriveID)
	assert.Equal(t, int64(1000), cfg.Total)
	assert.Equal(t, int64(250), cfg.Used)
	assert.Equal(t, int64(750), cfg.Remaining)
	assert.Equal(t, "owner@example.com", cfg.Username)
	assert.Equal(t, "2023-11-15 06:13:20", cfg.UpdateDate)

	stored, err := repo.Get(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, cfg, stored)

	form := f.lastForm()
	assert.Equal(t, "refresh_token", form.Get("grant_type"))
	assert.Equal(t, "old-rt", form.Get("refresh_token"))
	assert.Equal(t, "cid", form.Get("client_id"))
	assert.Equal(t, "secret", form.Get("client_secret"))
	assert.Equal(t, "https://relay.example", form.Get("redirect_uri"))
	assert.Equal(t, "offline_access User.Read Sites.ReadWrite.All", form.Get("scope"))
}

func TestRefresh_UsesScopeAndRedirectRecordedAtAuthorize(t *testing.T) {
	f := newFakeGraph(t)
	svc, repo := newTestService(t, f)

	cfg := authorizedConfig(0)
	cfg.RedirectURI = "https://old-relay.example"
	cfg.Scope = "offline_access Files.ReadWrite.All"
	seed(t, repo, "d1", cfg)

	_, err := svc.Load(context.Background(), "d1")
	require.NoError(t, err)

	form := f.lastForm()
	assert.Equal(t, "https://old-relay.example", form.Get("redirect_uri"))
	assert.Equal(t, "offline_access Files.ReadWrite.All", form.Get("scope"))
}

func TestRefresh_RotatesRefreshToken(t *testing.T) {
	f := newFakeGraph(t)
	f.tokenRes = `{"access_token":"at2","refresh_token":"rt2"}`
	svc, repo := newTestService(t, f)

	cfg, err := svc.Refresh(context.Background(), "d1", authorizedConfig(0))
	require.NoError(t, err)
	assert.Equal(t, "rt2", cfg.RefreshToken)

	stored, err := repo.Get(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, "rt2", stored.RefreshToken)
}

func TestRefresh_SavesUnderLoadedKey(t *testing.T) {
	f := newFakeGraph(t)
	svc, repo := newTestService(t, f)

	cfg := authorizedConfig(0)
	cfg.DriveID = "other-id"
	seed(t, repo, "tuchuang", cfg)

	_, err := svc.Load(context.Background(), "tuchuang")
	require.NoError(t, err)

	keys, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"tuchuang"}, keys)
}

func TestRefresh_SharePointDrive(t *testing.T) {
	f := newFakeGraph(t)
	svc, _ := newTestService(t, f)

	cfg := authorizedConfig(0)
	cfg.DriveType = TypeSharePoint
	cfg.SiteID = "site-1"

	next, err := svc.Refresh(context.Background(), "d1", cfg)
	require.NoError(t, err)
	assert.Equal(t, "graph-drive", next.GraphDriveID)
	assert.Equal(t, int32(1), f.driveCalls.Load())
}

func TestRefresh_TokenEndpointErrorDoesNotPersist(t *testing.T) {
	f := newFakeGraph(t)
	f.tokenErr = http.StatusBadRequest
	svc, repo := newTestService(t, f)
	seed(t, repo, "d1", authorizedConfig(0))

	_, err := svc.Load(context.Background(), "d1")
	require.Error(t, err)
	assert.ErrorIs(t, err, graph.ErrBadRequest)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), tokenPath)

	stored, err := repo.Get(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, "old-at", stored.AccessToken)
	assert.Zero(t, f.driveCalls.Load())
}

func TestRefresh_NoRefreshToken(t *testing.T) {
	svc, _ := newTestService(t, newFakeGraph(t))

	cfg := authorizedConfig(0)
	cfg.RefreshToken = ""

	_, err := svc.Refresh(context.Background(), "d1", cfg)
	assert.ErrorIs(t, err, ErrNotAuthorized)
}

func TestRefresh_ConcurrentCallsShareOneExchange(t *testing.T) {
	f := newFakeGraph(t)
	f.gate = make(chan struct{})
	svc, repo := newTestService(t, f)
	seed(t, repo, "d1", authorizedConfig(0))

	const callers = 5

	var wg sync.WaitGroup

	results := make([]Config, callers)
	errs := make([]error, callers)

	for i := range callers {
		wg.Add(1)

		go func() {
			defer wg.Done()
			results[i], errs[i] = svc.Load(context.Background(), "d1")
		}()
	}

	require.Eventually(t, func() bool { return f.tokenCalls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(f.gate)
	wg.Wait()

	assert.Equal(t, int32(1), f.tokenCalls.Load())

	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, "new-at", results[i].AccessToken)
	}
}

func TestRefresh_CanceledCallerDoesNotFailOthers(t *testing.T) {
	f := newFakeGraph(t)
	f.gate = make(chan struct{})
	svc, repo := newTestService(t, f)
	seed(t, repo, "d1", authorizedConfig(0))

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()

	errA := make(chan error, 1)

	go func() {
		_, err := svc.Load(ctxA, "d1")
		errA <- err
	}()

	require.Eventually(t, func() bool { return f.tokenCalls.Load() == 1 }, time.Second, 5*time.Millisecond)

	type result struct {
		cfg Config
		err error
	}

	resB := make(chan result, 1)

	go func() {
		cfg, err := svc.Load(context.Background(), "d1")
		resB <- result{cfg, err}
	}()

	time.Sleep(50 * time.Millisecond)
	cancelA()

	select {
	case err := <-errA:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("canceled caller kept waiting on the refresh")
	}

	close(f.gate)

	select {
	case r := <-resB:
		require.NoError(t, r.err)
		assert.Equal(t, "new-at", r.cfg.AccessToken)
	case <-time.After(2 * time.Second):
		t.Fatal("live caller did not get the refresh result")
	}

	assert.Equal(t, int32(1), f.tokenCalls.Load())

	stored, err := repo.Get(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, "new-at", stored.AccessToken)
}

func TestAuthorize_RegistersDrive(t *testing.T) {
	svc, repo := newTestService(t, newFakeGraph(t))

	raw, err := svc.Authorize(context.Background(), "https://proxy.example", AuthorizeParams{
		ID:           "d1",
		Name:         "Docs",
		ClientID:     "cid",
		ClientSecret: "secret",
	})
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, "cid", q.Get("client_id"))
	assert.Equal(t, "https://relay.example", q.Get("redirect_uri"))
	assert.Equal(t, "consent", q.Get("prompt"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "https://proxy.example/d1/code", q.Get("state"))

	stored, err := repo.Get(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, Config{
		DriveID:      "d1",
		Name:         "Docs",
		ClientID:     "cid",
		ClientSecret: "secret",
		DriveType:    TypeOneDrive,
		RedirectURI:  "https://relay.example",
		Scope:        "offline_access User.Read Sites.ReadWrite.All",
	}, stored)
	assert.False(t, stored.Authenticated())
}

func TestAuthorize_UsesStoredClientID(t *testing.T) {
	svc, repo := newTestService(t, newFakeGraph(t))
	seed(t, repo, "d1", authorizedConfig(0))

	raw, err := svc.Authorize(context.Background(), "https://p", AuthorizeParams{ID: "d1", ClientID: "query-cid"})
	require.NoError(t, err)
	assert.Contains(t, raw, "client_id=cid")

	// Without client_secret nothing is overwritten.
	stored, err := repo.Get(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, "old-at", stored.AccessToken)
}

func TestAuthorize_FallsBackToQueryClientID(t *testing.T) {
	svc, repo := newTestService(t, newFakeGraph(t))

	raw, err := svc.Authorize(context.Background(), "https://p", AuthorizeParams{ID: "new", ClientID: "q-cid"})
	require.NoError(t, err)
	assert.Contains(t, raw, "client_id=q-cid")

	_, err = repo.Get(context.Background(), "new")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAuthorize_Errors(t *testing.T) {
	svc, _ := newTestService(t, newFakeGraph(t))

	_, err := svc.Authorize(context.Background(), "https://p", AuthorizeParams{})
	assert.Error(t, err)

	_, err = svc.Authorize(context.Background(), "https://p", AuthorizeParams{ID: "nobody"})
	assert.ErrorContains(t, err, "client_id")
}

func TestAuthorizeToken(t *testing.T) {
	f := newFakeGraph(t)
	f.tokenRes = `{"access_token":"at","refresh_token":"rt","expires_in":3599}`
	svc, repo := newTestService(t, f)
	seed(t, repo, "d1", Config{DriveID: "d1", ClientID: "cid", ClientSecret: "secret", DriveType: TypeOneDrive})

	raw, err := svc.AuthorizeToken(context.Background(), "d1", "the-code")
	require.NoError(t, err)
	assert.JSONEq(t, f.tokenRes, string(raw))

	form := f.lastForm()
	assert.Equal(t, "authorization_code", form.Get("grant_type"))
	assert.Equal(t, "the-code", form.Get("code"))
	assert.Equal(t, "cid", form.Get("client_id"))

	stored, err := repo.Get(context.Background(), "d1")
	require.NoError(t, err)
	assert.Equal(t, "at", stored.AccessToken)
	assert.Equal(t, "rt", stored.RefreshToken)
	assert.Equal(t, fixedNow.Unix()+3500, stored.ExpiresTime)
	assert.True(t, stored.Authenticated())
}

func TestAuthorizeToken_Errors(t *testing.T) {
	svc, _ := newTestService(t, newFakeGraph(t))

	_, err := svc.AuthorizeToken(context.Background(), "d1", "")
	assert.Error(t, err)

	_, err = svc.AuthorizeToken(context.Background(), "missing", "code")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListQuery_Mode(t *testing.T) {
	tests := []struct {
		name string
		q    ListQuery
		want ListMode
	}{
		{"empty", ListQuery{}, ListChildren},
		{"path only", ListQuery{Path: "docs"}, ListChildren},
		{"search", ListQuery{Search: "x"}, ListSearch},
		{"page", ListQuery{Page: "https://x"}, ListPage},
		{"page beats search", ListQuery{Page: "https://x", Search: "x"}, ListPage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.q.Mode())
		})
	}
}

func TestListFiles_Modes(t *testing.T) {
	f := newFakeGraph(t)

	var gotPath, gotQuery string

	f.api = func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"value":[]}`))
	}

	svc, _ := newTestService(t, f)
	cfg := authorizedConfig(fixedNow.Unix() + 100)

	_, err := svc.ListFiles(context.Background(), cfg, ListQuery{Path: "/docs/"})
	require.NoError(t, err)
	assert.Equal(t, apiPrefix+"/me/drive/root:/docs:/children", gotPath)
	assert.Contains(t, gotQuery, "%24expand=")

	_, err = svc.ListFiles(context.Background(), cfg, ListQuery{Path: "/docs/", Search: "wd", Fields: "id", Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, apiPrefix+"/me/drive/root/search(q='wd')", gotPath)
	assert.Contains(t, gotQuery, "%24top=3")
	assert.Contains(t, gotQuery, "%24select=id")

	cursor := f.srv.URL + apiPrefix + "/me/drive/root/children?$skiptoken=t1"
	_, err = svc.ListFiles(context.Background(), cfg, ListQuery{Page: cursor, Search: "ignored"})
	require.NoError(t, err)
	assert.Equal(t, apiPrefix+"/me/drive/root/children", gotPath)
	assert.Equal(t, "$skiptoken=t1", gotQuery)

	_, err = svc.ListFiles(context.Background(), cfg, ListQuery{Page: "https://elsewhere.example/x"})
	assert.ErrorIs(t, err, graph.ErrForeignPage)
}

func TestFileOperations_UseSiteRoot(t *testing.T) {
	f := newFakeGraph(t)

	var calls []string

	f.api = func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)

		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		body, _ := io.ReadAll(r.Body)
		_ = json.NewEncoder(w).Encode(map[string]string{"body": string(body)})
	}

	svc, _ := newTestService(t, f)
	cfg := authorizedConfig(fixedNow.Unix() + 100)
	cfg.SiteID = "s1"

	_, err := svc.GetFile(context.Background(), cfg, "a.txt")
	require.NoError(t, err)

	raw, err := svc.Upload(context.Background(), cfg, "b.txt", strings.NewReader("data"), 4, "")
	require.NoError(t, err)
	assert.JSONEq(t, `{"body":"data"}`, string(raw))

	raw, err = svc.DeleteFile(context.Background(), cfg, "c.txt")
	require.NoError(t, err)
	assert.JSONEq(t, `{"status_code":204}`, string(raw))

	assert.Equal(t, []string{
		"GET " + apiPrefix + "/sites/s1/drive/root:/a.txt",
		"PUT " + apiPrefix + "/sites/s1/drive/root:/b.txt:/content",
		"DELETE " + apiPrefix + "/sites/s1/drive/root:/c.txt",
	}, calls)
}
