package orchestrator

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/dmuraco3/NanoScale/pkg/storage"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store, err := storage.NewBoltStore(filepath.Join(t.TempDir(), "nanoscale.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewServer(store, Config{LocalServerID: "local-server"})
}

func doRequest(t *testing.T, s *Server, method, path string, body interface{}, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	s.Routes().ServeHTTP(rec, req)
	return rec
}

func TestAuthSetupCreatesFirstUserAndStartsSession(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodPost, "/api/auth/setup", setupRequest{Username: "admin", Password: "hunter22"}, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotEmpty(t, rec.Result().Cookies())

	rec = doRequest(t, s, http.MethodPost, "/api/auth/setup", setupRequest{Username: "someone-else", Password: "hunter222"}, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestAuthSetupRejectsShortPassword(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/api/auth/setup", setupRequest{Username: "admin", Password: "short"}, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthLoginRejectsUnknownUser(t *testing.T) {
	s := newTestServer(t)
	rec := doRequest(t, s, http.MethodPost, "/api/auth/login", loginRequest{Username: "nobody", Password: "whatever1"}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthLoginSucceedsWithCorrectCredentials(t *testing.T) {
	s := newTestServer(t)
	doRequest(t, s, http.MethodPost, "/api/auth/setup", setupRequest{Username: "admin", Password: "hunter22"}, nil)

	rec := doRequest(t, s, http.MethodPost, "/api/auth/login", loginRequest{Username: "admin", Password: "hunter22"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/api/auth/login", loginRequest{Username: "admin", Password: "wrong-password"}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthStatusReportsUserCountAndAuthentication(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/auth/status", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status authStatusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	require.Equal(t, 0, status.UsersCount)
	require.False(t, status.Authenticated)

	setupRec := doRequest(t, s, http.MethodPost, "/api/auth/setup", setupRequest{Username: "admin", Password: "hunter22"}, nil)
	cookies := setupRec.Result().Cookies()

	rec = doRequest(t, s, http.MethodGet, "/api/auth/status", nil, cookies)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	require.Equal(t, 1, status.UsersCount)
	require.True(t, status.Authenticated)
}

func TestProjectRoutesRequireASession(t *testing.T) {
	s := newTestServer(t)

	rec := doRequest(t, s, http.MethodGet, "/api/projects", nil, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/api/cluster/generate-token", nil, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGenerateTokenThenJoinRegistersAServer(t *testing.T) {
	s := newTestServer(t)
	setupRec := doRequest(t, s, http.MethodPost, "/api/auth/setup", setupRequest{Username: "admin", Password: "hunter22"}, nil)
	cookies := setupRec.Result().Cookies()

	rec := doRequest(t, s, http.MethodPost, "/api/cluster/generate-token", nil, cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	var tokenResp generateTokenResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&tokenResp))
	require.NotEmpty(t, tokenResp.Token)
	require.Equal(t, 600, tokenResp.ExpiresInSeconds)

	rec = doRequest(t, s, http.MethodPost, "/api/cluster/join", joinClusterRequest{
		Token:     tokenResp.Token,
		IP:        "10.0.0.5",
		SecretKey: "a-worker-secret",
		Name:      "worker-1",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var joinResp joinClusterResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&joinResp))
	require.NotEmpty(t, joinResp.ServerID)

	rec = doRequest(t, s, http.MethodPost, "/api/cluster/join", joinClusterRequest{
		Token:     tokenResp.Token,
		IP:        "10.0.0.5",
		SecretKey: "a-worker-secret",
		Name:      "worker-1",
	}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestListServersReportsRegisteredServers(t *testing.T) {
	s := newTestServer(t)
	setupRec := doRequest(t, s, http.MethodPost, "/api/auth/setup", setupRequest{Username: "admin", Password: "hunter22"}, nil)
	cookies := setupRec.Result().Cookies()

	tokenRec := doRequest(t, s, http.MethodPost, "/api/cluster/generate-token", nil, cookies)
	var tokenResp generateTokenResponse
	require.NoError(t, json.NewDecoder(tokenRec.Body).Decode(&tokenResp))
	doRequest(t, s, http.MethodPost, "/api/cluster/join", joinClusterRequest{
		Token: tokenResp.Token, IP: "10.0.0.5", SecretKey: "secret", Name: "worker-1",
	}, nil)

	rec := doRequest(t, s, http.MethodGet, "/api/servers", nil, cookies)
	require.Equal(t, http.StatusOK, rec.Code)
	var servers []serverListItem
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&servers))
	require.Len(t, servers, 1)
	require.Equal(t, "worker-1", servers[0].Name)
	require.Equal(t, uint8(0), servers[0].RAMUsagePercent)
}

func TestCreateProjectRejectsMissingFields(t *testing.T) {
	s := newTestServer(t)
	setupRec := doRequest(t, s, http.MethodPost, "/api/auth/setup", setupRequest{Username: "admin", Password: "hunter22"}, nil)
	cookies := setupRec.Result().Cookies()

	rec := doRequest(t, s, http.MethodPost, "/api/projects", createProjectRequest{Name: ""}, cookies)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateProjectRejectsUnknownServer(t *testing.T) {
	s := newTestServer(t)
	setupRec := doRequest(t, s, http.MethodPost, "/api/auth/setup", setupRequest{Username: "admin", Password: "hunter22"}, nil)
	cookies := setupRec.Result().Cookies()

	rec := doRequest(t, s, http.MethodPost, "/api/projects", createProjectRequest{
		ServerID:       "missing-server",
		Name:           "demo",
		RepoURL:        "https://example.com/demo.git",
		Branch:         "main",
		InstallCommand: "npm install",
		BuildCommand:   "npm run build",
		RunCommand:     "npm start",
	}, cookies)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetAndDeleteProjectReportNotFound(t *testing.T) {
	s := newTestServer(t)
	setupRec := doRequest(t, s, http.MethodPost, "/api/auth/setup", setupRequest{Username: "admin", Password: "hunter22"}, nil)
	cookies := setupRec.Result().Cookies()

	rec := doRequest(t, s, http.MethodGet, "/api/projects/does-not-exist", nil, cookies)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, s, http.MethodDelete, "/api/projects/does-not-exist", nil, cookies)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
