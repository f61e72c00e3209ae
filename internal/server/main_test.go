package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"testing"

	"lenscape/internal/config"
	"lenscape/internal/database"
	"lenscape/internal/models"
	"lenscape/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "test-secret-key-12345678901234567890123456789012"

type testEnv struct {
	srv *Server
	app *fiber.App
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		JWTSecret:            testSecret,
		Port:                 "0",
		DBDriver:             config.DriverSQLite,
		SQLitePath:           filepath.Join(dir, "lenscape.db"),
		ImageUploadDir:       filepath.Join(dir, "uploads"),
		ImageMaxUploadSizeMB: 1,
		MediaURLPrefix:       "/uploads",
	}

	db, err := database.Connect(cfg)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	srv, err := NewServerWithDeps(cfg, db, nil)
	require.NoError(t, err)
	srv.userService = service.NewUserService(srv.userRepo).WithBcryptCost(bcrypt.MinCost)

	return &testEnv{srv: srv, app: srv.NewApp()}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *http.Response {
	t.Helper()
	resp, err := e.app.Test(req, -1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (e *testEnv) jsonRequest(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return e.do(t, req)
}

func (e *testEnv) signup(t *testing.T, username string) (string, *models.User) {
	t.Helper()
	resp := e.jsonRequest(t, http.MethodPost, "/api/auth/signup", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "shutter123",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	auth := decode[AuthResponse](t, resp)
	require.NotEmpty(t, auth.Token)
	return auth.Token, auth.User
}

type upload struct {
	filename    string
	contentType string
	data        []byte
	caption     string
}

func (e *testEnv) createPost(t *testing.T, token string, u upload) *http.Response {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if u.caption != "" {
		require.NoError(t, w.WriteField("caption", u.caption))
	}
	if u.filename != "" {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename="%s"`, u.filename))
		h.Set("Content-Type", u.contentType)
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write(u.data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/posts", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return e.do(t, req)
}

func (e *testEnv) storedFileCount(t *testing.T) int {
	t.Helper()
	entries, err := os.ReadDir(e.srv.store.Root())
	require.NoError(t, err)
	return len(entries)
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}
