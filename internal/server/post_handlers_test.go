package server

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"lenscape/internal/models"
	"lenscape/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngUpload(t *testing.T, caption string) upload {
	return upload{filename: "sunset.png", contentType: "image/png", data: testutil.TinyPNG(t, 8, 8), caption: caption}
}

func TestCreatePost_Success(t *testing.T) {
	env := newTestEnv(t)
	token, user := env.signup(t, "ansel")
	u := pngUpload(t, "half dome")

	resp := env.createPost(t, token, u)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	post := decode[models.Post](t, resp)

	assert.Equal(t, user.ID, post.UserID)
	assert.Equal(t, "half dome", post.Caption)
	assert.True(t, strings.HasPrefix(post.ImageURL, fmt.Sprintf("/uploads/%d_", user.ID)), post.ImageURL)
	assert.True(t, strings.HasSuffix(post.ImageURL, ".png"))
	require.NotNil(t, post.User)
	assert.Equal(t, "ansel", post.User.Username)

	resp = env.do(t, httptest.NewRequest(http.MethodGet, post.ImageURL, nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	served, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(u.data, served))

	resp = env.do(t, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/posts/%d", post.ID), nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreatePost_Rejections(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.signup(t, "rejects")

	tests := []struct {
		name       string
		token      string
		upload     upload
		wantStatus int
		wantCode   string
	}{
		{"No Auth", "", pngUpload(t, ""), http.StatusUnauthorized, models.CodeUnauthorized},
		{"Missing File", token, upload{caption: "only words"}, http.StatusBadRequest, models.CodeValidation},
		{"Text Mime", token, upload{filename: "a.png", contentType: "text/plain", data: []byte("hi")}, http.StatusUnsupportedMediaType, models.CodeUnsupportedMediaType},
		{"Svg Mime", token, upload{filename: "a.svg", contentType: "image/svg+xml", data: []byte("<svg/>")}, http.StatusUnsupportedMediaType, models.CodeUnsupportedMediaType},
		{"Bad Extension", token, upload{filename: "shell.php", contentType: "image/png", data: []byte("<?php")}, http.StatusBadRequest, models.CodeUnsupportedExtension},
		{"Too Large", token, upload{filename: "big.png", contentType: "image/png", data: make([]byte, 1<<20+1)}, http.StatusRequestEntityTooLarge, models.CodeFileTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.createPost(t, tt.token, tt.upload)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantCode, decode[models.ErrorResponse](t, resp).Code)
			assert.Zero(t, env.storedFileCount(t), "rejected upload must not write")
		})
	}
}

func TestCreatePost_LongCaption(t *testing.T) {
	env := newTestEnv(t)
	token, _ := env.signup(t, "verbose")
	caption := strings.Repeat("c", 5000)

	resp := env.createPost(t, token, pngUpload(t, caption))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	post := decode[models.Post](t, resp)
	assert.Equal(t, caption, post.Caption)
	assert.Equal(t, 1, env.storedFileCount(t))
}

func TestDeletePost_HTTP(t *testing.T) {
	env := newTestEnv(t)
	ownerToken, _ := env.signup(t, "owner")
	otherToken, _ := env.signup(t, "other")

	resp := env.createPost(t, ownerToken, pngUpload(t, ""))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	post := decode[models.Post](t, resp)
	postPath := fmt.Sprintf("/api/posts/%d", post.ID)

	resp = env.jsonRequest(t, http.MethodDelete, postPath, otherToken, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, models.CodeForbidden, decode[models.ErrorResponse](t, resp).Code)
	resp = env.do(t, httptest.NewRequest(http.MethodGet, post.ImageURL, nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode, "file survives a forbidden delete")

	resp = env.jsonRequest(t, http.MethodDelete, "/api/posts/abc", ownerToken, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.jsonRequest(t, http.MethodDelete, "/api/posts/99999", ownerToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.jsonRequest(t, http.MethodDelete, postPath, "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.jsonRequest(t, http.MethodDelete, postPath, ownerToken, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, httptest.NewRequest(http.MethodGet, postPath, nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = env.do(t, httptest.NewRequest(http.MethodGet, post.ImageURL, nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Zero(t, env.storedFileCount(t))

	resp = env.jsonRequest(t, http.MethodDelete, postPath, ownerToken, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdatePost_HTTP(t *testing.T) {
	env := newTestEnv(t)
	ownerToken, _ := env.signup(t, "editor")
	otherToken, _ := env.signup(t, "stranger")

	resp := env.createPost(t, ownerToken, pngUpload(t, "before"))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	post := decode[models.Post](t, resp)
	postPath := fmt.Sprintf("/api/posts/%d", post.ID)

	resp = env.jsonRequest(t, http.MethodPut, postPath, otherToken, map[string]string{"caption": "hijack"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.jsonRequest(t, http.MethodPut, postPath, ownerToken, map[string]string{"caption": "after"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[models.Post](t, resp)
	assert.Equal(t, "after", updated.Caption)
	assert.Equal(t, post.ImageURL, updated.ImageURL)
}

func TestListPosts_HTTP(t *testing.T) {
	env := newTestEnv(t)
	token, user := env.signup(t, "lister")
	for i := 0; i < 3; i++ {
		resp := env.createPost(t, token, pngUpload(t, fmt.Sprintf("shot %d", i)))
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp := env.do(t, httptest.NewRequest(http.MethodGet, "/api/posts?limit=2", nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := decode[[]models.Post](t, resp)
	assert.Len(t, page, 2)

	resp = env.do(t, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/users/%d/posts", user.ID), nil))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]models.Post](t, resp), 3)

	resp = env.do(t, httptest.NewRequest(http.MethodGet, "/api/users/99999/posts", nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.jsonRequest(t, http.MethodGet, "/api/users/me", token, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "lister", decode[models.User](t, resp).Username)

	resp = env.do(t, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/users/%d", user.ID), nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
