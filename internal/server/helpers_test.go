package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"lenscape/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapServiceError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", models.NewValidationError("bad"), http.StatusBadRequest},
		{"extension", models.NewUnsupportedExtensionError(".exe"), http.StatusBadRequest},
		{"unauthorized", models.NewUnauthorizedError("no"), http.StatusUnauthorized},
		{"forbidden", models.NewForbiddenError("no"), http.StatusForbidden},
		{"not found", models.NewNotFoundError("Post", 1), http.StatusNotFound},
		{"conflict", models.NewConflictError("dup"), http.StatusConflict},
		{"too large", models.NewFileTooLargeError(1 << 20), http.StatusRequestEntityTooLarge},
		{"media type", models.NewUnsupportedMediaTypeError("text/plain"), http.StatusUnsupportedMediaType},
		{"storage", models.NewStorageError(errors.New("disk")), http.StatusInternalServerError},
		{"persistence", models.NewPersistenceError(errors.New("db")), http.StatusInternalServerError},
		{"internal", models.NewInternalError(errors.New("x")), http.StatusInternalServerError},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mapServiceError(tt.err))
		})
	}
}

func TestParsePagination(t *testing.T) {
	app := fiber.New()
	var got Pagination
	app.Get("/", func(c *fiber.Ctx) error {
		got = parsePagination(c, 20)
		return nil
	})

	tests := []struct {
		query string
		want  Pagination
	}{
		{"", Pagination{Limit: 20, Offset: 0}},
		{"?limit=5&offset=10", Pagination{Limit: 5, Offset: 10}},
		{"?limit=0", Pagination{Limit: 20, Offset: 0}},
		{"?limit=1000", Pagination{Limit: 100, Offset: 0}},
		{"?offset=-3", Pagination{Limit: 20, Offset: 0}},
		{"?limit=abc", Pagination{Limit: 20, Offset: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/"+tt.query, nil))
			require.NoError(t, err)
			_ = resp.Body.Close()
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseID(t *testing.T) {
	app := fiber.New()
	app.Get("/items/:id", func(c *fiber.Ctx) error {
		id, err := parseID(c, "id")
		if err != nil {
			return nil
		}
		return c.JSON(fiber.Map{"id": id})
	})

	for path, want := range map[string]int{
		"/items/7":   http.StatusOK,
		"/items/0":   http.StatusBadRequest,
		"/items/-1":  http.StatusBadRequest,
		"/items/abc": http.StatusBadRequest,
	} {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, want, resp.StatusCode, path)
	}
}
