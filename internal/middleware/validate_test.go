package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-request-shield/internal/sanitize"
)

func testValidator(schemas *sanitize.Table) *BodyValidator {
	if schemas == nil {
		schemas = sanitize.NewTable()
	}
	return NewBodyValidator(schemas, 1<<20, 1<<20, []string{"image/*"}, testRecorder())
}

func jsonRequest(method string, path string, body string) *http.Request {
	r := httptest.NewRequest(method, path, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return r
}

func TestBodyValidator_SafeMethodsSkipped(t *testing.T) {
	handler := testValidator(nil).Handler(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/api/posts", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBodyValidator_AttackSignatureRejected(t *testing.T) {
	handler := testValidator(nil).Handler(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, jsonRequest("POST", "/api/posts", `{"bio":"<script>alert(1)</script>"}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	// Deliberately vague: no echo of the payload or the matched signature.
	assert.NotContains(t, body["error"], "script")
}

func TestBodyValidator_SchemaViolation(t *testing.T) {
	schemas := sanitize.NewTable()
	schemas.Register("/api/auth/login", sanitize.Schema{Fields: []sanitize.Field{
		{Name: "email", Kind: "email", Required: true},
		{Name: "password", Kind: "string", Required: true},
	}})
	handler := testValidator(schemas).Handler(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, jsonRequest("POST", "/api/auth/login", `{"email":"ada@example.com"}`))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "password is required")
}

func TestBodyValidator_RestoresBodyForHandler(t *testing.T) {
	payload := `{"email":"ada@example.com","password":"Vx9!mQw7#kLp2"}`

	var seen string
	handler := testValidator(nil).Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		seen = string(raw)
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, jsonRequest("POST", "/api/auth/login", payload))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, payload, seen, "downstream handlers decode the body themselves")
}

func multipartRequest(t *testing.T, path string, filename string, content []byte) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	require.NoError(t, writer.WriteField("caption", "holiday snap"))
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	r := httptest.NewRequest("POST", path, &buf)
	r.Header.Set("Content-Type", writer.FormDataContentType())
	return r
}

func TestBodyValidator_UploadScreening(t *testing.T) {
	pngMagic := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

	t.Run("valid image passes", func(t *testing.T) {
		handler := testValidator(nil).Handler(okHandler())
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, multipartRequest(t, "/api/uploads", "avatar.png", pngMagic))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("denied extension rejected", func(t *testing.T) {
		handler := testValidator(nil).Handler(okHandler())
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, multipartRequest(t, "/api/uploads", "avatar.jpg.exe", pngMagic))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "file type is not allowed")
	})

	t.Run("content type outside allow-list rejected", func(t *testing.T) {
		handler := testValidator(nil).Handler(okHandler())
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, multipartRequest(t, "/api/uploads", "notes.txt", []byte("plain text")))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("oversized file rejected", func(t *testing.T) {
		v := NewBodyValidator(sanitize.NewTable(), 1<<20, 8, []string{"image/*"}, testRecorder())
		handler := v.Handler(okHandler())
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, multipartRequest(t, "/api/uploads", "avatar.png", pngMagic))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestBodyValidator_MalformedJSON(t *testing.T) {
	handler := testValidator(nil).Handler(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, jsonRequest("POST", "/api/posts", `{"broken`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid JSON body")
}

func TestBodyValidator_EmptyBodyPasses(t *testing.T) {
	handler := testValidator(nil).Handler(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/api/auth/logout", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBodyValidator_OversizedBody(t *testing.T) {
	v := NewBodyValidator(sanitize.NewTable(), 64, 64, nil, testRecorder())
	handler := v.Handler(okHandler())

	rec := httptest.NewRecorder()
	big := `{"data":"` + strings.Repeat("x", 200) + `"}`
	handler.ServeHTTP(rec, jsonRequest("POST", "/api/posts", big))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}
