package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/infinityhole/api/internal/middleware"
)

func newTestRouter(h *Handler, userID string) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if userID != "" {
				req = req.WithContext(context.WithValue(req.Context(), middleware.UserIDKey, userID))
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Post("/files", h.Upload)
	r.Get("/files", h.List)
	r.Get("/files/{id}", h.Info)
	r.Delete("/files/{id}", h.Delete)
	r.Get("/storage", h.Storage)
	r.Post("/ads/watch", h.WatchAd)
	return r
}

func multipartBody(t *testing.T, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestHandler_UploadListDelete(t *testing.T) {
	m, _ := newTestManager(t, newMem("A", 100))
	router := newTestRouter(NewHandler(m, 10), "u1")

	body, ct := multipartBody(t, "hello.txt", []byte("hello"))
	req := httptest.NewRequest(http.MethodPost, "/files", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var res UploadResult
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &res))
	assert.Equal(t, "A", res.Provider)
	assert.Equal(t, int64(5), res.FileSize)
	assert.Equal(t, "hello.txt", res.Filename)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), res.FileID)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/files/"+res.FileID, nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/files/"+res.FileID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var deleted map[string]bool
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &deleted))
	assert.Equal(t, map[string]bool{"success": true}, deleted)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/files/"+res.FileID, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandler_QuotaExceededIs507(t *testing.T) {
	m, _ := newTestManager(t, newMem("A", 1))
	router := newTestRouter(NewHandler(m, 10), "u1")

	body, ct := multipartBody(t, "big.bin", mb(2))
	req := httptest.NewRequest(http.MethodPost, "/files", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInsufficientStorage, rec.Code)
	assert.False(t, decode(t, rec).Success)
}

func TestHandler_TooLargeIs413(t *testing.T) {
	m, _ := newTestManager(t, newMem("A", 100))
	router := newTestRouter(NewHandler(m, 1), "u1")

	body, ct := multipartBody(t, "huge.bin", mb(3))
	req := httptest.NewRequest(http.MethodPost, "/files", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestHandler_MissingFileFieldIs400(t *testing.T) {
	m, _ := newTestManager(t, newMem("A", 100))
	router := newTestRouter(NewHandler(m, 10), "u1")

	req := httptest.NewRequest(http.MethodPost, "/files", bytes.NewBufferString("x"))
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_NoProviderIs503(t *testing.T) {
	a := newMem("A", 100)
	a.available = false
	m, _ := newTestManager(t, a)
	router := newTestRouter(NewHandler(m, 10), "u1")

	body, ct := multipartBody(t, "a.txt", []byte("a"))
	req := httptest.NewRequest(http.MethodPost, "/files", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHandler_StorageAndWatchAd(t *testing.T) {
	m, _ := newTestManager(t, newMem("A", 100))
	router := newTestRouter(NewHandler(m, 10), "u1")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/ads/watch", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/storage", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var info StorageInfo
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &info))
	assert.Equal(t, 110.0, info.LimitMB)
	assert.Equal(t, 1, info.AdsWatched)
	assert.Equal(t, 4, info.RemainingAds)
}

func TestHandler_RequiresUser(t *testing.T) {
	m, _ := newTestManager(t, newMem("A", 100))
	router := newTestRouter(NewHandler(m, 10), "")

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/files"},
		{http.MethodGet, "/storage"},
		{http.MethodPost, "/ads/watch"},
		{http.MethodDelete, "/files/x"},
	} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, tc.path)
	}
}

func TestHandler_NoProviderStorageIs503(t *testing.T) {
	a := newMem("A", 100)
	a.available = false
	m, _ := newTestManager(t, a)
	router := newTestRouter(NewHandler(m, 10), "u1")

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/storage"},
		{http.MethodPost, "/ads/watch"},
	} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, tc.path)
	}
}
