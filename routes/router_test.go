package routes

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"github.com/cppla/sharebox/config"
	"github.com/cppla/sharebox/dbtest"
	"github.com/cppla/sharebox/services"
	"github.com/cppla/sharebox/storage"
)

type testApp struct {
	t  *testing.T
	r  *gin.Engine
	db *gorm.DB
}

func newTestApp(t *testing.T, mutate func(*config.AppConfig)) *testApp {
	t.Helper()
	cfg := config.AppConfig{
		JWTSecret:          "test-secret",
		TokenTTLHours:      24,
		AuthCookieName:     "auth",
		RateLimitPerMinute: 10000,
		SharePathPrefix:    "/share/",
		MaxUploadBytes:     1 << 20,
		GinMode:            "test",
		DefaultLimitBytes:  100 * 1024 * 1024,
		ShareCodeLength:    8,
		ShareMaxAttempts:   5,
		InitialRoles:       []config.RoleRule{{Email: "admin@example.com", Role: "admin"}},
	}
	if mutate != nil {
		mutate(&cfg)
	}
	config.Set(cfg)

	db := dbtest.Open(t)
	svc := services.New(db, storage.NewDBStore(db), cfg, zaptest.NewLogger(t))
	return &testApp{t: t, r: SetupRouter(db, svc), db: db}
}

func (a *testApp) do(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.r.ServeHTTP(w, req)
	return w
}

func (a *testApp) json(method, path string, payload interface{}, token string) (*httptest.ResponseRecorder, map[string]interface{}) {
	a.t.Helper()
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(a.t, err)
		body = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	w := a.do(req, token)
	out := map[string]interface{}{}
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func (a *testApp) register(email string) string {
	a.t.Helper()
	w, body := a.json(http.MethodPost, "/api/v1/auth/register", gin.H{"email": email, "password": "password123"}, "")
	require.Equal(a.t, http.StatusOK, w.Code, w.Body.String())
	return body["token"].(string)
}

func (a *testApp) upload(token, name, mimeType string, data []byte) (*httptest.ResponseRecorder, map[string]interface{}) {
	a.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, name))
	h.Set("Content-Type", mimeType)
	part, err := mw.CreatePart(h)
	require.NoError(a.t, err)
	_, err = part.Write(data)
	require.NoError(a.t, err)
	require.NoError(a.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/files/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := a.do(req, token)
	out := map[string]interface{}{}
	require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return w, out
}

func payload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte('a' + i%26)
	}
	return b
}

func TestHealthAndNoRoute(t *testing.T) {
	a := newTestApp(t, nil)

	w, body := a.json(http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", body["status"])

	w, body = a.json(http.MethodGet, "/api/v1/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, float64(40400), body["code"])
}

func TestRegisterLoginMe(t *testing.T) {
	a := newTestApp(t, nil)

	w, body := a.json(http.MethodPost, "/api/v1/auth/register", gin.H{"email": "alice@example.com", "password": "password123"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, body["token"])
	assert.Equal(t, "user", body["role"])
	assert.Equal(t, float64(104857600), body["storageLimit"])
	assert.Equal(t, false, body["isUnlimited"])
	assert.Contains(t, w.Header().Get("Set-Cookie"), "auth=")

	w, _ = a.json(http.MethodPost, "/api/v1/auth/register", gin.H{"email": "alice@example.com", "password": "password123"}, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w, body = a.json(http.MethodPost, "/api/v1/auth/register", gin.H{"email": "not-an-email", "password": "password123"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid email format", body["error"])

	w, _ = a.json(http.MethodPost, "/api/v1/auth/login", gin.H{"email": "alice@example.com", "password": "wrong-password"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, body = a.json(http.MethodPost, "/api/v1/auth/login", gin.H{"email": "alice@example.com", "password": "password123"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	token := body["token"].(string)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: "auth", Value: token})
	w = a.do(req, "")
	require.Equal(t, http.StatusOK, w.Code)
	var me map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &me))
	assert.Equal(t, "alice@example.com", me["email"])
	assert.Equal(t, float64(0), me["storageUsed"])
}

func TestInitialRoleFromConfig(t *testing.T) {
	a := newTestApp(t, nil)
	w, body := a.json(http.MethodPost, "/api/v1/auth/register", gin.H{"email": "admin@example.com", "password": "password123"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "admin", body["role"])
	assert.Equal(t, float64(-1), body["storageLimit"])
	assert.Equal(t, true, body["isUnlimited"])
}

func TestUnauthenticatedResponsesAreIdentical(t *testing.T) {
	a := newTestApp(t, nil)

	_, missing := a.json(http.MethodGet, "/api/v1/files", nil, "")
	_, garbage := a.json(http.MethodGet, "/api/v1/files", nil, "garbage")
	w, _ := a.json(http.MethodGet, "/api/v1/files", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, map[string]interface{}{"error": "unauthorized", "code": float64(40101)}, missing)
	assert.Equal(t, missing, garbage)
}

func TestLogoutRevokesToken(t *testing.T) {
	a := newTestApp(t, nil)
	token := a.register("bob@example.com")

	w, _ := a.json(http.MethodPost, "/api/v1/auth/logout", nil, token)
	require.Equal(t, http.StatusOK, w.Code)

	w, _ = a.json(http.MethodGet, "/api/v1/auth/me", nil, token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestFileLifecycle(t *testing.T) {
	a := newTestApp(t, nil)
	token := a.register("alice@example.com")
	other := a.register("mallory@example.com")
	data := []byte("hello, sharebox")

	w, up := a.upload(token, "notes.txt", "text/plain", data)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	fileID := up["fileId"].(string)
	code := up["shareCode"].(string)
	assert.Equal(t, "notes.txt", up["fileName"])
	assert.Len(t, code, 8)
	assert.Equal(t, "http://example.com/share/"+code, up["shareLink"])

	// list
	w, list := a.json(http.MethodGet, "/api/v1/files", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	files := list["files"].([]interface{})
	require.Len(t, files, 1)
	item := files[0].(map[string]interface{})
	assert.Equal(t, fileID, item["id"])
	assert.Equal(t, code, item["shareCode"])
	assert.Equal(t, "text", item["kind"])
	assert.Equal(t, true, item["viewable"])
	user := list["user"].(map[string]interface{})
	assert.Equal(t, float64(len(data)), user["storageUsed"])

	// others see nothing
	_, otherList := a.json(http.MethodGet, "/api/v1/files", nil, other)
	assert.Empty(t, otherList["files"])

	// public share fetch on both mounts
	for _, path := range []string{"/share/" + code, "/api/v1/share/" + code} {
		w = a.do(httptest.NewRequest(http.MethodGet, path, nil), "")
		require.Equal(t, http.StatusOK, w.Code, path)
		assert.Equal(t, data, w.Body.Bytes())
		assert.Equal(t, "text/plain", w.Header().Get("Content-Type"))
		assert.True(t, strings.HasPrefix(w.Header().Get("Content-Disposition"), "inline"))
		assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	}

	w = a.do(httptest.NewRequest(http.MethodHead, "/share/"+code, nil), "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, fmt.Sprint(len(data)), w.Header().Get("Content-Length"))
	assert.Empty(t, w.Body.Bytes())

	w, info := a.json(http.MethodGet, "/api/v1/share/"+code+"/info", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "notes.txt", info["fileName"])
	assert.Equal(t, float64(len(data)), info["sizeBytes"])

	// owner download is an attachment; others get 404
	w = a.do(httptest.NewRequest(http.MethodGet, "/api/v1/files/"+fileID+"/download", nil), token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Disposition"), "attachment"))
	w = a.do(httptest.NewRequest(http.MethodGet, "/api/v1/files/"+fileID+"/download", nil), other)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// rename
	w, body := a.json(http.MethodPost, "/api/v1/files/rename", gin.H{"fileId": fileID, "newFilename": "../renamed.txt"}, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "renamed.txt", body["fileName"])
	w, _ = a.json(http.MethodPost, "/api/v1/files/rename", gin.H{"fileId": fileID, "newFilename": "x.txt"}, other)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// extra link
	w, link := a.json(http.MethodPost, "/api/v1/files/create-link", gin.H{"fileId": fileID}, token)
	require.Equal(t, http.StatusOK, w.Code)
	second := link["shareCode"].(string)
	assert.NotEqual(t, code, second)
	assert.NotEmpty(t, link["linkId"])
	w, _ = a.json(http.MethodPost, "/api/v1/files/create-link", gin.H{"fileId": fileID}, other)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// delete cascades to every link
	w, _ = a.json(http.MethodDelete, "/api/v1/files", gin.H{"fileId": fileID}, other)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, body = a.json(http.MethodDelete, "/api/v1/files", gin.H{"fileId": fileID}, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	for _, c := range []string{code, second} {
		w, body = a.json(http.MethodGet, "/share/"+c, nil, "")
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, float64(40401), body["code"])
	}
}

func TestUploadRequiresFile(t *testing.T) {
	a := newTestApp(t, nil)
	token := a.register("alice@example.com")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/files/upload", strings.NewReader("not multipart"))
	req.Header.Set("Content-Type", "text/plain")
	w := a.do(req, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestShareRangeOnVideo(t *testing.T) {
	a := newTestApp(t, nil)
	token := a.register("alice@example.com")
	data := payload(1000)

	w, up := a.upload(token, "clip.mp4", "video/mp4", data)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	code := up["shareCode"].(string)

	req := httptest.NewRequest(http.MethodGet, "/share/"+code, nil)
	req.Header.Set("Range", "bytes=200-499")
	w = a.do(req, "")
	require.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, "bytes 200-499/1000", w.Header().Get("Content-Range"))
	assert.Equal(t, "300", w.Header().Get("Content-Length"))
	assert.Equal(t, "bytes", w.Header().Get("Accept-Ranges"))
	assert.Equal(t, data[200:500], w.Body.Bytes())

	req = httptest.NewRequest(http.MethodGet, "/share/"+code, nil)
	req.Header.Set("Range", "bytes=900-")
	w = a.do(req, "")
	require.Equal(t, http.StatusPartialContent, w.Code)
	assert.Equal(t, data[900:], w.Body.Bytes())

	for _, header := range []string{"bytes=-100", "bytes=0-1,5-9", "bytes=2000-", "items=0-1"} {
		req = httptest.NewRequest(http.MethodGet, "/share/"+code, nil)
		req.Header.Set("Range", header)
		w = a.do(req, "")
		assert.Equal(t, http.StatusOK, w.Code, header)
		assert.Len(t, w.Body.Bytes(), 1000, header)
	}

	// non media ignores Range
	_, txt := a.upload(token, "a.txt", "text/plain", data)
	req = httptest.NewRequest(http.MethodGet, "/share/"+txt["shareCode"].(string), nil)
	req.Header.Set("Range", "bytes=0-9")
	w = a.do(req, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, w.Body.Bytes(), 1000)
}

func TestQuotaRejectionAndPromotion(t *testing.T) {
	a := newTestApp(t, func(c *config.AppConfig) { c.DefaultLimitBytes = 1000 })
	admin := a.register("admin@example.com")
	token := a.register("alice@example.com")

	w, body := a.upload(token, "big.bin", "application/octet-stream", payload(1500))
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, float64(40013), body["code"])
	assert.Equal(t, float64(0), body["currentUsed"])
	assert.Equal(t, float64(1000), body["limit"])
	assert.Equal(t, float64(1000), body["available"])
	assert.Equal(t, float64(1500), body["fileSize"])
	assert.Contains(t, body["error"], "1000 B")

	_, list := a.json(http.MethodGet, "/api/v1/files", nil, token)
	assert.Empty(t, list["files"])

	// only admins may promote
	w, _ = a.json(http.MethodPost, "/api/v1/auth/set-admin", gin.H{"email": "alice@example.com"}, token)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w, _ = a.json(http.MethodPost, "/api/v1/auth/set-admin", gin.H{"email": "ghost@example.com"}, admin)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = a.json(http.MethodPost, "/api/v1/auth/set-admin", gin.H{}, admin)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body = a.json(http.MethodPost, "/api/v1/auth/set-admin", gin.H{"email": "alice@example.com"}, admin)
	require.Equal(t, http.StatusOK, w.Code)
	promoted := body["user"].(map[string]interface{})
	assert.Equal(t, "admin", promoted["role"])
	assert.Equal(t, true, promoted["isUnlimited"])

	// the old token still works and the new role applies at once
	w, _ = a.upload(token, "big.bin", "application/octet-stream", payload(1500))
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = a.json(http.MethodGet, "/api/v1/admin/stats", nil, token)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestUploadTooLarge(t *testing.T) {
	a := newTestApp(t, func(c *config.AppConfig) { c.MaxUploadBytes = 100 })
	token := a.register("alice@example.com")

	w, body := a.upload(token, "big.bin", "application/octet-stream", payload(200))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, float64(41301), body["code"])
}

func TestAdminStats(t *testing.T) {
	a := newTestApp(t, nil)
	admin := a.register("admin@example.com")
	token := a.register("alice@example.com")

	_, up := a.upload(token, "a.txt", "text/plain", payload(10))
	a.upload(token, "b.txt", "text/plain", payload(20))
	code := up["shareCode"].(string)
	a.do(httptest.NewRequest(http.MethodGet, "/share/"+code, nil), "")
	a.do(httptest.NewRequest(http.MethodGet, "/share/"+code, nil), "")
	a.do(httptest.NewRequest(http.MethodHead, "/share/"+code, nil), "")

	w, _ := a.json(http.MethodGet, "/api/v1/admin/stats", nil, token)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, stats := a.json(http.MethodGet, "/api/v1/admin/stats", nil, admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(2), stats["userCount"])
	assert.Equal(t, float64(2), stats["fileCount"])
	assert.Equal(t, float64(30), stats["storedBytes"])
	assert.Equal(t, float64(2), stats["shareHitsToday"])
}

func TestPersistenceFailureStatus(t *testing.T) {
	a := newTestApp(t, nil)
	token := a.register("alice@example.com")

	sqlDB, err := a.db.DB()
	require.NoError(t, err)
	require.NoError(t, sqlDB.Close())

	w, body := a.json(http.MethodPost, "/api/v1/auth/register", gin.H{"email": "bob@example.com", "password": "password123"}, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, float64(50301), body["code"])

	w, body = a.json(http.MethodGet, "/api/v1/files", nil, token)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal server error", body["error"])
}
