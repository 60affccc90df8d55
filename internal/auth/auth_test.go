package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/infinityhole/api/internal/db"
	"github.com/infinityhole/api/internal/user"
)

const testSecret = "test-secret"

func newTestService(t *testing.T) *Service {
	t.Helper()
	conn, err := db.Open(db.DriverSQLite, filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, db.Migrate(conn, db.DriverSQLite))

	svc := NewService(NewRepository(conn), user.NewService(user.NewRepository(conn)), testSecret, time.Hour)
	svc.cost = bcrypt.MinCost
	return svc
}

func parseToken(t *testing.T, token string) jwt.MapClaims {
	t.Helper()
	parsed, err := jwt.Parse(token, func(*jwt.Token) (any, error) { return []byte(testSecret), nil })
	require.NoError(t, err)
	return parsed.Claims.(jwt.MapClaims)
}

func TestService_RegisterAndLogin(t *testing.T) {
	svc := newTestService(t)
	ctx := t.Context()

	reg, err := svc.Register(ctx, "alice", "alice@example.com", "password123")
	require.NoError(t, err)
	assert.NotEmpty(t, reg.Token)
	assert.NotEqual(t, "password123", reg.User.PasswordHash)

	claims := parseToken(t, reg.Token)
	assert.Equal(t, reg.User.ID, claims["sub"])
	assert.Equal(t, "alice", claims["username"])

	byName, err := svc.Login(ctx, "alice", "password123")
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, byName.User.ID)

	byEmail, err := svc.Login(ctx, "ALICE@example.com", "password123")
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, byEmail.User.ID)
}

func TestService_LoginFailures(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Register(t.Context(), "bob", "", "password123")
	require.NoError(t, err)

	_, err = svc.Login(t.Context(), "bob", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(t.Context(), "nobody", "password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestService_RegisterDuplicate(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Register(t.Context(), "carol", "carol@example.com", "password123")
	require.NoError(t, err)

	_, err = svc.Register(t.Context(), "CAROL", "", "password123")
	assert.ErrorIs(t, err, ErrUserExists)

	_, err = svc.Register(t.Context(), "carol2", "carol@example.com", "password123")
	assert.ErrorIs(t, err, ErrUserExists)
}

func TestValidateRegister(t *testing.T) {
	cases := []struct {
		req registerRequest
		ok  bool
	}{
		{registerRequest{Username: "good_name", Password: "password123"}, true},
		{registerRequest{Username: " padded ", Password: "password123"}, true},
		{registerRequest{Username: "ab", Password: "password123"}, false},
		{registerRequest{Username: "bad-name", Password: "password123"}, false},
		{registerRequest{Username: "good", Email: "not-an-email", Password: "password123"}, false},
		{registerRequest{Username: "good", Email: "Name <a@b.co>", Password: "password123"}, false},
		{registerRequest{Username: "good", Email: "a@b.co", Password: "short"}, false},
		{registerRequest{Username: "good", Password: string(bytes.Repeat([]byte("x"), 73))}, false},
	}
	for _, tc := range cases {
		req := tc.req
		assert.Equal(t, tc.ok, validateRegister(&req) == "", "%+v", tc.req)
	}
}

func TestHandler_RegisterLoginFlow(t *testing.T) {
	h := NewHandler(newTestService(t))

	post := func(fn http.HandlerFunc, body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		fn(rec, httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body)))
		return rec
	}

	rec := post(h.Register, `{"username":"dave","email":"dave@example.com","password":"password123"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "password")

	rec = post(h.Register, `{"username":"dave","password":"password123"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = post(h.Register, `{"username":"x","password":"password123"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(h.Login, `{"login":"dave","password":"password123"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var env struct {
		Data Result `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.NotEmpty(t, env.Data.Token)

	rec = post(h.Login, `{"login":"dave","password":"nope-nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = post(h.Login, `{"login":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
