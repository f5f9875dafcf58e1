package auth

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cs2kz-api/cs2kz-api/internal/cache"
	kzdb "github.com/cs2kz-api/cs2kz-api/internal/db"
)

func setupSessionAuthTest(t *testing.T) (*SessionAuth, sqlmock.Sqlmock, func()) {
	gin.SetMode(gin.TestMode)

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	database := kzdb.NewDatabaseForTesting(mockDB)
	disabledCache, err := cache.NewCache(cache.Config{Enabled: false})
	require.NoError(t, err)
	store := NewSessionStore(disabledCache, time.Hour)

	a := NewSessionAuth(database, store, "", false, time.Hour)
	return a, mock, func() { mockDB.Close() }
}

func newRequestWithCookie(sessionID string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/auth/web", nil)
	if sessionID != "" {
		req.AddCookie(&http.Cookie{Name: CookieName, Value: sessionID})
	}
	return req
}

func TestMiddleware_MissingCookieAborts(t *testing.T) {
	a, _, cleanup := setupSessionAuthTest(t)
	defer cleanup()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = newRequestWithCookie("")

	a.Middleware(nil)(c)

	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMiddleware_UnknownSessionIsAuthInvalid(t *testing.T) {
	a, mock, cleanup := setupSessionAuthTest(t)
	defer cleanup()

	mock.ExpectQuery(`SELECT id, user_id, granted_permissions, created_at, expires_at FROM login_sessions WHERE id = \$1`).
		WithArgs("sess-1").
		WillReturnError(sql.ErrNoRows)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = newRequestWithCookie("sess-1")

	a.Middleware(nil)(c)

	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMiddleware_ExpiredSessionIsAuthInvalid(t *testing.T) {
	a, mock, cleanup := setupSessionAuthTest(t)
	defer cleanup()

	past := time.Now().Add(-time.Hour)
	mock.ExpectQuery(`SELECT id, user_id, granted_permissions, created_at, expires_at FROM login_sessions WHERE id = \$1`).
		WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "granted_permissions", "created_at", "expires_at"}).
			AddRow("sess-1", 1, 0, past.Add(-time.Hour), past))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = newRequestWithCookie("sess-1")

	a.Middleware(nil)(c)

	assert.True(t, c.IsAborted())
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Header().Get("Set-Cookie"), CookieName+"=;", "an expired session must clear the caller's stale cookie")
}

func TestMiddleware_ValidSessionExtendsAndRewritesCookie(t *testing.T) {
	a, mock, cleanup := setupSessionAuthTest(t)
	defer cleanup()

	future := time.Now().Add(time.Hour)
	mock.ExpectQuery(`SELECT id, user_id, granted_permissions, created_at, expires_at FROM login_sessions WHERE id = \$1`).
		WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "granted_permissions", "created_at", "expires_at"}).
			AddRow("sess-1", 1, 0, future.Add(-time.Hour), future))

	mock.ExpectExec(`UPDATE login_sessions SET expires_at = \$1 WHERE id = \$2`).
		WithArgs(sqlmock.AnyArg(), "sess-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = newRequestWithCookie("sess-1")

	handlerRan := false
	c.Handlers = gin.HandlersChain{a.Middleware(nil), func(c *gin.Context) {
		handlerRan = true
		assert.NotNil(t, Session(c))
	}}
	c.Next()

	assert.True(t, handlerRan)
	assert.False(t, c.IsAborted())
	assert.Contains(t, w.Header().Get("Set-Cookie"), CookieName+"=sess-1")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMiddleware_RevokeWritesDeletionCookie(t *testing.T) {
	a, mock, cleanup := setupSessionAuthTest(t)
	defer cleanup()

	future := time.Now().Add(time.Hour)
	mock.ExpectQuery(`SELECT id, user_id, granted_permissions, created_at, expires_at FROM login_sessions WHERE id = \$1`).
		WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "granted_permissions", "created_at", "expires_at"}).
			AddRow("sess-1", 1, 0, future.Add(-time.Hour), future))

	mock.ExpectExec(`DELETE FROM login_sessions WHERE id = \$1`).
		WithArgs("sess-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = newRequestWithCookie("sess-1")

	c.Handlers = gin.HandlersChain{a.Middleware(nil), func(c *gin.Context) {
		require.NoError(t, a.Revoke(c, Session(c), RevokeCurrent))
	}}
	c.Next()

	assert.False(t, c.IsAborted())
	assert.Contains(t, w.Header().Get("Set-Cookie"), CookieName+"=;")
	assert.NoError(t, mock.ExpectationsWereMet())
}
