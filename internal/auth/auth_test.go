package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartattend/internal/identity"
)

const (
	testKey    = "test-signing-key"
	testIssuer = "smartattend"
)

type userMap map[string]identity.User

func (m userMap) Get(id string) (identity.User, bool) {
	u, ok := m[id]
	return u, ok
}

var alice = identity.User{ID: "u1", Name: "Alice", Email: "alice@uni.edu", Role: identity.RoleStudent, StudentID: "S1"}

func TestIssueAndParse(t *testing.T) {
	pair, err := Issue(alice, testIssuer, testKey, time.Minute, time.Hour)
	require.NoError(t, err)
	assert.True(t, pair.RefreshExp.After(pair.AccessExp))

	claims, err := Parse(pair.AccessToken, testKey, testIssuer)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, identity.RoleStudent, claims.Role)
	assert.Equal(t, KindAccess, claims.Kind)

	_, err = Parse(pair.AccessToken, "other-key", testIssuer)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = Parse(pair.AccessToken, testKey, "someone-else")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestParse_Expired(t *testing.T) {
	pair, err := Issue(alice, testIssuer, testKey, -time.Minute, time.Hour)
	require.NoError(t, err)
	_, err = Parse(pair.AccessToken, testKey, testIssuer)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestUserAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(UserAuth(testKey, testIssuer, userMap{"u1": alice}))
	r.GET("/me", func(c *gin.Context) {
		u, ok := Caller(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.String(http.StatusOK, u.Name)
	})

	pair, err := Issue(alice, testIssuer, testKey, time.Minute, time.Hour)
	require.NoError(t, err)
	ghost, err := Issue(identity.User{ID: "u9", Role: identity.RoleStudent}, testIssuer, testKey, time.Minute, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"garbage", "Bearer abc", http.StatusUnauthorized},
		{"refresh token", "Bearer " + pair.RefreshToken, http.StatusUnauthorized},
		{"unknown subject", "Bearer " + ghost.AccessToken, http.StatusUnauthorized},
		{"valid", "bearer " + pair.AccessToken, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, "Alice", w.Body.String())
			}
		})
	}
}
