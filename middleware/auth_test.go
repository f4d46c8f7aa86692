package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Pinak57/localchef-server/models"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func init() {
	gin.SetMode(gin.TestMode)
}

func signToken(t *testing.T, secret []byte, sub, email, role string, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	s, err := token.SignedString(secret)
	require.NoError(t, err)
	return s
}

func setupAuthRouter(trustHeaders bool) *gin.Engine {
	r := gin.New()
	r.GET("/me", AuthMiddleware(testSecret, trustHeaders), func(c *gin.Context) {
		id, ok := GetIdentity(c)
		if !ok {
			c.Status(http.StatusInternalServerError)
			return
		}
		c.JSON(http.StatusOK, id)
	})
	return r
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	r := setupAuthRouter(false)
	tok := signToken(t, testSecret, "chef-1", "chef@example.com", "Chef", time.Now().Add(time.Hour))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var id models.Identity
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &id))
	assert.Equal(t, "chef-1", id.SubjectID)
	assert.Equal(t, "chef@example.com", id.Email)
	assert.Equal(t, models.RoleChef, id.Role)
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	cases := map[string]string{
		"missing":      "",
		"no bearer":    "Token abc",
		"wrong secret": "Bearer " + signToken(t, []byte("other"), "u", "u@example.com", "customer", time.Now().Add(time.Hour)),
		"expired":      "Bearer " + signToken(t, testSecret, "u", "u@example.com", "customer", time.Now().Add(-time.Hour)),
		"no email":     "Bearer " + signToken(t, testSecret, "u", "", "customer", time.Now().Add(time.Hour)),
	}
	r := setupAuthRouter(false)
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			var body map[string]map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, "unauthorized", body["error"]["kind"])
		})
	}
}

func TestAuthMiddleware_GatewayHeaders(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("X-User-ID", "cust-1")
	req.Header.Set("X-User-Email", "cust@example.com")
	req.Header.Set("X-User-Role", "customer")

	w := httptest.NewRecorder()
	setupAuthRouter(true).ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	setupAuthRouter(false).ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
