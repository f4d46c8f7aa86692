package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Pinak57/localchef-server/models"
	apperrors "github.com/Pinak57/localchef-server/pkg/errors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
)

const IdentityContextKey = "identity"

// Claims is the bearer token payload issued by the identity provider.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// AuthMiddleware resolves the caller from an HMAC-signed bearer JWT. When
// trustGatewayHeaders is set, X-User-ID/X-User-Email/X-User-Role injected by
// the API gateway are accepted instead.
func AuthMiddleware(secret []byte, trustGatewayHeaders bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if trustGatewayHeaders {
			if id, ok := identityFromHeaders(c); ok {
				c.Set(IdentityContextKey, id)
				c.Next()
				return
			}
		}

		header := c.GetHeader("Authorization")
		if header == "" {
			AbortWithError(c, apperrors.Unauthorized("Token is required"))
			return
		}
		if !strings.HasPrefix(header, "Bearer ") {
			AbortWithError(c, apperrors.Unauthorized("Invalid token format"))
			return
		}

		id, err := ParseIdentity(strings.TrimPrefix(header, "Bearer "), secret)
		if err != nil {
			AbortWithError(c, apperrors.New(apperrors.KindUnauthorized, "Invalid or expired token", err))
			return
		}
		c.Set(IdentityContextKey, id)
		c.Next()
	}
}

// ParseIdentity validates tokenString and maps its claims to an Identity.
func ParseIdentity(tokenString string, secret []byte) (models.Identity, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return models.Identity{}, err
	}
	if !token.Valid {
		return models.Identity{}, errors.New("token is not valid")
	}
	if claims.Subject == "" || claims.Email == "" {
		return models.Identity{}, errors.New("token is missing subject or email")
	}
	return models.Identity{
		SubjectID: claims.Subject,
		Email:     claims.Email,
		Role:      models.Role(strings.ToLower(claims.Role)),
	}, nil
}

func identityFromHeaders(c *gin.Context) (models.Identity, bool) {
	id := models.Identity{
		SubjectID: c.GetHeader("X-User-ID"),
		Email:     c.GetHeader("X-User-Email"),
		Role:      models.Role(strings.ToLower(c.GetHeader("X-User-Role"))),
	}
	return id, id.SubjectID != "" && id.Email != ""
}

// GetIdentity returns the identity resolved by AuthMiddleware.
func GetIdentity(c *gin.Context) (models.Identity, bool) {
	val, ok := c.Get(IdentityContextKey)
	if !ok {
		return models.Identity{}, false
	}
	id, ok := val.(models.Identity)
	return id, ok
}

// AbortWithError writes the standard error body and stops the chain.
func AbortWithError(c *gin.Context, err *apperrors.Error) {
	code := err.Code
	if code == 0 {
		code = http.StatusInternalServerError
	}
	c.AbortWithStatusJSON(code, gin.H{"error": gin.H{"kind": err.Kind, "message": err.Message}})
}
