package devgateway

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"codesync/internal/domain"
	"codesync/internal/errors"
)

const tokenTTL = 12 * time.Hour

// Claims carried by a participant token. The session core never inspects
// these; it just forwards the bearer string the gateway issued.
type Claims struct {
	Name string      `json:"name"`
	Role domain.Role `json:"role"`
	jwt.RegisteredClaims
}

type Auth struct {
	secret []byte
}

func NewAuth(secret string) *Auth {
	return &Auth{secret: []byte(secret)}
}

func (a *Auth) Issue(userID, name string, role domain.Role) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Name: name,
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(tokenTTL)),
		},
	})
	return t.SignedString(a.secret)
}

func (a *Auth) Verify(token string) (*Claims, error) {
	var claims Claims
	t, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New(errors.CodeUnauthenticated,
				errors.WithMessagef("unexpected signing method: %v", t.Header["alg"]))
		}
		return a.secret, nil
	})
	if err != nil || !t.Valid {
		return nil, errors.New(errors.CodeUnauthenticated,
			errors.WithMessagef("invalid token"),
			errors.WithCause(err),
		)
	}
	return &claims, nil
}

const claimsKey = "devgateway.claims"

// Middleware authenticates every request in the group and stashes the
// verified claims on the gin context.
func (a *Auth) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(h, "Bearer ")
		if !ok || token == "" {
			abortWithError(c, errors.New(errors.CodeUnauthenticated,
				errors.WithMessagef("missing bearer token")))
			return
		}

		claims, err := a.Verify(token)
		if err != nil {
			abortWithError(c, err)
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

func claimsFrom(c *gin.Context) *Claims {
	v, ok := c.Get(claimsKey)
	if !ok {
		return &Claims{}
	}
	return v.(*Claims)
}
