package httpapi

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// cartClaims binds a cart session token to a signed browser cookie.
type cartClaims struct {
	CartToken string `json:"cart"`
	jwt.RegisteredClaims
}

func (handler *httpHandler) issueCartCookie(ctx *gin.Context, cartToken string) error {
	now := time.Now()
	claims := cartClaims{
		CartToken: cartToken,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    handler.cfg.SessionIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(handler.cfg.SessionTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).
		SignedString([]byte(handler.cfg.SessionSigningKey))
	if err != nil {
		return fmt.Errorf("sign cart cookie: %w", err)
	}
	ctx.SetCookie(handler.cfg.SessionCookieName, signed,
		int(handler.cfg.SessionTTL/time.Second), "/", "", false, true)
	return nil
}

// cartTokenFromCookie extracts and verifies the cart token. Any parse or
// validation failure reads as "no cart"; the caller starts a fresh one.
func (handler *httpHandler) cartTokenFromCookie(ctx *gin.Context) (string, bool) {
	raw, err := ctx.Cookie(handler.cfg.SessionCookieName)
	if err != nil || raw == "" {
		return "", false
	}
	var claims cartClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(handler.cfg.SessionSigningKey), nil
	}, jwt.WithIssuer(handler.cfg.SessionIssuer))
	if err != nil || !token.Valid || claims.CartToken == "" {
		return "", false
	}
	return claims.CartToken, true
}

func (handler *httpHandler) clearCartCookie(ctx *gin.Context) {
	ctx.SetCookie(handler.cfg.SessionCookieName, "", -1, "/", "", false, true)
}
