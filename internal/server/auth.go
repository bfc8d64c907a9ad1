package server

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"
)

const authCookieName = "auth"

// AuthHandler gates the API behind a single shared password. When no
// password is configured every request passes through unchallenged.
type AuthHandler struct {
	passwordHash []byte
	secret       []byte
	tokenTTL     time.Duration
}

func NewAuthHandler(password, jwtSecret string) (*AuthHandler, error) {
	a := &AuthHandler{secret: []byte(jwtSecret), tokenTTL: 24 * time.Hour}
	if password == "" {
		return a, nil
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	a.passwordHash = hash
	return a, nil
}

// Enabled reports whether the login gate is active.
func (a *AuthHandler) Enabled() bool { return a.passwordHash != nil }

// Login
//
// Exchanges the shared password for a signed token, set both as an auth
// cookie and returned in the body for Bearer flows.
func (a *AuthHandler) Login(c echo.Context) error {
	if !a.Enabled() {
		return echo.NewHTTPError(http.StatusNotFound, "auth is disabled")
	}
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if bcrypt.CompareHashAndPassword(a.passwordHash, []byte(req.Password)) != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid password")
	}

	claims := jwt.MapClaims{
		"sub": "app",
		"exp": time.Now().Add(a.tokenTTL).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	cookie := new(http.Cookie)
	cookie.Name = authCookieName
	cookie.Value = signed
	cookie.Path = "/"
	cookie.HttpOnly = true
	cookie.SameSite = http.SameSiteLaxMode
	c.SetCookie(cookie)
	return c.JSON(http.StatusOK, TokenResponse{Token: signed})
}

// Middleware validates the token from the Authorization header or the auth
// cookie. It is a no-op when the gate is disabled.
func (a *AuthHandler) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !a.Enabled() {
				return next(c)
			}
			tok := extractToken(c)
			if tok == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing token")
			}
			parsed, err := jwt.Parse(tok, func(*jwt.Token) (interface{}, error) {
				return a.secret, nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || !parsed.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			return next(c)
		}
	}
}

func extractToken(c echo.Context) string {
	if h := c.Request().Header.Get("Authorization"); len(h) > 7 && h[:7] == "Bearer " {
		return h[7:]
	}
	if ck, err := c.Cookie(authCookieName); err == nil {
		return ck.Value
	}
	return ""
}
