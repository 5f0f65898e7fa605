package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/jmehdipour/wallet-notifier/internal/config"
	echo "github.com/labstack/echo/v4"
)

const (
	ctxOperator    = "operator"
	ctxOperatorRPS = "operator_rps"
)

// OperatorFromCtx returns the operator name set by APIKeyMiddleware.
func OperatorFromCtx(c echo.Context) (string, bool) {
	name, ok := c.Get(ctxOperator).(string)
	return name, ok && name != ""
}

// APIKeyMiddleware authenticates operators by the X-API-Key header against the configured keys.
// Operators with an empty key are ignored.
func APIKeyMiddleware(operators []config.OperatorConfig) echo.MiddlewareFunc {
	known := make([]config.OperatorConfig, 0, len(operators))
	for _, op := range operators {
		if strings.TrimSpace(op.APIKey) != "" {
			known = append(known, op)
		}
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := strings.TrimSpace(c.Request().Header.Get("X-API-Key"))
			if key == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing api key"})
			}
			for _, op := range known {
				if subtle.ConstantTimeCompare([]byte(key), []byte(op.APIKey)) == 1 {
					c.Set(ctxOperator, op.Name)
					if op.RPS > 0 {
						c.Set(ctxOperatorRPS, op.RPS)
					}
					return next(c)
				}
			}
			return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid api key"})
		}
	}
}
