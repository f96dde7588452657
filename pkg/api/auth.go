package api

import (
	echo "github.com/labstack/echo/v5"
)

// extractActor identifies the operator behind an approval decision when the
// request body does not name one. Priority: X-Forwarded-User (oauth2-proxy) >
// X-Forwarded-Email > X-Remote-User (kube-rbac-proxy) > "api-client".
func extractActor(c *echo.Context) string {
	if user := c.Request().Header.Get("X-Forwarded-User"); user != "" {
		return user
	}
	if email := c.Request().Header.Get("X-Forwarded-Email"); email != "" {
		return email
	}
	if user := c.Request().Header.Get("X-Remote-User"); user != "" {
		return user
	}
	return "api-client"
}
