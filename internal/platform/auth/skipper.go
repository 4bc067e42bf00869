package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths bypass authentication: health checks and FHIR discovery.
var publicPaths = map[string]bool{
	"/health":        true,
	"/health/ready":  true,
	"/fhir/metadata": true,
}

// AuthSkipper returns true for requests whose route should skip
// authentication. Pass it as JWTConfig.Skipper or to DevAuthMiddleware.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

func IsPublicPath(path string) bool {
	return publicPaths[path]
}
