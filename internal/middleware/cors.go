package middleware

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS returns a configured CORS middleware. The auth and request id
// headers are always allowed regardless of configuration, so browser
// clients can authenticate and correlate responses.
func CORS(origins, methods, headers []string) gin.HandlerFunc {
	allowHeaders := append([]string{"X-API-Key", requestIDHeader}, headers...)

	return cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  methods,
		AllowHeaders:  allowHeaders,
		ExposeHeaders: []string{requestIDHeader},
	})
}
