package middleware

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"referralhub/internal/config"
)

// CORS admits browser calls from the storefront. Credentials are not shared cross-origin.
func CORS(cfg config.CORSConfig) gin.HandlerFunc {
	c := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  append([]string{"Origin", "Content-Type", "Authorization"}, cfg.ExtraHeaders...),
		ExposeHeaders: []string{"Retry-After"},
		MaxAge:        cfg.MaxAge,
	}
	if anyOrigin(cfg.StorefrontOrigins) {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = cfg.StorefrontOrigins
	}
	return cors.New(c)
}

func anyOrigin(origins []string) bool {
	if len(origins) == 0 {
		return true
	}
	for _, o := range origins {
		if o == "*" {
			return true
		}
	}
	return false
}
