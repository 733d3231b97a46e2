package i18n

import "github.com/gin-gonic/gin"

// Middleware negotiates the request language from Accept-Language and puts
// the matching localizer on the request context.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		lang := Negotiate(c.GetHeader("Accept-Language"))
		c.Header("Content-Language", lang)
		ctx := WithLocalizer(c.Request.Context(), NewLocalizer(lang))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
