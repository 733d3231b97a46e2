package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	require.NoError(t, Init("en"))
	return WithLocalizer(context.Background(), NewLocalizer(lang))
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")
	assert.Equal(t, "This exam session was terminated.", T(ctx, "SESSION_TERMINATED"))
}

func TestTranslateChinese(t *testing.T) {
	ctx := initLang(t, "zh")
	assert.Equal(t, "该考试会话已被终止。", T(ctx, "SESSION_TERMINATED"))
}

func TestTemplateData(t *testing.T) {
	ctx := initLang(t, "en")
	assert.Equal(t, "Essay answers are limited to 150 characters.", Td(ctx, "ANSWER_TOO_LONG", map[string]any{"Max": 150}))
}

func TestMissingKeyReturnsID(t *testing.T) {
	ctx := initLang(t, "en")
	assert.Equal(t, "NoSuchMessage", T(ctx, "NoSuchMessage"))
}

func TestNegotiate(t *testing.T) {
	require.NoError(t, Init("en"))

	tests := []struct {
		header string
		want   string
	}{
		{"", "en"},
		{"zh-CN,zh;q=0.9,en;q=0.8", "zh"},
		{"en-US", "en"},
		{"fr-FR", "en"},
	}
	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			assert.Equal(t, tt.want, Negotiate(tt.header))
		})
	}
}

func TestMiddlewareLocalizesRequest(t *testing.T) {
	require.NoError(t, Init("en"))
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Middleware())
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, T(c.Request.Context(), "NOT_FOUND"))
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "zh-CN")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "资源不存在。", w.Body.String())
	assert.Equal(t, "zh", w.Header().Get("Content-Language"))
}
