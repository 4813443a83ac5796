package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
)

// errMsgInternal はパニック発生時にクライアントへ返すメッセージ。
const errMsgInternal = "internal server error"

// Recovery はパニックからの回復を行うGinミドルウェアを返す。
// パニック値とスタックトレースはloggerにのみ出力し、クライアントには汎用メッセージの500を返す。
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("panic recovered",
					"method", c.Request.Method,
					"path", c.Request.URL.Path,
					"panic", r,
					"stack", string(debug.Stack()),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": errMsgInternal,
				})
			}
		}()
		c.Next()
	}
}
