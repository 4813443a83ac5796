package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/taskhub/internal/domain"
)

// msgInternal は内部エラー時にクライアントへ返すメッセージ。
const msgInternal = "internal server error"

// respondError はエラーの種別に応じたステータスでエラーレスポンスを返す。
// 種別を持たないエラーは原因をログに出し、クライアントには汎用メッセージだけを返す。
func (s *Server) respondError(c *gin.Context, err error) {
	var de *domain.Error
	if errors.As(err, &de) {
		c.JSON(statusFor(de.Kind), gin.H{"error": de.Message})
		return
	}

	s.logger.Error("request failed",
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"error", err,
	)
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msgInternal})
}

// statusFor はエラー種別をHTTPステータスに対応付ける。
func statusFor(kind error) int {
	switch {
	case errors.Is(kind, domain.ErrValidation), errors.Is(kind, domain.ErrConflict):
		return http.StatusBadRequest
	case errors.Is(kind, domain.ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(kind, domain.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
