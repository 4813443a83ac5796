package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// handleRegister はユーザー登録を行うハンドラを返す。
func (s *Server) handleRegister() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req credentialsRequest
		if err := bindJSON(c, &req, true); err != nil {
			s.respondError(c, err)
			return
		}

		identity, err := s.auth.Register(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			s.respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, identityResponse{ID: identity.ID, Username: identity.Username})
	}
}

// handleLogin はログインしてセッショントークンを返すハンドラを返す。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req credentialsRequest
		if err := bindJSON(c, &req, true); err != nil {
			s.respondError(c, err)
			return
		}

		token, err := s.auth.Login(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			s.respondError(c, err)
			return
		}

		c.JSON(http.StatusOK, tokenResponse{
			Token:     token,
			ExpiresIn: int64(s.issuer.TTL().Seconds()),
		})
	}
}
