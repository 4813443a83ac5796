package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/taskhub/internal/task"
	"github.com/nao1215/taskhub/pkg/middleware"
)

// handleCreateTask はタスクを作成するハンドラを返す。
func (s *Server) handleCreateTask() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createTaskRequest
		if err := bindJSON(c, &req, false); err != nil {
			s.respondError(c, err)
			return
		}

		created, err := s.tasks.Create(c.Request.Context(), ownerID(c), task.CreateInput{
			Title:       req.Title,
			Description: req.Description,
		})
		if err != nil {
			s.respondError(c, err)
			return
		}

		c.JSON(http.StatusCreated, toTaskResponse(created))
	}
}

// handleListTasks は自分のタスク一覧を返すハンドラを返す。
func (s *Server) handleListTasks() gin.HandlerFunc {
	return func(c *gin.Context) {
		tasks, err := s.tasks.ListOwned(c.Request.Context(), ownerID(c))
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, toTaskResponses(tasks))
	}
}

// handleGetTask はタスクを1件返すハンドラを返す。
func (s *Server) handleGetTask() gin.HandlerFunc {
	return func(c *gin.Context) {
		t, err := s.tasks.GetOwned(c.Request.Context(), ownerID(c), c.Param("id"))
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, toTaskResponse(t))
	}
}

// handleUpdateTask はタスクを部分更新するハンドラを返す。
func (s *Server) handleUpdateTask() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req updateTaskRequest
		if err := bindJSON(c, &req, false); err != nil {
			s.respondError(c, err)
			return
		}

		updated, err := s.tasks.UpdateOwned(c.Request.Context(), ownerID(c), c.Param("id"), req.patch())
		if err != nil {
			s.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, toTaskResponse(updated))
	}
}

// handleDeleteTask はタスクを削除するハンドラを返す。
func (s *Server) handleDeleteTask() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := s.tasks.DeleteOwned(c.Request.Context(), ownerID(c), c.Param("id")); err != nil {
			s.respondError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// ownerID はアクセスゲートがリクエストのコンテキストに設定したユーザーIDを返す。
// 設定されていない場合は空文字列を返し、サービス側で未認証として扱われる。
func ownerID(c *gin.Context) string {
	identity, _ := middleware.IdentityFromContext(c.Request.Context())
	return identity.ID
}
