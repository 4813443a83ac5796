// Package server はタスク管理APIのHTTPサーバーを提供する。
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nao1215/taskhub/internal/auth"
	"github.com/nao1215/taskhub/internal/task"
	"github.com/nao1215/taskhub/pkg/middleware"
)

// readHeaderTimeout はリクエストヘッダーの読み込みタイムアウト。
const readHeaderTimeout = 10 * time.Second

// Pinger はデータストアの疎通確認を行う。
type Pinger interface {
	Ping(ctx context.Context) error
}

// Metrics はメトリクスの登録先と公開元。
type Metrics interface {
	prometheus.Registerer
	prometheus.Gatherer
}

// Options はServerの生成に必要な依存と設定。
type Options struct {
	// Addr は待ち受けアドレス（例: ":3000"）。
	Addr string
	// Auth はユーザー登録とログインのサービス。
	Auth *auth.Service
	// Tasks はタスク操作のサービス。
	Tasks *task.Service
	// Issuer はアクセスゲートでトークンを検証する。
	Issuer *middleware.TokenIssuer
	// Store は/readyで疎通を確認する。
	Store Pinger
	// Logger はリクエストログとエラーログの出力先。
	Logger *slog.Logger
	// CORSOrigins はクロスオリジンを許可するオリジン。
	CORSOrigins []string
	// Metrics がnilでなければ計測して/metricsで公開する。
	Metrics Metrics
}

// Server はタスク管理APIのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// httpServer は待ち受け中のサーバー。
	httpServer *http.Server
	auth       *auth.Service
	tasks      *task.Service
	issuer     *middleware.TokenIssuer
	store      Pinger
	logger     *slog.Logger
	metrics    Metrics
}

// New は新しいServerを生成し、ルーティングを設定する。
func New(opts Options) (*Server, error) {
	if opts.Auth == nil || opts.Tasks == nil || opts.Issuer == nil || opts.Store == nil {
		return nil, errors.New("サーバーの依存が不足しています")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	router := gin.New()
	router.Use(middleware.Recovery(logger))
	router.Use(middleware.RequestLogger(logger))
	if opts.Metrics != nil {
		m, err := middleware.NewMetrics(opts.Metrics)
		if err != nil {
			return nil, fmt.Errorf("メトリクスの登録に失敗: %w", err)
		}
		router.Use(m.Handler())
	}
	router.Use(middleware.CORS(opts.CORSOrigins))

	s := &Server{
		router: router,
		httpServer: &http.Server{
			Addr:              opts.Addr,
			Handler:           router,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		auth:    opts.Auth,
		tasks:   opts.Tasks,
		issuer:  opts.Issuer,
		store:   opts.Store,
		logger:  logger,
		metrics: opts.Metrics,
	}
	s.setupRoutes()
	return s, nil
}

// Handler はルーティング済みのhttp.Handlerを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動し、Shutdownが呼ばれるまでブロックする。
func (s *Server) Run() error {
	s.logger.Info("server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown は処理中のリクエストの完了を待ってサーバーを停止する。
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	// ヘルスチェック
	s.router.GET("/health", s.handleHealth())
	s.router.GET("/ready", s.handleReady())
	if s.metrics != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.metrics, promhttp.HandlerOpts{})))
	}

	authGroup := s.router.Group("/auth")
	{
		authGroup.POST("/register", s.handleRegister())
		authGroup.POST("/login", s.handleLogin())
	}

	tasks := s.router.Group("/tasks")
	tasks.Use(middleware.JWTAuth(s.issuer))
	{
		tasks.POST("", s.handleCreateTask())
		tasks.GET("", s.handleListTasks())
		tasks.GET("/:id", s.handleGetTask())
		tasks.PUT("/:id", s.handleUpdateTask())
		tasks.DELETE("/:id", s.handleDeleteTask())
	}
}
