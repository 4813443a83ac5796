package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

// newCORSRouter はCORSミドルウェアを適用したルーターを生成する。
func newCORSRouter(origins []string, called *bool) *gin.Engine {
	router := gin.New()
	router.Use(CORS(origins))
	router.GET("/tasks", func(c *gin.Context) {
		if called != nil {
			*called = true
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return router
}

// TestCORS はCORSミドルウェアを検証する。
func TestCORS(t *testing.T) {
	t.Parallel()

	t.Run("許可されたオリジンからのリクエストにCORSヘッダーが設定されること", func(t *testing.T) {
		t.Parallel()

		router := newCORSRouter([]string{"http://localhost:5173", "https://example.com"}, nil)
		req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
		req.Header.Set("Origin", "https://example.com")
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusOK)
		}
		want := map[string]string{
			"Access-Control-Allow-Origin":   "https://example.com",
			"Access-Control-Allow-Methods":  "GET, POST, PATCH, PUT, DELETE, OPTIONS",
			"Access-Control-Allow-Headers":  "Authorization, Content-Type",
			"Access-Control-Expose-Headers": "X-User-ID",
			"Access-Control-Max-Age":        "86400",
			"Vary":                          "Origin",
		}
		for k, v := range want {
			if got := w.Header().Get(k); got != v {
				t.Errorf("%s = %q, want %q", k, got, v)
			}
		}
	})

	t.Run("許可されていないオリジンにはCORSヘッダーが設定されないこと", func(t *testing.T) {
		t.Parallel()

		router := newCORSRouter([]string{"http://localhost:5173"}, nil)
		req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
		req.Header.Set("Origin", "https://evil.example.com")
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("Access-Control-Allow-Origin = %q, want empty", got)
		}
	})

	t.Run("ワイルドカード指定で任意のオリジンが許可されること", func(t *testing.T) {
		t.Parallel()

		router := newCORSRouter([]string{"*"}, nil)
		req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
		req.Header.Set("Origin", "https://any.example.org")
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://any.example.org" {
			t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, "https://any.example.org")
		}
	})

	t.Run("Originヘッダーが無いリクエストにCORSヘッダーが設定されないこと", func(t *testing.T) {
		t.Parallel()

		router := newCORSRouter([]string{"*"}, nil)
		req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("Access-Control-Allow-Origin = %q, want empty", got)
		}
	})

	t.Run("プリフライトリクエストで204が返りハンドラーが呼ばれないこと", func(t *testing.T) {
		t.Parallel()

		called := false
		router := newCORSRouter([]string{"http://localhost:5173"}, &called)
		req := httptest.NewRequest(http.MethodOptions, "/tasks", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if w.Code != http.StatusNoContent {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusNoContent)
		}
		if called {
			t.Error("プリフライトでハンドラーが呼ばれるべきではない")
		}
	})

	t.Run("空のオリジンリストでは何もせず後続に渡すこと", func(t *testing.T) {
		t.Parallel()

		called := false
		router := newCORSRouter(nil, &called)
		req := httptest.NewRequest(http.MethodGet, "/tasks", nil)
		req.Header.Set("Origin", "http://localhost:5173")
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if !called {
			t.Error("ハンドラーが呼ばれていない")
		}
		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("Access-Control-Allow-Origin = %q, want empty", got)
		}
	})
}
