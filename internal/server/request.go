package server

import (
	"bytes"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/nao1215/taskhub/internal/domain"
)

// msgInvalidBody はJSONとして解釈できないボディに対するメッセージ。
const msgInvalidBody = "invalid request body"

// errBodyRequired はボディが空であることを表す。
var errBodyRequired = domain.Validation("request body required")

// jsonNull はJSONのnullリテラル。
var jsonNull = []byte("null")

// bindJSON はリクエストボディをdstにデコードする。
// 空白だけのボディとnullは空のボディとして扱う。
// allowEmptyがtrueの場合、空のボディはゼロ値として扱う。
func bindJSON(c *gin.Context, dst any, allowEmpty bool) error {
	var raw []byte
	if c.Request.Body != nil && c.Request.Body != http.NoBody {
		b, err := c.GetRawData()
		if err != nil {
			return domain.Validation(msgInvalidBody)
		}
		raw = bytes.TrimSpace(b)
	}

	if len(raw) == 0 || bytes.Equal(raw, jsonNull) {
		if allowEmpty {
			return nil
		}
		return errBodyRequired
	}
	if err := binding.JSON.BindBody(raw, dst); err != nil {
		return domain.Validation(msgInvalidBody)
	}
	return nil
}

// credentialsRequest は登録とログインのリクエスト。
type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// createTaskRequest はタスク作成のリクエスト。
type createTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// updateTaskRequest はタスク更新のリクエスト。
// 省略したフィールドは変更しない。
type updateTaskRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Completed   *bool   `json:"completed"`
}

// patch は更新内容をドメインのパッチに変換する。
func (r updateTaskRequest) patch() domain.TaskPatch {
	return domain.TaskPatch{
		Title:       r.Title,
		Description: r.Description,
		Completed:   r.Completed,
	}
}
