package httptransport

import (
	"errors"

	"github.com/gin-gonic/gin"

	"tempmail/portal/internal/domain"
)

// 通用错误消息
const (
	MsgInvalidRequest      = "请求参数格式错误"
	MsgAuthRequired        = "需要登录认证"
	MsgQuotaExceeded       = "今日免费邮箱配额已用完"
	MsgMailboxNotFound     = "当前没有活跃的临时邮箱"
	MsgMessageNotFound     = "邮件不存在"
	MsgPlanNotFound        = "套餐信息不存在"
	MsgProviderUnavailable = "上游邮箱服务暂不可用，请稍后重试"
	MsgInternalError       = "服务器内部错误，请稍后重试"
)

// writeError 将业务错误映射为 HTTP 响应
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidArgument):
		BadRequest(c, MsgInvalidRequest)
	case errors.Is(err, domain.ErrUnauthenticated):
		Unauthorized(c, MsgAuthRequired)
	case errors.Is(err, domain.ErrQuotaExceeded):
		Forbidden(c, MsgQuotaExceeded)
	case errors.Is(err, domain.ErrNotFound):
		NotFound(c, MsgMailboxNotFound)
	case errors.Is(err, domain.ErrPlanNotFound):
		NotFound(c, MsgPlanNotFound)
	case errors.Is(err, domain.ErrProviderUnavailable):
		BadGateway(c, MsgProviderUnavailable)
	default:
		InternalError(c, MsgInternalError)
	}
}
