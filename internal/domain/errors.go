package domain

import "errors"

// 业务错误分类。上游 API 与存储层的原始错误在各自边界被转换为
// 这里定义的哨兵错误，编排层和 HTTP 层只认这些类型。
var (
	// ErrInvalidArgument 调用方传入了空的或格式错误的标识符
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrUnauthenticated 操作需要登录用户但当前没有
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrQuotaExceeded 免费用户已达每日创建上限
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrProviderUnavailable 上游临时邮箱服务不可用（网络错误或非 2xx 响应）
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrNotFound 请求的资源不存在
	ErrNotFound = errors.New("not found")
	// ErrPlanNotFound 配额存储中没有该用户的套餐记录
	ErrPlanNotFound = errors.New("plan not found")
)
