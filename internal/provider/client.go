package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"tempmail/portal/internal/config"
	"tempmail/portal/internal/domain"
)

// Client 封装上游临时邮箱服务的 REST 接口。
//
// 所有请求都携带固定的密钥与 Host 头；传输错误和非 2xx 响应在这里
// 被归一化为 domain 包的哨兵错误，原始 HTTP 错误不会泄漏给上层。
// 瞬时故障（网络错误、5xx）做有限次数的重试。
type Client struct {
	baseURL    string
	apiKey     string
	apiHost    string
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
	log        *zap.Logger
	observer   Observer
}

// Observer 接收上游请求的观测数据。实现必须是并发安全的。
type Observer interface {
	RecordProviderRequest(operation, outcome string, duration time.Duration)
	RecordProviderRetry()
}

// New 创建上游服务客户端。
func New(cfg config.ProviderConfig, log *zap.Logger) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		apiHost: cfg.APIHost,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		maxRetries: cfg.MaxRetries,
		retryDelay: cfg.RetryDelay,
		log:        log,
	}
}

// SetHTTPClient 替换底层 HTTP 客户端（测试用）。
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// SetObserver 注册指标观察者。必须在发起请求前调用。
func (c *Client) SetObserver(observer Observer) {
	c.observer = observer
}

// ListDomains 获取可用域名列表。
//
// 非 2xx 响应返回 ErrProviderUnavailable；响应 JSON 损坏或字段缺失时
// 返回空列表并记录告警，而不是让调用方崩溃。
func (c *Client) ListDomains(ctx context.Context) ([]string, error) {
	var resp domainsResponse
	if err := c.get(ctx, "/domains", nil, &resp); err != nil {
		if isDecodeError(err) {
			c.log.Warn("provider returned malformed domains payload, treating as empty",
				zap.Error(err))
			return []string{}, nil
		}
		return nil, err
	}
	if resp.Domains == nil {
		c.log.Warn("provider returned domains payload without domains field, treating as empty")
		return []string{}, nil
	}
	return resp.Domains, nil
}

// CreateMailbox 创建一个新的临时邮箱。
//
// domainHint 原样透传给上游，上游可能静默忽略，客户端不做校验。
// 响应缺失 email 字段视为上游故障。
func (c *Client) CreateMailbox(ctx context.Context, domainHint string) (*Mailbox, error) {
	query := url.Values{}
	if domainHint != "" {
		query.Set("domain", domainHint)
	}

	var resp createResponse
	if err := c.get(ctx, "/create", query, &resp); err != nil {
		return nil, err
	}
	if resp.Email == "" {
		return nil, fmt.Errorf("create response missing email field: %w", domain.ErrProviderUnavailable)
	}

	created := parseTime(resp.CreatedAt)
	if created.IsZero() {
		created = time.Now().UTC()
	}

	return &Mailbox{Email: resp.Email, CreatedAt: created}, nil
}

// ListInbox 获取指定邮箱的当前全部邮件摘要。
func (c *Client) ListInbox(ctx context.Context, address string) ([]domain.MessageSummary, error) {
	if address == "" {
		return nil, fmt.Errorf("address must not be empty: %w", domain.ErrInvalidArgument)
	}

	query := url.Values{}
	query.Set("email", address)

	var resp inboxResponse
	if err := c.get(ctx, "/inbox", query, &resp); err != nil {
		return nil, err
	}

	summaries := make([]domain.MessageSummary, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		summaries = append(summaries, m.toSummary())
	}
	return summaries, nil
}

// FetchMessage 按需拉取单封邮件正文。
//
// 上游报告邮件不存在时返回 (nil, nil)，调用方据此呈现"未找到"，
// 而不是把它当作故障处理。
func (c *Client) FetchMessage(ctx context.Context, address, messageID string) (*domain.MessageDetail, error) {
	if address == "" || messageID == "" {
		return nil, fmt.Errorf("address and message id must not be empty: %w", domain.ErrInvalidArgument)
	}

	query := url.Values{}
	query.Set("email", address)
	query.Set("message_id", messageID)

	var resp messageResponse
	err := c.get(ctx, "/message", query, &resp)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if resp.Message == nil {
		return nil, nil
	}
	return resp.Message.toDetail(), nil
}

// statusError 保留 HTTP 状态码用于重试与 NotFound 判定，
// 对外统一展开为 ErrProviderUnavailable。
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.code, domain.ErrProviderUnavailable)
}

func (e *statusError) Unwrap() error {
	return domain.ErrProviderUnavailable
}

func isNotFound(err error) bool {
	se, ok := err.(*statusError)
	return ok && se.code == http.StatusNotFound
}

// decodeError 表示 2xx 响应但响应体无法解码。
type decodeError struct {
	cause error
}

func (e *decodeError) Error() string {
	return fmt.Sprintf("decode response: %v", e.cause)
}

func (e *decodeError) Unwrap() error {
	return domain.ErrProviderUnavailable
}

func isDecodeError(err error) bool {
	_, ok := err.(*decodeError)
	return ok
}

func retryable(err error) bool {
	switch e := err.(type) {
	case *statusError:
		return e.code >= 500
	case *decodeError:
		return false
	}
	// 传输层错误（超时、连接拒绝等）
	return true
}

// get 执行一次带认证头和有限重试的 GET 请求并解码 JSON 响应。
func (c *Client) get(ctx context.Context, path string, query url.Values, result interface{}) (err error) {
	start := time.Now()
	defer func() {
		c.observe(path, err, time.Since(start))
	}()

	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := c.wait(ctx, attempt); err != nil {
				return err
			}
			if c.observer != nil {
				c.observer.RecordProviderRetry()
			}
			c.log.Debug("retrying provider request",
				zap.String("path", path),
				zap.Int("attempt", attempt),
			)
		}

		lastErr = c.doOnce(ctx, endpoint, result)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !retryable(lastErr) {
			break
		}
	}

	switch lastErr.(type) {
	case *statusError, *decodeError:
		return lastErr
	}
	return fmt.Errorf("provider request failed: %v: %w", lastErr, domain.ErrProviderUnavailable)
}

// observe 上报单次请求结果。observer 未注册时是空操作。
func (c *Client) observe(path string, err error, elapsed time.Duration) {
	if c.observer == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.observer.RecordProviderRequest(strings.TrimPrefix(path, "/"), outcome, elapsed)
}

func (c *Client) doOnce(ctx context.Context, endpoint string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-RapidAPI-Key", c.apiKey)
	req.Header.Set("X-RapidAPI-Host", c.apiHost)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return &statusError{code: resp.StatusCode}
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return &decodeError{cause: err}
		}
	}
	return nil
}

// wait 在重试前等待，线性退避，可被 ctx 取消。
func (c *Client) wait(ctx context.Context, attempt int) error {
	timer := time.NewTimer(time.Duration(attempt) * c.retryDelay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
