package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tempmail/portal/internal/auth"
	jwtpkg "tempmail/portal/internal/auth/jwt"
	"tempmail/portal/internal/config"
	"tempmail/portal/internal/domain"
	"tempmail/portal/internal/provider"
	"tempmail/portal/internal/service"
	"tempmail/portal/internal/storage/memory"
)

const testSecret = "test-secret-key-for-handler-tests!!"

// stubProvider 可配置的上游桩实现
type stubProvider struct {
	domains  []string
	mailbox  *provider.Mailbox
	messages []domain.MessageSummary
	detail   *domain.MessageDetail
	err      error
}

func (s *stubProvider) ListDomains(ctx context.Context) ([]string, error) {
	return s.domains, s.err
}

func (s *stubProvider) CreateMailbox(ctx context.Context, domainHint string) (*provider.Mailbox, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.mailbox, nil
}

func (s *stubProvider) ListInbox(ctx context.Context, address string) ([]domain.MessageSummary, error) {
	return s.messages, s.err
}

func (s *stubProvider) FetchMessage(ctx context.Context, address, messageID string) (*domain.MessageDetail, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.detail, nil
}

type testEnv struct {
	router      *gin.Engine
	store       *memory.Store
	coordinator *service.Coordinator
	notifier    *auth.Notifier
	provider    *stubProvider
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	upstream := &stubProvider{
		domains: []string{"example.com", "mailbox.dev"},
		mailbox: &provider.Mailbox{Email: "abc123@example.com", CreatedAt: time.Now().UTC()},
	}
	store := memory.NewStore()
	log := zap.NewNop()

	coordinator := service.NewCoordinator(upstream, store, time.Minute, log, nil)
	t.Cleanup(coordinator.Close)

	notifier := auth.NewNotifier()
	events, cancel := notifier.Subscribe()
	t.Cleanup(cancel)

	watchCtx, watchCancel := context.WithCancel(context.Background())
	t.Cleanup(watchCancel)
	go coordinator.Watch(watchCtx, events)

	cfg := &config.Config{
		CORS:      config.CORSConfig{AllowedOrigins: []string{"*"}},
		RateLimit: config.RateLimitConfig{RequestsPerSecond: 1000, Burst: 1000},
	}

	router := NewRouter(RouterDependencies{
		Config:      cfg,
		Coordinator: coordinator,
		JWTManager:  jwtpkg.NewManager(testSecret, ""),
		Notifier:    notifier,
		Logger:      log,
	})

	return &testEnv{
		router:      router,
		store:       store,
		coordinator: coordinator,
		notifier:    notifier,
		provider:    upstream,
	}
}

func signToken(t *testing.T, userID string) string {
	t.Helper()
	claims := jwtpkg.Claims{
		Email: userID + "@portal.test",
		RegisteredClaims: gojwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: gojwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  gojwt.NewNumericDate(time.Now()),
		},
	}
	token, err := gojwt.NewWithClaims(gojwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func doRequest(env *testEnv, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	recorder := httptest.NewRecorder()
	env.router.ServeHTTP(recorder, req)
	return recorder
}

func decodeResponse(t *testing.T, recorder *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &resp))
	return resp
}

func TestCreateMailbox(t *testing.T) {
	t.Run("未认证请求返回401", func(t *testing.T) {
		env := setupEnv(t)

		recorder := doRequest(env, http.MethodPost, "/v1/mailbox", "", nil)

		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	})

	t.Run("无效令牌返回401", func(t *testing.T) {
		env := setupEnv(t)

		recorder := doRequest(env, http.MethodPost, "/v1/mailbox", "not-a-token", nil)

		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	})

	t.Run("创建成功返回201并开启轮询", func(t *testing.T) {
		env := setupEnv(t)
		token := signToken(t, "user-1")

		recorder := doRequest(env, http.MethodPost, "/v1/mailbox", token, nil)

		require.Equal(t, http.StatusCreated, recorder.Code)
		resp := decodeResponse(t, recorder)
		data := resp.Data.(map[string]interface{})
		assert.Equal(t, "abc123@example.com", data["address"])
		assert.Equal(t, true, data["polling"])
	})

	t.Run("配额用尽返回403", func(t *testing.T) {
		env := setupEnv(t)
		token := signToken(t, "user-2")

		for i := 0; i < domain.FreeDailyLimit; i++ {
			require.NoError(t, env.store.IncrementUsage(context.Background(), "user-2", domain.Today()))
		}

		recorder := doRequest(env, http.MethodPost, "/v1/mailbox", token, nil)

		assert.Equal(t, http.StatusForbidden, recorder.Code)
		resp := decodeResponse(t, recorder)
		assert.Equal(t, MsgQuotaExceeded, resp.Msg)
	})

	t.Run("上游失败返回502", func(t *testing.T) {
		env := setupEnv(t)
		env.provider.err = domain.ErrProviderUnavailable
		token := signToken(t, "user-3")

		recorder := doRequest(env, http.MethodPost, "/v1/mailbox", token, nil)

		assert.Equal(t, http.StatusBadGateway, recorder.Code)
	})
}

func TestCurrentMailbox(t *testing.T) {
	t.Run("没有活跃会话返回404", func(t *testing.T) {
		env := setupEnv(t)
		token := signToken(t, "user-1")

		recorder := doRequest(env, http.MethodGet, "/v1/mailbox", token, nil)

		assert.Equal(t, http.StatusNotFound, recorder.Code)
	})

	t.Run("创建后可以查询会话", func(t *testing.T) {
		env := setupEnv(t)
		token := signToken(t, "user-1")

		require.Equal(t, http.StatusCreated, doRequest(env, http.MethodPost, "/v1/mailbox", token, nil).Code)

		recorder := doRequest(env, http.MethodGet, "/v1/mailbox", token, nil)

		require.Equal(t, http.StatusOK, recorder.Code)
		resp := decodeResponse(t, recorder)
		data := resp.Data.(map[string]interface{})
		assert.Equal(t, "abc123@example.com", data["address"])
	})
}

func TestRefreshInbox(t *testing.T) {
	t.Run("没有会话时返回404", func(t *testing.T) {
		env := setupEnv(t)
		token := signToken(t, "user-1")

		recorder := doRequest(env, http.MethodPost, "/v1/mailbox/refresh", token, nil)

		assert.Equal(t, http.StatusNotFound, recorder.Code)
	})

	t.Run("刷新返回最新邮件列表", func(t *testing.T) {
		env := setupEnv(t)
		token := signToken(t, "user-1")
		require.Equal(t, http.StatusCreated, doRequest(env, http.MethodPost, "/v1/mailbox", token, nil).Code)

		env.provider.messages = []domain.MessageSummary{
			{ID: "m1", From: "sender@example.com", Subject: "hello", Date: time.Now().UTC()},
		}

		recorder := doRequest(env, http.MethodPost, "/v1/mailbox/refresh", token, nil)

		require.Equal(t, http.StatusOK, recorder.Code)
		resp := decodeResponse(t, recorder)
		data := resp.Data.(map[string]interface{})
		assert.Equal(t, float64(1), data["count"])
	})
}

func TestSetPolling(t *testing.T) {
	t.Run("缺少参数返回400", func(t *testing.T) {
		env := setupEnv(t)
		token := signToken(t, "user-1")

		recorder := doRequest(env, http.MethodPut, "/v1/mailbox/polling", token, map[string]interface{}{})

		assert.Equal(t, http.StatusBadRequest, recorder.Code)
	})

	t.Run("关闭轮询后快照反映状态", func(t *testing.T) {
		env := setupEnv(t)
		token := signToken(t, "user-1")
		require.Equal(t, http.StatusCreated, doRequest(env, http.MethodPost, "/v1/mailbox", token, nil).Code)

		recorder := doRequest(env, http.MethodPut, "/v1/mailbox/polling", token, map[string]interface{}{"enabled": false})
		require.Equal(t, http.StatusOK, recorder.Code)

		current := doRequest(env, http.MethodGet, "/v1/mailbox", token, nil)
		require.Equal(t, http.StatusOK, current.Code)
		resp := decodeResponse(t, current)
		data := resp.Data.(map[string]interface{})
		assert.Equal(t, false, data["polling"])
	})
}

func TestOpenMessage(t *testing.T) {
	t.Run("邮件不存在返回404", func(t *testing.T) {
		env := setupEnv(t)
		token := signToken(t, "user-1")
		require.Equal(t, http.StatusCreated, doRequest(env, http.MethodPost, "/v1/mailbox", token, nil).Code)

		recorder := doRequest(env, http.MethodGet, "/v1/mailbox/messages/missing", token, nil)

		assert.Equal(t, http.StatusNotFound, recorder.Code)
	})

	t.Run("返回邮件详情", func(t *testing.T) {
		env := setupEnv(t)
		token := signToken(t, "user-1")
		require.Equal(t, http.StatusCreated, doRequest(env, http.MethodPost, "/v1/mailbox", token, nil).Code)

		env.provider.detail = &domain.MessageDetail{
			ID:       "m1",
			From:     "sender@example.com",
			Subject:  "verification code",
			BodyText: "your code is 123456",
		}

		recorder := doRequest(env, http.MethodGet, "/v1/mailbox/messages/m1", token, nil)

		require.Equal(t, http.StatusOK, recorder.Code)
		resp := decodeResponse(t, recorder)
		data := resp.Data.(map[string]interface{})
		assert.Equal(t, "m1", data["id"])
		assert.Equal(t, "your code is 123456", data["bodyText"])
	})
}

func TestListDomains(t *testing.T) {
	t.Run("公开端点无需认证", func(t *testing.T) {
		env := setupEnv(t)

		recorder := doRequest(env, http.MethodGet, "/v1/public/domains", "", nil)

		require.Equal(t, http.StatusOK, recorder.Code)
		resp := decodeResponse(t, recorder)
		data := resp.Data.(map[string]interface{})
		assert.Equal(t, float64(2), data["count"])
	})

	t.Run("携带有效令牌同样可访问", func(t *testing.T) {
		env := setupEnv(t)
		token := signToken(t, "user-1")

		recorder := doRequest(env, http.MethodGet, "/v1/public/domains", token, nil)

		require.Equal(t, http.StatusOK, recorder.Code)
		resp := decodeResponse(t, recorder)
		data := resp.Data.(map[string]interface{})
		assert.Equal(t, float64(2), data["count"])
	})

	t.Run("无效令牌不阻断公开端点", func(t *testing.T) {
		env := setupEnv(t)

		recorder := doRequest(env, http.MethodGet, "/v1/public/domains", "not-a-jwt", nil)

		require.Equal(t, http.StatusOK, recorder.Code)
	})

	t.Run("上游失败时降级为空列表", func(t *testing.T) {
		env := setupEnv(t)
		env.provider.err = domain.ErrProviderUnavailable

		recorder := doRequest(env, http.MethodGet, "/v1/public/domains", "", nil)

		require.Equal(t, http.StatusOK, recorder.Code)
		resp := decodeResponse(t, recorder)
		data := resp.Data.(map[string]interface{})
		assert.Equal(t, float64(0), data["count"])
	})
}

func TestGetPlan(t *testing.T) {
	t.Run("新用户返回免费套餐", func(t *testing.T) {
		env := setupEnv(t)
		token := signToken(t, "user-1")

		recorder := doRequest(env, http.MethodGet, "/v1/plan", token, nil)

		require.Equal(t, http.StatusOK, recorder.Code)
		resp := decodeResponse(t, recorder)
		data := resp.Data.(map[string]interface{})
		assert.Equal(t, string(domain.PlanFree), data["planType"])
		assert.Equal(t, float64(domain.FreeDailyLimit), data["remaining"])
		assert.Equal(t, false, data["premium"])
	})

	t.Run("创建邮箱后用量增加", func(t *testing.T) {
		env := setupEnv(t)
		token := signToken(t, "user-1")
		require.Equal(t, http.StatusCreated, doRequest(env, http.MethodPost, "/v1/mailbox", token, nil).Code)

		recorder := doRequest(env, http.MethodGet, "/v1/plan", token, nil)

		require.Equal(t, http.StatusOK, recorder.Code)
		resp := decodeResponse(t, recorder)
		data := resp.Data.(map[string]interface{})
		assert.Equal(t, float64(1), data["emailsUsedToday"])
		assert.Equal(t, float64(domain.FreeDailyLimit-1), data["remaining"])
	})
}

func TestSignOut(t *testing.T) {
	t.Run("登出后会话被释放", func(t *testing.T) {
		env := setupEnv(t)
		token := signToken(t, "user-1")
		require.Equal(t, http.StatusCreated, doRequest(env, http.MethodPost, "/v1/mailbox", token, nil).Code)

		recorder := doRequest(env, http.MethodPost, "/v1/auth/signout", token, nil)
		require.Equal(t, http.StatusOK, recorder.Code)

		assert.Eventually(t, func() bool {
			snapshot, _ := env.coordinator.CurrentSession("user-1")
			return snapshot == nil
		}, time.Second, 10*time.Millisecond)
	})
}
