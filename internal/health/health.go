package health

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"tempmail/portal/internal/storage"
)

// ProviderPinger 上游供应商可达性探测
type ProviderPinger interface {
	ListDomains(ctx context.Context) ([]string, error)
}

// HealthChecker 健康检查器
type HealthChecker struct {
	health   healthcheck.Handler
	store    storage.PlanStore
	provider ProviderPinger
	logger   *zap.Logger
}

// NewHealthChecker 创建健康检查器
func NewHealthChecker(store storage.PlanStore, provider ProviderPinger, logger *zap.Logger) *HealthChecker {
	hc := &HealthChecker{
		health:   healthcheck.NewHandler(),
		store:    store,
		provider: provider,
		logger:   logger,
	}

	hc.addChecks()

	return hc
}

// addChecks 添加健康检查
func (hc *HealthChecker) addChecks() {
	// 套餐存储检查
	hc.health.AddLivenessCheck("plan-store", func() error {
		return hc.store.Health()
	})

	// goroutine 数量检查
	hc.health.AddLivenessCheck("goroutines", healthcheck.GoroutineCountCheck(500))

	// 上游供应商可达性只影响就绪，不影响存活
	if hc.provider != nil {
		hc.health.AddReadinessCheck("provider", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			_, err := hc.provider.ListDomains(ctx)
			return err
		})
	}
}

// Handler 返回健康检查处理器
func (hc *HealthChecker) Handler() http.Handler {
	return hc.health
}

// CheckHealth 执行健康检查
func (hc *HealthChecker) CheckHealth() map[string]string {
	results := make(map[string]string)

	if err := hc.store.Health(); err != nil {
		results["plan-store"] = fmt.Sprintf("ERROR: %v", err)
	} else {
		results["plan-store"] = "OK"
	}

	results["goroutines"] = fmt.Sprintf("%d", runtime.NumGoroutine())
	results["timestamp"] = time.Now().Format(time.RFC3339)

	return results
}
