package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tempmail/portal/internal/domain"
)

// fakeFetcher 可编程的收件箱拉取桩。
type fakeFetcher struct {
	mu      sync.Mutex
	calls   atomic.Int32
	results map[string][]domain.MessageSummary
	block   chan struct{} // 非 nil 时阻塞请求直到被关闭
	err     error
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{results: make(map[string][]domain.MessageSummary)}
}

func (f *fakeFetcher) set(address string, messages ...domain.MessageSummary) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results[address] = messages
}

func (f *fakeFetcher) ListInbox(ctx context.Context, address string) ([]domain.MessageSummary, error) {
	f.calls.Add(1)

	f.mu.Lock()
	block := f.block
	f.mu.Unlock()
	if block != nil {
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.results[address], nil
}

func msg(id string) domain.MessageSummary {
	return domain.MessageSummary{ID: id, From: "x@y.z", Date: time.Now()}
}

func newTestSession(f Fetcher, interval time.Duration, onUpdate UpdateFunc) *Session {
	return New(f, interval, zap.NewNop(), onUpdate)
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()

	t.Run("Idle状态下刷新是空操作", func(t *testing.T) {
		fetcher := newFakeFetcher()
		s := newTestSession(fetcher, time.Second, nil)

		require.NoError(t, s.Refresh(ctx))
		assert.Equal(t, int32(0), fetcher.calls.Load())
	})

	t.Run("刷新整体替换邮件列表", func(t *testing.T) {
		fetcher := newFakeFetcher()
		fetcher.set("a@t.example", msg("m1"), msg("m2"))
		s := newTestSession(fetcher, time.Second, nil)
		s.Replace("a@t.example", "", time.Now())

		require.NoError(t, s.Refresh(ctx))

		snap := s.Snapshot()
		require.NotNil(t, snap)
		require.Len(t, snap.Messages, 2)

		// 上游返回的集合缩小时本地列表同样整体替换，不做合并
		fetcher.set("a@t.example", msg("m3"))
		require.NoError(t, s.Refresh(ctx))
		snap = s.Snapshot()
		require.Len(t, snap.Messages, 1)
		assert.Equal(t, "m3", snap.Messages[0].ID)
	})

	t.Run("在途刷新抑制新的刷新", func(t *testing.T) {
		fetcher := newFakeFetcher()
		fetcher.block = make(chan struct{})
		s := newTestSession(fetcher, time.Second, nil)
		s.Replace("a@t.example", "", time.Now())

		done := make(chan struct{})
		go func() {
			_ = s.Refresh(ctx)
			close(done)
		}()

		// 等第一个刷新进入在途状态
		assert.Eventually(t, func() bool { return fetcher.calls.Load() == 1 },
			time.Second, time.Millisecond)

		// 在途期间的刷新直接跳过
		require.NoError(t, s.Refresh(ctx))
		assert.Equal(t, int32(1), fetcher.calls.Load())

		close(fetcher.block)
		<-done
	})

	t.Run("晚到的旧会话刷新结果被丢弃", func(t *testing.T) {
		fetcher := newFakeFetcher()
		fetcher.block = make(chan struct{})
		fetcher.set("old@t.example", msg("stale1"), msg("stale2"))
		s := newTestSession(fetcher, time.Second, nil)
		s.Replace("old@t.example", "", time.Now())

		done := make(chan struct{})
		go func() {
			_ = s.Refresh(ctx)
			close(done)
		}()
		assert.Eventually(t, func() bool { return fetcher.calls.Load() == 1 },
			time.Second, time.Millisecond)

		// 刷新在途时创建了新邮箱
		s.Replace("new@t.example", "", time.Now())
		close(fetcher.block)
		<-done

		snap := s.Snapshot()
		require.NotNil(t, snap)
		assert.Equal(t, "new@t.example", snap.Address)
		assert.Empty(t, snap.Messages, "旧地址的刷新结果不能覆盖新会话")
	})

	t.Run("刷新出错后可以再次刷新", func(t *testing.T) {
		fetcher := newFakeFetcher()
		fetcher.err = context.DeadlineExceeded
		s := newTestSession(fetcher, time.Second, nil)
		s.Replace("a@t.example", "", time.Now())

		require.Error(t, s.Refresh(ctx))

		fetcher.mu.Lock()
		fetcher.err = nil
		fetcher.mu.Unlock()
		fetcher.set("a@t.example", msg("m1"))

		require.NoError(t, s.Refresh(ctx))
		assert.Len(t, s.Snapshot().Messages, 1)
	})
}

func TestReplace(t *testing.T) {
	ctx := context.Background()

	t.Run("连续两次创建替换会话并清空邮件", func(t *testing.T) {
		fetcher := newFakeFetcher()
		fetcher.set("first@t.example", msg("m1"), msg("m2"))
		s := newTestSession(fetcher, time.Second, nil)

		s.Replace("first@t.example", "", time.Now())
		require.NoError(t, s.Refresh(ctx))
		require.Len(t, s.Snapshot().Messages, 2)

		s.Replace("second@t.example", "t.example", time.Now())

		snap := s.Snapshot()
		require.NotNil(t, snap)
		assert.Equal(t, "second@t.example", snap.Address)
		assert.Equal(t, "t.example", snap.DomainHint)
		assert.Empty(t, snap.Messages)
	})

	t.Run("Idle会话快照为nil", func(t *testing.T) {
		s := newTestSession(newFakeFetcher(), time.Second, nil)
		assert.Nil(t, s.Snapshot())
	})
}

func TestPolling(t *testing.T) {
	t.Run("开启轮询后周期刷新", func(t *testing.T) {
		fetcher := newFakeFetcher()
		fetcher.set("a@t.example", msg("m1"))
		s := newTestSession(fetcher, 10*time.Millisecond, nil)
		defer s.Close()
		s.Replace("a@t.example", "", time.Now())

		s.SetPolling(true)

		assert.Eventually(t, func() bool { return fetcher.calls.Load() >= 2 },
			time.Second, time.Millisecond)
	})

	t.Run("关闭轮询后不再产生请求", func(t *testing.T) {
		fetcher := newFakeFetcher()
		s := newTestSession(fetcher, 10*time.Millisecond, nil)
		defer s.Close()
		s.Replace("a@t.example", "", time.Now())

		s.SetPolling(true)
		assert.Eventually(t, func() bool { return fetcher.calls.Load() >= 1 },
			time.Second, time.Millisecond)

		s.SetPolling(false)
		settled := fetcher.calls.Load()

		// 经过多个轮询周期，零次新请求
		time.Sleep(60 * time.Millisecond)
		assert.Equal(t, settled, fetcher.calls.Load())
	})

	t.Run("重复开关与重复关闭是空操作", func(t *testing.T) {
		fetcher := newFakeFetcher()
		s := newTestSession(fetcher, time.Hour, nil)
		defer s.Close()
		s.Replace("a@t.example", "", time.Now())

		s.SetPolling(true)
		s.SetPolling(true)
		assert.True(t, s.Polling())

		s.SetPolling(false)
		s.SetPolling(false)
		assert.False(t, s.Polling())
	})

	t.Run("关闭会话取消轮询且可重复关闭", func(t *testing.T) {
		fetcher := newFakeFetcher()
		s := newTestSession(fetcher, 10*time.Millisecond, nil)
		s.Replace("a@t.example", "", time.Now())
		s.SetPolling(true)

		s.Close()
		s.Close()

		settled := fetcher.calls.Load()
		time.Sleep(60 * time.Millisecond)
		assert.Equal(t, settled, fetcher.calls.Load())
		assert.False(t, s.Polling())
	})
}

// fakePollObserver 记录轮询观测回调，供断言。
type fakePollObserver struct {
	ticks  atomic.Int32
	errors atomic.Int32
}

func (f *fakePollObserver) RecordPollTick()  { f.ticks.Add(1) }
func (f *fakePollObserver) RecordPollError() { f.errors.Add(1) }

func TestPollObserver(t *testing.T) {
	t.Run("每个轮询周期计数一次", func(t *testing.T) {
		fetcher := newFakeFetcher()
		fetcher.set("a@t.example", msg("m1"))
		s := newTestSession(fetcher, 10*time.Millisecond, nil)
		defer s.Close()
		observer := &fakePollObserver{}
		s.SetObserver(observer)
		s.Replace("a@t.example", "", time.Now())

		s.SetPolling(true)

		assert.Eventually(t, func() bool { return observer.ticks.Load() >= 2 },
			time.Second, time.Millisecond)
		assert.Zero(t, observer.errors.Load())
	})

	t.Run("刷新失败的周期计入错误", func(t *testing.T) {
		fetcher := newFakeFetcher()
		fetcher.err = context.DeadlineExceeded
		s := newTestSession(fetcher, 10*time.Millisecond, nil)
		defer s.Close()
		observer := &fakePollObserver{}
		s.SetObserver(observer)
		s.Replace("a@t.example", "", time.Now())

		s.SetPolling(true)

		assert.Eventually(t, func() bool { return observer.errors.Load() >= 1 },
			time.Second, time.Millisecond)
	})
}

func TestUpdateNotification(t *testing.T) {
	ctx := context.Background()

	t.Run("邮件列表变化时通知订阅者", func(t *testing.T) {
		fetcher := newFakeFetcher()
		fetcher.set("a@t.example", msg("m1"))

		var notified atomic.Int32
		s := newTestSession(fetcher, time.Second, func(address string, messages []domain.MessageSummary) {
			notified.Add(1)
			assert.Equal(t, "a@t.example", address)
		})
		s.Replace("a@t.example", "", time.Now())

		require.NoError(t, s.Refresh(ctx))
		assert.Equal(t, int32(1), notified.Load())

		// 列表未变化时不重复通知
		require.NoError(t, s.Refresh(ctx))
		assert.Equal(t, int32(1), notified.Load())
	})
}
