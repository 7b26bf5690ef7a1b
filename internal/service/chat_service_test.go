package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	. "github.com/smartystreets/goconvey/convey"

	"sandbox/internal/model/chat"
	"sandbox/internal/pkg/cache"
	chatRepo "sandbox/internal/repository/chat"
)

// fakeCache 以 JSON 保存的内存缓存，行为与 RedisCache 一致
type fakeCache struct {
	mu       sync.Mutex
	data     map[string][]byte
	counters map[string]int64
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string][]byte), counters: make(map[string]int64)}
}

func (c *fakeCache) Get(_ context.Context, key string, dest any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, ok := c.data[key]
	if !ok {
		return redis.Nil
	}
	return json.Unmarshal(data, dest)
}

func (c *fakeCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.data[key] = data
	return nil
}

func (c *fakeCache) Counter(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters[key], nil
}

func (c *fakeCache) Incr(_ context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[key]++
	return c.counters[key], nil
}

// listKey 当前代数下的列表缓存 key
func (c *fakeCache) listKey(userID string) string {
	gen, _ := c.Counter(context.Background(), cache.ChatListGenerationKey(userID))
	return cache.ChatListCacheKey(userID, gen)
}

func (c *fakeCache) has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.data[key]
	return ok
}

// failingRepo 所有操作都返回底层存储错误
type failingRepo struct {
	err error
}

func (r failingRepo) ListByUser(context.Context, string) ([]*chat.Chat, error) { return nil, r.err }
func (r failingRepo) Upsert(context.Context, string, []*chat.Chat) error       { return r.err }
func (r failingRepo) Delete(context.Context, string, string) error             { return r.err }

// pausingRepo 第一次 ListByUser 读取完成后暂停，直到 release 关闭
type pausingRepo struct {
	ChatRepository
	once    sync.Once
	read    chan struct{}
	release chan struct{}
}

func (r *pausingRepo) ListByUser(ctx context.Context, userID string) ([]*chat.Chat, error) {
	chats, err := r.ChatRepository.ListByUser(ctx, userID)
	r.once.Do(func() {
		close(r.read)
		<-r.release
	})
	return chats, err
}

func newChat(id, title string) *chat.Chat {
	return &chat.Chat{
		ID:    id,
		Title: title,
		Messages: []*chat.Message{
			{ID: id + "-m1", Type: chat.MessageTypeHuman, Content: "Hi"},
			{
				ID:      id + "-m2",
				Type:    chat.MessageTypeAI,
				Content: "",
				ToolCalls: []*chat.ToolCall{
					{ID: id + "-tc1", Name: "search", Args: chat.Metadata(`{"q":"x"}`)},
					{ID: id + "-tc2", Name: "fetch", Args: chat.Metadata(`{"url":"y"}`)},
				},
			},
		},
	}
}

func TestChatService(t *testing.T) {
	ctx := context.Background()

	Convey("ChatService", t, func() {
		repo := chatRepo.NewMemoryRepo()
		svc := NewChatService(repo, nil, 0)

		Convey("空标题使用默认标题", func() {
			So(svc.Save(ctx, "alice", []*chat.Chat{newChat("c1", "")}), ShouldBeNil)

			chats, err := svc.List(ctx, "alice")
			So(err, ShouldBeNil)
			So(chats[0].Title, ShouldEqual, chat.DefaultTitle)
		})

		Convey("按提交顺序设置 position", func() {
			c := newChat("c1", "Trip")
			c.Messages[0].Position = 7
			So(svc.Save(ctx, "alice", []*chat.Chat{c}), ShouldBeNil)

			chats, err := svc.List(ctx, "alice")
			So(err, ShouldBeNil)
			So(chats[0].Messages[0].ID, ShouldEqual, "c1-m1")
			So(chats[0].Messages[0].Position, ShouldEqual, 0)
			So(chats[0].Messages[1].Position, ShouldEqual, 1)
			So(chats[0].Messages[1].ToolCalls[1].Position, ShouldEqual, 1)
		})

		Convey("仓库错误映射为服务错误", func() {
			So(svc.Save(ctx, "alice", []*chat.Chat{newChat("c1", "Trip")}), ShouldBeNil)

			So(errors.Is(svc.Save(ctx, "bob", []*chat.Chat{newChat("c1", "Trip")}), ErrChatForbidden), ShouldBeTrue)
			So(errors.Is(svc.Delete(ctx, "bob", "c1"), ErrChatForbidden), ShouldBeTrue)
			So(errors.Is(svc.Delete(ctx, "alice", "missing"), ErrChatNotFound), ShouldBeTrue)
			So(svc.Delete(ctx, "alice", "c1"), ShouldBeNil)
		})

		Convey("存储故障统一返回 ErrPersistence 且不暴露底层错误", func() {
			cause := errors.New("connection reset by peer")
			svc := NewChatService(failingRepo{err: cause}, nil, 0)

			err := svc.Save(ctx, "alice", []*chat.Chat{newChat("c1", "Trip")})
			So(err, ShouldEqual, ErrPersistence)

			_, err = svc.List(ctx, "alice")
			So(err, ShouldEqual, ErrPersistence)

			err = svc.Delete(ctx, "alice", "c1")
			So(err, ShouldEqual, ErrPersistence)
		})
	})
}

func TestChatService_ListCache(t *testing.T) {
	ctx := context.Background()

	Convey("ChatService 列表缓存", t, func() {
		repo := chatRepo.NewMemoryRepo()
		lc := newFakeCache()
		svc := NewChatService(repo, lc, time.Minute)

		So(svc.Save(ctx, "alice", []*chat.Chat{newChat("c1", "Trip")}), ShouldBeNil)

		Convey("读取后写入缓存，再次读取命中缓存", func() {
			first, err := svc.List(ctx, "alice")
			So(err, ShouldBeNil)
			So(lc.has(lc.listKey("alice")), ShouldBeTrue)

			second, err := svc.List(ctx, "alice")
			So(err, ShouldBeNil)
			So(second, ShouldHaveLength, 1)
			So(second[0].ID, ShouldEqual, first[0].ID)
			So(second[0].Messages, ShouldHaveLength, 2)
			So(string(second[0].Messages[1].ToolCalls[0].Args), ShouldEqual, `{"q":"x"}`)
		})

		Convey("写入和删除会使缓存失效", func() {
			_, err := svc.List(ctx, "alice")
			So(err, ShouldBeNil)
			So(lc.has(lc.listKey("alice")), ShouldBeTrue)

			So(svc.Save(ctx, "alice", []*chat.Chat{newChat("c2", "Second")}), ShouldBeNil)
			So(lc.has(lc.listKey("alice")), ShouldBeFalse)

			chats, err := svc.List(ctx, "alice")
			So(err, ShouldBeNil)
			So(chats, ShouldHaveLength, 2)

			So(svc.Delete(ctx, "alice", "c2"), ShouldBeNil)
			So(lc.has(lc.listKey("alice")), ShouldBeFalse)

			chats, err = svc.List(ctx, "alice")
			So(err, ShouldBeNil)
			So(chats, ShouldHaveLength, 1)
		})

		Convey("失败的写入不会清除缓存", func() {
			_, err := svc.List(ctx, "alice")
			So(err, ShouldBeNil)

			err = svc.Save(ctx, "bob", []*chat.Chat{newChat("c1", "Stolen")})
			So(err, ShouldEqual, ErrChatForbidden)
			So(lc.has(lc.listKey("alice")), ShouldBeTrue)
		})

		Convey("查库期间提交的写入不会被旧列表覆盖", func() {
			pr := &pausingRepo{ChatRepository: repo, read: make(chan struct{}), release: make(chan struct{})}
			svc := NewChatService(pr, lc, time.Minute)

			done := make(chan error, 1)
			go func() {
				_, err := svc.List(ctx, "alice")
				done <- err
			}()
			<-pr.read

			So(svc.Save(ctx, "alice", []*chat.Chat{newChat("c2", "Second")}), ShouldBeNil)
			close(pr.release)
			So(<-done, ShouldBeNil)

			chats, err := svc.List(ctx, "alice")
			So(err, ShouldBeNil)
			So(chats, ShouldHaveLength, 2)

			So(svc.Delete(ctx, "alice", "c1"), ShouldBeNil)
			chats, err = svc.List(ctx, "alice")
			So(err, ShouldBeNil)
			So(chats, ShouldHaveLength, 1)
			So(chats[0].ID, ShouldEqual, "c2")
		})
	})
}
