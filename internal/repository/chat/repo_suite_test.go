package chat

import (
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"sandbox/internal/model/chat"
)

// chatRepo MongoRepo 与 MemoryRepo 共同的行为
type chatRepo interface {
	ListByUser(ctx context.Context, userID string) ([]*chat.Chat, error)
	Upsert(ctx context.Context, userID string, chats []*chat.Chat) error
	Delete(ctx context.Context, userID, chatID string) error
}

func strPtr(s string) *string { return &s }

func sampleChat(id string) *chat.Chat {
	return &chat.Chat{
		ID:    id,
		Title: "Trip",
		Messages: []*chat.Message{
			{
				ID:       id + "-m1",
				Position: 0,
				Type:     chat.MessageTypeHuman,
				Content:  "Hi",
			},
			{
				ID:               id + "-m2",
				Position:         1,
				Type:             chat.MessageTypeAI,
				Content:          "",
				AdditionalKwargs: chat.Metadata(`{"model":"gpt","tokens":12}`),
				ToolCalls: []*chat.ToolCall{
					{ID: id + "-tc1", Position: 0, Name: "search", Args: chat.Metadata(`{"q":"flights"}`)},
					{ID: id + "-tc2", Position: 1, Name: "weather", Args: chat.Metadata(`{"city":"Oslo"}`)},
				},
			},
			{
				ID:         id + "-m3",
				Position:   2,
				Type:       chat.MessageTypeTool,
				Content:    "3 flights found",
				Name:       strPtr("search"),
				ToolCallID: strPtr(id + "-tc1"),
			},
		},
	}
}

// runRepoSuite 两种仓库实现共用的行为测试
func runRepoSuite(t *testing.T, name string, newRepo func() chatRepo) {
	ctx := context.Background()

	Convey(name+" 对话仓库", t, func() {
		repo := newRepo()

		Convey("写入后读取得到等价的对话图", func() {
			So(repo.Upsert(ctx, "alice@example.com", []*chat.Chat{sampleChat("c1")}), ShouldBeNil)

			chats, err := repo.ListByUser(ctx, "alice@example.com")
			So(err, ShouldBeNil)
			So(chats, ShouldHaveLength, 1)

			c := chats[0]
			So(c.ID, ShouldEqual, "c1")
			So(c.Title, ShouldEqual, "Trip")
			So(c.UserID, ShouldEqual, "alice@example.com")
			So(c.CreatedAt.IsZero(), ShouldBeFalse)
			So(c.Messages, ShouldHaveLength, 3)

			So(c.Messages[0].ID, ShouldEqual, "c1-m1")
			So(c.Messages[0].Content, ShouldEqual, "Hi")
			So(c.Messages[0].ToolCalls, ShouldBeEmpty)

			So(c.Messages[1].Type, ShouldEqual, chat.MessageTypeAI)
			So(string(c.Messages[1].AdditionalKwargs), ShouldEqual, `{"model":"gpt","tokens":12}`)
			So(c.Messages[1].ToolCalls, ShouldHaveLength, 2)
			So(c.Messages[1].ToolCalls[0].ID, ShouldEqual, "c1-tc1")
			So(c.Messages[1].ToolCalls[0].Name, ShouldEqual, "search")
			So(string(c.Messages[1].ToolCalls[0].Args), ShouldEqual, `{"q":"flights"}`)
			So(c.Messages[1].ToolCalls[1].Name, ShouldEqual, "weather")

			So(*c.Messages[2].Name, ShouldEqual, "search")
			So(*c.Messages[2].ToolCallID, ShouldEqual, "c1-tc1")
			So(c.Messages[0].Name, ShouldBeNil)
		})

		Convey("元数据原样读回，不解释 $ 开头的键和大整数", func() {
			kwargs := `{"n":{"$numberLong":"5"},"o":{"$oid":"nothex"},"big":12345678901234567890,"x":1e3}`
			args := `{"$set":{"k":1},"ratio":0.10}`

			c := sampleChat("c1")
			c.Messages[1].AdditionalKwargs = chat.Metadata(kwargs)
			c.Messages[1].ToolCalls[0].Args = chat.Metadata(args)
			So(repo.Upsert(ctx, "alice@example.com", []*chat.Chat{c}), ShouldBeNil)

			chats, err := repo.ListByUser(ctx, "alice@example.com")
			So(err, ShouldBeNil)
			So(string(chats[0].Messages[1].AdditionalKwargs), ShouldEqual, kwargs)
			So(string(chats[0].Messages[1].ToolCalls[0].Args), ShouldEqual, args)
		})

		Convey("重复写入相同内容不产生重复记录", func() {
			So(repo.Upsert(ctx, "alice@example.com", []*chat.Chat{sampleChat("c1")}), ShouldBeNil)
			first, err := repo.ListByUser(ctx, "alice@example.com")
			So(err, ShouldBeNil)

			So(repo.Upsert(ctx, "alice@example.com", []*chat.Chat{sampleChat("c1")}), ShouldBeNil)
			second, err := repo.ListByUser(ctx, "alice@example.com")
			So(err, ShouldBeNil)

			So(second, ShouldHaveLength, 1)
			So(second[0].Messages, ShouldHaveLength, 3)
			So(second[0].Messages[1].ToolCalls, ShouldHaveLength, 2)
			So(second[0].CreatedAt.Equal(first[0].CreatedAt), ShouldBeTrue)
			So(second[0].UpdatedAt.Before(first[0].UpdatedAt), ShouldBeFalse)
		})

		Convey("再次写入会覆盖已有内容", func() {
			So(repo.Upsert(ctx, "alice@example.com", []*chat.Chat{sampleChat("c1")}), ShouldBeNil)

			edited := sampleChat("c1")
			edited.Title = "Trip to Oslo"
			edited.Messages[0].Content = "Hello"
			edited.Messages[1].ToolCalls[0].Args = chat.Metadata(`{"q":"trains"}`)
			So(repo.Upsert(ctx, "alice@example.com", []*chat.Chat{edited}), ShouldBeNil)

			chats, err := repo.ListByUser(ctx, "alice@example.com")
			So(err, ShouldBeNil)
			So(chats[0].Title, ShouldEqual, "Trip to Oslo")
			So(chats[0].Messages[0].Content, ShouldEqual, "Hello")
			So(string(chats[0].Messages[1].ToolCalls[0].Args), ShouldEqual, `{"q":"trains"}`)
		})

		Convey("不同用户之间相互隔离", func() {
			So(repo.Upsert(ctx, "alice@example.com", []*chat.Chat{sampleChat("c1")}), ShouldBeNil)

			chats, err := repo.ListByUser(ctx, "bob@example.com")
			So(err, ShouldBeNil)
			So(chats, ShouldBeEmpty)
		})

		Convey("覆盖其他用户的对话被拒绝且整批回滚", func() {
			So(repo.Upsert(ctx, "alice@example.com", []*chat.Chat{sampleChat("c1")}), ShouldBeNil)

			stolen := sampleChat("c1")
			stolen.Title = "mine now"
			err := repo.Upsert(ctx, "bob@example.com", []*chat.Chat{sampleChat("c2"), stolen})
			So(errors.Is(err, ErrForbidden), ShouldBeTrue)

			bobs, err := repo.ListByUser(ctx, "bob@example.com")
			So(err, ShouldBeNil)
			So(bobs, ShouldBeEmpty)

			alices, err := repo.ListByUser(ctx, "alice@example.com")
			So(err, ShouldBeNil)
			So(alices[0].Title, ShouldEqual, "Trip")
		})

		Convey("把已有消息挂到其他对话下被拒绝", func() {
			So(repo.Upsert(ctx, "alice@example.com", []*chat.Chat{sampleChat("c1")}), ShouldBeNil)

			other := sampleChat("c2")
			other.Messages[0].ID = "c1-m1"
			err := repo.Upsert(ctx, "alice@example.com", []*chat.Chat{other})
			So(errors.Is(err, ErrForbidden), ShouldBeTrue)

			chats, err := repo.ListByUser(ctx, "alice@example.com")
			So(err, ShouldBeNil)
			So(chats, ShouldHaveLength, 1)
		})

		Convey("删除对话级联删除消息和工具调用", func() {
			So(repo.Upsert(ctx, "alice@example.com", []*chat.Chat{sampleChat("c1"), sampleChat("c2")}), ShouldBeNil)
			So(repo.Delete(ctx, "alice@example.com", "c1"), ShouldBeNil)

			chats, err := repo.ListByUser(ctx, "alice@example.com")
			So(err, ShouldBeNil)
			So(chats, ShouldHaveLength, 1)
			So(chats[0].ID, ShouldEqual, "c2")

			// 被删除的 ID 可以重新创建，说明没有残留的子记录
			So(repo.Upsert(ctx, "bob@example.com", []*chat.Chat{sampleChat("c1")}), ShouldBeNil)
			bobs, err := repo.ListByUser(ctx, "bob@example.com")
			So(err, ShouldBeNil)
			So(bobs[0].Messages, ShouldHaveLength, 3)
			So(bobs[0].Messages[1].ToolCalls, ShouldHaveLength, 2)
		})

		Convey("删除不存在的对话返回 ErrChatNotFound", func() {
			err := repo.Delete(ctx, "alice@example.com", "missing")
			So(errors.Is(err, ErrChatNotFound), ShouldBeTrue)
		})

		Convey("删除其他用户的对话返回 ErrForbidden 且不产生任何修改", func() {
			So(repo.Upsert(ctx, "alice@example.com", []*chat.Chat{sampleChat("c1")}), ShouldBeNil)

			err := repo.Delete(ctx, "bob@example.com", "c1")
			So(errors.Is(err, ErrForbidden), ShouldBeTrue)

			chats, err := repo.ListByUser(ctx, "alice@example.com")
			So(err, ShouldBeNil)
			So(chats, ShouldHaveLength, 1)
			So(chats[0].Messages, ShouldHaveLength, 3)
		})

		Convey("已取消的请求不写入任何数据", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()

			err := repo.Upsert(cctx, "alice@example.com", []*chat.Chat{sampleChat("c1")})
			So(err, ShouldNotBeNil)

			chats, err := repo.ListByUser(ctx, "alice@example.com")
			So(err, ShouldBeNil)
			So(chats, ShouldBeEmpty)
		})
	})
}
