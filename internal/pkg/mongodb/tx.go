package mongodb

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// TxFunc 事务内执行的操作，必须使用传入的 SessionContext 访问集合
type TxFunc func(sc mongo.SessionContext) error

// RunInTx 在单个事务中执行 fn
// fn 返回错误或 ctx 被取消时回滚，不做任何重试。
// 回滚使用脱离取消信号的 context，保证客户端断开时事务仍能被终止。
func (c *Client) RunInTx(ctx context.Context, fn TxFunc) error {
	session, err := c.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(context.WithoutCancel(ctx))

	txOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())
	if err := session.StartTransaction(txOpts); err != nil {
		return fmt.Errorf("start transaction: %w", err)
	}

	err = mongo.WithSession(ctx, session, func(sc mongo.SessionContext) error {
		return fn(sc)
	})
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		if abortErr := session.AbortTransaction(context.WithoutCancel(ctx)); abortErr != nil {
			log.Warn().Err(abortErr).Msg("Failed to abort transaction")
		}
		return err
	}

	if err := session.CommitTransaction(ctx); err != nil {
		if abortErr := session.AbortTransaction(context.WithoutCancel(ctx)); abortErr != nil {
			log.Debug().Err(abortErr).Msg("Abort after failed commit")
		}
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
