package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"sandbox/internal/pkg/mongodb"
)

var indexesCmd = &cobra.Command{
	Use:   "indexes",
	Short: "Create MongoDB indexes",
	Long:  `Create the indexes used by the chats, messages and tool_calls collections. Existing indexes are left unchanged.`,
	RunE:  runIndexes,
}

func init() {
	rootCmd.AddCommand(indexesCmd)

	// serve 已将 mongo.uri 绑定到自己的 flag，这里直接读取
	indexesCmd.Flags().String("mongo-uri", "", "MongoDB URI (env: SANDBOX_MONGO_URI)")
}

func runIndexes(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()
	if uri, _ := cmd.Flags().GetString("mongo-uri"); uri != "" {
		cfg.Mongo.URI = uri
	}
	if cfg.Mongo.URI == "" {
		return errors.New("mongo.uri is required")
	}

	client, err := mongodb.New(&cfg.Mongo)
	if err != nil {
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	defer func() {
		_ = client.Close(context.Background())
	}()

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	if err := mongodb.EnsureIndexes(ctx, client.Database()); err != nil {
		return fmt.Errorf("failed to ensure indexes: %w", err)
	}

	log.Info().Str("database", cfg.Mongo.Database).Msg("indexes created")
	return nil
}
