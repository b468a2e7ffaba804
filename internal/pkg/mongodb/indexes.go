package mongodb

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"

	"reelcast/internal/model/short"
)

// Model 需要管理索引的集合模型
type Model interface {
	Collection() string
	EnsureIndexes(ctx context.Context, db *mongo.Database) error
}

// EnsureIndexes 创建所有模型的索引，在进程启动时调用
func EnsureIndexes(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	return EnsureAllIndexes(ctx, db, &short.Render{})
}

// EnsureAllIndexes 依次为模型创建索引，遇到错误立即返回
func EnsureAllIndexes(ctx context.Context, db *mongo.Database, models ...Model) error {
	for _, m := range models {
		if err := m.EnsureIndexes(ctx, db); err != nil {
			return fmt.Errorf("ensure indexes for %s: %w", m.Collection(), err)
		}
		log.Debug().Str("collection", m.Collection()).Msg("indexes ensured")
	}
	return nil
}
