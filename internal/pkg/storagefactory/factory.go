package storagefactory

import (
	"context"
	"fmt"

	"reelcast/internal/config"
	"reelcast/internal/pkg/storage"
	"reelcast/internal/pkg/storage/local"
	"reelcast/internal/pkg/storage/oss"
)

// NewStorage 根据配置创建存储实例
// 未配置存储类型时返回 nil，成品只保留在本地输出目录
func NewStorage(ctx context.Context, cfg *config.StorageConfig) (storage.Storage, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil
	case "local":
		if cfg.Local == nil {
			return nil, fmt.Errorf("local storage config is required")
		}
		return local.NewLocalStorage(
			cfg.Local.BasePath,
			cfg.Local.BaseURL,
		)
	case "oss":
		if cfg.OSS == nil {
			return nil, fmt.Errorf("OSS storage config is required")
		}
		return oss.NewOSSStorage(
			cfg.OSS.Endpoint,
			cfg.OSS.Bucket,
			cfg.OSS.AccessKeyID,
			cfg.OSS.AccessKeySecret,
			cfg.OSS.PresignExpiry,
		)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
