package id

import (
	"strings"

	"github.com/google/uuid"
)

// New 生成新的UUID（string格式）
func New() string {
	return uuid.New().String()
}

// Short 生成不含连字符的 12 位随机串，用于临时文件名
func Short() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}

// IsValid 验证UUID格式是否有效
func IsValid(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
