package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"clarity-mcp/common"
)

// ErrNoToken 凭证为空
var ErrNoToken = errors.New("aurasr token is empty")

// TokenProvider 为每次调用提供一个新的凭证。
// 返回值原样写入 Authorization 头。
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken 固定凭证
type StaticToken string

// Token 返回固定凭证
func (s StaticToken) Token(ctx context.Context) (string, error) {
	if s == "" {
		return "", ErrNoToken
	}
	return string(s), nil
}

// FileToken 每次调用都重新读取文件，适配挂载后会轮换的 secret
type FileToken struct {
	Path string
}

// Token 读取文件内容作为凭证
func (f FileToken) Token(ctx context.Context) (string, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return "", fmt.Errorf("failed to read token file: %w", err)
	}
	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", fmt.Errorf("%w: %s", ErrNoToken, f.Path)
	}
	return token, nil
}

// NewTokenProviderFromConfig 根据配置选择凭证来源，token 文件优先
func NewTokenProviderFromConfig(cfg *common.Config) TokenProvider {
	if cfg.AuraSRTokenFile != "" {
		return FileToken{Path: cfg.AuraSRTokenFile}
	}
	return StaticToken(cfg.AuraSRToken)
}

// MaskToken 隐藏凭证的敏感部分，用于日志
func MaskToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "****" + token[len(token)-4:]
}
