package task

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"clarity-mcp/common"
	"clarity-mcp/internal/oss"
	"clarity-mcp/internal/utils"
)

// 转存对象的 key 前缀
const mirrorKeyPrefix = "enhanced"

// ImageMirror 将结果图片转存到自有存储，返回新的 URL
type ImageMirror interface {
	Mirror(ctx context.Context, imageURL string) (string, error)
}

// OSSMirror 下载结果图片并上传到 OSS
type OSSMirror struct {
	ossClient oss.OSSIface
	bucket    string
	now       func() time.Time
}

// NewOSSMirror 创建 OSSMirror
func NewOSSMirror(ossClient oss.OSSIface, bucket string) *OSSMirror {
	return &OSSMirror{
		ossClient: ossClient,
		bucket:    bucket,
		now:       time.Now,
	}
}

// Mirror 转存 imageURL，key 格式：enhanced/yyyy-MM-dd/{uuid}_{timestamp}_{random}.ext
func (m *OSSMirror) Mirror(ctx context.Context, imageURL string) (string, error) {
	data, mimeType, err := utils.DownloadImageFromURL(ctx, imageURL)
	if err != nil {
		return "", fmt.Errorf("failed to download image from URL: %w", err)
	}

	now := m.now()
	key := utils.GenerateImagePath(mirrorKeyPrefix, now) + utils.GenerateImageFileName(mimeType, now)

	common.WithFields(map[string]interface{}{
		"bucket":       m.bucket,
		"key":          key,
		"content_type": mimeType,
		"size":         len(data),
	}).Debug("Mirroring enhanced image to OSS")

	url, err := m.ossClient.UploadFileWithURL(ctx, m.bucket, key, bytes.NewReader(data), mimeType)
	if err != nil {
		return "", fmt.Errorf("failed to upload image to OSS: %w", err)
	}

	common.WithFields(map[string]interface{}{
		"source_url": imageURL,
		"url":        url,
	}).Info("Enhanced image mirrored to OSS")

	return url, nil
}
