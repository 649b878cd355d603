package oss

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"clarity-mcp/common"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// 单次上传超时
const uploadTimeout = 60 * time.Second

// S3Client S3 兼容的 OSS 客户端实现
type S3Client struct {
	client     *s3.Client
	httpClient *http.Client
	endpoint   string // 带 scheme 的端点，为空时使用 AWS 默认域名
	region     string
	pathStyle  bool
}

// S3Config S3 客户端配置
type S3Config struct {
	Endpoint  string // 例如：s3.amazonaws.com、oss-cn-hangzhou.aliyuncs.com 或 http://127.0.0.1:9000
	Region    string // 例如：us-east-1 或 cn-hangzhou
	AccessKey string
	SecretKey string
	PathStyle bool // MinIO 等服务需要 path-style 访问
}

// NewS3Client 创建新的 S3 客户端
func NewS3Client(cfg S3Config) (*S3Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	// 未配置 AK/SK 时沿用默认凭证链（环境变量、实例角色等）
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	endpoint := normalizeEndpoint(cfg.Endpoint)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = cfg.PathStyle
	})

	return &S3Client{
		client:     client,
		httpClient: &http.Client{Timeout: uploadTimeout},
		endpoint:   endpoint,
		region:     cfg.Region,
		pathStyle:  cfg.PathStyle,
	}, nil
}

// UploadFileWithURL 上传文件并返回对象 URL
func (c *S3Client) UploadFileWithURL(ctx context.Context, bucket, key string, reader io.Reader, contentType string) (string, error) {
	body, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	// 阿里云 OSS 不支持 SDK PutObject 的 aws-chunked 编码，改用预签名 PUT + 原生 HTTP 上传
	if c.isAliyun() {
		err = c.presignedPut(ctx, bucket, key, body, contentType)
	} else {
		_, err = c.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(body),
			ContentType: aws.String(contentType),
		})
	}
	if err != nil {
		common.WithError(err).WithFields(map[string]interface{}{
			"bucket": bucket,
			"key":    key,
			"size":   len(body),
		}).Error("Failed to upload file to OSS")
		return "", fmt.Errorf("failed to upload file: %w", err)
	}

	objectURL := c.buildObjectURL(bucket, key)
	common.WithFields(map[string]interface{}{
		"bucket": bucket,
		"key":    key,
		"size":   len(body),
		"url":    objectURL,
	}).Info("File uploaded to OSS successfully")

	return objectURL, nil
}

func (c *S3Client) presignedPut(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	presigned, err := s3.NewPresignClient(c.client).PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to presign PUT URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, presigned.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}
	for k, values := range presigned.SignedHeader {
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to upload file via presigned PUT: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("OSS upload failed: status code %d, body: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func (c *S3Client) isAliyun() bool {
	return strings.Contains(c.endpoint, ".aliyuncs.com")
}

// buildObjectURL 构造对象的公开 URL（不带签名）
func (c *S3Client) buildObjectURL(bucket, key string) string {
	if c.endpoint != "" {
		u, err := url.Parse(c.endpoint)
		if err == nil && u.Host != "" {
			if c.pathStyle {
				return fmt.Sprintf("%s://%s/%s/%s", u.Scheme, u.Host, bucket, key)
			}
			return fmt.Sprintf("%s://%s.%s/%s", u.Scheme, bucket, u.Host, key)
		}
	}

	if c.region != "" {
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, c.region, key)
	}
	return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", bucket, key)
}

// normalizeEndpoint 没有 scheme 的端点默认使用 https
func normalizeEndpoint(endpoint string) string {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return ""
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		return "https://" + endpoint
	}
	return endpoint
}

// Compile-time check that S3Client implements OSSIface.
var _ OSSIface = (*S3Client)(nil)
