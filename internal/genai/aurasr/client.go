package aurasr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"clarity-mcp/common"
	"clarity-mcp/internal/auth"
	"clarity-mcp/internal/utils"

	"github.com/google/uuid"
)

// 默认单次请求超时时间
const defaultAuraSRTimeout = 30 * time.Second

// 日志中响应体的最大长度
const maxLoggedBody = 512

// Client AuraSR 客户端实现，负责调用 fal-aura-sr 的提交与查询接口。
//
//   - 提交：POST {baseURL}/submit      body: {"imageURL": "..."}
//   - 查询：GET  {baseURL}/result/{id}
//
// 凭证在每次请求前从 TokenProvider 获取，原样放入 Authorization 头。
type Client struct {
	httpClient *http.Client

	baseURL string
	tokens  auth.TokenProvider

	submitPath string
	resultPath string

	timeout time.Duration
}

// Config AuraSR 客户端配置
type Config struct {
	BaseURL string
	Tokens  auth.TokenProvider

	// 可选：自定义接口路径（相对 BaseURL）
	SubmitPath string
	ResultPath string

	Timeout    time.Duration
	HTTPClient *http.Client
}

// NewAuraSRClientFromConfig 从通用配置创建 AuraSR 客户端
func NewAuraSRClientFromConfig(cfg *common.Config) (*Client, error) {
	return NewClient(Config{
		BaseURL: cfg.AuraSRBaseURL,
		Tokens:  auth.NewTokenProviderFromConfig(cfg),
		Timeout: time.Duration(cfg.AuraSRTimeoutSeconds) * time.Second,
	})
}

// NewClient 创建 AuraSR 客户端
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("aurasr base URL is required")
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("aurasr token provider is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultAuraSRTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	c := &Client{
		httpClient: httpClient,
		baseURL:    cfg.BaseURL,
		tokens:     cfg.Tokens,
		submitPath: cfg.SubmitPath,
		resultPath: cfg.ResultPath,
		timeout:    timeout,
	}

	if c.submitPath == "" {
		c.submitPath = "/submit"
	}
	if c.resultPath == "" {
		c.resultPath = "/result"
	}

	return c, nil
}

// SubmitEnhanceTask 提交清晰度增强任务
func (c *Client) SubmitEnhanceTask(ctx context.Context, imageURL string) (*SubmitResult, error) {
	common.WithFields(map[string]interface{}{
		"image_url": imageURL,
		"endpoint":  c.baseURL + c.submitPath,
	}).Info("Submitting AuraSR enhance task")

	payload := map[string]string{
		"imageURL": imageURL,
	}

	status, body, err := c.doRequest(ctx, http.MethodPost, c.submitPath, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to submit enhance task: %w", err)
	}

	if status == http.StatusBadGateway {
		common.WithField("status_code", status).Error("AuraSR submit endpoint is unavailable")
		return nil, &APIError{Kind: ErrBackendUnavailable, StatusCode: status, Body: string(body)}
	}
	if status != http.StatusOK {
		apiErr := &APIError{
			Kind:       ErrRequestRejected,
			StatusCode: status,
			Message:    extractErrorMessage(body),
			Body:       string(body),
		}
		common.WithFields(map[string]interface{}{
			"status_code": status,
			"message":     apiErr.Message,
		}).Error("AuraSR submit returned non-success status")
		return nil, apiErr
	}

	var resp submitResponse
	if !decodeObject(body, &resp) {
		common.WithField("body", utils.TruncateForLog(string(body), maxLoggedBody)).Error("Failed to parse AuraSR submit response")
		return nil, fmt.Errorf("%w: failed to parse submit response: %s", ErrMalformedResponse, string(body))
	}
	sessionID := resp.sessionID()
	if sessionID == "" {
		common.WithField("body", utils.TruncateForLog(string(body), maxLoggedBody)).Error("AuraSR submit response missing sessionID")
		return nil, fmt.Errorf("%w: no sessionID returned from submit endpoint, response: %s", ErrMalformedResponse, string(body))
	}

	return &SubmitResult{
		SessionID: sessionID,
		Success:   resp.accepted(),
	}, nil
}

// QueryEnhanceTask 查询一次任务状态
func (c *Client) QueryEnhanceTask(ctx context.Context, sessionID string) (*TaskStatus, error) {
	queryPath := fmt.Sprintf("%s/%s", c.resultPath, url.PathEscape(sessionID))

	common.WithFields(map[string]interface{}{
		"session_id": sessionID,
		"endpoint":   c.baseURL + queryPath,
	}).Debug("Querying AuraSR enhance task")

	status, body, err := c.doRequest(ctx, http.MethodGet, queryPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query enhance task: %w", err)
	}

	if status < 200 || status >= 300 {
		return nil, &APIError{
			Kind:       ErrRequestRejected,
			StatusCode: status,
			Message:    extractErrorMessage(body),
			Body:       string(body),
		}
	}

	result, err := parseTaskStatus(body)
	if err != nil {
		return nil, err
	}

	common.WithFields(map[string]interface{}{
		"session_id": sessionID,
		"state":      result.State,
		"body":       utils.TruncateForLog(string(body), maxLoggedBody),
	}).Debug("AuraSR task status received")

	return result, nil
}

// doRequest 统一封装 HTTP 请求逻辑，返回状态码与响应体，由调用方判断状态码。
//
// 每次请求都重新获取凭证，并附带 X-Request-ID 便于日志关联。
func (c *Client) doRequest(ctx context.Context, method, path string, body interface{}) (int, []byte, error) {
	endpoint := c.baseURL + path

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to acquire token: %w", err)
	}

	// 为单次请求设置超时
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create http request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Authorization", token)
	req.Header.Set("X-Request-ID", requestID)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		common.WithError(err).WithFields(map[string]interface{}{
			"request_id": requestID,
			"url":        endpoint,
		}).Warn("AuraSR http request failed")
		return 0, nil, classifyError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, classifyError(fmt.Errorf("failed to read response body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		common.WithFields(map[string]interface{}{
			"request_id":  requestID,
			"status_code": resp.StatusCode,
			"url":         endpoint,
			"body":        utils.TruncateForLog(string(respBody), maxLoggedBody),
		}).Warn("AuraSR API returned non-success status")
	}

	return resp.StatusCode, respBody, nil
}

// Compile-time check that Client implements AuraSRIface.
var _ AuraSRIface = (*Client)(nil)
