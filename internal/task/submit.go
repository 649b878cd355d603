package task

import (
	"context"

	"clarity-mcp/common"
	"clarity-mcp/internal/genai/aurasr"
)

// SubmitClient 提交任务所需的能力
type SubmitClient interface {
	SubmitEnhanceTask(ctx context.Context, imageURL string) (*aurasr.SubmitResult, error)
}

// SubmitOutput 提交任务的输出，session_id 需由调用方保存用于后续查询
type SubmitOutput struct {
	SessionID string `json:"session_id"`
	Success   bool   `json:"success"`
}

// Submitter 提交清晰度增强任务。失败直接返回错误，不重试。
type Submitter struct {
	client SubmitClient
}

// NewSubmitter 创建 Submitter
func NewSubmitter(client SubmitClient) *Submitter {
	return &Submitter{client: client}
}

// Submit 提交 imageURL，提交前报告 50%，成功解析后报告 100%
func (s *Submitter) Submit(ctx context.Context, imageURL string, progress ProgressReporter) (*SubmitOutput, error) {
	progress = orNop(progress)

	progress.Report(ctx, 50)

	res, err := s.client.SubmitEnhanceTask(ctx, imageURL)
	if err != nil {
		return nil, err
	}

	progress.Report(ctx, 100)

	common.WithFields(map[string]interface{}{
		"image_url":  imageURL,
		"session_id": res.SessionID,
		"success":    res.Success,
	}).Info("AuraSR enhance task submitted")

	return &SubmitOutput{
		SessionID: res.SessionID,
		Success:   res.Success,
	}, nil
}
