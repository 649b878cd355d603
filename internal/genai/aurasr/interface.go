package aurasr

import "context"

type AuraSRIface interface {
	// SubmitEnhanceTask 提交图片清晰度增强任务，返回 sessionID。
	// 只发起一次请求，不做重试。
	SubmitEnhanceTask(ctx context.Context, imageURL string) (*SubmitResult, error)
	// QueryEnhanceTask 查询一次任务状态，返回解析后的状态与原始响应。
	QueryEnhanceTask(ctx context.Context, sessionID string) (*TaskStatus, error)
}
