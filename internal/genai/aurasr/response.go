package aurasr

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// 服务端可能返回的任务状态
const (
	StatusProcessing = "processing"
	StatusPending    = "pending"
	StatusQueued     = "queued"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
	StatusError      = "error"
	StatusTimeout    = "timeout"
	StatusUnknown    = "unknown"
)

// SubmitResult 提交任务的结果
type SubmitResult struct {
	SessionID string
	Success   bool
}

// TaskStatus 单次查询的结果。
// State 缺失时为 "unknown"；ImageURL 取自 data.image.url，任一层缺失或不是对象时为空。
type TaskStatus struct {
	State    string
	ImageURL string
	Raw      map[string]interface{}
}

// submitResponse 提交接口返回：{"sessionID": "...", "success": true}
// success 只是参考值，不是 JSON 布尔时视为 false。
type submitResponse struct {
	SessionID json.RawMessage `json:"sessionID"`
	Success   json.RawMessage `json:"success"`
}

func (r submitResponse) sessionID() string {
	id, _ := stringField(r.SessionID)
	return id
}

func (r submitResponse) accepted() bool {
	return bytes.Equal(bytes.TrimSpace(r.Success), []byte("true"))
}

// resultEnvelope 查询接口返回：{"state": "...", "data": {"image": {"url": "..."}}}
// data 及以下各层结构不固定，按层延迟解析。
type resultEnvelope struct {
	State json.RawMessage `json:"state"`
	Data  json.RawMessage `json:"data"`
}

func (e resultEnvelope) state() string {
	if s, ok := stringField(e.State); ok {
		return s
	}
	return StatusUnknown
}

func (e resultEnvelope) imageURL() string {
	var data struct {
		Image json.RawMessage `json:"image"`
	}
	if !decodeObject(e.Data, &data) {
		return ""
	}

	var image struct {
		URL json.RawMessage `json:"url"`
	}
	if !decodeObject(data.Image, &image) {
		return ""
	}

	url, _ := stringField(image.URL)
	return url
}

// parseTaskStatus 解析查询接口的响应体
func parseTaskStatus(body []byte) (*TaskStatus, error) {
	var envelope resultEnvelope
	if !decodeObject(body, &envelope) {
		return nil, fmt.Errorf("%w: result body is not a JSON object: %s", ErrMalformedResponse, string(body))
	}

	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	return &TaskStatus{
		State:    envelope.state(),
		ImageURL: envelope.imageURL(),
		Raw:      raw,
	}, nil
}

// extractErrorMessage 从错误响应中提取可读信息：先取 error，再取 message，否则返回原始文本
func extractErrorMessage(body []byte) string {
	var payload struct {
		Error   json.RawMessage `json:"error"`
		Message json.RawMessage `json:"message"`
	}
	if decodeObject(body, &payload) {
		if msg := messageText(payload.Error); msg != "" {
			return msg
		}
		if msg := messageText(payload.Message); msg != "" {
			return msg
		}
	}
	return string(bytes.TrimSpace(body))
}

// decodeObject 仅当 raw 是 JSON 对象时解码到 v
func decodeObject(raw []byte, v interface{}) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false
	}
	return json.Unmarshal(trimmed, v) == nil
}

func stringField(raw json.RawMessage) (string, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// messageText 字符串直接返回；其它非 null 值返回其 JSON 文本
func messageText(raw json.RawMessage) string {
	if s, ok := stringField(raw); ok {
		return s
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	return string(trimmed)
}
