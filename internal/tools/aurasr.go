package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"clarity-mcp/common"
	"clarity-mcp/internal/task"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// 工具名称
const (
	EnhanceToolName = "enhance_image_clarity"
	QueryToolName   = "query_conversion_result"
)

// QueryDefaults query_conversion_result 未传参时使用的轮询参数
type QueryDefaults struct {
	MaxAttempts     int
	IntervalSeconds int
}

// RegisterAuraSRTools 注册 AuraSR 清晰度增强相关的 MCP tools。
//
// 约定工具列表：
//   - enhance_image_clarity    提交增强任务，返回 session_id
//   - query_conversion_result  根据 session_id 查询结果，可选轮询直到终态
//
// 两个工具之间不共享状态，session_id 由 MCP 客户端保存。
func RegisterAuraSRTools(s *server.MCPServer, submitter *task.Submitter, poller *task.Poller, defaults QueryDefaults) error {
	if submitter == nil || poller == nil {
		return fmt.Errorf("aurasr submitter and poller are required")
	}
	if defaults.MaxAttempts <= 0 {
		defaults.MaxAttempts = task.DefaultMaxAttempts
	}
	if defaults.IntervalSeconds < 0 {
		defaults.IntervalSeconds = 0
	}

	enhanceTool := mcp.NewTool(
		EnhanceToolName,
		mcp.WithDescription("Submit an image to the AuraSR super-resolution service to enhance its clarity. Returns a session_id; save it and call query_conversion_result to get the enhanced image."),
		mcp.WithString("image_url",
			mcp.Required(),
			mcp.Description("HTTP/HTTPS URL of the image to enhance."),
		),
	)
	s.AddTool(enhanceTool, enhanceHandler(submitter))

	queryTool := mcp.NewTool(
		QueryToolName,
		mcp.WithDescription("Query the result of an AuraSR enhancement task by session id. By default polls until the task completes, fails or the attempt budget runs out."),
		mcp.WithString("task_id",
			mcp.Required(),
			mcp.Description("Session ID returned from enhance_image_clarity."),
		),
		mcp.WithBoolean("enable_polling",
			mcp.DefaultBool(true),
			mcp.Description("Keep querying until a terminal state. When false the result is queried exactly once."),
		),
		mcp.WithNumber("max_attempts",
			mcp.DefaultNumber(float64(defaults.MaxAttempts)),
			mcp.Description("Maximum number of queries when polling."),
		),
		mcp.WithNumber("interval_seconds",
			mcp.DefaultNumber(float64(defaults.IntervalSeconds)),
			mcp.Description("Seconds to wait between queries when polling."),
		),
	)
	s.AddTool(queryTool, queryHandler(poller, defaults))

	return nil
}

func enhanceHandler(submitter *task.Submitter) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		imageURL, err := req.RequireString("image_url")
		if err != nil {
			common.WithError(err).Error("AuraSR: failed to get image_url parameter for enhance_image_clarity")
			return mcp.NewToolResultError(fmt.Sprintf("image_url parameter is required: %v", err)), nil
		}

		imageURL = strings.TrimSpace(imageURL)
		if !strings.HasPrefix(imageURL, "http://") && !strings.HasPrefix(imageURL, "https://") {
			common.WithField("image_url", imageURL).Error("AuraSR: image_url must be an HTTP/HTTPS URL")
			return mcp.NewToolResultError("image_url must be an HTTP/HTTPS URL"), nil
		}

		out, err := submitter.Submit(ctx, imageURL, progressFromRequest(ctx, req))
		if err != nil {
			common.WithError(err).WithField("image_url", imageURL).Error("AuraSR: failed to submit enhance task")
			return mcp.NewToolResultError(fmt.Sprintf("failed to submit enhance task: %v", err)), nil
		}

		return jsonResult(out)
	}
}

func queryHandler(poller *task.Poller, defaults QueryDefaults) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		taskID, err := req.RequireString("task_id")
		if err != nil {
			common.WithError(err).Error("AuraSR: failed to get task_id parameter for query_conversion_result")
			return mcp.NewToolResultError(fmt.Sprintf("task_id parameter is required: %v", err)), nil
		}
		taskID = strings.TrimSpace(taskID)
		if taskID == "" {
			return mcp.NewToolResultError("task_id must not be empty"), nil
		}

		opts := task.QueryOptions{
			SessionID:       taskID,
			EnablePolling:   req.GetBool("enable_polling", true),
			MaxAttempts:     req.GetInt("max_attempts", defaults.MaxAttempts),
			IntervalSeconds: req.GetInt("interval_seconds", defaults.IntervalSeconds),
		}

		common.WithFields(map[string]interface{}{
			"task_id":          opts.SessionID,
			"enable_polling":   opts.EnablePolling,
			"max_attempts":     opts.MaxAttempts,
			"interval_seconds": opts.IntervalSeconds,
		}).Info("AuraSR: querying enhance task")

		out, err := poller.Poll(ctx, opts, progressFromRequest(ctx, req))
		if err != nil {
			common.WithError(err).WithField("task_id", taskID).Warn("AuraSR: query aborted")
			return mcp.NewToolResultError(fmt.Sprintf("query aborted: %v", err)), nil
		}

		return jsonResult(out)
	}
}

// progressFromRequest 客户端携带 progressToken 时，将进度转为 notifications/progress
func progressFromRequest(ctx context.Context, req mcp.CallToolRequest) task.ProgressReporter {
	if req.Params.Meta == nil || req.Params.Meta.ProgressToken == nil {
		return task.NopProgress
	}
	srv := server.ServerFromContext(ctx)
	if srv == nil {
		return task.NopProgress
	}

	token := req.Params.Meta.ProgressToken
	return task.ProgressFunc(func(ctx context.Context, percent int) {
		err := srv.SendNotificationToClient(ctx, "notifications/progress", map[string]any{
			"progressToken": token,
			"progress":      percent,
			"total":         100,
		})
		if err != nil {
			common.WithError(err).WithField("progress", percent).Debug("AuraSR: failed to send progress notification")
		}
	})
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
