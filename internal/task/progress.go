package task

import "context"

// ProgressReporter 接收 0-100 的进度，调用方不等待确认
type ProgressReporter interface {
	Report(ctx context.Context, percent int)
}

// ProgressFunc 函数适配器
type ProgressFunc func(ctx context.Context, percent int)

// Report 调用 f
func (f ProgressFunc) Report(ctx context.Context, percent int) {
	f(ctx, percent)
}

// NopProgress 丢弃进度
var NopProgress ProgressReporter = ProgressFunc(func(context.Context, int) {})

func orNop(p ProgressReporter) ProgressReporter {
	if p == nil {
		return NopProgress
	}
	return p
}
