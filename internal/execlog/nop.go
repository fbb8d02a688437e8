package execlog

import "context"

// NopLogger 无操作记录器。接口与 Recorder 完全一致，
// 不需要日志的调用方据此与真实记录器共用同一条提供方执行路径。
type NopLogger struct{}

func (NopLogger) SetContext(context.Context, CallContext)      {}
func (NopLogger) LogInput(context.Context, any)                {}
func (NopLogger) LogOutput(context.Context, any)               {}
func (NopLogger) LogVariables(context.Context, map[string]any) {}
func (NopLogger) LogResult(context.Context, any)               {}
func (NopLogger) LogResponse(context.Context, any)             {}
func (NopLogger) LogSuccess(context.Context, Outcome) error    { return nil }
func (NopLogger) LogError(context.Context, Outcome) error      { return nil }
func (NopLogger) Finish(context.Context) error                 { return nil }
func (NopLogger) Record() *ExecutionLog                        { return nil }
