package tenant

import "context"

// TenantContext 携带一次请求内的租户身份。在 HTTP 边界处填充一次，
// 随 context.Context 下传到服务与仓储层，避免层层透传参数。
// 身份认证由网关完成，这里只承载已验证的结果。
type TenantContext struct {
	TenantID int64
	Subject  string // 网关透传的调用方标识，可为空
}

type tenantContextKey struct{}

// WithTenantContext attaches the given TenantContext to the provided context and returns
// a derived context. Callers should use this helper instead of storing TenantContext
// under arbitrary keys.
func WithTenantContext(ctx context.Context, tc TenantContext) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, tc)
}

// FromContext attempts to retrieve a TenantContext from the given context. The second
// return value indicates whether a TenantContext was present.
func FromContext(ctx context.Context) (TenantContext, bool) {
	value := ctx.Value(tenantContextKey{})
	if value == nil {
		return TenantContext{}, false
	}

	tc, ok := value.(TenantContext)
	if !ok {
		return TenantContext{}, false
	}

	return tc, true
}

// MustTenantContext retrieves the TenantContext from the given context and panics if it
// is missing. It is suitable for places where the presence of a tenant has been guaranteed
// by earlier middleware and its absence indicates a programming error.
func MustTenantContext(ctx context.Context) TenantContext {
	tc, ok := FromContext(ctx)
	if !ok {
		panic("tenant: TenantContext missing from context")
	}

	return tc
}

// IDFromContext 返回租户 ID，缺失时返回 0。适合后台任务等租户可选的场景。
func IDFromContext(ctx context.Context) int64 {
	tc, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return tc.TenantID
}
