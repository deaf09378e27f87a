package handler

import (
	"context"
	"strings"

	"github.com/ogurasousui/offboarding-engine/internal/core/offboarding"
	"google.golang.org/grpc/metadata"
)

// スコープと操作者を受け取るメタデータのキー。
const (
	ScopeMetadataKey = "x-scope-id"
	ActorMetadataKey = "x-actor-id"
)

// scopeFromContext は受信メタデータから ScopeContext を組み立てます。
// 値がなければ空のまま返し、検証はエンジンに任せます。
func scopeFromContext(ctx context.Context) offboarding.ScopeContext {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return offboarding.ScopeContext{}
	}
	return offboarding.ScopeContext{
		ScopeID: firstValue(md, ScopeMetadataKey),
		ActorID: firstValue(md, ActorMetadataKey),
	}
}

func firstValue(md metadata.MD, key string) string {
	values := md.Get(key)
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}
