package handler

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// LoggingUnaryInterceptor は RPC ごとにメソッド、スコープ、結果コード、処理時間を記録します。
func LoggingUnaryInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(ctx, req)

		code := status.Code(err)
		sc := scopeFromContext(ctx)
		attrs := []any{
			slog.String("method", info.FullMethod),
			slog.String("code", code.String()),
			slog.String("scope_id", sc.ScopeID),
			slog.String("actor_id", sc.ActorID),
			slog.Duration("duration", time.Since(start)),
		}

		switch code {
		case codes.OK:
			logger.InfoContext(ctx, "rpc completed", attrs...)
		case codes.Internal, codes.Unknown, codes.DataLoss, codes.Unavailable:
			logger.ErrorContext(ctx, "rpc failed", append(attrs, slog.Any("error", err))...)
		default:
			logger.WarnContext(ctx, "rpc rejected", append(attrs, slog.Any("error", err))...)
		}
		return resp, err
	}
}

// RecoveryUnaryInterceptor はハンドラの panic を Internal エラーに変換します。
func RecoveryUnaryInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.ErrorContext(ctx, "rpc panicked", slog.String("method", info.FullMethod), slog.Any("panic", r))
				resp, err = nil, status.Error(codes.Internal, "internal error")
			}
		}()
		return next(ctx, req)
	}
}
