package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"github.com/park285/clarification-agent-go/internal/httperror"
)

// errorMapperInterceptor: 도메인 오류를 HTTP 와 같은 분류의 status 로 바꿉니다.
func errorMapperInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		_ *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		resp, err := handler(ctx, req)
		if err == nil {
			return resp, nil
		}

		// 이미 status 오류면 code/message 를 그대로 둔다.
		if _, ok := status.FromError(err); ok {
			return resp, err
		}
		return resp, httperror.GRPCStatus(err)
	}
}
