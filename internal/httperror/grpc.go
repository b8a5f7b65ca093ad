package httperror

import (
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GRPCCode: HTTP 상태 코드를 대응하는 gRPC 코드로 바꿉니다.
func GRPCCode(httpStatus int) codes.Code {
	switch httpStatus {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return codes.InvalidArgument
	case http.StatusUnauthorized:
		return codes.Unauthenticated
	case http.StatusForbidden:
		return codes.PermissionDenied
	case http.StatusNotFound:
		return codes.NotFound
	case http.StatusTooManyRequests:
		return codes.ResourceExhausted
	case http.StatusNotImplemented:
		return codes.Unimplemented
	case http.StatusServiceUnavailable:
		return codes.Unavailable
	case http.StatusGatewayTimeout:
		return codes.DeadlineExceeded
	case StatusClientClosedRequest:
		return codes.Canceled
	case http.StatusBadGateway:
		return codes.Unavailable
	default:
		if httpStatus >= 200 && httpStatus < 300 {
			return codes.OK
		}
		return codes.Internal
	}
}

// GRPCStatus: 오류를 HTTP 와 같은 분류로 gRPC status 오류로 변환합니다.
// 메시지 앞에 오류 코드를 붙여 클라이언트가 구분할 수 있게 한다.
func GRPCStatus(err error) error {
	apiErr := FromError(err)
	if apiErr == nil {
		return nil
	}
	return status.Error(GRPCCode(apiErr.Status), string(apiErr.Code)+": "+apiErr.Message)
}
