package grpcserver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/goccy/go-json"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/park285/clarification-agent-go/internal/clarify"
	"github.com/park285/clarification-agent-go/internal/httperror"
	"github.com/park285/clarification-agent-go/internal/middleware"
)

// ServiceName 은 gRPC 서비스 전체 이름이다.
const ServiceName = "clarify.v1.ClarificationService"

const runMethod = "/" + ServiceName + "/Run"

// ClarificationServer 는 명확화 gRPC 서비스 계약이다.
// 입력/출력은 google.protobuf.Struct 로 HTTP 본문과 같은 JSON 모양을 쓴다.
type ClarificationServer interface {
	Run(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// Runner 는 명확화 에이전트 호출 인터페이스다.
type Runner interface {
	Run(ctx context.Context, req clarify.Request) (*clarify.Result, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ClarificationServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Run", Handler: runHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "clarify/v1/clarify.proto",
}

func runHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ClarificationServer).Run(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: runMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ClarificationServer).Run(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

// RegisterClarificationServer: 서비스를 gRPC 서버에 등록합니다.
func RegisterClarificationServer(registrar grpc.ServiceRegistrar, srv ClarificationServer) {
	registrar.RegisterService(&serviceDesc, srv)
}

// ClarifyService 는 ClarificationServer 구현이다.
type ClarifyService struct {
	agent  Runner
	logger *slog.Logger
}

// NewClarifyService: 명확화 gRPC 서비스를 생성합니다.
func NewClarifyService(agent Runner, logger *slog.Logger) *ClarifyService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ClarifyService{agent: agent, logger: logger}
}

// Run: {"user_input": string, "context": object?} 를 받아 결과 JSON 을 Struct 로 돌려줍니다.
func (s *ClarifyService) Run(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	inputValue, ok := fields["user_input"]
	if !ok {
		return nil, httperror.NewMissingField("user_input")
	}
	if _, isString := inputValue.GetKind().(*structpb.Value_StringValue); !isString {
		return nil, httperror.NewInvalidInput("user_input must be a string")
	}

	var rawContext map[string]any
	if contextValue, ok := fields["context"]; ok {
		switch contextValue.GetKind().(type) {
		case *structpb.Value_StructValue:
			rawContext = contextValue.GetStructValue().AsMap()
		case *structpb.Value_NullValue:
		default:
			return nil, httperror.NewInvalidInput("context must be an object")
		}
	}

	workflow, unused, err := clarify.DecodeContext(rawContext)
	if err != nil {
		return nil, httperror.NewInvalidInput(err.Error())
	}
	if len(unused) > 0 {
		s.logger.DebugContext(ctx, "clarify_context_unused_keys",
			"request_id", middleware.RequestIDFromContext(ctx),
			"keys", unused,
		)
	}

	result, err := s.agent.Run(ctx, clarify.Request{UserInput: inputValue.GetStringValue(), Context: workflow})
	if err != nil {
		return nil, err
	}
	return resultToStruct(result)
}

func resultToStruct(result *clarify.Result) (*structpb.Struct, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal result: %w", err)
	}
	out, err := structpb.NewStruct(payload)
	if err != nil {
		return nil, fmt.Errorf("build result struct: %w", err)
	}
	return out, nil
}

// ClarificationClient 는 ClarificationService 호출용 얇은 클라이언트다.
type ClarificationClient struct {
	cc grpc.ClientConnInterface
}

// NewClarificationClient: 연결로 클라이언트를 생성합니다.
func NewClarificationClient(cc grpc.ClientConnInterface) *ClarificationClient {
	return &ClarificationClient{cc: cc}
}

// Run: 원격 Run 을 호출합니다.
func (c *ClarificationClient) Run(ctx context.Context, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, runMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
