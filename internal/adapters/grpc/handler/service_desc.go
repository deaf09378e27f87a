package handler

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName は退職エンジンの gRPC サービス名です。
const ServiceName = "offboarding.v1.OffboardingService"

// RPC メソッド名。
const (
	MethodResolveTemplate   = "ResolveTemplate"
	MethodCreateOffboarding = "CreateOffboarding"
	MethodAddTask           = "AddTask"
	MethodCompleteTask      = "CompleteTask"
	MethodStartTask         = "StartTask"
	MethodBlockTask         = "BlockTask"
	MethodUnblockTask       = "UnblockTask"
	MethodUpdateTask        = "UpdateTask"
	MethodPauseRun          = "PauseRun"
	MethodStartRun          = "StartRun"
	MethodCancelRun         = "CancelRun"
	MethodGetProgress       = "GetProgress"
	MethodGetRun            = "GetRun"
	MethodListRunTasks      = "ListRunTasks"
	MethodListRuns          = "ListRuns"
)

// OffboardingServiceServer は OffboardingService のサーバー側インターフェースです。
// リクエストとレスポンスは google.protobuf.Struct で表現します。
type OffboardingServiceServer interface {
	ResolveTemplate(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateOffboarding(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AddTask(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CompleteTask(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StartTask(context.Context, *structpb.Struct) (*structpb.Struct, error)
	BlockTask(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UnblockTask(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateTask(context.Context, *structpb.Struct) (*structpb.Struct, error)
	PauseRun(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StartRun(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CancelRun(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetProgress(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetRun(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListRunTasks(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListRuns(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(OffboardingServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryMethod(name string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			server := srv.(OffboardingServiceServer)
			if interceptor == nil {
				return call(server, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(server, ctx, req.(*structpb.Struct))
			})
		},
	}
}

// OffboardingServiceDesc は OffboardingService の grpc.ServiceDesc です。
var OffboardingServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*OffboardingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(MethodResolveTemplate, OffboardingServiceServer.ResolveTemplate),
		unaryMethod(MethodCreateOffboarding, OffboardingServiceServer.CreateOffboarding),
		unaryMethod(MethodAddTask, OffboardingServiceServer.AddTask),
		unaryMethod(MethodCompleteTask, OffboardingServiceServer.CompleteTask),
		unaryMethod(MethodStartTask, OffboardingServiceServer.StartTask),
		unaryMethod(MethodBlockTask, OffboardingServiceServer.BlockTask),
		unaryMethod(MethodUnblockTask, OffboardingServiceServer.UnblockTask),
		unaryMethod(MethodUpdateTask, OffboardingServiceServer.UpdateTask),
		unaryMethod(MethodPauseRun, OffboardingServiceServer.PauseRun),
		unaryMethod(MethodStartRun, OffboardingServiceServer.StartRun),
		unaryMethod(MethodCancelRun, OffboardingServiceServer.CancelRun),
		unaryMethod(MethodGetProgress, OffboardingServiceServer.GetProgress),
		unaryMethod(MethodGetRun, OffboardingServiceServer.GetRun),
		unaryMethod(MethodListRunTasks, OffboardingServiceServer.ListRunTasks),
		unaryMethod(MethodListRuns, OffboardingServiceServer.ListRuns),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "offboarding/v1/offboarding_service.proto",
}

// RegisterOffboardingServiceServer は srv を gRPC サーバーに登録します。
func RegisterOffboardingServiceServer(s grpc.ServiceRegistrar, srv OffboardingServiceServer) {
	s.RegisterService(&OffboardingServiceDesc, srv)
}

// FullMethod は "/offboarding.v1.OffboardingService/<method>" 形式のメソッド名を返します。
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// OffboardingServiceClient は OffboardingService のクライアントです。
type OffboardingServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewOffboardingServiceClient は OffboardingServiceClient を生成します。
func NewOffboardingServiceClient(cc grpc.ClientConnInterface) *OffboardingServiceClient {
	return &OffboardingServiceClient{cc: cc}
}

// Call は指定したメソッドを呼び出します。
func (c *OffboardingServiceClient) Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
