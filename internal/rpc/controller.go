package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// ControllerServiceName is the gRPC service the cluster controller serves
const ControllerServiceName = "kvring.Controller"

// ControllerServer receives failure reports from nodes and membership
// commands from operators
type ControllerServer interface {
	ReportDead(context.Context, *NodeReport) (*ReportResponse, error)
	ReportCompromised(context.Context, *NodeReport) (*ReportResponse, error)
	BroadcastUnsubscribe(context.Context, *SubscriptionRequest) (*Ack, error)

	Initialize(context.Context, *InitializeRequest) (*ClusterResponse, error)
	AddNode(context.Context, *AddNodeRequest) (*ClusterResponse, error)
	RemoveNode(context.Context, *RemoveNodeRequest) (*ClusterResponse, error)
	Shutdown(context.Context, *Empty) (*Ack, error)
	Start(context.Context, *Empty) (*Ack, error)
	Stop(context.Context, *Empty) (*Ack, error)
	GetCluster(context.Context, *Empty) (*ClusterResponse, error)
}

// RegisterControllerServer registers srv on s
func RegisterControllerServer(s grpc.ServiceRegistrar, srv ControllerServer) {
	s.RegisterService(&ControllerServiceDesc, srv)
}

// ControllerServiceDesc describes the kvring.Controller service
var ControllerServiceDesc = grpc.ServiceDesc{
	ServiceName: ControllerServiceName,
	HandlerType: (*ControllerServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(ControllerServiceName, "ReportDead", ControllerServer.ReportDead),
		unary(ControllerServiceName, "ReportCompromised", ControllerServer.ReportCompromised),
		unary(ControllerServiceName, "BroadcastUnsubscribe", ControllerServer.BroadcastUnsubscribe),
		unary(ControllerServiceName, "Initialize", ControllerServer.Initialize),
		unary(ControllerServiceName, "AddNode", ControllerServer.AddNode),
		unary(ControllerServiceName, "RemoveNode", ControllerServer.RemoveNode),
		unary(ControllerServiceName, "Shutdown", ControllerServer.Shutdown),
		unary(ControllerServiceName, "Start", ControllerServer.Start),
		unary(ControllerServiceName, "Stop", ControllerServer.Stop),
		unary(ControllerServiceName, "GetCluster", ControllerServer.GetCluster),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "kvring/controller",
}

// ControllerClient is the client stub for kvring.Controller
type ControllerClient struct {
	cc grpc.ClientConnInterface
}

// NewControllerClient creates a client stub over cc
func NewControllerClient(cc grpc.ClientConnInterface) *ControllerClient {
	return &ControllerClient{cc: cc}
}

func (c *ControllerClient) ReportDead(ctx context.Context, in *NodeReport, opts ...grpc.CallOption) (*ReportResponse, error) {
	return invoke[ReportResponse](ctx, c.cc, ControllerServiceName, "ReportDead", in, opts)
}

func (c *ControllerClient) ReportCompromised(ctx context.Context, in *NodeReport, opts ...grpc.CallOption) (*ReportResponse, error) {
	return invoke[ReportResponse](ctx, c.cc, ControllerServiceName, "ReportCompromised", in, opts)
}

func (c *ControllerClient) BroadcastUnsubscribe(ctx context.Context, in *SubscriptionRequest, opts ...grpc.CallOption) (*Ack, error) {
	return invoke[Ack](ctx, c.cc, ControllerServiceName, "BroadcastUnsubscribe", in, opts)
}

func (c *ControllerClient) Initialize(ctx context.Context, in *InitializeRequest, opts ...grpc.CallOption) (*ClusterResponse, error) {
	return invoke[ClusterResponse](ctx, c.cc, ControllerServiceName, "Initialize", in, opts)
}

func (c *ControllerClient) AddNode(ctx context.Context, in *AddNodeRequest, opts ...grpc.CallOption) (*ClusterResponse, error) {
	return invoke[ClusterResponse](ctx, c.cc, ControllerServiceName, "AddNode", in, opts)
}

func (c *ControllerClient) RemoveNode(ctx context.Context, in *RemoveNodeRequest, opts ...grpc.CallOption) (*ClusterResponse, error) {
	return invoke[ClusterResponse](ctx, c.cc, ControllerServiceName, "RemoveNode", in, opts)
}

func (c *ControllerClient) Shutdown(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*Ack, error) {
	return invoke[Ack](ctx, c.cc, ControllerServiceName, "Shutdown", in, opts)
}

func (c *ControllerClient) Start(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*Ack, error) {
	return invoke[Ack](ctx, c.cc, ControllerServiceName, "Start", in, opts)
}

func (c *ControllerClient) Stop(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*Ack, error) {
	return invoke[Ack](ctx, c.cc, ControllerServiceName, "Stop", in, opts)
}

func (c *ControllerClient) GetCluster(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*ClusterResponse, error) {
	return invoke[ClusterResponse](ctx, c.cc, ControllerServiceName, "GetCluster", in, opts)
}
