package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// NodeAgentServiceName is the gRPC service every storage node serves
const NodeAgentServiceName = "kvring.NodeAgent"

// NodeAgentServer is the storage node contract: lifecycle and rebalancing
// commands from the controller, plus the data plane used by clients and peers
type NodeAgentServer interface {
	Init(context.Context, *InitRequest) (*Ack, error)
	Start(context.Context, *Empty) (*Ack, error)
	Stop(context.Context, *Empty) (*Ack, error)
	Shutdown(context.Context, *Empty) (*Ack, error)
	LockWrite(context.Context, *Empty) (*Ack, error)
	UnlockWrite(context.Context, *Empty) (*Ack, error)
	MoveData(context.Context, *TransferRequest) (*TransferResponse, error)
	CopyData(context.Context, *TransferRequest) (*TransferResponse, error)
	ApplyRing(context.Context, *ApplyRingRequest) (*Ack, error)
	DeleteAllData(context.Context, *Empty) (*Ack, error)
	HealthCheck(context.Context, *Empty) (*HealthResponse, error)
	Unsubscribe(context.Context, *SubscriptionRequest) (*Ack, error)

	Put(context.Context, *PutRequest) (*KVResponse, error)
	Get(context.Context, *GetRequest) (*KVResponse, error)
	Subscribe(context.Context, *SubscriptionRequest) (*KVResponse, error)
	ClientUnsubscribe(context.Context, *SubscriptionRequest) (*Ack, error)
	Replicate(context.Context, *ReplicateRequest) (*Ack, error)
	Ingest(context.Context, *IngestRequest) (*Ack, error)
	Heartbeat(context.Context, *HeartbeatRequest) (*HeartbeatResponse, error)
	VerifyRead(context.Context, *VerifyReadRequest) (*VerifyReadResponse, error)
}

// UnimplementedNodeAgentServer answers every method with Unimplemented
type UnimplementedNodeAgentServer struct{}

func unimplemented(method string) error {
	return status.Errorf(codes.Unimplemented, "method %s not implemented", method)
}

func (UnimplementedNodeAgentServer) Init(context.Context, *InitRequest) (*Ack, error) {
	return nil, unimplemented("Init")
}
func (UnimplementedNodeAgentServer) Start(context.Context, *Empty) (*Ack, error) {
	return nil, unimplemented("Start")
}
func (UnimplementedNodeAgentServer) Stop(context.Context, *Empty) (*Ack, error) {
	return nil, unimplemented("Stop")
}
func (UnimplementedNodeAgentServer) Shutdown(context.Context, *Empty) (*Ack, error) {
	return nil, unimplemented("Shutdown")
}
func (UnimplementedNodeAgentServer) LockWrite(context.Context, *Empty) (*Ack, error) {
	return nil, unimplemented("LockWrite")
}
func (UnimplementedNodeAgentServer) UnlockWrite(context.Context, *Empty) (*Ack, error) {
	return nil, unimplemented("UnlockWrite")
}
func (UnimplementedNodeAgentServer) MoveData(context.Context, *TransferRequest) (*TransferResponse, error) {
	return nil, unimplemented("MoveData")
}
func (UnimplementedNodeAgentServer) CopyData(context.Context, *TransferRequest) (*TransferResponse, error) {
	return nil, unimplemented("CopyData")
}
func (UnimplementedNodeAgentServer) ApplyRing(context.Context, *ApplyRingRequest) (*Ack, error) {
	return nil, unimplemented("ApplyRing")
}
func (UnimplementedNodeAgentServer) DeleteAllData(context.Context, *Empty) (*Ack, error) {
	return nil, unimplemented("DeleteAllData")
}
func (UnimplementedNodeAgentServer) HealthCheck(context.Context, *Empty) (*HealthResponse, error) {
	return nil, unimplemented("HealthCheck")
}
func (UnimplementedNodeAgentServer) Unsubscribe(context.Context, *SubscriptionRequest) (*Ack, error) {
	return nil, unimplemented("Unsubscribe")
}
func (UnimplementedNodeAgentServer) Put(context.Context, *PutRequest) (*KVResponse, error) {
	return nil, unimplemented("Put")
}
func (UnimplementedNodeAgentServer) Get(context.Context, *GetRequest) (*KVResponse, error) {
	return nil, unimplemented("Get")
}
func (UnimplementedNodeAgentServer) Subscribe(context.Context, *SubscriptionRequest) (*KVResponse, error) {
	return nil, unimplemented("Subscribe")
}
func (UnimplementedNodeAgentServer) ClientUnsubscribe(context.Context, *SubscriptionRequest) (*Ack, error) {
	return nil, unimplemented("ClientUnsubscribe")
}
func (UnimplementedNodeAgentServer) Replicate(context.Context, *ReplicateRequest) (*Ack, error) {
	return nil, unimplemented("Replicate")
}
func (UnimplementedNodeAgentServer) Ingest(context.Context, *IngestRequest) (*Ack, error) {
	return nil, unimplemented("Ingest")
}
func (UnimplementedNodeAgentServer) Heartbeat(context.Context, *HeartbeatRequest) (*HeartbeatResponse, error) {
	return nil, unimplemented("Heartbeat")
}
func (UnimplementedNodeAgentServer) VerifyRead(context.Context, *VerifyReadRequest) (*VerifyReadResponse, error) {
	return nil, unimplemented("VerifyRead")
}

// RegisterNodeAgentServer registers srv on s
func RegisterNodeAgentServer(s grpc.ServiceRegistrar, srv NodeAgentServer) {
	s.RegisterService(&NodeAgentServiceDesc, srv)
}

// NodeAgentServiceDesc describes the kvring.NodeAgent service
var NodeAgentServiceDesc = grpc.ServiceDesc{
	ServiceName: NodeAgentServiceName,
	HandlerType: (*NodeAgentServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(NodeAgentServiceName, "Init", NodeAgentServer.Init),
		unary(NodeAgentServiceName, "Start", NodeAgentServer.Start),
		unary(NodeAgentServiceName, "Stop", NodeAgentServer.Stop),
		unary(NodeAgentServiceName, "Shutdown", NodeAgentServer.Shutdown),
		unary(NodeAgentServiceName, "LockWrite", NodeAgentServer.LockWrite),
		unary(NodeAgentServiceName, "UnlockWrite", NodeAgentServer.UnlockWrite),
		unary(NodeAgentServiceName, "MoveData", NodeAgentServer.MoveData),
		unary(NodeAgentServiceName, "CopyData", NodeAgentServer.CopyData),
		unary(NodeAgentServiceName, "ApplyRing", NodeAgentServer.ApplyRing),
		unary(NodeAgentServiceName, "DeleteAllData", NodeAgentServer.DeleteAllData),
		unary(NodeAgentServiceName, "HealthCheck", NodeAgentServer.HealthCheck),
		unary(NodeAgentServiceName, "Unsubscribe", NodeAgentServer.Unsubscribe),
		unary(NodeAgentServiceName, "Put", NodeAgentServer.Put),
		unary(NodeAgentServiceName, "Get", NodeAgentServer.Get),
		unary(NodeAgentServiceName, "Subscribe", NodeAgentServer.Subscribe),
		unary(NodeAgentServiceName, "ClientUnsubscribe", NodeAgentServer.ClientUnsubscribe),
		unary(NodeAgentServiceName, "Replicate", NodeAgentServer.Replicate),
		unary(NodeAgentServiceName, "Ingest", NodeAgentServer.Ingest),
		unary(NodeAgentServiceName, "Heartbeat", NodeAgentServer.Heartbeat),
		unary(NodeAgentServiceName, "VerifyRead", NodeAgentServer.VerifyRead),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "kvring/node_agent",
}

// NodeAgentClient is the client stub for kvring.NodeAgent
type NodeAgentClient struct {
	cc grpc.ClientConnInterface
}

// NewNodeAgentClient creates a client stub over cc
func NewNodeAgentClient(cc grpc.ClientConnInterface) *NodeAgentClient {
	return &NodeAgentClient{cc: cc}
}

func (c *NodeAgentClient) Init(ctx context.Context, in *InitRequest, opts ...grpc.CallOption) (*Ack, error) {
	return invoke[Ack](ctx, c.cc, NodeAgentServiceName, "Init", in, opts)
}

func (c *NodeAgentClient) Start(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*Ack, error) {
	return invoke[Ack](ctx, c.cc, NodeAgentServiceName, "Start", in, opts)
}

func (c *NodeAgentClient) Stop(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*Ack, error) {
	return invoke[Ack](ctx, c.cc, NodeAgentServiceName, "Stop", in, opts)
}

func (c *NodeAgentClient) Shutdown(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*Ack, error) {
	return invoke[Ack](ctx, c.cc, NodeAgentServiceName, "Shutdown", in, opts)
}

func (c *NodeAgentClient) LockWrite(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*Ack, error) {
	return invoke[Ack](ctx, c.cc, NodeAgentServiceName, "LockWrite", in, opts)
}

func (c *NodeAgentClient) UnlockWrite(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*Ack, error) {
	return invoke[Ack](ctx, c.cc, NodeAgentServiceName, "UnlockWrite", in, opts)
}

func (c *NodeAgentClient) MoveData(ctx context.Context, in *TransferRequest, opts ...grpc.CallOption) (*TransferResponse, error) {
	return invoke[TransferResponse](ctx, c.cc, NodeAgentServiceName, "MoveData", in, opts)
}

func (c *NodeAgentClient) CopyData(ctx context.Context, in *TransferRequest, opts ...grpc.CallOption) (*TransferResponse, error) {
	return invoke[TransferResponse](ctx, c.cc, NodeAgentServiceName, "CopyData", in, opts)
}

func (c *NodeAgentClient) ApplyRing(ctx context.Context, in *ApplyRingRequest, opts ...grpc.CallOption) (*Ack, error) {
	return invoke[Ack](ctx, c.cc, NodeAgentServiceName, "ApplyRing", in, opts)
}

func (c *NodeAgentClient) DeleteAllData(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*Ack, error) {
	return invoke[Ack](ctx, c.cc, NodeAgentServiceName, "DeleteAllData", in, opts)
}

func (c *NodeAgentClient) HealthCheck(ctx context.Context, in *Empty, opts ...grpc.CallOption) (*HealthResponse, error) {
	return invoke[HealthResponse](ctx, c.cc, NodeAgentServiceName, "HealthCheck", in, opts)
}

func (c *NodeAgentClient) Unsubscribe(ctx context.Context, in *SubscriptionRequest, opts ...grpc.CallOption) (*Ack, error) {
	return invoke[Ack](ctx, c.cc, NodeAgentServiceName, "Unsubscribe", in, opts)
}

func (c *NodeAgentClient) Put(ctx context.Context, in *PutRequest, opts ...grpc.CallOption) (*KVResponse, error) {
	return invoke[KVResponse](ctx, c.cc, NodeAgentServiceName, "Put", in, opts)
}

func (c *NodeAgentClient) Get(ctx context.Context, in *GetRequest, opts ...grpc.CallOption) (*KVResponse, error) {
	return invoke[KVResponse](ctx, c.cc, NodeAgentServiceName, "Get", in, opts)
}

func (c *NodeAgentClient) Subscribe(ctx context.Context, in *SubscriptionRequest, opts ...grpc.CallOption) (*KVResponse, error) {
	return invoke[KVResponse](ctx, c.cc, NodeAgentServiceName, "Subscribe", in, opts)
}

func (c *NodeAgentClient) ClientUnsubscribe(ctx context.Context, in *SubscriptionRequest, opts ...grpc.CallOption) (*Ack, error) {
	return invoke[Ack](ctx, c.cc, NodeAgentServiceName, "ClientUnsubscribe", in, opts)
}

func (c *NodeAgentClient) Replicate(ctx context.Context, in *ReplicateRequest, opts ...grpc.CallOption) (*Ack, error) {
	return invoke[Ack](ctx, c.cc, NodeAgentServiceName, "Replicate", in, opts)
}

func (c *NodeAgentClient) Ingest(ctx context.Context, in *IngestRequest, opts ...grpc.CallOption) (*Ack, error) {
	return invoke[Ack](ctx, c.cc, NodeAgentServiceName, "Ingest", in, opts)
}

func (c *NodeAgentClient) Heartbeat(ctx context.Context, in *HeartbeatRequest, opts ...grpc.CallOption) (*HeartbeatResponse, error) {
	return invoke[HeartbeatResponse](ctx, c.cc, NodeAgentServiceName, "Heartbeat", in, opts)
}

func (c *NodeAgentClient) VerifyRead(ctx context.Context, in *VerifyReadRequest, opts ...grpc.CallOption) (*VerifyReadResponse, error) {
	return invoke[VerifyReadResponse](ctx, c.cc, NodeAgentServiceName, "VerifyRead", in, opts)
}
