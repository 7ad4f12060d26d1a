package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// ClientCallbackServiceName is served by clients that want notifications
// or write confirmations
const ClientCallbackServiceName = "kvring.ClientCallback"

// ClientCallbackServer is implemented by KV clients listening for callbacks
type ClientCallbackServer interface {
	Notify(context.Context, *Notification) (*Ack, error)
	ConfirmWrite(context.Context, *ConfirmWriteRequest) (*ConfirmWriteResponse, error)
}

// RegisterClientCallbackServer registers srv on s
func RegisterClientCallbackServer(s grpc.ServiceRegistrar, srv ClientCallbackServer) {
	s.RegisterService(&ClientCallbackServiceDesc, srv)
}

// ClientCallbackServiceDesc describes the kvring.ClientCallback service
var ClientCallbackServiceDesc = grpc.ServiceDesc{
	ServiceName: ClientCallbackServiceName,
	HandlerType: (*ClientCallbackServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(ClientCallbackServiceName, "Notify", ClientCallbackServer.Notify),
		unary(ClientCallbackServiceName, "ConfirmWrite", ClientCallbackServer.ConfirmWrite),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "kvring/client_callback",
}

// ClientCallbackClient is the client stub for kvring.ClientCallback
type ClientCallbackClient struct {
	cc grpc.ClientConnInterface
}

// NewClientCallbackClient creates a client stub over cc
func NewClientCallbackClient(cc grpc.ClientConnInterface) *ClientCallbackClient {
	return &ClientCallbackClient{cc: cc}
}

func (c *ClientCallbackClient) Notify(ctx context.Context, in *Notification, opts ...grpc.CallOption) (*Ack, error) {
	return invoke[Ack](ctx, c.cc, ClientCallbackServiceName, "Notify", in, opts)
}

func (c *ClientCallbackClient) ConfirmWrite(ctx context.Context, in *ConfirmWriteRequest, opts ...grpc.CallOption) (*ConfirmWriteResponse, error) {
	return invoke[ConfirmWriteResponse](ctx, c.cc, ClientCallbackServiceName, "ConfirmWrite", in, opts)
}
