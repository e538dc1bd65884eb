package hub

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"pti/dm/internal/manager"
	"pti/dm/internal/store"
)

// ServiceName is the fully qualified gRPC service name. Requests and replies
// are google.protobuf.Struct values with the fields of Reply plus "user" for
// the confusion network text of a turn.
const ServiceName = "ptidm.v1.DialogueHub"

// DialogueHubServer is the server side of ServiceName.
type DialogueHubServer interface {
	Open(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Turn(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Close(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(DialogueHubServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, m unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return m(srv.(DialogueHubServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return m(srv.(DialogueHubServer), ctx, req.(*structpb.Struct))
			})
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*DialogueHubServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryHandler("Open", DialogueHubServer.Open),
		unaryHandler("Turn", DialogueHubServer.Turn),
		unaryHandler("Close", DialogueHubServer.Close),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ptidm/v1/hub.proto",
}

// RegisterGRPC registers the hub and a health service on s. The returned
// health server reports ServiceName as serving until NotServing is set.
func RegisterGRPC(s *grpc.Server, h *Hub) *grpchealth.Server {
	s.RegisterService(&serviceDesc, grpcServer{h: h})
	hs := grpchealth.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s, hs)
	return hs
}

type grpcServer struct{ h *Hub }

func (g grpcServer) Open(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	r, err := g.h.Open(ctx)
	if err != nil {
		return nil, grpcError(err)
	}
	return replyStruct(r)
}

func (g grpcServer) Turn(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id := in.GetFields()["dialogue_id"].GetStringValue()
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "dialogue_id is required")
	}
	r, err := g.h.Turn(ctx, id, in.GetFields()["user"].GetStringValue())
	if err != nil {
		return nil, grpcError(err)
	}
	return replyStruct(r)
}

func (g grpcServer) Close(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id := in.GetFields()["dialogue_id"].GetStringValue()
	if err := g.h.Close(id); err != nil {
		return nil, grpcError(err)
	}
	return structpb.NewStruct(map[string]any{"dialogue_id": id, "closed": true})
}

func replyStruct(r Reply) (*structpb.Struct, error) {
	return structpb.NewStruct(map[string]any{
		"dialogue_id": r.DialogueID,
		"turn":        r.Turn,
		"system_act":  r.SystemAct,
	})
}

func grpcError(err error) error {
	switch {
	case errors.Is(err, store.ErrDialogueNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, ErrBadInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, manager.ErrClosed):
		return status.Error(codes.FailedPrecondition, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// Client calls a remote DialogueHub.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client { return &Client{cc: cc} }

func (c *Client) invoke(ctx context.Context, method string, in map[string]any) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(in)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Open(ctx context.Context) (Reply, error) {
	out, err := c.invoke(ctx, "Open", nil)
	if err != nil {
		return Reply{}, err
	}
	return parseReply(out), nil
}

func (c *Client) Turn(ctx context.Context, id, user string) (Reply, error) {
	out, err := c.invoke(ctx, "Turn", map[string]any{"dialogue_id": id, "user": user})
	if err != nil {
		return Reply{}, err
	}
	return parseReply(out), nil
}

func (c *Client) Close(ctx context.Context, id string) error {
	_, err := c.invoke(ctx, "Close", map[string]any{"dialogue_id": id})
	return err
}

func parseReply(s *structpb.Struct) Reply {
	f := s.GetFields()
	return Reply{
		DialogueID: f["dialogue_id"].GetStringValue(),
		Turn:       int(f["turn"].GetNumberValue()),
		SystemAct:  f["system_act"].GetStringValue(),
	}
}
