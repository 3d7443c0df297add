package factpb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FileActivity_ServiceName is the fully-qualified RPC service name, as it
// would appear in fact.proto's package + service declaration.
const FileActivity_ServiceName = "factpb.FileActivity"

// FileActivityClient is the client API for FileActivity, matching the
// shape protoc-gen-go-grpc would produce for a single bidirectional-
// streaming RPC.
type FileActivityClient interface {
	StreamEvents(ctx context.Context, opts ...grpc.CallOption) (FileActivity_StreamEventsClient, error)
}

type fileActivityClient struct {
	cc grpc.ClientConnInterface
}

// NewFileActivityClient wraps an established connection. Every call is
// pinned to this package's codec via grpc.CallContentSubtype, since these
// message types implement Marshal/Unmarshal directly rather than full
// protobuf reflection.
func NewFileActivityClient(cc grpc.ClientConnInterface) FileActivityClient {
	return &fileActivityClient{cc: cc}
}

func (c *fileActivityClient) StreamEvents(ctx context.Context, opts ...grpc.CallOption) (FileActivity_StreamEventsClient, error) {
	opts = append(opts, grpc.CallContentSubtype(codecName))
	stream, err := c.cc.NewStream(ctx, &_FileActivity_serviceDesc.Streams[0], "/"+FileActivity_ServiceName+"/StreamEvents", opts...)
	if err != nil {
		return nil, err
	}
	return &fileActivityStreamEventsClient{stream}, nil
}

// FileActivity_StreamEventsClient is the streaming handle the agent's
// delivery sink holds for the lifetime of one transport session.
type FileActivity_StreamEventsClient interface {
	Send(*FileEvent) error
	Recv() (*Ack, error)
	grpc.ClientStream
}

type fileActivityStreamEventsClient struct {
	grpc.ClientStream
}

func (s *fileActivityStreamEventsClient) Send(e *FileEvent) error {
	return s.ClientStream.SendMsg(e)
}

func (s *fileActivityStreamEventsClient) Recv() (*Ack, error) {
	ack := new(Ack)
	if err := s.ClientStream.RecvMsg(ack); err != nil {
		return nil, err
	}
	return ack, nil
}

// FileActivityServer is the server API for FileActivity. This repository
// does not implement one (the agent is only ever the client of an
// external consumer), but the interface is specified here in full so a
// consumer-side implementation, or this package's tests, has a real type
// to target.
type FileActivityServer interface {
	StreamEvents(FileActivity_StreamEventsServer) error
}

// UnimplementedFileActivityServer embeds into a partial server
// implementation to satisfy the interface for RPCs it does not handle,
// matching protoc-gen-go-grpc's forward-compatibility convention.
type UnimplementedFileActivityServer struct{}

func (UnimplementedFileActivityServer) StreamEvents(FileActivity_StreamEventsServer) error {
	return status.Errorf(codes.Unimplemented, "method StreamEvents not implemented")
}

// FileActivity_StreamEventsServer is the streaming handle passed to a
// server implementation's StreamEvents method.
type FileActivity_StreamEventsServer interface {
	Send(*Ack) error
	Recv() (*FileEvent, error)
	grpc.ServerStream
}

type fileActivityStreamEventsServer struct {
	grpc.ServerStream
}

func (s *fileActivityStreamEventsServer) Send(a *Ack) error {
	return s.ServerStream.SendMsg(a)
}

func (s *fileActivityStreamEventsServer) Recv() (*FileEvent, error) {
	ev := new(FileEvent)
	if err := s.ServerStream.RecvMsg(ev); err != nil {
		return nil, err
	}
	return ev, nil
}

func _FileActivity_StreamEvents_Handler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(FileActivityServer).StreamEvents(&fileActivityStreamEventsServer{stream})
}

// RegisterFileActivityServer registers srv on s, the way protoc-gen-go-grpc's
// generated registration function would.
func RegisterFileActivityServer(s grpc.ServiceRegistrar, srv FileActivityServer) {
	s.RegisterService(&_FileActivity_serviceDesc, srv)
}

var _FileActivity_serviceDesc = grpc.ServiceDesc{
	ServiceName: FileActivity_ServiceName,
	HandlerType: (*FileActivityServer)(nil),
	Methods:     []grpc.MethodDesc{},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "StreamEvents",
			Handler:       _FileActivity_StreamEvents_Handler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "fact.proto",
}
