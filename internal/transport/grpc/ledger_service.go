package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
)

const ServiceName = "roombook.ledger.v1.BookingLedger"

const (
	listBookingsMethod  = "/" + ServiceName + "/ListBookings"
	createBookingMethod = "/" + ServiceName + "/CreateBooking"
	deleteBookingMethod = "/" + ServiceName + "/DeleteBooking"
)

type Booking struct {
	ID         int64     `json:"id"`
	Department string    `json:"department"`
	Name       string    `json:"name"`
	Date       string    `json:"date"`
	StartTime  string    `json:"start_time"`
	EndTime    string    `json:"end_time"`
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"created_at"`
}

type ListBookingsRequest struct{}

type ListBookingsResponse struct {
	Bookings []Booking `json:"bookings"`
}

type CreateBookingRequest struct {
	Department string `json:"department"`
	Name       string `json:"name"`
	Date       string `json:"date"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	Reason     string `json:"reason"`
}

type CreateBookingResponse struct {
	Booking Booking `json:"booking"`
}

// DeleteBookingRequest carries only the id; the credential travels in metadata.
type DeleteBookingRequest struct {
	ID int64 `json:"id"`
}

type DeleteBookingResponse struct {
	Booking Booking `json:"booking"`
}

type BookingLedgerServer interface {
	ListBookings(ctx context.Context, req *ListBookingsRequest) (*ListBookingsResponse, error)
	CreateBooking(ctx context.Context, req *CreateBookingRequest) (*CreateBookingResponse, error)
	DeleteBooking(ctx context.Context, req *DeleteBookingRequest) (*DeleteBookingResponse, error)
}

var BookingLedgerServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BookingLedgerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListBookings", Handler: listBookingsHandler},
		{MethodName: "CreateBooking", Handler: createBookingHandler},
		{MethodName: "DeleteBooking", Handler: deleteBookingHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func RegisterBookingLedgerServer(s grpc.ServiceRegistrar, srv BookingLedgerServer) {
	s.RegisterService(&BookingLedgerServiceDesc, srv)
}

func listBookingsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ListBookingsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BookingLedgerServer).ListBookings(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: listBookingsMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BookingLedgerServer).ListBookings(ctx, req.(*ListBookingsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func createBookingHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CreateBookingRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BookingLedgerServer).CreateBooking(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: createBookingMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BookingLedgerServer).CreateBooking(ctx, req.(*CreateBookingRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func deleteBookingHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(DeleteBookingRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(BookingLedgerServer).DeleteBooking(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: deleteBookingMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(BookingLedgerServer).DeleteBooking(ctx, req.(*DeleteBookingRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// Client calls BookingLedger over the json codec.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) ListBookings(ctx context.Context, in *ListBookingsRequest, opts ...grpc.CallOption) (*ListBookingsResponse, error) {
	out := new(ListBookingsResponse)
	if err := c.cc.Invoke(ctx, listBookingsMethod, in, out, callOptions(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) CreateBooking(ctx context.Context, in *CreateBookingRequest, opts ...grpc.CallOption) (*CreateBookingResponse, error) {
	out := new(CreateBookingResponse)
	if err := c.cc.Invoke(ctx, createBookingMethod, in, out, callOptions(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) DeleteBooking(ctx context.Context, in *DeleteBookingRequest, opts ...grpc.CallOption) (*DeleteBookingResponse, error) {
	out := new(DeleteBookingResponse)
	if err := c.cc.Invoke(ctx, deleteBookingMethod, in, out, callOptions(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func callOptions(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
}
