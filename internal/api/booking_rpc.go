package api

import (
	"context"
	"encoding/json"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"slotbook/internal/models"
	"slotbook/internal/service"
)

const bookingServiceName = "slotbook.booking.v1.BookingService"

const (
	methodGetAvailability     = "/" + bookingServiceName + "/GetAvailability"
	methodCreateBooking       = "/" + bookingServiceName + "/CreateBooking"
	methodCancelBooking       = "/" + bookingServiceName + "/CancelBooking"
	methodUpdateBookingStatus = "/" + bookingServiceName + "/UpdateBookingStatus"
)

// BookingServiceServer is the gRPC surface of the booking service. Messages
// are google.protobuf.Struct objects with the same field names as the JSON
// API.
type BookingServiceServer interface {
	GetAvailability(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CreateBooking(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CancelBooking(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateBookingStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type rpcCall func(BookingServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

var bookingServiceDesc = grpc.ServiceDesc{
	ServiceName: bookingServiceName,
	HandlerType: (*BookingServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetAvailability", Handler: unaryHandler(methodGetAvailability, BookingServiceServer.GetAvailability)},
		{MethodName: "CreateBooking", Handler: unaryHandler(methodCreateBooking, BookingServiceServer.CreateBooking)},
		{MethodName: "CancelBooking", Handler: unaryHandler(methodCancelBooking, BookingServiceServer.CancelBooking)},
		{MethodName: "UpdateBookingStatus", Handler: unaryHandler(methodUpdateBookingStatus, BookingServiceServer.UpdateBookingStatus)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "slotbook/booking/v1/booking.proto",
}

func RegisterBookingServiceServer(s grpc.ServiceRegistrar, srv BookingServiceServer) {
	s.RegisterService(&bookingServiceDesc, srv)
}

func unaryHandler(fullMethod string, call rpcCall) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(BookingServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(BookingServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// BookingRPC adapts the booking service to BookingServiceServer.
type BookingRPC struct {
	deps Deps
}

func NewBookingRPC(deps Deps) *BookingRPC {
	return &BookingRPC{deps: deps}
}

func (s *BookingRPC) GetAvailability(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	serviceID := field(in, "service_id")
	date := field(in, "date")
	if serviceID == "" || date == "" {
		return nil, status.Error(codes.InvalidArgument, "service_id and date are required")
	}

	avail, err := s.deps.Bookings.Availability(ctx, serviceID, date)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(avail)
}

func (s *BookingRPC) CreateBooking(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	booking, err := s.deps.Bookings.CreateBooking(ctx, service.CreateBookingRequest{
		UserID:    field(in, "user_id"),
		ServiceID: field(in, "service_id"),
		Date:      field(in, "date"),
		TimeSlot:  field(in, "time_slot"),
		Notes:     field(in, "notes"),
	})
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(booking)
}

func (s *BookingRPC) CancelBooking(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	booking, err := s.deps.Bookings.CancelBooking(ctx, field(in, "booking_id"), field(in, "user_id"), field(in, "reason"))
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(booking)
}

func (s *BookingRPC) UpdateBookingStatus(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	companyID := field(in, "company_id")
	if companyID == "" {
		return nil, status.Error(codes.PermissionDenied, "company_id is required")
	}
	st := models.BookingStatus(strings.ToLower(field(in, "status")))

	booking, err := s.deps.Bookings.UpdateStatus(ctx, field(in, "booking_id"), companyID, st)
	if err != nil {
		return nil, grpcError(err)
	}
	return toStruct(booking)
}

func field(in *structpb.Struct, key string) string {
	return strings.TrimSpace(in.GetFields()[key].GetStringValue())
}

// toStruct goes through the JSON encoding so responses carry the same
// shape as the HTTP API.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, status.Errorf(codes.Internal, "encode response: %v", err)
	}
	return out, nil
}
