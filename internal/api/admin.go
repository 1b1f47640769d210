package api

import (
	"context"
	"strings"

	"hostelpay/internal/models"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	paymentAdminService    = "hostelpay.admin.v1.PaymentAdmin"
	methodListPayments     = "/" + paymentAdminService + "/ListPayments"
	methodGetBooking       = "/" + paymentAdminService + "/GetBooking"
	methodSetPaymentStatus = "/" + paymentAdminService + "/SetPaymentStatus"
	methodVerifyPayment    = "/" + paymentAdminService + "/VerifyPayment"
)

type ListPaymentsRequest struct {
	Status    string `json:"status,omitempty"`
	BookingID string `json:"booking_id,omitempty"`
	Method    string `json:"method,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Offset    int    `json:"offset,omitempty"`
}

type ListPaymentsResponse struct {
	Payments []*models.LedgerEntry `json:"payments"`
}

type GetBookingRequest struct {
	BookingID string `json:"booking_id"`
}

type SetPaymentStatusRequest struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
}

type VerifyPaymentRequest struct {
	Reference string `json:"reference"`
}

// PaymentAdminServer is the back-office API served over gRPC.
type PaymentAdminServer interface {
	ListPayments(ctx context.Context, req *ListPaymentsRequest) (*ListPaymentsResponse, error)
	GetBooking(ctx context.Context, req *GetBookingRequest) (*models.Booking, error)
	SetPaymentStatus(ctx context.Context, req *SetPaymentStatusRequest) (*models.Booking, error)
	VerifyPayment(ctx context.Context, req *VerifyPaymentRequest) (*models.Verification, error)
}

type PaymentAdminService struct {
	payments Payments
}

func NewPaymentAdminService(payments Payments) *PaymentAdminService {
	return &PaymentAdminService{payments: payments}
}

func (s *PaymentAdminService) ListPayments(ctx context.Context, req *ListPaymentsRequest) (*ListPaymentsResponse, error) {
	if req.Limit < 0 || req.Offset < 0 {
		return nil, status.Error(codes.InvalidArgument, "limit and offset must not be negative")
	}

	entries, err := s.payments.ListPayments(ctx, models.PaymentFilter{
		Status:    models.AttemptStatus(strings.TrimSpace(req.Status)),
		BookingID: strings.TrimSpace(req.BookingID),
		Method:    strings.TrimSpace(req.Method),
		Limit:     req.Limit,
		Offset:    req.Offset,
	})
	if err != nil {
		return nil, grpcError(err)
	}
	if entries == nil {
		entries = []*models.LedgerEntry{}
	}
	return &ListPaymentsResponse{Payments: entries}, nil
}

func (s *PaymentAdminService) GetBooking(ctx context.Context, req *GetBookingRequest) (*models.Booking, error) {
	id := strings.TrimSpace(req.BookingID)
	if id == "" {
		return nil, status.Error(codes.InvalidArgument, "booking_id is required")
	}
	booking, err := s.payments.GetBooking(ctx, id)
	if err != nil {
		return nil, grpcError(err)
	}
	return booking, nil
}

func (s *PaymentAdminService) SetPaymentStatus(ctx context.Context, req *SetPaymentStatusRequest) (*models.Booking, error) {
	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		return nil, status.Error(codes.InvalidArgument, "reference is required")
	}
	st := strings.ToLower(strings.TrimSpace(req.Status))
	if st == "" {
		return nil, status.Error(codes.InvalidArgument, "status is required")
	}

	booking, err := s.payments.SetPaymentStatus(ctx, reference, st, changedBy(ctx))
	if err != nil {
		return nil, grpcError(err)
	}
	return booking, nil
}

func (s *PaymentAdminService) VerifyPayment(ctx context.Context, req *VerifyPaymentRequest) (*models.Verification, error) {
	reference := strings.TrimSpace(req.Reference)
	if reference == "" {
		return nil, status.Error(codes.InvalidArgument, "reference is required")
	}
	v, err := s.payments.VerifyPayment(ctx, reference)
	if err != nil {
		return nil, grpcError(err)
	}
	return v, nil
}

func RegisterPaymentAdminServer(s grpc.ServiceRegistrar, srv PaymentAdminServer) {
	s.RegisterService(&paymentAdminServiceDesc, srv)
}

var paymentAdminServiceDesc = grpc.ServiceDesc{
	ServiceName: paymentAdminService,
	HandlerType: (*PaymentAdminServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ListPayments", Handler: listPaymentsHandler},
		{MethodName: "GetBooking", Handler: getBookingHandler},
		{MethodName: "SetPaymentStatus", Handler: setPaymentStatusHandler},
		{MethodName: "VerifyPayment", Handler: verifyPaymentHandler},
	},
	Streams: []grpc.StreamDesc{},
}

// unaryHandler decodes a request of type Req and runs call through the
// server's interceptor chain.
func unaryHandler[Req any](
	fullMethod string,
	call func(PaymentAdminServer, context.Context, *Req) (any, error),
) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		server := srv.(PaymentAdminServer)
		if interceptor == nil {
			return call(server, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(server, ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var (
	listPaymentsHandler = unaryHandler(methodListPayments,
		func(s PaymentAdminServer, ctx context.Context, req *ListPaymentsRequest) (any, error) {
			return s.ListPayments(ctx, req)
		})
	getBookingHandler = unaryHandler(methodGetBooking,
		func(s PaymentAdminServer, ctx context.Context, req *GetBookingRequest) (any, error) {
			return s.GetBooking(ctx, req)
		})
	setPaymentStatusHandler = unaryHandler(methodSetPaymentStatus,
		func(s PaymentAdminServer, ctx context.Context, req *SetPaymentStatusRequest) (any, error) {
			return s.SetPaymentStatus(ctx, req)
		})
	verifyPaymentHandler = unaryHandler(methodVerifyPayment,
		func(s PaymentAdminServer, ctx context.Context, req *VerifyPaymentRequest) (any, error) {
			return s.VerifyPayment(ctx, req)
		})
)
