// Package grpcserver serves the book store over gRPC. Messages are
// google.protobuf.Struct values so no generated code is needed:
//
//	tvitch.BookService/GetBook       {ticker, job} -> book
//	tvitch.BookService/ListBooks     {ticker}      -> {books: [...]}
//	tvitch.BookService/ListTickers   {}            -> {tickers: [...]}
//	tvitch.BookService/ListStatuses  {}            -> {statuses: [...]}
package grpcserver

import (
	"context"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"tvitch/api/view"
	"tvitch/infra/store"
)

const serviceName = "tvitch.BookService"

// BookService is the server side of tvitch.BookService.
type BookService interface {
	GetBook(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListBooks(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListTickers(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListStatuses(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

// Server adapts the book store to gRPC.
type Server struct {
	store  view.Store
	logger *zap.Logger
}

func NewServer(s view.Store, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{store: s, logger: logger}
}

// Register adds the service to g.
func (s *Server) Register(g *grpc.Server) {
	g.RegisterService(&ServiceDesc, s)
}

// -------------------- Queries --------------------

func (s *Server) GetBook(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ticker, job := field(req, "ticker"), field(req, "job")
	if ticker == "" || job == "" {
		return nil, status.Error(codes.InvalidArgument, "ticker and job are required")
	}
	b, err := s.store.Book(ticker, job)
	if err != nil {
		return nil, s.fail("GetBook", err)
	}
	return toStruct(view.FromBook(job, b))
}

func (s *Server) ListBooks(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ticker := field(req, "ticker")
	if ticker == "" {
		return nil, status.Error(codes.InvalidArgument, "ticker is required")
	}
	es, err := s.store.Books(ticker)
	if err != nil {
		return nil, s.fail("ListBooks", err)
	}
	return toStruct(map[string]interface{}{"books": view.FromEntries(es)})
}

func (s *Server) ListTickers(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	ts, err := s.store.Tickers()
	if err != nil {
		return nil, s.fail("ListTickers", err)
	}
	return toStruct(map[string]interface{}{"tickers": ts})
}

func (s *Server) ListStatuses(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	st, err := s.store.Statuses()
	if err != nil {
		return nil, s.fail("ListStatuses", err)
	}
	return toStruct(map[string]interface{}{"statuses": st})
}

// -------------------- Helpers --------------------

func (s *Server) fail(method string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return status.Error(codes.NotFound, err.Error())
	}
	s.logger.Error("grpc: query failed", zap.String("method", method), zap.Error(err))
	return status.Error(codes.Internal, err.Error())
}

func field(s *structpb.Struct, name string) string {
	if s == nil {
		return ""
	}
	return s.GetFields()[name].GetStringValue()
}

// toStruct converts v through its JSON form.
func toStruct(v interface{}) (*structpb.Struct, error) {
	b, err := jsoniter.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	var m map[string]interface{}
	if err := jsoniter.Unmarshal(b, &m); err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return out, nil
}
