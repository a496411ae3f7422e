package pipeline

import (
	"context"
	"net/http"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/StricklySoft/stricklysoft-gatekeeper/pkg/response"
)

// UnaryServerInterceptor returns a gRPC unary server interceptor that runs
// the pipeline against the incoming metadata. Response signals are sent as
// header metadata; a rejection becomes a status error whose code follows
// [CodeForStatus].
func (p *Pipeline) UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		ctx, err := p.runGRPC(ctx, func(md metadata.MD) error {
			return grpc.SetHeader(ctx, md)
		})
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamServerInterceptor returns a gRPC stream server interceptor that
// performs the same checks as [Pipeline.UnaryServerInterceptor] and wraps
// the stream to carry the enriched context.
func (p *Pipeline) StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		ctx, err := p.runGRPC(ss.Context(), ss.SetHeader)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: ctx})
	}
}

func (p *Pipeline) runGRPC(ctx context.Context, setHeader func(metadata.MD) error) (context.Context, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	req := &Request{Headers: metadataHeaders(md), Address: p.grpcAddress(ctx, md)}
	sink := response.NewRecorder()

	next, v := p.Run(ctx, req, sink)

	if out := signalMetadata(sink); out.Len() > 0 {
		if err := setHeader(out); err != nil {
			p.logger.DebugContext(ctx, "pipeline: failed to send header metadata", "error", err)
		}
	}
	if !v.Allowed {
		return ctx, status.Error(CodeForStatus(v.Status), rejectionMessage(v))
	}
	return next, nil
}

func (p *Pipeline) grpcAddress(ctx context.Context, md metadata.MD) string {
	if p.trustForwardedFor {
		if vals := md.Get(headerForwardedFor); len(vals) > 0 {
			if hop := firstHop(vals[0]); hop != "" {
				return hop
			}
		}
	}
	if pr, ok := peer.FromContext(ctx); ok && pr.Addr != nil {
		return hostOnly(pr.Addr.String())
	}
	return ""
}

// CodeForStatus maps a rejection's HTTP status to the gRPC code a client
// should see.
func CodeForStatus(httpStatus int) codes.Code {
	switch httpStatus {
	case http.StatusBadRequest:
		return codes.InvalidArgument
	case http.StatusUnauthorized:
		return codes.Unauthenticated
	case http.StatusTooManyRequests:
		return codes.ResourceExhausted
	case http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

// metadataHeaders adapts gRPC metadata to auth.HeaderSource.
type metadataHeaders metadata.MD

func (m metadataHeaders) Get(name string) string {
	vals := metadata.MD(m).Get(name)
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

func signalMetadata(r *response.Recorder) metadata.MD {
	headers := r.Headers()
	md := make(metadata.MD, len(headers))
	for k, v := range headers {
		md.Set(strings.ToLower(k), v)
	}
	return md
}

// wrappedServerStream overrides Context to return the pipeline's context.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
