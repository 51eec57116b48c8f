package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"connectrpc.com/connect"
)

// ErrPanicRecovered indicates an RPC handler panicked and was recovered.
var ErrPanicRecovered = errors.New("panic recovered in rpc handler")

// stackTraceSize bounds the stack captured for a recovered panic.
const stackTraceSize = 4096

// LoggingInterceptorOption installs LoggingInterceptor on a handler.
func LoggingInterceptorOption(logger *slog.Logger) connect.HandlerOption {
	return connect.WithInterceptors(LoggingInterceptor(logger))
}

// RecoveryInterceptorOption installs RecoveryInterceptor on a handler.
func RecoveryInterceptorOption(logger *slog.Logger) connect.HandlerOption {
	return connect.WithInterceptors(RecoveryInterceptor(logger))
}

// -------------------------------------------------------------------------
// Logging
// -------------------------------------------------------------------------

// LoggingInterceptor returns a ConnectRPC interceptor that logs every RPC
// with the procedure name, duration and error code. Server streams are
// logged once, when the stream ends.
//
// Log level is Info for successful calls and Warn for calls that return errors.
func LoggingInterceptor(logger *slog.Logger) connect.Interceptor {
	return &loggingInterceptor{logger: logger}
}

type loggingInterceptor struct {
	logger *slog.Logger
}

func (li *loggingInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		li.log(ctx, req.Spec().Procedure, time.Since(start), err)
		return resp, err
	}
}

func (li *loggingInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (li *loggingInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		start := time.Now()
		err := next(ctx, conn)
		li.log(ctx, conn.Spec().Procedure, time.Since(start), err)
		return err
	}
}

func (li *loggingInterceptor) log(ctx context.Context, procedure string, d time.Duration, err error) {
	attrs := []slog.Attr{
		slog.String("procedure", procedure),
		slog.Duration("duration", d),
	}

	if err != nil {
		attrs = append(attrs,
			slog.String("code", connect.CodeOf(err).String()),
			slog.String("error", err.Error()),
		)
		li.logger.LogAttrs(ctx, slog.LevelWarn, "rpc completed with error", attrs...)
		return
	}
	li.logger.LogAttrs(ctx, slog.LevelInfo, "rpc completed", attrs...)
}

// -------------------------------------------------------------------------
// Recovery
// -------------------------------------------------------------------------

// RecoveryInterceptor returns a ConnectRPC interceptor that recovers from
// panics in RPC handlers. On panic, it logs the panic value and stack trace at
// Error level and returns a CodeInternal error to the client.
func RecoveryInterceptor(logger *slog.Logger) connect.Interceptor {
	return &recoveryInterceptor{logger: logger}
}

type recoveryInterceptor struct {
	logger *slog.Logger
}

func (ri *recoveryInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (resp connect.AnyResponse, retErr error) {
		defer func() {
			if r := recover(); r != nil {
				retErr = ri.recovered(ctx, req.Spec().Procedure, r)
			}
		}()

		return next(ctx, req)
	}
}

func (ri *recoveryInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (ri *recoveryInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				retErr = ri.recovered(ctx, conn.Spec().Procedure, r)
			}
		}()

		return next(ctx, conn)
	}
}

func (ri *recoveryInterceptor) recovered(ctx context.Context, procedure string, r any) error {
	buf := make([]byte, stackTraceSize)
	n := runtime.Stack(buf, false)

	ri.logger.ErrorContext(ctx, "panic recovered in rpc handler",
		slog.String("procedure", procedure),
		slog.Any("panic", r),
		slog.String("stack", string(buf[:n])),
	)

	return connect.NewError(connect.CodeInternal, fmt.Errorf("%s: %w", procedure, ErrPanicRecovered))
}
