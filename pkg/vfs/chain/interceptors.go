package chain

import (
	"context"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"

	"github.com/stealthrocket/wasivfs/pkg/vfs/fserr"
	"github.com/stealthrocket/wasivfs/pkg/vfs/op"
)

// GlobalLock serializes the execution of all operations except poll, which
// may block for an unbounded amount of time.
func GlobalLock() Interceptor {
	var mutex sync.Mutex
	return Except(func(ctx context.Context, call Call, next Next) (any, error) {
		mutex.Lock()
		defer mutex.Unlock()
		return next(ctx, call.Input)
	}, op.Poll)
}

// Logging logs every operation at the debug level, with its duration and the
// kind of error it returned.
func Logging(logger *zap.Logger) Interceptor {
	return func(ctx context.Context, call Call, next Next) (any, error) {
		start := time.Now()
		out, err := next(ctx, call.Input)
		if ce := logger.Check(zapcore.DebugLevel, call.Op.Name()); ce != nil {
			fields := []zap.Field{zap.Duration("duration", time.Since(start))}
			if err != nil {
				fields = append(fields, zap.Stringer("kind", fserr.KindOf(err)), zap.Error(err))
			}
			ce.Write(fields...)
		}
		return out, err
	}
}

type callIDKey struct{}

// CallID returns the identifier assigned to the call by the Trace
// interceptor.
func CallID(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(callIDKey{}).(uuid.UUID)
	return id, ok
}

var dumper = spew.ConfigState{
	Indent:                  "  ",
	MaxDepth:                4,
	DisableMethods:          true,
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	SortKeys:                true,
}

// Trace assigns an identifier to each call and logs dumps of the inputs and
// outputs at the debug level. The identifier is available to inner links
// with CallID.
func Trace(logger *zap.Logger) Interceptor {
	return func(ctx context.Context, call Call, next Next) (any, error) {
		if !logger.Core().Enabled(zapcore.DebugLevel) {
			return next(ctx, call.Input)
		}
		id := uuid.New()
		log := logger.With(zap.Stringer("call", id), zap.String("op", call.Op.Name()))
		log.Debug("call", zap.String("input", dumper.Sdump(call.Input)))

		out, err := next(context.WithValue(ctx, callIDKey{}, id), call.Input)
		if err != nil {
			log.Debug("error", zap.Error(err))
		} else {
			log.Debug("return", zap.String("output", dumper.Sdump(out)))
		}
		return out, err
	}
}

// RateLimit waits for the limiter before executing operations, except poll.
// The limiter burst must be at least one. Calls fail with Interrupted when
// the context is canceled while waiting.
func RateLimit(limiter *rate.Limiter) Interceptor {
	return Except(func(ctx context.Context, call Call, next Next) (any, error) {
		if err := limiter.Wait(ctx); err != nil {
			return nil, fserr.New(call.Op.Name(), "", fserr.Interrupted, err)
		}
		return next(ctx, call.Input)
	}, op.Poll)
}
