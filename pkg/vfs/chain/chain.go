// Package chain implements the interceptors wrapped around the execution of
// file system operations.
//
// An interceptor receives the operation and its input, and decides whether
// and how to call the next link of the chain. Interceptors may observe the
// call, alter the input, or short-circuit the call by returning without
// calling next.
package chain

import (
	"context"

	"github.com/stealthrocket/wasivfs/pkg/vfs/op"
)

// Call is an operation being executed.
type Call struct {
	Op    op.Tag
	Input any
}

// Next continues the execution of a call with the given input.
type Next func(ctx context.Context, input any) (any, error)

// Handler executes calls.
type Handler func(ctx context.Context, call Call) (any, error)

// Interceptor is a link of the chain.
type Interceptor func(ctx context.Context, call Call, next Next) (any, error)

// Chain is an ordered list of interceptors. The first interceptor is the
// outermost one: it sees the call first and the result last.
type Chain []Interceptor

// Then returns a handler passing calls through the chain before reaching h.
func (c Chain) Then(h Handler) Handler {
	for i := len(c) - 1; i >= 0; i-- {
		h = link(c[i], h)
	}
	return h
}

func link(interceptor Interceptor, next Handler) Handler {
	return func(ctx context.Context, call Call) (any, error) {
		return interceptor(ctx, call, func(ctx context.Context, input any) (any, error) {
			return next(ctx, Call{Op: call.Op, Input: input})
		})
	}
}

// Except returns an interceptor applying interceptor to every operation but
// the ones listed.
func Except(interceptor Interceptor, ops ...op.Tag) Interceptor {
	return func(ctx context.Context, call Call, next Next) (any, error) {
		for _, o := range ops {
			if call.Op == o {
				return next(ctx, call.Input)
			}
		}
		return interceptor(ctx, call, next)
	}
}
