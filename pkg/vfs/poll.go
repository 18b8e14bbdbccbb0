package vfs

import (
	"context"

	"github.com/stealthrocket/wasivfs/internal/platform"
	"github.com/stealthrocket/wasivfs/pkg/vfs/fserr"
	"github.com/stealthrocket/wasivfs/pkg/vfs/op"
)

// poll waits for descriptors to become ready for reading or writing, or for
// the earliest clock subscription to expire.
//
// Descriptors are not locked while waiting, so poll never blocks operations
// on the descriptors it watches. Subscriptions on invalid descriptors are
// reported immediately with an error.
func (e *Engine) poll(ctx context.Context, in op.PollInput) ([]op.Event, error) {
	if len(in.Subscriptions) == 0 {
		return nil, fserr.New("poll", "", fserr.InvalidArgument, nil)
	}

	var events []op.Event
	var reqs []platform.PollRequest
	var subs []op.Subscription
	timeout := in.Timeout
	hasClock := false

	for _, sub := range in.Subscriptions {
		switch sub.Type {
		case op.ClockEvent:
			d := max(sub.Timeout, 0)
			if !hasClock || d < timeout {
				timeout = d
			}
			hasClock = true
		case op.FdReadEvent, op.FdWriteEvent:
			h, err := e.borrow(sub.Fd)
			if err != nil {
				events = append(events, op.Event{UserData: sub.UserData, Type: sub.Type, Error: err})
				continue
			}
			reqs = append(reqs, platform.PollRequest{Handle: h, Write: sub.Type == op.FdWriteEvent})
			subs = append(subs, sub)
		default:
			return nil, fserr.New("poll", "", fserr.InvalidArgument, nil)
		}
	}
	if len(events) > 0 {
		return events, nil
	}
	if timeout < 0 {
		timeout = -1
	}

	n, err := e.fsys.Poll(ctx, reqs, timeout)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		for i, req := range reqs {
			if req.Ready {
				events = append(events, op.Event{UserData: subs[i].UserData, Type: subs[i].Type, Error: req.Error})
			}
		}
		return events, nil
	}

	if hasClock {
		for _, sub := range in.Subscriptions {
			if sub.Type == op.ClockEvent && max(sub.Timeout, 0) <= timeout {
				events = append(events, op.Event{UserData: sub.UserData, Type: op.ClockEvent})
			}
		}
	}
	return events, nil
}

func (e *Engine) borrow(fd op.Fd) (platform.Handle, error) {
	res, err := e.table.Get(fd)
	if err != nil {
		return nil, fserr.New("poll", "", fserr.BadFileDescriptor, err)
	}
	h, err := res.Borrow()
	if err != nil {
		return nil, fserr.New("poll", "", fserr.BadFileDescriptor, err)
	}
	return h, nil
}
