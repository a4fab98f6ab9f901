package sim

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/gridsim/internal/transport"
)

// RunLocal runs procs ranks as goroutines joined by an in-process network and
// returns the root's result. The first rank to fail cancels the others.
func RunLocal(ctx context.Context, cfg Config, procs int, opts ...Option) (*Result, error) {
	if procs < 1 {
		return nil, fmt.Errorf("%w: need at least one process, got %d", ErrInvalidConfig, procs)
	}
	net := transport.NewNetwork(procs)
	defer net.Close()

	workers := make([]*Worker, procs)
	for r := range workers {
		w, err := NewWorker(net.Comm(r), cfg, opts...)
		if err != nil {
			return nil, err
		}
		workers[r] = w
	}

	g, gctx := errgroup.WithContext(ctx)
	var res *Result
	for r, w := range workers {
		g.Go(func() error {
			out, err := w.Run(gctx)
			if r == transport.Root {
				res = out
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}

// RunComm runs a single rank over an existing endpoint, as a worker process
// does. Only rank 0 gets a Result.
func RunComm(ctx context.Context, c transport.Comm, cfg Config, opts ...Option) (*Result, error) {
	w, err := NewWorker(c, cfg, opts...)
	if err != nil {
		return nil, err
	}
	return w.Run(ctx)
}
