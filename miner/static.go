package miner

import (
	"context"

	"github.com/xh3b4sd/tracer"
)

// Static is a Miner that returns a canned result. It backs tests and fixed
// demo models where running the external engine is not wanted.
type Static struct {
	Result *Result
	Err    error
}

// Mine implements Miner.
func (s *Static) Mine(ctx context.Context, batch [][]int, labels []int, opts Options) (*Result, error) {
	if s.Err != nil {
		return nil, tracer.Mask(s.Err)
	}
	return s.Result, nil
}
