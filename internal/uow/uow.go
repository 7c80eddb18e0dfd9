package uow

import (
	"context"

	"github.com/kirinyoku/tix-reserve/internal/repository"
)

// AfterCommit is a function that runs after a successful transaction commit.
type AfterCommit func(ctx context.Context)

// Work is the body of a unit of work. Hooks registered through after run
// only if the transaction commits.
type Work func(ctx context.Context, tx repository.Tx, after func(AfterCommit)) error

// UoW represents a unit of work.
type UoW struct {
	runner repository.TxRunner
}

func NewUoW(runner repository.TxRunner) *UoW {
	return &UoW{runner: runner}
}

// Do runs fn inside the transaction. After a successful commit,
// it executes all after-commit hooks.
func (u *UoW) Do(ctx context.Context, fn Work) error {
	var hooks []AfterCommit

	err := u.runner.RunTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		hooks = hooks[:0]
		return fn(ctx, tx, func(h AfterCommit) {
			hooks = append(hooks, h)
		})
	})
	if err != nil {
		return err
	}

	for _, h := range hooks {
		h(ctx)
	}

	return nil
}
