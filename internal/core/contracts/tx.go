package contracts

import "context"

// TxManager scopes a function to one storage transaction. The transaction
// travels in the context; storage implementations pick it up transparently.
type TxManager interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}
