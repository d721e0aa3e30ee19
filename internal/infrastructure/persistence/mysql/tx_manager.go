package mysql

import (
	"context"
	"sync"

	"gorm.io/gorm"
)

// txKey context key of the running transaction
type txKey struct{}

// txState transaction carried by the context
type txState struct {
	db *gorm.DB

	mu          sync.Mutex
	afterCommit []func(ctx context.Context)
}

// TxManager transaction manager
//
// Design notes:
//  1. wraps GORM's Transaction
//  2. the transaction DB travels in the context (no globals)
//  3. a Transaction call inside a running transaction joins it: the outer
//     caller decides commit or rollback, so an order and its deductions are
//     one unit
//  4. AfterCommit defers side effects (cache invalidation, events) until the
//     outermost transaction has committed; they are dropped on rollback
type TxManager struct {
	db *gorm.DB
}

// NewTxManager creates the transaction manager
func NewTxManager(db *gorm.DB) *TxManager {
	return &TxManager{db: db}
}

// Transaction runs fn in a transaction
//
// fn returning an error rolls back, nil commits. Every repository call made
// with the ctx passed to fn uses the same transaction.
//
//	err := txManager.Transaction(ctx, func(ctx context.Context) error {
//	    if err := orderRepo.Create(ctx, o); err != nil {
//	        return err // rollback
//	    }
//	    _, err := inventoryService.Allocate(ctx, line, o.OrderNo)
//	    return err
//	})
func (m *TxManager) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*txState); ok {
		return fn(ctx)
	}

	state := &txState{}
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		state.db = tx
		return fn(context.WithValue(ctx, txKey{}, state))
	})
	if err != nil {
		return err
	}

	for _, hook := range state.afterCommit {
		hook(ctx)
	}
	return nil
}

// AfterCommit runs fn once the transaction in ctx commits, or right away when
// ctx carries no transaction. fn receives a context without the transaction.
func (m *TxManager) AfterCommit(ctx context.Context, fn func(ctx context.Context)) {
	state, ok := ctx.Value(txKey{}).(*txState)
	if !ok {
		fn(ctx)
		return
	}
	state.mu.Lock()
	defer state.mu.Unlock()
	state.afterCommit = append(state.afterCommit, fn)
}

// InTransaction reports whether ctx carries a transaction
func InTransaction(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*txState)
	return ok
}

// dbFromContext returns the transaction DB carried by ctx, or db bound to ctx.
// Every repository query goes through it; using the base DB inside a
// transaction would take a second connection and bypass the transaction.
func dbFromContext(ctx context.Context, db *gorm.DB) *gorm.DB {
	if state, ok := ctx.Value(txKey{}).(*txState); ok {
		return state.db
	}
	return db.WithContext(ctx)
}
