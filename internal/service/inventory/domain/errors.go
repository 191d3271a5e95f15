package domain

import (
	"errors"
	"fmt"

	"marketplace/internal/saga"
)

// 领域错误都包装了 saga 的错误分类，调用方既可以用 errors.Is 判断具体原因，也可以用 saga.KindOf 分类。
var (
	ErrInsufficientStock   = fmt.Errorf("stock level: %w", saga.ErrInsufficientStock)
	ErrConcurrencyConflict = fmt.Errorf("stock level: %w", saga.ErrConcurrencyConflict)
	ErrZeroDelta           = fmt.Errorf("stock level: zero delta on missing row: %w", saga.ErrValidation)
	ErrInvalidLedgerEntry  = fmt.Errorf("ledger entry: %w", saga.ErrValidation)
	ErrLedgerChainBroken   = errors.New("ledger chain broken")
	ErrLocationNotAllowed  = fmt.Errorf("location not allowed: %w", saga.ErrValidation)
)
