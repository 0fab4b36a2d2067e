package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound 记录不存在
	ErrNotFound = errors.New("storage: record not found")

	// ErrTransactionClosed 交易已结束，停止字段不可再次写入
	ErrTransactionClosed = errors.New("storage: transaction already closed")

	// ErrConnectorOccupied 连接器上已有未结束的交易
	ErrConnectorOccupied = errors.New("storage: connector already has an open transaction")
)

// StoreError 存储层基础设施错误
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// WrapError 将底层错误包装为 StoreError，领域哨兵错误原样返回
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrTransactionClosed) || errors.Is(err, ErrConnectorOccupied) {
		return err
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// IsStoreError 判断是否为存储层基础设施错误
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}
