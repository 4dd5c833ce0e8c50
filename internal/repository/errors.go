package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrSerializationConflict 可串行化事务因并发写入被数据库中止
var ErrSerializationConflict = errors.New("并发事务冲突")

// mapTxError 把 PostgreSQL 的串行化失败/死锁统一映射为 ErrSerializationConflict
func mapTxError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01": // serialization_failure, deadlock_detected
			return ErrSerializationConflict
		}
	}
	return err
}
