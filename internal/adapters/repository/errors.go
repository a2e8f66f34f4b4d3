package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrConnect = errors.New("connect database")
	ErrBegin   = errors.New("begin transaction")
	ErrInsert  = errors.New("insert guest")
	ErrCommit  = errors.New("commit transaction")
	ErrQuery   = errors.New("query guests")
	ErrMigrate = errors.New("migrate database")
)
