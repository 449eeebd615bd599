package service

import "errors"

var (
	ErrNotFound                         = errors.New("not found")
	ErrForbidden                        = errors.New("forbidden")
	ErrInvalidInput                     = errors.New("invalid input")
	ErrInvalidAmount                    = errors.New("amount must be a positive number")
	ErrInsufficientFundsOrPriceMismatch = errors.New("insufficient funds or amount does not match job price")
	ErrDepositExceedsCap                = errors.New("deposit exceeds allowed share of unpaid jobs")
)
