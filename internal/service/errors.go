package service

import "errors"

var (
	ErrEmptyCart          = errors.New("cart is empty, nothing to checkout")
	ErrIllegalTransition  = errors.New("illegal order status transition")
	ErrForbidden          = errors.New("not allowed to access this resource")
	ErrCheckoutInProgress = errors.New("checkout with this idempotency key is still in progress")
	ErrCheckoutFailed     = errors.New("checkout with this idempotency key failed")
	ErrUnknownOrderStatus = errors.New("unknown order status")
)
