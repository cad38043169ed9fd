package orderbook

import "errors"

var (
	errDuplicateOrder = errors.New("duplicate exchange id")
	errOrderNotFound  = errors.New("order not found")
	errOrderFinished  = errors.New("order already finished")
	errWrongSide      = errors.New("order side does not match book side")
)
