package exchange

import "errors"

var errEngineStopped = errors.New("engine stopped")
