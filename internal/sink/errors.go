package sink

import "errors"

var errSinkClosed = errors.New("sink is closed")
