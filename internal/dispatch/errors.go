package dispatch

import "errors"

var errEmptyReply = errors.New("engine returned an empty reply")
