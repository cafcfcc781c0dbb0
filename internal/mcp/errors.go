package mcp

import "errors"

var errNoHistory = errors.New("chat history is not configured")
