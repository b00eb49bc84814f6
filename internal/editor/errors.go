package editor

import "errors"

var (
	ErrSessionBusy    = errors.New("drag session already active")
	ErrInvalidSource  = errors.New("invalid drag source")
	ErrNodeNotFound   = errors.New("node not found")
	ErrStageNotFound  = errors.New("stage not found")
	ErrAnchorNotFound = errors.New("anchor node not found")
	ErrContainerBusy  = errors.New("container has an operation in flight")
	ErrUnknownAction  = errors.New("unknown action")
	ErrTxState        = errors.New("transaction in wrong state")
)
