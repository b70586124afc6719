package tool

import "errors"

var (
	ErrDuplicateTool     = errors.New("duplicate tool")
	ErrUnknownTool       = errors.New("unknown tool")
	ErrRegistryFrozen    = errors.New("registry is frozen")
	ErrInvalidDescriptor = errors.New("invalid tool descriptor")
)

// DuplicateToolError is returned when a name is registered twice.
type DuplicateToolError struct {
	Name string
}

func (e *DuplicateToolError) Error() string { return "duplicate tool: " + e.Name }

// Is matches ErrDuplicateTool.
func (e *DuplicateToolError) Is(target error) bool { return target == ErrDuplicateTool }

// UnknownToolError is returned when a name is not registered.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string { return "unknown tool: " + e.Name }

// Is matches ErrUnknownTool.
func (e *UnknownToolError) Is(target error) bool { return target == ErrUnknownTool }
