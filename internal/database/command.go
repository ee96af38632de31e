package database

import (
	"strings"
)

// CommandKind selects how the provider frames the command text.
type CommandKind int

const (
	// CommandText runs the text as a SQL statement.
	CommandText CommandKind = iota

	// CommandStoredProcedure treats the text as a procedure or function name.
	CommandStoredProcedure
)

func (k CommandKind) String() string {
	if k == CommandStoredProcedure {
		return "stored_procedure"
	}
	return "text"
}

// CommandBehavior is a set of read-behavior hints.
type CommandBehavior uint

// BehaviorDefault leaves every read behavior to the provider.
const BehaviorDefault CommandBehavior = 0

const (
	BehaviorSingleResult CommandBehavior = 1 << iota
	BehaviorSchemaOnly
	BehaviorKeyInfo
	BehaviorSingleRow
	BehaviorSequentialAccess
	BehaviorCloseConnection
)

// Has reports whether all flags in f are set.
func (b CommandBehavior) Has(f CommandBehavior) bool {
	return b&f == f
}

// Command is an immutable command descriptor: text, kind, behavior and the
// normalized parameter list. Build a new one per execution.
type Command struct {
	text     string
	kind     CommandKind
	behavior CommandBehavior
	params   []Parameter
}

// CommandOption customizes a Command at construction.
type CommandOption func(*Command)

// WithKind sets the command kind.
func WithKind(k CommandKind) CommandOption {
	return func(c *Command) { c.kind = k }
}

// WithBehavior sets the behavior flags.
func WithBehavior(b CommandBehavior) CommandOption {
	return func(c *Command) { c.behavior = b }
}

// NewCommand builds a descriptor from already normalized parameters.
// Parameter names are not checked for uniqueness here; binding does that.
func NewCommand(text string, params []Parameter, opts ...CommandOption) (*Command, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errInvalidCommand("command text is empty")
	}
	c := &Command{
		text:   text,
		params: append(make([]Parameter, 0, len(params)), params...),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BuildCommand normalizes args with ms and builds the descriptor.
func BuildCommand(ms *MappingSchema, text string, args Args, opts ...CommandOption) (*Command, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errInvalidCommand("command text is empty")
	}
	params, err := Normalize(ms, args)
	if err != nil {
		return nil, err
	}
	return NewCommand(text, params, opts...)
}

func (c *Command) Text() string              { return c.text }
func (c *Command) Kind() CommandKind         { return c.kind }
func (c *Command) Behavior() CommandBehavior { return c.behavior }

// Params returns a copy of the parameter list.
func (c *Command) Params() []Parameter {
	return append(make([]Parameter, 0, len(c.params)), c.params...)
}
