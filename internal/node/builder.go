package node

import (
	"github.com/MrWong99/voicetrie/pkg/command"
	"github.com/MrWong99/voicetrie/pkg/token"
)

// capture is one link of a persistent list of captured parameters. Links are
// never modified once created, so a Builder can be extended without
// affecting earlier copies.
type capture struct {
	name string
	tok  token.Token
	prev *capture
}

// Builder accumulates captured parameters during a traversal. It is a value
// type: every method returns a new Builder and leaves the receiver
// untouched, which is what makes backtracking free.
type Builder struct {
	captures   *capture
	successful bool
	commandID  string
}

// With returns a copy of b with name bound to tok. A later binding of the
// same name shadows an earlier one.
func (b Builder) With(name string, tok token.Token) Builder {
	b.captures = &capture{name: name, tok: tok, prev: b.captures}
	return b
}

// Succeed returns a copy of b marked successful for commandID.
func (b Builder) Succeed(commandID string) Builder {
	b.successful = true
	b.commandID = commandID
	return b
}

// Successful reports whether a command has been matched.
func (b Builder) Successful() bool { return b.successful }

// Lookup returns the most recent binding of name.
func (b Builder) Lookup(name string) (token.Token, bool) {
	for c := b.captures; c != nil; c = c.prev {
		if c.name == name {
			return c.tok, true
		}
	}
	return nil, false
}

// Build converts b into a parsed command. ok is false unless b has been
// marked successful.
func (b Builder) Build() (command.Parsed, bool) {
	if !b.successful {
		return command.Parsed{}, false
	}
	params := make(map[string]token.Token)
	for c := b.captures; c != nil; c = c.prev {
		if _, shadowed := params[c.name]; !shadowed {
			params[c.name] = c.tok
		}
	}
	return command.Parsed{CommandID: b.commandID, Parameters: params}, true
}
