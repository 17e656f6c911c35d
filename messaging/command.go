package messaging

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/opd-ai/meshchat/limits"
)

// CommandCode is the first token of a control payload.
type CommandCode string

const (
	CmdAlive        CommandCode = "ALIVE"
	CmdPrivate      CommandCode = "PRIV"
	CmdNameChange   CommandCode = "NMCHG"
	CmdPublicKey    CommandCode = "PUB"
	CmdSymmetricKey CommandCode = "SYM"
	CmdKeyReceived  CommandCode = "KEYRECV"
	CmdPart         CommandCode = "PART"
)

// arity is the number of arguments each command requires.
var arity = map[CommandCode]int{
	CmdAlive:        1,
	CmdPrivate:      1,
	CmdNameChange:   2,
	CmdPublicKey:    1,
	CmdSymmetricKey: 1,
	CmdKeyReceived:  0,
	CmdPart:         1,
}

var (
	// ErrEmptyCommand indicates a control payload with no tokens.
	ErrEmptyCommand = errors.New("empty command")

	// ErrUnknownCommand indicates an unrecognized command code.
	ErrUnknownCommand = errors.New("unknown command")

	// ErrMissingArgument indicates a command with too few arguments.
	ErrMissingArgument = errors.New("missing command argument")

	// ErrInvalidName indicates a name that cannot travel as a single token.
	ErrInvalidName = errors.New("invalid name")
)

// Command is a parsed control payload: a code followed by whitespace
// separated arguments.
type Command struct {
	Code CommandCode
	Args []string
}

// ParseCommand parses a decrypted control payload. Extra arguments are ignored.
func ParseCommand(payload []byte) (Command, error) {
	fields := strings.Fields(string(payload))
	if len(fields) == 0 {
		return Command{}, ErrEmptyCommand
	}

	code := CommandCode(fields[0])
	want, ok := arity[code]
	if !ok {
		return Command{}, fmt.Errorf("%w: %q", ErrUnknownCommand, fields[0])
	}
	if len(fields)-1 < want {
		return Command{}, fmt.Errorf("%w: %s needs %d, got %d", ErrMissingArgument, code, want, len(fields)-1)
	}

	return Command{Code: code, Args: fields[1 : 1+want]}, nil
}

// Arg returns argument i, or "" when absent.
func (c Command) Arg(i int) string {
	if i < 0 || i >= len(c.Args) {
		return ""
	}
	return c.Args[i]
}

// String formats the command as it travels on the wire.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return string(c.Code)
	}
	return string(c.Code) + " " + strings.Join(c.Args, " ")
}

// Bytes returns the wire payload.
func (c Command) Bytes() []byte {
	return []byte(c.String())
}

// DecodeKey decodes the base64 key material carried by PUB and SYM.
func (c Command) DecodeKey() ([]byte, error) {
	if c.Code != CmdPublicKey && c.Code != CmdSymmetricKey {
		return nil, fmt.Errorf("%s carries no key", c.Code)
	}
	return base64.StdEncoding.DecodeString(c.Arg(0))
}

// IsHandshake reports whether the command belongs to the key exchange.
func (c Command) IsHandshake() bool {
	switch c.Code {
	case CmdPublicKey, CmdSymmetricKey, CmdKeyReceived:
		return true
	}
	return false
}

// Alive is the presence beacon broadcast every alive interval.
func Alive(name string) Command { return Command{Code: CmdAlive, Args: []string{name}} }

// Private asks the receiver to open a private room for the sender, who
// names itself in room.
func Private(room string) Command { return Command{Code: CmdPrivate, Args: []string{room}} }

// NameChange announces a rename to the main room.
func NameChange(oldName, newName string) Command {
	return Command{Code: CmdNameChange, Args: []string{oldName, newName}}
}

// PublicKey opens a key exchange with our public key.
func PublicKey(pub []byte) Command {
	return Command{Code: CmdPublicKey, Args: []string{base64.StdEncoding.EncodeToString(pub)}}
}

// SymmetricKey carries a pairwise key sealed to the peer's public key.
func SymmetricKey(sealed []byte) Command {
	return Command{Code: CmdSymmetricKey, Args: []string{base64.StdEncoding.EncodeToString(sealed)}}
}

// KeyReceived confirms that the sealed key was opened.
func KeyReceived() Command { return Command{Code: CmdKeyReceived} }

// Part announces a graceful leave.
func Part(name string) Command { return Command{Code: CmdPart, Args: []string{name}} }

// ValidateName checks that a display name fits the size limit and travels
// as one command token.
func ValidateName(name string) error {
	if err := limits.ValidateName(name); err != nil {
		return err
	}
	if strings.IndexFunc(name, unicode.IsSpace) >= 0 {
		return fmt.Errorf("%w: %q contains whitespace", ErrInvalidName, name)
	}
	return nil
}
