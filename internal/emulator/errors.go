package emulator

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedOpcode reports bytes the decoder has no rule for.
	ErrUnsupportedOpcode = errors.New("unsupported opcode")

	// ErrUnsupportedInstruction reports a decoded instruction the CPU
	// cannot execute.
	ErrUnsupportedInstruction = errors.New("unsupported instruction")
)

// DecodeError is returned by Decode for an opcode outside the supported set.
type DecodeError struct {
	Address uint64
	Opcode  uint16
	Reason  string
}

func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("unsupported opcode 0x%x at 0x%x", e.Opcode, e.Address)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg
}

func (e *DecodeError) Is(target error) bool {
	return target == ErrUnsupportedOpcode
}

// ExecError is returned when a decoded instruction has no execution rule or
// its operands are unusable.
type ExecError struct {
	Address  uint64
	Mnemonic Mnemonic
	Reason   string
}

func (e *ExecError) Error() string {
	msg := fmt.Sprintf("unsupported instruction %s at 0x%x", e.Mnemonic, e.Address)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *ExecError) Is(target error) bool {
	return target == ErrUnsupportedInstruction
}
