package escrow

import (
	"fmt"
	"regexp"
	"strconv"

	"github.com/ruteri/sui-escrow-gateway/interfaces"
)

// Abort codes raised by the escrow module.
const (
	ENotAuthorized       uint64 = 1
	EInvalidState        uint64 = 2
	EInsufficientPayment uint64 = 3
	EInvalidTier         uint64 = 4
	EZeroAmount          uint64 = 5
	EProductNotFound     uint64 = 6
	EAccountExists       uint64 = 7
	ETierLimitReached    uint64 = 8
	EInvalidInput        uint64 = 9
)

var abortNames = map[uint64]string{
	ENotAuthorized:       "not authorized",
	EInvalidState:        "invalid escrow state",
	EInsufficientPayment: "insufficient payment",
	EInvalidTier:         "invalid subscription tier",
	EZeroAmount:          "zero amount",
	EProductNotFound:     "product not found",
	EAccountExists:       "account already exists",
	ETierLimitReached:    "subscription tier limit reached",
	EInvalidInput:        "invalid input",
}

var abortPattern = regexp.MustCompile(`MoveAbort\(.*function_name: Some\("(\w+)"\).*\}, (\d+)\)`)

// Abort is a decoded Move abort.
type Abort struct {
	Function string
	Code     uint64
}

func (a Abort) String() string {
	if name, ok := abortNames[a.Code]; ok {
		return fmt.Sprintf("%s aborted: %s (%d)", a.Function, name, a.Code)
	}
	return fmt.Sprintf("%s aborted with code %d", a.Function, a.Code)
}

// ParseAbort extracts the abort code from a chain-reported execution error.
func ParseAbort(reason string) (Abort, bool) {
	m := abortPattern.FindStringSubmatch(reason)
	if m == nil {
		return Abort{}, false
	}
	code, err := strconv.ParseUint(m[2], 10, 64)
	if err != nil {
		return Abort{}, false
	}
	return Abort{Function: m[1], Code: code}, true
}

// AbortReason formats an abort the way the chain reports it.
func AbortReason(packageID interfaces.ObjectID, function string, code uint64, command int) string {
	return fmt.Sprintf("MoveAbort(MoveLocation { module: ModuleId { address: %s, name: Identifier(\"%s\") }, function: 0, instruction: 0, function_name: Some(\"%s\") }, %d) in command %d",
		packageID, ModuleName, function, code, command)
}
