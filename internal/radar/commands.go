package radar

import "strings"

// staticCommands are the read-only register queries the bench console may
// send without restriction.
var staticCommands = map[string]bool{
	CmdDetection: true,
	CmdSpeed:     true,
	CmdFirmware:  true,
}

// CmdSensitivityPrefix heads a sensitivity register write. The argument is
// the new register value in hex, one or two digits.
const CmdSensitivityPrefix = "S00"

// IsValidSensitivityCommand reports whether cmd is a well-formed
// sensitivity write: the S00 prefix followed by a 1-2 digit hex value.
func IsValidSensitivityCommand(cmd string) bool {
	if !strings.HasPrefix(cmd, CmdSensitivityPrefix) {
		return false
	}
	arg := cmd[len(CmdSensitivityPrefix):]
	if len(arg) < 1 || len(arg) > 2 {
		return false
	}
	for _, r := range arg {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		case r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}

// IsAllowedCommand reports whether the bench console may send cmd to the
// module. Anything outside the known register reads and well-formed
// sensitivity writes is rejected rather than passed to hardware.
func IsAllowedCommand(cmd string) bool {
	if staticCommands[cmd] {
		return true
	}
	return IsValidSensitivityCommand(cmd)
}
