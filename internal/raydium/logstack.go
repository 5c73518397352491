package raydium

import (
	"strings"

	"github.com/gagliardetto/solana-go"
)

// programLogs returns the log lines emitted while program was the innermost
// executing program. The runtime brackets each invocation with
// "Program <id> invoke [depth]" and "Program <id> success|failed"; lines in
// between belong to the program on top of that stack.
func programLogs(logs []string, program solana.PublicKey) []string {
	var (
		stack []string
		out   []string
		id    = program.String()
	)

	for _, line := range logs {
		if callee, ok := parseInvoke(line); ok {
			stack = append(stack, callee)
			continue
		}
		if parseExit(line, stack) {
			stack = stack[:len(stack)-1]
			continue
		}
		if len(stack) > 0 && stack[len(stack)-1] == id {
			out = append(out, line)
		}
	}
	return out
}

// InvokesProgram reports whether program appears in an invoke line.
func InvokesProgram(logs []string, program solana.PublicKey) bool {
	id := program.String()
	for _, line := range logs {
		if callee, ok := parseInvoke(line); ok && callee == id {
			return true
		}
	}
	return false
}

// V4InitHint reports whether the V4 program logged an initialize2 message.
// It only decides whether fetching the full transaction is worth an RPC
// call; classification itself goes through DecodeV4.
func V4InitHint(logs []string) bool {
	for _, line := range programLogs(logs, AmmV4ProgramID) {
		if strings.Contains(line, "initialize2") {
			return true
		}
	}
	return false
}

func parseInvoke(line string) (string, bool) {
	if !strings.HasPrefix(line, "Program ") {
		return "", false
	}
	rest := line[len("Program "):]
	i := strings.Index(rest, programInvokeSuffix)
	if i <= 0 || strings.Contains(rest[:i], " ") {
		return "", false
	}
	return rest[:i], true
}

func parseExit(line string, stack []string) bool {
	if len(stack) == 0 {
		return false
	}
	top := "Program " + stack[len(stack)-1] + " "
	if !strings.HasPrefix(line, top) {
		return false
	}
	rest := line[len(top):]
	return rest == "success" || strings.HasPrefix(rest, "failed")
}
