package runner

import (
	"fmt"
	"os/exec"
	"strings"
)

// DefaultInterpreter is the argv used when no interpreter is configured.
var DefaultInterpreter = []string{"deno", "run", "--allow-import"}

// interpreterInfo holds install metadata for a known interpreter.
type interpreterInfo struct {
	Install string
}

// knownInterpreters maps interpreter binary names to install hints.
var knownInterpreters = map[string]interpreterInfo{
	"deno": {Install: "https://docs.deno.com/runtime/getting_started/installation/"},
	"node": {Install: "https://nodejs.org/en/download"},
	"bun":  {Install: "https://bun.sh/docs/installation"},
}

// ErrInterpreterUnavailable is returned when the configured interpreter
// cannot be found. It includes install instructions when the interpreter is
// known.
type ErrInterpreterUnavailable struct {
	Name string
	Info *interpreterInfo
}

func NewErrInterpreterUnavailable(name string) ErrInterpreterUnavailable {
	e := ErrInterpreterUnavailable{Name: name}
	if info, ok := knownInterpreters[name]; ok {
		e.Info = &info
	}
	return e
}

func (e ErrInterpreterUnavailable) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s is required but not installed.", e.Name)
	if e.Info != nil && e.Info.Install != "" {
		fmt.Fprintf(&b, "\nInstall: %s", e.Info.Install)
	}
	return b.String()
}

// ResolveInterpreter resolves argv[0] on the system PATH and returns argv
// with the absolute binary path substituted. Paths containing a separator
// are checked as-is by exec.LookPath.
func ResolveInterpreter(argv []string) ([]string, error) {
	if len(argv) == 0 {
		argv = DefaultInterpreter
	}
	path, err := exec.LookPath(argv[0])
	if err != nil {
		return nil, NewErrInterpreterUnavailable(argv[0])
	}
	out := make([]string, len(argv))
	out[0] = path
	copy(out[1:], argv[1:])
	return out, nil
}
