package engine

import "strings"

// SanitizedPath is the PATH handed to the engine regardless of the caller's
// environment. Homebrew prefixes come first so the engine finds its helpers.
const SanitizedPath = "/opt/homebrew/bin:/usr/local/bin:/usr/bin:/bin:/usr/sbin:/sbin"

var forcedEnv = []string{
	"PATH=" + SanitizedPath,
	"TERM=dumb",
	"NO_COLOR=1",
	"LC_ALL=C",
}

// Environ filters base (usually os.Environ()) and appends the forced
// variables. Locale and terminal settings from base are dropped.
func Environ(base []string) []string {
	env := make([]string, 0, len(base)+len(forcedEnv))
	for _, e := range base {
		key, _, _ := strings.Cut(e, "=")
		switch {
		case key == "PATH", key == "TERM", key == "NO_COLOR", key == "COLORTERM",
			key == "LANG", strings.HasPrefix(key, "LC_"):
			continue
		}
		env = append(env, e)
	}
	return append(env, forcedEnv...)
}
