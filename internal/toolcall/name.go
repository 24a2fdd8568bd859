package toolcall

// builtinAliases collapses provider-specific spellings onto the canonical
// tool name vocabulary (spec §4.2). Names not present here pass through
// unchanged and are treated as MCP/server-qualified tools.
var builtinAliases = map[string]string{
	"bash":        "shell",
	"Bash":        "shell",
	"exec":        "shell",
	"shell":       "shell",
	"run_command": "shell",

	"read":      "read_file",
	"read_file": "read_file",
	"readFile":  "read_file",
	"cat":       "read_file",

	"apply_diff":  "edit",
	"apply_patch": "edit",
	"edit":        "edit",
	"edit_file":   "edit",
	"str_replace": "edit",

	"search":       "search",
	"grep":         "search",
	"search_files": "search",
	"web_search":   "web_search",
	"webSearch":    "web_search",
}

// builtinNames is the set of canonical names that are never namespaced with
// a server prefix, even when the raw event carried one (spec §4.2).
var builtinNames = map[string]bool{
	"shell": true, "read_file": true, "edit": true, "search": true, "web_search": true, "thinking": true,
}

// CanonicalName resolves a provider-reported tool name to the canonical
// vocabulary, collapsing known aliases.
func CanonicalName(raw string) string {
	if canon, ok := builtinAliases[raw]; ok {
		return canon
	}
	return raw
}

// IsBuiltin reports whether name is one of the canonical builtin names that
// must never carry a server prefix.
func IsBuiltin(name string) bool {
	return builtinNames[name]
}
