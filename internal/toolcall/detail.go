package toolcall

import (
	"sort"
	"strings"

	"github.com/getpaseo/paseo/pkg/paseo"
)

// maxDiffLen bounds unified diff / output text carried in a detail payload.
const maxDiffLen = 8000

// stripCwd removes cwd as a proper prefix of path, following spec §4.2's
// "filePath values have the agent's cwd stripped when it is a proper
// prefix" rule.
func stripCwd(path, cwd string) string {
	if cwd == "" || path == "" {
		return path
	}
	prefix := strings.TrimSuffix(cwd, "/") + "/"
	if strings.HasPrefix(path, prefix) && len(path) > len(prefix) {
		return path[len(prefix):]
	}
	return path
}

func truncate(s string) string {
	if len(s) <= maxDiffLen {
		return s
	}
	return s[:maxDiffLen] + "…"
}

// fieldString reads the first present key among candidates as a string.
func fieldString(m map[string]any, candidates ...string) string {
	for _, k := range candidates {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}

func fieldInt(m map[string]any, candidates ...string) *int {
	for _, k := range candidates {
		if v, ok := m[k]; ok {
			switch n := v.(type) {
			case float64:
				i := int(n)
				return &i
			}
		}
	}
	return nil
}

// buildShellDetail constructs the shell detail tagged-union member from a
// provider's already-decoded input/output maps.
func buildShellDetail(input, output map[string]any, cwd string) *paseo.ShellDetail {
	d := &paseo.ShellDetail{
		Command: fieldString(input, "command", "cmd"),
		Cwd:     stripCwd(fieldString(input, "cwd", "workdir"), cwd),
	}
	if output != nil {
		d.Output = truncate(fieldString(output, "output", "stdout", "result"))
		d.ExitCode = fieldInt(output, "exitCode", "exit_code", "code")
	}
	return d
}

func buildReadDetail(input, output map[string]any, cwd string) *paseo.ReadDetail {
	return &paseo.ReadDetail{
		FilePath: stripCwd(fieldString(input, "filePath", "file_path", "path"), cwd),
		Content:  truncate(fieldString(output, "content", "text")),
		Offset:   fieldInt(input, "offset"),
		Limit:    fieldInt(input, "limit"),
	}
}

func buildEditDetail(input map[string]any, cwd string) *paseo.EditDetail {
	return &paseo.EditDetail{
		FilePath:    stripCwd(fieldString(input, "filePath", "file_path", "path"), cwd),
		OldString:   fieldString(input, "oldString", "old_string"),
		NewString:   fieldString(input, "newString", "new_string"),
		UnifiedDiff: truncate(fieldString(input, "diff", "unifiedDiff", "patch")),
	}
}

func buildSearchDetail(input map[string]any) *paseo.SearchDetail {
	return &paseo.SearchDetail{Query: fieldString(input, "query", "pattern")}
}

func buildThinkingDetail(text string) *paseo.ThinkingDetail {
	return &paseo.ThinkingDetail{Content: text}
}

func buildGenericDetail(input, output map[string]any) *paseo.GenericDetail {
	g := &paseo.GenericDetail{}
	g.Input = toKVs(input)
	g.Output = toKVs(output)
	return g
}

func toKVs(m map[string]any) []paseo.KV {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	kvs := make([]paseo.KV, 0, len(m))
	for _, k := range keys {
		kvs = append(kvs, paseo.KV{Key: k, Value: toDisplayString(m[k])})
	}
	return kvs
}

func toDisplayString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		return jsonString(v)
	}
}
