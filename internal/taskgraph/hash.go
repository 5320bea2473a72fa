package taskgraph

import (
	"crypto/sha256"
	"encoding/base64"
	"sort"
	"strconv"
	"strings"

	"github.com/jbadeau/forge-sub002/internal/manifest"
	"github.com/jbadeau/forge-sub002/internal/projectgraph"
)

// fieldSeparator cannot appear in any canonicalized field (task ids,
// executor ids, glob patterns, tags): it is a control character, not a
// printable one, so no legitimate field value can collide with it.
const fieldSeparator = "\x1f"

// computeHash canonicalizes the tuple (taskId, executor id, sorted options
// entries, sorted dependsOn list, sorted inputs globs, sorted outputs
// globs, project name, project root, sorted tags), concatenates with a
// field separator, and returns the SHA-256/Base64 digest. This is a purely
// structural fingerprint: it never reads source file contents.
func computeHash(id string, target manifest.Target, project projectgraph.Project) string {
	var b strings.Builder

	b.WriteString(id)
	b.WriteString(fieldSeparator)
	b.WriteString(target.Executor)
	b.WriteString(fieldSeparator)
	writeSortedOptions(&b, target.Options)
	b.WriteString(fieldSeparator)
	writeSorted(&b, target.DependsOn)
	b.WriteString(fieldSeparator)
	writeSorted(&b, target.Inputs)
	b.WriteString(fieldSeparator)
	writeSorted(&b, target.Outputs)
	b.WriteString(fieldSeparator)
	b.WriteString(project.Name)
	b.WriteString(fieldSeparator)
	b.WriteString(project.Root)
	b.WriteString(fieldSeparator)
	writeSorted(&b, project.Tags)

	sum := sha256.Sum256([]byte(b.String()))
	return base64.StdEncoding.EncodeToString(sum[:])
}

func writeSorted(b *strings.Builder, values []string) {
	sorted := append([]string(nil), values...)
	sort.Strings(sorted)
	b.WriteString(strings.Join(sorted, ","))
}

func writeSortedOptions(b *strings.Builder, options map[string]any) {
	keys := make([]string, 0, len(options))
	for k := range options {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+formatOptionValue(options[k]))
	}
	b.WriteString(strings.Join(parts, ","))
}

func formatOptionValue(v any) string {
	switch value := v.(type) {
	case string:
		return value
	case bool:
		return strconv.FormatBool(value)
	case []string:
		sorted := append([]string(nil), value...)
		sort.Strings(sorted)
		return strings.Join(sorted, "|")
	case map[string]string:
		return formatOptionMap(value)
	case map[string]interface{}:
		asStrings := make(map[string]string, len(value))
		for k, item := range value {
			if s, ok := item.(string); ok {
				asStrings[k] = s
			}
		}
		return formatOptionMap(asStrings)
	default:
		return ""
	}
}

// formatOptionMap canonicalizes a map-valued option (e.g. options.env) as
// sorted "key=value" pairs so two targets differing only in such a map
// never collide onto the same structural hash.
func formatOptionMap(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+m[k])
	}
	return strings.Join(parts, "|")
}
