package util

import "strings"

// filenameReplacer strips characters that are illegal or troublesome in file
// names on common filesystems. DICOM person names use '^' as a component
// separator, which also has no business in a path.
var filenameReplacer = strings.NewReplacer(
	"/", "_",
	"\\", "_",
	":", "_",
	"*", "_",
	"?", "_",
	"\"", "_",
	"<", "_",
	">", "_",
	"|", "_",
	"^", "_",
	" ", "_",
	"\x00", "_",
)

// SanitizeFilename makes s safe to use as a single path component. Runs of
// replaced characters collapse into single underscores; an empty or fully
// illegal input becomes "unnamed".
func SanitizeFilename(s string) string {
	out := filenameReplacer.Replace(strings.TrimSpace(s))
	for strings.Contains(out, "__") {
		out = strings.ReplaceAll(out, "__", "_")
	}
	out = strings.Trim(out, "_.")
	if out == "" {
		return "unnamed"
	}
	return out
}
