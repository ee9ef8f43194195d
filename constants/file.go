package constants

import "strings"

// Case note formats.
const (
	ExtTXT = "txt"
	ExtPDF = "pdf"
)

// NoteExtensions holds the case note formats discovered by queue sync.
var NoteExtensions = map[string]struct{}{
	ExtTXT: {},
	ExtPDF: {},
}

// FragmentPrefix starts every fragment file name.
const FragmentPrefix = "patient_"

// FragmentSuffix ends every fragment file name: patient_<id>_graph.json.
const FragmentSuffix = "_graph.json"

// FragmentGlob matches fragment files anywhere below the output directory.
const FragmentGlob = "**/*" + FragmentSuffix

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsNoteExt reports whether ext (with or without dot) is a supported case note format.
func IsNoteExt(ext string) bool {
	_, ok := NoteExtensions[NormalizeExt(ext)]
	return ok
}
