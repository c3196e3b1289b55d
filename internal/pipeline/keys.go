package pipeline

import (
	"path"
	"strings"
)

// DeriveKey builds the destination key for a translated artifact:
// the original key without its extension, "_" + language, then ext.
//
//	DeriveKey("a/b/report.pdf", "German", ".pdf") == "a/b/report_German.pdf"
func DeriveKey(originalKey, language, ext string) string {
	base := strings.TrimSuffix(originalKey, path.Ext(originalKey))
	return base + "_" + language + ext
}
