// Package pathutil maps request paths and asset references onto the
// filesystem. Every function is pure.
package pathutil

import (
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	multiExtPattern = regexp.MustCompile(`(?:\.\w+)+$`)
	urlPattern      = regexp.MustCompile(`(?i)^([a-z]+:)?//`)
	versionPattern  = regexp.MustCompile(`([^\\/]+)@([^\\/]+)`)
	slashRunPattern = regexp.MustCompile(`/{2,}`)
)

// ExtractExtension returns the longest trailing run of dot-separated word
// segments, so "tabs.xtpl.js" yields ".xtpl.js" rather than ".js". It reports
// false when the path has no extension.
func ExtractExtension(p string) (string, bool) {
	ext := multiExtPattern.FindString(StripQuery(p))
	return ext, ext != ""
}

// IsURL reports whether s is an absolute or protocol-relative URL.
func IsURL(s string) bool {
	return urlPattern.MatchString(s)
}

// StripQuery removes a trailing query string.
func StripQuery(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		return p[:i]
	}
	return p
}

// NormalizePath converts backslashes, collapses repeated slashes, drops the
// query string and applies Unicode NFC normalisation.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = slashRunPattern.ReplaceAllString(p, "/")
	return norm.NFC.String(StripQuery(p))
}

// ExpandVersion rewrites "package@version" segments to
// "package/version/package".
func ExpandVersion(spec string) string {
	return versionPattern.ReplaceAllString(spec, "$1/$2/$1")
}

// WithDefaultExtension appends ext when the last path segment carries no
// extension. ext may be given with or without its leading dot.
func WithDefaultExtension(p, ext string) string {
	if ext == "" || path.Ext(p) != "" {
		return p
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return p + ext
}

// ParseModuleSpecifier expands version shorthand and appends ".js" when the
// specifier has no extension.
func ParseModuleSpecifier(spec string) string {
	return WithDefaultExtension(ExpandVersion(spec), ".js")
}

// ToLocalPath resolves a reference to a filesystem path. Absolute paths and
// URLs pass through unchanged, references starting with "." resolve against
// the directory of from, anything else resolves against root.
func ToLocalPath(root, ref, from string) string {
	if IsURL(ref) || filepath.IsAbs(ref) || path.IsAbs(ref) {
		return ref
	}
	if strings.HasPrefix(ref, ".") {
		return filepath.Join(filepath.Dir(from), filepath.FromSlash(ref))
	}
	return filepath.Join(root, filepath.FromSlash(ref))
}

// RelativeTo returns p relative to root with forward slashes. URLs and paths
// outside root are returned unchanged.
func RelativeTo(root, p string) string {
	if IsURL(p) {
		return p
	}
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return p
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return filepath.ToSlash(p)
	}
	return rel
}

// ShadowPath prefixes the first non-empty segment of a URL path with "~".
// Generated artifacts live under that shadow tree next to their sources.
func ShadowPath(urlPath string) string {
	segments := strings.Split(urlPath, "/")
	for i, segment := range segments {
		if segment != "" {
			segments[i] = "~" + segment
			break
		}
	}
	return strings.Join(segments, "/")
}

// IsShadowName reports whether a directory entry name belongs to the shadow
// tree.
func IsShadowName(name string) bool {
	return strings.HasPrefix(name, "~")
}

// InsertHash places a content hash fragment immediately before the file
// extension: "a/style.css" becomes "a/style.<hash>.css".
func InsertHash(p, hash string) string {
	if hash == "" {
		return p
	}
	ext := path.Ext(p)
	return strings.TrimSuffix(p, ext) + "." + hash + ext
}
