package templatex

// Kind identifies an asset list.
type Kind string

// Asset kinds collected during a render.
const (
	KindCSS    Kind = "css"
	KindJS     Kind = "js"
	KindHeadJS Kind = "headjs"
	KindModJS  Kind = "modjs"
)

// Kinds lists every asset kind in hook order.
var Kinds = []Kind{KindCSS, KindHeadJS, KindJS, KindModJS}

// defaultExt is appended to directive arguments without an extension.
var defaultExt = map[Kind]string{
	KindCSS:    "css",
	KindJS:     "raw.js",
	KindHeadJS: "raw.js",
	KindModJS:  "js",
}

// InlineAsset is the captured body of a block directive together with the
// paths it declared.
type InlineAsset struct {
	Params  []string
	Content string
}

// Entry is either a resolved path or an inline asset.
type Entry struct {
	Path   string
	Inline *InlineAsset
}

// AssetList accumulates the assets referenced by one render. Paths are kept
// once per kind in first-reference order.
type AssetList struct {
	entries map[Kind][]Entry
	seen    map[Kind]map[string]struct{}
}

// NewAssetList returns an empty list.
func NewAssetList() *AssetList {
	return &AssetList{
		entries: make(map[Kind][]Entry),
		seen:    make(map[Kind]map[string]struct{}),
	}
}

// Add appends path unless it is already listed for kind. It reports whether
// the path was inserted.
func (l *AssetList) Add(kind Kind, path string) bool {
	seen := l.seen[kind]
	if seen == nil {
		seen = make(map[string]struct{})
		l.seen[kind] = seen
	}
	if _, ok := seen[path]; ok {
		return false
	}
	seen[path] = struct{}{}
	l.entries[kind] = append(l.entries[kind], Entry{Path: path})
	return true
}

// AddInline appends an inline asset. Inline assets are never deduplicated.
func (l *AssetList) AddInline(kind Kind, asset InlineAsset) {
	l.entries[kind] = append(l.entries[kind], Entry{Inline: &asset})
}

// Entries returns the entries collected for kind.
func (l *AssetList) Entries(kind Kind) []Entry {
	return l.entries[kind]
}

// Paths returns only the path entries for kind.
func (l *AssetList) Paths(kind Kind) []string {
	var paths []string
	for _, e := range l.entries[kind] {
		if e.Inline == nil {
			paths = append(paths, e.Path)
		}
	}
	return paths
}

// Empty reports whether nothing was collected.
func (l *AssetList) Empty() bool {
	for _, entries := range l.entries {
		if len(entries) > 0 {
			return false
		}
	}
	return true
}
