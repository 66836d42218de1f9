package site

import (
	"net/http"

	"github.com/back2front/back2front-go/route"
)

// Basic prepends the callback shared by ordinary pages.
func Basic(callbacks ...Callback) []Callback {
	return append([]Callback{setTitle("Back2Front")}, callbacks...)
}

func setTitle(title string) Callback {
	return func(w http.ResponseWriter, r *http.Request, h route.Helper) error {
		h.Set("title", title)
		return nil
	}
}

// Example returns the demo pages: tabs rendered on the server, on both
// sides, and on the client only.
func Example() Group {
	tabs := func(w http.ResponseWriter, r *http.Request, h route.Helper) error {
		h.Merge(map[string]any{
			"tabsNav":  []string{"Tab A", "Tab B", "Tab C", "Tab D"},
			"tabsBody": []string{"I am A", "I am B", "I am C", "I am D"},
		})
		return nil
	}
	return Group{
		Name: "example",
		Pages: []Page{
			{Path: "tabs-ssr", Callbacks: Basic(tabs)},
			{Path: "tabs-ssr-and-csr", Callbacks: Basic(tabs)},
			{Path: "tabs-csr", Callbacks: Basic()},
		},
	}
}

// Groups lists every route group of the site.
func Groups() []Group {
	return []Group{Example()}
}
