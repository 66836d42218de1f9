package site

import (
	"errors"
	"path"
	"strings"
)

// rootGroup is the group name mounted at "/".
const rootGroup = "__"

const (
	pagesDir   = "pages"
	pageSuffix = ".page.xtpl"
)

// mountPath returns the URL prefix of a route group.
func mountPath(group string) string {
	group = strings.Trim(strings.TrimSpace(group), "/")
	if group == "" || group == rootGroup {
		return "/"
	}
	return "/" + group
}

// pagePath joins a group mount and a sub path into a URL path.
func pagePath(mount, sub string) (string, error) {
	sub = strings.TrimSpace(sub)
	if strings.Contains(sub, "\x00") || strings.Contains(sub, "\\") {
		return "", errors.Join(ErrInvalidPath, errors.New("invalid character in "+sub))
	}
	for _, segment := range strings.Split(strings.Trim(sub, "/"), "/") {
		if segment == "." || segment == ".." {
			return "", errors.Join(ErrInvalidPath, errors.New("invalid path segment in "+sub))
		}
	}
	if !strings.HasPrefix(sub, "/") {
		sub = "/" + sub
	}
	return path.Join(mount, sub), nil
}

// templateFor derives the page template of a route. An explicit template is
// taken relative to the pages directory; otherwise the template is
// pages/<group>/<page>/<page>.page.xtpl with "/" in the sub path written as
// "__".
func templateFor(mount, sub, explicit string) string {
	name := strings.TrimSpace(explicit)
	if name == "" {
		page := strings.ReplaceAll(strings.Trim(sub, "/"), "/", "__")
		name = mount + "/" + page + "/" + page
	}
	return path.Join(pagesDir, name) + pageSuffix
}
