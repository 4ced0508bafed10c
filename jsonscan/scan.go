// Package jsonscan walks decoded JSON values without assuming a schema.
package jsonscan

import (
	"fmt"
	"net/url"
	"strings"
)

// URLRef is a downloadable reference found in a result payload: the dotted
// path of the property and its URL value.
type URLRef struct {
	Path string
	URL  string
}

// FindURLRefs collects every property whose key ends in "_url" and whose
// value is an absolute http(s) URL. Objects and arrays are visited
// recursively; array elements contribute a bracketed index to the path.
func FindURLRefs(value interface{}) []URLRef {
	var refs []URLRef
	walk(value, "", func(path string, v interface{}) {
		key := path
		if i := strings.LastIndexAny(path, ".]"); i >= 0 {
			key = path[i+1:]
		}
		if !strings.HasSuffix(key, "_url") {
			return
		}
		s, ok := v.(string)
		if !ok || !isAbsoluteHTTP(s) {
			return
		}
		refs = append(refs, URLRef{Path: path, URL: s})
	})
	return refs
}

// FindString searches the value tree for the first property with the given
// key and a string value. Returns "" when absent.
func FindString(value interface{}, key string) string {
	var found string
	walk(value, "", func(path string, v interface{}) {
		if found != "" {
			return
		}
		k := path
		if i := strings.LastIndexAny(path, ".]"); i >= 0 {
			k = path[i+1:]
		}
		if k != key {
			return
		}
		if s, ok := v.(string); ok {
			found = s
		}
	})
	return found
}

// walk visits every node of the tree, calling visit with the accumulated
// path. The root has an empty path.
func walk(value interface{}, path string, visit func(path string, v interface{})) {
	visit(path, value)

	switch v := value.(type) {
	case map[string]interface{}:
		for key, child := range v {
			childPath := key
			if path != "" {
				childPath = path + "." + key
			}
			walk(child, childPath, visit)
		}
	case []interface{}:
		for i, child := range v {
			walk(child, fmt.Sprintf("%s[%d]", path, i), visit)
		}
	}
}

func isAbsoluteHTTP(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
