package reconcile

import "github.com/tidwall/gjson"

// Find walks root depth-first in pre-order, visiting object members and array
// elements in document order, and returns the first value match accepts.
// Values decoded from JSON text cannot contain cycles, so no visited set is
// kept.
func Find(root gjson.Result, match func(gjson.Result) bool) (gjson.Result, bool) {
	if match(root) {
		return root, true
	}
	if !root.IsObject() && !root.IsArray() {
		return gjson.Result{}, false
	}

	var found gjson.Result
	var ok bool
	root.ForEach(func(_, child gjson.Result) bool {
		found, ok = Find(child, match)
		return !ok
	})
	return found, ok
}
