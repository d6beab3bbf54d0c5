// Package validation provides Laravel-compatible input validation for the
// admin API.
//
// Rules are expressed as pipe-separated strings on a map of field names and
// fields are checked in sorted order, so the error bag is deterministic.
//
//	v := validation.Make(map[string]string{
//	    "name":  "database",
//	    "alias": "db",
//	}, validation.Rules{
//	    "name":  "required|name|max:255",
//	    "alias": "required|name|max:255|different:name",
//	})
//
//	if v.Fails() {
//	    // JSON: {"errors": {"field": ["message1", "message2"]}}
//	}
//
// # Available Rules
//
//   - required — field must be present and non-empty
//   - min:n, max:n — UTF-8 length bounds
//   - name — a registry name: no whitespace, no slashes
//   - alpha_dash — letters, numbers, dashes, underscores
//   - regex:pattern — must match regexp pattern
//   - in:a,b,c / not_in:a,b,c — membership in a comma-separated list
//   - same:other / different:other — compare with data[other]
//   - nullable — always passes; documents that the field may be empty
//   - sometimes — skips the remaining rules when the field is absent
package validation
