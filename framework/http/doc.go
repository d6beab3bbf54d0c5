// Package http provides Laravel-compatible request and response helpers.
//
// # Request
//
//	req := gohttp.NewRequest(r)
//
//	// Bind JSON / form body into a struct
//	var payload struct {
//	    Name string `json:"name"`
//	}
//	if err := req.Bind(&payload); err != nil { ... }
//
//	page := req.Query("page", "1")
//	name := req.RouteParam("name") // requires the chi router
//
// # Response
//
//	res := gohttp.NewResponse(w)
//	res.Success(map[string]any{"count": 3})      // 200 {"data": {...}}
//	res.NotFound()                               // 404 {"message": "Not found."}
//	res.ValidationError(v.Errors())              // 422 {"errors": {...}}
//
//	// Coded errors from github.com/jmgilman/go/errors pick their own status
//	res.Fail(errors.Wrap(err, errors.CodeConflict, "alias already in use")) // 409
package http
