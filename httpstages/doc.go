// Package httpstages provides pipeline handlers that extract fields from an
// HTTP response into the result bag, plus expectation handlers and preset
// pipelines.
//
// Field extractors write one well-known key each:
//
//	Status   "status" (int), "ok" (bool, status < 400)
//	Headers  "headers" (http.Header)
//	Cookies  "cookies" ([]*http.Cookie)
//	URL      "url" (string, final URL after redirects)
//	Read     "read" ([]byte)
//	Text     "text" (string, options sub-key "text")
//	JSON     "json" (decoded value, options sub-key "json")
//
// Close releases the response early, for pipelines that only need part of it.
// Extract pulls values out of the decoded JSON with JMESPath, and the Expect
// family rejects responses whose extracted values are not as expected.
//
// Example pipeline: info -> json -> close -> expect
//
//	p := pipeline.Develop(httpstages.JSONBody(),
//	    httpstages.Close(),
//	    httpstages.Extract("max_num", "max(items[].num)"),
//	    httpstages.Expect("max_num", func(v any) error {
//	        if n, _ := v.(float64); n > 800 {
//	            return fmt.Errorf("max_num %v over limit", n)
//	        }
//	        return nil
//	    }),
//	)
package httpstages

// Bag keys written by the extractors.
const (
	KeyStatus  = "status"
	KeyOK      = "ok"
	KeyHeaders = "headers"
	KeyCookies = "cookies"
	KeyURL     = "url"
	KeyRead    = "read"
	KeyText    = "text"
	KeyJSON    = "json"
)
