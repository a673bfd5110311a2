package server

import (
	"html/template"
	"net/http"
)

var adminTmpl = template.Must(template.New("admin").Parse(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>scheda admin</title></head>
<body>
<h1>scheda routes</h1>
<table border="1" cellpadding="4">
<tr><th>Method</th><th>Pattern</th><th>Summary</th><th>Example body</th></tr>
{{range .Routes}}<tr>
<td>{{.Method}}</td><td>{{.Pattern}}</td><td>{{.Summary}}</td><td><code>{{.ExampleBody}}</code></td>
</tr>{{end}}
</table>
</body>
</html>
`))

type adminPageData struct {
	Routes []RouteDoc
}

// RegisterAdminUI exposes the route registry, as JSON for tooling and as
// a plain HTML table.
func RegisterAdminUI(mux *http.ServeMux, rr *RouteRegistry) {
	mux.HandleFunc("GET /_/admin/routes.json", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, rr.List())
	})

	mux.HandleFunc("GET /_/admin", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := adminTmpl.Execute(w, adminPageData{Routes: rr.List()}); err != nil {
			http.Error(w, err.Error(), 500)
		}
	})
}
