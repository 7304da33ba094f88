package http

import (
	"html/template"
	"log/slog"
	"net/http"

	"github.com/harborline/storefront/internal/auth"
)

// pageTemplate is the minimal shell for the storefront pages. The real
// interface is client-rendered; these pages exist so the route guard has
// something to protect and the client shell somewhere to mount.
var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head><meta charset="utf-8"><title>{{.Title}} | Harborline</title></head>
<body>
<div id="root" data-page="{{.Page}}"{{if .Notice}} data-auth-notice="{{.Notice}}"{{end}}></div>
</body>
</html>
`))

type pageData struct {
	Title  string
	Page   string
	Notice string
}

// PageHandler serves the HTML shell pages behind the route guard.
type PageHandler struct {
	logger *slog.Logger
}

// NewPageHandler creates a new page handler.
func NewPageHandler(logger *slog.Logger) *PageHandler {
	return &PageHandler{logger: logger}
}

// Page returns a handler rendering the shell for one page. The auth notice
// cookie, when present, is surfaced to the shell so it can show the
// "session expired" or "service unavailable" message.
func (h *PageHandler) Page(page, title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := pageData{Title: title, Page: page}
		if cookie, err := r.Cookie(auth.CookieAuthNotice); err == nil {
			data.Notice = cookie.Value
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := pageTemplate.Execute(w, data); err != nil {
			h.logger.ErrorContext(r.Context(), "failed to render page",
				slog.String("page", page),
				slog.String("error", err.Error()),
			)
		}
	}
}
