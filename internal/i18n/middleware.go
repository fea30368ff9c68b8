package i18n

import "net/http"

// Middleware negotiates the response language from Accept-Language, falling
// back to lang, and stores the localizer in the request context.
func Middleware(lang string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tag := Negotiate(r.Header.Get("Accept-Language"), lang)
			w.Header().Set("Content-Language", tag.String())
			ctx := withLocale(r.Context(), locale{loc: NewLocalizer(tag.String()), tag: tag})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
