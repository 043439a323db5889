package httpx

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const visitorCookie = "bg_vid"

// visitorID returns the visitor cookie value, issuing a new UUID when the
// cookie is missing or malformed.
func visitorID(w http.ResponseWriter, r *http.Request, trustProxy bool) string {
	if c, err := r.Cookie(visitorCookie); err == nil {
		if id, err := uuid.Parse(c.Value); err == nil {
			return id.String()
		}
	}
	id := uuid.NewString()
	secure := r.TLS != nil ||
		(trustProxy && strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https"))
	http.SetCookie(w, &http.Cookie{
		Name:     visitorCookie,
		Value:    id,
		Path:     "/",
		MaxAge:   365 * 24 * 60 * 60,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
	// Later handlers in the same request see the issued id.
	r.AddCookie(&http.Cookie{Name: visitorCookie, Value: id})
	return id
}
