package www

import (
	"net/http"

	"github.com/gorilla/sessions"
	"golang.org/x/crypto/bcrypt"
)

const sessionName = "stockbench-session"

func newSessionStore(secret string, secure bool) *sessions.CookieStore {
	if secret == "" {
		secret = "stockbench-default-secret-change-me"
	}
	s := sessions.NewCookieStore([]byte(secret))
	s.Options.HttpOnly = true
	s.Options.Secure = secure
	s.Options.SameSite = http.SameSiteLaxMode
	return s
}

// HashPassword mints the bcrypt hash stored in web.password_hash.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(hash), err
}

// checkPassword verifies the single shared login password against the
// configured hash. An empty hash never matches.
func checkPassword(hash, password string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func (h *Handlers) isAuthenticated(r *http.Request) bool {
	session, err := h.sessions.Get(r, sessionName)
	if err != nil {
		return false
	}
	auth, ok := session.Values["authenticated"].(bool)
	return ok && auth
}

func (h *Handlers) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.isAuthenticated(r) {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}
