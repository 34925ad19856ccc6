package web

import (
	"crypto/subtle"
	"net/http"

	"github.com/goji/httpauth"
	"github.com/gorilla/securecookie"

	"github.com/jnb666/mnistrun/log"
)

const (
	cookieName  = "mnistrun"
	cookieValue = "authenticated"
)

type AuthMiddleware struct {
	sc   *securecookie.SecureCookie
	opts httpauth.AuthOptions
}

// Setup new middleware for authenticating requests against a single user and password. The cookie keys are
// generated per process so sessions end when the server restarts.
func NewAuthMiddleware(o Options) AuthMiddleware {
	realm := o.Realm
	if realm == "" {
		realm = "Restricted"
	}
	return AuthMiddleware{
		sc:   securecookie.New(securecookie.GenerateRandomKey(32), securecookie.GenerateRandomKey(32)),
		opts: httpauth.AuthOptions{Realm: realm, AuthFunc: checkPassword(o.User, o.Password)},
	}
}

// If session cookie is not present then use basic auth to login and set a cookie.
func (mw AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if cookie, err := r.Cookie(cookieName); err == nil {
			var value string
			if err = mw.sc.Decode(cookieName, cookie.Value, &value); err == nil && value == cookieValue {
				next.ServeHTTP(w, r)
				return
			}
		}
		httpauth.BasicAuth(mw.opts)(mw.setCookie(next)).ServeHTTP(w, r)
	})
}

func (mw AuthMiddleware) setCookie(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if encoded, err := mw.sc.Encode(cookieName, cookieValue); err == nil {
			http.SetCookie(w, &http.Cookie{Name: cookieName, Value: encoded, Path: "/", HttpOnly: true})
		} else {
			log.Warnf("error encoding cookie: %s", err)
		}
		h.ServeHTTP(w, r)
	})
}

func checkPassword(user, pass string) func(string, string, *http.Request) bool {
	return func(u, p string, r *http.Request) bool {
		ok := subtle.ConstantTimeCompare([]byte(u), []byte(user)) == 1 &&
			subtle.ConstantTimeCompare([]byte(p), []byte(pass)) == 1
		if !ok {
			log.Warnf("auth failed for user %q from %s", u, r.RemoteAddr)
		}
		return ok
	}
}
