package app

import (
	"net/http"
	"strings"

	"customerqueries/web/internal/view"
)

var pageTitles = map[view.ViewKind]string{
	view.ViewLoading:   "Loading - CustomerQueries",
	view.ViewLanding:   "CustomerQueries",
	view.ViewProtected: "Messages - CustomerQueries",
	view.ViewLogin:     "Login - CustomerQueries",
	view.ViewSignup:    "Sign Up - CustomerQueries",
}

// handlePage renders whatever the route table selects for path.
func (s *HTTPServer) handlePage(path string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := requestToken(r)
		page, state := s.service.ResolvePage(r.Context(), token, nil)

		decision, err := view.Route(path, state)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		if decision.IsRedirect() {
			http.Redirect(w, r, decision.Redirect, http.StatusSeeOther)
			return
		}
		if state == view.StateUnauthenticated && token != "" {
			clearSessionCookie(w)
		}

		data := map[string]any{
			"Title":         pageTitles[decision.View],
			"Authenticated": state == view.StateAuthenticated,
			"UserName":      page.Session.UserName(),
			"Error":         r.URL.Query().Get("error"),
			"Refresh":       r.URL.RequestURI(),
		}

		if decision.View == view.ViewProtected {
			query := r.URL.Query()
			mode, err := view.ParseSortMode(query.Get("sort"))
			if err != nil {
				mode = view.SortAll
			}
			page.Messages.SetSearch(query.Get("q"))
			page.Messages.SetSort(mode)
			if s.service.LoadMessages(r.Context(), page) {
				data["Title"] = pageTitles[view.ViewLoading]
				s.render(w, r, http.StatusOK, view.ViewLoading, data)
				return
			}
			data["Messages"] = page.Messages.Displayed()
			data["Search"] = page.Messages.Search()
			data["Sort"] = string(page.Messages.Sort())
			data["SortModes"] = []view.SortMode{view.SortAll, view.SortRecent, view.SortOldest}
		}

		s.render(w, r, http.StatusOK, decision.View, data)
	}
}

func (s *HTTPServer) handleLoginForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Redirect(w, r, errorRedirect(view.PathLogin, "Invalid request"), http.StatusSeeOther)
		return
	}
	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")
	if email == "" || password == "" {
		http.Redirect(w, r, errorRedirect(view.PathLogin, "Email and password required"), http.StatusSeeOther)
		return
	}

	sess, token, err := s.service.SignIn(r.Context(), email, password)
	if err != nil {
		s.logger.Warn("login failed", "email", email, "error", err)
		_, _, message, _ := mapError(err)
		http.Redirect(w, r, errorRedirect(view.PathLogin, message), http.StatusSeeOther)
		return
	}

	setSessionCookie(w, token, sess.ExpiresAt, s.service.CookieSecure())
	s.logger.Info("user logged in", "user_id", sess.UserID)
	s.redirectAfterSignIn(w, r, view.PathLogin)
}

func (s *HTTPServer) handleSignupForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Redirect(w, r, errorRedirect(view.PathSignup, "Invalid request"), http.StatusSeeOther)
		return
	}
	name := strings.TrimSpace(r.FormValue("name"))
	email := strings.TrimSpace(r.FormValue("email"))
	password := r.FormValue("password")
	if name == "" || email == "" || password == "" {
		http.Redirect(w, r, errorRedirect(view.PathSignup, "Name, email and password required"), http.StatusSeeOther)
		return
	}

	sess, token, err := s.service.SignUp(r.Context(), name, email, password)
	if err != nil {
		s.logger.Warn("signup failed", "email", email, "error", err)
		_, _, message, _ := mapError(err)
		http.Redirect(w, r, errorRedirect(view.PathSignup, message), http.StatusSeeOther)
		return
	}

	setSessionCookie(w, token, sess.ExpiresAt, s.service.CookieSecure())
	s.logger.Info("user signed up", "user_id", sess.UserID)
	s.redirectAfterSignIn(w, r, view.PathSignup)
}

// redirectAfterSignIn follows the route table away from the entry form. The
// session was just created, so no lookup is needed.
func (s *HTTPServer) redirectAfterSignIn(w http.ResponseWriter, r *http.Request, form string) {
	decision, err := view.Route(form, view.StateAuthenticated)
	if err != nil || !decision.IsRedirect() {
		http.Redirect(w, r, view.PathHome, http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, decision.Redirect, http.StatusSeeOther)
}

func (s *HTTPServer) handleLogoutForm(w http.ResponseWriter, r *http.Request) {
	nav := &navigation{}
	page, _ := s.service.ResolvePage(r.Context(), requestToken(r), nav)

	if s.service.Logout(r.Context(), page) == view.LogoutCompleted {
		clearSessionCookie(w)
		http.Redirect(w, r, nav.path, http.StatusSeeOther)
		return
	}
	// the session is still there; show the same page again
	http.Redirect(w, r, view.PathHome, http.StatusSeeOther)
}
