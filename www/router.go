package www

import (
	"html/template"
	"io/fs"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/sessions"

	"stockbench/bus"
	"stockbench/config"
	"stockbench/notify"
	"stockbench/store"
)

type Deps struct {
	DB     *store.DB
	Config *config.Config
	Events *bus.EventBus
	// Bridge is optional; nil runs single-instance.
	Bridge *notify.Bridge
}

type Handlers struct {
	db          *store.DB
	events      *bus.EventBus
	sessions    *sessions.CookieStore
	tmpls       map[string]*template.Template
	eventHub    *EventHub
	passHash    string
	commitTopic string
}

func NewRouter(d Deps) (http.Handler, func()) {
	hub := NewEventHub()
	hub.Start()
	hub.SetupBusListeners(d.Events, d.Bridge)

	sessionStore := newSessionStore(d.Config.Web.SessionSecret, d.Config.Web.SecureCookies)

	// Parse layout + partials as a base template set. Each page is cloned separately
	// to avoid the "last define wins" problem with {{define "content"}}.
	base := template.New("").Funcs(templateFuncs())
	base = template.Must(base.ParseFS(templateFS, "templates/layout.html", "templates/partials/*.html"))

	pages := []string{
		"templates/login.html",
		"templates/inventory.html",
	}
	tmpls := make(map[string]*template.Template, len(pages))
	for _, p := range pages {
		clone := template.Must(base.Clone())
		clone = template.Must(clone.ParseFS(templateFS, p))
		name := p[len("templates/"):]
		tmpls[name] = clone
	}

	commitTopic := ""
	if d.Config.Messaging.Enabled {
		commitTopic = d.Config.Messaging.CommitsTopic
	}

	h := &Handlers{
		db:          d.DB,
		events:      d.Events,
		sessions:    sessionStore,
		tmpls:       tmpls,
		eventHub:    hub,
		passHash:    d.Config.Web.PasswordHash,
		commitTopic: commitTopic,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	// Static files
	staticSub, _ := fs.Sub(staticFS, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	// Public routes
	r.Get("/", h.handleHome)
	r.Get("/login", h.handleLoginPage)
	r.Post("/login", h.handleLogin)
	r.Get("/api/health", h.apiHealthCheck)

	// Everything that touches the catalog sits behind the shared
	// password, like the original deployment.
	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Get("/inventory", h.handleInventoryPage)
		r.Post("/logout", h.handleLogout)
		r.Get("/events", hub.SSEHandler)

		// HTMX fragment endpoints
		r.Get("/api/inventory/search", h.handleSearchFragment)
		r.Get("/api/inventory/categories", h.handleCategoryOptions)
		r.Get("/api/inventory/footprints", h.handleFootprintOptions)
		r.Post("/api/inventory/stage", h.handleStage)
		r.Post("/api/inventory/unstage", h.handleUnstage)
		r.Post("/api/inventory/commit", h.handleCommit)

		// JSON api for scripted access
		r.Get("/api/items", h.apiItems)
		r.Get("/api/categories", h.apiCategories)
		r.Get("/api/footprints", h.apiFootprints)
	})

	stopFn := func() {
		hub.Stop()
	}

	return r, stopFn
}

func (h *Handlers) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := h.tmpls[name]
	if !ok {
		log.Printf("render: template %q not found", name)
		http.Error(w, "template not found", http.StatusInternalServerError)
		return
	}
	if err := tmpl.ExecuteTemplate(w, "layout", data); err != nil {
		log.Printf("render %s: %v", name, err)
		http.Error(w, "template error", http.StatusInternalServerError)
	}
}

func (h *Handlers) handleHome(w http.ResponseWriter, r *http.Request) {
	if h.isAuthenticated(r) {
		http.Redirect(w, r, "/inventory", http.StatusSeeOther)
		return
	}
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *Handlers) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, "login.html", map[string]any{"Page": "login"})
}

const loginFailedFragment = `<div class="alert alert-danger" role="alert"><strong>You shall not pass!</strong></div>`

// handleLogin is an HTMX endpoint: success redirects the whole page
// via HX-Redirect, failure swaps in an inline alert.
func (h *Handlers) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}

	if !checkPassword(h.passHash, r.FormValue("password")) {
		w.Write([]byte(loginFailedFragment))
		return
	}

	session, _ := h.sessions.Get(r, sessionName)
	session.Values["authenticated"] = true
	if err := session.Save(r, w); err != nil {
		log.Printf("auth: session save error: %v", err)
	}
	w.Header().Set("HX-Redirect", "/inventory")
}

func (h *Handlers) handleLogout(w http.ResponseWriter, r *http.Request) {
	session, _ := h.sessions.Get(r, sessionName)
	session.Values["authenticated"] = false
	session.Save(r, w)
	w.Header().Set("HX-Redirect", "/login")
}
