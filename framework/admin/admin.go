// Package admin exposes a singleton registry over HTTP: what is cached, who
// depends on whom, the alias table, and the lifecycle state.
//
//	GET    /singletons           names + count, ?prefix= narrows the list
//	GET    /singletons/{name}    state, dependents, dependencies, aliases
//	DELETE /singletons/{name}    destroy one singleton and its dependents
//	GET    /aliases/{name}       canonical name and aliases
//	POST   /aliases              {"name": "...", "alias": "..."}
//	GET    /lifecycle            active | draining | drained
//	POST   /lifecycle/drain      destroy everything
package admin

import (
	stderrors "errors"
	"net/http"
	"slices"
	"strings"

	"github.com/jmgilman/go/errors"
	"github.com/sirupsen/logrus"

	"github.com/km-arc/go-container/framework/alias"
	gohttp "github.com/km-arc/go-container/framework/http"
	"github.com/km-arc/go-container/framework/http/validation"
	"github.com/km-arc/go-container/framework/routing"
	"github.com/km-arc/go-container/framework/singleton"
)

// Singleton states reported by GET /singletons/{name}.
const (
	StateFinished   = "finished"
	StateInCreation = "in-creation"
	StateAbsent     = "absent"
)

// aliasRules validates POST /aliases bodies.
var aliasRules = validation.Rules{
	"name":  "required|name|max:255",
	"alias": "required|name|max:255|different:name",
}

// Handler serves the admin API for one registry.
type Handler struct {
	registry *singleton.Registry
}

// New creates a Handler for registry.
func New(registry *singleton.Registry) *Handler {
	return &Handler{registry: registry}
}

// NewRouter returns a router with every admin route mounted at the root.
func NewRouter(logger logrus.FieldLogger, registry *singleton.Registry) *routing.Router {
	r := routing.New(logger)
	New(registry).Routes(r)
	return r
}

// Routes mounts the admin routes on r.
func (h *Handler) Routes(r *routing.Router) {
	r.Get("/singletons", h.listSingletons)
	r.Get("/singletons/{name}", h.showSingleton)
	r.Delete("/singletons/{name}", h.destroySingleton)
	r.Get("/aliases/{name}", h.showAlias)
	r.Post("/aliases", h.storeAlias)
	r.Get("/lifecycle", h.lifecycle)
	r.Post("/lifecycle/drain", h.drain)
}

// ── Singletons ────────────────────────────────────────────────────────────────

// SingletonView is the JSON shape of GET /singletons/{name}.
type SingletonView struct {
	Name         string   `json:"name"`
	State        string   `json:"state"`
	Dependents   []string `json:"dependents"`
	Dependencies []string `json:"dependencies"`
	Aliases      []string `json:"aliases"`
}

func (h *Handler) listSingletons(w http.ResponseWriter, r *http.Request) {
	names := h.registry.Names()
	if prefix := gohttp.NewRequest(r).Query("prefix"); prefix != "" {
		names = slices.DeleteFunc(names, func(n string) bool { return !strings.HasPrefix(n, prefix) })
	}
	gohttp.NewResponse(w).Success(map[string]any{
		"names": names,
		"count": len(names),
	})
}

func (h *Handler) showSingleton(w http.ResponseWriter, r *http.Request) {
	name := h.registry.CanonicalName(gohttp.NewRequest(r).RouteParam("name"))

	gohttp.NewResponse(w).Success(SingletonView{
		Name:         name,
		State:        h.stateOf(name),
		Dependents:   nonNil(h.registry.DependentsOf(name)),
		Dependencies: nonNil(h.registry.DependenciesOf(name)),
		Aliases:      nonNil(h.registry.Aliases(name)),
	})
}

func (h *Handler) destroySingleton(w http.ResponseWriter, r *http.Request) {
	res := gohttp.NewResponse(w)
	name := h.registry.CanonicalName(gohttp.NewRequest(r).RouteParam("name"))

	if !h.registry.Contains(name) {
		res.Fail(errors.Newf(errors.CodeNotFound, "no finished singleton named %q", name))
		return
	}

	h.registry.DestroySingle(name)
	routing.Logger(r.Context()).WithField("singleton", name).Info("singleton destroyed")
	res.NoContent()
}

func (h *Handler) stateOf(name string) string {
	switch {
	case h.registry.Contains(name):
		return StateFinished
	case h.registry.IsCurrentlyInCreation(name):
		return StateInCreation
	default:
		return StateAbsent
	}
}

// ── Aliases ───────────────────────────────────────────────────────────────────

// AliasRequest is the body of POST /aliases.
type AliasRequest struct {
	Name  string `json:"name"`
	Alias string `json:"alias"`
}

func (h *Handler) showAlias(w http.ResponseWriter, r *http.Request) {
	name := gohttp.NewRequest(r).RouteParam("name")
	canonical := h.registry.CanonicalName(name)

	gohttp.NewResponse(w).Success(map[string]any{
		"name":      name,
		"canonical": canonical,
		"aliases":   nonNil(h.registry.Aliases(canonical)),
	})
}

func (h *Handler) storeAlias(w http.ResponseWriter, r *http.Request) {
	req, res := gohttp.NewRequest(r), gohttp.NewResponse(w)

	var body AliasRequest
	if err := req.Bind(&body); err != nil {
		res.Fail(errors.Wrap(err, errors.CodeInvalidInput, "malformed alias request"))
		return
	}

	v := validation.Make(map[string]string{"name": body.Name, "alias": body.Alias}, aliasRules)
	if v.Fails() {
		res.ValidationError(v.Errors())
		return
	}

	if err := h.registry.RegisterAlias(body.Name, body.Alias); err != nil {
		res.Fail(aliasError(err))
		return
	}

	routing.Logger(r.Context()).WithFields(logrus.Fields{
		"name":  body.Name,
		"alias": body.Alias,
	}).Info("alias registered")
	res.Created(body)
}

func aliasError(err error) error {
	switch {
	case stderrors.Is(err, alias.ErrAliasConflict):
		return errors.Wrap(err, errors.CodeConflict, err.Error())
	case stderrors.Is(err, alias.ErrEmptyName):
		return errors.Wrap(err, errors.CodeInvalidInput, err.Error())
	default:
		return errors.Wrap(err, errors.CodeInternal, "alias registration failed")
	}
}

// ── Lifecycle ─────────────────────────────────────────────────────────────────

func (h *Handler) lifecycle(w http.ResponseWriter, r *http.Request) {
	gohttp.NewResponse(w).Success(map[string]any{
		"id":         h.registry.ID(),
		"state":      h.registry.State().String(),
		"singletons": h.registry.Count(),
	})
}

// drain runs synchronously; the request context bounds the wait for
// constructions still in flight.
func (h *Handler) drain(w http.ResponseWriter, r *http.Request) {
	res := gohttp.NewResponse(w)
	if h.registry.State() != singleton.Active {
		res.Fail(errors.Newf(errors.CodeConflict, "registry is already %s", h.registry.State()))
		return
	}

	routing.Logger(r.Context()).Warn("drain requested over admin API")
	h.registry.Drain(r.Context())
	res.Success(map[string]any{"state": h.registry.State().String()})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
