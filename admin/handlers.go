package admin

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/switchyard/errors"
	"github.com/kbukum/switchyard/logger"
	"github.com/kbukum/switchyard/observability"
	"github.com/kbukum/switchyard/plugin"
	"github.com/kbukum/switchyard/provider"
	"github.com/kbukum/switchyard/version"
)

// ContractView summarizes one contract.
type ContractView struct {
	Name          string                `json:"name"`
	Strategy      provider.StrategyKind `json:"strategy"`
	Registrations int                   `json:"registrations"`
	Active        int                   `json:"active"`
}

// RegistrationView is the JSON form of a registration.
type RegistrationView struct {
	ID           provider.RegistrationID `json:"id"`
	ProviderID   string                  `json:"provider_id"`
	Priority     provider.Priority       `json:"priority"`
	Platform     string                  `json:"platform"`
	Tags         []string                `json:"tags,omitempty"`
	Metadata     map[string]any          `json:"metadata,omitempty"`
	Active       bool                    `json:"active"`
	RegisteredAt int64                   `json:"registered_at"`
}

func registrationView(r provider.Registration) RegistrationView {
	caps := r.Capabilities()
	return RegistrationView{
		ID:           r.ID(),
		ProviderID:   caps.ProviderID(),
		Priority:     caps.Priority(),
		Platform:     caps.Platform(),
		Tags:         caps.Tags(),
		Metadata:     caps.Metadata(),
		Active:       r.Active(),
		RegisteredAt: caps.RegisteredAt(),
	}
}

// LoadRequest is the body of POST /v1/plugins. Exactly one of Path and
// Descriptor is set.
type LoadRequest struct {
	// Path is a descriptor file on the server.
	Path       string             `json:"path,omitempty"`
	Descriptor *plugin.Descriptor `json:"descriptor,omitempty"`
	Activate   bool               `json:"activate,omitempty"`
}

// UnloadResponse is the body of DELETE /v1/plugins/:id. Error is set when
// the plugin failed to deactivate cleanly; it is unloaded regardless.
type UnloadResponse struct {
	ID       string `json:"id"`
	Unloaded bool   `json:"unloaded"`
	Error    string `json:"error,omitempty"`
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/version", s.handleVersion)

	v1 := s.engine.Group("/v1")
	if s.tokens != nil {
		v1.Use(bearerAuth(s.tokens))
	}
	v1.Use(requireJSON())
	v1.GET("/contracts", s.listContracts)
	v1.GET("/contracts/:name/registrations", s.listRegistrations)
	v1.GET("/cache/stats", s.cacheStats)

	plugins := v1.Group("/plugins", s.requireHost)
	plugins.GET("", s.listPlugins)
	plugins.POST("", s.loadPlugin)
	plugins.GET("/:id", s.getPlugin)
	plugins.POST("/:id/activate", s.activatePlugin)
	plugins.POST("/:id/deactivate", s.deactivatePlugin)
	plugins.POST("/:id/reload", s.reloadPlugin)
	plugins.DELETE("/:id", s.unloadPlugin)
}

func (s *Server) handleHealth(c *gin.Context) {
	if s.health == nil {
		h := s.Health(c.Request.Context())
		h.Status = observability.HealthStatusUp
		c.JSON(http.StatusOK, h)
		return
	}
	sh := s.health(c.Request.Context())
	status := http.StatusOK
	if !sh.Status.Serving() {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, sh)
}

func (s *Server) handleVersion(c *gin.Context) {
	c.JSON(http.StatusOK, version.GetVersionInfo())
}

func (s *Server) listContracts(c *gin.Context) {
	factory := s.registry.Factory()
	contracts := s.registry.Contracts()
	out := make([]ContractView, 0, len(contracts))
	for _, contract := range contracts {
		regs := s.registry.Registrations(contract)
		active := 0
		for _, r := range regs {
			if r.Active() {
				active++
			}
		}
		out = append(out, ContractView{
			Name:          contract.String(),
			Strategy:      factory.KindFor(contract),
			Registrations: len(regs),
			Active:        active,
		})
	}
	respondOK(c, out)
}

func (s *Server) listRegistrations(c *gin.Context) {
	name := c.Param("name")
	matches := s.registry.LookupAll(name)
	switch len(matches) {
	case 0:
		respondError(c, errors.NotRegistered(name))
		return
	case 1:
	default:
		respondError(c, errors.InvalidInput("name", fmt.Sprintf("%d contracts are named %q", len(matches), name)))
		return
	}
	regs := s.registry.Registrations(matches[0])
	out := make([]RegistrationView, len(regs))
	for i, r := range regs {
		out[i] = registrationView(r)
	}
	respondOK(c, out)
}

func (s *Server) cacheStats(c *gin.Context) {
	respondOK(c, s.registry.Cache().Stats())
}

func (s *Server) requireHost(c *gin.Context) {
	if s.host == nil {
		abortWithError(c, errors.ServiceUnavailable("plugin host"))
		return
	}
	c.Next()
}

func (s *Server) listPlugins(c *gin.Context) {
	handles := s.host.List()
	out := make([]plugin.Info, len(handles))
	for i, hd := range handles {
		out[i] = hd.Info()
	}
	respondOK(c, out)
}

func (s *Server) getPlugin(c *gin.Context) {
	hd, ok := s.host.Get(c.Param("id"))
	if !ok {
		respondError(c, errors.PluginNotFound(c.Param("id")))
		return
	}
	respondOK(c, hd.Info())
}

func (s *Server) loadPlugin(c *gin.Context) {
	var req LoadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, errors.InvalidInput("body", err.Error()))
		return
	}

	root, err := plugin.ResolveRoot(s.host.Dir())
	if err != nil {
		respondError(c, errors.Forbidden("Loading plugins over the API requires a plugin directory."))
		return
	}

	var desc plugin.Descriptor
	switch {
	case req.Path != "" && req.Descriptor != nil:
		respondError(c, errors.InvalidInput("body", "set either path or descriptor, not both"))
		return
	case req.Path != "":
		if err := plugin.PathWithin(root, req.Path); err != nil {
			respondError(c, errors.Forbidden("The descriptor must be inside the plugin directory.").WithCause(err))
			return
		}
		d, err := plugin.LoadDescriptor(req.Path)
		if err != nil {
			if _, ok := errors.AsAppError(err); !ok {
				err = errors.InvalidInput("path", err.Error())
			}
			respondError(c, err)
			return
		}
		desc = d
	case req.Descriptor != nil:
		if s.tokens == nil {
			respondError(c, errors.Forbidden("Inline descriptors require admin authentication."))
			return
		}
		desc = *req.Descriptor
		// Source is only trusted when read from disk.
		desc.Source = ""
	default:
		respondError(c, errors.InvalidInput("body", "path or descriptor is required"))
		return
	}

	if err := desc.Within(root); err != nil {
		respondError(c, errors.Forbidden("Plugin files must be inside the plugin directory.").WithCause(err))
		return
	}
	if desc.Runtime() == plugin.RuntimeProcess && s.tokens == nil {
		respondError(c, errors.Forbidden("Process plugins can only be loaded with admin authentication."))
		return
	}

	ctx := c.Request.Context()
	hd, err := s.host.Load(ctx, desc)
	if err != nil {
		respondError(c, err)
		return
	}
	if req.Activate {
		if err := s.host.Activate(ctx, hd.ID()); err != nil {
			respondError(c, err)
			return
		}
	}
	s.audit(c, "load", hd.ID())
	respondCreated(c, hd.Info())
}

func (s *Server) activatePlugin(c *gin.Context) {
	s.transition(c, "activate", s.host.Activate)
}

func (s *Server) deactivatePlugin(c *gin.Context) {
	s.transition(c, "deactivate", s.host.Deactivate)
}

func (s *Server) transition(c *gin.Context, op string, fn func(ctx context.Context, id string) error) {
	id := c.Param("id")
	if err := fn(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	hd, ok := s.host.Get(id)
	if !ok {
		respondError(c, errors.PluginNotFound(id))
		return
	}
	s.audit(c, op, id)
	respondOK(c, hd.Info())
}

func (s *Server) reloadPlugin(c *gin.Context) {
	id := c.Param("id")
	hd, err := s.host.Reload(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	s.audit(c, "reload", id)
	respondOK(c, hd.Info())
}

func (s *Server) unloadPlugin(c *gin.Context) {
	id := c.Param("id")
	unloaded, err := s.host.Unload(c.Request.Context(), id)
	if !unloaded {
		if err == nil {
			err = errors.PluginNotFound(id)
		}
		respondError(c, err)
		return
	}
	resp := UnloadResponse{ID: id, Unloaded: true}
	if err != nil {
		resp.Error = err.Error()
	}
	s.audit(c, "unload", id)
	respondOK(c, resp)
}

// audit logs a mutating request together with the token subject.
func (s *Server) audit(c *gin.Context, op, id string) {
	s.log.Info("admin plugin operation", logger.Fields(
		logger.FieldOperation, op,
		logger.FieldPlugin, id,
		ctxSubject, c.GetString(ctxSubject),
		ctxRequestID, c.GetString(ctxRequestID),
	))
}
