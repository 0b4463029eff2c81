package plugin

import (
	"github.com/kbukum/switchyard/logger"
	"github.com/kbukum/switchyard/provider"
)

// Context is handed to a plugin on activation. Registrations made through
// it are owned by the plugin and follow its lifecycle.
type Context struct {
	handle   *Handle
	registry *provider.Registry
	log      *logger.Logger
}

func (c *Context) ID() string                { return c.handle.ID() }
func (c *Context) Descriptor() Descriptor    { return c.handle.Descriptor() }
func (c *Context) LoadContext() *LoadContext { return c.handle.lc }
func (c *Context) Logger() *logger.Logger    { return c.log }

// Register registers p for contract on behalf of the plugin. When the
// plugin already registered caps.ProviderID() for contract on an earlier
// activation, that registration is re-enabled and its id returned.
func (c *Context) Register(contract provider.Contract, p any, caps provider.Capabilities) (provider.RegistrationID, error) {
	if id, ok := c.handle.trackedRegistration(contract, caps.ProviderID()); ok {
		if c.registry.SetActive(id, true) {
			return id, nil
		}
		c.handle.untrack(id)
	}

	id, err := c.registry.Register(contract, p, caps)
	if err != nil {
		return "", err
	}
	c.handle.track(contract, caps.ProviderID(), id)
	c.log.Debug("plugin registered provider", logger.Fields(
		logger.FieldPlugin, c.handle.ID(),
		logger.FieldContract, contract.String(),
		logger.FieldProvider, caps.ProviderID(),
	))
	return id, nil
}

// Register registers p for the contract of C on behalf of the plugin.
func Register[C any](pc *Context, p C, caps provider.Capabilities) (provider.RegistrationID, error) {
	return pc.Register(provider.ContractOf[C](), p, caps)
}
