package core

import "github.com/nookure/nookcore/core/plugin"

type (
	Plugin          = plugin.Plugin
	VersionedPlugin = plugin.VersionedPlugin
	DescribedPlugin = plugin.DescribedPlugin
	PluginFactory   = plugin.PluginFactory[*Core, Config]
	PluginInfo      = plugin.Info
	PluginAPI       = plugin.API[*Core, Config]
)

var (
	ErrPluginsDisabled     = plugin.ErrDisabled
	ErrPluginAlreadyLoaded = plugin.ErrAlreadyLoaded
	ErrPluginNameConflict  = plugin.ErrNameConflict
	ErrPluginNotFound      = plugin.ErrNotFound
)
