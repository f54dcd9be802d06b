// Package plugin provides the plugin system for Treeline.
//
// Plugins are Lua scripts that extend the host with sidebar sections,
// views, and commands, and that read or write finance data through a
// permission-gated SQL surface. Every plugin declares its table scopes
// in a manifest; the host enforces them on each statement, so plugin
// code is treated as untrusted throughout.
//
// # Quick Start
//
//	loader := plugin.NewLoader(pluginDir)
//	manager := plugin.NewManager(loader, plugin.Deps{
//	    Engine:   engine,
//	    Store:    store,
//	    Bus:      bus,
//	    Registry: reg,
//	    Theme:    theme,
//	    Platform: shortcut.Detect(),
//	    Currency: currency.NewFormatter("USD"),
//	    Logger:   logger,
//	})
//	if err := manager.AddDiscovered(); err != nil {
//	    log.Printf("some plugins failed discovery: %v", err)
//	}
//	_ = manager.ActivateAll(ctx)
//	defer manager.DeactivateAll()
//
// # Plugin Structure
//
// Directory plugin:
//
//	plugins/goals/
//	    plugin.json    manifest: id, name, version, permissions
//	    main.lua       entry point
//
// Single-file plugin (no manifest, no permissions):
//
//	plugins/scratch.lua
//
// # Manifest
//
//	{
//	  "id": "goals",
//	  "name": "Savings Goals",
//	  "version": "1.0.0",
//	  "permissions": {
//	    "tables": {
//	      "read": ["transactions", "accounts"],
//	      "write": ["sys_plugin_goals_items"],
//	      "create": ["sys_plugin_goals_items"]
//	    }
//	  }
//	}
//
// Every create entry must live in the plugin's own sys_plugin_{id}_*
// namespace; a manifest violating that fails activation before any
// plugin code runs.
//
// # Script Surface
//
// Scripts receive the host API as the tl global (also require("tl")):
//
//	function activate()
//	  tl.sidebar.section{id = "goals", title = "Goals", order = 10}
//	  tl.view.register{id = "overview", title = "Goals", on_open = render}
//	  local rows = tl.sql.query("SELECT * FROM transactions")
//	  tl.refresh.on(function() tl.badge.update(#rows) end)
//	end
//
//	function deactivate()
//	end
//
// Both lifecycle functions are optional. Deactivation always unwinds the
// plugin's registrations and subscriptions even when its deactivate
// function fails or is absent.
package plugin
