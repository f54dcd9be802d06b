package lua

import (
	"context"
	"log/slog"

	lua "github.com/yuin/gopher-lua"

	"github.com/treelinehq/treeline/internal/currency"
	"github.com/treelinehq/treeline/internal/registry"
	"github.com/treelinehq/treeline/internal/sdk"
)

// Binder installs the tl module into a plugin's runtime. Every host
// capability a script can touch goes through the bound SDK, which owns
// permission checks and plugin-id scoping.
type Binder struct {
	runtime *Runtime
	sdk     *sdk.SDK
	logger  *slog.Logger
}

// NewBinder prepares a binder for one plugin's runtime and SDK pair.
func NewBinder(runtime *Runtime, s *sdk.SDK, logger *slog.Logger) *Binder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Binder{runtime: runtime, sdk: s, logger: logger}
}

// Bind constructs the tl table and exposes it both as a global and via
// require("tl").
func (b *Binder) Bind() {
	L := b.runtime.State()

	tl := L.NewTable()
	tl.RawSetString("sql", b.sqlTable(L))
	tl.RawSetString("toast", b.toastTable(L))
	tl.RawSetString("view", b.viewTable(L))
	tl.RawSetString("sidebar", b.sidebarTable(L))
	tl.RawSetString("command", b.commandTable(L))
	tl.RawSetString("refresh", b.refreshTable(L))
	tl.RawSetString("badge", b.badgeTable(L))
	tl.RawSetString("theme", b.themeTable(L))
	tl.RawSetString("settings", b.settingsTable(L))
	tl.RawSetString("state", b.stateTable(L))
	tl.RawSetString("currency", b.currencyTable(L))
	tl.RawSetString("shortcut", b.shortcutTable(L))

	L.SetGlobal("tl", tl)
	b.runtime.Preload("tl", tl)
}

func (b *Binder) sqlTable(L *lua.LState) *lua.LTable {
	tbl := L.NewTable()
	L.SetFuncs(tbl, map[string]lua.LGFunction{
		// query(sql) -> rows table. Raises on permission denial.
		"query": func(L *lua.LState) int {
			query := L.CheckString(1)
			rows, err := b.sdk.Query(context.Background(), query)
			if err != nil {
				L.RaiseError("%s", err.Error())
				return 0
			}
			L.Push(ToLuaValue(L, rows))
			return 1
		},
		// execute(sql) -> affected row count. Raises on permission denial.
		"execute": func(L *lua.LState) int {
			stmt := L.CheckString(1)
			affected, err := b.sdk.Execute(context.Background(), stmt)
			if err != nil {
				L.RaiseError("%s", err.Error())
				return 0
			}
			L.Push(lua.LNumber(affected))
			return 1
		},
	})
	return tbl
}

func (b *Binder) toastTable(L *lua.LState) *lua.LTable {
	toast := func(level sdk.ToastLevel) lua.LGFunction {
		return func(L *lua.LState) int {
			message := L.CheckString(1)
			description := L.OptString(2, "")
			b.sdk.Toast(level, message, description)
			return 0
		}
	}
	tbl := L.NewTable()
	L.SetFuncs(tbl, map[string]lua.LGFunction{
		"info":    toast(sdk.ToastInfo),
		"success": toast(sdk.ToastSuccess),
		"warning": toast(sdk.ToastWarning),
		"error":   toast(sdk.ToastError),
		// show(level, message[, description])
		"show": func(L *lua.LState) int {
			level := sdk.ToastLevel(L.CheckString(1))
			switch level {
			case sdk.ToastInfo, sdk.ToastSuccess, sdk.ToastWarning, sdk.ToastError:
			default:
				L.RaiseError("unknown toast level %q", string(level))
				return 0
			}
			message := L.CheckString(2)
			description := L.OptString(3, "")
			b.sdk.Toast(level, message, description)
			return 0
		},
	})
	return tbl
}

func (b *Binder) viewTable(L *lua.LState) *lua.LTable {
	tbl := L.NewTable()
	L.SetFuncs(tbl, map[string]lua.LGFunction{
		// register{id=, title=, on_open=fn}
		"register": func(L *lua.LState) int {
			spec := L.CheckTable(1)
			onOpen := spec.RawGetString("on_open")

			view := registry.ViewDefinition{
				ID:    fieldString(spec, "id"),
				Title: fieldString(spec, "title"),
			}
			if onOpen.Type() == lua.LTFunction {
				view.OnOpen = b.luaCallbackProps(onOpen)
			}
			if err := b.sdk.RegisterView(view); err != nil {
				L.RaiseError("%s", err.Error())
			}
			return 0
		},
		// open(id[, props])
		"open": func(L *lua.LState) int {
			id := L.CheckString(1)
			var props map[string]any
			if L.GetTop() >= 2 {
				if m, ok := ToGoValue(L.CheckTable(2)).(map[string]any); ok {
					props = m
				}
			}
			if err := b.sdk.OpenView(id, props); err != nil {
				L.RaiseError("%s", err.Error())
			}
			return 0
		},
	})
	return tbl
}

func (b *Binder) sidebarTable(L *lua.LState) *lua.LTable {
	tbl := L.NewTable()
	L.SetFuncs(tbl, map[string]lua.LGFunction{
		// section{id=, title=, order=}
		"section": func(L *lua.LState) int {
			spec := L.CheckTable(1)
			section := registry.SidebarSection{
				ID:    fieldString(spec, "id"),
				Title: fieldString(spec, "title"),
				Order: fieldInt(spec, "order"),
			}
			if err := b.sdk.RegisterSidebarSection(section); err != nil {
				L.RaiseError("%s", err.Error())
			}
			return 0
		},
		// item{id=, section=, title=, icon=, view=}
		"item": func(L *lua.LState) int {
			spec := L.CheckTable(1)
			item := registry.SidebarItem{
				ID:        fieldString(spec, "id"),
				SectionID: fieldString(spec, "section"),
				Title:     fieldString(spec, "title"),
				Icon:      fieldString(spec, "icon"),
				ViewID:    fieldString(spec, "view"),
			}
			if err := b.sdk.RegisterSidebarItem(item); err != nil {
				L.RaiseError("%s", err.Error())
			}
			return 0
		},
	})
	return tbl
}

func (b *Binder) commandTable(L *lua.LState) *lua.LTable {
	tbl := L.NewTable()
	L.SetFuncs(tbl, map[string]lua.LGFunction{
		// register{id=, title=, shortcut=, run=fn}
		"register": func(L *lua.LState) int {
			spec := L.CheckTable(1)
			run := spec.RawGetString("run")

			cmd := registry.Command{
				ID:       fieldString(spec, "id"),
				Title:    fieldString(spec, "title"),
				Shortcut: fieldString(spec, "shortcut"),
			}
			if run.Type() == lua.LTFunction {
				cmd.Run = b.luaCallback0(run)
			}
			if err := b.sdk.RegisterCommand(cmd); err != nil {
				L.RaiseError("%s", err.Error())
			}
			return 0
		},
	})
	return tbl
}

func (b *Binder) refreshTable(L *lua.LState) *lua.LTable {
	tbl := L.NewTable()
	L.SetFuncs(tbl, map[string]lua.LGFunction{
		// on(fn) -> unsubscribe()
		"on": func(L *lua.LState) int {
			fn := L.CheckFunction(1)
			unsub := b.sdk.OnDataRefresh(b.luaCallback0(fn))
			L.Push(L.NewFunction(func(L *lua.LState) int {
				unsub()
				return 0
			}))
			return 1
		},
		"emit": func(L *lua.LState) int {
			b.sdk.EmitDataRefresh()
			return 0
		},
	})
	return tbl
}

func (b *Binder) badgeTable(L *lua.LState) *lua.LTable {
	tbl := L.NewTable()
	L.SetFuncs(tbl, map[string]lua.LGFunction{
		// update(count), update(nil) clears
		"update": func(L *lua.LState) int {
			if L.Get(1) == lua.LNil {
				b.sdk.UpdateBadge(nil)
				return 0
			}
			count := L.CheckInt(1)
			b.sdk.UpdateBadge(&count)
			return 0
		},
	})
	return tbl
}

func (b *Binder) themeTable(L *lua.LState) *lua.LTable {
	tbl := L.NewTable()
	L.SetFuncs(tbl, map[string]lua.LGFunction{
		"current": func(L *lua.LState) int {
			L.Push(lua.LString(b.sdk.ThemeCurrent()))
			return 1
		},
		// on_change(fn) -> unsubscribe()
		"on_change": func(L *lua.LState) int {
			fn := L.CheckFunction(1)
			unsub := b.sdk.ThemeSubscribe(func(theme sdk.Theme) {
				if err := b.runtime.Call(fn, lua.LString(theme)); err != nil {
					b.logger.Error("theme callback failed",
						"plugin", b.sdk.PluginID(), "error", err)
				}
			})
			L.Push(L.NewFunction(func(L *lua.LState) int {
				unsub()
				return 0
			}))
			return 1
		},
	})
	return tbl
}

func (b *Binder) settingsTable(L *lua.LState) *lua.LTable {
	tbl := L.NewTable()
	L.SetFuncs(tbl, map[string]lua.LGFunction{
		"get": func(L *lua.LState) int {
			var settings map[string]any
			if err := b.sdk.Settings(&settings); err != nil {
				L.RaiseError("%s", err.Error())
				return 0
			}
			L.Push(ToLuaValue(L, settings))
			return 1
		},
		"set": func(L *lua.LState) int {
			value := ToGoValue(L.CheckTable(1))
			if err := b.sdk.SaveSettings(value); err != nil {
				L.RaiseError("%s", err.Error())
			}
			return 0
		},
		"get_field": func(L *lua.LState) int {
			path := L.CheckString(1)
			result, err := b.sdk.SettingsField(path)
			if err != nil {
				L.RaiseError("%s", err.Error())
				return 0
			}
			L.Push(ToLuaValue(L, result.Value()))
			return 1
		},
		"set_field": func(L *lua.LState) int {
			path := L.CheckString(1)
			value := ToGoValue(L.Get(2))
			if err := b.sdk.SetSettingsField(path, value); err != nil {
				L.RaiseError("%s", err.Error())
			}
			return 0
		},
	})
	return tbl
}

func (b *Binder) stateTable(L *lua.LState) *lua.LTable {
	tbl := L.NewTable()
	L.SetFuncs(tbl, map[string]lua.LGFunction{
		// get() -> value|nil
		"get": func(L *lua.LState) int {
			var state any
			ok, err := b.sdk.State(&state)
			if err != nil {
				L.RaiseError("%s", err.Error())
				return 0
			}
			if !ok {
				L.Push(lua.LNil)
				return 1
			}
			L.Push(ToLuaValue(L, state))
			return 1
		},
		"set": func(L *lua.LState) int {
			value := ToGoValue(L.Get(1))
			if err := b.sdk.SaveState(value); err != nil {
				L.RaiseError("%s", err.Error())
			}
			return 0
		},
	})
	return tbl
}

func (b *Binder) currencyTable(L *lua.LState) *lua.LTable {
	format := b.sdk.Currency()
	tbl := L.NewTable()
	L.SetFuncs(tbl, map[string]lua.LGFunction{
		"format": func(L *lua.LState) int {
			L.Push(lua.LString(format.Format(float64(L.CheckNumber(1)))))
			return 1
		},
		"format_compact": func(L *lua.LState) int {
			L.Push(lua.LString(format.FormatCompact(float64(L.CheckNumber(1)))))
			return 1
		},
		// format_amount(n) -> grouped number without the currency symbol
		"format_amount": func(L *lua.LState) int {
			L.Push(lua.LString(format.FormatAmount(float64(L.CheckNumber(1)))))
			return 1
		},
		"supported": func(L *lua.LState) int {
			codes := L.NewTable()
			for _, code := range currency.SupportedCurrencies() {
				codes.Append(lua.LString(code))
			}
			L.Push(codes)
			return 1
		},
		"symbol": func(L *lua.LState) int {
			L.Push(lua.LString(format.Symbol()))
			return 1
		},
		"code": func(L *lua.LState) int {
			L.Push(lua.LString(format.UserCurrency()))
			return 1
		},
	})
	return tbl
}

func (b *Binder) shortcutTable(L *lua.LState) *lua.LTable {
	tbl := L.NewTable()
	L.SetFuncs(tbl, map[string]lua.LGFunction{
		"mod": func(L *lua.LState) int {
			L.Push(lua.LString(b.sdk.ModKey()))
			return 1
		},
		"format": func(L *lua.LState) int {
			L.Push(lua.LString(b.sdk.FormatShortcut(L.CheckString(1))))
			return 1
		},
	})
	return tbl
}

func fieldString(tbl *lua.LTable, key string) string {
	if v, ok := tbl.RawGetString(key).(lua.LString); ok {
		return string(v)
	}
	return ""
}

func fieldInt(tbl *lua.LTable, key string) int {
	if v, ok := tbl.RawGetString(key).(lua.LNumber); ok {
		return int(v)
	}
	return 0
}

// luaCallback0 adapts a Lua function into a no-argument Go callback.
// Delivery failures are logged; hosts never see a script error here.
func (b *Binder) luaCallback0(fn lua.LValue) func() {
	return func() {
		if err := b.runtime.Call(fn); err != nil {
			b.logger.Error("plugin callback failed",
				"plugin", b.sdk.PluginID(), "error", err)
		}
	}
}

// luaCallbackProps adapts a Lua function into a view-open callback that
// receives the props table.
func (b *Binder) luaCallbackProps(fn lua.LValue) func(map[string]any) {
	return func(props map[string]any) {
		err := b.runtime.CallWith(fn, func(L *lua.LState) []lua.LValue {
			return []lua.LValue{ToLuaValue(L, props)}
		})
		if err != nil {
			b.logger.Error("plugin callback failed",
				"plugin", b.sdk.PluginID(), "error", err)
		}
	}
}
