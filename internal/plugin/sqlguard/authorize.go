package sqlguard

import (
	"fmt"

	"github.com/treelinehq/treeline/internal/plugin/permission"
)

// Kind names the permission a denied statement required.
type Kind string

// Permission kinds reported by denial errors.
const (
	KindRead   Kind = "read"
	KindWrite  Kind = "write"
	KindCreate Kind = "create"
	KindParse  Kind = "parse"
)

// PermissionDeniedError is a call-time denial. The host stays up; the
// caller receives the offending table and the permission kind that would
// have been required, precise enough to render a diagnostic or assert on.
type PermissionDeniedError struct {
	PluginID string
	Table    string
	Kind     Kind
	Reason   string
}

func (e *PermissionDeniedError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("plugin %q: permission denied: table %q requires %s permission", e.PluginID, e.Table, e.Kind)
	}
	return fmt.Sprintf("plugin %q: permission denied: %s", e.PluginID, e.Reason)
}

// AuthorizeQuery gates the read path. The statement must classify as a
// pure SELECT with no write or DDL verb anywhere (CTE bodies included),
// and every referenced table must be in the grant's read set.
// Classification failure is a denial, never a pass-through.
func AuthorizeQuery(grant *permission.Grant, sql string) error {
	stmt, err := Classify(sql)
	if err != nil {
		return &PermissionDeniedError{
			PluginID: grant.PluginID(),
			Kind:     KindParse,
			Reason:   err.Error(),
		}
	}

	if stmt.Op != OpSelect || stmt.HasWriteVerb() {
		return &PermissionDeniedError{
			PluginID: grant.PluginID(),
			Kind:     KindWrite,
			Reason:   fmt.Sprintf("%s is not allowed on the query path", stmt.Op),
		}
	}

	for _, table := range stmt.Tables {
		if !grant.CanRead(table) {
			return &PermissionDeniedError{
				PluginID: grant.PluginID(),
				Table:    table,
				Kind:     KindRead,
			}
		}
	}
	return nil
}

// AuthorizeExecute gates the write path. INSERT/UPDATE/DELETE require every
// referenced table in the grant's write set; CREATE/DROP/ALTER require the
// create set, whose entries were already pinned to the plugin's namespace
// at normalization time.
func AuthorizeExecute(grant *permission.Grant, sql string) error {
	stmt, err := Classify(sql)
	if err != nil {
		return &PermissionDeniedError{
			PluginID: grant.PluginID(),
			Kind:     KindParse,
			Reason:   err.Error(),
		}
	}

	switch {
	case stmt.Op.IsDDL():
		for _, table := range stmt.Tables {
			if !grant.CanCreate(table) {
				return &PermissionDeniedError{
					PluginID: grant.PluginID(),
					Table:    table,
					Kind:     KindCreate,
				}
			}
		}
	case stmt.Op == OpInsert || stmt.Op == OpUpdate || stmt.Op == OpDelete:
		for _, table := range stmt.Tables {
			if !grant.CanWrite(table) {
				return &PermissionDeniedError{
					PluginID: grant.PluginID(),
					Table:    table,
					Kind:     KindWrite,
				}
			}
		}
	default:
		return &PermissionDeniedError{
			PluginID: grant.PluginID(),
			Kind:     KindWrite,
			Reason:   fmt.Sprintf("%s belongs on the query path", stmt.Op),
		}
	}
	return nil
}
