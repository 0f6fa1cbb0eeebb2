package cli

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/koltyakov/fbxos/internal/domain"
	"github.com/koltyakov/fbxos/internal/entity"
	"github.com/koltyakov/fbxos/internal/reconcile"
)

// fetchCollection loads kind from the device. Derived kinds are built from
// their sources; dynamic leases carry the comment of their static lease.
func fetchCollection(ctx context.Context, svc *entity.Service, kind *entity.Kind, contactID int64) (*entity.Collection, error) {
	switch kind {
	case entity.StaticLeaseDetail:
		static, err := svc.ListAll(ctx, entity.StaticLease)
		if err != nil {
			return nil, err
		}
		dynamic, err := svc.ListAll(ctx, entity.DynamicLease)
		if err != nil {
			return nil, err
		}
		return entity.JoinStaticLeaseTimes(static, dynamic)
	case entity.DynamicLease:
		dynamic, err := svc.ListAll(ctx, entity.DynamicLease)
		if err != nil {
			return nil, err
		}
		static, err := svc.ListAll(ctx, entity.StaticLease)
		if err != nil {
			return nil, err
		}
		return entity.JoinDynamicLeaseComments(dynamic, static)
	case entity.ContactGroup:
		if contactID <= 0 {
			return nil, usageError("contact_group needs --contact ID")
		}
		return svc.ContactGroups(ctx, contactID)
	}
	if kind.URI == "" {
		return nil, usageError(kind.Name + " cannot be listed from the device")
	}
	return svc.ListAll(ctx, kind)
}

func runList(ctx context.Context, args []string, sio stdio) int {
	save, offline, asJSON, plain := false, false, false, false
	var contactID int64
	var where string
	a, rest, code := newApp("list", permuteArgs(args, "save", "offline", "json", "plain"), sio, func(fs *flag.FlagSet) {
		fs.BoolVar(&save, "save", save, "Store the listing in the local mirror")
		fs.BoolVar(&offline, "offline", offline, "Read from the local mirror instead of the device")
		fs.BoolVar(&asJSON, "json", asJSON, "Print JSON")
		fs.BoolVar(&plain, "plain", plain, "Print tab-separated values")
		fs.Int64Var(&contactID, "contact", contactID, "Contact id (contact_group only)")
		fs.StringVar(&where, "where", where, "Only show rows where column=value")
	})
	if code >= 0 {
		return code
	}
	if len(rest) != 1 {
		return a.fail(usageError("usage: fbxos list <kind> [--save] [--offline] [--json]"))
	}
	kind, err := resolveKind(rest[0])
	if err != nil {
		return a.fail(err)
	}
	if save && offline {
		return a.fail(usageError("--save and --offline are exclusive"))
	}

	var col *entity.Collection
	if offline {
		st, err := a.store()
		if err != nil {
			return a.fail(err)
		}
		defer st.Close()
		if col, err = st.LoadCollection(ctx, kind); err != nil {
			return a.fail(err)
		}
	} else {
		c, svc, err := a.service(ctx)
		if err != nil {
			return a.fail(err)
		}
		defer a.logout(c)
		if col, err = fetchCollection(ctx, svc, kind, contactID); err != nil {
			return a.fail(err)
		}
		if save {
			st, err := a.store()
			if err != nil {
				return a.fail(err)
			}
			defer st.Close()
			n, err := st.SaveCollection(ctx, col)
			if err != nil {
				return a.fail(err)
			}
			a.log.Info("mirror updated", "kind", kind.Name, "rows", n, "db", a.cfg.DBPath)
		}
	}

	items := col.All()
	if where != "" {
		name, value, ok := strings.Cut(where, "=")
		if !ok {
			return a.fail(usageError("--where expects column=value"))
		}
		if _, known := kind.Column(name); !known {
			return a.fail(usageError(fmt.Sprintf("%s has no column %s", kind.Name, name)))
		}
		items = col.ByAttr(name, value)
	}
	if asJSON {
		if items == nil {
			items = []*entity.Entity{}
		}
		if err := renderJSON(sio.out, items); err != nil {
			return a.fail(err)
		}
		return 0
	}
	renderCollection(sio.out, kind, items, plain)
	return 0
}

func runGet(ctx context.Context, args []string, sio stdio) int {
	offline, asJSON := false, false
	a, rest, code := newApp("get", permuteArgs(args, "offline", "json"), sio, func(fs *flag.FlagSet) {
		fs.BoolVar(&offline, "offline", offline, "Read from the local mirror instead of the device")
		fs.BoolVar(&asJSON, "json", asJSON, "Print JSON")
	})
	if code >= 0 {
		return code
	}
	if len(rest) != 2 {
		return a.fail(usageError("usage: fbxos get <kind> <id>"))
	}
	kind, err := resolveKind(rest[0])
	if err != nil {
		return a.fail(err)
	}
	id := rest[1]

	var e *entity.Entity
	if offline {
		st, err := a.store()
		if err != nil {
			return a.fail(err)
		}
		defer st.Close()
		if e, err = st.SelectByID(ctx, kind, id); err != nil {
			return a.fail(err)
		}
	} else {
		c, svc, err := a.service(ctx)
		if err != nil {
			return a.fail(err)
		}
		defer a.logout(c)
		if e, err = fetchOne(ctx, svc, kind, id); err != nil {
			return a.fail(err)
		}
	}
	if asJSON {
		if err := renderJSON(sio.out, e); err != nil {
			return a.fail(err)
		}
		return 0
	}
	renderEntity(sio.out, e)
	return 0
}

// fetchOne reads one item by id, or picks it out of the listing for kinds
// the device does not serve by id.
func fetchOne(ctx context.Context, svc *entity.Service, kind *entity.Kind, id string) (*entity.Entity, error) {
	if kind.Fetchable() && kind != entity.DynamicLease {
		return svc.FetchByID(ctx, kind, id)
	}
	col, err := fetchCollection(ctx, svc, kind, 0)
	if err != nil {
		return nil, err
	}
	if e := col.ByID(id); e != nil {
		return e, nil
	}
	return nil, fmt.Errorf("%s %s: %w", kind.Name, id, domain.ErrNotFound)
}

func runSet(ctx context.Context, args []string, sio stdio) int {
	a, rest, code := newApp("set", permuteArgs(args), sio, nil)
	if code >= 0 {
		return code
	}
	if len(rest) != 4 {
		return a.fail(usageError("usage: fbxos set <kind> <id> <field> <value>"))
	}
	kind, err := resolveKind(rest[0])
	if err != nil {
		return a.fail(err)
	}
	id, field, value := rest[1], rest[2], rest[3]
	col, ok := kind.Column(field)
	if !ok || !col.Mutable {
		return a.fail(usageError(fmt.Sprintf("%s.%s is not writable (writable: %s)", kind.Name, field, mutableNames(kind))))
	}

	c, svc, err := a.service(ctx)
	if err != nil {
		return a.fail(err)
	}
	defer a.logout(c)
	changed, err := svc.UpdateField(ctx, kind, id, field, value)
	if err != nil {
		return a.fail(err)
	}
	if changed {
		fmt.Fprintf(sio.out, "%s %s: %s set to %q\n", kind.Name, id, field, value)
	} else {
		fmt.Fprintf(sio.out, "%s %s: %s already %q\n", kind.Name, id, field, value)
	}
	return 0
}

func mutableNames(kind *entity.Kind) string {
	var names []string
	for _, c := range kind.MutableColumns() {
		names = append(names, c.Name)
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}

func runRestore(ctx context.Context, args []string, sio stdio) int {
	yes := false
	a, rest, code := newApp("restore", permuteArgs(args, "yes"), sio, func(fs *flag.FlagSet) {
		fs.BoolVar(&yes, "yes", yes, "Apply every change without asking")
	})
	if code >= 0 {
		return code
	}
	if len(rest) != 1 {
		return a.fail(usageError("usage: fbxos restore <kind> [--yes]"))
	}
	kind, err := resolveKind(rest[0])
	if err != nil {
		return a.fail(err)
	}
	if !kind.Fetchable() || len(kind.MutableColumns()) == 0 {
		return a.fail(usageError(kind.Name + " cannot be restored"))
	}

	st, err := a.store()
	if err != nil {
		return a.fail(err)
	}
	defer st.Close()
	mirrored, err := st.LoadCollection(ctx, kind)
	if err != nil {
		return a.fail(err)
	}
	if mirrored.Len() == 0 {
		return a.fail(fmt.Errorf("the mirror holds no %s rows (run `fbxos list %s --save` first): %w", kind.Name, kind.Name, domain.ErrNotFound))
	}

	c, svc, err := a.service(ctx)
	if err != nil {
		return a.fail(err)
	}
	defer a.logout(c)
	live, err := svc.ListAll(ctx, kind)
	if err != nil {
		return a.fail(err)
	}
	plan, err := reconcile.Diff(mirrored, live)
	if err != nil {
		return a.fail(err)
	}
	for _, key := range plan.Missing {
		fmt.Fprintf(sio.err, "warning: %s %s is gone from the device and cannot be recreated\n", kind.Name, key)
	}
	if plan.Empty() {
		fmt.Fprintln(sio.out, "Nothing to restore")
		return 0
	}

	var confirmer reconcile.Confirmer = reconcile.ConfirmAll
	if !yes {
		reader := bufio.NewReader(sio.in)
		confirmer = reconcile.ConfirmFunc(func(ctx context.Context, cand reconcile.Candidate) (bool, error) {
			return confirm(ctx, sio.out, reader, cand.String())
		})
	}
	res, err := reconcile.Apply(ctx, plan, svc, confirmer)
	fmt.Fprintf(sio.out, "%d applied, %d declined, %d already matching\n", res.Applied, res.Declined, res.Unchanged)
	if err != nil {
		return a.fail(err)
	}
	return 0
}
