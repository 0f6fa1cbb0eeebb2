package entity

import (
	"sort"
	"strings"
)

// CallLog is the call history, /call/log/. Only the "new" flag is writable.
var CallLog = &Kind{
	Name: "call_log",
	URI:  "/call/log/",
	Columns: []Column{
		{Name: "id", Type: Integer, ID: true},
		{Name: "status", Key: "type", Type: Text},
		{Name: "timestamp", Key: "datetime", Type: Timestamp},
		{Name: "number", Type: Text},
		{Name: "name", Type: Text},
		{Name: "duration", Type: Integer},
		{Name: "new", Type: Boolean, Mutable: true},
		{Name: "contact_id", Type: Integer},
	},
}

// StaticLease is a DHCP reservation, identified by the MAC address.
var StaticLease = &Kind{
	Name: "static_lease",
	URI:  "/dhcp/static_lease/",
	Columns: []Column{
		{Name: "id", Type: Text, ID: true},
		{Name: "mac", Type: Text, Create: true},
		{Name: "comment", Type: Text, Mutable: true, Create: true},
		{Name: "hostname", Type: Text},
		{Name: "ip", Type: Text, Mutable: true, Create: true},
		{Name: "reachable", Key: "host.reachable", Type: Boolean},
		{Name: "last_activity", Key: "host.last_activity", Type: Timestamp},
		{Name: "last_time_reachable", Key: "host.last_time_reachable", Type: Timestamp},
	},
}

// DynamicLease is an automatically assigned DHCP lease. The device does not
// serve it by id.
var DynamicLease = &Kind{
	Name: "dynamic_lease",
	URI:  "/dhcp/dynamic_lease/",
	Columns: []Column{
		{Name: "mac", Type: Text, ID: true},
		{Name: "hostname", Type: Text},
		{Name: "ip", Type: Text},
		{Name: "lease_remaining", Type: Integer},
		{Name: "assign_time", Type: Timestamp},
		{Name: "refresh_time", Type: Timestamp},
		{Name: "is_static", Type: Boolean},
		{Name: "comment", Type: Text},
	},
}

// StaticLeaseDetail is a static lease decorated with the timing of the
// matching dynamic lease. See [JoinStaticLeaseTimes].
var StaticLeaseDetail = &Kind{
	Name:    "static_lease_detail",
	Columns: append(append([]Column(nil), StaticLease.Columns...), timingColumns...),
}

var timingColumns = []Column{
	{Name: "lease_remaining", Type: Integer},
	{Name: "assign_time", Type: Timestamp},
	{Name: "refresh_time", Type: Timestamp},
}

// FwRedir is a port forwarding rule.
var FwRedir = &Kind{
	Name: "fw_redir",
	URI:  "/fw/redir/",
	Columns: []Column{
		{Name: "id", Type: Integer, ID: true},
		{Name: "src_ip", Type: Text, Mutable: true, Create: true},
		{Name: "ip_proto", Type: Text, Mutable: true, Create: true},
		{Name: "wan_port_start", Type: Integer, Mutable: true, Create: true},
		{Name: "wan_port_end", Type: Integer, Mutable: true, Create: true},
		{Name: "lan_port", Type: Integer, Mutable: true, Create: true},
		{Name: "lan_ip", Type: Text, Mutable: true, Create: true},
		{Name: "hostname", Type: Text},
		{Name: "enabled", Type: Boolean, Mutable: true, Create: true},
		{Name: "comment", Type: Text, Mutable: true, Create: true},
	},
}

// Contact sub-records, nested in a contact listing and addressable on
// their own endpoints.
var (
	ContactNumber = &Kind{
		Name: "contact_number",
		URI:  "/number/",
		Columns: []Column{
			{Name: "id", Type: Integer, ID: true},
			{Name: "contact_id", Type: Integer, Create: true},
			{Name: "type", Type: Text, Mutable: true, Create: true},
			{Name: "number", Type: Text, Mutable: true, Create: true},
			{Name: "is_default", Type: Boolean, Mutable: true, Create: true},
			{Name: "is_own", Type: Boolean, Mutable: true, Create: true},
		},
	}
	ContactEmail = &Kind{
		Name: "contact_email",
		URI:  "/email/",
		Columns: []Column{
			{Name: "id", Type: Integer, ID: true},
			{Name: "contact_id", Type: Integer, Create: true},
			{Name: "type", Type: Text, Mutable: true, Create: true},
			{Name: "email", Type: Text, Mutable: true, Create: true},
		},
	}
	ContactAddress = &Kind{
		Name: "contact_address",
		URI:  "/address/",
		Columns: []Column{
			{Name: "id", Type: Integer, ID: true},
			{Name: "contact_id", Type: Integer, Create: true},
			{Name: "type", Type: Text, Mutable: true, Create: true},
			{Name: "number", Type: Text, Mutable: true, Create: true},
			{Name: "street", Type: Text, Mutable: true, Create: true},
			{Name: "street2", Type: Text, Mutable: true, Create: true},
			{Name: "city", Type: Text, Mutable: true, Create: true},
			{Name: "zipcode", Type: Text, Mutable: true, Create: true},
			{Name: "country", Type: Text, Mutable: true, Create: true},
		},
	}
	ContactURL = &Kind{
		Name: "contact_url",
		URI:  "/url/",
		Columns: []Column{
			{Name: "id", Type: Integer, ID: true},
			{Name: "contact_id", Type: Integer, Create: true},
			{Name: "type", Type: Text, Mutable: true, Create: true},
			{Name: "url", Type: Text, Mutable: true, Create: true},
		},
	}
)

// Contact is an address book entry.
var Contact = &Kind{
	Name: "contact",
	URI:  "/contact/",
	Columns: []Column{
		{Name: "id", Type: Integer, ID: true},
		{Name: "display_name", Type: Text, Mutable: true, Create: true},
		{Name: "first_name", Type: Text, Mutable: true, Create: true},
		{Name: "last_name", Type: Text, Mutable: true, Create: true},
		{Name: "company", Type: Text, Mutable: true, Create: true},
		{Name: "birthday", Type: Text, Mutable: true, Create: true},
		{Name: "notes", Type: Text, Mutable: true, Create: true},
		{Name: "photo_url", Type: Text},
		{Name: "last_update", Type: Timestamp},
	},
	Children: []Child{
		{Key: "numbers", Kind: ContactNumber, ParentKey: "contact_id"},
		{Key: "emails", Kind: ContactEmail, ParentKey: "contact_id"},
		{Key: "addresses", Kind: ContactAddress, ParentKey: "contact_id"},
		{Key: "urls", Kind: ContactURL, ParentKey: "contact_id"},
	},
}

// Group is an address book group.
var Group = &Kind{
	Name: "group",
	URI:  "/group/",
	Columns: []Column{
		{Name: "id", Type: Integer, ID: true},
		{Name: "name", Type: Text, Mutable: true, Create: true},
		{Name: "nb_contact", Type: Integer},
	},
}

// ContactGroup links a contact to a group. It is listed per contact and
// keyed by the pair.
var ContactGroup = &Kind{
	Name: "contact_group",
	Columns: []Column{
		{Name: "group_id", Type: Integer, ID: true, Create: true},
		{Name: "contact_id", Type: Integer, ID: true, Create: true},
		{Name: "id", Type: Integer},
	},
}

var catalog = map[string]*Kind{}

func init() {
	for _, k := range []*Kind{
		CallLog, StaticLease, DynamicLease, StaticLeaseDetail, FwRedir,
		Contact, ContactNumber, ContactEmail, ContactAddress, ContactURL,
		Group, ContactGroup,
	} {
		if err := k.Validate(); err != nil {
			panic(err)
		}
		catalog[k.Name] = k
	}
}

// Lookup returns a declared kind by name.
func Lookup(name string) (*Kind, bool) {
	k, ok := catalog[name]
	return k, ok
}

var aliases = map[string]string{
	"calls":          "call_log",
	"static-leases":  "static_lease",
	"leases":         "static_lease_detail",
	"dynamic-leases": "dynamic_lease",
	"fw-redirs":      "fw_redir",
	"contacts":       "contact",
	"groups":         "group",
}

// Resolve looks a kind up by name or by its command line alias.
func Resolve(name string) (*Kind, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if k, ok := catalog[name]; ok {
		return k, true
	}
	return Lookup(aliases[name])
}

// Aliases returns the command line aliases sorted by name.
func Aliases() []string {
	out := make([]string, 0, len(aliases))
	for a := range aliases {
		out = append(out, a)
	}
	sort.Strings(out)
	return out
}

// Kinds returns every declared kind sorted by name.
func Kinds() []*Kind {
	out := make([]*Kind, 0, len(catalog))
	for _, k := range catalog {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
