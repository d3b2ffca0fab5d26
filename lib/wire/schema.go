package wire

import (
	"sort"

	"github.com/samber/oops"
)

// Commands with a registered schema.
const (
	CmdVersion = "version"
	CmdVerack  = "verack"
	CmdPing    = "ping"
	CmdPong    = "pong"
	CmdAlert   = "alert"
	CmdBlock   = "block"
	CmdGetData = "getdata"
	CmdAddr    = "addr"
)

// Schema is the ordered field list of one command's payload.
type Schema struct {
	Command string
	Fields  []Field
}

// Validate reports schemas the codec cannot apply unambiguously:
// a dump followed by another field, arrays without a usable element kind,
// and duplicate field names.
func (s Schema) Validate() error {
	seen := make(map[string]struct{}, len(s.Fields))
	for i, f := range s.Fields {
		if _, dup := seen[f.Name]; dup {
			return oops.Errorf("schema %q: duplicate field %q", s.Command, f.Name)
		}
		seen[f.Name] = struct{}{}

		if _, ok := kindNames[f.Kind]; !ok {
			return oops.Errorf("schema %q: field %q has unknown kind %d", s.Command, f.Name, f.Kind)
		}
		if f.Kind == KindDump && i != len(s.Fields)-1 {
			return oops.Errorf("schema %q: dump field %q must be last", s.Command, f.Name)
		}
		if f.Kind == KindArray {
			if _, ok := kindNames[f.Item]; !ok || f.Item == KindArray || f.Item == KindDump {
				return oops.Errorf("schema %q: array %q has invalid element kind %s", s.Command, f.Name, f.Item)
			}
		}
	}
	return nil
}

var schemas = map[string]Schema{
	CmdVersion: {
		Command: CmdVersion,
		Fields: []Field{
			{Name: "version", Kind: KindInt32},
			{Name: "services", Kind: KindUint64},
			{Name: "timestamp", Kind: KindInt64},
			{Name: "addr_recv", Kind: KindNetAddrNoTime},
			{Name: "addr_from", Kind: KindNetAddrNoTime},
			{Name: "nonce", Kind: KindUint64},
			{Name: "user_agent", Kind: KindVarString},
			{Name: "start_height", Kind: KindInt32},
			{Name: "relay", Kind: KindBool},
		},
	},
	CmdVerack: {Command: CmdVerack},
	CmdPing: {
		Command: CmdPing,
		Fields:  []Field{{Name: "nonce", Kind: KindUint64}},
	},
	CmdPong: {
		Command: CmdPong,
		Fields:  []Field{{Name: "nonce", Kind: KindUint64}},
	},
	CmdAlert: {
		Command: CmdAlert,
		Fields:  []Field{{Name: "payload", Kind: KindDump}},
	},
	CmdBlock: {
		Command: CmdBlock,
		Fields:  []Field{{Name: "payload", Kind: KindDump}},
	},
	CmdGetData: {
		Command: CmdGetData,
		Fields:  []Field{{Name: "inventory", Kind: KindArray, Item: KindInvVect}},
	},
	CmdAddr: {
		Command: CmdAddr,
		Fields:  []Field{{Name: "addr_list", Kind: KindArray, Item: KindNetAddr}},
	},
}

func init() {
	for cmd, s := range schemas {
		if err := s.Validate(); err != nil {
			panic(err)
		}
		if len(cmd) > CommandSize {
			panic(oops.Errorf("schema %q: %v", cmd, ErrCommandTooLong))
		}
	}
}

// Lookup returns the schema registered for command.
// The returned Fields slice is shared and must not be modified.
func Lookup(command string) (Schema, bool) {
	s, ok := schemas[command]
	return s, ok
}

// Commands returns the registered command names in sorted order.
func Commands() []string {
	cmds := make([]string, 0, len(schemas))
	for cmd := range schemas {
		cmds = append(cmds, cmd)
	}
	sort.Strings(cmds)
	return cmds
}
