package cli

import "strings"

// permuteArgs moves flags in front of positional arguments so that
// "list calls --save" parses like "list --save calls". Flags named in
// bools take no separate value.
func permuteArgs(args []string, bools ...string) []string {
	isBool := map[string]bool{"h": true, "help": true}
	for _, b := range bools {
		isBool[b] = true
	}
	var flags, positional []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			positional = append(positional, args[i+1:]...)
			break
		}
		if !strings.HasPrefix(arg, "-") || arg == "-" {
			positional = append(positional, arg)
			continue
		}
		flags = append(flags, arg)
		name := strings.TrimLeft(arg, "-")
		if strings.Contains(name, "=") || isBool[name] {
			continue
		}
		if i+1 < len(args) {
			i++
			flags = append(flags, args[i])
		}
	}
	if len(positional) == 0 {
		return flags
	}
	return append(append(flags, "--"), positional...)
}
