package cli

import (
	"fmt"
	"strings"
)

type Mode string

const (
	ModeNone Mode = ""
	ModePush Mode = "push"
	ModePull Mode = "pull"
	ModeList Mode = "list"
)

type Remote string

const (
	RemoteS3     Remote = "s3"
	RemoteWalrus Remote = "walrus"
)

type Options struct {
	Mode        Mode
	Dir         string
	Root        string
	Remote      Remote
	Compression string
	Verbose     bool
	Help        bool
}

// Parse reads a subcommand followed by flags and an optional target
// directory. The remote backend defaults to WALSYNC_REMOTE handling in
// main; an empty Remote here means "not set on the command line".
func Parse(args []string) (Options, error) {
	opts := Options{Dir: "."}
	if len(args) == 0 {
		return opts, fmt.Errorf("no command specified, expected push, pull or list")
	}

	switch args[0] {
	case "push":
		opts.Mode = ModePush
	case "pull":
		opts.Mode = ModePull
	case "list":
		opts.Mode = ModeList
	case "-h", "--help", "help":
		opts.Help = true
		return opts, nil
	default:
		return opts, fmt.Errorf("unknown command %q, expected push, pull or list", args[0])
	}

	var positional []string
	rest := args[1:]
	for i := 0; i < len(rest); i++ {
		a := rest[i]
		if !strings.HasPrefix(a, "-") {
			positional = append(positional, a)
			continue
		}
		name := strings.TrimLeft(a, "-")
		name, value, hasValue := strings.Cut(name, "=")
		takeValue := func() (string, error) {
			if hasValue {
				return value, nil
			}
			if i+1 >= len(rest) {
				return "", fmt.Errorf("option -%s requires a value", name)
			}
			i++
			return rest[i], nil
		}

		switch name {
		case "C", "root":
			v, err := takeValue()
			if err != nil {
				return opts, err
			}
			opts.Root = v
		case "remote":
			v, err := takeValue()
			if err != nil {
				return opts, err
			}
			switch Remote(v) {
			case RemoteS3, RemoteWalrus:
				opts.Remote = Remote(v)
			default:
				return opts, fmt.Errorf("unknown remote %q, expected s3 or walrus", v)
			}
		case "compression":
			v, err := takeValue()
			if err != nil {
				return opts, err
			}
			opts.Compression = v
		case "v", "verbose":
			opts.Verbose = true
		case "h", "help":
			opts.Help = true
		default:
			return opts, fmt.Errorf("unsupported option %s", a)
		}
	}

	switch len(positional) {
	case 0:
	case 1:
		if opts.Mode == ModeList {
			return opts, fmt.Errorf("list takes no directory argument")
		}
		opts.Dir = positional[0]
	default:
		return opts, fmt.Errorf("expected at most one directory argument, got %d", len(positional))
	}
	return opts, nil
}
