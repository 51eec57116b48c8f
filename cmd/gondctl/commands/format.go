// Package commands implements the gondctl CLI commands.
package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	ndapi "github.com/dantte-lp/gond/internal/api"
	appversion "github.com/dantte-lp/gond/internal/version"
)

const (
	formatJSON  = "json"
	formatTable = "table"
	formatYAML  = "yaml"
	valueNone   = "-"
	valueInf    = "infinite"

	infiniteRouterLifetime = 0xffff
	infinitePrefixLifetime = 0xffffffff
)

// errUnsupportedFormat is returned when the requested output format is not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

// render marshals v for the structured formats and calls table for the
// table format.
func render(v any, format string, table func() (string, error)) (string, error) {
	switch format {
	case formatJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal to JSON: %w", err)
		}
		return string(data) + "\n", nil
	case formatYAML:
		data, err := yaml.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("marshal to YAML: %w", err)
		}
		return string(data), nil
	case formatTable:
		return table()
	default:
		return "", fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// formatNeighbors renders neighbor cache entries in the requested format.
func formatNeighbors(neighbors []ndapi.Neighbor, format string) (string, error) {
	return render(neighbors, format, func() (string, error) {
		return tabulate("ADDRESS\tIFINDEX\tLLADDR\tSTATE\tFLAGS\tEXPIRES\tIDLE\tQUEUED", func(w *tabwriter.Writer) {
			for _, n := range neighbors {
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\t%s\t%d\n",
					n.Addr,
					n.Interface,
					orNone(n.LinkAddr),
					n.State,
					neighborFlags(n),
					seconds(n.ExpiresIn),
					seconds(n.Idle),
					n.Queued,
				)
			}
		})
	})
}

// formatRouters renders default routers in the requested format.
func formatRouters(routers []ndapi.Router, format string) (string, error) {
	return render(routers, format, func() (string, error) {
		return tabulate("ADDRESS\tIFINDEX\tLIFETIME\tKIND\tNEIGHBOR", func(w *tabwriter.Writer) {
			for _, r := range routers {
				lifetime := strconv.Itoa(int(r.Lifetime)) + "s"
				if r.Lifetime == infiniteRouterLifetime {
					lifetime = valueInf
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n",
					r.Addr, r.Interface, lifetime, r.Kind, r.NeighborState)
			}
		})
	})
}

// formatPrefixes renders on-link prefixes in the requested format.
func formatPrefixes(prefixes []ndapi.Prefix, format string) (string, error) {
	return render(prefixes, format, func() (string, error) {
		return tabulate("PREFIX\tVALID-LIFETIME", func(w *tabwriter.Writer) {
			for _, p := range prefixes {
				lifetime := strconv.FormatUint(uint64(p.ValidLifetime), 10) + "s"
				if p.ValidLifetime == infinitePrefixLifetime {
					lifetime = valueInf
				}
				fmt.Fprintf(w, "%s\t%s\n", p.Prefix, lifetime)
			}
		})
	})
}

// formatInterfaces renders interfaces in the requested format.
func formatInterfaces(ifaces []ndapi.Interface, format string) (string, error) {
	return render(ifaces, format, func() (string, error) {
		return tabulate("INDEX\tNAME\tLLADDR\tMTU\tSTATE\tAUTOCONF", func(w *tabwriter.Writer) {
			for _, i := range ifaces {
				state := "down"
				if i.Up {
					state = "up"
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%s\t%t\n",
					i.Index, i.Name, orNone(i.LinkAddr), i.MTU, state, i.Autoconf)
			}
		})
	})
}

// formatAddresses renders interface addresses in the requested format.
func formatAddresses(addrs []ndapi.Address, format string) (string, error) {
	return render(addrs, format, func() (string, error) {
		return tabulate("ADDRESS\tIFINDEX\tSTATE\tMETHOD", func(w *tabwriter.Writer) {
			for _, a := range addrs {
				fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", a.Prefix, a.Interface, a.State, a.Method)
			}
		})
	})
}

// formatEvent renders a neighbor event in the requested format. The table
// format is a single line so that monitor output stays greppable.
func formatEvent(ev *ndapi.Event, format string) (string, error) {
	if format == formatJSON {
		data, err := json.Marshal(ev)
		if err != nil {
			return "", fmt.Errorf("marshal event to JSON: %w", err)
		}
		return string(data), nil
	}

	return render(ev, format, func() (string, error) {
		return fmt.Sprintf("[%s] %s  if=%d  lladdr=%s  %s -> %s",
			ev.Timestamp.Format(time.RFC3339),
			ev.Addr,
			ev.Interface,
			orNone(ev.LinkAddr),
			ev.OldState,
			ev.NewState,
		), nil
	})
}

// formatVersion renders build information in the requested format.
func formatVersion(info appversion.Info, format string) (string, error) {
	return render(info, format, func() (string, error) {
		return appversion.Full(info.Binary) + "\n", nil
	})
}

// --- Table helpers ---

func tabulate(header string, rows func(w *tabwriter.Writer)) (string, error) {
	var buf strings.Builder
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, header)

	rows(w)

	if err := w.Flush(); err != nil {
		return "", fmt.Errorf("flush tabwriter: %w", err)
	}

	return buf.String(), nil
}

func neighborFlags(n ndapi.Neighbor) string {
	var flags string
	if n.Static {
		flags += "S"
	}
	if n.IsRouter {
		flags += "R"
	}
	return orNone(flags)
}

func seconds(s uint32) string {
	if s == 0 {
		return valueNone
	}
	return (time.Duration(s) * time.Second).String()
}

func orNone(s string) string {
	if s == "" {
		return valueNone
	}
	return s
}
