// Package discovery advertises a qwatch server over mDNS and finds one from
// the dashboard side.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/mdns"

	"github.com/izzyreal/qwatch/internal/version"
)

const (
	Service        = "_qwatch._tcp"
	DefaultTimeout = 3 * time.Second
	defaultPort    = "8114"
)

var ErrNoServer = errors.New("no qwatch server found via mDNS")

type AdvertiseOptions struct {
	Addr     string
	Instance string
	Backend  string
}

// Advertise registers the server under Service and returns the function that
// withdraws it. Failures are logged and yield a no-op stop function.
func Advertise(opts AdvertiseOptions) func() {
	port := listenPortFromAddr(opts.Addr)
	portNum, err := strconv.Atoi(port)
	if err != nil || portNum <= 0 {
		slog.Warn("mdns advertise skipped; no usable port", "addr", opts.Addr)
		return func() {}
	}

	instance := strings.TrimSpace(opts.Instance)
	if instance == "" {
		host, _ := os.Hostname()
		if strings.TrimSpace(host) == "" {
			host = "local"
		}
		instance = "qwatch-" + host
	}

	meta := []string{
		"name=qwatch",
		"api_version=" + strconv.Itoa(version.APIVersion),
		"version=" + version.Current(),
	}
	if opts.Backend != "" {
		meta = append(meta, "backend="+opts.Backend)
	}
	service, err := mdns.NewMDNSService(instance, Service, "", "", portNum, discoverAdvertiseIPs(), meta)
	if err != nil {
		slog.Error("mdns advertise service setup failed", "error", err)
		return func() {}
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		slog.Error("mdns advertise start failed", "error", err)
		return func() {}
	}
	slog.Info("mdns advertising enabled", "service", Service, "instance", instance, "port", port)

	return func() {
		_ = server.Shutdown()
	}
}

// Entry is one answered server.
type Entry struct {
	Instance string
	URL      string
	Version  string
}

// Lookup queries mDNS for Service and returns every IPv4 answer received
// before timeout, sorted by instance name.
func Lookup(ctx context.Context, timeout time.Duration) ([]Entry, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	entries := make(chan *mdns.ServiceEntry, 16)
	params := mdns.DefaultParams(Service)
	params.Entries = entries
	params.Timeout = timeout
	params.DisableIPv6 = true

	errCh := make(chan error, 1)
	go func() {
		defer close(entries)
		errCh <- mdns.Query(params)
	}()

	var out []Entry
	seen := map[string]struct{}{}
	for {
		select {
		case <-ctx.Done():
			// The query goroutine drains on its own timeout.
			go drain(entries)
			return nil, ctx.Err()
		case e, ok := <-entries:
			if !ok {
				if err := <-errCh; err != nil {
					return nil, fmt.Errorf("mdns query: %w", err)
				}
				sort.Slice(out, func(i, j int) bool { return out[i].Instance < out[j].Instance })
				return out, nil
			}
			entry, ok := toEntry(e)
			if !ok {
				continue
			}
			if _, dup := seen[entry.URL]; dup {
				continue
			}
			seen[entry.URL] = struct{}{}
			out = append(out, entry)
		}
	}
}

// Discover returns the base URL of the first server answering Lookup.
func Discover(ctx context.Context, timeout time.Duration) (string, error) {
	entries, err := Lookup(ctx, timeout)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", ErrNoServer
	}
	slog.Info("discovered qwatch server", "instance", entries[0].Instance, "url", entries[0].URL, "version", entries[0].Version)
	return entries[0].URL, nil
}

func toEntry(e *mdns.ServiceEntry) (Entry, bool) {
	if e == nil || e.AddrV4 == nil || e.Port <= 0 {
		return Entry{}, false
	}
	if !strings.Contains(e.Name, Service) {
		return Entry{}, false
	}
	out := Entry{
		Instance: strings.TrimSuffix(strings.TrimSuffix(e.Name, "."), "."+Service+".local"),
		URL:      "http://" + net.JoinHostPort(e.AddrV4.String(), strconv.Itoa(e.Port)),
	}
	for _, field := range e.InfoFields {
		if v, ok := strings.CutPrefix(field, "version="); ok {
			out.Version = v
		}
	}
	return out, true
}

func drain(ch <-chan *mdns.ServiceEntry) {
	for range ch {
	}
}

func discoverAdvertiseIPs() []net.IP {
	ifAddrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil
	}
	return filterAdvertiseIPs(ifAddrs)
}

func filterAdvertiseIPs(addrs []net.Addr) []net.IP {
	seen := map[string]struct{}{}
	out := make([]net.IP, 0, len(addrs))
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet == nil || ipNet.IP == nil {
			continue
		}
		ip := ipNet.IP
		if ip.IsLoopback() || ip.IsUnspecified() || ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() {
			continue
		}
		normalized := ip.To16()
		if normalized == nil {
			continue
		}
		key := normalized.String()
		if _, exists := seen[key]; exists {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, normalized)
	}
	if len(out) == 0 {
		return nil
	}
	// IPv4 first so single-stack dashboards pick a reachable address.
	sort.Slice(out, func(i, j int) bool {
		ai := out[i].To4() != nil
		aj := out[j].To4() != nil
		if ai != aj {
			return ai
		}
		return out[i].String() < out[j].String()
	})
	return out
}

func listenPortFromAddr(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return defaultPort
	}
	if strings.HasPrefix(addr, ":") {
		return strings.TrimPrefix(addr, ":")
	}
	if !strings.Contains(addr, ":") {
		return addr
	}
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return ""
	}
	return p
}
