// Command dhclient runs the IPv4 DHCP client core against a single network
// interface, matching the classic dhclient CLI surface of spec.md §6: a
// positional interface argument, -n/-r/-x/-1 flags, signal-driven release,
// and a PID file.
package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/AdguardTeam/dhclient-go/internal/client"
	"github.com/AdguardTeam/dhclient-go/internal/dhclientlog"
	"github.com/AdguardTeam/dhclient-go/internal/dispatch"
	"github.com/AdguardTeam/dhclient-go/internal/lease"
	"github.com/AdguardTeam/dhclient-go/internal/leasedb"
	"github.com/AdguardTeam/dhclient-go/internal/script"
	"github.com/AdguardTeam/dhclient-go/internal/timer"
	"github.com/AdguardTeam/golibs/log"
)

// firstDynamicLease returns the first non-static lease in leases, the
// journal's most-recently-appended dynamic lease per spec.md §4.D's load
// order.
func firstDynamicLease(leases []*lease.ClientLease) (l *lease.ClientLease) {
	for _, cand := range leases {
		if !cand.IsStatic {
			return cand
		}
	}

	return nil
}

func main() {
	os.Exit(run())
}

// run contains the CLI's logic, returning an exit code per spec.md §6: 0 on
// a clean exit, 2 on a one-try failure to obtain a lease, nonzero on setup
// error.
func run() (code int) {
	var (
		noActivate = flag.Bool("n", false, "do not configure the interface; the script is not run")
		release    = flag.Bool("r", false, "release the current lease and exit")
		noRelease  = flag.Bool("x", false, "exit without releasing the current lease")
		oneTry     = flag.Bool("1", false, "try once; exit nonzero if no lease is obtained")
		verbose    = flag.Bool("v", false, "verbose logging")
		leaseFile  = flag.String("lf", "/var/lib/dhclient/dhclient.leases", "lease database path")
		duidFile   = flag.String("df", "", "DUID file path")
		pidFile    = flag.String("pf", "/var/run/dhclient.pid", "pid file path")
		scriptPath = flag.String("sf", "/sbin/dhclient-script", "script to invoke on lease events")
	)
	flag.Parse()

	dhclientlog.SetVerbose(*verbose)

	ifaceName := flag.Arg(0)
	if ifaceName == "" {
		log.Error("dhclient: an interface name is required")

		return 1
	}

	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		log.Error("dhclient: %s", err)

		return 1
	}

	store, err := leasedb.Open(*leaseFile, *duidFile)
	if err != nil {
		log.Error("dhclient: opening lease database: %s", err)

		return 1
	}
	defer func() { _ = store.Close() }()

	loaded, err := store.Load()
	if err != nil {
		log.Error("dhclient: loading lease database: %s", err)

		return 1
	}

	var runner script.Runner
	if *noActivate {
		runner = &script.NoopRunner{}
	} else {
		runner = &script.ExecRunner{Path: *scriptPath}
	}

	conf := client.DefaultConfig()
	conf.InterfaceName = ifaceName
	conf.HWAddr = iface.HardwareAddr
	conf.OneTry = *oneTry

	timers := timer.New()

	transport, err := dispatch.NewRawTransport(ifaceName)
	if err != nil {
		log.Error("dhclient: %s", err)

		return 1
	}
	defer func() { _ = transport.Close() }()

	cl := client.New(conf, transport, store, runner, timers)
	cl.SeedStoredLeases(loaded.Leases4)
	if conf.ICMPTimeout > 0 {
		cl.SetAddressProber(&dispatch.ICMPProber{Timeout: conf.ICMPTimeout})
	}

	if err = writePIDFile(*pidFile); err != nil {
		log.Error("dhclient: writing pid file: %s", err)
	}
	defer func() { _ = os.Remove(*pidFile) }()

	if *release {
		// Release the most recently recorded dynamic lease directly,
		// without running discovery first: there is nothing to discover
		// when the operator is asking to give back what was already held.
		if active := firstDynamicLease(loaded.Leases4); active != nil {
			cl.AdoptActive(active)
		}

		cl.Release(time.Now())

		return 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	exitCode := 0
	cl.SetExitFunc(func(c int) {
		exitCode = c
		cancel()
	})

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		if !*noRelease {
			cl.Release(time.Now())
		}
		cancel()
	}()

	loop := dispatch.NewLoop(transport, cl, timers, conf.HWAddr)
	if err = loop.Run(ctx); err != nil {
		log.Error("dhclient: %s", err)

		return 1
	}

	return exitCode
}

func writePIDFile(path string) (err error) {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644) //nolint:gosec // G306 -- a pid file is world-readable by convention, matching /var/run norms.
}
