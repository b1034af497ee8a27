// Command ssdpd runs a standalone SSDP peer: it advertises whatever local
// services are registered on startup, answers M-SEARCH, and learns about
// remote peers on the network.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"gargoton.petite-maison-orange.fr/eric/pmossdp/netutils"
	"gargoton.petite-maison-orange.fr/eric/pmossdp/ssdp"
)

func main() {
	configPath := flag.String("config", "", "path to a .ssdp.yml config file")
	location := flag.String("location", "", "LOCATION URL to advertise for the root device")
	debugAddr := flag.String("debug-addr", "", "if set, serve the debug UI on this address (e.g. :8058)")
	flag.Parse()

	cfg := ssdp.LoadConfig(*configPath)

	engine, err := ssdp.NewEngine(*cfg)
	if err != nil {
		log.Fatalf("❌ failed to start ssdp engine: %v", err)
	}

	usn, err := ssdp.PeerUUID()
	if err != nil {
		log.Fatalf("❌ failed to load peer uuid: %v", err)
	}
	usn = usn + "::" + ssdp.RootDeviceST

	loc := *location
	if loc == "" {
		loc = "http://" + guessLocationHost(cfg.Interface) + ":8058/description.xml"
	}

	if err := engine.RegisterLocal(usn, ssdp.RootDeviceST, loc, false); err != nil {
		log.Fatalf("❌ failed to register root device: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *debugAddr != "" {
		mux := http.NewServeMux()
		ssdp.NewDebugServer(engine).InstallRoutes(mux, "/ssdp/debug")
		srv := &http.Server{Addr: *debugAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Warnf("❌ debug server error: %v", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
		log.Infof("✅ debug UI on http://%s/ssdp/debug", *debugAddr)
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigs
		log.Infof("✅ shutting down...")
		cancel()
	}()

	log.Infof("✅ ssdp peer running as %s, press Ctrl+C to stop", usn)
	if err := engine.Run(ctx); err != nil {
		log.Fatalf("❌ ssdp engine exited with error: %v", err)
	}
}

// guessLocationHost resolves the host to advertise in LOCATION when the
// caller didn't supply one: the configured interface's own address if it
// has one, otherwise whatever address the default route would use.
func guessLocationHost(iface string) string {
	if iface != "" {
		addrs, err := netutils.AddrsForInterface(iface)
		if err == nil && len(addrs) > 0 {
			return addrs[0]
		}
		log.Warnf("⚠️ interface %q has no usable address, falling back to default route", iface)
	}
	ip, err := netutils.GuessLocalIP()
	if err != nil {
		return "127.0.0.1"
	}
	return ip
}
