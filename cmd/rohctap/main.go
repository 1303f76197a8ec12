// Command rohctap advertises a UDP listener as a discoverable
// "_rohc-tunnel._udp" mDNS service and decompresses whatever ROHC
// packets arrive on it, mirroring dns_sd.go's announcement of a
// KISS-over-TCP service so other hosts on the LAN can find a running
// tunnel endpoint without a pre-shared address.
package main

import (
	"context"
	"net"
	"os"
	"time"

	"github.com/brutella/dnssd"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/openrohc/rohc/rohc"
)

const serviceType = "_rohc-tunnel._udp"

var log = logrus.New()

func main() {
	var (
		port = flag.IntP("port", "p", 9095, "UDP port to listen on and advertise")
		name = flag.StringP("name", "n", "", "service instance name (defaults to hostname)")
	)
	flag.Parse()

	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: *port})
	if err != nil {
		log.WithError(err).Fatal("listening on UDP port")
	}
	defer conn.Close()

	instanceName := *name
	if instanceName == "" {
		if host, err := os.Hostname(); err == nil {
			instanceName = host
		} else {
			instanceName = "rohctap"
		}
	}

	announce(instanceName, *port)

	engine, err := rohc.NewEngine(rohc.DefaultConfig())
	if err != nil {
		log.WithError(err).Fatal("constructing engine")
	}

	buf := make([]byte, 64*1024)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			log.WithError(err).Warn("reading UDP datagram")
			continue
		}
		rp, err := engine.Decompress(buf[:n], time.Now())
		if err != nil {
			log.WithFields(logrus.Fields{"from": addr.String()}).Warn(err)
			continue
		}
		log.WithFields(logrus.Fields{"from": addr.String(), "sn": rp.SN}).Info("decompressed packet")
	}
}

// announce advertises the running listener via mDNS/DNS-SD, logging but
// not aborting on failure — discovery is a convenience, not a
// requirement for the tunnel itself to function.
func announce(name string, port int) {
	cfg := dnssd.Config{
		Name: name,
		Type: serviceType,
		Port: port,
	}

	sv, err := dnssd.NewService(cfg)
	if err != nil {
		log.WithError(err).Error("DNS-SD: failed to create service")
		return
	}

	rp, err := dnssd.NewResponder()
	if err != nil {
		log.WithError(err).Error("DNS-SD: failed to create responder")
		return
	}

	if _, err := rp.Add(sv); err != nil {
		log.WithError(err).Error("DNS-SD: failed to add service")
		return
	}

	log.WithFields(logrus.Fields{"name": name, "port": port}).Info("DNS-SD: announcing ROHC tunnel endpoint")

	go func() {
		if err := rp.Respond(context.Background()); err != nil {
			log.WithError(err).Error("DNS-SD: responder error")
		}
	}()
}
