package upnp

import (
	"errors"
	"net"

	"github.com/huin/goupnp/dcps/internetgateway2"

	"example.com/peerwire/lib/core/adapter/portexposer"
	"example.com/peerwire/lib/logger"
)

var l = logger.Named("upnp")

func New(localPort uint16) portexposer.PortExposer {
	return &impl{
		localPort:    localPort,
		startExtPort: 6083,
	}
}

type impl struct {
	localPort    uint16
	startExtPort uint16
	extPort      uint16
	client       *internetgateway2.WANIPConnection1
}

func (i *impl) Start() {
	clients, errs, err := internetgateway2.NewWANIPConnection1Clients()
	if len(errs) != 0 {
		panic(errs)
	}
	if err != nil {
		panic(err)
	}
	if len(clients) == 0 {
		panic("no clients")
	}

	// Assume first IGD client is ours
	client := clients[0]

	myIP, err := findMyLocalIP(client.Location.Host)
	if err != nil {
		panic(err)
	}

Retry:
	internalPort, internalClient, _, _, _, err :=
		client.GetSpecificPortMappingEntry("", i.startExtPort, "TCP")

	if err == nil {
		// External port already mapped. Reuse only if it already points
		// at us; otherwise probe the next one.
		internalClientIP := net.ParseIP(internalClient)
		if !internalClientIP.Equal(myIP) {
			i.startExtPort++
			goto Retry
		}
		if internalPort != i.localPort {
			i.startExtPort++
			goto Retry
		}
	}

	if err := client.AddPortMapping("", i.startExtPort, "TCP", i.localPort, myIP.String(), false, "peerwire", 0); err != nil {
		l.Sugar().Warnw("add port mapping failed", "err", err)
	}
	i.client = client
	i.extPort = i.startExtPort

	l.Sugar().Infow("port mapped", "local", i.localPort, "external", i.extPort, "ip", myIP.String())
}

func (i *impl) Port() uint16 {
	return i.extPort
}

func (i *impl) Stop() {
	if i.client == nil {
		return
	}
	i.client.DeletePortMapping("", i.startExtPort, "TCP")
}

func findMyLocalIP(igdHostname string) (net.IP, error) {
	gwIps, _, err := net.SplitHostPort(igdHostname)
	if err != nil {
		return nil, err
	}
	gwIP := net.ParseIP(gwIps)

	// Our address is on whichever interface shares a subnet with the IGD.
	nwIfs, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for _, nwIf := range nwIfs {
		addresses, err := nwIf.Addrs()
		if err != nil {
			return nil, err
		}
		for _, addr := range addresses {
			ip, ipNet, err := net.ParseCIDR(addr.String())
			if err != nil {
				return nil, err
			}
			if ipNet.Contains(gwIP) {
				return ip, nil
			}
		}
	}
	return nil, errors.New("no interface matches given IGD")
}
