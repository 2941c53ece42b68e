package portexposer

// PortExposer makes a local listen port reachable from outside the
// NAT. Start blocks until the mapping exists or gives up.
type PortExposer interface {
	Start()
	Stop()
	Port() uint16
}
