// +build !invariants

package recvbuf

const debugChecks = false
