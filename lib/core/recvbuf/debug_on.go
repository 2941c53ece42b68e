// +build invariants

package recvbuf

const debugChecks = true
