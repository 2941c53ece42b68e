package hostsource

import "example.com/peerwire/lib/core/domain"

// HostSource supplies candidate peer addresses. Where they come from
// (tracker, DHT, a static list) is policy outside the data plane; the
// session only consumes the addresses.
type HostSource interface {
	GetHosts() ([]domain.Host, error)
}

type Static []domain.Host

func (s Static) GetHosts() ([]domain.Host, error) {
	return s, nil
}
