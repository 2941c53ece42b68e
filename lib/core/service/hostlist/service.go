package hostlist

import (
	"errors"
	"time"

	"example.com/peerwire/lib/core/adapter/cache"
	"example.com/peerwire/lib/core/adapter/hostsource"
	"example.com/peerwire/lib/core/adapter/persistentmetadata"
	"example.com/peerwire/lib/core/domain"
	"example.com/peerwire/lib/logger"
)

var l = logger.Named("hostlist")

// Service caches candidate hosts: memory cache first, persisted list
// second, the configured source last. Where hosts come from is not this
// package's problem; keeping the source from being hammered is.
type Service interface {
	GetHosts() ([]domain.Host, error)
}

type Impl struct {
	Cache              cache.Cache
	PersistentMetadata persistentmetadata.PersistentMetadata
	Source             hostsource.HostSource

	// MaxAge bounds how long a persisted host list stays usable.
	MaxAge time.Duration
}

var _ Service = Impl{}

type hostsWithTimestamp struct {
	Hosts []domain.Host
	Time  time.Time
}

func (impl Impl) GetHosts() ([]domain.Host, error) {
	hosts, err := impl.getHostsFromCache()
	if err != nil {
		hosts, err = impl.getHostsFromSource()
		if err != nil {
			return nil, err
		}
		_ = impl.setHostsToCache(hosts)
	}
	return hosts, nil
}

func (impl Impl) maxAge() time.Duration {
	if impl.MaxAge == 0 {
		return 30 * time.Minute
	}
	return impl.MaxAge
}

func (impl Impl) getHostsFromCache() ([]domain.Host, error) {
	kHosts := "hosts"
	type key string
	kHostsCKey := key("hosts")
	v, err := impl.Cache.Cached(kHostsCKey, func() (interface{}, error) {
		var persistHost hostsWithTimestamp

		if err := impl.PersistentMetadata.Get(kHosts, &persistHost); err != nil {
			return nil, err
		}
		cacheExpTime := persistHost.Time.Add(impl.maxAge())
		if !time.Now().Before(cacheExpTime) {
			return nil, errors.New("cache expired")
		}
		l.Sugar().Debugw("using persisted hosts",
			"count", len(persistHost.Hosts),
			"expires", cacheExpTime.Format(time.RFC3339))
		return persistHost.Hosts, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.Host), nil
}

func (impl Impl) getHostsFromSource() ([]domain.Host, error) {
	type key string
	kSource := key("source")
	v, err := impl.Cache.Cached(kSource, func() (interface{}, error) {
		hosts, err := impl.Source.GetHosts()
		if err != nil {
			return nil, err
		}
		if len(hosts) == 0 {
			return nil, errors.New("no hosts")
		}
		return hosts, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]domain.Host), nil
}

func (impl Impl) setHostsToCache(hosts []domain.Host) error {
	return impl.PersistentMetadata.Put("hosts", hostsWithTimestamp{
		Hosts: hosts,
		Time:  time.Now(),
	})
}
