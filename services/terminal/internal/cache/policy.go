package cache

import "time"

const (
	DefaultMenuFreshness  = 180 * time.Second
	DefaultLightFreshness = 2 * time.Second
)

// Policy holds the freshness windows. The menu is served from cache inside
// its window and revalidated in the background; light state is served from
// cache inside its window only; full state always goes to the network
// first. Any cached entry is used when the network fails.
type Policy struct {
	MenuFreshness  time.Duration
	LightFreshness time.Duration
}

func DefaultPolicy() Policy {
	return Policy{
		MenuFreshness:  DefaultMenuFreshness,
		LightFreshness: DefaultLightFreshness,
	}
}

func (p Policy) fresh(key string, e Entry, now time.Time) bool {
	age := e.Age(now)
	if age < 0 {
		return false
	}
	switch key {
	case KeyMenu:
		return age < p.MenuFreshness
	case KeyLightState:
		return age < p.LightFreshness
	default:
		return false
	}
}
