package storage

import (
	"context"

	"stealthfetch/proxypool/model"
)

// Store persists pool snapshots between runs. Load returns entries in the
// order they were saved; implementations skip corrupt entries instead of
// failing the whole snapshot.
type Store interface {
	Load(ctx context.Context) ([]*model.Proxy, error)
	Save(ctx context.Context, proxies []*model.Proxy) error
}
