package apache

import "github.com/haldor-dev/rtv/pkg/manager"

func init() {
	// Register Apache archives manager
	manager.Register(NewApacheManager())
}