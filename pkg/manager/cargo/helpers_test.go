package cargo

import "github.com/haldor-dev/rtv/pkg/types"

func packageFixture(name string, extra map[string]interface{}) types.Package {
	return types.Package{Name: name, Manager: "cargo", Extra: extra}
}
