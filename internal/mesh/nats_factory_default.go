//go:build !nats

package mesh

import "fmt"

// NewNatsBus in builds without the nats tag always errors; cmd/server treats
// the error as "fall back to the in-process bus".
func NewNatsBus(url string) (Bus, error) {
	return nil, fmt.Errorf("mesh: nats support not compiled in (build with -tags nats)")
}
