//go:build !linux

package platform

func PinToCore(core int) error {
	return ErrNotSupported
}

func CurrentCPUs() ([]int, error) {
	return nil, ErrNotSupported
}
