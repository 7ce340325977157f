package scale

import (
	"net/url"
	"strings"

	"codeberg.org/mutker/co2scale/internal/errors"
)

// NormalizeAddress turns operator input such as "first-co2-bottle-scale" or
// "http://scale.fritz.box/" into a base URL without a trailing slash.
func NormalizeAddress(raw string) (string, error) {
	errFactory := errors.New()

	addr := strings.TrimSpace(raw)
	if addr == "" {
		return "", errFactory.WithMessage(errors.ErrInvalidAddress, "scale address must not be empty")
	}

	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}

	u, err := url.Parse(addr)
	if err != nil {
		return "", errFactory.Wrap(errors.ErrInvalidAddress, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return "", errFactory.WithData(errors.ErrInvalidAddress, "unsupported scheme "+u.Scheme)
	}

	if u.Host == "" {
		return "", errFactory.WithData(errors.ErrInvalidAddress, raw)
	}

	return strings.TrimRight(u.String(), "/"), nil
}
