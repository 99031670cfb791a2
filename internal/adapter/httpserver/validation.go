package httpserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/reachby3cs/engage/internal/domain"
)

// maxBodyBytes caps JSON request bodies. Crawled posts top out at 10k
// characters, so 1MB leaves generous headroom.
const maxBodyBytes = 1 << 20

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// decodeValid decodes the JSON body into dst and runs validator tags.
// The returned map carries field→tag pairs suitable as error details.
func decodeValid(r *http.Request, dst any) (map[string]string, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return nil, fmt.Errorf("%w: invalid json", domain.ErrInvalidArgument)
	}
	if err := getValidator().Struct(dst); err != nil {
		verrs := map[string]string{}
		if ve, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range ve {
				verrs[strings.ToLower(fe.Field())] = fe.Tag()
			}
		}
		return verrs, fmt.Errorf("%w: validation failed", domain.ErrInvalidArgument)
	}
	return nil, nil
}

var validConfigName = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// validateConfigName rejects names that could not have been scheduled.
func validateConfigName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: config name required", domain.ErrInvalidArgument)
	}
	if len(name) > 100 {
		return fmt.Errorf("%w: config name too long (max 100 characters)", domain.ErrInvalidArgument)
	}
	if !validConfigName.MatchString(name) {
		return fmt.Errorf("%w: config name contains invalid characters", domain.ErrInvalidArgument)
	}
	return nil
}
