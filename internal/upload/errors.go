package upload

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/jlehrer1/big-csv/pkg/types"
)

// Classify wraps a storage error with the matching sentinel. Errors it
// cannot place are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, storage.ErrBucketNotExist) || errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("%w: %v", types.ErrNotFound, err)
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch gerr.Code {
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %v", types.ErrAuth, err)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %v", types.ErrNotFound, err)
		}
		if gerr.Code >= 500 {
			return fmt.Errorf("%w: %v", types.ErrNetwork, err)
		}
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", types.ErrNetwork, err)
	}
	return err
}
