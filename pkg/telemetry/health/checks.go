package health

import (
	"context"
	"errors"
	"fmt"
	"os"

	"mercator-hq/claimaudit/pkg/store"
)

// CatalogCheck fails while the active catalog has no rules. rules is called
// on every check so reloads are observed.
func CatalogCheck(rules func() int) CheckFunc {
	return func(context.Context) error {
		if rules() == 0 {
			return errors.New("no rules loaded")
		}
		return nil
	}
}

// StoreCheck fails when the run store cannot be queried.
func StoreCheck(s store.Storage) CheckFunc {
	return func(ctx context.Context) error {
		if _, err := s.CountRuns(ctx, nil); err != nil {
			return fmt.Errorf("run store: %w", err)
		}
		return nil
	}
}

// DirCheck fails when path is not an existing directory.
func DirCheck(path string) CheckFunc {
	return func(context.Context) error {
		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", path)
		}
		return nil
	}
}
