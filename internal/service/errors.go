// Package service provides the business logic of Truly.
//
// Services return errors classified by domain.KindOf. Repository failures that
// are not already domain errors are logged and returned wrapped in domain.ErrStore.
package service

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/prn-tf/truly/internal/domain"
)

// storeError wraps an unexpected repository failure in domain.ErrStore.
// Domain errors pass through unchanged.
func storeError(logger zerolog.Logger, op string, err error) error {
	if domain.KindOf(err) != domain.KindInternal {
		return err
	}
	logger.Error().Err(err).Str("op", op).Msg("store operation failed")
	return fmt.Errorf("%w: %s: %v", domain.ErrStore, op, err)
}

// requirePrincipal rejects a missing or anonymous principal.
func requirePrincipal(principal *domain.Principal) error {
	if principal == nil || principal.ID == "" {
		return domain.ErrUnauthorized
	}
	return nil
}
