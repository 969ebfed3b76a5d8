package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/reviewtrust/trustscore/internal/domain"
	apperrors "github.com/reviewtrust/trustscore/pkg/errors"
	"github.com/reviewtrust/trustscore/pkg/httputil"
)

// writeError writes err using the standard envelope after translating
// domain failures into application errors.
func writeError(w http.ResponseWriter, r *http.Request, err error, logger *slog.Logger) {
	httputil.WriteError(w, r, translateError(err), logger)
}

func translateError(err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return err
	}

	switch {
	case errors.Is(err, domain.ErrPersistenceConflict):
		return apperrors.Conflict("trust score was modified concurrently, retry the request")
	case errors.Is(err, domain.ErrClassificationTimeout):
		return apperrors.Timeout("classifier")
	case errors.Is(err, domain.ErrClassificationUnavailable):
		return apperrors.ServiceUnavailable("classifier", err)
	case errors.Is(err, domain.ErrInconsistentAggregate), errors.Is(err, domain.ErrInvalidClassification):
		return apperrors.Internal(err)
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Timeout("trust score service")
	}
	return err
}
