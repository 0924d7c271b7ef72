package httpadapter

import (
	"net/http"

	"github.com/kirillkom/graphrag-dialogue/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrSessionNotFound), domain.IsKind(err, domain.ErrNodeNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrGraphStructural):
		return http.StatusUnprocessableEntity
	case domain.IsKind(err, domain.ErrTemporary), domain.IsKind(err, domain.ErrBackendTimeout):
		return http.StatusServiceUnavailable
	case domain.IsKind(err, domain.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
