package ports

import (
	"context"

	"github.com/afuentes7/kalshibot/internal/domain"
)

// TickSource produce el stream ordenado de ticks que alimenta el engine.
// Next devuelve io.EOF al agotar una fuente histórica; las fuentes live
// bloquean esperando datos nuevos y emiten heartbeats mientras tanto.
type TickSource interface {
	Next(ctx context.Context) (domain.Tick, error)
	Close() error
}
