package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCapital se devuelve cuando el capital inicial no es positivo.
	ErrInvalidCapital = errors.New("initial capital must be positive")
	// ErrNoAssets se devuelve cuando el vault no define ningún asset.
	ErrNoAssets = errors.New("vault has no assets")
)

// InvalidRangeError indica un rango temporal vacío o invertido. Sin él,
// yearsElapsed sería 0 o negativo y el retorno anualizado daría NaN/Inf.
type InvalidRangeError struct {
	Start time.Time
	End   time.Time
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid backtest range: end %s is not after start %s",
		e.End.Format(time.RFC3339), e.Start.Format(time.RFC3339))
}
