package storage

import "time"

// SetClock reemplaza el reloj usado para TTL y fetched_ms.
func (s *SQLiteStorage) SetClock(now func() time.Time) { s.now = now }
