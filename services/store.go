package services

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"smartbee/models"
)

// Gateway is the persistence boundary the pipeline depends on. "No rows" is
// signalled with typed emptiness (nil result, nil error); an error always
// means a genuine connectivity or query failure.
type Gateway interface {
	InsertReading(ctx context.Context, r *models.Reading) error
	InsertAlert(ctx context.Context, a *models.AlertEvent) error
	LatestReading(ctx context.Context, nodeID string) (*models.Reading, error)
	HistoricalReadings(ctx context.Context, nodeID string, start, end time.Time, limit int) ([]models.Reading, error)
	Aggregates(ctx context.Context, nodeID string, start, end time.Time, bucket string) ([]models.Aggregate, error)
	NodeType(ctx context.Context, nodeID string) (string, error)
	LastSeenByNode(ctx context.Context) (map[string]time.Time, error)
}

// ErrBadBucket is returned for an aggregation bucket outside the allowed set.
var ErrBadBucket = errors.New("bucket must be one of hour, day, week, month")

// Store is the Postgres-backed Gateway.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store backed by a pgx pool.
func NewStore(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool resources.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

const insertRawMessageSQL = `
    INSERT INTO nodo_mensaje (nodo_id, payload, fecha)
    VALUES ($1, $2, $3)
`

const insertReadingSQL = `
    INSERT INTO datos_sensores (nodo_id, temperatura, humedad, peso, nivel_bateria, fuerza_senal, fecha)
    VALUES ($1, $2, $3, $4, $5, $6, $7)
`

// InsertReading stores the raw message and the structured reading in one
// transaction so audit and query data never diverge.
func (s *Store) InsertReading(ctx context.Context, r *models.Reading) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, insertRawMessageSQL, r.NodeID, r.RawPayload, r.Timestamp); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, insertReadingSQL,
		r.NodeID, r.Temperature, r.Humidity, r.Weight, r.Battery, r.Signal, r.Timestamp,
	); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const insertAlertSQL = `
    INSERT INTO alertas (nodo_id, tipo, mensaje, valor, severidad, fecha_creacion)
    VALUES ($1, $2, $3, $4, $5, $6)
`

// InsertAlert stores one alert record.
func (s *Store) InsertAlert(ctx context.Context, a *models.AlertEvent) error {
	_, err := s.pool.Exec(ctx, insertAlertSQL,
		a.NodeID, string(a.Kind), a.Message, a.Value, string(a.Severity), a.TriggeredAt,
	)
	return err
}

const latestReadingSQL = `
    SELECT nodo_id, temperatura, humedad, peso, nivel_bateria, fuerza_senal, fecha
    FROM datos_sensores
    WHERE nodo_id = $1
    ORDER BY fecha DESC
    LIMIT 1
`

// LatestReading returns the most recent reading for a node, or nil when the
// node has never reported.
func (s *Store) LatestReading(ctx context.Context, nodeID string) (*models.Reading, error) {
	row := s.pool.QueryRow(ctx, latestReadingSQL, nodeID)

	var r models.Reading
	err := row.Scan(&r.NodeID, &r.Temperature, &r.Humidity, &r.Weight, &r.Battery, &r.Signal, &r.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

const historicalReadingsSQL = `
    SELECT nodo_id, temperatura, humedad, peso, nivel_bateria, fuerza_senal, fecha
    FROM datos_sensores
    WHERE nodo_id = $1 AND fecha BETWEEN $2 AND $3
    ORDER BY fecha ASC
    LIMIT $4
`

// HistoricalReadings returns readings for a node within [start, end].
func (s *Store) HistoricalReadings(ctx context.Context, nodeID string, start, end time.Time, limit int) ([]models.Reading, error) {
	rows, err := s.pool.Query(ctx, historicalReadingsSQL, nodeID, start, end, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	readings := make([]models.Reading, 0)
	for rows.Next() {
		var r models.Reading
		if err := rows.Scan(&r.NodeID, &r.Temperature, &r.Humidity, &r.Weight, &r.Battery, &r.Signal, &r.Timestamp); err != nil {
			return nil, err
		}
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

const aggregatesSQL = `
    SELECT
        date_trunc($4, fecha) AS bucket,
        AVG(temperatura), MIN(temperatura), MAX(temperatura),
        AVG(humedad), MIN(humedad), MAX(humedad),
        AVG(peso), MIN(peso), MAX(peso),
        COUNT(*)
    FROM datos_sensores
    WHERE nodo_id = $1 AND fecha BETWEEN $2 AND $3
    GROUP BY bucket
    ORDER BY bucket
`

var allowedBuckets = map[string]bool{"hour": true, "day": true, "week": true, "month": true}

// Aggregates returns per-bucket min/max/avg history for a node.
func (s *Store) Aggregates(ctx context.Context, nodeID string, start, end time.Time, bucket string) ([]models.Aggregate, error) {
	if !allowedBuckets[bucket] {
		return nil, ErrBadBucket
	}

	rows, err := s.pool.Query(ctx, aggregatesSQL, nodeID, start, end, bucket)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	aggs := make([]models.Aggregate, 0)
	for rows.Next() {
		var a models.Aggregate
		if err := rows.Scan(
			&a.Bucket,
			&a.AvgTemperature, &a.MinTemperature, &a.MaxTemperature,
			&a.AvgHumidity, &a.MinHumidity, &a.MaxHumidity,
			&a.AvgWeight, &a.MinWeight, &a.MaxWeight,
			&a.ReadingsCount,
		); err != nil {
			return nil, err
		}
		aggs = append(aggs, a)
	}
	return aggs, rows.Err()
}

const nodeTypeSQL = `
    SELECT tipo FROM nodos WHERE id = $1 AND activo
`

// NodeType returns a node's registered type, or "" for an unknown node.
func (s *Store) NodeType(ctx context.Context, nodeID string) (string, error) {
	var tipo string
	err := s.pool.QueryRow(ctx, nodeTypeSQL, nodeID).Scan(&tipo)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return tipo, nil
}

const lastSeenSQL = `
    SELECT nodo_id, MAX(fecha)
    FROM datos_sensores
    GROUP BY nodo_id
`

// LastSeenByNode returns the most recent reading time per node, used to seed
// the status monitor at startup.
func (s *Store) LastSeenByNode(ctx context.Context) (map[string]time.Time, error) {
	rows, err := s.pool.Query(ctx, lastSeenSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := make(map[string]time.Time)
	for rows.Next() {
		var nodeID string
		var ts time.Time
		if err := rows.Scan(&nodeID, &ts); err != nil {
			return nil, err
		}
		seen[nodeID] = ts
	}
	return seen, rows.Err()
}
