package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"unitmap/internal/unit"
)

// SQLite persists the unit corpus in a SQLite database. Units are stored as
// documents with JSON-encoded dependency and relationship fields; a
// secondary index on cluster_id serves cluster lookups.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at dbPath.
func OpenSQLite(dbPath string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s := &SQLite{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func (s *SQLite) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS units (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		kind TEXT NOT NULL,
		code TEXT NOT NULL,
		line_start INTEGER,
		line_end INTEGER,
		static_dependencies TEXT,
		dynamic_relationships TEXT,
		cluster_id TEXT,
		original_source TEXT,
		metadata TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_units_cluster ON units(cluster_id);
	CREATE INDEX IF NOT EXISTS idx_units_name ON units(name);
	CREATE TABLE IF NOT EXISTS edges (
		id TEXT PRIMARY KEY,
		source_id TEXT NOT NULL,
		target_id TEXT NOT NULL,
		type TEXT NOT NULL,
		UNIQUE(source_id, target_id, type)
	);
	CREATE INDEX IF NOT EXISTS idx_edges_source ON edges(source_id);
	CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close releases the underlying database handle.
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const unitColumns = `id, name, kind, code, line_start, line_end,
	static_dependencies, dynamic_relationships, cluster_id, original_source, metadata`

func (s *SQLite) GetUnit(ctx context.Context, id string) (*unit.Unit, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+unitColumns+` FROM units WHERE id = ?`, id)
	u, err := scanUnit(row)
	if err == sql.ErrNoRows {
		return nil, unit.NotFoundf("unit %q", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get unit: %w", err)
	}
	return u, nil
}

// PutUnits upserts one batch inside a single transaction; the batch either
// fully commits or is rejected as a whole.
func (s *SQLite) PutUnits(ctx context.Context, units []unit.Unit) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO units (`+unitColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name=excluded.name,
		kind=excluded.kind,
		code=excluded.code,
		line_start=excluded.line_start,
		line_end=excluded.line_end,
		static_dependencies=excluded.static_dependencies,
		dynamic_relationships=excluded.dynamic_relationships,
		cluster_id=excluded.cluster_id,
		original_source=excluded.original_source,
		metadata=excluded.metadata`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, u := range units {
		if u.ID == "" {
			tx.Rollback()
			return &unit.ValidationError{Field: "id", Reason: "empty"}
		}
		deps, _ := json.Marshal(u.StaticDependencies)
		rels, _ := json.Marshal(u.DynamicRelationships)
		meta, _ := json.Marshal(u.Metadata)
		if _, err := stmt.ExecContext(ctx,
			u.ID, u.Name, string(u.Kind), u.Code, u.LineStart, u.LineEnd,
			string(deps), string(rels), u.ClusterID, u.OriginalSource, string(meta),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("upsert unit %s: %w", u.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) GetAllUnits(ctx context.Context) ([]unit.Unit, error) {
	return s.queryUnits(ctx, `SELECT `+unitColumns+` FROM units ORDER BY id`)
}

func (s *SQLite) GetUnitsByCluster(ctx context.Context, clusterID string) ([]unit.Unit, error) {
	return s.queryUnits(ctx,
		`SELECT `+unitColumns+` FROM units WHERE cluster_id = ? ORDER BY id`, clusterID)
}

func (s *SQLite) queryUnits(ctx context.Context, query string, args ...any) ([]unit.Unit, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query units: %w", err)
	}
	defer rows.Close()

	var units []unit.Unit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan unit: %w", err)
		}
		units = append(units, *u)
	}
	return units, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUnit(row rowScanner) (*unit.Unit, error) {
	var u unit.Unit
	var kind, deps, rels, meta string
	var clusterID sql.NullString
	if err := row.Scan(&u.ID, &u.Name, &kind, &u.Code, &u.LineStart, &u.LineEnd,
		&deps, &rels, &clusterID, &u.OriginalSource, &meta); err != nil {
		return nil, err
	}
	u.Kind = unit.Kind(kind)
	u.ClusterID = clusterID.String
	if deps != "" {
		json.Unmarshal([]byte(deps), &u.StaticDependencies)
	}
	if rels != "" {
		json.Unmarshal([]byte(rels), &u.DynamicRelationships)
	}
	if meta != "" {
		json.Unmarshal([]byte(meta), &u.Metadata)
	}
	return &u, nil
}

// PutEdges upserts edges in one transaction. The UNIQUE(source, target,
// type) constraint makes re-ingestion of an identical edge set a no-op.
func (s *SQLite) PutEdges(ctx context.Context, edges []unit.Edge) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO edges (id, source_id, target_id, type) VALUES (?, ?, ?, ?)
	ON CONFLICT(source_id, target_id, type) DO NOTHING`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range edges {
		if _, err := stmt.ExecContext(ctx, e.ID, e.SourceID, e.TargetID, string(e.Type)); err != nil {
			tx.Rollback()
			return fmt.Errorf("upsert edge %s: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

func (s *SQLite) GetEdges(ctx context.Context, unitID string, dir unit.Direction) ([]unit.Edge, error) {
	var query string
	args := []any{unitID}
	switch dir {
	case unit.DirectionOut:
		query = `SELECT id, source_id, target_id, type FROM edges WHERE source_id = ? ORDER BY id`
	case unit.DirectionIn:
		query = `SELECT id, source_id, target_id, type FROM edges WHERE target_id = ? ORDER BY id`
	default:
		query = `SELECT id, source_id, target_id, type FROM edges
			WHERE source_id = ? OR target_id = ? ORDER BY id`
		args = append(args, unitID)
	}
	return s.queryEdges(ctx, query, args...)
}

func (s *SQLite) GetAllEdges(ctx context.Context) ([]unit.Edge, error) {
	return s.queryEdges(ctx, `SELECT id, source_id, target_id, type FROM edges ORDER BY id`)
}

func (s *SQLite) queryEdges(ctx context.Context, query string, args ...any) ([]unit.Edge, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query edges: %w", err)
	}
	defer rows.Close()

	var edges []unit.Edge
	for rows.Next() {
		var e unit.Edge
		var typ string
		if err := rows.Scan(&e.ID, &e.SourceID, &e.TargetID, &typ); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		e.Type = unit.EdgeType(typ)
		edges = append(edges, e)
	}
	return edges, rows.Err()
}

func (s *SQLite) FindUnitIDsByName(ctx context.Context, name string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM units WHERE name = ? ORDER BY id`, name)
	if err != nil {
		return nil, fmt.Errorf("find by name: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
