package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/ataa/internal/model"
)

// table describes how one entity maps onto SQL.
type table struct {
	name    string
	columns []string
	// nullable columns are optional references: '' is written as NULL and
	// NULL is read back as ''.
	nullable map[string]bool
	// defaulted columns fall back to a SQL literal when written empty.
	defaulted map[string]string
	// orderBy is the natural order before the id tiebreaker.
	orderBy string

	selectList string
	upsertSQL  string
}

func set(cols ...string) map[string]bool {
	m := make(map[string]bool, len(cols))
	for _, c := range cols {
		m[c] = true
	}
	return m
}

var syncDefault = map[string]string{"sync_status": "'pending'"}

var tables = map[model.EntityType]*table{
	model.EntityZone: {
		name:     "zones",
		columns:  []string{"id", "name", "description", "parent_zone_id", "created_at"},
		nullable: set("parent_zone_id"),
		orderBy:  "created_at ASC",
	},
	model.EntityShelter: {
		name:    "shelters",
		columns: []string{"id", "zone_id", "name", "capacity", "created_at", "updated_at"},
		orderBy: "created_at ASC",
	},
	model.EntityPickupPoint: {
		name:     "pickup_points",
		columns:  []string{"id", "zone_id", "shelter_id", "name", "description", "created_at"},
		nullable: set("shelter_id"),
		orderBy:  "created_at ASC",
	},
	model.EntityHousehold: {
		name: "households",
		columns: []string{
			"id", "token", "zone_id", "shelter_id", "head_of_household_name", "family_size",
			"displacement_status", "vulnerability_flags", "priority_score", "area_description",
			"notes", "created_by", "created_at", "updated_at", "sync_status",
		},
		nullable:  set("shelter_id"),
		defaulted: syncDefault,
		orderBy:   "created_at ASC",
	},
	model.EntityMember: {
		name: "household_members",
		columns: []string{
			"id", "household_id", "age_band", "sex", "special_needs_flags",
			"created_at", "updated_at", "sync_status",
		},
		defaulted: syncDefault,
		orderBy:   "created_at ASC",
	},
	model.EntityNeed: {
		name: "needs",
		columns: []string{
			"id", "household_id", "category", "description", "quantity", "urgency", "status",
			"created_by", "created_at", "updated_at", "sync_status",
		},
		defaulted: syncDefault,
		orderBy:   "created_at ASC",
	},
	model.EntityOffer: {
		name: "offers",
		columns: []string{
			"id", "zone_id", "created_by", "household_id", "donor_id", "category", "description",
			"quantity", "expiry", "status", "created_at", "updated_at", "sync_status",
		},
		nullable:  set("household_id"),
		defaulted: syncDefault,
		orderBy:   "created_at ASC",
	},
	model.EntityRequest: {
		name: "requests",
		columns: []string{
			"id", "household_id", "zone_id", "category", "description", "quantity", "status",
			"created_at", "updated_at", "sync_status",
		},
		nullable:  set("household_id"),
		defaulted: syncDefault,
		orderBy:   "created_at ASC",
	},
	model.EntityMatch: {
		name:     "matches",
		columns:  []string{"id", "offer_id", "request_id", "status", "pickup_point_id", "created_at", "updated_at"},
		nullable: set("pickup_point_id"),
		orderBy:  "created_at ASC",
	},
	model.EntityInventory: {
		name: "inventory",
		columns: []string{
			"id", "location_id", "location_type", "category", "item_name", "qty_available",
			"qty_reserved", "batch_info", "expiry_date", "created_at", "updated_at",
		},
		orderBy: "category ASC, item_name ASC",
	},
	model.EntityDistribution: {
		name: "distributions",
		columns: []string{
			"id", "household_id", "location_id", "status", "items", "distributed_by",
			"distributed_at", "created_at", "updated_at", "sync_status",
		},
		defaulted: syncDefault,
		orderBy:   "created_at ASC",
	},
	model.EntityAuditLog: {
		name: "audit_log",
		columns: []string{
			"id", "actor_id", "actor_role", "action", "entity_type", "entity_id", "details", "timestamp",
		},
		orderBy: "timestamp ASC",
	},
}

func init() {
	for _, t := range tables {
		t.build()
	}
}

func (t *table) build() {
	sel := make([]string, len(t.columns))
	vals := make([]string, len(t.columns))
	var updates []string
	for i, c := range t.columns {
		sel[i] = c
		vals[i] = ":" + c
		if t.nullable[c] {
			sel[i] = fmt.Sprintf("COALESCE(%s, '') AS %s", c, c)
			vals[i] = fmt.Sprintf("NULLIF(:%s, '')", c)
		}
		if def, ok := t.defaulted[c]; ok {
			vals[i] = fmt.Sprintf("COALESCE(NULLIF(:%s, ''), %s)", c, def)
		}
		if c != "id" {
			updates = append(updates, fmt.Sprintf("%s = excluded.%s", c, c))
		}
	}
	t.selectList = strings.Join(sel, ", ")
	t.upsertSQL = fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(id) DO UPDATE SET %s",
		t.name, strings.Join(t.columns, ", "), strings.Join(vals, ", "), strings.Join(updates, ", "),
	)
}

func (t *table) hasColumn(c string) bool {
	for _, col := range t.columns {
		if col == c {
			return true
		}
	}
	return false
}

func lookup(entity model.EntityType) (*table, error) {
	t, ok := tables[entity]
	if !ok {
		return nil, model.Validationf("entity %q has no table", entity)
	}
	return t, nil
}

// Get loads one record by ID. Returns a NotFound error when absent.
func (t *Tx) Get(ctx context.Context, entity model.EntityType, id string) (model.Record, error) {
	rec := model.NewRecord(entity)
	if rec == nil {
		return nil, model.Validationf("unknown entity type %q", entity)
	}
	if err := t.getInto(ctx, entity, id, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (t *Tx) getInto(ctx context.Context, entity model.EntityType, id string, dest any) error {
	tbl, err := lookup(entity)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", tbl.selectList, tbl.name)
	if err := t.tx.GetContext(ctx, dest, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.NotFound(entity, id)
		}
		return fmt.Errorf("get %s %s: %w", entity, id, err)
	}
	return nil
}

// Exists reports whether a record with id is stored.
func (t *Tx) Exists(ctx context.Context, entity model.EntityType, id string) (bool, error) {
	tbl, err := lookup(entity)
	if err != nil {
		return false, err
	}
	var n int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE id = ?", tbl.name)
	if err := t.tx.GetContext(ctx, &n, query, id); err != nil {
		return false, fmt.Errorf("exists %s %s: %w", entity, id, err)
	}
	return n > 0, nil
}

// Upsert validates rec and writes it keyed by ID. An existing row is
// updated in place (never deleted and re-inserted, so cascades do not
// fire). Constraint failures are returned unwrapped from the driver.
func (t *Tx) Upsert(ctx context.Context, rec model.Record) error {
	if n, ok := rec.(model.Normalizer); ok {
		n.Normalize()
	}
	if err := rec.Validate(); err != nil {
		return err
	}
	tbl, err := lookup(rec.Entity())
	if err != nil {
		return err
	}
	if _, err := t.tx.NamedExecContext(ctx, tbl.upsertSQL, rec); err != nil {
		return fmt.Errorf("upsert %s %s: %w", rec.Entity(), rec.RecordID(), err)
	}
	return nil
}

// Query returns records of entity matching f, in stable order.
func (t *Tx) Query(ctx context.Context, entity model.EntityType, f Filter) ([]model.Record, error) {
	tbl, err := lookup(entity)
	if err != nil {
		return nil, err
	}
	query, args, err := f.compile(tbl)
	if err != nil {
		return nil, err
	}
	rows, err := t.tx.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", entity, err)
	}
	defer rows.Close()

	var out []model.Record
	for rows.Next() {
		rec := model.NewRecord(entity)
		if err := rows.StructScan(rec); err != nil {
			return nil, fmt.Errorf("scan %s: %w", entity, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s: %w", entity, err)
	}
	return out, nil
}

// selectAll runs f against entity's table and scans into a typed slice.
func selectAll[T any](ctx context.Context, t *Tx, entity model.EntityType, f Filter) ([]T, error) {
	tbl, err := lookup(entity)
	if err != nil {
		return nil, err
	}
	query, args, err := f.compile(tbl)
	if err != nil {
		return nil, err
	}
	var out []T
	if err := t.tx.SelectContext(ctx, &out, query, args...); err != nil {
		return nil, fmt.Errorf("query %s: %w", entity, err)
	}
	return out, nil
}
