package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/CodePlayData/fhir/internal/domain/availability"
	"github.com/CodePlayData/fhir/internal/platform/db"
)

type scheduleRepoPG struct{ pool *pgxpool.Pool }

func NewScheduleRepoPG(pool *pgxpool.Pool) ScheduleRepository { return &scheduleRepoPG{pool: pool} }

func (r *scheduleRepoPG) conn(ctx context.Context) db.Querier {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const schedCols = `id, fhir_id, active, actors, options,
	planning_horizon_start, planning_horizon_end, resource, replaces_id,
	version_id, created_at, updated_at`

func (r *scheduleRepoPG) scanSchedule(row pgx.Row) (*ScheduleDocument, error) {
	var d ScheduleDocument
	var actors, options, resource []byte
	err := row.Scan(&d.ID, &d.FHIRID, &d.Active, &actors, &options,
		&d.Start, &d.End, &resource, &d.ReplacesID,
		&d.VersionID, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrScheduleNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(actors, &d.Actors); err != nil {
		return nil, fmt.Errorf("decode actors of %s: %w", d.ID, err)
	}
	if len(options) > 0 {
		if err := json.Unmarshal(options, &d.Options); err != nil {
			return nil, fmt.Errorf("decode options of %s: %w", d.ID, err)
		}
	}
	d.Resource = resource
	return &d, nil
}

func (r *scheduleRepoPG) SaveSchedule(ctx context.Context, doc *ScheduleDocument) error {
	actors, err := encodeActors(doc.Actors)
	if err != nil {
		return err
	}
	options, err := encodeOptions(doc.Options)
	if err != nil {
		return err
	}
	if doc.VersionID == 0 {
		doc.VersionID = 1
	}
	row := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO schedule (id, fhir_id, active, actors, options,
			planning_horizon_start, planning_horizon_end, resource, replaces_id, version_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at, updated_at`,
		doc.ID, doc.FHIRID, doc.Active, actors, options,
		doc.Start, doc.End, []byte(doc.Resource), doc.ReplacesID, doc.VersionID)
	return row.Scan(&doc.CreatedAt, &doc.UpdatedAt)
}

func (r *scheduleRepoPG) UpdateSchedule(ctx context.Context, filter map[string]string, data map[string]interface{}) (int64, error) {
	f, err := parseFilter(filter)
	if err != nil {
		return 0, err
	}
	u, err := parseUpdate(data)
	if err != nil {
		return 0, err
	}
	set, args, err := setClause(u)
	if err != nil {
		return 0, err
	}
	where, whereArgs := whereClause(f, len(args)+1)
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE schedule SET `+set+where, append(args, whereArgs...)...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *scheduleRepoPG) DeactivateSchedule(ctx context.Context, filter map[string]string) (int64, error) {
	return r.UpdateSchedule(ctx, filter, map[string]interface{}{FieldActive: false})
}

func (r *scheduleRepoPG) FindSchedule(ctx context.Context, filter map[string]string) (*ScheduleDocument, error) {
	f, err := parseFilter(filter)
	if err != nil {
		return nil, err
	}
	where, args := whereClause(f, 1)
	return r.scanSchedule(r.conn(ctx).QueryRow(ctx, `SELECT `+schedCols+` FROM schedule`+where+` LIMIT 1`, args...))
}

func (r *scheduleRepoPG) SearchSchedules(ctx context.Context, filter map[string]string, limit, offset int) ([]*ScheduleDocument, int, error) {
	f, err := parseFilter(filter)
	if err != nil {
		return nil, 0, err
	}
	where, args := whereClause(f, 1)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM schedule`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM schedule%s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		schedCols, where, len(args)+1, len(args)+2)
	var lim interface{}
	if limit > 0 {
		lim = limit
	}
	rows, err := r.conn(ctx).Query(ctx, query, append(args, lim, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := []*ScheduleDocument{}
	for rows.Next() {
		d, err := r.scanSchedule(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}

// whereClause renders f with placeholders numbered from first.
func whereClause(f scheduleFilter, first int) (string, []interface{}) {
	var conds []string
	var args []interface{}
	add := func(cond string, arg interface{}) {
		conds = append(conds, fmt.Sprintf(cond, first+len(args)))
		args = append(args, arg)
	}
	if f.ID != nil {
		add("id = $%d", *f.ID)
	}
	if f.FHIRID != nil {
		add("fhir_id = $%d", *f.FHIRID)
	}
	if f.Active != nil {
		add("active = $%d", *f.Active)
	}
	if f.ActorType != nil {
		add("actors @> $%d::jsonb", fmt.Sprintf(`[{"type":%q}]`, string(*f.ActorType)))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// setClause renders u with placeholders numbered from 1. Every update bumps
// the version.
func setClause(u scheduleUpdate) (string, []interface{}, error) {
	var sets []string
	var args []interface{}
	add := func(col string, arg interface{}) {
		args = append(args, arg)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if u.Active != nil {
		add("active", *u.Active)
	}
	if u.Actors != nil {
		b, err := encodeActors(*u.Actors)
		if err != nil {
			return "", nil, err
		}
		add("actors", b)
	}
	if u.Options != nil {
		b, err := encodeOptions(*u.Options)
		if err != nil {
			return "", nil, err
		}
		add("options", b)
	}
	if u.Start != nil {
		add("planning_horizon_start", *u.Start)
	}
	if u.End != nil {
		add("planning_horizon_end", *u.End)
	}
	if u.Resource != nil {
		add("resource", []byte(u.Resource))
	}
	if u.ReplacesID != nil {
		add("replaces_id", *u.ReplacesID)
	}
	sets = append(sets, "version_id = version_id + 1", "updated_at = NOW()")
	return strings.Join(sets, ", "), args, nil
}

func encodeActors(actors []availability.BookableActor) ([]byte, error) {
	if actors == nil {
		actors = []availability.BookableActor{}
	}
	b, err := json.Marshal(actors)
	if err != nil {
		return nil, fmt.Errorf("encode actors: %w", err)
	}
	return b, nil
}

func encodeOptions(o *availability.ScheduleOptions) ([]byte, error) {
	if o == nil {
		return nil, nil
	}
	b, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("encode options: %w", err)
	}
	return b, nil
}
