package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"stopboard.dev/gtfs/model"
)

// Layout of the feed tables in the SQL backends. Column types are
// understood by both SQLite and Postgres.
type sqlColumn struct {
	name string
	typ  string
}

type sqlTable struct {
	name    string
	columns []sqlColumn
}

func (t sqlTable) columnNames() []string {
	names := make([]string, len(t.columns))
	for i, c := range t.columns {
		names[i] = c.name
	}
	return names
}

// Renders CREATE TABLE, with extra leading column definitions.
func (t sqlTable) ddl(extra ...string) string {
	defs := append([]string{}, extra...)
	for _, c := range t.columns {
		defs = append(defs, c.name+" "+c.typ)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n    %s\n);\n", t.name, strings.Join(defs, ",\n    "))
}

var sqlTables = map[model.Table]sqlTable{
	model.TableAgency: {"agency", []sqlColumn{
		{"id", "TEXT"},
		{"name", "TEXT NOT NULL"},
		{"url", "TEXT NOT NULL"},
		{"timezone", "TEXT NOT NULL"},
	}},
	model.TableRoutes: {"routes", []sqlColumn{
		{"id", "TEXT NOT NULL"},
		{"agency_id", "TEXT"},
		{"short_name", "TEXT"},
		{"long_name", "TEXT"},
		{"description", "TEXT"},
		{"type", "INTEGER NOT NULL"},
		{"url", "TEXT"},
		{"color", "TEXT"},
		{"text_color", "TEXT"},
	}},
	model.TableCalendar: {"calendar", []sqlColumn{
		{"service_id", "TEXT NOT NULL"},
		{"start_date", "TEXT NOT NULL"},
		{"end_date", "TEXT NOT NULL"},
		{"monday", "INTEGER NOT NULL"},
		{"tuesday", "INTEGER NOT NULL"},
		{"wednesday", "INTEGER NOT NULL"},
		{"thursday", "INTEGER NOT NULL"},
		{"friday", "INTEGER NOT NULL"},
		{"saturday", "INTEGER NOT NULL"},
		{"sunday", "INTEGER NOT NULL"},
	}},
	model.TableCalendarDates: {"calendar_dates", []sqlColumn{
		{"service_id", "TEXT NOT NULL"},
		{"date", "TEXT NOT NULL"},
		{"exception_type", "INTEGER NOT NULL"},
	}},
	model.TableTrips: {"trips", []sqlColumn{
		{"id", "TEXT NOT NULL"},
		{"route_id", "TEXT NOT NULL"},
		{"service_id", "TEXT NOT NULL"},
		{"headsign", "TEXT"},
		{"short_name", "TEXT"},
		{"direction_id", "INTEGER"},
	}},
	model.TableStops: {"stops", []sqlColumn{
		{"id", "TEXT NOT NULL"},
		{"code", "TEXT"},
		{"name", "TEXT"},
		{"description", "TEXT"},
		{"lat", "DOUBLE PRECISION"},
		{"lon", "DOUBLE PRECISION"},
		{"url", "TEXT"},
		{"location_type", "INTEGER NOT NULL"},
		{"parent_station", "TEXT"},
		{"platform_code", "TEXT"},
	}},
	model.TableStopTimes: {"stop_times", []sqlColumn{
		{"trip_id", "TEXT NOT NULL"},
		{"stop_id", "TEXT NOT NULL"},
		{"headsign", "TEXT"},
		{"stop_sequence", "INTEGER NOT NULL"},
		{"arrival_time", "TEXT NOT NULL"},
		{"departure_time", "TEXT NOT NULL"},
	}},
}

// Writes the rows of one feed, one transaction per table.
type sqlFeedWriter struct {
	db *sql.DB

	// Values written ahead of every row, e.g. the feed hash.
	scope []any
	// Records that a table is present in the feed.
	markPresent func(tx *sql.Tx, table model.Table) error
	// Prepares the per-row statement for a table.
	prepare func(tx *sql.Tx, table sqlTable) (*sql.Stmt, error)
	// Set when the statement buffers rows until an argumentless Exec.
	buffered bool
	// Optional work once all tables are written.
	finish func(db *sql.DB) error

	table model.Table
	tx    *sql.Tx
	stmt  *sql.Stmt
}

func (w *sqlFeedWriter) BeginTable(table model.Table) error {
	def, ok := sqlTables[table]
	if !ok {
		return fmt.Errorf("unknown table %s", table)
	}
	if w.tx != nil {
		return fmt.Errorf("beginning %s: %s is still open", table, w.table)
	}

	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning %s: %w", table, err)
	}
	if err := w.markPresent(tx, table); err != nil {
		tx.Rollback()
		return fmt.Errorf("registering %s: %w", table, err)
	}
	stmt, err := w.prepare(tx, def)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing %s: %w", table, err)
	}

	w.table, w.tx, w.stmt = table, tx, stmt
	return nil
}

func (w *sqlFeedWriter) EndTable(table model.Table) error {
	if w.tx == nil || w.table != table {
		return fmt.Errorf("ending %s: table is not open", table)
	}

	if w.buffered {
		if _, err := w.stmt.Exec(); err != nil {
			w.abort()
			return fmt.Errorf("flushing %s: %w", table, err)
		}
	}
	if err := w.stmt.Close(); err != nil {
		w.abort()
		return fmt.Errorf("closing %s: %w", table, err)
	}
	err := w.tx.Commit()
	w.tx, w.stmt = nil, nil
	if err != nil {
		return fmt.Errorf("committing %s: %w", table, err)
	}
	return nil
}

func (w *sqlFeedWriter) abort() {
	if w.tx == nil {
		return
	}
	w.stmt.Close()
	w.tx.Rollback()
	w.tx, w.stmt = nil, nil
}

func (w *sqlFeedWriter) insert(table model.Table, values ...any) error {
	if w.tx == nil || w.table != table {
		return fmt.Errorf("writing %s: table is not open", table)
	}
	args := append(append(make([]any, 0, len(w.scope)+len(values)), w.scope...), values...)
	if _, err := w.stmt.Exec(args...); err != nil {
		w.abort()
		return fmt.Errorf("writing %s: %w", table, err)
	}
	return nil
}

func (w *sqlFeedWriter) WriteAgency(a model.Agency) error {
	return w.insert(model.TableAgency, a.ID, a.Name, a.URL, a.Timezone)
}

func (w *sqlFeedWriter) WriteRoute(r model.Route) error {
	return w.insert(model.TableRoutes,
		r.ID, r.AgencyID, r.ShortName, r.LongName, r.Desc, int(r.Type), r.URL, r.Color, r.TextColor)
}

func (w *sqlFeedWriter) WriteCalendar(c model.Calendar) error {
	days := weekdayColumns(c.Weekday)
	return w.insert(model.TableCalendar,
		c.ServiceID, c.StartDate, c.EndDate,
		days[0], days[1], days[2], days[3], days[4], days[5], days[6])
}

func (w *sqlFeedWriter) WriteCalendarDate(cd model.CalendarDate) error {
	return w.insert(model.TableCalendarDates, cd.ServiceID, cd.Date, int(cd.ExceptionType))
}

func (w *sqlFeedWriter) WriteTrip(t model.Trip) error {
	return w.insert(model.TableTrips,
		t.ID, t.RouteID, t.ServiceID, t.Headsign, t.ShortName, int(t.DirectionID))
}

func (w *sqlFeedWriter) WriteStop(s model.Stop) error {
	return w.insert(model.TableStops,
		s.ID, s.Code, s.Name, s.Desc, s.Lat, s.Lon, s.URL, int(s.LocationType), s.ParentStation, s.PlatformCode)
}

func (w *sqlFeedWriter) WriteStopTime(st model.StopTime) error {
	return w.insert(model.TableStopTimes,
		st.TripID, st.StopID, st.Headsign, int64(st.StopSequence), st.Arrival, st.Departure)
}

func (w *sqlFeedWriter) Close() error {
	w.abort()
	if w.finish != nil {
		return w.finish(w.db)
	}
	return nil
}

// Reads the rows of one feed back in write order.
type sqlFeedReader struct {
	db *sql.DB

	// Restricts rows to the feed, e.g. "WHERE hash = $1".
	where string
	args  []any
	// Column reflecting insertion order.
	order string
}

func selectRows[T any](r *sqlFeedReader, table model.Table, scan func(*sql.Rows, *T) error) ([]T, error) {
	def := sqlTables[table]
	query := fmt.Sprintf("SELECT %s FROM %s %s ORDER BY %s",
		strings.Join(def.columnNames(), ", "), def.name, r.where, r.order)

	rows, err := r.db.Query(query, r.args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", def.name, err)
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		var v T
		if err := scan(rows, &v); err != nil {
			return nil, fmt.Errorf("scanning %s: %w", def.name, err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (r *sqlFeedReader) Tables() ([]model.Table, error) {
	rows, err := r.db.Query("SELECT name FROM feed_tables "+r.where, r.args...)
	if err != nil {
		return nil, fmt.Errorf("querying feed_tables: %w", err)
	}
	defer rows.Close()

	present := map[model.Table]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning feed_tables: %w", err)
		}
		present[model.Table(name)] = true
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	tables := []model.Table{}
	for _, t := range model.Tables {
		if present[t] {
			tables = append(tables, t)
		}
	}
	return tables, nil
}

func (r *sqlFeedReader) Agencies() ([]model.Agency, error) {
	return selectRows(r, model.TableAgency, func(rows *sql.Rows, a *model.Agency) error {
		return rows.Scan(&a.ID, &a.Name, &a.URL, &a.Timezone)
	})
}

func (r *sqlFeedReader) Routes() ([]model.Route, error) {
	return selectRows(r, model.TableRoutes, func(rows *sql.Rows, rt *model.Route) error {
		return rows.Scan(&rt.ID, &rt.AgencyID, &rt.ShortName, &rt.LongName, &rt.Desc,
			&rt.Type, &rt.URL, &rt.Color, &rt.TextColor)
	})
}

func (r *sqlFeedReader) Calendars() ([]model.Calendar, error) {
	return selectRows(r, model.TableCalendar, func(rows *sql.Rows, c *model.Calendar) error {
		var d [7]int
		err := rows.Scan(&c.ServiceID, &c.StartDate, &c.EndDate,
			&d[0], &d[1], &d[2], &d[3], &d[4], &d[5], &d[6])
		c.Weekday = weekdayMask(d)
		return err
	})
}

func (r *sqlFeedReader) CalendarDates() ([]model.CalendarDate, error) {
	return selectRows(r, model.TableCalendarDates, func(rows *sql.Rows, cd *model.CalendarDate) error {
		return rows.Scan(&cd.ServiceID, &cd.Date, &cd.ExceptionType)
	})
}

func (r *sqlFeedReader) Trips() ([]model.Trip, error) {
	return selectRows(r, model.TableTrips, func(rows *sql.Rows, t *model.Trip) error {
		return rows.Scan(&t.ID, &t.RouteID, &t.ServiceID, &t.Headsign, &t.ShortName, &t.DirectionID)
	})
}

func (r *sqlFeedReader) Stops() ([]model.Stop, error) {
	return selectRows(r, model.TableStops, func(rows *sql.Rows, s *model.Stop) error {
		return rows.Scan(&s.ID, &s.Code, &s.Name, &s.Desc, &s.Lat, &s.Lon, &s.URL,
			&s.LocationType, &s.ParentStation, &s.PlatformCode)
	})
}

func (r *sqlFeedReader) StopTimes() ([]model.StopTime, error) {
	return selectRows(r, model.TableStopTimes, func(rows *sql.Rows, st *model.StopTime) error {
		return rows.Scan(&st.TripID, &st.StopID, &st.Headsign, &st.StopSequence, &st.Arrival, &st.Departure)
	})
}

// Feed metadata lives in one table per database. bind renders the
// n:th (1-based) query placeholder.
const feedColumns = "hash, url, retrieved_at, calendar_start, calendar_end, timezone"

func listFeeds(db *sql.DB, bind func(n int) string, filter ListFeedsFilter) ([]*FeedMetadata, error) {
	var conditions []string
	var args []any
	for column, value := range map[string]string{"url": filter.URL, "hash": filter.Hash} {
		if value != "" {
			args = append(args, value)
			conditions = append(conditions, column+" = "+bind(len(args)))
		}
	}

	query := "SELECT " + feedColumns + " FROM feed"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY retrieved_at DESC"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing feeds: %w", err)
	}
	defer rows.Close()

	feeds := []*FeedMetadata{}
	for rows.Next() {
		f := &FeedMetadata{}
		var retrievedAt time.Time
		err := rows.Scan(&f.Hash, &f.URL, &retrievedAt, &f.CalendarStartDate, &f.CalendarEndDate, &f.Timezone)
		if err != nil {
			return nil, fmt.Errorf("scanning feed: %w", err)
		}
		f.RetrievedAt = retrievedAt.UTC()
		feeds = append(feeds, f)
	}
	return feeds, rows.Err()
}

func upsertFeed(db *sql.DB, bind func(n int) string, f *FeedMetadata) error {
	placeholders := make([]string, 6)
	for i := range placeholders {
		placeholders[i] = bind(i + 1)
	}

	_, err := db.Exec(`INSERT INTO feed (`+feedColumns+`)
VALUES (`+strings.Join(placeholders, ", ")+`)
ON CONFLICT (hash, url) DO UPDATE SET
    retrieved_at = excluded.retrieved_at,
    calendar_start = excluded.calendar_start,
    calendar_end = excluded.calendar_end,
    timezone = excluded.timezone`,
		f.Hash, f.URL, f.RetrievedAt.UTC(), f.CalendarStartDate, f.CalendarEndDate, f.Timezone)
	if err != nil {
		return fmt.Errorf("writing feed metadata: %w", err)
	}
	return nil
}
