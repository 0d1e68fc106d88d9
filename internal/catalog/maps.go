package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/cs2kz-org/cs2kz-api/internal/db"
	"github.com/cs2kz-org/cs2kz-api/internal/kz"
)

// Maps stores maps, their courses, and their filters.
type Maps struct {
	db *db.DB
}

// NewMaps constructs a Maps store.
func NewMaps(d *db.DB) *Maps { return &Maps{db: d} }

// Map is a row from the maps table.
type Map struct {
	ID         kz.MapID
	Name       string
	Game       kz.Game
	WorkshopID string
	State      kz.MapState
}

// CourseInput describes one course and its filter permutations at
// creation time.
type CourseInput struct {
	Name    string
	Filters []FilterInput
}

// Course is a row from the courses table. LocalID is the per-map
// ordinal a connected game server uses to refer to the course (the
// course_local_id field of a SubmitRecord message), distinct from ID,
// which is the database's own primary key.
type Course struct {
	ID      kz.CourseID
	MapID   kz.MapID
	LocalID uint32
	Name    string
}

// Filter is a row from the filters table.
type Filter struct {
	ID       kz.FilterID
	CourseID kz.CourseID
	Mode     kz.Mode
	NubTier  kz.Tier
	ProTier  kz.Tier
	Ranked   bool
	Notes    string
}

// FilterInput describes one (mode, tier, ranked) filter entry. NubTier and
// ProTier are independent: a filter's teleport-free runs may rank at a
// different difficulty than its teleport-assisted ones.
type FilterInput struct {
	Mode    kz.Mode
	NubTier kz.Tier
	ProTier kz.Tier
	Ranked  bool
	Notes   string
}

// ErrEmptyMappers is returned when a map is created with no mappers.
var ErrEmptyMappers = fmt.Errorf("catalog: map requires at least one mapper")

// ErrInvalidFilterPermutation is returned when a course's filters don't
// exactly cover the modes required for the map's game.
var ErrInvalidFilterPermutation = fmt.Errorf("catalog: course filter set does not match game's required modes")

// ErrUnrankableTier is returned when ranked=true is requested for a filter
// whose tier is not in Tier1..Tier8.
var ErrUnrankableTier = fmt.Errorf("catalog: tier is not rankable")

// ErrMapFrozen is returned when an update attempts to add/remove courses
// on an Approved map.
var ErrMapFrozen = fmt.Errorf("catalog: map is approved and its course set is frozen")

// ErrDuplicateCourseName is returned when two courses in the same map
// share a name.
var ErrDuplicateCourseName = fmt.Errorf("catalog: duplicate course name within map")

// Create inserts a map with its courses and filters. mappers must be
// non-empty; every course's filters must exactly cover the mode set
// required for game; course names must be unique within the map.
func (m *Maps) Create(ctx context.Context, name string, game kz.Game, workshopID string, mappers []kz.UserID, courses []CourseInput) (*Map, error) {
	if len(mappers) == 0 {
		return nil, ErrEmptyMappers
	}
	if err := validateCourseSet(game, courses); err != nil {
		return nil, err
	}

	var mapID int64
	err := m.db.InTransaction(ctx, func(ctx context.Context, q db.Querier) error {
		res, err := q.ExecContext(ctx,
			`INSERT INTO maps (name, game, workshop_id) VALUES (?, ?, ?)`,
			name, uint8(game), workshopID)
		if err != nil {
			return fmt.Errorf("insert map: %w", err)
		}
		mapID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("map id: %w", err)
		}

		for localID, course := range courses {
			cRes, err := q.ExecContext(ctx, `INSERT INTO courses (map_id, name, local_id) VALUES (?, ?, ?)`, mapID, course.Name, localID)
			if err != nil {
				return fmt.Errorf("insert course %q: %w", course.Name, err)
			}
			courseID, err := cRes.LastInsertId()
			if err != nil {
				return fmt.Errorf("course id: %w", err)
			}
			for _, f := range course.Filters {
				_, err := q.ExecContext(ctx,
					`INSERT INTO filters (course_id, mode, nub_tier, pro_tier, ranked, notes) VALUES (?, ?, ?, ?, ?, ?)`,
					courseID, uint8(f.Mode), uint8(f.NubTier), uint8(f.ProTier), boolToInt(f.Ranked), f.Notes)
				if err != nil {
					return fmt.Errorf("insert filter: %w", err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m.GetByID(ctx, kz.MapID(mapID))
}

// validateCourseSet checks that every course's filter set is exactly the
// modes required for game, with rankable tiers where ranked=true.
func validateCourseSet(game kz.Game, courses []CourseInput) error {
	required := kz.ModesForGame(game)
	names := make(map[string]bool, len(courses))

	for _, course := range courses {
		if names[course.Name] {
			return ErrDuplicateCourseName
		}
		names[course.Name] = true

		seen := make(map[kz.Mode]bool, len(required))
		for _, f := range course.Filters {
			if f.Ranked && (!f.NubTier.Rankable() || !f.ProTier.Rankable()) {
				return ErrUnrankableTier
			}
			seen[f.Mode] = true
		}
		if len(seen) != len(required) {
			return ErrInvalidFilterPermutation
		}
		for _, mode := range required {
			if !seen[mode] {
				return ErrInvalidFilterPermutation
			}
		}
	}
	return nil
}

// Approve transitions a map to the Approved state, after which its course
// set is frozen.
func (m *Maps) Approve(ctx context.Context, id kz.MapID) error {
	_, err := m.db.Conn().ExecContext(ctx,
		`UPDATE maps SET state = ?, approved_at = datetime('now') WHERE id = ?`,
		uint8(kz.MapStateApproved), uint64(id))
	if err != nil {
		return fmt.Errorf("catalog: approve map: %w", err)
	}
	return nil
}

// AddCourse adds a course to a map that is not yet Approved.
func (m *Maps) AddCourse(ctx context.Context, mapID kz.MapID, game kz.Game, course CourseInput) error {
	var state int
	if err := m.db.Conn().QueryRowContext(ctx, `SELECT state FROM maps WHERE id = ?`, uint64(mapID)).Scan(&state); err != nil {
		return fmt.Errorf("catalog: load map state: %w", err)
	}
	if kz.MapState(state) == kz.MapStateApproved {
		return ErrMapFrozen
	}
	if err := validateCourseSet(game, []CourseInput{course}); err != nil {
		return err
	}

	return m.db.InTransaction(ctx, func(ctx context.Context, q db.Querier) error {
		var localID int
		if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM courses WHERE map_id = ?`, uint64(mapID)).Scan(&localID); err != nil {
			return fmt.Errorf("next course local_id: %w", err)
		}
		res, err := q.ExecContext(ctx, `INSERT INTO courses (map_id, name, local_id) VALUES (?, ?, ?)`, uint64(mapID), course.Name, localID)
		if err != nil {
			if db.IsUniqueViolation(err, "courses.map_id") {
				return ErrDuplicateCourseName
			}
			return fmt.Errorf("insert course: %w", err)
		}
		courseID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("course id: %w", err)
		}
		for _, f := range course.Filters {
			_, err := q.ExecContext(ctx,
				`INSERT INTO filters (course_id, mode, nub_tier, pro_tier, ranked, notes) VALUES (?, ?, ?, ?, ?, ?)`,
				courseID, uint8(f.Mode), uint8(f.NubTier), uint8(f.ProTier), boolToInt(f.Ranked), f.Notes)
			if err != nil {
				return fmt.Errorf("insert filter: %w", err)
			}
		}
		return nil
	})
}

// GetByID loads a map by id.
func (m *Maps) GetByID(ctx context.Context, id kz.MapID) (*Map, error) {
	row := m.db.Conn().QueryRowContext(ctx, `SELECT id, name, game, workshop_id, state FROM maps WHERE id = ?`, uint64(id))
	return scanMap(row)
}

// GetByName loads a map by its unique name.
func (m *Maps) GetByName(ctx context.Context, name string) (*Map, error) {
	row := m.db.Conn().QueryRowContext(ctx, `SELECT id, name, game, workshop_id, state FROM maps WHERE name = ?`, name)
	return scanMap(row)
}

// GetByIdent loads a map by numeric id or, failing that, by name.
func (m *Maps) GetByIdent(ctx context.Context, ident string) (*Map, error) {
	if id, err := strconv.ParseUint(ident, 10, 64); err == nil {
		return m.GetByID(ctx, kz.MapID(id))
	}
	return m.GetByName(ctx, ident)
}

// GetCourseByLocalID resolves a course by its per-map ordinal, as used by
// a SubmitRecord message's (current_map, course_local_id) pair.
func (m *Maps) GetCourseByLocalID(ctx context.Context, mapID kz.MapID, localID uint32) (*Course, error) {
	row := m.db.Conn().QueryRowContext(ctx,
		`SELECT id, map_id, local_id, name FROM courses WHERE map_id = ? AND local_id = ?`,
		uint64(mapID), localID)
	var c Course
	var id, mid uint64
	err := row.Scan(&id, &mid, &c.LocalID, &c.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: scan course: %w", err)
	}
	c.ID = kz.CourseID(id)
	c.MapID = kz.MapID(mid)
	return &c, nil
}

// GetFilter resolves a course's filter for a given mode, as needed to
// validate and rank a submitted record.
func (m *Maps) GetFilter(ctx context.Context, courseID kz.CourseID, mode kz.Mode) (*Filter, error) {
	row := m.db.Conn().QueryRowContext(ctx,
		`SELECT id, course_id, mode, nub_tier, pro_tier, ranked, notes FROM filters WHERE course_id = ? AND mode = ?`,
		uint64(courseID), uint8(mode))
	var f Filter
	var id, cid uint64
	var modeVal, nubTier, proTier int
	var ranked int
	err := row.Scan(&id, &cid, &modeVal, &nubTier, &proTier, &ranked, &f.Notes)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: scan filter: %w", err)
	}
	f.ID = kz.FilterID(id)
	f.CourseID = kz.CourseID(cid)
	f.Mode = kz.Mode(modeVal)
	f.NubTier = kz.Tier(nubTier)
	f.ProTier = kz.Tier(proTier)
	f.Ranked = ranked != 0
	return &f, nil
}

func scanMap(row *sql.Row) (*Map, error) {
	var mp Map
	var id uint64
	var game int
	var workshopID sql.NullString
	var state int
	err := row.Scan(&id, &mp.Name, &game, &workshopID, &state)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: scan map: %w", err)
	}
	mp.ID = kz.MapID(id)
	mp.Game = kz.Game(game)
	mp.WorkshopID = workshopID.String
	mp.State = kz.MapState(state)
	return &mp, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
