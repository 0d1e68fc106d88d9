package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cs2kz-org/cs2kz-api/internal/db"
	"github.com/cs2kz-org/cs2kz-api/internal/kz"
	"github.com/cs2kz-org/cs2kz-api/internal/semver"
)

// PluginVersions stores published plugin versions and their per-mode/style
// checksum bindings.
type PluginVersions struct {
	db *db.DB
}

// NewPluginVersions constructs a PluginVersions store.
func NewPluginVersions(d *db.DB) *PluginVersions { return &PluginVersions{db: d} }

// PluginVersion is a row from the plugin_versions table.
type PluginVersion struct {
	ID          kz.PluginVersionID
	SemVer      semver.Version
	GitRevision string
	IsCutoff    bool
}

// Checksum binds a native mode/style code to a checksum for one plugin build.
type Checksum struct {
	Code     uint8
	Checksum uint32
}

// ErrPluginVersionExists is returned when the git revision or the semver
// already has a row.
var ErrPluginVersionExists = fmt.Errorf("catalog: plugin version already exists")

// ErrPluginVersionTooOld is returned when the new version compares strictly
// less than the latest published version.
var ErrPluginVersionTooOld = fmt.Errorf("catalog: plugin version is older than latest")

// Publish inserts a new plugin version, rejecting duplicates and versions
// older than the current latest. Versions are not tracked per game: the
// comparison is against the latest version of any game.
func (p *PluginVersions) Publish(ctx context.Context, v semver.Version, gitRevision string, modeChecksums, styleChecksums []Checksum) (*PluginVersion, error) {
	latest, err := p.Latest(ctx)
	if err != nil {
		return nil, err
	}
	if latest != nil && semver.LessThan(v, latest.SemVer) {
		return nil, ErrPluginVersionTooOld
	}

	var id int64
	err = p.db.InTransaction(ctx, func(ctx context.Context, q db.Querier) error {
		res, err := q.ExecContext(ctx,
			`INSERT INTO plugin_versions (semver, git_revision) VALUES (?, ?)`,
			v.String(), gitRevision)
		if err != nil {
			if db.IsUniqueViolation(err, "semver") || db.IsUniqueViolation(err, "git_revision") {
				return ErrPluginVersionExists
			}
			return fmt.Errorf("insert plugin version: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("plugin version id: %w", err)
		}
		for _, c := range modeChecksums {
			if _, err := q.ExecContext(ctx,
				`INSERT INTO mode_checksums (plugin_version_id, mode, checksum) VALUES (?, ?, ?)`,
				id, c.Code, c.Checksum); err != nil {
				return fmt.Errorf("insert mode checksum: %w", err)
			}
		}
		for _, c := range styleChecksums {
			if _, err := q.ExecContext(ctx,
				`INSERT INTO style_checksums (plugin_version_id, style, checksum) VALUES (?, ?, ?)`,
				id, c.Code, c.Checksum); err != nil {
				return fmt.Errorf("insert style checksum: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p.GetByID(ctx, kz.PluginVersionID(id))
}

// MarkCutoff flags a plugin version as a cutoff: servers running it are
// rejected at handshake.
func (p *PluginVersions) MarkCutoff(ctx context.Context, id kz.PluginVersionID) error {
	_, err := p.db.Conn().ExecContext(ctx, `UPDATE plugin_versions SET is_cutoff = 1 WHERE id = ?`, uint64(id))
	if err != nil {
		return fmt.Errorf("catalog: mark cutoff: %w", err)
	}
	return nil
}

// Latest returns the highest-SemVer published plugin version, or nil if
// none exist. Ordering happens in Go rather than SQL because SemVer
// precedence (pre-release handling in particular) isn't a lexical string
// comparison.
func (p *PluginVersions) Latest(ctx context.Context) (*PluginVersion, error) {
	rows, err := p.db.Conn().QueryContext(ctx, `SELECT id, semver, git_revision, is_cutoff FROM plugin_versions`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list plugin versions: %w", err)
	}
	defer rows.Close()

	var latest *PluginVersion
	for rows.Next() {
		pv, err := scanPluginVersionRows(rows)
		if err != nil {
			return nil, err
		}
		if latest == nil || semver.LessThan(latest.SemVer, pv.SemVer) {
			latest = pv
		}
	}
	return latest, rows.Err()
}

// GetByID loads a plugin version by id.
func (p *PluginVersions) GetByID(ctx context.Context, id kz.PluginVersionID) (*PluginVersion, error) {
	row := p.db.Conn().QueryRowContext(ctx,
		`SELECT id, semver, git_revision, is_cutoff FROM plugin_versions WHERE id = ?`, uint64(id))
	return scanPluginVersion(row)
}

// GetBySemVer loads a plugin version by its exact version string.
func (p *PluginVersions) GetBySemVer(ctx context.Context, v semver.Version) (*PluginVersion, error) {
	row := p.db.Conn().QueryRowContext(ctx,
		`SELECT id, semver, git_revision, is_cutoff FROM plugin_versions WHERE semver = ?`, v.String())
	return scanPluginVersion(row)
}

// ChecksumTables returns the checksum→mode and checksum→style lookup
// tables restricted to one plugin version, used at handshake time.
func (p *PluginVersions) ChecksumTables(ctx context.Context, id kz.PluginVersionID) (modes map[uint32]kz.Mode, styles map[uint32]kz.Styles, err error) {
	modes = make(map[uint32]kz.Mode)
	styles = make(map[uint32]kz.Styles)

	rows, err := p.db.Conn().QueryContext(ctx, `SELECT mode, checksum FROM mode_checksums WHERE plugin_version_id = ?`, uint64(id))
	if err != nil {
		return nil, nil, fmt.Errorf("catalog: load mode checksums: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var mode uint8
		var checksum uint32
		if err := rows.Scan(&mode, &checksum); err != nil {
			return nil, nil, fmt.Errorf("catalog: scan mode checksum: %w", err)
		}
		modes[checksum] = kz.Mode(mode)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	styleRows, err := p.db.Conn().QueryContext(ctx, `SELECT style, checksum FROM style_checksums WHERE plugin_version_id = ?`, uint64(id))
	if err != nil {
		return nil, nil, fmt.Errorf("catalog: load style checksums: %w", err)
	}
	defer styleRows.Close()
	for styleRows.Next() {
		var style uint8
		var checksum uint32
		if err := styleRows.Scan(&style, &checksum); err != nil {
			return nil, nil, fmt.Errorf("catalog: scan style checksum: %w", err)
		}
		styles[checksum] = kz.Styles(1) << style
	}
	return modes, styles, styleRows.Err()
}

func scanPluginVersion(row *sql.Row) (*PluginVersion, error) { return scanPluginVersionScanner(row) }
func scanPluginVersionRows(rows *sql.Rows) (*PluginVersion, error) {
	return scanPluginVersionScanner(rows)
}

func scanPluginVersionScanner(s scanner) (*PluginVersion, error) {
	var pv PluginVersion
	var id uint64
	var semverText string
	var isCutoff int
	err := s.Scan(&id, &semverText, &pv.GitRevision, &isCutoff)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: scan plugin version: %w", err)
	}
	v, err := semver.Parse(semverText)
	if err != nil {
		return nil, fmt.Errorf("catalog: parse stored semver %q: %w", semverText, err)
	}
	pv.ID = kz.PluginVersionID(id)
	pv.SemVer = v
	pv.IsCutoff = isCutoff == 1
	return &pv, nil
}
