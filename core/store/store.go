// Package store implements the intermediate store the merge engine reads
// from and writes to: a SQLite database holding modlet descriptors, XML
// content blocks and localization rows for the duration of one combination
// run. The store holds no merge logic.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/modlet-tools/combiner/core/codec"
	"github.com/modlet-tools/combiner/core/errors"
	"github.com/modlet-tools/combiner/core/localization"
	"github.com/modlet-tools/combiner/core/modlet"
	"github.com/modlet-tools/combiner/core/sqlite"
)

// ContentBlock is one child element extracted from a fragment's root,
// together with its owner and location. Blocks are never deduplicated:
// identical content recorded twice is retained twice.
type ContentBlock struct {
	ModletName string
	ModletID   string
	FullPath   string
	ShortPath  string
	Tag        string // structural tag: the source document's root tag
	Content    string // serialized inner XML of one child element
}

// Store is the SQLite-backed intermediate store. It has exactly one writer
// and one reader per run (the same process, sequential phases), so no
// locking is layered on top of the database.
type Store struct {
	db    *sql.DB
	codec codec.Codec
	log   *slog.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS modlets (
	unique_id   TEXT PRIMARY KEY,
	name        TEXT,
	description TEXT,
	author      TEXT,
	version     TEXT,
	website     TEXT
);
CREATE TABLE IF NOT EXISTS xml_blocks (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	modlet_name TEXT,
	modlet_id   TEXT,
	full_path   TEXT,
	short_path  TEXT,
	outer_tag   TEXT,
	content     TEXT
);
CREATE TABLE IF NOT EXISTS localization_rows (
	id                INTEGER PRIMARY KEY AUTOINCREMENT,
	modlet_name       TEXT,
	modlet_id         TEXT,
	full_path         TEXT,
	short_path        TEXT,
	key               TEXT,
	file              TEXT,
	type              TEXT,
	used_in_main_menu TEXT,
	no_translate      TEXT,
	english           TEXT,
	alt_text          TEXT,
	german            TEXT,
	latam             TEXT,
	french            TEXT,
	italian           TEXT,
	japanese          TEXT,
	koreana           TEXT,
	polish            TEXT,
	brazilian         TEXT,
	russian           TEXT,
	turkish           TEXT,
	schinese          TEXT,
	tchinese          TEXT,
	spanish           TEXT,
	UNIQUE(modlet_id, full_path, key) ON CONFLICT REPLACE
);`

// Open opens (creating if necessary) the store database at path. Failure
// here is fatal to a run.
func Open(path string, c codec.Codec, log *slog.Logger) (*Store, error) {
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open store %s", path)
	}
	s := &Store{db: db, codec: c, log: log}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create store tables")
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for the interactive console.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Wipe drops all store tables and recreates them empty. A combine run
// starts from a wiped store.
func (s *Store) Wipe() error {
	for _, table := range []string{"modlets", "xml_blocks", "localization_rows"} {
		if _, err := s.db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", table)); err != nil {
			return errors.NewStorage("drop table", table, err)
		}
	}
	// Reset autoincrement counters so block order restarts at 1.
	if _, err := s.db.Exec("DELETE FROM sqlite_sequence"); err != nil {
		s.log.Debug("sqlite_sequence not present", "err", err)
	}
	if _, err := s.db.Exec(schema); err != nil {
		return errors.NewStorage("recreate tables", "", err)
	}
	return nil
}

// PutModlet records a modlet descriptor and returns its generated
// identifier. Re-recording an identical (Name, Version) pair replaces the
// earlier descriptor row.
func (s *Store) PutModlet(d modlet.Descriptor) (string, error) {
	id := d.ID()
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO modlets (unique_id, name, description, author, version, website)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, d.Name, d.Description, d.Author, d.Version, d.Website)
	if err != nil {
		return "", errors.NewStorage("insert modlet", d.Name, err)
	}
	s.log.Debug("stored modlet", "name", d.Name, "id", id)
	return id, nil
}

// PutBlock appends one content block. Insertion order is preserved by the
// autoincrementing id and defines assembly order.
func (s *Store) PutBlock(b ContentBlock) error {
	_, err := s.db.Exec(
		`INSERT INTO xml_blocks (modlet_name, modlet_id, full_path, short_path, outer_tag, content)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		b.ModletName, b.ModletID, b.FullPath, b.ShortPath, b.Tag, s.codec.Encode(b.Content))
	if err != nil {
		return errors.NewStorage("insert block", b.ShortPath, err)
	}
	return nil
}

// PutRow records one localization row. A later row with the same key from
// the same modlet and source path replaces the earlier one; the same key
// from a different modlet is retained as a separate row.
func (s *Store) PutRow(r localization.Row) error {
	fields := r.Fields()
	args := []any{r.ModletName, r.ModletID, r.FullPath, r.ShortPath}
	for _, f := range fields {
		args = append(args, s.codec.Encode(f))
	}
	_, err := s.db.Exec(
		`INSERT INTO localization_rows
		 (modlet_name, modlet_id, full_path, short_path,
		  key, file, type, used_in_main_menu, no_translate, english, alt_text,
		  german, latam, french, italian, japanese, koreana, polish,
		  brazilian, russian, turkish, schinese, tchinese, spanish)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		args...)
	if err != nil {
		return errors.NewStorage("insert row", r.Key(), err)
	}
	return nil
}

// Blocks returns every recorded content block in insertion order, decoded.
func (s *Store) Blocks() ([]ContentBlock, error) {
	rows, err := s.db.Query(
		`SELECT modlet_name, modlet_id, full_path, short_path, outer_tag, content
		 FROM xml_blocks ORDER BY id`)
	if err != nil {
		return nil, errors.NewStorage("query blocks", "", err)
	}
	defer rows.Close()

	var out []ContentBlock
	for rows.Next() {
		var b ContentBlock
		var encoded string
		if err := rows.Scan(&b.ModletName, &b.ModletID, &b.FullPath, &b.ShortPath, &b.Tag, &encoded); err != nil {
			return nil, errors.NewStorage("scan block", "", err)
		}
		b.Content = s.codec.Decode(encoded)
		out = append(out, b)
	}
	return out, rows.Err()
}

// Rows returns every retained localization row in insertion order, decoded.
func (s *Store) Rows() ([]localization.Row, error) {
	rows, err := s.db.Query(
		`SELECT modlet_name, modlet_id, full_path, short_path,
		        key, file, type, used_in_main_menu, no_translate, english, alt_text,
		        german, latam, french, italian, japanese, koreana, polish,
		        brazilian, russian, turkish, schinese, tchinese, spanish
		 FROM localization_rows ORDER BY id`)
	if err != nil {
		return nil, errors.NewStorage("query rows", "", err)
	}
	defer rows.Close()

	var out []localization.Row
	for rows.Next() {
		var modletName, modletID, fullPath, shortPath string
		encoded := make([]string, localization.MinColumns)
		scanArgs := []any{&modletName, &modletID, &fullPath, &shortPath}
		for i := range encoded {
			scanArgs = append(scanArgs, &encoded[i])
		}
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, errors.NewStorage("scan row", "", err)
		}
		fields := make([]string, len(encoded))
		for i, e := range encoded {
			fields[i] = s.codec.Decode(e)
		}
		row, err := localization.NewRow(modletName, modletID, fullPath, shortPath, fields)
		if err != nil {
			return nil, errors.NewStorage("rebuild row", "", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Modlets returns the recorded descriptors ordered by name.
func (s *Store) Modlets() ([]modlet.Descriptor, error) {
	rows, err := s.db.Query(
		`SELECT name, description, author, version, website FROM modlets ORDER BY name`)
	if err != nil {
		return nil, errors.NewStorage("query modlets", "", err)
	}
	defer rows.Close()

	var out []modlet.Descriptor
	for rows.Next() {
		var d modlet.Descriptor
		if err := rows.Scan(&d.Name, &d.Description, &d.Author, &d.Version, &d.Website); err != nil {
			return nil, errors.NewStorage("scan modlet", "", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
