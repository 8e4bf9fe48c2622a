package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/standoffconverter/core/cas"
	"github.com/FocuswithJustin/standoffconverter/core/errors"
	"github.com/FocuswithJustin/standoffconverter/core/standoff"
	"github.com/FocuswithJustin/standoffconverter/internal/logging"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL DEFAULT '',
	plain       TEXT NOT NULL,
	chars       INTEGER NOT NULL,
	annotations INTEGER NOT NULL,
	sha256      TEXT NOT NULL,
	blake3      TEXT NOT NULL,
	created_at  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS annotations (
	document_id  TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	seq          INTEGER NOT NULL,
	begin_offset INTEGER NOT NULL,
	end_offset   INTEGER NOT NULL,
	tag          TEXT NOT NULL,
	attrib       TEXT NOT NULL,
	depth        INTEGER NOT NULL,
	namespace    TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (document_id, seq)
);
`

// Injectable functions for testing
var (
	newID   = func() string { return uuid.New().String() }
	timeNow = time.Now
)

// DocumentInfo summarizes a stored document.
type DocumentInfo struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Chars       int            `json:"chars"`
	Annotations int            `json:"annotations"`
	Plain       cas.HashResult `json:"plain"`
	CreatedAt   string         `json:"created_at"`
}

// InitSchema creates the documents and annotations tables if missing.
func InitSchema(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return errors.Wrap(err, "failed to create schema")
	}
	return nil
}

// SaveDocument stores s under a new id and returns it. Annotations are
// written in canonical order with attributes as ordered JSON.
func SaveDocument(db *sql.DB, s *standoff.Store, name string) (string, error) {
	id := newID()
	fp := s.Fingerprint()
	records := s.Records()

	tx, err := db.Begin()
	if err != nil {
		return "", errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT INTO documents (id, name, plain, chars, annotations, sha256, blake3, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, name, s.Plain(), s.Len(), len(records), fp.SHA256, fp.BLAKE3,
		timeNow().UTC().Format(time.RFC3339))
	if err != nil {
		return "", errors.Wrap(err, "failed to insert document")
	}

	stmt, err := tx.Prepare(`INSERT INTO annotations
		(document_id, seq, begin_offset, end_offset, tag, attrib, depth, namespace)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", errors.Wrap(err, "failed to prepare annotation insert")
	}
	defer stmt.Close()

	for i, r := range records {
		attrib, err := r.Attrib.MarshalJSON()
		if err != nil {
			return "", errors.Wrapf(err, "failed to encode attributes of %s", r.Tag)
		}
		if _, err := stmt.Exec(id, i, r.Begin, r.End, r.Tag, string(attrib), r.Depth, r.Namespace); err != nil {
			return "", errors.Wrapf(err, "failed to insert annotation %d", i)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", errors.Wrap(err, "failed to commit document")
	}
	logging.Info("document saved", "id", id, "annotations", len(records), "chars", s.Len())
	return id, nil
}

// LoadDocument rebuilds the stored document id. The plain text is checked
// against the stored fingerprint.
func LoadDocument(db *sql.DB, id string) (*standoff.Store, error) {
	var plain, sha, b3 string
	var count int
	err := db.QueryRow(`SELECT plain, annotations, sha256, blake3 FROM documents WHERE id = ?`, id).
		Scan(&plain, &count, &sha, &b3)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFound("document", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read document %s", id)
	}
	if err := cas.Verify([]byte(plain), cas.HashResult{SHA256: sha, BLAKE3: b3}); err != nil {
		return nil, errors.NewCorruption("load", fmt.Sprintf("document %s: %v", id, err))
	}

	rows, err := db.Query(`SELECT begin_offset, end_offset, tag, attrib, depth, namespace
		FROM annotations WHERE document_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query annotations")
	}
	defer rows.Close()

	records := make([]standoff.Record, 0, count)
	for rows.Next() {
		var r standoff.Record
		var attrib string
		if err := rows.Scan(&r.Begin, &r.End, &r.Tag, &attrib, &r.Depth, &r.Namespace); err != nil {
			return nil, errors.Wrap(err, "failed to scan annotation")
		}
		if err := r.Attrib.UnmarshalJSON([]byte(attrib)); err != nil {
			return nil, errors.NewParse("JSON", "annotations.attrib", err.Error())
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to read annotations")
	}
	if len(records) != count {
		return nil, errors.NewCorruption("load",
			fmt.Sprintf("document %s lists %d annotations, found %d", id, count, len(records)))
	}

	s, err := standoff.FromRecords(plain, records)
	if err != nil {
		return nil, err
	}
	logging.Debug("document loaded", "id", id, "annotations", count)
	return s, nil
}

// ListDocuments returns every stored document, oldest first.
func ListDocuments(db *sql.DB) ([]DocumentInfo, error) {
	rows, err := db.Query(`SELECT id, name, chars, annotations, sha256, blake3, created_at
		FROM documents ORDER BY created_at, id`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list documents")
	}
	defer rows.Close()

	var docs []DocumentInfo
	for rows.Next() {
		var d DocumentInfo
		if err := rows.Scan(&d.ID, &d.Name, &d.Chars, &d.Annotations,
			&d.Plain.SHA256, &d.Plain.BLAKE3, &d.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan document")
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// DeleteDocument removes the document id and its annotations.
func DeleteDocument(db *sql.DB, id string) error {
	tx, err := db.Begin()
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete document")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFound("document", id)
	}
	if _, err := tx.Exec(`DELETE FROM annotations WHERE document_id = ?`, id); err != nil {
		return errors.Wrap(err, "failed to delete annotations")
	}
	return tx.Commit()
}
