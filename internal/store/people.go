package store

import (
	"context"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"orgchart/api/internal/directory"
)

// PersonRecord is a row of the people table.
type PersonRecord struct {
	directory.Person
	ManagerID string `json:"managerId,omitempty"`
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const personColumns = `id, display_name, COALESCE(job_title, ''), COALESCE(department, ''), COALESCE(mail, ''), COALESCE(user_principal_name, '')`

// GetPerson looks a person up by id or, failing that, by principal name.
func (s *PostgresStore) GetPerson(ctx context.Context, id string) (directory.Person, error) {
	query := `SELECT ` + personColumns + ` FROM people WHERE id = $1 OR lower(user_principal_name) = lower($1) ORDER BY (id = $1) DESC LIMIT 1`
	var p directory.Person
	err := s.db.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.DisplayName, &p.JobTitle, &p.Department, &p.Mail, &p.UserPrincipalName)
	if errors.Is(err, sql.ErrNoRows) {
		return directory.Person{}, directory.ErrNotFound
	}
	if err != nil {
		return directory.Person{}, fmt.Errorf("get person %s: %w", id, err)
	}
	return p, nil
}

type reportCursor struct {
	Name string `json:"n"`
	ID   string `json:"i"`
}

func encodeCursor(p directory.Person) string {
	raw, _ := json.Marshal(reportCursor{Name: p.DisplayName, ID: p.ID})
	return base64.RawURLEncoding.EncodeToString(raw)
}

func decodeCursor(cursor string) (reportCursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return reportCursor{}, fmt.Errorf("decode cursor: %w", err)
	}
	var c reportCursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return reportCursor{}, fmt.Errorf("decode cursor: %w", err)
	}
	return c, nil
}

// ListDirectReports returns one page of managerID's reports ordered by name
// then id. The returned cursor is empty on the last page.
func (s *PostgresStore) ListDirectReports(ctx context.Context, managerID, cursor string, limit int) ([]directory.Person, string, error) {
	if limit <= 0 {
		limit = 100
	}

	var (
		rows *sql.Rows
		err  error
	)
	if cursor == "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+personColumns+`
			FROM people
			WHERE manager_id = $1
			ORDER BY display_name, id
			LIMIT $2
		`, managerID, limit+1)
	} else {
		after, decodeErr := decodeCursor(cursor)
		if decodeErr != nil {
			return nil, "", decodeErr
		}
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+personColumns+`
			FROM people
			WHERE manager_id = $1 AND (display_name, id) > ($2, $3)
			ORDER BY display_name, id
			LIMIT $4
		`, managerID, after.Name, after.ID, limit+1)
	}
	if err != nil {
		return nil, "", fmt.Errorf("list direct reports of %s: %w", managerID, err)
	}

	people, err := scanPeople(rows)
	if err != nil {
		return nil, "", fmt.Errorf("list direct reports of %s: %w", managerID, err)
	}

	next := ""
	if len(people) > limit {
		people = people[:limit]
		next = encodeCursor(people[len(people)-1])
	}
	return people, next, nil
}

// SearchPeopleByPrefix matches display names starting with query, case-insensitively.
func (s *PostgresStore) SearchPeopleByPrefix(ctx context.Context, query string, limit int) ([]directory.Person, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []directory.Person{}, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+personColumns+`
		FROM people
		WHERE display_name ILIKE $1 ESCAPE '\'
		ORDER BY display_name, id
		LIMIT $2
	`, escapeLike(query)+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("search people: %w", err)
	}
	people, err := scanPeople(rows)
	if err != nil {
		return nil, fmt.Errorf("search people: %w", err)
	}
	return people, nil
}

// LoadAllPeople returns every person with their manager, ordered by id.
func (s *PostgresStore) LoadAllPeople(ctx context.Context) ([]PersonRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+personColumns+`, COALESCE(manager_id, '')
		FROM people
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("load people: %w", err)
	}
	defer rows.Close()

	var out []PersonRecord
	for rows.Next() {
		var r PersonRecord
		if err := rows.Scan(&r.ID, &r.DisplayName, &r.JobTitle, &r.Department, &r.Mail, &r.UserPrincipalName, &r.ManagerID); err != nil {
			return nil, fmt.Errorf("scan person: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load people: %w", err)
	}
	return out, nil
}

// UpsertPeople inserts or updates records in one transaction.
func (s *PostgresStore) UpsertPeople(ctx context.Context, records []PersonRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert people: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, r := range records {
		if !r.Valid() {
			return fmt.Errorf("person %q: id and display name are required", r.ID)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO people (id, display_name, job_title, department, mail, user_principal_name, manager_id)
			VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''))
			ON CONFLICT (id) DO UPDATE SET
				display_name = EXCLUDED.display_name,
				job_title = EXCLUDED.job_title,
				department = EXCLUDED.department,
				mail = EXCLUDED.mail,
				user_principal_name = EXCLUDED.user_principal_name,
				manager_id = EXCLUDED.manager_id,
				updated_at = NOW()
		`, r.ID, r.DisplayName, r.JobTitle, r.Department, r.Mail, r.UserPrincipalName, r.ManagerID); err != nil {
			return fmt.Errorf("upsert person %s: %w", r.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert people: %w", err)
	}
	return nil
}

// DeletePeople removes people by id in one transaction. Reports of a removed
// person keep their manager_id.
func (s *PostgresStore) DeletePeople(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete people: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `DELETE FROM people WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete person %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete people: %w", err)
	}
	return nil
}

func scanPeople(rows *sql.Rows) ([]directory.Person, error) {
	defer rows.Close()
	people := []directory.Person{}
	for rows.Next() {
		var p directory.Person
		if err := rows.Scan(&p.ID, &p.DisplayName, &p.JobTitle, &p.Department, &p.Mail, &p.UserPrincipalName); err != nil {
			return nil, err
		}
		people = append(people, p)
	}
	return people, rows.Err()
}

func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
