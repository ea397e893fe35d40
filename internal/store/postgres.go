package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"annotate/api/internal/annotation"
)

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

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *PostgresStore) FetchPage(ctx context.Context, q annotation.PageQuery) ([]annotation.Annotation, error) {
	return annotationReader{q: s.db}.FetchPage(ctx, q)
}

func (s *PostgresStore) CountVisible(ctx context.Context, q annotation.CountQuery) (int, error) {
	return annotationReader{q: s.db}.CountVisible(ctx, q)
}

func (s *PostgresStore) FetchRepliesByRootIDs(ctx context.Context, scope annotation.Scope, rootIDs []string, deleted annotation.DeletedFilter) ([]annotation.Annotation, error) {
	return annotationReader{q: s.db}.FetchRepliesByRootIDs(ctx, scope, rootIDs, deleted)
}

// WithSnapshot runs fn inside a read-only REPEATABLE READ transaction so the
// count, every batch and the reply lookup observe the same data.
func (s *PostgresStore) WithSnapshot(ctx context.Context, fn func(annotation.Store) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return annotation.StoreError("begin snapshot", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(annotationReader{q: tx, sequential: true}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return annotation.StoreError("commit snapshot", err)
	}
	return nil
}

const annotationColumns = `id, created, updated, document_uri, group_name, authority,
	owner_login, owner_authority, shared, refs::text, deleted, text, tags::text`

type annotationReader struct {
	q          querier
	sequential bool
}

func (r annotationReader) Sequential() bool {
	return r.sequential
}

func (r annotationReader) FetchPage(ctx context.Context, q annotation.PageQuery) ([]annotation.Annotation, error) {
	orderBy, err := orderClause(q.Sort, q.Order)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		SELECT %s
		FROM annotations
		WHERE document_uri=$1 AND group_name=$2 AND authority=$3%s
		ORDER BY %s
		OFFSET $4 LIMIT $5
	`, annotationColumns, filterClause(q.Replies, q.Deleted), orderBy)

	rows, err := r.q.QueryContext(ctx, query, q.Scope.DocumentURI, q.Scope.Group, q.Scope.Authority, q.Offset, q.Limit)
	if err != nil {
		return nil, annotation.StoreError("fetch page", err)
	}
	defer rows.Close()
	return scanAnnotations(rows, "fetch page")
}

func (r annotationReader) CountVisible(ctx context.Context, q annotation.CountQuery) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM annotations
		WHERE document_uri=$1 AND group_name=$2 AND authority=$3
		  AND (shared OR (owner_login=$4 AND owner_authority=$5))` + filterClause(q.Replies, q.Deleted)

	var total int
	err := r.q.QueryRowContext(ctx, query,
		q.Scope.DocumentURI, q.Scope.Group, q.Scope.Authority,
		q.Requester.Login, q.Requester.Authority,
	).Scan(&total)
	if err != nil {
		return 0, annotation.StoreError("count visible", err)
	}
	return total, nil
}

func (r annotationReader) FetchRepliesByRootIDs(ctx context.Context, scope annotation.Scope, rootIDs []string, deleted annotation.DeletedFilter) ([]annotation.Annotation, error) {
	if len(rootIDs) == 0 {
		return []annotation.Annotation{}, nil
	}
	query := fmt.Sprintf(`
		SELECT %s
		FROM annotations
		WHERE document_uri=$1 AND group_name=$2 AND authority=$3
		  AND refs && $4::text[]%s
		ORDER BY created ASC, id ASC
	`, annotationColumns, filterClause(annotation.RepliesOnly, deleted))

	rows, err := r.q.QueryContext(ctx, query, scope.DocumentURI, scope.Group, scope.Authority, textArray(rootIDs))
	if err != nil {
		return nil, annotation.StoreError("fetch replies", err)
	}
	defer rows.Close()
	return scanAnnotations(rows, "fetch replies")
}

func (s *PostgresStore) FetchByIDs(ctx context.Context, scope annotation.Scope, ids []string, deleted annotation.DeletedFilter) ([]annotation.Annotation, error) {
	return annotationReader{q: s.db}.FetchByIDs(ctx, scope, ids, deleted)
}

func (r annotationReader) FetchByIDs(ctx context.Context, scope annotation.Scope, ids []string, deleted annotation.DeletedFilter) ([]annotation.Annotation, error) {
	if len(ids) == 0 {
		return []annotation.Annotation{}, nil
	}
	query := fmt.Sprintf(`
		SELECT %s
		FROM annotations
		WHERE document_uri=$1 AND group_name=$2 AND authority=$3
		  AND id = ANY($4::text[])%s
	`, annotationColumns, filterClause(annotation.AnyReplyState, deleted))

	rows, err := r.q.QueryContext(ctx, query, scope.DocumentURI, scope.Group, scope.Authority, textArray(ids))
	if err != nil {
		return nil, annotation.StoreError("fetch by ids", err)
	}
	defer rows.Close()
	return scanAnnotations(rows, "fetch by ids")
}

func filterClause(replies annotation.ReplyFilter, deleted annotation.DeletedFilter) string {
	var b strings.Builder
	switch replies {
	case annotation.TopLevelOnly:
		b.WriteString(" AND cardinality(refs)=0")
	case annotation.RepliesOnly:
		b.WriteString(" AND cardinality(refs)>0")
	}
	if deleted == annotation.ExcludeDeleted {
		b.WriteString(" AND NOT deleted")
	}
	return b.String()
}

const idOrder = `id COLLATE "C"`

var sortColumns = map[annotation.SortColumn]string{
	annotation.SortCreated: "created",
	annotation.SortUpdated: "updated",
	annotation.SortID:      "id",
}

func orderClause(column annotation.SortColumn, order annotation.SortOrder) (string, error) {
	col, ok := sortColumns[column]
	if !ok {
		return "", fmt.Errorf("%w: sort: unknown column %q", annotation.ErrInvalidOptions, column)
	}
	dir := "ASC"
	if order == annotation.OrderDesc {
		dir = "DESC"
	}
	// ids compare byte-wise, the same way annotation.Compare orders them.
	if col == "id" {
		return idOrder + " " + dir, nil
	}
	return fmt.Sprintf("%s %s, %s %s", col, dir, idOrder, dir), nil
}

func scanAnnotations(rows *sql.Rows, op string) ([]annotation.Annotation, error) {
	items := make([]annotation.Annotation, 0)
	for rows.Next() {
		var (
			item       annotation.Annotation
			refs, tags pq.StringArray
		)
		if err := rows.Scan(
			&item.ID, &item.Created, &item.Updated,
			&item.Scope.DocumentURI, &item.Scope.Group, &item.Scope.Authority,
			&item.Owner.Login, &item.Owner.Authority,
			&item.Shared, &refs, &item.Deleted, &item.Text, &tags,
		); err != nil {
			return nil, annotation.StoreError(op, err)
		}
		if len(refs) > 0 {
			item.References = []string(refs)
		}
		if len(tags) > 0 {
			item.Tags = []string(tags)
		}
		item.Created = item.Created.UTC()
		item.Updated = item.Updated.UTC()
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, annotation.StoreError(op, err)
	}
	return items, nil
}

// textArray renders values as a Postgres array literal. Passing the literal
// keeps the parameter driver-agnostic.
func textArray(values []string) string {
	if len(values) == 0 {
		return "{}"
	}
	value, err := pq.StringArray(values).Value()
	if err != nil {
		return "{}"
	}
	literal, _ := value.(string)
	return literal
}

// UpsertAnnotations writes annotations in one transaction. It is used by the
// import command; the search path never writes.
func (s *PostgresStore) UpsertAnnotations(ctx context.Context, items []annotation.Annotation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const upsert = `
		INSERT INTO annotations (
			id, created, updated, document_uri, group_name, authority,
			owner_login, owner_authority, shared, refs, deleted, text, tags
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::text[], $11, $12, $13::text[])
		ON CONFLICT (id) DO UPDATE SET
			updated = EXCLUDED.updated,
			shared = EXCLUDED.shared,
			deleted = EXCLUDED.deleted,
			text = EXCLUDED.text,
			tags = EXCLUDED.tags
	`
	for _, item := range items {
		if _, err := tx.ExecContext(ctx, upsert,
			item.ID, item.Created, item.Updated,
			item.Scope.DocumentURI, item.Scope.Group, item.Scope.Authority,
			item.Owner.Login, item.Owner.Authority,
			item.Shared, textArray(item.References), item.Deleted, item.Text, textArray(item.Tags),
		); err != nil {
			return fmt.Errorf("upsert annotation %s: %w", item.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

// ListAnnotations pages through every annotation by id, including replies
// and deleted rows, for reindexing.
func (s *PostgresStore) ListAnnotations(ctx context.Context, afterID string, limit int) ([]annotation.Annotation, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM annotations
		WHERE id > $1
		ORDER BY id ASC
		LIMIT $2
	`, annotationColumns)
	rows, err := s.db.QueryContext(ctx, query, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list annotations: %w", err)
	}
	defer rows.Close()
	return scanAnnotations(rows, "list annotations")
}

func (s *PostgresStore) GetGroup(ctx context.Context, name string) (Group, error) {
	var group Group
	err := s.db.QueryRowContext(ctx, `SELECT name, display_name, read_policy FROM groups WHERE name=$1`, name).
		Scan(&group.Name, &group.DisplayName, &group.ReadPolicy)
	if err != nil {
		return Group{}, fmt.Errorf("get group %s: %w", name, err)
	}
	return group, nil
}

func (s *PostgresStore) CreateGroup(ctx context.Context, group Group) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO groups (name, display_name, read_policy)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET display_name = EXCLUDED.display_name, read_policy = EXCLUDED.read_policy
	`, group.Name, group.DisplayName, group.ReadPolicy)
	if err != nil {
		return fmt.Errorf("create group: %w", err)
	}
	return nil
}

func (s *PostgresStore) AddGroupMember(ctx context.Context, member GroupMember) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO group_members (group_name, login, authority)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`, member.Group, member.Login, member.Authority)
	if err != nil {
		return fmt.Errorf("add group member: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsGroupMember(ctx context.Context, group string, user annotation.UserRef) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM group_members WHERE group_name=$1 AND login=$2 AND authority=$3)
	`, group, user.Login, user.Authority).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check group membership: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) CreateClient(ctx context.Context, client Client) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_clients (client_id, secret_hash, authority, description)
		VALUES ($1, $2, $3, $4)
	`, client.ID, client.SecretHash, client.Authority, client.Description)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetClient(ctx context.Context, id string) (Client, error) {
	var client Client
	err := s.db.QueryRowContext(ctx, `
		SELECT client_id, secret_hash, authority, description, created_at
		FROM api_clients WHERE client_id=$1
	`, id).Scan(&client.ID, &client.SecretHash, &client.Authority, &client.Description, &client.CreatedAt)
	if err != nil {
		return Client{}, fmt.Errorf("get client: %w", err)
	}
	return client, nil
}

// RevokeToken records a revoked access token until it would have expired.
func (s *PostgresStore) RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_tokens (jti, expires_at) VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, expiresAt)
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var expiresAt time.Time
	err := s.db.QueryRowContext(ctx, `SELECT expires_at FROM revoked_tokens WHERE jti=$1`, jti).Scan(&expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup revoked token: %w", err)
	}
	return time.Now().Before(expiresAt), nil
}
