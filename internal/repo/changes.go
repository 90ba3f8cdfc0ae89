package repo

import (
	"context"
	"database/sql"

	"etraxis/internal/domain"
	"etraxis/internal/engine/access"
)

func (r Repo) InsertChange(ctx context.Context, tx *sql.Tx, c domain.Change) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO changes(event_id,field_id,old_value,new_value) VALUES (?,?,?,?)`,
		c.EventID, nullableStringPtr(c.FieldID), nullableStringPtr(c.OldValue), nullableStringPtr(c.NewValue))
	return err
}

// ChangesByIssue returns the field changes of an issue the user may see,
// ordered by event creation time, then field position, then field removal
// time. Changes without a field (subject edits) come first within their
// event and are visible to everyone; the rest are filtered through the
// field's role and group grants.
func (r Repo) ChangesByIssue(ctx context.Context, issue domain.Issue, userID string) ([]domain.Change, error) {
	rows, err := r.DB.QueryContext(ctx, `
SELECT c.id,c.event_id,c.field_id,c.old_value,c.new_value
FROM changes c
JOIN events e ON e.id=c.event_id
LEFT JOIN fields f ON f.id=c.field_id
WHERE e.issue_id=?
ORDER BY e.created_at, e.id, COALESCE(f.position,0), COALESCE(f.removed_at,'')`, issue.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var all []domain.Change
	fieldSet := map[string]bool{}
	for rows.Next() {
		var c domain.Change
		var fieldID, oldValue, newValue sql.NullString
		if err := rows.Scan(&c.ID, &c.EventID, &fieldID, &oldValue, &newValue); err != nil {
			return nil, err
		}
		if fieldID.Valid {
			c.FieldID = &fieldID.String
			fieldSet[fieldID.String] = true
		}
		if oldValue.Valid {
			c.OldValue = &oldValue.String
		}
		if newValue.Valid {
			c.NewValue = &newValue.String
		}
		all = append(all, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, nil
	}
	fieldIDs := make([]string, 0, len(fieldSet))
	for id := range fieldSet {
		fieldIDs = append(fieldIDs, id)
	}
	grants, err := r.FieldGrants(ctx, fieldIDs)
	if err != nil {
		return nil, err
	}
	userGroups, err := access.Service{DB: r.DB}.UserGroups(ctx, userID)
	if err != nil {
		return nil, err
	}
	var visible []domain.Change
	for _, c := range all {
		var g access.FieldGrants
		if c.FieldID != nil {
			g = grants[*c.FieldID]
		}
		if access.IsVisible(c, issue, userID, g, userGroups) {
			visible = append(visible, c)
		}
	}
	return visible, nil
}
