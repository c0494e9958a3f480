package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"
)

const selectCatalog = `
SELECT p.name AS paper, s.label AS label, s.price AS price
FROM paper_types p
LEFT JOIN paper_sizes s ON s.paper_type_id = p.id
ORDER BY p.position, p.id, s.position, s.id`

type catalogRow struct {
	Paper string         `db:"paper"`
	Label sql.NullString `db:"label"`
	Price sql.NullInt64  `db:"price"`
}

// LoadPostgres reads the catalog from the paper_types and paper_sizes tables.
func LoadPostgres(ctx context.Context, db *sqlx.DB) (*Catalog, error) {
	var rows []catalogRow
	if err := db.SelectContext(ctx, &rows, selectCatalog); err != nil {
		return nil, fmt.Errorf("catalog: query: %w", err)
	}
	return New(groupRows(rows))
}

// groupRows folds joined rows back into papers, keeping query order.
func groupRows(rows []catalogRow) []Paper {
	var papers []Paper
	for _, r := range rows {
		if len(papers) == 0 || papers[len(papers)-1].Name != r.Paper {
			papers = append(papers, Paper{Name: r.Paper})
		}
		if !r.Label.Valid {
			continue
		}
		last := &papers[len(papers)-1]
		last.Sizes = append(last.Sizes, Size{Label: r.Label.String, Price: int(r.Price.Int64)})
	}
	return papers
}
