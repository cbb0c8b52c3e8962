package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_single_unlocked_version",
			SQL: `SELECT deal_id, COUNT(*) FROM deal_versions
                  WHERE NOT locked
                  GROUP BY deal_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O2_subtotal_matches_ledger",
			SQL: `SELECT v.id, v.subtotal, COALESCE(SUM(li.line_total), 0) AS ledger
                  FROM deal_versions v
                  LEFT JOIN deal_line_items li ON li.version_id = v.id
                  GROUP BY v.id, v.subtotal
                  HAVING v.subtotal <> COALESCE(SUM(li.line_total), 0)`,
		},
		{
			Name: "O3_line_total_recomputed",
			SQL: `SELECT id, quantity, unit_cost, line_total FROM deal_line_items
                  WHERE line_total <> ROUND(quantity * unit_cost, 2)`,
		},
		{
			Name: "O4_dispatched_has_doc_and_handoff",
			SQL: `SELECT d.id FROM deals d
                  WHERE d.stage = 'DISPATCHED'
                    AND ((SELECT COUNT(*) FROM deal_documents doc WHERE doc.deal_id = d.id) <> 1
                      OR (SELECT COUNT(*) FROM dispatch_handoffs h WHERE h.deal_id = d.id) <> 1)`,
		},
		{
			Name: "O5_no_milestones_without_dispatch",
			SQL: `SELECT a.id, a.deal_id, a.type FROM activities a
                  JOIN deals d ON d.id = a.deal_id
                  WHERE a.type IN ('DEAL_APPROVED', 'DOCUMENT_GENERATED', 'DEAL_DISPATCHED', 'DELIVERY_ENABLED')
                    AND d.stage NOT IN ('DISPATCHED', 'WON', 'LOST')`,
		},
		{
			Name: "O6_locked_versions_immutable",
			SQL: `SELECT li.id FROM deal_line_items li
                  JOIN deal_versions v ON v.id = li.version_id
                  WHERE v.locked AND li.updated_at > v.approved_at`,
		},
		{
			Name: "O7_locked_versions_stay_locked",
			SQL:  `SELECT id FROM deal_versions WHERE approved_at IS NOT NULL AND NOT locked`,
		},
		{
			Name: "O8_handoff_targets_locked_version",
			SQL: `SELECT h.id FROM dispatch_handoffs h
                  JOIN deal_versions v ON v.id = h.version_id
                  WHERE NOT v.locked OR NOT v.delivery_enabled`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		if rows.Next() {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
