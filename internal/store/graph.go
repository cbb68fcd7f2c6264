package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"olympus/internal/types"
)

// =============================================================================
// KNOWLEDGE GRAPH
// =============================================================================

// UpsertEntity inserts an entity node or, when (name, type) already exists,
// merges the new document ids into the existing node. Returns the node id.
func (s *LocalStore) UpsertEntity(ctx context.Context, name, entityType string, documentIDs []string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("entity name is required")
	}
	if entityType == "" {
		entityType = "other"
	}

	var id string
	var existingDocs string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, document_ids FROM entities WHERE name = ? AND entity_type = ?`,
		name, entityType).Scan(&id, &existingDocs)

	switch {
	case err == sql.ErrNoRows:
		id = uuid.NewString()
		docs, _ := json.Marshal(dedupe(documentIDs))
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO entities (id, name, entity_type, properties, document_ids, created_at)
			VALUES (?, ?, ?, '{}', ?, ?)`,
			id, name, entityType, string(docs), touchTimestamp())
		if err != nil {
			return "", fmt.Errorf("failed to insert entity: %w", err)
		}
		return id, nil

	case err != nil:
		return "", fmt.Errorf("entity lookup failed: %w", err)
	}

	var existing []string
	json.Unmarshal([]byte(existingDocs), &existing)
	merged, _ := json.Marshal(dedupe(append(existing, documentIDs...)))
	_, err = s.db.ExecContext(ctx,
		`UPDATE entities SET document_ids = ? WHERE id = ?`, string(merged), id)
	if err != nil {
		return "", fmt.Errorf("failed to merge entity docs: %w", err)
	}
	return id, nil
}

// GetEntity fetches a node by id; nil when absent.
func (s *LocalStore) GetEntity(ctx context.Context, id string) (*types.Entity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, entity_type, properties, document_ids, created_at
		FROM entities WHERE id = ?`, id)
	ent, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return ent, err
}

// GetEntityByName resolves a node by name, any type; nil when absent.
func (s *LocalStore) GetEntityByName(ctx context.Context, name string) (*types.Entity, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, entity_type, properties, document_ids, created_at
		FROM entities WHERE LOWER(name) = LOWER(?) LIMIT 1`, strings.TrimSpace(name))
	ent, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return ent, err
}

// AddRelationship stores a directed weighted edge. Re-adding an existing
// edge accumulates its weight, so frequently co-occurring pairs rank higher
// during expansion.
func (s *LocalStore) AddRelationship(ctx context.Context, rel types.Relationship) error {
	if rel.SourceID == "" || rel.TargetID == "" || rel.Type == "" {
		return fmt.Errorf("relationship requires source, target, and type")
	}
	weight := rel.Weight
	if weight <= 0 {
		weight = 1.0
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO relationships (source_id, target_id, relation, weight, document_id)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(source_id, relation, target_id)
		DO UPDATE SET weight = weight + excluded.weight`,
		rel.SourceID, rel.TargetID, rel.Type, weight, rel.DocumentID)
	if err != nil {
		return fmt.Errorf("failed to add relationship: %w", err)
	}
	return nil
}

// Neighbors returns edges touching the node in either direction, heaviest
// first, capped at limit.
func (s *LocalStore) Neighbors(ctx context.Context, entityID string, limit int) ([]types.Relationship, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT source_id, target_id, relation, weight, document_id
		FROM relationships
		WHERE source_id = ? OR target_id = ?
		ORDER BY weight DESC LIMIT ?`, entityID, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("neighbor query failed: %w", err)
	}
	defer rows.Close()

	var out []types.Relationship
	for rows.Next() {
		var rel types.Relationship
		if err := rows.Scan(&rel.SourceID, &rel.TargetID, &rel.Type, &rel.Weight, &rel.DocumentID); err != nil {
			return nil, err
		}
		out = append(out, rel)
	}
	return out, rows.Err()
}

// ExpandEntities walks the graph breadth-first from the seed nodes up to
// maxHops, collecting at most maxNodes discovered entity ids. Edges are
// treated as undirected for expansion.
func (s *LocalStore) ExpandEntities(ctx context.Context, seedIDs []string, maxHops, maxNodes int) ([]string, error) {
	if maxHops <= 0 || len(seedIDs) == 0 {
		return nil, nil
	}
	if maxNodes <= 0 {
		maxNodes = 10
	}

	visited := make(map[string]bool, len(seedIDs))
	for _, id := range seedIDs {
		visited[id] = true
	}
	frontier := append([]string(nil), seedIDs...)
	var found []string

	for hop := 0; hop < maxHops && len(frontier) > 0 && len(found) < maxNodes; hop++ {
		var next []string
		for _, id := range frontier {
			rels, err := s.Neighbors(ctx, id, maxNodes*2)
			if err != nil {
				return nil, err
			}
			for _, rel := range rels {
				other := rel.TargetID
				if other == id {
					other = rel.SourceID
				}
				if visited[other] {
					continue
				}
				visited[other] = true
				found = append(found, other)
				next = append(next, other)
				if len(found) >= maxNodes {
					break
				}
			}
			if len(found) >= maxNodes {
				break
			}
		}
		frontier = next
	}
	return found, nil
}

// DocumentsForEntities returns the union of document ids referenced by the
// given entity nodes.
func (s *LocalStore) DocumentsForEntities(ctx context.Context, entityIDs []string) ([]string, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimRight(strings.Repeat("?,", len(entityIDs)), ",")
	args := make([]interface{}, len(entityIDs))
	for i, id := range entityIDs {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT document_ids FROM entities WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("entity docs query failed: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]bool)
	var out []string
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var ids []string
		json.Unmarshal([]byte(raw), &ids)
		for _, id := range ids {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out, rows.Err()
}

func scanEntity(row rowScanner) (*types.Entity, error) {
	var ent types.Entity
	var properties, docIDs string
	err := row.Scan(&ent.ID, &ent.Name, &ent.EntityType, &properties, &docIDs, &ent.CreatedAt)
	if err != nil {
		return nil, err
	}
	json.Unmarshal([]byte(properties), &ent.Properties)
	json.Unmarshal([]byte(docIDs), &ent.DocumentIDs)
	return &ent, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
