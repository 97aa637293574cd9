// Package hook implements the fire-and-forget ingestion hooks.
package hook

import (
	"context"
	"fmt"
	"strings"

	"mailsync_server/core/port/out"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// =============================================================================
// Neo4j Contact Timeline Adapter
// =============================================================================

// ContactGraphAdapter records received-mail events on the contact graph.
type ContactGraphAdapter struct {
	driver neo4j.DriverWithContext
	dbName string
}

func NewContactGraphAdapter(driver neo4j.DriverWithContext, dbName string) *ContactGraphAdapter {
	return &ContactGraphAdapter{
		driver: driver,
		dbName: dbName,
	}
}

// EnsureIndexes creates necessary indexes and constraints.
func (a *ContactGraphAdapter) EnsureIndexes(ctx context.Context) error {
	session := a.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: a.dbName})
	defer session.Close(ctx)

	queries := []string{
		`CREATE CONSTRAINT contact_id_unique IF NOT EXISTS FOR (c:Contact) REQUIRE c.contact_id IS UNIQUE`,
		`CREATE INDEX contact_user_email_idx IF NOT EXISTS FOR (c:Contact) ON (c.user_id, c.email)`,
		`CREATE INDEX mail_event_message_idx IF NOT EXISTS FOR (e:MailEvent) ON (e.provider_message_id)`,
	}

	for _, query := range queries {
		_, err := session.Run(ctx, query, nil)
		if err != nil {
			// Ignore if already exists
			continue
		}
	}

	return nil
}

// FindContact resolves a sender address to a contact ID. Returns "" when the
// sender is not a known contact of the user.
func (a *ContactGraphAdapter) FindContact(ctx context.Context, userID, email string) (string, error) {
	session := a.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: a.dbName})
	defer session.Close(ctx)

	query := `
		MATCH (c:Contact {user_id: $userID, email: $email})
		RETURN c.contact_id AS contact_id
		LIMIT 1
	`

	result, err := session.Run(ctx, query, map[string]interface{}{
		"userID": userID,
		"email":  strings.ToLower(email),
	})
	if err != nil {
		return "", fmt.Errorf("failed to find contact: %w", err)
	}

	if result.Next(ctx) {
		if id, ok := result.Record().Get("contact_id"); ok && id != nil {
			return id.(string), nil
		}
	}

	return "", nil
}

// LogReceived appends a RECEIVED event to the contact timeline. MERGE on the
// provider message ID keeps re-synced messages from producing duplicate events.
func (a *ContactGraphAdapter) LogReceived(ctx context.Context, contactID, subject, providerMessageID string) error {
	session := a.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: a.dbName})
	defer session.Close(ctx)

	query := `
		MATCH (c:Contact {contact_id: $contactID})
		MERGE (e:MailEvent {provider_message_id: $messageID})
		ON CREATE SET e.subject = $subject, e.created_at = timestamp()
		MERGE (c)-[:RECEIVED]->(e)
	`

	params := map[string]interface{}{
		"contactID": contactID,
		"messageID": providerMessageID,
		"subject":   subject,
	}

	_, err := session.Run(ctx, query, params)
	if err != nil {
		return fmt.Errorf("failed to log received event: %w", err)
	}

	return nil
}

// =============================================================================
// Interface Compliance
// =============================================================================

var _ out.ContactTimelinePort = (*ContactGraphAdapter)(nil)
