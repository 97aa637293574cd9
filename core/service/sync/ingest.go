package mailsync

import (
	"context"

	"mailsync_server/core/domain"
	"mailsync_server/core/port/out"
	"mailsync_server/pkg/apperr"
	"mailsync_server/pkg/logger"
)

// progressCounter tracks messages ingested this run. Progress is flushed to
// the account row every ProgressSaveInterval messages.
type progressCounter struct {
	total     int64
	sinceSave int
}

// =============================================================================
// Ingestion Pipeline
// =============================================================================

// ingestMessages normalizes and upserts one page of provider messages.
// Either folder is set (per-folder sync) or folderIndex resolves the target
// per message (label-derived sync). Messages for unknown or disabled folders
// are skipped.
func (s *SyncService) ingestMessages(ctx context.Context, account *domain.Account, folder *domain.Folder, folderIndex map[domain.CanonicalFolder]*domain.Folder, policy domain.CategoryPolicy, messages []*out.ProviderMessage, run *domain.SyncRun, counter *progressCounter) error {
	for _, pm := range messages {
		target := folder
		if target == nil {
			target = folderIndex[pm.Folder]
			if target == nil || !target.SyncEnabled {
				continue
			}
		}

		msg := convertProviderMessage(account, target, pm)
		msg.Category = s.resolveCategory(ctx, policy, account, msg, canonicalOf(pm, target))

		stored, inserted, err := s.messageRepo.Upsert(ctx, msg)
		if err != nil {
			return apperr.DatabaseError("upsert message", err)
		}
		run.MessagesUpsert++

		// INSERT일 때만 후처리 훅. 재동기화 업데이트에서는 다시 쏘지 않는다.
		if inserted {
			s.saveBody(ctx, account, stored, pm)
			s.dispatchInsertHooks(ctx, account, stored)
		}

		counter.total++
		counter.sinceSave++
		if counter.sinceSave >= ProgressSaveInterval {
			if err := s.accountRepo.UpdateProgress(ctx, account.ID, counter.total); err != nil {
				logger.Warn("[SyncService.ingestMessages] failed to save progress: %v", err)
			}
			counter.sinceSave = 0
		}
	}
	return nil
}

// convertProviderMessage maps the adapter's message shape into the domain.
// Only sync-owned fields are populated; user-owned flags come back from the
// upsert untouched on update.
func convertProviderMessage(account *domain.Account, folder *domain.Folder, pm *out.ProviderMessage) *domain.Message {
	return &domain.Message{
		AccountID:         account.ID,
		FolderID:          folder.ID,
		ProviderMessageID: pm.ProviderMessageID,
		ThreadID:          pm.ThreadID,
		Subject:           pm.Subject,
		FromName:          pm.FromName,
		FromEmail:         pm.FromEmail,
		ToEmails:          pm.ToEmails,
		CcEmails:          pm.CcEmails,
		Snippet:           pm.Snippet,
		SentAt:            pm.SentAt,
		IsRead:            pm.IsRead,
		IsStarred:         pm.IsStarred,
	}
}

func canonicalOf(pm *out.ProviderMessage, target *domain.Folder) domain.CanonicalFolder {
	if pm.Folder != "" {
		return pm.Folder
	}
	return target.Type
}

// resolveCategory applies the categorization policy chosen by the
// orchestrator. The classifier path falls back to the folder-derived
// category on any hook failure.
func (s *SyncService) resolveCategory(ctx context.Context, policy domain.CategoryPolicy, account *domain.Account, msg *domain.Message, canonical domain.CanonicalFolder) domain.EmailCategory {
	if policy == domain.CategoryPolicyClassifier && s.categorizer != nil {
		category, err := s.categorizer.Categorize(ctx, msg, account.UserID)
		if err == nil && category != "" {
			return category
		}
		if err != nil {
			logger.Warn("[SyncService.resolveCategory] classifier failed, using folder category: %v", err)
		}
	}
	return domain.CategoryFromFolder(canonical)
}

// saveBody offloads the message body to the document store. Best effort; the
// envelope row is already durable.
func (s *SyncService) saveBody(ctx context.Context, account *domain.Account, msg *domain.Message, pm *out.ProviderMessage) {
	if s.bodyStore == nil || (pm.BodyHTML == "" && pm.BodyText == "") {
		return
	}
	err := s.bodyStore.Save(ctx, &out.MessageBody{
		MessageID:  msg.ID,
		AccountID:  account.ID,
		ExternalID: msg.ProviderMessageID,
		HTML:       pm.BodyHTML,
		Text:       pm.BodyText,
	})
	if err != nil {
		logger.Warn("[SyncService.saveBody] failed to store body for message %d: %v", msg.ID, err)
	}
}

// dispatchInsertHooks fires the post-insert side effects. Both hooks are
// fire-and-forget: each swallows its own error so a dead graph or queue
// never fails the sync.
func (s *SyncService) dispatchInsertHooks(ctx context.Context, account *domain.Account, msg *domain.Message) {
	if s.contacts != nil {
		contactID, err := s.contacts.FindContact(ctx, account.UserID, msg.FromEmail)
		switch {
		case err != nil:
			logger.Warn("[SyncService.dispatchInsertHooks] contact lookup failed: %v", err)
		case contactID != "":
			if err := s.contacts.LogReceived(ctx, contactID, msg.Subject, msg.ProviderMessageID); err != nil {
				logger.Warn("[SyncService.dispatchInsertHooks] timeline log failed: %v", err)
			}
		}
	}

	if s.embedQueue != nil {
		if err := s.embedQueue.Enqueue(ctx, account.ID, msg.ID); err != nil {
			logger.Warn("[SyncService.dispatchInsertHooks] embed enqueue failed: %v", err)
		}
	}
}
