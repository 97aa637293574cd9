package domain

import "strings"

// =============================================================================
// Folder Taxonomy Normalizer
// =============================================================================
//
// Pure string classification: raw provider folder name (plus the provider,
// for structural patterns) -> canonical folder type + confidence.
//
// Confidence ladder:
//   1.00  exact case-insensitive match on a known name
//   0.95  known name contained in the raw name
//   0.90  raw name contained in a known name
//   0.85  provider structural pattern (e.g. "[Gmail]/..." path, localized name)
//   0.75  match after stripping whitespace/punctuation
//   0.50  fallback: custom

// folderSynonyms - canonical 타입별 알려진 영문 폴더명
var folderSynonyms = map[CanonicalFolder][]string{
	FolderInbox:     {"inbox"},
	FolderSent:      {"sent", "sent items", "sent mail", "sent messages"},
	FolderDrafts:    {"drafts", "draft"},
	FolderTrash:     {"trash", "deleted items", "deleted messages", "bin", "wastebasket"},
	FolderSpam:      {"spam", "junk", "junk email", "junk e-mail", "bulk mail"},
	FolderArchive:   {"archive", "archives"},
	FolderStarred:   {"starred", "flagged"},
	FolderImportant: {"important", "priority"},
	FolderAllMail:   {"all mail", "all messages"},
	FolderOutbox:    {"outbox"},
}

// classifyOrder fixes iteration order so overlapping synonyms resolve
// deterministically (e.g. "sent" wins before "archive" substring checks).
var classifyOrder = []CanonicalFolder{
	FolderInbox, FolderSent, FolderDrafts, FolderTrash, FolderSpam,
	FolderArchive, FolderStarred, FolderImportant, FolderAllMail, FolderOutbox,
}

// localizedFolders - 주요 로케일의 시스템 폴더명 (structural tier, 0.85)
var localizedFolders = map[string]CanonicalFolder{
	// Korean
	"받은편지함": FolderInbox,
	"보낸편지함": FolderSent,
	"임시보관함": FolderDrafts,
	"휴지통":   FolderTrash,
	"스팸함":   FolderSpam,
	// German
	"posteingang":  FolderInbox,
	"gesendet":     FolderSent,
	"entwürfe":     FolderDrafts,
	"papierkorb":   FolderTrash,
	"gesendete elemente": FolderSent,
	// French
	"boîte de réception": FolderInbox,
	"éléments envoyés":   FolderSent,
	"brouillons":         FolderDrafts,
	"corbeille":          FolderTrash,
	"courrier indésirable": FolderSpam,
	// Spanish
	"bandeja de entrada": FolderInbox,
	"enviados":           FolderSent,
	"borradores":         FolderDrafts,
	"papelera":           FolderTrash,
	// Japanese
	"受信トレイ": FolderInbox,
	"送信済み":  FolderSent,
	"下書き":   FolderDrafts,
	"ゴミ箱":   FolderTrash,
	"迷惑メール": FolderSpam,
}

// gmailSystemPaths - "[Gmail]/..." 구조 경로 매핑
var gmailSystemPaths = map[string]CanonicalFolder{
	"sent mail": FolderSent,
	"drafts":    FolderDrafts,
	"trash":     FolderTrash,
	"spam":      FolderSpam,
	"starred":   FolderStarred,
	"important": FolderImportant,
	"all mail":  FolderAllMail,
}

// graphWellKnown - Microsoft Graph wellKnownName 값
var graphWellKnown = map[string]CanonicalFolder{
	"inbox":        FolderInbox,
	"sentitems":    FolderSent,
	"drafts":       FolderDrafts,
	"deleteditems": FolderTrash,
	"junkemail":    FolderSpam,
	"archive":      FolderArchive,
	"outbox":       FolderOutbox,
}

// ClassifyFolder normalizes a raw provider folder name into the canonical
// taxonomy. Pure function, no I/O.
func ClassifyFolder(rawName string, provider Provider) FolderClassification {
	raw := strings.ToLower(strings.TrimSpace(rawName))
	if raw == "" {
		return FolderClassification{Type: FolderCustom, Confidence: 0.5}
	}

	// Tier 1: exact match (1.0)
	for _, ct := range classifyOrder {
		for _, syn := range folderSynonyms[ct] {
			if raw == syn {
				return FolderClassification{Type: ct, Confidence: 1.0}
			}
		}
	}

	// Tier 2: known name contained in raw (0.95)
	for _, ct := range classifyOrder {
		for _, syn := range folderSynonyms[ct] {
			if strings.Contains(raw, syn) {
				return FolderClassification{Type: ct, Confidence: 0.95}
			}
		}
	}

	// Tier 3: raw contained in a known name (0.90)
	for _, ct := range classifyOrder {
		for _, syn := range folderSynonyms[ct] {
			if strings.Contains(syn, raw) {
				return FolderClassification{Type: ct, Confidence: 0.90}
			}
		}
	}

	// Tier 4: provider structural patterns (0.85)
	if ct, ok := classifyStructural(raw, provider); ok {
		return FolderClassification{Type: ct, Confidence: 0.85}
	}

	// Tier 5: strip whitespace/punctuation and retry exact (0.75)
	stripped := stripFolderName(raw)
	if stripped != "" {
		for _, ct := range classifyOrder {
			for _, syn := range folderSynonyms[ct] {
				if stripped == stripFolderName(syn) {
					return FolderClassification{Type: ct, Confidence: 0.75}
				}
			}
		}
	}

	return FolderClassification{Type: FolderCustom, Confidence: 0.5}
}

func classifyStructural(raw string, provider Provider) (CanonicalFolder, bool) {
	// Gmail system path: "[gmail]/sent mail" 형태
	if provider == ProviderGmail || provider == ProviderIMAP {
		for _, prefix := range []string{"[gmail]/", "[google mail]/"} {
			if strings.HasPrefix(raw, prefix) {
				if ct, ok := gmailSystemPaths[strings.TrimPrefix(raw, prefix)]; ok {
					return ct, true
				}
			}
		}
	}

	// Graph wellKnownName 값이 이름으로 들어오는 경우
	if provider == ProviderOutlook {
		if ct, ok := graphWellKnown[raw]; ok {
			return ct, true
		}
	}

	if ct, ok := localizedFolders[raw]; ok {
		return ct, true
	}

	return FolderCustom, false
}

// stripFolderName removes whitespace and punctuation for the loose tier.
func stripFolderName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r >= 0x80:
			b.WriteRune(r)
		}
	}
	return b.String()
}
