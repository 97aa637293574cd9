package domain

import "testing"

func TestClassifyFolder(t *testing.T) {
	tests := []struct {
		name           string
		rawName        string
		provider       Provider
		wantType       CanonicalFolder
		wantConfidence float64
	}{
		{"exact inbox", "Inbox", ProviderGmail, FolderInbox, 1.0},
		{"exact inbox uppercase", "INBOX", ProviderIMAP, FolderInbox, 1.0},
		{"exact sent items", "Sent Items", ProviderOutlook, FolderSent, 1.0},
		{"exact junk email", "Junk Email", ProviderOutlook, FolderSpam, 1.0},
		{"exact deleted items", "Deleted Items", ProviderOutlook, FolderTrash, 1.0},
		{"known name contained in raw", "My Sent Stuff", ProviderIMAP, FolderSent, 0.95},
		{"raw contained in known name", "junk e", ProviderIMAP, FolderSpam, 0.90},
		{"gmail system path sent", "[Gmail]/Sent Mail", ProviderGmail, FolderSent, 0.95},
		{"gmail system path all mail", "[Gmail]/All Mail", ProviderGmail, FolderAllMail, 0.95},
		{"korean inbox", "받은편지함", ProviderIMAP, FolderInbox, 0.85},
		{"german trash", "Papierkorb", ProviderIMAP, FolderTrash, 0.85},
		{"french inbox", "Boîte de réception", ProviderIMAP, FolderInbox, 0.85},
		{"graph wellknown sentitems", "sentitems", ProviderOutlook, FolderSent, 0.85},
		{"punctuated sent", "sent.", ProviderIMAP, FolderSent, 0.95},
		{"custom project folder", "Project X", ProviderGmail, FolderCustom, 0.5},
		{"custom receipts", "Receipts 2025", ProviderIMAP, FolderCustom, 0.5},
		{"empty name", "", ProviderGmail, FolderCustom, 0.5},
		{"whitespace only", "   ", ProviderIMAP, FolderCustom, 0.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyFolder(tt.rawName, tt.provider)
			if got.Type != tt.wantType {
				t.Errorf("ClassifyFolder(%q) type = %v, want %v", tt.rawName, got.Type, tt.wantType)
			}
			if got.Confidence < tt.wantConfidence {
				t.Errorf("ClassifyFolder(%q) confidence = %v, want at least %v", tt.rawName, got.Confidence, tt.wantConfidence)
			}
		})
	}
}

func TestClassifyFolder_Deterministic(t *testing.T) {
	// "sent"과 "archive"가 동시에 걸릴 수 있는 이름도 항상 같은 결과
	first := ClassifyFolder("Sent Archive", ProviderIMAP)
	for i := 0; i < 100; i++ {
		got := ClassifyFolder("Sent Archive", ProviderIMAP)
		if got != first {
			t.Fatalf("classification not deterministic: got %+v, want %+v", got, first)
		}
	}
}

func TestFolderClassification_NeedsReview(t *testing.T) {
	tests := []struct {
		name string
		c    FolderClassification
		want bool
	}{
		{"high confidence inbox", FolderClassification{FolderInbox, 1.0}, false},
		{"structural match", FolderClassification{FolderSent, 0.85}, false},
		{"threshold boundary", FolderClassification{FolderArchive, 0.8}, false},
		{"below threshold", FolderClassification{FolderArchive, 0.75}, true},
		{"custom always reviewed", FolderClassification{FolderCustom, 0.95}, true},
		{"custom fallback", FolderClassification{FolderCustom, 0.5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.c.NeedsReview(); got != tt.want {
				t.Errorf("NeedsReview() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFolderClassification_AutoEnabled(t *testing.T) {
	tests := []struct {
		name string
		c    FolderClassification
		want bool
	}{
		// 핵심 폴더는 신뢰도와 무관하게 활성화
		{"inbox low confidence", FolderClassification{FolderInbox, 0.75}, true},
		{"sent", FolderClassification{FolderSent, 1.0}, true},
		{"drafts", FolderClassification{FolderDrafts, 0.85}, true},
		// 스팸/휴지통은 신뢰도와 무관하게 비활성화
		{"spam high confidence", FolderClassification{FolderSpam, 1.0}, false},
		{"trash high confidence", FolderClassification{FolderTrash, 1.0}, false},
		// 나머지는 리뷰 여부를 따른다
		{"archive confident", FolderClassification{FolderArchive, 0.95}, true},
		{"archive uncertain", FolderClassification{FolderArchive, 0.75}, false},
		{"custom", FolderClassification{FolderCustom, 0.5}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.c.AutoEnabled(); got != tt.want {
				t.Errorf("AutoEnabled() = %v, want %v", got, tt.want)
			}
		})
	}
}
