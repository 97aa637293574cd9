package provider

import (
	"fmt"

	"mailsync_server/core/domain"
	"mailsync_server/core/port/out"
)

// =============================================================================
// Provider Factory
// =============================================================================

// Factory resolves the adapter for a provider kind. Adapters are stateless;
// one instance each is shared across accounts.
type Factory struct {
	gmail *GmailAdapter
	graph *GraphAdapter
	imap  *IMAPAdapter
}

func NewFactory(gmailCfg *GmailConfig, graphCfg *GraphConfig) *Factory {
	return &Factory{
		gmail: NewGmailAdapter(gmailCfg),
		graph: NewGraphAdapter(graphCfg),
		imap:  NewIMAPAdapter(),
	}
}

func (f *Factory) GetProvider(provider domain.Provider) (out.MailProviderPort, error) {
	switch provider {
	case domain.ProviderGmail:
		return f.gmail, nil
	case domain.ProviderOutlook:
		return f.graph, nil
	case domain.ProviderIMAP:
		return f.imap, nil
	}
	return nil, fmt.Errorf("unsupported provider: %s", provider)
}

var _ out.MailProviderFactory = (*Factory)(nil)
