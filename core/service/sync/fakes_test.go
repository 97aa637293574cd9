package mailsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mailsync_server/core/domain"
	"mailsync_server/core/port/out"
)

// recorder collects the side effect order so tests can assert sequencing
// (e.g. cursor saved only after the page was ingested).
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) indexOf(event string) int {
	for i, e := range r.list() {
		if e == event {
			return i
		}
	}
	return -1
}

func (r *recorder) count(event string) int {
	n := 0
	for _, e := range r.list() {
		if e == event {
			n++
		}
	}
	return n
}

// =============================================================================
// Account repository fake
// =============================================================================

type fakeAccountRepo struct {
	rec     *recorder
	account *domain.Account

	failSetSyncing error
	dueRetries     []*domain.Account
	stuck          []*domain.Account
}

func (f *fakeAccountRepo) GetByID(ctx context.Context, id int64) (*domain.Account, error) {
	if f.account == nil || f.account.ID != id {
		return nil, fmt.Errorf("account %d not found", id)
	}
	return f.account, nil
}

func (f *fakeAccountRepo) GetByUserID(ctx context.Context, userID string) ([]*domain.Account, error) {
	return []*domain.Account{f.account}, nil
}

func (f *fakeAccountRepo) Create(ctx context.Context, account *domain.Account) error { return nil }

func (f *fakeAccountRepo) SetSyncing(ctx context.Context, id int64) error {
	if f.failSetSyncing != nil {
		return f.failSetSyncing
	}
	f.rec.add("account.SetSyncing")
	f.account.Status = domain.AccountStatusSyncing
	f.account.SyncStartedAt = time.Now()
	return nil
}

func (f *fakeAccountRepo) SetActive(ctx context.Context, id int64) error {
	f.rec.add("account.SetActive")
	f.account.Status = domain.AccountStatusActive
	return nil
}

func (f *fakeAccountRepo) SetError(ctx context.Context, id int64, lastError string) error {
	f.rec.add("account.SetError")
	f.account.Status = domain.AccountStatusError
	f.account.LastSyncError = lastError
	return nil
}

func (f *fakeAccountRepo) SaveCursor(ctx context.Context, id int64, cursor string) error {
	f.rec.add("account.SaveCursor(%s)", cursor)
	f.account.SyncCursor = cursor
	return nil
}

func (f *fakeAccountRepo) UpdateProgress(ctx context.Context, id int64, syncedCount int64) error {
	f.rec.add("account.UpdateProgress(%d)", syncedCount)
	f.account.SyncedCount = syncedCount
	return nil
}

func (f *fakeAccountRepo) MarkInitialSyncComplete(ctx context.Context, id int64) error {
	f.rec.add("account.MarkInitialSyncComplete")
	f.account.InitialSyncCompletedAt = time.Now()
	return nil
}

func (f *fakeAccountRepo) ScheduleRetry(ctx context.Context, id int64, retryCount int, nextRetryAt time.Time, lastError string) error {
	f.rec.add("account.ScheduleRetry(%d)", retryCount)
	f.account.RetryCount = retryCount
	f.account.NextRetryAt = nextRetryAt
	f.account.LastSyncError = lastError
	return nil
}

func (f *fakeAccountRepo) ResetRetry(ctx context.Context, id int64) error {
	f.rec.add("account.ResetRetry")
	f.account.RetryCount = 0
	f.account.NextRetryAt = time.Time{}
	return nil
}

func (f *fakeAccountRepo) GetDueRetries(ctx context.Context) ([]*domain.Account, error) {
	return f.dueRetries, nil
}

func (f *fakeAccountRepo) GetStuckSyncing(ctx context.Context, threshold time.Duration) ([]*domain.Account, error) {
	return f.stuck, nil
}

func (f *fakeAccountRepo) ResetStuck(ctx context.Context, id int64, lastError string) error {
	f.rec.add("account.ResetStuck(%d)", id)
	return nil
}

func (f *fakeAccountRepo) GetSyncable(ctx context.Context, olderThan time.Duration) ([]*domain.Account, error) {
	return nil, nil
}

// =============================================================================
// Folder repository fake
// =============================================================================

type fakeFolderRepo struct {
	rec     *recorder
	nextID  int64
	folders map[int64]*domain.Folder
	// enabled flags that survive rediscovery, keyed by provider folder ID
	userToggles map[string]bool
}

func newFakeFolderRepo(rec *recorder) *fakeFolderRepo {
	return &fakeFolderRepo{
		rec:         rec,
		folders:     make(map[int64]*domain.Folder),
		userToggles: make(map[string]bool),
	}
}

func (f *fakeFolderRepo) Upsert(ctx context.Context, folder *domain.Folder) (*domain.Folder, error) {
	for _, existing := range f.folders {
		if existing.AccountID == folder.AccountID && existing.ProviderFolderID == folder.ProviderFolderID {
			existing.Name = folder.Name
			existing.Type = folder.Type
			existing.Confidence = folder.Confidence
			existing.NeedsReview = folder.NeedsReview
			return existing, nil
		}
	}
	f.nextID++
	stored := *folder
	stored.ID = f.nextID
	if toggled, ok := f.userToggles[folder.ProviderFolderID]; ok {
		stored.SyncEnabled = toggled
	}
	f.folders[stored.ID] = &stored
	return &stored, nil
}

func (f *fakeFolderRepo) GetByID(ctx context.Context, id int64) (*domain.Folder, error) {
	folder, ok := f.folders[id]
	if !ok {
		return nil, fmt.Errorf("folder %d not found", id)
	}
	return folder, nil
}

func (f *fakeFolderRepo) GetByAccount(ctx context.Context, accountID int64) ([]*domain.Folder, error) {
	var result []*domain.Folder
	for _, folder := range f.folders {
		if folder.AccountID == accountID {
			result = append(result, folder)
		}
	}
	return result, nil
}

func (f *fakeFolderRepo) GetEnabled(ctx context.Context, accountID int64) ([]*domain.Folder, error) {
	var result []*domain.Folder
	for _, folder := range f.folders {
		if folder.AccountID == accountID && folder.SyncEnabled {
			result = append(result, folder)
		}
	}
	return result, nil
}

func (f *fakeFolderRepo) SaveCursor(ctx context.Context, id int64, cursor string) error {
	f.rec.add("folder[%d].SaveCursor(%s)", id, cursor)
	if folder, ok := f.folders[id]; ok {
		folder.SyncCursor = cursor
	}
	return nil
}

func (f *fakeFolderRepo) SetSyncStatus(ctx context.Context, id int64, status domain.FolderSyncStatus, lastError string) error {
	f.rec.add("folder[%d].SetSyncStatus(%s)", id, status)
	if folder, ok := f.folders[id]; ok {
		folder.SyncStatus = status
		folder.LastError = lastError
	}
	return nil
}

func (f *fakeFolderRepo) SetEnabled(ctx context.Context, id int64, enabled bool) error {
	f.rec.add("folder[%d].SetEnabled(%v)", id, enabled)
	if folder, ok := f.folders[id]; ok {
		folder.SyncEnabled = enabled
		f.userToggles[folder.ProviderFolderID] = enabled
	}
	return nil
}

func (f *fakeFolderRepo) TouchLastSync(ctx context.Context, id int64) error {
	if folder, ok := f.folders[id]; ok {
		folder.LastSyncAt = time.Now()
	}
	return nil
}

// =============================================================================
// Message repository fake
// =============================================================================

type fakeMessageRepo struct {
	rec    *recorder
	nextID int64
	// keyed by accountID + providerMessageID
	byProviderID map[string]*domain.Message
}

func newFakeMessageRepo(rec *recorder) *fakeMessageRepo {
	return &fakeMessageRepo{rec: rec, byProviderID: make(map[string]*domain.Message)}
}

func (f *fakeMessageRepo) key(accountID int64, providerMessageID string) string {
	return fmt.Sprintf("%d/%s", accountID, providerMessageID)
}

func (f *fakeMessageRepo) Upsert(ctx context.Context, msg *domain.Message) (*domain.Message, bool, error) {
	key := f.key(msg.AccountID, msg.ProviderMessageID)
	if existing, ok := f.byProviderID[key]; ok {
		// sync-owned fields only; user-owned flags stay as stored
		existing.FolderID = msg.FolderID
		existing.Subject = msg.Subject
		existing.Snippet = msg.Snippet
		existing.Category = msg.Category
		f.rec.add("message.Upsert(%s)=update", msg.ProviderMessageID)
		return existing, false, nil
	}
	f.nextID++
	stored := *msg
	stored.ID = f.nextID
	f.byProviderID[key] = &stored
	f.rec.add("message.Upsert(%s)=insert", msg.ProviderMessageID)
	return &stored, true, nil
}

func (f *fakeMessageRepo) GetByID(ctx context.Context, id int64) (*domain.Message, error) {
	for _, msg := range f.byProviderID {
		if msg.ID == id {
			return msg, nil
		}
	}
	return nil, fmt.Errorf("message %d not found", id)
}

func (f *fakeMessageRepo) GetByProviderID(ctx context.Context, accountID int64, providerMessageID string) (*domain.Message, error) {
	if msg, ok := f.byProviderID[f.key(accountID, providerMessageID)]; ok {
		return msg, nil
	}
	return nil, fmt.Errorf("message %s not found", providerMessageID)
}

func (f *fakeMessageRepo) CountByAccount(ctx context.Context, accountID int64) (int64, error) {
	return int64(len(f.byProviderID)), nil
}

func (f *fakeMessageRepo) MarkEmbedded(ctx context.Context, id int64) error { return nil }

// =============================================================================
// Sync run repository fake
// =============================================================================

type fakeRunRepo struct {
	rec     *recorder
	created *domain.SyncRun
	last    *domain.SyncRun
}

func (f *fakeRunRepo) Create(ctx context.Context, run *domain.SyncRun) error {
	f.rec.add("run.Create")
	f.created = run
	return nil
}

func (f *fakeRunRepo) Finish(ctx context.Context, run *domain.SyncRun) error {
	f.rec.add("run.Finish(%s)", run.Status)
	f.last = run
	return nil
}

func (f *fakeRunRepo) GetByID(ctx context.Context, id string) (*domain.SyncRun, error) {
	return f.last, nil
}

func (f *fakeRunRepo) GetRecentByAccount(ctx context.Context, accountID int64, limit int) ([]*domain.SyncRun, error) {
	return nil, nil
}

// =============================================================================
// Provider fakes
// =============================================================================

type fakeProvider struct {
	scope   out.CursorScope
	folders []*out.ProviderFolder

	listErr error
	syncFn  func(req *out.SyncFolderRequest) (*out.SyncFolderResult, error)

	syncCalls int
}

func (f *fakeProvider) CursorScope() out.CursorScope { return f.scope }

func (f *fakeProvider) ListFolders(ctx context.Context, cred *out.Credential, account *domain.Account) ([]*out.ProviderFolder, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.folders, nil
}

func (f *fakeProvider) SyncFolder(ctx context.Context, cred *out.Credential, req *out.SyncFolderRequest) (*out.SyncFolderResult, error) {
	f.syncCalls++
	return f.syncFn(req)
}

type fakeFactory struct {
	provider *fakeProvider
	err      error
}

func (f *fakeFactory) GetProvider(provider domain.Provider) (out.MailProviderPort, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.provider, nil
}

// =============================================================================
// Hook fakes
// =============================================================================

type fakeCredentials struct {
	cred *out.Credential
	err  error
}

func (f *fakeCredentials) GetValidCredential(ctx context.Context, account *domain.Account) (*out.Credential, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.cred, nil
}

type fakeCategorizer struct {
	rec      *recorder
	category domain.EmailCategory
	err      error
	calls    int
}

func (f *fakeCategorizer) Categorize(ctx context.Context, msg *domain.Message, userID string) (domain.EmailCategory, error) {
	f.calls++
	f.rec.add("categorizer.Categorize(%s)", msg.ProviderMessageID)
	return f.category, f.err
}

type fakeEmbedQueue struct {
	rec   *recorder
	err   error
	calls int
}

func (f *fakeEmbedQueue) Enqueue(ctx context.Context, accountID, messageID int64) error {
	f.calls++
	f.rec.add("embedQueue.Enqueue(%d)", messageID)
	return f.err
}

type fakeContacts struct {
	rec       *recorder
	contactID string
	findErr   error
	logErr    error
	logCalls  int
}

func (f *fakeContacts) FindContact(ctx context.Context, userID, email string) (string, error) {
	f.rec.add("contacts.FindContact(%s)", email)
	return f.contactID, f.findErr
}

func (f *fakeContacts) LogReceived(ctx context.Context, contactID, subject, providerMessageID string) error {
	f.logCalls++
	f.rec.add("contacts.LogReceived(%s)", providerMessageID)
	return f.logErr
}

type fakeBodyStore struct {
	rec   *recorder
	err   error
	saves []*out.MessageBody
}

func (f *fakeBodyStore) Save(ctx context.Context, body *out.MessageBody) error {
	f.rec.add("body.Save(%d)", body.MessageID)
	f.saves = append(f.saves, body)
	return f.err
}

func (f *fakeBodyStore) Get(ctx context.Context, messageID int64) (*out.MessageBody, error) {
	return nil, nil
}

func (f *fakeBodyStore) DeleteByAccount(ctx context.Context, accountID int64) (int64, error) {
	return 0, nil
}

// =============================================================================
// Scheduler & lock fakes
// =============================================================================

type fakeScheduler struct {
	rec     *recorder
	err     error
	lastJob *domain.SyncJob
}

func (f *fakeScheduler) Schedule(ctx context.Context, job *domain.SyncJob) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.rec.add("scheduler.Schedule")
	f.lastJob = job
	return job.ID, nil
}

type fakeLock struct {
	rec      *recorder
	acquired bool
	err      error
}

func (f *fakeLock) TryAcquire(ctx context.Context, accountID int64, ttl time.Duration) (bool, error) {
	f.rec.add("lock.TryAcquire")
	return f.acquired, f.err
}

func (f *fakeLock) Release(ctx context.Context, accountID int64) error {
	f.rec.add("lock.Release")
	return nil
}

// =============================================================================
// Harness
// =============================================================================

type harness struct {
	rec         *recorder
	accountRepo *fakeAccountRepo
	folderRepo  *fakeFolderRepo
	messageRepo *fakeMessageRepo
	runRepo     *fakeRunRepo
	bodyStore   *fakeBodyStore
	provider    *fakeProvider
	credentials *fakeCredentials
	categorizer *fakeCategorizer
	embedQueue  *fakeEmbedQueue
	contacts    *fakeContacts
	scheduler   *fakeScheduler
	lock        *fakeLock
	service     *SyncService
}

func newHarness(account *domain.Account, provider *fakeProvider) *harness {
	rec := &recorder{}
	h := &harness{
		rec:         rec,
		accountRepo: &fakeAccountRepo{rec: rec, account: account},
		folderRepo:  newFakeFolderRepo(rec),
		messageRepo: newFakeMessageRepo(rec),
		runRepo:     &fakeRunRepo{rec: rec},
		bodyStore:   &fakeBodyStore{rec: rec},
		provider:    provider,
		credentials: &fakeCredentials{cred: &out.Credential{AccessToken: "token"}},
		categorizer: &fakeCategorizer{rec: rec, category: domain.CategoryNewsletter},
		embedQueue:  &fakeEmbedQueue{rec: rec},
		contacts:    &fakeContacts{rec: rec, contactID: "contact-1"},
		scheduler:   &fakeScheduler{rec: rec},
		lock:        &fakeLock{rec: rec, acquired: true},
	}
	h.service = NewSyncService(
		h.accountRepo,
		h.folderRepo,
		h.messageRepo,
		h.bodyStore,
		h.runRepo,
		&fakeFactory{provider: provider},
		h.credentials,
		h.categorizer,
		h.embedQueue,
		h.contacts,
		h.scheduler,
		h.lock,
	)
	return h
}

// =============================================================================
// Payload helpers
// =============================================================================

func testAccount(provider domain.Provider, status domain.AccountStatus) *domain.Account {
	return &domain.Account{
		ID:       1,
		UserID:   "user-1",
		Email:    "user@example.com",
		Provider: provider,
		Status:   status,
		// zero InitialSyncCompletedAt = first sync
	}
}

func syncedAccount(provider domain.Provider, status domain.AccountStatus) *domain.Account {
	a := testAccount(provider, status)
	a.InitialSyncCompletedAt = time.Now().Add(-time.Hour)
	return a
}

func testMessages(prefix string, n int) []*out.ProviderMessage {
	msgs := make([]*out.ProviderMessage, n)
	for i := 0; i < n; i++ {
		msgs[i] = &out.ProviderMessage{
			ProviderMessageID: fmt.Sprintf("%s-%d", prefix, i),
			Subject:           fmt.Sprintf("Subject %d", i),
			FromEmail:         "sender@example.com",
			SentAt:            time.Now(),
			BodyText:          "hello",
		}
	}
	return msgs
}

func testJob(account *domain.Account, trigger domain.TriggerType, mode domain.SyncMode) *domain.SyncJob {
	return &domain.SyncJob{
		ID:        "run-1",
		Type:      domain.JobMailSync,
		UserID:    account.UserID,
		AccountID: account.ID,
		Trigger:   trigger,
		Mode:      mode,
		CreatedAt: time.Now(),
	}
}
