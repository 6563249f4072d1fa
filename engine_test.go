package guard

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/botnev/guard/ratewindow"
)

type fakeAccounts struct {
	mu       sync.Mutex
	accounts map[string]*AccountRecord
	failFind bool
	failUpd  bool
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{accounts: make(map[string]*AccountRecord)}
}

func (f *fakeAccounts) FindByIdentity(_ context.Context, identity string) (*AccountRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failFind {
		return nil, errors.New("account db down")
	}
	account, ok := f.accounts[identity]
	if !ok {
		return nil, nil
	}
	copied := *account
	return &copied, nil
}

func (f *fakeAccounts) UpdateFingerprint(_ context.Context, identity, fp string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failUpd {
		return errors.New("account db down")
	}
	if account, ok := f.accounts[identity]; ok {
		account.Fingerprint = fp
	}
	return nil
}

func (f *fakeAccounts) recordedFingerprint(identity string) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	if account, ok := f.accounts[identity]; ok {
		return account.Fingerprint
	}
	return ""
}

type fakeBlocks struct {
	mu      sync.Mutex
	blocked map[string]map[string]bool
}

func newFakeBlocks() *fakeBlocks {
	return &fakeBlocks{blocked: make(map[string]map[string]bool)}
}

func (f *fakeBlocks) IsBlocked(_ context.Context, owner, other string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.blocked[owner][other], nil
}

func (f *fakeBlocks) set(owner, other string, blocked bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.blocked[owner] == nil {
		f.blocked[owner] = make(map[string]bool)
	}
	f.blocked[owner][other] = blocked
}

type fakeMessages struct {
	mu      sync.Mutex
	records []*MessageRecord
	fail    bool
}

func (f *fakeMessages) Insert(_ context.Context, record *MessageRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail {
		return errors.New("message db down")
	}
	copied := *record
	f.records = append(f.records, &copied)
	return nil
}

func (f *fakeMessages) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.records)
}

func (f *fakeMessages) last() *MessageRecord {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.records) == 0 {
		return nil
	}
	return f.records[len(f.records)-1]
}

type fakeCaptcha struct {
	mu     sync.Mutex
	reject bool
	err    error
	calls  int
}

func (f *fakeCaptcha) Verify(_ context.Context, _, _ string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return !f.reject, nil
}

type fakeMail struct {
	mu        sync.Mutex
	fail      bool
	delivered []string
}

func (f *fakeMail) Deliver(_ context.Context, recipient, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.fail {
		return errors.New("smtp down")
	}
	f.delivered = append(f.delivered, recipient)
	return nil
}

type engineFixture struct {
	engine   *Engine
	accounts *fakeAccounts
	blocks   *fakeBlocks
	messages *fakeMessages
	captcha  *fakeCaptcha
	mail     *fakeMail
	windows  *ratewindow.MemoryStore
	sink     *ChannelAuditSink
}

func newFixture(t *testing.T, mutate func(*Config)) *engineFixture {
	t.Helper()

	cfg := DefaultConfig()
	cfg.Login.FailureDelayMin = 0
	cfg.Login.FailureDelayMax = 0
	cfg.Login.BcryptCost = 4
	if mutate != nil {
		mutate(&cfg)
	}

	fx := &engineFixture{
		accounts: newFakeAccounts(),
		blocks:   newFakeBlocks(),
		messages: &fakeMessages{},
		captcha:  &fakeCaptcha{},
		mail:     &fakeMail{},
		windows:  ratewindow.NewMemoryStore(),
		sink:     NewChannelAuditSink(128),
	}

	engine, err := New().
		WithConfig(cfg).
		WithAccountStore(fx.accounts).
		WithBlockStore(fx.blocks).
		WithMessageStore(fx.messages).
		WithCaptchaVerifier(fx.captcha).
		WithMailTransport(fx.mail).
		WithAuditSink(fx.sink).
		WithWindowStore(fx.windows).
		WithSessionSecret([]byte("fixture-session-secret"), []byte("salt")).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	fx.engine = engine
	return fx
}

func (fx *engineFixture) addAccount(t *testing.T, identity, secret string, mutate func(*AccountRecord)) {
	t.Helper()

	hash, err := fx.engine.hasher.Hash(secret)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	account := &AccountRecord{
		Identity:     identity,
		PasswordHash: hash,
		Verified:     true,
	}
	if mutate != nil {
		mutate(account)
	}

	fx.accounts.mu.Lock()
	fx.accounts.accounts[identity] = account
	fx.accounts.mu.Unlock()
}

// drainEvents closes the engine to flush the dispatcher and returns all
// buffered audit events.
func (fx *engineFixture) drainEvents() []AuditEvent {
	fx.engine.Close()

	var events []AuditEvent
	for {
		select {
		case event := <-fx.sink.Events():
			events = append(events, event)
		default:
			return events
		}
	}
}

func hasEvent(events []AuditEvent, eventType, errorCode string) bool {
	for _, event := range events {
		if event.EventType == eventType && event.Error == errorCode {
			return true
		}
	}
	return false
}

func requestContext(ip, userAgent, acceptLanguage string) context.Context {
	ctx := WithClientIP(context.Background(), ip)
	ctx = WithUserAgent(ctx, userAgent)
	return WithAcceptLanguage(ctx, acceptLanguage)
}
