package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"ai-chat-go/internal/mapper"
	"ai-chat-go/internal/model"
	"ai-chat-go/internal/repository"
	"ai-chat-go/pkg/aibackend"
)

// fakeConversationRepo 是内存版会话仓库。Get 返回深拷贝，模拟真实的
// load→mutate→save：变更只有在 Save 之后才对存储可见。
type fakeConversationRepo struct {
	stored  map[string]model.Conversation
	saves   int
	saveErr error
}

func newFakeRepo() *fakeConversationRepo {
	return &fakeConversationRepo{stored: make(map[string]model.Conversation)}
}

func copyConversation(c model.Conversation) model.Conversation {
	msgs := make([]model.Message, len(c.Messages))
	copy(msgs, c.Messages)
	c.Messages = msgs
	return c
}

func (r *fakeConversationRepo) Create(ctx context.Context, conv *model.Conversation) error {
	if _, ok := r.stored[conv.ID]; ok {
		return repository.ErrAlreadyExists
	}
	r.stored[conv.ID] = copyConversation(*conv)
	return nil
}

func (r *fakeConversationRepo) Get(ctx context.Context, id string) (*model.Conversation, error) {
	c, ok := r.stored[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := copyConversation(c)
	return &cp, nil
}

func (r *fakeConversationRepo) List(ctx context.Context) ([]model.Conversation, error) {
	out := make([]model.Conversation, 0, len(r.stored))
	for _, c := range r.stored {
		out = append(out, copyConversation(c))
	}
	return out, nil
}

func (r *fakeConversationRepo) Save(ctx context.Context, conv *model.Conversation) error {
	if r.saveErr != nil {
		return r.saveErr
	}
	stored, ok := r.stored[conv.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if stored.Version != conv.Version {
		return repository.ErrVersionConflict
	}
	conv.Version++
	r.stored[conv.ID] = copyConversation(*conv)
	r.saves++
	return nil
}

func (r *fakeConversationRepo) Delete(ctx context.Context, id string) error {
	if _, ok := r.stored[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.stored, id)
	return nil
}

// newTestStack 组装 fake 仓库 + stub 后端 + 真实编排服务 + 真实会话服务，
// 只在传输层打桩，其余链路全部走真实实现。
func newTestStack(backend *stubBackend) (*fakeConversationRepo, ConversationService) {
	repo := newFakeRepo()
	chat := NewChatService(backend, testAIConfig())
	return repo, NewConversationService(repo, chat)
}

func seedConversation(repo *fakeConversationRepo, messages ...model.Message) string {
	now := time.Now()
	conv := model.Conversation{
		ID:        "conv-1",
		Title:     "test",
		Messages:  messages,
		CreatedAt: now,
		UpdatedAt: now,
	}
	repo.stored[conv.ID] = conv
	return conv.ID
}

func strptr(s string) *string { return &s }

func TestAppendMessageEndToEnd(t *testing.T) {
	backend := &stubBackend{generate: func(context.Context, []model.AIMessage, aibackend.GenerateOptions) (string, error) {
		return "generated", nil
	}}
	repo, svc := newTestStack(backend)
	id := seedConversation(repo)

	// 第一次追加：带 systemPrompt="Be terse."
	conv, err := svc.AppendMessage(context.Background(), id, "Hi", model.SenderUser, MessageOptions{
		SystemPrompt: strptr("Be terse."),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []struct{ role, content string }{
		{model.RoleSystem, "Be terse."},
		{model.RoleUser, "Hi"},
		{model.RoleAssistant, "generated"},
	}
	if len(conv.Messages) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(conv.Messages))
	}
	for i, w := range want {
		if conv.Messages[i].Role != w.role || conv.Messages[i].Content != w.content {
			t.Fatalf("message %d: got (%s,%q), want (%s,%q)", i, conv.Messages[i].Role, conv.Messages[i].Content, w.role, w.content)
		}
	}

	// 第二次追加：systemPrompt 为空串，system 消息应被删除
	conv, err = svc.AppendMessage(context.Background(), id, "Bye", model.SenderUser, MessageOptions{
		SystemPrompt: strptr(""),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if idx := mapper.SystemMessageIndex(conv.Messages); idx != -1 {
		t.Fatalf("system message should be removed, found at %d", idx)
	}
	roles := make([]string, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		roles = append(roles, m.Role)
	}
	wantRoles := []string{model.RoleUser, model.RoleAssistant, model.RoleUser, model.RoleAssistant}
	if len(roles) != len(wantRoles) {
		t.Fatalf("expected roles %v, got %v", wantRoles, roles)
	}
	for i := range wantRoles {
		if roles[i] != wantRoles[i] {
			t.Fatalf("expected roles %v, got %v", wantRoles, roles)
		}
	}
}

func TestAppendForwardsFullHistoryExactlyOnce(t *testing.T) {
	backend := &stubBackend{}
	repo, svc := newTestStack(backend)
	id := seedConversation(repo,
		mapper.NewUserMessage("earlier question"),
		mapper.NewAssistantMessage("earlier answer"),
	)

	if _, err := svc.AppendMessage(context.Background(), id, "fresh question", model.SenderUser, MessageOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 新用户消息在送往后端的上下文里恰好出现一次，且位于末尾
	count := 0
	for _, m := range backend.lastMsgs {
		if m.Content == "fresh question" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("new user message must appear exactly once, got %d", count)
	}
	last := backend.lastMsgs[len(backend.lastMsgs)-1]
	if last.Content != "fresh question" || last.Role != model.RoleUser {
		t.Fatalf("new user message must be last, got %+v", last)
	}
}

func TestSystemPromptUpsertKeepsSingleSystemMessage(t *testing.T) {
	backend := &stubBackend{}
	repo, svc := newTestStack(backend)
	id := seedConversation(repo)

	prompts := []*string{
		strptr("first rules"),
		nil, // 不改动
		strptr("second rules"),
		strptr("third rules"),
	}
	for i, p := range prompts {
		if _, err := svc.AppendMessage(context.Background(), id, "question", model.SenderUser, MessageOptions{SystemPrompt: p}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	stored := repo.stored[id]
	systemCount := 0
	for _, m := range stored.Messages {
		if m.Role == model.RoleSystem {
			systemCount++
		}
	}
	if systemCount != 1 {
		t.Fatalf("expected exactly one system message, got %d", systemCount)
	}
	if stored.Messages[0].Role != model.RoleSystem {
		t.Fatalf("system message must stay at index 0, got %q", stored.Messages[0].Role)
	}
	if stored.Messages[0].Content != "third rules" {
		t.Fatalf("system message must hold the latest prompt, got %q", stored.Messages[0].Content)
	}
}

func TestAppendAISenderSkipsGeneration(t *testing.T) {
	backend := &stubBackend{}
	repo, svc := newTestStack(backend)
	id := seedConversation(repo)

	conv, err := svc.AppendMessage(context.Background(), id, "manual note", model.SenderAI, MessageOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if backend.calls != 0 {
		t.Fatal("ai sender must not trigger generation")
	}
	if len(conv.Messages) != 1 || conv.Messages[0].Role != model.RoleAssistant {
		t.Fatalf("expected a single assistant message, got %+v", conv.Messages)
	}
}

func TestAppendStructuralErrors(t *testing.T) {
	backend := &stubBackend{}
	repo, svc := newTestStack(backend)
	id := seedConversation(repo)

	if _, err := svc.AppendMessage(context.Background(), id, "   ", model.SenderUser, MessageOptions{}); !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}
	if _, err := svc.AppendMessage(context.Background(), id, "hi", "robot", MessageOptions{}); !errors.Is(err, ErrInvalidSender) {
		t.Fatalf("expected ErrInvalidSender, got %v", err)
	}
	if _, err := svc.AppendMessage(context.Background(), "missing", "hi", model.SenderUser, MessageOptions{}); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
	if repo.saves != 0 {
		t.Fatalf("structural errors must not persist anything, saves=%d", repo.saves)
	}
}

func TestErrorAbsorbedAsVisibleMessage(t *testing.T) {
	backend := &stubBackend{generate: func(context.Context, []model.AIMessage, aibackend.GenerateOptions) (string, error) {
		return "", &aibackend.ConnectionError{Addr: "http://localhost:8000", Err: errors.New("refused")}
	}}
	repo, svc := newTestStack(backend)
	id := seedConversation(repo)

	conv, err := svc.AppendMessage(context.Background(), id, "Hi", model.SenderUser, MessageOptions{})
	if err != nil {
		t.Fatalf("generation failure must not fail the operation: %v", err)
	}

	last := conv.Messages[len(conv.Messages)-1]
	if last.Role != model.RoleAssistant {
		t.Fatalf("error message must be assistant-authored, got %q", last.Role)
	}
	if !strings.HasPrefix(last.Content, "❌") {
		t.Fatalf("error message must start with ❌, got %q", last.Content)
	}
	if !strings.Contains(last.Content, "**AI Error**") {
		t.Fatalf("expected AI Error marker, got %q", last.Content)
	}
	// 已落库：错误消息是会话记录的一部分
	if repo.saves != 1 {
		t.Fatalf("conversation must be persisted, saves=%d", repo.saves)
	}
	storedLast := repo.stored[id].Messages[len(repo.stored[id].Messages)-1]
	if storedLast.Content != last.Content {
		t.Fatal("stored conversation must contain the error message")
	}
}

func TestEditMessageTruncatesAndRegenerates(t *testing.T) {
	backend := &stubBackend{generate: func(context.Context, []model.AIMessage, aibackend.GenerateOptions) (string, error) {
		return "regenerated", nil
	}}
	repo, svc := newTestStack(backend)
	id := seedConversation(repo,
		mapper.NewSystemMessage("rules"),
		mapper.NewUserMessage("q1"),
		mapper.NewAssistantMessage("a1"),
		mapper.NewUserMessage("q2"),
		mapper.NewAssistantMessage("a2"),
	)

	// 编辑可见下标 0（q1）：其后的 a1/q2/a2 全部丢弃
	conv, err := svc.EditMessage(context.Background(), id, 0, "q1 rewritten", MessageOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []struct{ role, content string }{
		{model.RoleSystem, "rules"},
		{model.RoleUser, "q1 rewritten"},
		{model.RoleAssistant, "regenerated"},
	}
	if len(conv.Messages) != len(want) {
		t.Fatalf("expected %d messages, got %d: %+v", len(want), len(conv.Messages), conv.Messages)
	}
	for i, w := range want {
		if conv.Messages[i].Role != w.role || conv.Messages[i].Content != w.content {
			t.Fatalf("message %d: got (%s,%q), want (%s,%q)", i, conv.Messages[i].Role, conv.Messages[i].Content, w.role, w.content)
		}
	}

	// 重新生成时后端收到的是截断后的历史
	lastCtx := backend.lastMsgs[len(backend.lastMsgs)-1]
	if lastCtx.Content != "q1 rewritten" {
		t.Fatalf("backend must see the edited message last, got %q", lastCtx.Content)
	}
}

func TestEditMessageSystemPromptShiftsIndex(t *testing.T) {
	backend := &stubBackend{}
	repo, svc := newTestStack(backend)
	// 没有 system 消息的会话，编辑时同时带上新的 systemPrompt
	id := seedConversation(repo,
		mapper.NewUserMessage("q1"),
		mapper.NewAssistantMessage("a1"),
	)

	conv, err := svc.EditMessage(context.Background(), id, 0, "edited", MessageOptions{
		SystemPrompt: strptr("fresh rules"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conv.Messages[0].Role != model.RoleSystem || conv.Messages[0].Content != "fresh rules" {
		t.Fatalf("system message must be inserted at index 0, got %+v", conv.Messages[0])
	}
	if conv.Messages[1].Content != "edited" {
		t.Fatalf("edited content lost after system insert shifted indices: %+v", conv.Messages)
	}
}

func TestEditMessageGuards(t *testing.T) {
	backend := &stubBackend{}
	repo, svc := newTestStack(backend)
	id := seedConversation(repo,
		mapper.NewUserMessage("q1"),
		mapper.NewAssistantMessage("a1"),
	)

	// 下标越界
	if _, err := svc.EditMessage(context.Background(), id, 5, "x", MessageOptions{}); !errors.Is(err, ErrEditTargetOutOfRange) {
		t.Fatalf("expected ErrEditTargetOutOfRange, got %v", err)
	}
	// 目标不是用户消息
	if _, err := svc.EditMessage(context.Background(), id, 1, "x", MessageOptions{}); !errors.Is(err, ErrEditTargetNotUser) {
		t.Fatalf("expected ErrEditTargetNotUser, got %v", err)
	}
	// 存储未被触碰
	if repo.saves != 0 {
		t.Fatalf("failed edits must not persist, saves=%d", repo.saves)
	}
	if len(repo.stored[id].Messages) != 2 {
		t.Fatal("stored conversation must be unmodified")
	}
	if backend.calls != 0 {
		t.Fatal("failed edits must not call the backend")
	}
}

func TestConcurrentModificationSurfaced(t *testing.T) {
	backend := &stubBackend{}
	repo, svc := newTestStack(backend)
	id := seedConversation(repo)
	repo.saveErr = repository.ErrVersionConflict

	if _, err := svc.AppendMessage(context.Background(), id, "Hi", model.SenderUser, MessageOptions{}); !errors.Is(err, ErrConcurrentModification) {
		t.Fatalf("expected ErrConcurrentModification, got %v", err)
	}
}

func TestCreateAndDelete(t *testing.T) {
	_, svc := newTestStack(&stubBackend{})

	conv, err := svc.Create(context.Background(), "  my chat  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if conv.ID == "" || conv.Title != "my chat" {
		t.Fatalf("unexpected conversation %+v", conv)
	}
	if len(conv.Messages) != 0 {
		t.Fatal("new conversation must start empty")
	}

	if err := svc.Delete(context.Background(), conv.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := svc.Delete(context.Background(), conv.ID); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
}
