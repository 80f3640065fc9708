package service

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailtriage/internal/classifier"
	"mailtriage/internal/graph"
	"mailtriage/internal/model"
	"mailtriage/internal/redact"
	"mailtriage/internal/repository"
	"mailtriage/internal/taxonomy"
)

const testClientState = "shared-secret"

type fakeGateway struct {
	messages   map[string]*model.Message
	fetchErrs  map[string]error
	tagOutcome graph.TagOutcome
	tagErr     error

	fetchCalls []string
	tagCalls   []string
}

func (g *fakeGateway) GetMessage(_ context.Context, messageID string) (*model.Message, error) {
	g.fetchCalls = append(g.fetchCalls, messageID)
	if err, ok := g.fetchErrs[messageID]; ok {
		return nil, err
	}
	if msg, ok := g.messages[messageID]; ok {
		return msg, nil
	}
	return nil, &graph.NotFoundError{MessageID: messageID}
}

func (g *fakeGateway) ApplyCategory(_ context.Context, messageID, category string) (graph.TagOutcome, error) {
	g.tagCalls = append(g.tagCalls, messageID+":"+category)
	return g.tagOutcome, g.tagErr
}

type fakeClassifier struct {
	verdict classifier.Verdict
	err     error
	calls   int
}

func (c *fakeClassifier) Classify(_ context.Context, _, _ string) (classifier.Verdict, error) {
	c.calls++
	if c.err != nil {
		return classifier.Verdict{}, c.err
	}
	return c.verdict, nil
}

type fakeStore struct {
	rows      map[string]*model.ProcessedEmail
	nextID    int64
	insertErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: make(map[string]*model.ProcessedEmail)}
}

func (s *fakeStore) EmailExists(_ context.Context, messageID string) (bool, error) {
	_, ok := s.rows[messageID]
	return ok, nil
}

func (s *fakeStore) InsertEmail(_ context.Context, e *model.ProcessedEmail) (int64, error) {
	if s.insertErr != nil {
		return 0, s.insertErr
	}
	if _, ok := s.rows[e.MessageID]; ok {
		return 0, repository.ErrDuplicateEmail
	}
	s.nextID++
	e.ID = s.nextID
	s.rows[e.MessageID] = e
	return s.nextID, nil
}

// classificationStats mirrors the store's GROUP BY classification
// aggregation over the in-memory rows.
func (s *fakeStore) classificationStats() []model.ClassificationStat {
	counts := make(map[string]int)
	for _, e := range s.rows {
		counts[e.Classification]++
	}
	stats := make([]model.ClassificationStat, 0, len(counts))
	for c, n := range counts {
		stats = append(stats, model.ClassificationStat{Classification: c, Count: n})
	}
	return stats
}

type fakeUsage struct {
	records []*model.TokenUsage
}

func (u *fakeUsage) InsertUsage(_ context.Context, rec *model.TokenUsage) error {
	u.records = append(u.records, rec)
	return nil
}

func testMessage(id string) *model.Message {
	return &model.Message{
		ID:             id,
		ConversationID: "conv-1",
		Subject:        "Results blocked",
		BodyPreview:    "I have paid my fees but",
		BodyText:       "I have paid my fees but my results are still blocked.",
		FromAddress:    "student@example.com",
		FromName:       "A Student",
		ReceivedAt:     "2026-08-30T09:00:00Z",
	}
}

func entry(messageID, clientState string) model.ChangeNotification {
	return model.ChangeNotification{
		SubscriptionID: "sub-1",
		ChangeType:     "created",
		ClientState:    clientState,
		Resource:       "users/support@regent.ac.za/mailFolders/inbox/messages/" + messageID,
	}
}

func newTestPipeline(g *fakeGateway, c *fakeClassifier, s *fakeStore, u *fakeUsage) *Pipeline {
	return NewPipeline(g, c, s, u, redact.DefaultMasker(), testClientState, "gemini-2.0-flash-lite", zap.NewNop())
}

func TestPipelineProcessesEntry(t *testing.T) {
	g := &fakeGateway{messages: map[string]*model.Message{"m1": testMessage("m1")}}
	c := &fakeClassifier{verdict: classifier.Verdict{
		Label: "finance-payment", Confidence: 0.9, Reason: "payment issue",
		Usage: classifier.Usage{InputTokens: 100, OutputTokens: 20, TotalTokens: 120},
	}}
	s := newFakeStore()
	u := &fakeUsage{}

	p := newTestPipeline(g, c, s, u)
	p.HandleNotifications(context.Background(), model.NotificationBatch{
		Value: []model.ChangeNotification{entry("m1", testClientState)},
	})

	require.Len(t, s.rows, 1)
	row := s.rows["m1"]
	assert.Equal(t, "finance-payment", row.Classification)
	assert.Equal(t, 0.9, row.Confidence)
	assert.Equal(t, "conv-1", row.ConversationID)

	require.Len(t, u.records, 1)
	assert.Equal(t, int64(1), u.records[0].EmailID)
	assert.Equal(t, 120, u.records[0].TotalTokens)

	require.Len(t, g.tagCalls, 1)
	assert.Equal(t, "m1:Finance Payment", g.tagCalls[0])
}

func TestPipelineIdempotence(t *testing.T) {
	g := &fakeGateway{messages: map[string]*model.Message{"m1": testMessage("m1")}}
	c := &fakeClassifier{verdict: classifier.Verdict{Label: "registration", Confidence: 0.8, Reason: "r"}}
	s := newFakeStore()

	p := newTestPipeline(g, c, s, &fakeUsage{})

	batch := model.NotificationBatch{Value: []model.ChangeNotification{entry("m1", testClientState)}}
	p.HandleNotifications(context.Background(), batch)
	p.HandleNotifications(context.Background(), batch)

	assert.Len(t, s.rows, 1)
	// redelivery is caught by the dedup check before any upstream call
	assert.Len(t, g.fetchCalls, 1)
	assert.Equal(t, 1, c.calls)
}

func TestPipelineInvalidClientState(t *testing.T) {
	g := &fakeGateway{messages: map[string]*model.Message{"m1": testMessage("m1")}}
	c := &fakeClassifier{verdict: classifier.Verdict{Label: "registration", Confidence: 0.8, Reason: "r"}}
	s := newFakeStore()

	p := newTestPipeline(g, c, s, &fakeUsage{})
	p.HandleNotifications(context.Background(), model.NotificationBatch{
		Value: []model.ChangeNotification{entry("m1", "wrong-secret")},
	})

	assert.Empty(t, s.rows)
	assert.Empty(t, g.fetchCalls)
	assert.Empty(t, g.tagCalls)
	assert.Equal(t, 0, c.calls)
}

func TestPipelineBatchIsolation(t *testing.T) {
	g := &fakeGateway{
		messages: map[string]*model.Message{
			"m1": testMessage("m1"),
			"m3": testMessage("m3"),
		},
		fetchErrs: map[string]error{
			"m2": &graph.UpstreamError{Endpoint: "get_message", Status: 503, Body: "unavailable"},
		},
	}
	c := &fakeClassifier{verdict: classifier.Verdict{Label: "finance-fees", Confidence: 0.7, Reason: "r"}}
	s := newFakeStore()

	p := newTestPipeline(g, c, s, &fakeUsage{})
	p.HandleNotifications(context.Background(), model.NotificationBatch{
		Value: []model.ChangeNotification{
			entry("m1", testClientState),
			entry("m2", testClientState),
			entry("m3", testClientState),
		},
	})

	assert.Len(t, s.rows, 2)
	assert.Contains(t, s.rows, "m1")
	assert.Contains(t, s.rows, "m3")
	assert.NotContains(t, s.rows, "m2")
}

func TestPipelineClassifierFailureStoresFallback(t *testing.T) {
	g := &fakeGateway{messages: map[string]*model.Message{"m1": testMessage("m1")}}
	c := &fakeClassifier{err: &classifier.UpstreamError{Status: 500, Body: "down"}}
	s := newFakeStore()
	u := &fakeUsage{}

	p := newTestPipeline(g, c, s, u)
	p.HandleNotifications(context.Background(), model.NotificationBatch{
		Value: []model.ChangeNotification{entry("m1", testClientState)},
	})

	require.Len(t, s.rows, 1)
	row := s.rows["m1"]
	assert.Equal(t, taxonomy.Fallback, row.Classification)
	assert.Equal(t, 0.0, row.Confidence)
	assert.Contains(t, row.Reason, "classification failed")
	// no usage metadata exists for a call that never succeeded
	assert.Empty(t, u.records)
}

func TestPipelineTagFailureDoesNotBlockPersistence(t *testing.T) {
	g := &fakeGateway{
		messages:   map[string]*model.Message{"m1": testMessage("m1")},
		tagOutcome: graph.TagNoPermission,
		tagErr:     &graph.PermissionError{Status: 403, Body: "missing Mail.ReadWrite"},
	}
	c := &fakeClassifier{verdict: classifier.Verdict{Label: "registration", Confidence: 0.8, Reason: "r"}}
	s := newFakeStore()

	p := newTestPipeline(g, c, s, &fakeUsage{})
	p.HandleNotifications(context.Background(), model.NotificationBatch{
		Value: []model.ChangeNotification{entry("m1", testClientState)},
	})

	assert.Len(t, s.rows, 1)
}

func TestPipelineInsertConflictTreatedAsProcessed(t *testing.T) {
	g := &fakeGateway{messages: map[string]*model.Message{"m1": testMessage("m1")}}
	c := &fakeClassifier{verdict: classifier.Verdict{Label: "registration", Confidence: 0.8, Reason: "r"}}
	s := newFakeStore()
	s.insertErr = repository.ErrDuplicateEmail
	u := &fakeUsage{}

	p := newTestPipeline(g, c, s, u)
	// must not panic or record usage for a row it did not win
	p.HandleNotifications(context.Background(), model.NotificationBatch{
		Value: []model.ChangeNotification{entry("m1", testClientState)},
	})

	assert.Empty(t, u.records)
}

func TestPipelineSkipsNonCreatedAndMalformedEntries(t *testing.T) {
	g := &fakeGateway{messages: map[string]*model.Message{"m1": testMessage("m1")}}
	c := &fakeClassifier{verdict: classifier.Verdict{Label: "registration", Confidence: 0.8, Reason: "r"}}
	s := newFakeStore()

	updated := entry("m1", testClientState)
	updated.ChangeType = "updated"

	noID := model.ChangeNotification{
		ChangeType:  "created",
		ClientState: testClientState,
		Resource:    "users/support@regent.ac.za/mailFolders/inbox",
	}

	p := newTestPipeline(g, c, s, &fakeUsage{})
	p.HandleNotifications(context.Background(), model.NotificationBatch{
		Value: []model.ChangeNotification{updated, noID},
	})

	assert.Empty(t, s.rows)
	assert.Empty(t, g.fetchCalls)
}

func TestExtractMessageID(t *testing.T) {
	fromPath := entry("AAMkAGI2", testClientState)
	assert.Equal(t, "AAMkAGI2", extractMessageID(&fromPath))

	inline := model.ChangeNotification{
		ResourceData: &model.NotificationMessage{ID: "inline-id"},
		Resource:     "users/x/mailFolders/inbox/messages/path-id",
	}
	assert.Equal(t, "inline-id", extractMessageID(&inline))

	empty := model.ChangeNotification{Resource: "users/x/mailFolders/inbox"}
	assert.Equal(t, "", extractMessageID(&empty))
}

func TestPipelineMasksBeforeClassify(t *testing.T) {
	msg := testMessage("m1")
	msg.BodyText = "My ID is 9202204720082 and my number is +27 82 555 1234."

	var seenBody string
	g := &fakeGateway{messages: map[string]*model.Message{"m1": msg}}
	c := &capturingClassifier{verdict: classifier.Verdict{Label: "registration", Confidence: 0.8, Reason: "r"}, seen: &seenBody}
	s := newFakeStore()

	p := NewPipeline(g, c, s, &fakeUsage{}, redact.DefaultMasker(), testClientState, "m", zap.NewNop())
	p.HandleNotifications(context.Background(), model.NotificationBatch{
		Value: []model.ChangeNotification{entry("m1", testClientState)},
	})

	assert.NotContains(t, seenBody, "9202204720082")
	assert.NotContains(t, seenBody, "+27 82 555 1234")
	// the stored body is the masked one
	assert.NotContains(t, s.rows["m1"].BodyText, "9202204720082")
}

func TestTruncateOnRuneBoundary(t *testing.T) {
	cut := truncate(strings.Repeat("a", 499)+"é", 500)
	assert.True(t, utf8.ValidString(cut))
	assert.Equal(t, strings.Repeat("a", 499), cut)

	// fits: untouched
	assert.Equal(t, "ééé", truncate("ééé", 6))
	// limit lands mid-rune: back off to the previous boundary
	assert.Equal(t, "é", truncate("ééé", 3))
	assert.Equal(t, "", truncate("é", 1))
	assert.Equal(t, "ab", truncate("abc", 2))
}

func TestPipelineStoresValidUTF8AtTruncationBoundary(t *testing.T) {
	msg := testMessage("m1")
	msg.BodyPreview = strings.Repeat("a", maxSnippetChars-1) + "éé"
	msg.BodyText = strings.Repeat("b", maxStoredBody-1) + "éé"

	g := &fakeGateway{messages: map[string]*model.Message{"m1": msg}}
	c := &fakeClassifier{verdict: classifier.Verdict{Label: "registration", Confidence: 0.8, Reason: "r"}}
	s := newFakeStore()

	p := newTestPipeline(g, c, s, &fakeUsage{})
	p.HandleNotifications(context.Background(), model.NotificationBatch{
		Value: []model.ChangeNotification{entry("m1", testClientState)},
	})

	require.Len(t, s.rows, 1)
	row := s.rows["m1"]
	assert.True(t, utf8.ValidString(row.Snippet))
	assert.True(t, utf8.ValidString(row.BodyText))
	assert.LessOrEqual(t, len(row.Snippet), maxSnippetChars)
	assert.LessOrEqual(t, len(row.BodyText), maxStoredBody)
}

func TestClassificationCountsSumToTotal(t *testing.T) {
	s := newFakeStore()
	u := &fakeUsage{}

	// two finance-payment rows and one registration row
	g := &fakeGateway{messages: map[string]*model.Message{
		"m1": testMessage("m1"),
		"m2": testMessage("m2"),
	}}
	pay := &fakeClassifier{verdict: classifier.Verdict{Label: "finance-payment", Confidence: 0.9, Reason: "r"}}
	newTestPipeline(g, pay, s, u).HandleNotifications(context.Background(), model.NotificationBatch{
		Value: []model.ChangeNotification{entry("m1", testClientState), entry("m2", testClientState)},
	})

	g3 := &fakeGateway{messages: map[string]*model.Message{"m3": testMessage("m3")}}
	reg := &fakeClassifier{verdict: classifier.Verdict{Label: "registration", Confidence: 0.8, Reason: "r"}}
	newTestPipeline(g3, reg, s, u).HandleNotifications(context.Background(), model.NotificationBatch{
		Value: []model.ChangeNotification{entry("m3", testClientState)},
	})

	// a classifier failure lands as a fallback-labeled row
	g4 := &fakeGateway{messages: map[string]*model.Message{"m4": testMessage("m4")}}
	down := &fakeClassifier{err: &classifier.UpstreamError{Status: 500, Body: "down"}}
	newTestPipeline(g4, down, s, u).HandleNotifications(context.Background(), model.NotificationBatch{
		Value: []model.ChangeNotification{entry("m4", testClientState)},
	})

	require.Len(t, s.rows, 4)

	stats := s.classificationStats()
	total := 0
	byLabel := make(map[string]int)
	for _, st := range stats {
		total += st.Count
		byLabel[st.Classification] = st.Count
	}

	assert.Equal(t, len(s.rows), total)
	assert.Equal(t, 2, byLabel["finance-payment"])
	assert.Equal(t, 1, byLabel["registration"])
	assert.Equal(t, 1, byLabel[taxonomy.Fallback])
}

type capturingClassifier struct {
	verdict classifier.Verdict
	seen    *string
}

func (c *capturingClassifier) Classify(_ context.Context, _, body string) (classifier.Verdict, error) {
	*c.seen = body
	return c.verdict, nil
}