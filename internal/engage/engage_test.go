package engage

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/pytrel-systems/dragon/internal/action"
	"github.com/pytrel-systems/dragon/internal/channel"
	"github.com/pytrel-systems/dragon/internal/ledger"
	"github.com/pytrel-systems/dragon/internal/queue"
	"github.com/pytrel-systems/dragon/internal/telemetry"
)

type fakeSender struct {
	posts   []string
	replies []string
	err     error
}

func (f *fakeSender) Post(_ context.Context, text string) (json.RawMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.posts = append(f.posts, text)
	return json.RawMessage(`{"data":{"id":"900"}}`), nil
}

func (f *fakeSender) Reply(_ context.Context, inReplyTo, text string) (json.RawMessage, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.replies = append(f.replies, inReplyTo+"|"+text)
	return json.RawMessage(`{"data":{"id":"901"}}`), nil
}

type fixture struct {
	engager *Engager
	queue   *queue.Store
	ledger  *ledger.Ledger
	sender  *fakeSender
	slept   []time.Duration
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	dir := t.TempDir()
	led, err := ledger.New(dir)
	if err != nil {
		t.Fatalf("ledger: %v", err)
	}
	f := &fixture{
		queue:  queue.New(dir),
		ledger: led,
		sender: &fakeSender{},
	}
	senders := map[action.Channel]channel.Sender{
		action.ChannelX:        f.sender,
		action.ChannelMoltbook: f.sender,
	}
	f.engager = New(f.queue, led, senders, telemetry.New(), cfg,
		WithSleep(func(d time.Duration) { f.slept = append(f.slept, d) }))
	return f
}

func (f *fixture) counts(t *testing.T) queue.Counts {
	t.Helper()
	c, err := f.queue.Count()
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	return c
}

func (f *fixture) events(t *testing.T) []ledger.Event {
	t.Helper()
	file, err := os.Open(f.ledger.Path())
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	defer file.Close()
	var events []ledger.Event
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var ev ledger.Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.Fatalf("decode ledger line: %v", err)
		}
		events = append(events, ev)
	}
	return events
}

func hasEvent(events []ledger.Event, eventType string) bool {
	for _, ev := range events {
		if ev.EventType == eventType {
			return true
		}
	}
	return false
}

func post(id, text string) action.Action {
	return action.Action{ID: id, Channel: action.ChannelX, Type: action.TypePost, Text: text}
}

func TestEnqueueBlocksBadActions(t *testing.T) {
	f := newFixture(t, Config{})

	created, blocked, err := f.engager.Enqueue([]action.Action{
		post("good", "shipping today"),
		post("bad", "guaranteed free money"),
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if created != 1 || blocked != 1 {
		t.Fatalf("expected 1 created / 1 blocked, got %d/%d", created, blocked)
	}
	if c := f.counts(t); c.Outbox != 1 {
		t.Fatalf("expected 1 outbox job, got %+v", c)
	}
	events := f.events(t)
	if !hasEvent(events, "ENGAGE_ACTION_BLOCKED") || !hasEvent(events, "ENGAGE_ENQUEUED") {
		t.Fatalf("expected block and enqueue events, got %+v", events)
	}
}

func TestExecuteSkipsWhenStale(t *testing.T) {
	f := newFixture(t, Config{RequireFreshnessOK: true})
	if _, _, err := f.engager.Enqueue([]action.Action{post("a1", "hello world")}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	n, err := f.engager.ExecuteOutbox(context.Background(), false)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected no execution while stale, got %d", n)
	}
	if c := f.counts(t); c.Outbox != 1 || c.Sent != 0 {
		t.Fatalf("expected queue untouched, got %+v", c)
	}
	if !hasEvent(f.events(t), "ENGAGE_SKIPPED_STALE") {
		t.Fatal("expected ENGAGE_SKIPPED_STALE event")
	}
	if len(f.sender.posts) != 0 {
		t.Fatal("expected no sends while stale")
	}
}

func TestExecuteSendsAndRecords(t *testing.T) {
	f := newFixture(t, Config{})
	if _, _, err := f.engager.Enqueue([]action.Action{post("a1", "hello world")}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	n, err := f.engager.ExecuteOutbox(context.Background(), true)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 executed, got %d", n)
	}
	if c := f.counts(t); c.Outbox != 0 || c.Sent != 1 {
		t.Fatalf("expected job moved to sent, got %+v", c)
	}

	sent, err := f.queue.List(queue.AreaSent, 0)
	if err != nil {
		t.Fatalf("list sent: %v", err)
	}
	job, err := f.queue.ReadJob(sent[0])
	if err != nil {
		t.Fatalf("read sent: %v", err)
	}
	if job.ExecutedUnix == 0 || len(job.Receipt) == 0 {
		t.Fatalf("expected execution stamp and receipt, got %+v", job)
	}
	if !hasEvent(f.events(t), "ENGAGE_EXECUTED") {
		t.Fatal("expected ENGAGE_EXECUTED event")
	}
}

func TestExecuteLeavesJobOnTransientFailure(t *testing.T) {
	f := newFixture(t, Config{})
	f.sender.err = &channel.APIError{StatusCode: 503, Body: "unavailable"}
	if _, _, err := f.engager.Enqueue([]action.Action{post("a1", "hello world")}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	n, err := f.engager.ExecuteOutbox(context.Background(), true)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 executed, got %d", n)
	}
	if c := f.counts(t); c.Outbox != 1 || c.Dead != 0 {
		t.Fatalf("expected job left queued for retry, got %+v", c)
	}
	if !hasEvent(f.events(t), "ENGAGE_EXEC_FAIL") {
		t.Fatal("expected ENGAGE_EXEC_FAIL event")
	}

	// Next tick with a healthy channel drains it.
	f.sender.err = nil
	if n, err := f.engager.ExecuteOutbox(context.Background(), true); err != nil || n != 1 {
		t.Fatalf("expected retry to succeed, got n=%d err=%v", n, err)
	}
	if c := f.counts(t); c.Outbox != 0 || c.Sent != 1 {
		t.Fatalf("expected job sent on retry, got %+v", c)
	}
}

func TestExecuteDeadLettersPolicyViolation(t *testing.T) {
	f := newFixture(t, Config{})

	// Written directly into the outbox, bypassing the enqueue gate. The
	// execution-time gate must still catch it.
	if _, err := f.queue.Enqueue([]action.Action{post("a1", "this is guaranteed free money")}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	n, err := f.engager.ExecuteOutbox(context.Background(), true)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 executed, got %d", n)
	}
	if c := f.counts(t); c.Outbox != 0 || c.Dead != 1 {
		t.Fatalf("expected dead-lettered job, got %+v", c)
	}
	if !hasEvent(f.events(t), "ENGAGE_JOB_BLOCKED") {
		t.Fatal("expected ENGAGE_JOB_BLOCKED event")
	}
	if len(f.sender.posts) != 0 {
		t.Fatal("expected no sends")
	}
}

func TestExecuteDeadLettersUnreadableJob(t *testing.T) {
	f := newFixture(t, Config{})
	if _, _, err := f.engager.Enqueue([]action.Action{post("a1", "hello world")}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	paths, err := f.queue.ListOutbox(0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if err := os.WriteFile(paths[0], []byte("{corrupt"), 0o644); err != nil {
		t.Fatalf("corrupt job: %v", err)
	}

	if _, err := f.engager.ExecuteOutbox(context.Background(), true); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if c := f.counts(t); c.Outbox != 0 || c.Dead != 1 {
		t.Fatalf("expected corrupt job dead-lettered, got %+v", c)
	}
}

func TestExecuteRespectsMaxPerRunAndCooldown(t *testing.T) {
	f := newFixture(t, Config{MaxPerRun: 2, Cooldown: 5 * time.Second})
	if _, _, err := f.engager.Enqueue([]action.Action{
		post("a1", "first update"),
		post("a2", "second update"),
		post("a3", "third update"),
	}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	n, err := f.engager.ExecuteOutbox(context.Background(), true)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected per-run cap of 2, got %d", n)
	}
	if c := f.counts(t); c.Outbox != 1 || c.Sent != 2 {
		t.Fatalf("expected one job left for next run, got %+v", c)
	}
	if len(f.slept) != 1 || f.slept[0] != 5*time.Second {
		t.Fatalf("expected one cooldown sleep between sends, got %v", f.slept)
	}
}

func TestExecuteRoutesRepliesWithTarget(t *testing.T) {
	f := newFixture(t, Config{})
	reply := action.Action{
		ID:        "x_reply:42",
		Channel:   action.ChannelX,
		Type:      action.TypeReply,
		InReplyTo: "42",
		Text:      "thanks for the ping",
	}
	if _, _, err := f.engager.Enqueue([]action.Action{reply}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := f.engager.ExecuteOutbox(context.Background(), true); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(f.sender.replies) != 1 || f.sender.replies[0] != "42|thanks for the ping" {
		t.Fatalf("expected reply dispatched with target, got %v", f.sender.replies)
	}
}

func TestEnqueueIsIdempotentAcrossTicks(t *testing.T) {
	f := newFixture(t, Config{})
	a := post("daily:x:19675", "same plan both ticks")

	created, _, err := f.engager.Enqueue([]action.Action{a})
	if err != nil || created != 1 {
		t.Fatalf("first enqueue: created=%d err=%v", created, err)
	}
	created, _, err = f.engager.Enqueue([]action.Action{a})
	if err != nil {
		t.Fatalf("second enqueue: %v", err)
	}
	if created != 0 {
		t.Fatalf("expected duplicate enqueue to no-op, got %d created", created)
	}
	if c := f.counts(t); c.Outbox != 1 {
		t.Fatalf("expected single job, got %+v", c)
	}
}
