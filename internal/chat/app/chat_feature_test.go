package app

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"ephemeral_chat/internal/chat/repository"

	"github.com/cucumber/godog"
	"github.com/spf13/afero"
)

// chatWorld state of one scenario
type chatWorld struct {
	t      *testing.T
	clock  *fakeClock
	fs     afero.Fs
	store  *repository.LocalAttachmentStore
	repo   repository.MessageRepository
	uc     *MessageUseCase
	reaper *Reaper
	subs   map[string]*FakeSubscriber
	report CycleReport
}

func (w *chatWorld) reset() error {
	w.clock = newFakeClock(t0)
	w.fs = afero.NewMemMapFs()
	store, err := repository.NewLocalAttachmentStore(w.fs, "/uploads")
	if err != nil {
		return err
	}
	w.store = store
	w.repo = newSQLiteRepo(w.t, w.clock.Now)
	w.uc = NewMessageUseCase(w.repo, NewHub(), nil)
	w.reaper = NewReaper(w.repo, w.store, ReaperConfig{})
	w.reaper.now = w.clock.Now
	w.subs = make(map[string]*FakeSubscriber)
	w.report = CycleReport{}
	return nil
}

func (w *chatWorld) subscriber(user string) *FakeSubscriber {
	if s, ok := w.subs[user]; ok {
		return s
	}
	s := NewFakeSubscriber(user + "-conn")
	w.subs[user] = s
	return s
}

func (w *chatWorld) joinedRoom(user, room string) error {
	_, err := w.uc.Join(context.Background(), w.subscriber(user), user, room, nil)
	return err
}

func (w *chatWorld) sends(user, content, room string) error {
	_, err := w.uc.Send(context.Background(), user, room, content)
	return err
}

func (w *chatWorld) uploaded(user, name, room string) error {
	ctx := context.Background()
	ref, err := w.store.Save(ctx, name, strings.NewReader("bytes"), 5, "image/png")
	if err != nil {
		return err
	}
	_, err = w.uc.Attach(ctx, user, room, DeriveType("image/png"), ref)
	return err
}

func (w *chatWorld) daysPass(days int) error {
	w.clock.Advance(time.Duration(days) * 24 * time.Hour)
	return nil
}

func (w *chatWorld) receives(user, content string) error {
	got := w.subscriber(user).Received()
	for _, m := range got {
		if m.Content == content {
			return nil
		}
	}
	return fmt.Errorf("%s did not receive %q, got %d messages", user, content, len(got))
}

func (w *chatWorld) receivesNothing(user string) error {
	if got := w.subscriber(user).Received(); len(got) != 0 {
		return fmt.Errorf("%s received %d messages, first %q", user, len(got), got[0].Content)
	}
	return nil
}

func (w *chatWorld) historyIs(room, contents string) error {
	msgs, err := w.uc.History(context.Background(), room)
	if err != nil {
		return err
	}
	var got []string
	for _, m := range msgs {
		got = append(got, m.Content)
	}
	if strings.Join(got, ",") != contents {
		return fmt.Errorf("history of %s is %v, want %s", room, got, contents)
	}
	return nil
}

func (w *chatWorld) historyIsEmpty(room string) error {
	return w.historyIs(room, "")
}

func (w *chatWorld) reaperRuns() error {
	report, err := w.reaper.RunCycle(context.Background())
	w.report = report
	return err
}

func (w *chatWorld) expiredDeleted(n int) error {
	if w.report.Deleted != int64(n) {
		return fmt.Errorf("deleted %d rows, want %d", w.report.Deleted, n)
	}
	return nil
}

func (w *chatWorld) fileGone(name string) error {
	exists, err := afero.Exists(w.fs, "/uploads/"+name)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("file %s still exists", name)
	}
	return nil
}

func initializeChatScenario(t *testing.T) func(*godog.ScenarioContext) {
	return func(ctx *godog.ScenarioContext) {
		w := &chatWorld{t: t}
		ctx.Before(func(c context.Context, sc *godog.Scenario) (context.Context, error) {
			return c, w.reset()
		})

		ctx.Step(`^"([^"]*)" joined room "([^"]*)"$`, w.joinedRoom)
		ctx.Step(`^"([^"]*)" sends "([^"]*)" to "([^"]*)"$`, w.sends)
		ctx.Step(`^"([^"]*)" sent "([^"]*)" to "([^"]*)"$`, w.sends)
		ctx.Step(`^"([^"]*)" uploaded "([^"]*)" to "([^"]*)"$`, w.uploaded)
		ctx.Step(`^(\d+) days pass$`, w.daysPass)
		ctx.Step(`^"([^"]*)" receives "([^"]*)"$`, w.receives)
		ctx.Step(`^"([^"]*)" receives nothing$`, w.receivesNothing)
		ctx.Step(`^the history of "([^"]*)" is "([^"]*)"$`, w.historyIs)
		ctx.Step(`^the history of "([^"]*)" is empty$`, w.historyIsEmpty)
		ctx.Step(`^the reaper runs$`, w.reaperRuns)
		ctx.Step(`^(\d+) expired messages? (?:is|are) deleted$`, w.expiredDeleted)
		ctx.Step(`^the file "([^"]*)" is gone$`, w.fileGone)
	}
}

func TestChatFeatures(t *testing.T) {
	suite := godog.TestSuite{
		ScenarioInitializer: initializeChatScenario(t),
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
			Strict:   true,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
