package engine

import (
	"log/slog"
	"time"

	"github.com/wardenbot/warden/config"
	"github.com/wardenbot/warden/moderation/executor"
	"github.com/wardenbot/warden/moderation/ledger"
	"github.com/wardenbot/warden/moderation/modlog"
	"github.com/wardenbot/warden/moderation/recordstore"
	"github.com/wardenbot/warden/platform"

	"github.com/disgoorg/snowflake/v2"
)

// ids used by EngineTestFixture
const (
	TestBotID         snowflake.ID = 1
	TestMutedRole     snowflake.ID = 500
	TestModeratorRole snowflake.ID = 501
	TestModLog        snowflake.ID = 600
	TestUserLog       snowflake.ID = 601
	TestSubject       snowflake.ID = 1000
	TestActor         snowflake.ID = 2000
)

type TestFixture struct {
	Engine   *Engine
	Store    *recordstore.MemStore
	Platform *platform.MockPlatform
	Ledger   *ledger.MemLedger
	Events   *platform.Events
	ModLog   *modlog.ModLog
}

// EngineTestFixture wires an engine to in-memory collaborators. The mock platform echoes bot actions back through Events, and TestSubject is a guild member.
func EngineTestFixture() *TestFixture {
	logger := slog.Default()
	p := platform.NewMockPlatform(TestBotID)
	p.AddMember(platform.Member{ID: TestSubject, Username: "subject"})
	p.AddMember(platform.Member{ID: TestActor, Username: "moderator", Roles: []snowflake.ID{TestModeratorRole}})

	events := platform.NewEvents(logger)
	p.Events = events

	store := recordstore.NewMemStore()
	l := ledger.NewMemLedger(1000, time.Minute)
	ml := modlog.New(p, l, config.Channels{ModLog: TestModLog, UserLog: TestUserLog}, logger)
	ml.Register(events)

	exec := executor.New(p, l, executor.Config{
		MutedRole:     TestMutedRole,
		Timeout:       time.Second,
		MaxRetries:    1,
		RetryInterval: time.Millisecond,
	}, logger)
	eng := New(store, exec, p, ml, Config{
		MutedRole:         TestMutedRole,
		ModeratorRole:     TestModeratorRole,
		ReconcileInterval: time.Hour,
		RejoinThreshold:   time.Minute,
		FireTimeout:       5 * time.Second,
	}, logger)
	eng.Register(events)

	return &TestFixture{
		Engine:   eng,
		Store:    store,
		Platform: p,
		Ledger:   l,
		Events:   events,
		ModLog:   ml,
	}
}
