package services

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/osslararemellan/ole/config"
	"github.com/osslararemellan/ole/internal/models"
	"github.com/osslararemellan/ole/internal/realtime"
	"github.com/osslararemellan/ole/internal/repositories"
	"github.com/osslararemellan/ole/internal/testutil"
	"github.com/osslararemellan/ole/utils/ratelimit"
	"github.com/osslararemellan/ole/utils/snowflake"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []realtime.ChangeEvent
}

func (p *recordingPublisher) Publish(_ context.Context, ev realtime.ChangeEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Events(table string) []realtime.ChangeEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []realtime.ChangeEvent
	for _, ev := range p.events {
		if ev.Table == table {
			out = append(out, ev)
		}
	}
	return out
}

type fixture struct {
	db        *gorm.DB
	rdb       *redis.Client
	mr        *miniredis.Miniredis
	blobs     *testutil.MemoryBlobs
	pub       *recordingPublisher
	limits    config.MessagingConfig
	profiles  *repositories.ProfileRepository
	resources *repositories.ResourceRepository

	profileSvc  *ProfileService
	groupSvc    *GroupService
	messageSvc  *MessageService
	contactSvc  *ContactService
	fileSvc     *FileService
	resourceSvc *ResourceService
}

func newFixture(t *testing.T, perMinute int) *fixture {
	t.Helper()
	f := &fixture{
		db:     testutil.NewDB(t),
		blobs:  testutil.NewMemoryBlobs(),
		pub:    &recordingPublisher{},
		limits: config.MessagingConfig{MaxMaterials: 3, MaxFiles: 3, MaxUploadBytes: 1 << 20},
	}
	f.rdb, f.mr = testutil.NewRedis(t)
	logger := zap.NewNop()

	ids, err := snowflake.NewGenerator(1)
	require.NoError(t, err)
	limiter := ratelimit.NewWindowLimiter(f.rdb, ratelimit.Rules(config.RateLimitConfig{MessagePerMinute: perMinute}), logger, true)

	f.profiles = repositories.NewProfileRepository(f.db, f.rdb)
	f.resources = repositories.NewResourceRepository(f.db)
	groups := repositories.NewGroupRepository(f.db)
	files := repositories.NewFileRepository(f.db)

	f.profileSvc = NewProfileService(f.profiles, logger)
	f.groupSvc = NewGroupService(groups, f.profiles, f.pub, logger)
	f.messageSvc = NewMessageService(MessageDeps{
		Messages:  repositories.NewMessageRepository(f.db),
		Groups:    f.groupSvc,
		Profiles:  f.profiles,
		Files:     files,
		Resources: f.resources,
		Blobs:     f.blobs,
		IDs:       ids,
		Limiter:   limiter,
		Publisher: f.pub,
		Limits:    f.limits,
		Logger:    logger,
	})
	f.contactSvc = NewContactService(f.messageSvc, repositories.NewContactRepository(f.db), f.profiles, logger)
	f.fileSvc = NewFileService(files, f.blobs, f.limits.MaxUploadBytes, logger)
	f.resourceSvc = NewResourceService(f.resources, logger)
	return f
}

// clock makes every service see times advancing one second per call.
func (f *fixture) clock(start time.Time) {
	var mu sync.Mutex
	now := start
	tick := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
	f.messageSvc.now = tick
	f.fileSvc.now = tick
}

func (f *fixture) resource(t *testing.T, author uint, title string) *models.Resource {
	t.Helper()
	res := &models.Resource{Title: title, Subject: "Matematik", Grade: "7", ResourceType: "pdf", FilePath: "lib/" + title + ".pdf", AuthorID: author}
	require.NoError(t, f.resources.Create(context.Background(), res))
	return res
}

// group creates a group owned by owner with the other users at the given
// statuses.
func (f *fixture) group(t *testing.T, owner uint, public bool, members map[uint]string) *models.Group {
	t.Helper()
	ctx := context.Background()
	g, err := f.groupSvc.Create(ctx, owner, &CreateGroupRequest{Name: "Grupp", IsPublic: public})
	require.NoError(t, err)
	for id, status := range members {
		require.NoError(t, f.db.Create(&models.GroupMember{GroupID: g.ID, UserID: id, Role: models.MemberRoleMember, Status: status}).Error)
	}
	return g
}
