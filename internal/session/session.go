// Package session keeps the server side of one open contacts page: the
// person and group directories, the open conversation, the composer and
// the live subscriptions that keep them current.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/osslararemellan/ole/internal/conversation"
	"github.com/osslararemellan/ole/internal/directory"
	"github.com/osslararemellan/ole/internal/models"
	"github.com/osslararemellan/ole/internal/realtime"
	"github.com/osslararemellan/ole/internal/services"
	"github.com/osslararemellan/ole/internal/utils"
)

var ErrClosed = errors.New("session closed")

const (
	eventBuffer = 256
	inboxBuffer = 64

	messagesChannel = "messages"
)

// Contacts builds the person directory.
type Contacts interface {
	Directory(ctx context.Context, me uint) (*directory.Directory, error)
	Resolve(ctx context.Context, dir *directory.Directory, id uint) (directory.Entry, error)
}

// Groups lists the caller's group memberships.
type Groups interface {
	Directory(ctx context.Context, me uint) ([]services.GroupEntry, error)
}

// Messages reads conversations and records reads.
type Messages interface {
	Sender
	History(ctx context.Context, me uint, target conversation.Target) ([]services.MessageDTO, error)
	MarkRead(ctx context.Context, me uint, target conversation.Target) (int64, error)
}

// Deps are shared by every session of a server.
type Deps struct {
	Contacts     Contacts
	Groups       Groups
	Messages     Messages
	Files        Uploader
	Redis        *redis.Client
	Pool         *utils.WorkerPool
	MaxMaterials int
	MaxFiles     int
	Logger       *zap.Logger
}

type change struct {
	ev    realtime.ChangeEvent
	watch conversation.Target // set for membership changes
}

// Session is safe for concurrent use. User commands are serialized by
// opMu; all state is guarded by mu. Realtime changes are queued and
// applied by one loop goroutine.
type Session struct {
	id       string
	userID   uint
	deps     Deps
	logger   *zap.Logger
	composer *Composer
	rt       *realtime.Client

	opMu sync.Mutex

	mu         sync.Mutex
	closed     bool
	selector   conversation.Selector
	dir        *directory.Directory
	groups     []services.GroupEntry
	history    []services.MessageDTO
	gen        uint64 // bumped whenever the open conversation changes
	loadSeq    uint64
	appliedSeq uint64
	badges     map[string]*Optimistic[int64]
	membership *realtime.Channel
	events     chan Event

	inbox    chan change
	ctx      context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}
}

func New(deps Deps, userID uint) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	logger := deps.Logger.With(zap.String("session_id", id), zap.Uint("user_id", userID))
	s := &Session{
		id:       id,
		userID:   userID,
		deps:     deps,
		logger:   logger,
		composer: NewComposer(userID, deps.Messages, deps.Files, deps.MaxMaterials, deps.MaxFiles, logger),
		rt:       realtime.NewClient(deps.Redis, logger),
		dir:      directory.New(),
		badges:   make(map[string]*Optimistic[int64]),
		events:   make(chan Event, eventBuffer),
		inbox:    make(chan change, inboxBuffer),
		ctx:      ctx,
		cancel:   cancel,
		loopDone: make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) UserID() uint { return s.userID }

func (s *Session) Composer() *Composer { return s.composer }

// Events delivers what changed. The channel is closed by Close.
func (s *Session) Events() <-chan Event { return s.events }

// Open loads both directories, starts listening for new messages and
// applies the deep link, if any. Load failures become notices.
func (s *Session) Open(ctx context.Context, deepLink string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	dir, groups := s.load(ctx)

	_, err := s.rt.Channel(messagesChannel).
		On(realtime.Filter{Table: "messages", Events: []realtime.EventType{realtime.Insert}}, s.push(conversation.None())).
		Subscribe(ctx)
	if err != nil {
		s.logger.Warn("message subscription failed", zap.Error(err))
		s.Notice("Live updates are unavailable")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.install(dir, groups)
	// The link is consumed here; the conversation opens through the normal
	// selection path below.
	target, applied := s.selector.ApplyDeepLink(deepLink)
	if applied {
		s.selector.Clear()
	}
	s.mu.Unlock()

	if !applied {
		return nil
	}
	if err := s.selectLocked(ctx, target); err != nil {
		s.logger.Info("deep link not opened", zap.String("chat", deepLink), zap.Error(err))
		s.Notice(noticeText(err))
	}
	return nil
}

// load fetches both directories. A failure leaves the corresponding part
// empty and is reported as a notice.
func (s *Session) load(ctx context.Context) (*directory.Directory, []services.GroupEntry) {
	dir, err := s.deps.Contacts.Directory(ctx, s.userID)
	if err != nil {
		s.logger.Warn("load directory failed", zap.Error(err))
		s.Notice("Could not load your contacts")
		dir = nil
	}
	groups, err := s.deps.Groups.Directory(ctx, s.userID)
	if err != nil {
		s.logger.Warn("load groups failed", zap.Error(err))
		s.Notice("Could not load your groups")
		groups = nil
	}
	return dir, groups
}

// install swaps in freshly loaded directories, keeping pending badges in
// front of the new counts. Nil arguments keep the current data.
func (s *Session) install(dir *directory.Directory, groups []services.GroupEntry) {
	if dir != nil {
		if active, ok := s.selector.ActivePerson(); ok && !dir.Has(active) {
			if e, found := s.dir.Get(active); found && e.Loaded {
				dir.Ensure(entryProfile(e))
			}
		}
		s.dir = dir
	}
	if groups != nil {
		s.groups = groups
	}
	for key, b := range s.badges {
		t, err := conversation.ParseTarget(key)
		if err != nil || (t.IsDirect() && dir == nil) || (t.IsGroup() && groups == nil) {
			continue
		}
		b.Reset(s.unreadOf(t))
		if b.Pending() {
			s.setUnread(t, b.Value())
		}
	}
	s.emitDirectory()
	s.emitGroups()
}

// Refresh reloads both directories, keeping the open conversation.
func (s *Session) Refresh(ctx context.Context) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	dir, groups := s.load(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.install(dir, groups)
	return nil
}

// SelectPerson opens the direct conversation with userID.
func (s *Session) SelectPerson(ctx context.Context, userID uint) error {
	return s.Select(ctx, conversation.Direct(userID))
}

// SelectGroup opens a group conversation. The membership must be approved.
func (s *Session) SelectGroup(ctx context.Context, groupID uint) error {
	return s.Select(ctx, conversation.Group(groupID))
}

func (s *Session) Select(ctx context.Context, t conversation.Target) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	err := s.selectLocked(ctx, t)
	if err != nil {
		s.Notice(noticeText(err))
	}
	return err
}

// selectLocked runs with opMu held.
func (s *Session) selectLocked(ctx context.Context, t conversation.Target) error {
	switch {
	case t.IsNone():
		return services.ErrInvalidTarget
	case t.IsDirect() && t.ID() == s.userID:
		return services.ErrSelfTarget
	}

	if t.IsDirect() {
		s.mu.Lock()
		known := s.dir.Has(t.ID())
		s.mu.Unlock()
		if !known {
			e, err := s.deps.Contacts.Resolve(ctx, directory.New(), t.ID())
			if err != nil {
				return err
			}
			s.mu.Lock()
			if s.dir.Ensure(entryProfile(e)) {
				s.emitDirectory()
			}
			s.mu.Unlock()
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if t.IsGroup() {
		if err := s.groupAccess(t.ID()); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.selector.Select(t)
	s.gen++
	gen := s.gen
	s.history = nil
	old := s.membership
	s.membership = nil
	badge := s.clearBadge(t)
	s.emitDirectory()
	s.emitGroups()
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}
	if t.IsGroup() {
		s.watchMembership(ctx, t, gen)
	}
	s.markRead(t, badge)
	s.loadHistory(ctx, t, gen)
	return nil
}

// groupAccess checks the membership listed in the group directory.
func (s *Session) groupAccess(groupID uint) error {
	for _, g := range s.groups {
		if g.ID == groupID {
			if !g.Approved() {
				return services.ErrMembershipNotApproved
			}
			return nil
		}
	}
	return services.ErrNotMember
}

// Clear closes the open conversation.
func (s *Session) Clear() {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	s.selector.Clear()
	s.gen++
	s.history = nil
	old := s.membership
	s.membership = nil
	s.emitDirectory()
	s.emitGroups()
	s.mu.Unlock()
	if old != nil {
		old.Close()
	}
}

func (s *Session) watchMembership(ctx context.Context, t conversation.Target, gen uint64) {
	name := fmt.Sprintf("membership:%d:%d", t.ID(), s.userID)
	filter := realtime.Filter{
		Table:  "group_members",
		Events: []realtime.EventType{realtime.Delete, realtime.Update},
		Match:  map[string]any{"group_id": t.ID(), "user_id": s.userID},
	}
	ch, err := s.rt.Channel(name).On(filter, s.push(t)).Subscribe(ctx)
	if err != nil {
		s.logger.Warn("membership subscription failed", zap.String("channel", name), zap.Error(err))
		return
	}
	s.mu.Lock()
	if s.closed || s.gen != gen {
		s.mu.Unlock()
		ch.Close()
		return
	}
	s.membership = ch
	s.mu.Unlock()
}

// clearBadge zeroes the unread count of t speculatively and returns the
// badge to settle once the backend has answered.
func (s *Session) clearBadge(t conversation.Target) *Optimistic[int64] {
	key := t.Key()
	b, ok := s.badges[key]
	if !ok {
		b = NewOptimistic(s.unreadOf(t))
		s.badges[key] = b
	}
	b.Apply(0)
	s.setUnread(t, 0)
	return b
}

func (s *Session) markRead(t conversation.Target, b *Optimistic[int64]) {
	job := utils.Job{
		Name: "mark-read",
		Run: func(ctx context.Context) {
			_, err := s.deps.Messages.MarkRead(ctx, s.userID, t)
			s.settleBadge(t, b, err)
		},
	}
	if err := s.deps.Pool.Submit(s.ctx, job); err != nil {
		s.settleBadge(t, b, err)
	}
}

func (s *Session) settleBadge(t conversation.Target, b *Optimistic[int64], err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.badges[t.Key()] != b {
		return
	}
	delete(s.badges, t.Key())
	if err == nil {
		b.Confirm()
		return
	}
	s.logger.Warn("mark read failed", zap.String("target", t.Key()), zap.Error(err))
	s.setUnread(t, b.Rollback())
	s.emitDirectory()
	s.emitGroups()
	s.noticeLocked("Could not mark the conversation as read")
}

func (s *Session) unreadOf(t conversation.Target) int64 {
	switch {
	case t.IsDirect():
		if e, ok := s.dir.Get(t.ID()); ok {
			return e.Unread
		}
	case t.IsGroup():
		for _, g := range s.groups {
			if g.ID == t.ID() {
				return g.Unread
			}
		}
	}
	return 0
}

func (s *Session) setUnread(t conversation.Target, n int64) {
	switch {
	case t.IsDirect():
		s.dir.SetUnread(t.ID(), n)
	case t.IsGroup():
		for i := range s.groups {
			if s.groups[i].ID == t.ID() {
				s.groups[i].Unread = n
			}
		}
	}
}

// loadHistory fetches the conversation and installs it unless the
// selection moved on, an eviction happened or a newer load already landed.
func (s *Session) loadHistory(ctx context.Context, t conversation.Target, gen uint64) {
	s.mu.Lock()
	s.loadSeq++
	seq := s.loadSeq
	s.mu.Unlock()

	msgs, err := s.deps.Messages.History(ctx, s.userID, t)

	s.mu.Lock()
	if s.closed || s.gen != gen || s.selector.Active() != t || seq < s.appliedSeq {
		s.mu.Unlock()
		return
	}
	if err != nil && t.IsGroup() && lostMembership(err) {
		// The membership went away before its channel was listening.
		s.mu.Unlock()
		s.evict(t)
		return
	}
	defer s.mu.Unlock()
	if err != nil {
		s.logger.Warn("load history failed", zap.String("target", t.Key()), zap.Error(err))
		s.noticeLocked("Could not load the conversation")
		return
	}
	s.appliedSeq = seq
	if msgs == nil {
		msgs = []services.MessageDTO{}
	}
	s.history = msgs
	s.emitLocked(Event{Type: EventHistory, Payload: HistoryPayload{Target: t, Messages: msgs}})
}

// Send posts the composer to the open conversation.
func (s *Session) Send(ctx context.Context) (*services.MessageDTO, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	s.mu.Lock()
	t, gen := s.selector.Active(), s.gen
	s.mu.Unlock()
	if t.IsNone() {
		s.Notice("Choose a conversation first")
		return nil, services.ErrInvalidTarget
	}

	msg, err := s.composer.Send(ctx, t)
	if err != nil {
		s.logger.Warn("send failed", zap.String("target", t.Key()), zap.Error(err))
		s.Notice(noticeText(err))
		s.emitComposer()
		return nil, err
	}
	s.emit(Event{Type: EventSent, Payload: msg})
	s.emitComposer()
	s.loadHistory(ctx, t, gen)
	return msg, nil
}

// Upload stores an attachment for the composer.
func (s *Session) Upload(ctx context.Context, name, contentType string, size int64, body io.Reader) (*services.FileDTO, error) {
	f, err := s.composer.Upload(ctx, name, contentType, size, body)
	if err != nil {
		s.Notice(noticeText(err))
		return nil, err
	}
	s.emitComposer()
	return f, nil
}

// UpdateComposer applies a local composer edit and publishes the result.
func (s *Session) UpdateComposer(edit func(c *Composer)) {
	edit(s.composer)
	s.emitComposer()
}

func (s *Session) Active() conversation.Target {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selector.Active()
}

func (s *Session) Directory() []directory.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dir.Entries()
}

func (s *Session) Groups() []services.GroupEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]services.GroupEntry(nil), s.groups...)
}

func (s *Session) History() []services.MessageDTO {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]services.MessageDTO(nil), s.history...)
}

// push returns a realtime handler that queues changes for the loop. It
// gives up when the channel closes.
func (s *Session) push(watch conversation.Target) realtime.Handler {
	return func(ctx context.Context, ev realtime.ChangeEvent) {
		select {
		case s.inbox <- change{ev: ev, watch: watch}:
		case <-ctx.Done():
		case <-s.ctx.Done():
		}
	}
}

func (s *Session) loop() {
	defer close(s.loopDone)
	for {
		select {
		case <-s.ctx.Done():
			return
		case c := <-s.inbox:
			if c.ev.Table == "group_members" {
				s.onMembership(c)
			} else {
				s.onMessage()
			}
		}
	}
}

// onMessage refetches the open conversation. Any insert triggers it.
func (s *Session) onMessage() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	t, gen := s.selector.Active(), s.gen
	s.mu.Unlock()
	if !t.IsNone() {
		s.loadHistory(s.ctx, t, gen)
	}
}

// onMembership evicts the open group when our row was deleted or moved
// away from approved.
func (s *Session) onMembership(c change) {
	evict := false
	switch c.ev.EventType {
	case realtime.Delete:
		evict = true
	case realtime.Update:
		status, _ := c.ev.New.String("status")
		evict = status != models.MemberStatusApproved
	}
	if evict {
		s.evict(c.watch)
	}
}

func lostMembership(err error) bool {
	return errors.Is(err, services.ErrNotMember) || errors.Is(err, services.ErrMembershipNotApproved)
}

// evict closes group conversation t if it is still open, tells the page
// and reloads the group directory.
func (s *Session) evict(t conversation.Target) {
	s.mu.Lock()
	if s.closed || !s.selector.ClearIf(t) {
		s.mu.Unlock()
		return
	}
	s.gen++
	s.history = nil
	ch := s.membership
	s.membership = nil
	s.emitLocked(Event{Type: EventLeftGroup, Payload: LeftGroupPayload{GroupID: t.ID(), Message: leftGroupMessage}})
	s.emitDirectory()
	s.mu.Unlock()

	if ch != nil {
		ch.Close()
	}
	s.logger.Info("evicted from group conversation", zap.Uint("group_id", t.ID()))

	groups, err := s.deps.Groups.Directory(s.ctx, s.userID)
	if err != nil {
		s.logger.Warn("reload groups failed", zap.Error(err))
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.install(nil, groups)
	}
}

// Close stops every subscription and closes Events. It is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.gen++
	s.membership = nil
	s.mu.Unlock()

	s.rt.Close()
	s.cancel()
	<-s.loopDone

	s.mu.Lock()
	close(s.events)
	s.mu.Unlock()
	s.logger.Debug("session closed")
}

func (s *Session) emit(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emitLocked(ev)
}

// emitLocked never blocks; a reader that falls this far behind loses
// events and catches up on the next snapshot.
func (s *Session) emitLocked(ev Event) {
	if s.closed {
		return
	}
	select {
	case s.events <- ev:
	default:
		s.logger.Warn("session event dropped", zap.String("type", string(ev.Type)))
	}
}

func (s *Session) emitDirectory() {
	s.emitLocked(Event{Type: EventDirectory, Payload: DirectoryPayload{Entries: s.dir.Entries(), Active: s.selector.Active()}})
}

func (s *Session) emitGroups() {
	groups := append([]services.GroupEntry{}, s.groups...)
	s.emitLocked(Event{Type: EventGroups, Payload: GroupsPayload{Groups: groups, Active: s.selector.Active()}})
}

func (s *Session) emitComposer() {
	s.emit(Event{Type: EventComposer, Payload: s.composer.Snapshot()})
}

// Notice shows msg on the page.
func (s *Session) Notice(msg string) {
	s.emit(Event{Type: EventNotice, Payload: NoticePayload{Message: msg}})
}

func (s *Session) noticeLocked(msg string) {
	s.emitLocked(Event{Type: EventNotice, Payload: NoticePayload{Message: msg}})
}

// entryProfile carries the displayed fields of e back into a profile.
func entryProfile(e directory.Entry) *models.Profile {
	return &models.Profile{
		ID:        e.ProfileID,
		FullName:  e.FullName,
		AvatarURL: e.AvatarURL,
		Title:     e.Title,
		School:    e.School,
	}
}

// noticeText is what the page shows for a failed command.
func noticeText(err error) string {
	switch {
	case errors.Is(err, services.ErrMembershipNotApproved):
		return "Your membership in this group is not approved yet"
	case errors.Is(err, services.ErrNotMember):
		return "You are not a member of this group"
	case errors.Is(err, services.ErrNotFound):
		return "That person could not be found"
	case errors.Is(err, services.ErrEmptyMessage):
		return "Write something or attach a file first"
	case errors.Is(err, services.ErrTooManyFiles):
		return "You can attach at most 3 files"
	case errors.Is(err, services.ErrRateLimited):
		return "You are sending messages too fast"
	case errors.Is(err, services.ErrSelfTarget):
		return "You cannot message yourself"
	}
	return err.Error()
}
