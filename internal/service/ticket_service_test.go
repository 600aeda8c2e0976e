package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helpdesk-mini/helpdesk/internal/domain"
	"github.com/helpdesk-mini/helpdesk/internal/events"
	"github.com/helpdesk-mini/helpdesk/internal/repository"
	apperrors "github.com/helpdesk-mini/helpdesk/pkg/util"
)

// storeState is the backing data of the in-memory fakes. The fake unit of
// work clones it, runs the transaction body against the clone, and swaps the
// clone in only on success, so a failed transaction leaves no trace.
type storeState struct {
	tickets  map[string]domain.Ticket
	comments map[string][]domain.Comment
	audit    map[string][]domain.AuditEvent
	seq      int
}

func newStoreState() *storeState {
	return &storeState{
		tickets:  make(map[string]domain.Ticket),
		comments: make(map[string][]domain.Comment),
		audit:    make(map[string][]domain.AuditEvent),
	}
}

func (s *storeState) clone() *storeState {
	out := newStoreState()
	out.seq = s.seq
	for id, t := range s.tickets {
		out.tickets[id] = t
	}
	for id, cs := range s.comments {
		out.comments[id] = append([]domain.Comment{}, cs...)
	}
	for id, es := range s.audit {
		out.audit[id] = append([]domain.AuditEvent{}, es...)
	}
	return out
}

func (s *storeState) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

type memStore struct {
	mu        sync.Mutex
	state     *storeState
	failAudit bool
	now       func() time.Time
}

func newMemStore() *memStore {
	return &memStore{
		state: newStoreState(),
		now:   time.Now,
	}
}

func (m *memStore) Do(_ context.Context, fn func(repository.Repositories) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	err := fn(m.repos(work))
	if err != nil {
		return err
	}
	*m.state = *work
	return nil
}

func (m *memStore) repos(state *storeState) repository.Repositories {
	return repository.Repositories{
		Tickets:  &memTicketRepo{store: m, state: state},
		Comments: &memCommentRepo{store: m, state: state},
		Audit:    &memAuditRepo{store: m, state: state},
	}
}

// liveRepos returns repositories over the committed state, standing in for
// the pool-bound repositories used on read paths.
func (m *memStore) liveRepos() repository.Repositories {
	return m.repos(m.state)
}

type memTicketRepo struct {
	store *memStore
	state *storeState
}

func (r *memTicketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	ticket.ID = r.state.nextID("ticket")
	ticket.CreatedAt = r.store.now()
	ticket.UpdatedAt = ticket.CreatedAt
	r.state.tickets[ticket.ID] = *ticket
	return nil
}

func (r *memTicketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	t, ok := r.state.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &t, nil
}

func (r *memTicketRepo) ConditionalUpdate(_ context.Context, id string, expectedVersion int, changes repository.TicketChanges) (*domain.Ticket, error) {
	t, ok := r.state.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if t.Version != expectedVersion {
		return nil, repository.ErrVersionConflict
	}
	if changes.Status != nil {
		t.Status = *changes.Status
	}
	if changes.AssigneeSet {
		t.AssigneeID = changes.AssigneeID
	}
	t.Version++
	t.UpdatedAt = r.store.now()
	r.state.tickets[id] = t
	return &t, nil
}

func (r *memTicketRepo) ListWithFilter(_ context.Context, filter repository.TicketFilter) ([]domain.Ticket, int, error) {
	var matched []domain.Ticket
	for _, t := range r.state.tickets {
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, t.Status) {
			continue
		}
		if filter.SearchTerm != nil && !r.matchesSearch(t, *filter.SearchTerm) {
			continue
		}
		matched = append(matched, t)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := len(matched)

	offset := filter.Offset
	if offset > total {
		offset = total
	}
	end := total
	if filter.Limit > 0 && offset+filter.Limit < end {
		end = offset + filter.Limit
	}
	return matched[offset:end], total, nil
}

func (r *memTicketRepo) matchesSearch(t domain.Ticket, term string) bool {
	term = strings.ToLower(term)
	if strings.Contains(strings.ToLower(t.Title), term) || strings.Contains(strings.ToLower(t.Description), term) {
		return true
	}
	for _, c := range r.state.comments[t.ID] {
		if strings.Contains(strings.ToLower(c.Content), term) {
			return true
		}
	}
	return false
}

type memCommentRepo struct {
	store *memStore
	state *storeState
}

func (r *memCommentRepo) Create(_ context.Context, comment *domain.Comment) error {
	comment.ID = r.state.nextID("comment")
	comment.CreatedAt = r.store.now()
	r.state.comments[comment.TicketID] = append(r.state.comments[comment.TicketID], *comment)
	return nil
}

func (r *memCommentRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.Comment, error) {
	return append([]domain.Comment{}, r.state.comments[ticketID]...), nil
}

type memAuditRepo struct {
	store *memStore
	state *storeState
}

func (r *memAuditRepo) Append(_ context.Context, event *domain.AuditEvent) error {
	if r.store.failAudit {
		return errors.New("audit storage unavailable")
	}
	event.ID = r.state.nextID("audit")
	event.CreatedAt = r.store.now()
	r.state.audit[event.TicketID] = append(r.state.audit[event.TicketID], *event)
	return nil
}

func (r *memAuditRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.AuditEvent, error) {
	return append([]domain.AuditEvent{}, r.state.audit[ticketID]...), nil
}

func containsStatus(statuses []domain.TicketStatus, status domain.TicketStatus) bool {
	for _, s := range statuses {
		if s == status {
			return true
		}
	}
	return false
}

type capturedEvents struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *capturedEvents) record(_ context.Context, event events.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *capturedEvents) all() []events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]events.Event{}, c.events...)
}

func newTestService(t *testing.T) (*TicketService, *memStore, *capturedEvents) {
	t.Helper()
	store := newMemStore()
	live := store.liveRepos()

	captured := &capturedEvents{}
	dispatcher := events.NewInMemoryDispatcher()
	for _, eventType := range []events.EventType{
		events.EventTicketCreated,
		events.EventTicketStatusChanged,
		events.EventTicketAssigned,
		events.EventTicketCommentAdded,
	} {
		dispatcher.Subscribe(eventType, captured.record)
	}

	svc := NewTicketService(TicketDependencies{
		UnitOfWork:  store,
		TicketRepo:  live.Tickets,
		CommentRepo: live.Comments,
		AuditRepo:   live.Audit,
		Dispatcher:  dispatcher,
	}, 24*time.Hour)
	return svc, store, captured
}

func requireErrorCode(t *testing.T, err error, code string) {
	t.Helper()
	var domainErr *apperrors.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, code, domainErr.Code)
}

var actor = domain.Principal{ID: "user-1", Name: "Alice", Role: domain.RoleAgent}

func TestCreateTicketRequiresFields(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.CreateTicket(context.Background(), actor, "", "won't print")
	requireErrorCode(t, err, "FIELDS_REQUIRED")

	_, err = svc.CreateTicket(context.Background(), actor, "Printer broken", "   ")
	requireErrorCode(t, err, "FIELDS_REQUIRED")
}

func TestCreateTicket(t *testing.T) {
	svc, store, captured := newTestService(t)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	ticket, err := svc.CreateTicket(context.Background(), actor, "Printer broken", "won't print")
	require.NoError(t, err)

	assert.Equal(t, domain.TicketStatusOpen, ticket.Status)
	assert.Equal(t, domain.InitialTicketVersion, ticket.Version)
	assert.Nil(t, ticket.AssigneeID)
	assert.Equal(t, actor.ID, ticket.CreatedByID)
	assert.Equal(t, now.Add(24*time.Hour), ticket.DueAt)

	trail := store.state.audit[ticket.ID]
	require.Len(t, trail, 1)
	assert.Equal(t, domain.AuditActionCreated, trail[0].Action)
	assert.Equal(t, domain.CreatedDetails{Title: "Printer broken"}, trail[0].Details)
	assert.Equal(t, actor.ID, trail[0].ActorID)

	published := captured.all()
	require.Len(t, published, 1)
	assert.Equal(t, events.EventTicketCreated, published[0].Type)
}

func TestUpdateTicketRequiresVersion(t *testing.T) {
	svc, _, _ := newTestService(t)

	status := domain.TicketStatusInProgress
	_, err := svc.UpdateTicket(context.Background(), actor, "ticket-1", TicketUpdateInput{Status: &status})
	requireErrorCode(t, err, "VERSION_REQUIRED")
}

func TestUpdateTicketNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)

	version := 1
	_, err := svc.UpdateTicket(context.Background(), actor, "missing", TicketUpdateInput{ExpectedVersion: &version})
	requireErrorCode(t, err, "NOT_FOUND")
}

func TestUpdateTicketStaleVersionConflicts(t *testing.T) {
	svc, store, _ := newTestService(t)

	ticket, err := svc.CreateTicket(context.Background(), actor, "Printer broken", "won't print")
	require.NoError(t, err)

	status := domain.TicketStatusInProgress
	version := ticket.Version
	_, err = svc.UpdateTicket(context.Background(), actor, ticket.ID, TicketUpdateInput{
		ExpectedVersion: &version,
		Status:          &status,
	})
	require.NoError(t, err)

	// Retrying with the original version must conflict and leave the ticket
	// untouched.
	resolved := domain.TicketStatusResolved
	_, err = svc.UpdateTicket(context.Background(), actor, ticket.ID, TicketUpdateInput{
		ExpectedVersion: &version,
		Status:          &resolved,
	})
	requireErrorCode(t, err, "CONFLICT")

	current := store.state.tickets[ticket.ID]
	assert.Equal(t, domain.TicketStatusInProgress, current.Status)
	assert.Equal(t, ticket.Version+1, current.Version)
}

func TestUpdateTicketAssigns(t *testing.T) {
	svc, store, captured := newTestService(t)

	ticket, err := svc.CreateTicket(context.Background(), actor, "Printer broken", "won't print")
	require.NoError(t, err)

	agent := "agent-7"
	version := 1
	updated, err := svc.UpdateTicket(context.Background(), actor, ticket.ID, TicketUpdateInput{
		ExpectedVersion: &version,
		AssigneeID:      &agent,
		AssigneeSet:     true,
	})
	require.NoError(t, err)

	assert.Equal(t, 2, updated.Version)
	require.NotNil(t, updated.AssigneeID)
	assert.Equal(t, "agent-7", *updated.AssigneeID)

	trail := store.state.audit[ticket.ID]
	require.Len(t, trail, 2) // CREATED plus ASSIGNED
	assert.Equal(t, domain.AuditActionAssigned, trail[1].Action)
	assert.Equal(t, domain.AssignedDetails{To: "agent-7"}, trail[1].Details)

	published := captured.all()
	require.Len(t, published, 2)
	assert.Equal(t, events.EventTicketAssigned, published[1].Type)
}

func TestUpdateTicketStatusAndAssigneeAppendsTwoEvents(t *testing.T) {
	svc, store, _ := newTestService(t)

	ticket, err := svc.CreateTicket(context.Background(), actor, "Printer broken", "won't print")
	require.NoError(t, err)

	agent := "agent-7"
	status := domain.TicketStatusInProgress
	version := 1
	updated, err := svc.UpdateTicket(context.Background(), actor, ticket.ID, TicketUpdateInput{
		ExpectedVersion: &version,
		Status:          &status,
		AssigneeID:      &agent,
		AssigneeSet:     true,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)

	trail := store.state.audit[ticket.ID]
	require.Len(t, trail, 3)
	assert.Equal(t, domain.AuditActionStatusChanged, trail[1].Action)
	assert.Equal(t, domain.StatusChangedDetails{
		From: domain.TicketStatusOpen,
		To:   domain.TicketStatusInProgress,
	}, trail[1].Details)
	assert.Equal(t, domain.AuditActionAssigned, trail[2].Action)
}

func TestUpdateTicketNoEffectiveChange(t *testing.T) {
	svc, store, _ := newTestService(t)

	ticket, err := svc.CreateTicket(context.Background(), actor, "Printer broken", "won't print")
	require.NoError(t, err)

	// Re-sending the current status still bumps the version but records no
	// audit events.
	open := domain.TicketStatusOpen
	version := 1
	updated, err := svc.UpdateTicket(context.Background(), actor, ticket.ID, TicketUpdateInput{
		ExpectedVersion: &version,
		Status:          &open,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)
	assert.Len(t, store.state.audit[ticket.ID], 1) // only CREATED
}

func TestUpdateTicketRejectsUnknownStatus(t *testing.T) {
	svc, _, _ := newTestService(t)

	bogus := domain.TicketStatus("ARCHIVED")
	version := 1
	_, err := svc.UpdateTicket(context.Background(), actor, "ticket-1", TicketUpdateInput{
		ExpectedVersion: &version,
		Status:          &bogus,
	})
	requireErrorCode(t, err, "VALIDATION_FAILED")
}

func TestUpdateTicketAuditFailureRollsBack(t *testing.T) {
	svc, store, captured := newTestService(t)

	ticket, err := svc.CreateTicket(context.Background(), actor, "Printer broken", "won't print")
	require.NoError(t, err)

	store.failAudit = true
	status := domain.TicketStatusInProgress
	version := 1
	_, err = svc.UpdateTicket(context.Background(), actor, ticket.ID, TicketUpdateInput{
		ExpectedVersion: &version,
		Status:          &status,
	})
	requireErrorCode(t, err, "INTERNAL_ERROR")

	// The version must not appear to have advanced and no partial audit
	// trail may survive.
	current := store.state.tickets[ticket.ID]
	assert.Equal(t, 1, current.Version)
	assert.Equal(t, domain.TicketStatusOpen, current.Status)
	assert.Len(t, store.state.audit[ticket.ID], 1)
	assert.Len(t, captured.all(), 1) // only the creation event
}

func TestUpdateTicketVersionCountsSuccesses(t *testing.T) {
	svc, store, _ := newTestService(t)

	ticket, err := svc.CreateTicket(context.Background(), actor, "Printer broken", "won't print")
	require.NoError(t, err)

	statuses := []domain.TicketStatus{
		domain.TicketStatusInProgress,
		domain.TicketStatusResolved,
		domain.TicketStatusClosed,
		domain.TicketStatusOpen,
		domain.TicketStatusInProgress,
	}
	for i, status := range statuses {
		version := domain.InitialTicketVersion + i
		s := status
		_, err := svc.UpdateTicket(context.Background(), actor, ticket.ID, TicketUpdateInput{
			ExpectedVersion: &version,
			Status:          &s,
		})
		require.NoError(t, err)
	}

	current := store.state.tickets[ticket.ID]
	assert.Equal(t, domain.InitialTicketVersion+len(statuses), current.Version)
}

func TestUpdateTicketConcurrentSameVersion(t *testing.T) {
	svc, store, _ := newTestService(t)

	ticket, err := svc.CreateTicket(context.Background(), actor, "Printer broken", "won't print")
	require.NoError(t, err)

	const workers = 8
	results := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			agent := fmt.Sprintf("agent-%d", n)
			version := 1
			_, err := svc.UpdateTicket(context.Background(), actor, ticket.ID, TicketUpdateInput{
				ExpectedVersion: &version,
				AssigneeID:      &agent,
				AssigneeSet:     true,
			})
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	var successes, conflicts int
	for err := range results {
		if err == nil {
			successes++
			continue
		}
		var domainErr *apperrors.DomainError
		require.ErrorAs(t, err, &domainErr)
		require.Equal(t, "CONFLICT", domainErr.Code)
		conflicts++
	}

	assert.Equal(t, 1, successes, "exactly one concurrent update may win")
	assert.Equal(t, workers-1, conflicts)
	assert.Equal(t, 2, store.state.tickets[ticket.ID].Version)
}

func TestAddCommentRequiresContent(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.AddComment(context.Background(), actor, "ticket-1", "  ")
	requireErrorCode(t, err, "FIELDS_REQUIRED")
}

func TestAddCommentTicketNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.AddComment(context.Background(), actor, "missing", "have you tried turning it off and on")
	requireErrorCode(t, err, "NOT_FOUND")
}

func TestAddCommentNeverTouchesVersion(t *testing.T) {
	svc, store, captured := newTestService(t)

	ticket, err := svc.CreateTicket(context.Background(), actor, "Printer broken", "won't print")
	require.NoError(t, err)

	comment, err := svc.AddComment(context.Background(), actor, ticket.ID, "have you tried turning it off and on")
	require.NoError(t, err)
	assert.NotEmpty(t, comment.ID)

	current := store.state.tickets[ticket.ID]
	assert.Equal(t, domain.InitialTicketVersion, current.Version)

	trail := store.state.audit[ticket.ID]
	require.Len(t, trail, 2)
	assert.Equal(t, domain.AuditActionCommentAdded, trail[1].Action)
	assert.Equal(t, domain.CommentAddedDetails{CommentID: comment.ID}, trail[1].Details)

	published := captured.all()
	require.Len(t, published, 2)
	assert.Equal(t, events.EventTicketCommentAdded, published[1].Type)
}

func TestGetTicketReturnsThreadAndTimeline(t *testing.T) {
	svc, _, _ := newTestService(t)

	ticket, err := svc.CreateTicket(context.Background(), actor, "Printer broken", "won't print")
	require.NoError(t, err)
	_, err = svc.AddComment(context.Background(), actor, ticket.ID, "paper jam in tray 2")
	require.NoError(t, err)

	detail, err := svc.GetTicket(context.Background(), ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, detail.Ticket.ID)
	require.Len(t, detail.Comments, 1)
	assert.Equal(t, "paper jam in tray 2", detail.Comments[0].Content)
	require.Len(t, detail.Timeline, 2)
	assert.Equal(t, domain.AuditActionCreated, detail.Timeline[0].Action)
	assert.Equal(t, domain.AuditActionCommentAdded, detail.Timeline[1].Action)
}

func TestListTicketsFiltersAndCounts(t *testing.T) {
	svc, store, _ := newTestService(t)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	clock := func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}
	svc.now = clock
	store.now = clock

	first, err := svc.CreateTicket(context.Background(), actor, "Printer broken", "won't print")
	require.NoError(t, err)
	_, err = svc.CreateTicket(context.Background(), actor, "VPN down", "cannot connect")
	require.NoError(t, err)

	status := domain.TicketStatusInProgress
	version := 1
	_, err = svc.UpdateTicket(context.Background(), actor, first.ID, TicketUpdateInput{
		ExpectedVersion: &version,
		Status:          &status,
	})
	require.NoError(t, err)

	items, total, err := svc.ListTickets(context.Background(), TicketListFilter{
		Statuses: []domain.TicketStatus{domain.TicketStatusInProgress},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, first.ID, items[0].ID)

	// Free-text search covers comment content too.
	_, err = svc.AddComment(context.Background(), actor, first.ID, "toner cartridge replaced")
	require.NoError(t, err)

	search := "toner"
	items, total, err = svc.ListTickets(context.Background(), TicketListFilter{SearchTerm: &search})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, first.ID, items[0].ID)

	// Newest first.
	items, total, err = svc.ListTickets(context.Background(), TicketListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, items, 2)
	assert.Equal(t, "VPN down", items[0].Title)
}
