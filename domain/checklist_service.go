package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// NoteStorage defines the persistence the checklist service relies on.
type NoteStorage interface {
	GetNote(ctx context.Context, boardID, noteID string) (*Note, error)
	CreateNote(ctx context.Context, note Note) (*Note, error)
	// SaveNote writes the note and its full checklist. changes describes the
	// checklist delta relative to the stored snapshot.
	SaveNote(ctx context.Context, note Note, changes ChangeSet) (*Note, error)
	SetSlackMessageID(ctx context.Context, noteID, ref string) error
	GetBoard(ctx context.Context, boardID string) (*Board, error)
	GetOrganization(ctx context.Context, orgID string) (*Organization, error)
	GetUser(ctx context.Context, userID string) (*User, error)
}

// Notification is the context a notifier needs to report events.
type Notification struct {
	Actor        User
	Board        Board
	Organization Organization
	Note         Note
	Events       []Event
}

// Notifier reports note and checklist transitions to external channels.
// Implementations are best effort and must not block the caller on network I/O.
type Notifier interface {
	NotifyChecklist(ctx context.Context, n Notification)
	NotifyNoteAdded(ctx context.Context, n Notification, delivered func(ref string))
}

// UpdateNoteInput is a mutation of a note. Nil fields are left untouched;
// Checklist, when present, replaces the whole list.
type UpdateNoteInput struct {
	Checklist  *[]ChecklistItem `json:"checklistItems,omitempty"`
	Done       *bool            `json:"done,omitempty"`
	Content    *string          `json:"content,omitempty"`
	ArchivedAt OptionalTime     `json:"archivedAt"`
}

// CreateNoteInput is the payload of a new note.
type CreateNoteInput struct {
	Content   string          `json:"content"`
	Checklist []ChecklistItem `json:"checklistItems,omitempty"`
}

// ChecklistService reconciles client-submitted checklists with the stored
// state and hands eligible transitions to the notifier. It holds no per-note
// state; concurrent requests to the same note are last-write-wins.
type ChecklistService struct {
	st       NoteStorage
	notifier Notifier
	logger   *log.Logger
	newID    func() string
	now      func() time.Time
}

func NewChecklistService(st NoteStorage, notifier Notifier, logger *log.Logger) *ChecklistService {
	if st == nil {
		panic("domain.NewChecklistService: storage is nil")
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &ChecklistService{
		st:       st,
		notifier: notifier,
		logger:   logger,
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// UpdateNote applies in to the note and returns the persisted note together
// with the checklist change set it produced.
func (s *ChecklistService) UpdateNote(ctx context.Context, actorID, boardID, noteID string, in UpdateNoteInput) (*Note, ChangeSet, error) {
	prev, err := s.st.GetNote(ctx, boardID, noteID)
	if err != nil {
		return nil, ChangeSet{}, err
	}
	return s.reconcile(ctx, actorID, prev, in)
}

// CreateNote stores a new note on the board. Plain notes go through the
// note-level "added" notification; notes created with items are diffed
// against an empty checklist.
func (s *ChecklistService) CreateNote(ctx context.Context, actorID, boardID string, in CreateNoteInput) (*Note, error) {
	if _, err := s.st.GetBoard(ctx, boardID); err != nil {
		return nil, err
	}
	if err := checkLength("content", in.Content); err != nil {
		return nil, err
	}
	note := Note{
		ID:        s.newID(),
		BoardID:   boardID,
		Content:   SanitizeContent(in.Content),
		CreatedBy: actorID,
	}
	items, err := PrepareChecklist(note.ID, in.Checklist, s.newID)
	if err != nil {
		return nil, err
	}
	note.ChecklistItems = Normalize(items)
	note.Done = DeriveDone(note.ChecklistItems)

	saved, err := s.st.CreateNote(ctx, note)
	if err != nil {
		return nil, fmt.Errorf("create note: %w", err)
	}

	if len(saved.ChecklistItems) > 0 {
		s.notify(ctx, actorID, *saved, Diff(nil, saved.ChecklistItems).Events())
		return saved, nil
	}
	if HasValidContent(saved.Content) && s.notifier != nil {
		n, err := s.notification(ctx, actorID, *saved)
		if err != nil {
			s.logger.WithError(err).WithField("note", saved.ID).Warn("note notification skipped")
			return saved, nil
		}
		noteID := saved.ID
		s.notifier.NotifyNoteAdded(ctx, n, func(ref string) {
			if err := s.st.SetSlackMessageID(context.Background(), noteID, ref); err != nil {
				s.logger.WithError(err).WithField("note", noteID).Warn("record slack message id failed")
			}
		})
	}
	return saved, nil
}

// SplitItem cuts an item at cursor and persists the result through the same
// reconciliation path as a full checklist update.
func (s *ChecklistService) SplitItem(ctx context.Context, actorID, boardID, noteID, itemID string, cursor int) (*Note, SplitResult, error) {
	prev, err := s.st.GetNote(ctx, boardID, noteID)
	if err != nil {
		return nil, SplitResult{}, err
	}
	res, err := Split(prev.ChecklistItems, itemID, cursor, s.newID())
	if err != nil {
		return nil, SplitResult{}, err
	}
	next := ApplySplit(prev.ChecklistItems, res)
	saved, _, err := s.reconcile(ctx, actorID, prev, UpdateNoteInput{Checklist: &next})
	if err != nil {
		return nil, SplitResult{}, err
	}
	for _, it := range saved.ChecklistItems {
		switch it.ID {
		case res.Original.ID:
			res.Original = it
		case res.Created.ID:
			res.Created = it
		}
	}
	return saved, res, nil
}

// ApplyTaskCommand runs a chat-bot checklist operation.
func (s *ChecklistService) ApplyTaskCommand(ctx context.Context, actorID, boardID, noteID string, cmd TaskCommand) (*Note, error) {
	if !cmd.Type.Valid() {
		return nil, invalid("type", fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Type))
	}
	prev, err := s.st.GetNote(ctx, boardID, noteID)
	if err != nil {
		return nil, err
	}
	next, err := s.applyTaskCommand(prev.ChecklistItems, cmd)
	if err != nil {
		return nil, err
	}
	saved, _, err := s.reconcile(ctx, actorID, prev, UpdateNoteInput{Checklist: &next})
	return saved, err
}

func (s *ChecklistService) applyTaskCommand(items []ChecklistItem, cmd TaskCommand) ([]ChecklistItem, error) {
	next := cloneItems(items)
	if cmd.Type == TaskAdd {
		if !HasValidContent(cmd.Content) {
			return nil, invalid("content", ErrEmptyContent)
		}
		return append(next, ChecklistItem{
			ID:      s.newID(),
			Content: strings.TrimSpace(cmd.Content),
			Order:   NextOrder(next),
		}), nil
	}

	idx := -1
	for i := range next {
		if next[i].ID == cmd.ItemID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("checklist item %s: %w", cmd.ItemID, ErrNotFound)
	}
	switch cmd.Type {
	case TaskEdit:
		if !HasValidContent(cmd.Content) {
			return nil, invalid("content", ErrEmptyContent)
		}
		next[idx].Content = strings.TrimSpace(cmd.Content)
	case TaskDelete:
		next = append(next[:idx], next[idx+1:]...)
	case TaskMark:
		next[idx].Checked = true
	case TaskUnmark:
		next[idx].Checked = false
	}
	return next, nil
}

// reconcile is the read-compute-write core: prev is the snapshot read by this
// request and in carries the proposed next state.
func (s *ChecklistService) reconcile(ctx context.Context, actorID string, prev *Note, in UpdateNoteInput) (*Note, ChangeSet, error) {
	next := *prev
	next.ChecklistItems = cloneItems(prev.ChecklistItems)

	if in.Content != nil {
		if err := checkLength("content", *in.Content); err != nil {
			return nil, ChangeSet{}, err
		}
		next.Content = SanitizeContent(*in.Content)
	}
	if in.ArchivedAt.Set {
		next.ArchivedAt = in.ArchivedAt.Time
	}

	var cs ChangeSet
	if in.Checklist != nil {
		items, err := PrepareChecklist(prev.ID, *in.Checklist, s.newID)
		if err != nil {
			return nil, ChangeSet{}, err
		}
		next.ChecklistItems = Normalize(items)
		cs = Diff(prev.ChecklistItems, next.ChecklistItems)
	}

	switch {
	case len(next.ChecklistItems) > 0:
		next.Done = DeriveDone(next.ChecklistItems)
	case in.Done != nil:
		next.Done = *in.Done
	case in.Checklist != nil:
		next.Done = false
	}
	next.UpdatedAt = s.now().UTC()

	saved, err := s.st.SaveNote(ctx, next, cs)
	if err != nil {
		return nil, ChangeSet{}, fmt.Errorf("save note %s: %w", prev.ID, err)
	}

	s.logger.WithFields(log.Fields{
		"note":    saved.ID,
		"board":   saved.BoardID,
		"created": len(cs.Created),
		"updated": len(cs.Updated),
		"deleted": len(cs.Deleted),
	}).Debug("checklist reconciled")

	s.notify(ctx, actorID, *saved, cs.Events())
	return saved, cs, nil
}

func (s *ChecklistService) notify(ctx context.Context, actorID string, note Note, events []Event) {
	if s.notifier == nil || len(events) == 0 {
		return
	}
	n, err := s.notification(ctx, actorID, note)
	if err != nil {
		s.logger.WithError(err).WithField("note", note.ID).Warn("checklist notification skipped")
		return
	}
	n.Events = events
	s.notifier.NotifyChecklist(ctx, n)
}

func (s *ChecklistService) notification(ctx context.Context, actorID string, note Note) (Notification, error) {
	board, err := s.st.GetBoard(ctx, note.BoardID)
	if err != nil {
		return Notification{}, fmt.Errorf("load board %s: %w", note.BoardID, err)
	}
	org, err := s.st.GetOrganization(ctx, board.OrganizationID)
	if err != nil {
		return Notification{}, fmt.Errorf("load organization %s: %w", board.OrganizationID, err)
	}
	actor := User{ID: actorID}
	if u, err := s.st.GetUser(ctx, actorID); err == nil && u != nil {
		actor = *u
	} else if err != nil {
		s.logger.WithError(err).WithField("user", actorID).Debug("actor lookup failed")
	}
	return Notification{Actor: actor, Board: *board, Organization: *org, Note: note}, nil
}
