package domain

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

type fakeStore struct {
	mu         sync.Mutex
	notes      map[string]Note
	boards     map[string]Board
	orgs       map[string]Organization
	users      map[string]User
	saved      []ChangeSet
	messageIDs map[string]string
	saveErr    error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		notes:      map[string]Note{},
		boards:     map[string]Board{"b1": {ID: "b1", Name: "Roadmap", OrganizationID: "o1", SendSlackUpdates: true}},
		orgs:       map[string]Organization{"o1": {ID: "o1", Name: "Acme", SlackWebhookURL: "https://hooks.example.com/x"}},
		users:      map[string]User{"u1": {ID: "u1", Name: "Ada"}},
		messageIDs: map[string]string{},
	}
}

func (f *fakeStore) GetNote(ctx context.Context, boardID, noteID string) (*Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.notes[noteID]
	if !ok || n.BoardID != boardID {
		return nil, fmt.Errorf("note %s: %w", noteID, ErrNotFound)
	}
	n.ChecklistItems = cloneItems(n.ChecklistItems)
	return &n, nil
}

func (f *fakeStore) CreateNote(ctx context.Context, note Note) (*Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.notes[note.ID]; exists {
		return nil, errors.New("duplicate note")
	}
	f.notes[note.ID] = note
	return &note, nil
}

func (f *fakeStore) SaveNote(ctx context.Context, note Note, changes ChangeSet) (*Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	f.notes[note.ID] = note
	f.saved = append(f.saved, changes)
	return &note, nil
}

func (f *fakeStore) SetSlackMessageID(ctx context.Context, noteID, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messageIDs[noteID] = ref
	return nil
}

func (f *fakeStore) GetBoard(ctx context.Context, boardID string) (*Board, error) {
	b, ok := f.boards[boardID]
	if !ok {
		return nil, fmt.Errorf("board %s: %w", boardID, ErrNotFound)
	}
	return &b, nil
}

func (f *fakeStore) GetOrganization(ctx context.Context, orgID string) (*Organization, error) {
	o, ok := f.orgs[orgID]
	if !ok {
		return nil, fmt.Errorf("organization %s: %w", orgID, ErrNotFound)
	}
	return &o, nil
}

func (f *fakeStore) GetUser(ctx context.Context, userID string) (*User, error) {
	u, ok := f.users[userID]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	return &u, nil
}

type fakeNotifier struct {
	mu        sync.Mutex
	checklist []Notification
	added     []Notification
	ref       string
}

func (f *fakeNotifier) NotifyChecklist(ctx context.Context, n Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checklist = append(f.checklist, n)
}

func (f *fakeNotifier) NotifyNoteAdded(ctx context.Context, n Notification, delivered func(ref string)) {
	f.mu.Lock()
	f.added = append(f.added, n)
	ref := f.ref
	f.mu.Unlock()
	if ref != "" && delivered != nil {
		delivered(ref)
	}
}
